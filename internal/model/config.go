package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Sync modes.
const (
	SyncWatch = "watch"
	SyncPoll  = "poll"
	SyncOff   = "off"
)

// StorageConfig selects and locates the durable medium.
type StorageConfig struct {
	// Backend is one of "sqlite", "file" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Path is the database file (sqlite) or directory (file). Empty
	// selects the backend's default location; see ResolvedPath.
	Path string `mapstructure:"path" yaml:"path"`

	// Key is the durable key holding the serialized collection.
	Key string `mapstructure:"key" yaml:"key"`

	// MaxRecords caps the collection size; 0 keeps everything.
	MaxRecords int `mapstructure:"max_records" yaml:"max_records"`
}

// SyncConfig controls how external changes to the durable key are noticed.
type SyncConfig struct {
	// Mode is one of "watch", "poll" or "off".
	Mode           string `mapstructure:"mode" yaml:"mode"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	DebounceMs     int    `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// EscalationConfig is the priority-by-type escalation matrix.
//
// Types disables whole categories. Matrix overrides the per-priority
// default (high and medium escalate, low does not) for single types.
type EscalationConfig struct {
	Types          map[string]bool            `mapstructure:"types" yaml:"types"`
	Matrix         map[string]map[string]bool `mapstructure:"matrix" yaml:"matrix"`
	RepromptDenied bool                       `mapstructure:"reprompt_denied" yaml:"reprompt_denied"`
}

// PlatformConfig holds native alert presentation settings.
type PlatformConfig struct {
	AppName        string `mapstructure:"app_name" yaml:"app_name"`
	Icon           string `mapstructure:"icon" yaml:"icon"`
	Badge          string `mapstructure:"badge" yaml:"badge"`
	Vibrate        []int  `mapstructure:"vibrate" yaml:"vibrate"`
	ConsentBackend string `mapstructure:"consent_backend" yaml:"consent_backend"`
}

// AppConfig is the top-level configuration of the notification core.
type AppConfig struct {
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Escalation EscalationConfig `mapstructure:"escalation" yaml:"escalation"`
	Platform   PlatformConfig   `mapstructure:"platform" yaml:"platform"`
}

// ConfigDir returns ~/.config/finance-dashboard, or "." when the home
// directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "finance-dashboard")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/finance-dashboard/notifications.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "notifications.yaml")
}

// ResolvedPath returns Path, or the default location for the backend
// when Path is empty.
func (c StorageConfig) ResolvedPath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Backend == BackendFile {
		return filepath.Join(ConfigDir(), "notifications")
	}
	return filepath.Join(ConfigDir(), "notifications.db")
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			Key:        "notifications",
			MaxRecords: 200,
		},
		Sync: SyncConfig{
			Mode:           SyncWatch,
			PollIntervalMs: 2000,
			DebounceMs:     50,
		},
		Escalation: EscalationConfig{
			Types:  map[string]bool{},
			Matrix: map[string]map[string]bool{},
		},
		Platform: PlatformConfig{
			AppName:        "Finance Dashboard",
			Vibrate:        []int{200, 100, 200},
			ConsentBackend: "keyring",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.key", def.Storage.Key)
	v.SetDefault("storage.max_records", def.Storage.MaxRecords)
	v.SetDefault("sync.mode", def.Sync.Mode)
	v.SetDefault("sync.poll_interval_ms", def.Sync.PollIntervalMs)
	v.SetDefault("sync.debounce_ms", def.Sync.DebounceMs)
	v.SetDefault("platform.app_name", def.Platform.AppName)
	v.SetDefault("platform.vibrate", def.Platform.Vibrate)
	v.SetDefault("platform.consent_backend", def.Platform.ConsentBackend)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// validate rejects unknown enum values and escalation keys.
func (c *AppConfig) validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Key == "" {
		return fmt.Errorf("storage key must not be empty")
	}

	switch c.Sync.Mode {
	case SyncWatch, SyncPoll, SyncOff:
	default:
		return fmt.Errorf("unknown sync mode %q", c.Sync.Mode)
	}

	for t := range c.Escalation.Types {
		if !Type(t).Valid() {
			return fmt.Errorf("escalation.types: unknown type %q", t)
		}
	}
	for p, row := range c.Escalation.Matrix {
		if !Priority(p).Valid() {
			return fmt.Errorf("escalation.matrix: unknown priority %q", p)
		}
		for t := range row {
			if !Type(t).Valid() {
				return fmt.Errorf("escalation.matrix.%s: unknown type %q", p, t)
			}
		}
	}

	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("storage", cfg.Storage)
	v.Set("sync", cfg.Sync)
	v.Set("escalation", cfg.Escalation)
	v.Set("platform", cfg.Platform)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
