// Package app wires the notification core together and exposes the API
// consumed by UI collaborators. A Service is built once at startup and
// passed to whoever needs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/nhle/finance-dashboard/internal/event"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/notify"
	"github.com/nhle/finance-dashboard/internal/permission"
	"github.com/nhle/finance-dashboard/internal/router"
	"github.com/nhle/finance-dashboard/internal/store"
	appsync "github.com/nhle/finance-dashboard/internal/sync"
)

// Option overrides one of the collaborators New would otherwise build
// from the configuration.
type Option func(*Service)

// WithMedium uses m as the durable medium.
func WithMedium(m store.Medium) Option {
	return func(s *Service) { s.medium = m }
}

// WithChangeSource uses src to learn about external writes.
func WithChangeSource(src appsync.ChangeSource) Option {
	return func(s *Service) { s.source = src }
}

// WithPlatform uses p as the native alert surface.
func WithPlatform(p permission.Platform) Option {
	return func(s *Service) { s.platform = p }
}

// WithConsentCache uses c to remember the consent answer.
func WithConsentCache(c permission.ConsentCache) Option {
	return func(s *Service) { s.consent = c }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the notification core: store, event bus, cross-instance
// sync, permission gateway and priority router.
type Service struct {
	cfg      *model.AppConfig
	logger   *log.Logger
	medium   store.Medium
	source   appsync.ChangeSource
	platform permission.Platform
	consent  permission.ConsentCache

	bus      *event.Bus
	adapter  *store.Adapter
	store    *notify.Store
	sync     *appsync.Sync
	gateway  *permission.Gateway
	router   *router.Router
	detachFn func()
}

// New builds a Service from cfg. Durable storage that cannot be opened
// does not fail construction: the service runs closed with an empty
// list, adds fail with notify.ErrUnavailable, and the failure is logged.
func New(cfg *model.AppConfig, opts ...Option) *Service {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}

	s := &Service{cfg: cfg, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if s.medium == nil {
		m, err := openMedium(cfg.Storage)
		if err != nil {
			s.logger.Printf("failed to open notification storage: %v", err)
		} else {
			s.medium = m
		}
	}

	s.bus = event.NewBus()

	var persist notify.Persistence
	if s.medium != nil {
		s.adapter = store.NewAdapter(s.medium, cfg.Storage.Key)
		persist = s.adapter
	}
	s.store = notify.New(persist, s.bus,
		notify.WithLogger(s.logger),
		notify.WithMaxRecords(cfg.Storage.MaxRecords),
	)

	if s.platform == nil {
		s.platform = permission.NewTerminalPlatform(os.Stderr, cfg.Platform.AppName)
	}
	if s.consent == nil {
		s.consent = openConsent(cfg.Platform, s.logger)
	}
	s.gateway = permission.NewGateway(s.platform, s.consent, permission.WithLogger(s.logger))

	s.router = router.New(s.gateway, router.PolicyFromConfig(cfg.Escalation),
		router.WithLogger(s.logger),
		router.WithRepromptDenied(cfg.Escalation.RepromptDenied),
		router.WithAlertDefaults(cfg.Platform.Icon, cfg.Platform.Badge, cfg.Platform.Vibrate),
	)
	s.detachFn = s.router.Attach(s.bus)

	if s.adapter != nil {
		if err := s.startSync(); err != nil {
			s.logger.Printf("failed to start notification sync: %v", err)
		}
	}

	return s
}

// openMedium opens the backend named in cfg.
func openMedium(cfg model.StorageConfig) (store.Medium, error) {
	switch cfg.Backend {
	case model.BackendMemory:
		return store.NewMemoryMedium(), nil

	case model.BackendFile:
		return store.NewFileMedium(afero.NewOsFs(), cfg.ResolvedPath())

	case model.BackendSQLite, "":
		path := cfg.ResolvedPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		return store.NewSQLiteMedium(path)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// openConsent returns the configured consent cache, degrading to an
// in-memory one when the keyring is unavailable.
func openConsent(cfg model.PlatformConfig, logger *log.Logger) permission.ConsentCache {
	if cfg.ConsentBackend != "keyring" {
		return &permission.MemoryConsent{}
	}
	c, err := permission.OpenKeyringConsent(filepath.Join(model.ConfigDir(), "credentials"))
	if err != nil {
		logger.Printf("failed to open consent keyring, consent will not persist: %v", err)
		return &permission.MemoryConsent{}
	}
	return c
}

// startSync picks a change source for the configured mode and starts
// listening. A watcher that cannot start falls back to polling.
func (s *Service) startSync() error {
	if s.source == nil {
		s.source = s.defaultSource()
	}

	s.sync = appsync.New(s.store, s.adapter, s.source, appsync.WithLogger(s.logger))
	if s.source == nil {
		// Sync is off; Refresh still works on demand.
		return nil
	}

	err := s.sync.Start()
	if err == nil {
		return nil
	}

	if _, isWatcher := s.source.(*appsync.FileWatcher); !isWatcher {
		return err
	}

	s.logger.Printf("failed to watch notification storage, polling instead: %v", err)
	s.source = appsync.NewPoller(s.pollInterval())
	s.sync = appsync.New(s.store, s.adapter, s.source, appsync.WithLogger(s.logger))
	return s.sync.Start()
}

func (s *Service) pollInterval() time.Duration {
	return time.Duration(s.cfg.Sync.PollIntervalMs) * time.Millisecond
}

func (s *Service) defaultSource() appsync.ChangeSource {
	switch s.cfg.Sync.Mode {
	case model.SyncOff:
		return nil
	case model.SyncPoll:
		return appsync.NewPoller(s.pollInterval())
	}

	debounce := time.Duration(s.cfg.Sync.DebounceMs) * time.Millisecond
	switch m := s.medium.(type) {
	case *store.MemoryMedium:
		return m
	case *store.SQLiteMedium:
		return appsync.NewFileWatcher(m.Path(), debounce, s.logger)
	case *store.FileMedium:
		return appsync.NewFileWatcher(m.PathFor(s.cfg.Storage.Key), debounce, s.logger)
	default:
		return appsync.NewPoller(s.pollInterval())
	}
}

// AddNotification stores a new notification and, when the escalation
// policy selects it, forwards it to the platform in the background.
// An empty priority means medium.
func (s *Service) AddNotification(
	title, message string,
	typ model.Type,
	priority model.Priority,
	data map[string]any,
) (model.Notification, error) {
	return s.store.Add(model.Input{
		Title:    title,
		Message:  message,
		Type:     typ,
		Priority: priority,
		Data:     data,
	})
}

// GetStoredNotifications returns every notification, newest first.
func (s *Service) GetStoredNotifications() []model.Notification {
	return s.store.List()
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount() int {
	return s.store.UnreadCount()
}

// UnreadByType returns unread counts per type for grouping badges.
func (s *Service) UnreadByType() map[model.Type]int {
	return s.store.CountByType()
}

// MarkNotificationAsRead marks one notification read and returns the
// updated list. Unknown ids leave the list unchanged.
func (s *Service) MarkNotificationAsRead(id string) []model.Notification {
	s.store.MarkAsRead(id)
	return s.store.List()
}

// MarkAllNotificationsAsRead marks every notification read and returns
// the updated list.
func (s *Service) MarkAllNotificationsAsRead() []model.Notification {
	s.store.MarkAllAsRead()
	return s.store.List()
}

// DeleteNotification removes one notification and returns the updated
// list. Unknown ids leave the list unchanged.
func (s *Service) DeleteNotification(id string) []model.Notification {
	s.store.Delete(id)
	return s.store.List()
}

// DeleteAllNotifications removes every notification.
func (s *Service) DeleteAllNotifications() {
	s.store.ClearAll()
}

// Subscribe registers fn for every store event and returns a function
// that unsubscribes it.
func (s *Service) Subscribe(fn func(event.Event)) func() {
	return s.bus.Subscribe(fn)
}

// RequestPermission asks for consent to show platform alerts.
func (s *Service) RequestPermission(ctx context.Context) bool {
	return s.gateway.RequestPermission(ctx)
}

// PermissionState returns the current consent state.
func (s *Service) PermissionState() permission.State {
	return s.gateway.State()
}

// SetPolicy replaces the escalation policy.
func (s *Service) SetPolicy(p router.Policy) {
	s.router.SetPolicy(p)
}

// Refresh checks the durable key for external changes immediately.
func (s *Service) Refresh() error {
	if s.sync == nil {
		return nil
	}
	_, err := s.sync.HandleExternalChange()
	return err
}

// SyncStatus returns the state of the cross-instance sync loop.
func (s *Service) SyncStatus() appsync.SyncStatus {
	if s.sync == nil {
		return appsync.SyncStatus{}
	}
	return s.sync.Status()
}

// Close stops syncing, waits for in-flight escalations and releases the
// durable medium.
func (s *Service) Close() error {
	if s.sync != nil {
		s.sync.Stop()
	}
	s.detachFn()
	s.router.Wait()

	var errs []error
	if s.medium != nil {
		if err := s.medium.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
