// Package cli implements the notifications command-line front end.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"

	"github.com/nhle/finance-dashboard/internal/app"
	"github.com/nhle/finance-dashboard/internal/model"
)

var configPath = flag.String("config", model.DefaultConfigPath(), "Path to the notifications YAML configuration file")

// Commands lists every subcommand in display order.
var Commands = []subcommands.Command{
	&addCmd{},
	&listCmd{},
	&readCmd{},
	&readAllCmd{},
	&deleteCmd{},
	&clearCmd{},
	&watchCmd{},
	&permissionCmd{},
}

// openService loads the configuration and builds the notification service.
func openService() (*app.Service, error) {
	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg), nil
}

// closeService closes svc, reporting a failure on stderr.
func closeService(svc *app.Service) {
	if err := svc.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

// printList writes one line per notification.
func printList(w io.Writer, list []model.Notification) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return
	}
	for _, n := range list {
		state := "unread"
		if n.IsRead {
			state = "read"
		}
		fmt.Fprintf(w, "%s  %-6s  %-6s  %-16s  %s: %s  (%s)\n",
			n.ID, state, n.Priority, n.Type, n.Title, n.Message, humanize.Time(n.Timestamp))
	}
}

// dataFlag collects repeated -data key=value pairs.
type dataFlag map[string]any

func (d dataFlag) String() string {
	pairs := make([]string, 0, len(d))
	for k, v := range d {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(pairs, ",")
}

func (d dataFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	d[k] = v
	return nil
}
