package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/subcommands"

	"github.com/nhle/finance-dashboard/internal/keys"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/ui/feed"
)

type addCmd struct {
	title    string
	message  string
	typ      string
	priority string
	data     dataFlag
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a notification" }
func (*addCmd) Usage() string {
	return `notifications add -title <title> -message <message> -type <type> [-priority high|medium|low] [-data k=v ...]

  Stores a new notification. High and medium priority notifications are
  shown as desktop alerts when the escalation policy and the user's
  consent allow it.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	c.data = dataFlag{}
	f.StringVar(&c.title, "title", "", "Notification title.")
	f.StringVar(&c.message, "message", "", "Notification message.")
	f.StringVar(&c.typ, "type", string(model.TypeSystem), "One of financial_alert, budget_alert, approval_request, comment, system.")
	f.StringVar(&c.priority, "priority", string(model.PriorityMedium), "One of high, medium, low.")
	f.Var(c.data, "data", "Extra key=value data; may be repeated.")
}

func (c *addCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	var data map[string]any
	if len(c.data) > 0 {
		data = c.data
	}

	n, err := svc.AddNotification(c.title, c.message, model.Type(c.typ), model.Priority(c.priority), data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	fmt.Println(n.ID)
	return subcommands.ExitSuccess
}

type listCmd struct {
	unread bool
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list notifications, newest first" }
func (*listCmd) Usage() string {
	return `notifications list [-unread]
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.unread, "unread", false, "Only show unread notifications.")
}

func (c *listCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	list := svc.GetStoredNotifications()
	if c.unread {
		unread := list[:0]
		for _, n := range list {
			if !n.IsRead {
				unread = append(unread, n)
			}
		}
		list = unread
	}

	printList(os.Stdout, list)
	fmt.Printf("%d unread\n", svc.UnreadCount())
	return subcommands.ExitSuccess
}

type readCmd struct{}

func (*readCmd) Name() string     { return "read" }
func (*readCmd) Synopsis() string { return "mark notifications as read" }
func (*readCmd) Usage() string {
	return `notifications read <id> [<id>...]
`
}
func (*readCmd) SetFlags(*flag.FlagSet) {}

func (*readCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	for _, id := range f.Args() {
		svc.MarkNotificationAsRead(id)
	}
	fmt.Printf("%d unread\n", svc.UnreadCount())
	return subcommands.ExitSuccess
}

type readAllCmd struct{}

func (*readAllCmd) Name() string     { return "read-all" }
func (*readAllCmd) Synopsis() string { return "mark every notification as read" }
func (*readAllCmd) Usage() string {
	return `notifications read-all
`
}
func (*readAllCmd) SetFlags(*flag.FlagSet) {}

func (*readAllCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	svc.MarkAllNotificationsAsRead()
	return subcommands.ExitSuccess
}

type deleteCmd struct{}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete notifications" }
func (*deleteCmd) Usage() string {
	return `notifications delete <id> [<id>...]
`
}
func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (*deleteCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	before := len(svc.GetStoredNotifications())
	var after int
	for _, id := range f.Args() {
		after = len(svc.DeleteNotification(id))
	}
	fmt.Printf("deleted %d\n", before-after)
	return subcommands.ExitSuccess
}

type clearCmd struct{}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "delete every notification" }
func (*clearCmd) Usage() string {
	return `notifications clear
`
}
func (*clearCmd) SetFlags(*flag.FlagSet) {}

func (*clearCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	svc.DeleteAllNotifications()
	return subcommands.ExitSuccess
}

type watchCmd struct{}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "show a live notification feed" }
func (*watchCmd) Usage() string {
	return `notifications watch

  Opens an interactive feed that follows changes made by this and every
  other running instance.
`
}
func (*watchCmd) SetFlags(*flag.FlagSet) {}

func (*watchCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	p := tea.NewProgram(feed.New(svc, keys.DefaultKeyMap()), tea.WithAltScreen())
	unsubscribe := feed.Bridge(p, svc.Subscribe)
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type permissionCmd struct{}

func (*permissionCmd) Name() string     { return "permission" }
func (*permissionCmd) Synopsis() string { return "ask for consent to show desktop alerts" }
func (*permissionCmd) Usage() string {
	return `notifications permission
`
}
func (*permissionCmd) SetFlags(*flag.FlagSet) {}

func (*permissionCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openService()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer closeService(svc)

	svc.RequestPermission(ctx)
	fmt.Println(svc.PermissionState())
	return subcommands.ExitSuccess
}
