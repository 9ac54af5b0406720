package cli

import (
	"context"
	"time"

	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/service"
	"github.com/spf13/cobra"
)

// App holds references to all service interfaces used by CLI commands.
type App struct {
	Workflow service.WorkflowService
	Query    service.QueryService
	Users    service.UserService

	// DefaultUser is the acting username or id when --as is not given.
	DefaultUser string
	// IsInteractive reports whether forms and the board may take over the terminal.
	IsInteractive func() bool
	// Now defaults to time.Now.
	Now func() time.Time

	as string
}

// NewRootCmd creates the top-level "crq" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "crq",
		Short:         "Change request workflow: approvals, CAB review, scheduling and implementation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&app.as, "as", "", "Act as this user (username or id); defaults to $CRQ_USER")

	root.AddGroup(
		&cobra.Group{ID: "requests", Title: "Change requests:"},
		&cobra.Group{ID: "workflow", Title: "Workflow:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)

	for _, c := range []*cobra.Command{newCRCmd(app), newQueueCmd(app), newBoardCmd(app)} {
		c.GroupID = "requests"
		root.AddCommand(c)
	}
	for _, c := range newWorkflowCmds(app) {
		c.GroupID = "workflow"
		root.AddCommand(c)
	}
	user := newUserCmd(app)
	user.GroupID = "admin"
	root.AddCommand(user)

	return root
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) interactive() bool {
	return a.IsInteractive != nil && a.IsInteractive()
}

// actor resolves the acting user from --as or the configured default.
func (a *App) actor(ctx context.Context) (*domain.User, error) {
	ref := a.as
	if ref == "" {
		ref = a.DefaultUser
	}
	if ref == "" {
		return nil, domain.Invalid("no acting user: pass --as or set CRQ_USER")
	}
	return a.Users.Resolve(ctx, ref)
}

// names loads every user for id-to-username display.
func (a *App) names(ctx context.Context) (formatter.Names, error) {
	users, err := a.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	return formatter.NamesFrom(users), nil
}
