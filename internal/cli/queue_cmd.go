package cli

import (
	"fmt"
	"time"

	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/spf13/cobra"
)

func newQueueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"q"},
		Short:   "Work queues for the acting user and the CAB",
	}

	cmd.AddCommand(
		newActorListCmd(app, "mine", "Requests you created", func(cmd *cobra.Command, u *domain.User) ([]*domain.ChangeRequest, error) {
			return app.Query.ListCreatedBy(cmd.Context(), u.ID)
		}),
		newActorListCmd(app, "assigned", "Requests you are assigned to implement", func(cmd *cobra.Command, u *domain.User) ([]*domain.ChangeRequest, error) {
			return app.Query.ListAssignedTo(cmd.Context(), u.ID)
		}),
		newQueuePendingCmd(app),
		newQueueCABCmd(app),
		newQueueCalendarCmd(app),
	)

	return cmd
}

func newActorListCmd(app *App, use, short string, list func(*cobra.Command, *domain.User) ([]*domain.ChangeRequest, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := app.actor(cmd.Context())
			if err != nil {
				return err
			}
			reqs, err := list(cmd, actor)
			if err != nil {
				return err
			}
			return printRequests(cmd, app, reqs)
		},
	}
}

func newQueuePendingCmd(app *App) *cobra.Command {
	var byRole bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Requests waiting on your approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			var reqs []*domain.ChangeRequest
			if byRole {
				reqs, err = app.Query.ListPendingApprovalsByRole(ctx, actor.ID)
			} else {
				reqs, err = app.Query.ListPendingApprovalFor(ctx, actor.ID)
			}
			if err != nil {
				return err
			}
			return printRequests(cmd, app, reqs)
		},
	}

	cmd.Flags().BoolVar(&byRole, "role", false, "Include everything your roles allow you to approve")

	return cmd
}

func newQueueCABCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cab",
		Short: "The CAB review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := app.Query.CABQueue(cmd.Context(), app.now())
			if err != nil {
				return err
			}
			return printRequests(cmd, app, reqs)
		},
	}
}

func newQueueCalendarCmd(app *App) *cobra.Command {
	var from, to string
	var days int

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Scheduled implementation windows in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			now := app.now()
			start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			if from != "" {
				t, err := parseWhen(from)
				if err != nil {
					return err
				}
				start = t
			}
			end := start.AddDate(0, 0, days)
			if to != "" {
				t, err := parseWhen(to)
				if err != nil {
					return err
				}
				end = t
			}
			reqs, err := app.Query.Calendar(ctx, start, end)
			if err != nil {
				return err
			}
			names, err := app.names(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatter.Header(fmt.Sprintf("%s to %s", start.Format("Jan 2"), end.Format("Jan 2, 2006"))))
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatCalendar(reqs, names))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Range start (default today)")
	cmd.Flags().StringVar(&to, "to", "", "Range end (default --days after the start)")
	cmd.Flags().IntVar(&days, "days", 14, "Range length in days when --to is omitted")

	return cmd
}
