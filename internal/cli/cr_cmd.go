package cli

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/service"
	"github.com/spf13/cobra"
)

func newCRCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cr",
		Aliases: []string{"request"},
		Short:   "Create, edit and inspect change requests",
	}

	cmd.AddCommand(
		newCRCreateCmd(app),
		newCRUpdateCmd(app),
		newCRDeleteCmd(app),
		newCRListCmd(app),
		newCRShowCmd(app),
		newCRHistoryCmd(app),
		newCRCommentsCmd(app),
	)

	return cmd
}

// detailFlags binds the free-text and classification fields shared by
// create and update.
type detailFlags struct {
	title, description, justification, riskAssessment, backoutPlan string
	priority, changeType, impact, risk                             string
}

func (f *detailFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Short summary of the change")
	cmd.Flags().StringVar(&f.description, "description", "", "What will be changed")
	cmd.Flags().StringVar(&f.justification, "justification", "", "Why the change is needed")
	cmd.Flags().StringVar(&f.riskAssessment, "risk-assessment", "", "Risk assessment")
	cmd.Flags().StringVar(&f.backoutPlan, "backout-plan", "", "How the change is rolled back")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low|medium|high|critical")
	cmd.Flags().StringVar(&f.changeType, "type", "", "normal|standard|emergency")
	cmd.Flags().StringVar(&f.impact, "impact", "", "low|medium|high")
	cmd.Flags().StringVar(&f.risk, "risk", "", "low|medium|high|critical")
}

func (f *detailFlags) createInput() service.CreateInput {
	return service.CreateInput{
		Title:          f.title,
		Description:    f.description,
		Justification:  f.justification,
		RiskAssessment: f.riskAssessment,
		BackoutPlan:    f.backoutPlan,
		Priority:       f.priority,
		Type:           f.changeType,
		Impact:         f.impact,
		Risk:           f.risk,
	}
}

// updateInput sets only the fields whose flags were given.
func (f *detailFlags) updateInput(cmd *cobra.Command) service.UpdateInput {
	var in service.UpdateInput
	set := func(name string, v string, dst **string) {
		if cmd.Flags().Changed(name) {
			val := v
			*dst = &val
		}
	}
	set("title", f.title, &in.Title)
	set("description", f.description, &in.Description)
	set("justification", f.justification, &in.Justification)
	set("risk-assessment", f.riskAssessment, &in.RiskAssessment)
	set("backout-plan", f.backoutPlan, &in.BackoutPlan)
	set("priority", f.priority, &in.Priority)
	set("type", f.changeType, &in.Type)
	set("impact", f.impact, &in.Impact)
	set("risk", f.risk, &in.Risk)
	return in
}

func newCRCreateCmd(app *App) *cobra.Command {
	var f detailFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft change request (opens a form when --title is omitted in a terminal)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}

			in := f.createInput()
			if strings.TrimSpace(in.Title) == "" && app.interactive() {
				if err := createRequestForm(&in).RunWithContext(ctx); err != nil {
					return err
				}
			}

			cr, err := app.Workflow.Create(ctx, actor.ID, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", formatter.Bold(cr.Number), cr.Title)
			return nil
		},
	}

	f.bind(cmd)

	return cmd
}

func newCRUpdateCmd(app *App) *cobra.Command {
	var f detailFlags

	cmd := &cobra.Command{
		Use:   "update <cr>",
		Short: "Edit a draft change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			cr, err := app.Workflow.Update(ctx, args[0], actor.ID, f.updateInput(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %s\n", formatter.Bold(cr.Number), cr.Title)
			return nil
		},
	}

	f.bind(cmd)

	return cmd
}

func newCRDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cr>",
		Short: "Delete a draft change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			if err := app.Workflow.Delete(ctx, args[0], actor.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newCRListCmd(app *App) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List change requests, optionally by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			parsed := make([]domain.Status, 0, len(statuses))
			for _, s := range statuses {
				st, ok := domain.ParseStatus(strings.TrimSpace(s))
				if !ok {
					return domain.Invalid("unknown status %q", s)
				}
				parsed = append(parsed, st)
			}
			reqs, err := app.Query.ListByStatus(ctx, parsed...)
			if err != nil {
				return err
			}
			return printRequests(cmd, app, reqs)
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable, e.g. draft,scheduled)")

	return cmd
}

func newCRShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cr>",
		Short: "Show a change request with approvals, assignments and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			d, err := app.Query.Get(ctx, args[0], actor.ID)
			if err != nil {
				return err
			}
			names, err := app.names(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatRequestDetail(d, names, app.now()))
			return nil
		},
	}
}

func newCRHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <cr>",
		Short: "Show the audit trail of a change request, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entries, err := app.Query.History(ctx, args[0])
			if err != nil {
				return err
			}
			names, err := app.names(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatHistory(entries, names, app.now()))
			return nil
		},
	}
}

func newCRCommentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "comments <cr>",
		Short: "Show the comments on a change request visible to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			comments, err := app.Query.Comments(ctx, args[0], actor.ID)
			if err != nil {
				return err
			}
			names, err := app.names(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatComments(comments, names, app.now()))
			return nil
		},
	}
}

func printRequests(cmd *cobra.Command, app *App, reqs []*domain.ChangeRequest) error {
	names, err := app.names(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatter.FormatRequestList(reqs, names, app.now()))
	return nil
}
