package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/service"
	"github.com/spf13/cobra"
)

// newWorkflowCmds returns the top-level lifecycle verbs.
func newWorkflowCmds(app *App) []*cobra.Command {
	return []*cobra.Command{
		newTransitionCmd(app, "submit", "Submit a draft for supervisor approval",
			func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
				return app.Workflow.SubmitForSupervisorApproval(ctx, ref, actorID)
			}),
		newDecisionCmd(app, "approve", "Approve as the creator's supervisor", service.WorkflowService.ApproveBySupervisor),
		newDecisionCmd(app, "reject", "Reject as the creator's supervisor", service.WorkflowService.RejectBySupervisor),
		newTransitionCmd(app, "submit-cab", "Send a request to the change advisory board",
			func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
				return app.Workflow.SubmitForCABApproval(ctx, ref, actorID)
			}),
		newDecisionCmd(app, "cab-approve", "Record a CAB member's approval", service.WorkflowService.ApproveByCAB),
		newDecisionCmd(app, "cab-reject", "Reject on behalf of the CAB", service.WorkflowService.RejectByCAB),
		newScheduleCmd(app),
		newAssignCmd(app),
		newUnassignCmd(app),
		newTransitionCmd(app, "start", "Start implementation",
			func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
				return app.Workflow.StartImplementation(ctx, ref, actorID)
			}),
		newTransitionCmd(app, "complete", "Mark implementation complete",
			func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
				return app.Workflow.CompleteImplementation(ctx, ref, actorID)
			}),
		newReasonCmd(app, "fail", "Mark implementation failed", service.WorkflowService.FailImplementation),
		newReasonCmd(app, "cancel", "Cancel a change request", service.WorkflowService.Cancel),
		newCommentCmd(app),
	}
}

func printTransition(cmd *cobra.Command, cr *domain.ChangeRequest) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", formatter.Bold(cr.Number), formatter.Dim("→"), formatter.StatusBadge(cr.Status))
}

func newTransitionCmd(app *App, use, short string, run func(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <cr>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			cr, err := run(ctx, args[0], actor.ID)
			if err != nil {
				return err
			}
			printTransition(cmd, cr)
			return nil
		},
	}
}

type textOp func(svc service.WorkflowService, ctx context.Context, ref, actorID, text string) (*domain.ChangeRequest, error)

// newDecisionCmd builds approve/reject commands with optional comments.
func newDecisionCmd(app *App, use, short string, op textOp) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   use + " <cr>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			cr, err := op(app.Workflow, ctx, args[0], actor.ID, comment)
			if err != nil {
				return err
			}
			printTransition(cmd, cr)
			if cr.Status == domain.StatusSubmittedForCABApproval {
				fmt.Fprintln(cmd.OutOrStdout(), formatter.Dim(fmt.Sprintf("%d CAB approval(s) still pending", cr.CAB.Pending)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Comments recorded on the approval")

	return cmd
}

// newReasonCmd builds fail/cancel, which require a reason.
func newReasonCmd(app *App, use, short string, op textOp) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use + " <cr>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			cr, err := op(app.Workflow, ctx, args[0], actor.ID, reason)
			if err != nil {
				return err
			}
			printTransition(cmd, cr)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason (required)")

	return cmd
}

func newScheduleCmd(app *App) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "schedule <cr>",
		Short: "Set or move the implementation window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			if (start == "" || end == "") && app.interactive() {
				if err := scheduleForm(&start, &end).RunWithContext(ctx); err != nil {
					return err
				}
			}
			if start == "" || end == "" {
				return domain.Invalid("both --start and --end are required")
			}
			s, err := parseWhen(start)
			if err != nil {
				return err
			}
			e, err := parseWhen(end)
			if err != nil {
				return err
			}
			cr, err := app.Workflow.Schedule(ctx, args[0], actor.ID, service.ScheduleInput{Start: s, End: e})
			if err != nil {
				return err
			}
			printTransition(cmd, cr)
			fmt.Fprintln(cmd.OutOrStdout(), formatter.Window(cr.ScheduledStart, cr.ScheduledEnd))
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Window start (YYYY-MM-DD HH:MM or RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "Window end (YYYY-MM-DD HH:MM or RFC 3339)")

	return cmd
}

func newAssignCmd(app *App) *cobra.Command {
	var in service.AssignInput

	cmd := &cobra.Command{
		Use:   "assign <cr> <user>",
		Short: "Assign support personnel to implement a change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			in.AssigneeID = args[1]
			a, err := app.Workflow.AssignSupportPersonnel(ctx, args[0], actor.ID, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s %s\n", args[1], formatter.Bold(args[0]), formatter.TruncID(a.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Role, "role", "", "Role in the implementation (e.g. DBA, network)")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Notes for the assignee")

	return cmd
}

// resolveAssignment matches input against a request's assignments by id,
// unique id prefix, or assignee username.
func resolveAssignment(d *service.RequestDetail, names formatter.Names, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", domain.Invalid("an assignment id or assignee username is required")
	}
	var matches []string
	for _, a := range d.Assignments {
		if a.ID == input {
			return a.ID, nil
		}
		if strings.HasPrefix(a.ID, input) || names[a.AssigneeID] == input {
			matches = append(matches, a.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("assignment %q on %s: %w", input, d.Request.Number, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", domain.Invalid("assignment %q is ambiguous (%d matches)", input, len(matches))
	}
}

func newUnassignCmd(app *App) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "unassign <cr> <assignment|user>",
		Short: "Remove an assignment from a change request",
		Args:  cobra.ExactArgs(2),
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
			id, err := resolveAssignment(d, names, args[1])
			if err != nil {
				return err
			}
			if err := app.Workflow.RemoveAssignment(ctx, d.Request.ID, actor.ID, id, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed assignment %s from %s\n", formatter.TruncID(id), formatter.Bold(d.Request.Number))
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the assignment is removed")

	return cmd
}

func newCommentCmd(app *App) *cobra.Command {
	var internal bool

	cmd := &cobra.Command{
		Use:   "comment <cr> <text...>",
		Short: "Add a comment to a change request",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := app.actor(ctx)
			if err != nil {
				return err
			}
			in := service.CommentInput{Text: strings.Join(args[1:], " "), Internal: internal}
			if _, err := app.Workflow.AddComment(ctx, args[0], actor.ID, in); err != nil {
				return err
			}
			label := "Comment added"
			if internal {
				label = "Internal comment added"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s to %s\n", label, formatter.Bold(args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&internal, "internal", false, "Visible to CAB members only")

	return cmd
}
