package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/service"
	"github.com/spf13/cobra"
)

func newUserCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users, supervisors and capability flags",
	}

	cmd.AddCommand(
		newUserAddCmd(app),
		newUserListCmd(app),
		newUserShowCmd(app),
		newUserSetSupervisorCmd(app),
		newUserFlagCmd(app, "set-cab", "Grant or revoke CAB membership", service.UserService.SetCABMember),
		newUserFlagCmd(app, "set-support", "Grant or revoke support personnel status", service.UserService.SetSupportPersonnel),
		newUserSetRolesCmd(app),
	)

	return cmd
}

func newUserAddCmd(app *App) *cobra.Command {
	var in service.RegisterInput

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Username = args[0]
			u, err := app.Users.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered user %s %s\n", formatter.Bold(u.Username), formatter.TruncID(u.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.FirstName, "first", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last", "", "Last name")
	cmd.Flags().StringVar(&in.Department, "department", "", "Department")

	return cmd
}

func newUserListCmd(app *App) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				users []*domain.User
				err   error
			)
			if role != "" {
				users, err = app.Users.ListByRole(cmd.Context(), domain.Role(role))
			} else {
				users, err = app.Users.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatUserList(users))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Only users holding this role (User, CABMember, Support, Manager, Supervisor, Admin)")

	return cmd
}

func newUserShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user>",
		Short: "Show a user with their supervisor and direct reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := app.Users.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			var sup *domain.User
			if u.SupervisorID != nil {
				if sup, err = app.Users.Get(ctx, *u.SupervisorID); err != nil {
					return fmt.Errorf("loading supervisor: %w", err)
				}
			}
			reports, err := app.Users.Subordinates(ctx, u.ID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatUser(u, sup, reports))
			return nil
		},
	}
}

func newUserSetSupervisorCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-supervisor <user> [supervisor]",
		Short: "Set a user's supervisor; omit the supervisor to clear it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := app.Users.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			var supID *string
			if len(args) == 2 {
				sup, err := app.Users.Resolve(ctx, args[1])
				if err != nil {
					return fmt.Errorf("supervisor: %w", err)
				}
				supID = &sup.ID
			}
			if _, err := app.Users.SetSupervisor(ctx, u.ID, supID); err != nil {
				return err
			}
			if len(args) == 2 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s now reports to %s\n", u.Username, args[1])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared supervisor of %s\n", u.Username)
			}
			return nil
		},
	}
}

func newUserFlagCmd(app *App, use, short string, set func(svc service.UserService, ctx context.Context, userID string, on bool) (*domain.User, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user> [true|false]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			on := true
			if len(args) == 2 {
				v, err := strconv.ParseBool(args[1])
				if err != nil {
					return domain.Invalid("expected true or false, got %q", args[1])
				}
				on = v
			}
			u, err := app.Users.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if u, err = set(app.Users, ctx, u.ID, on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", u.Username)
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatUser(u, nil, nil))
			return nil
		},
	}
}

func newUserSetRolesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-roles <user> [role...]",
		Short: "Replace a user's extra roles (Manager, Supervisor, Admin); no roles clears them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := app.Users.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			roles := make([]domain.Role, 0, len(args)-1)
			for _, r := range args[1:] {
				roles = append(roles, domain.Role(r))
			}
			if u, err = app.Users.SetRoles(ctx, u.ID, roles); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatUser(u, nil, nil))
			return nil
		},
	}
}
