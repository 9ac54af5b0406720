package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/crq/internal/domain"
)

func roleList(u *domain.User) string {
	roles := u.EffectiveRoles()
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		switch r {
		case domain.RoleUser:
			continue
		case domain.RoleCABMember:
			parts = append(parts, StylePurple.Render(string(r)))
		case domain.RoleSupport:
			parts = append(parts, StyleGreen.Render(string(r)))
		default:
			parts = append(parts, StyleBlue.Render(string(r)))
		}
	}
	if len(parts) == 0 {
		return Dim(string(domain.RoleUser))
	}
	return strings.Join(parts, ", ")
}

// FormatUserList renders users as a table.
func FormatUserList(users []*domain.User) string {
	if len(users) == 0 {
		return Dim("No users.") + "\n"
	}
	names := NamesFrom(users)
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		sup := Dim("--")
		if u.SupervisorID != nil {
			sup = names.Name(*u.SupervisorID)
		}
		rows = append(rows, []string{
			Bold(u.Username),
			orDash(u.FullName()),
			orDash(u.Department),
			sup,
			roleList(u),
		})
	}
	return RenderTable([]string{"USERNAME", "NAME", "DEPARTMENT", "SUPERVISOR", "ROLES"}, rows)
}

// FormatUser renders one user with their supervisor and direct reports.
func FormatUser(u *domain.User, supervisor *domain.User, subordinates []*domain.User) string {
	var b strings.Builder
	field := func(label, value string) {
		b.WriteString(fmt.Sprintf("%s %s\n", Dim(fmt.Sprintf("%-11s", label)), value))
	}
	field("ID", u.ID)
	field("Name", orDash(u.FullName()))
	field("Email", orDash(u.Email))
	field("Department", orDash(u.Department))
	if supervisor != nil {
		field("Supervisor", supervisor.Username)
	} else {
		field("Supervisor", Dim("--"))
	}
	field("Roles", roleList(u))
	if len(subordinates) > 0 {
		reports := make([]string, 0, len(subordinates))
		for _, s := range subordinates {
			reports = append(reports, s.Username)
		}
		field("Reports", strings.Join(reports, ", "))
	}
	return RenderBox(u.Username, strings.TrimRight(b.String(), "\n")) + "\n"
}
