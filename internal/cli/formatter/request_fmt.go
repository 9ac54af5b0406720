package formatter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/service"
)

// Names maps user ids to usernames for display.
type Names map[string]string

// NamesFrom indexes users by id.
func NamesFrom(users []*domain.User) Names {
	n := make(Names, len(users))
	for _, u := range users {
		n[u.ID] = u.Username
	}
	return n
}

// Name returns the username for id, or a truncated id when unknown.
func (n Names) Name(id string) string {
	if name, ok := n[id]; ok {
		return name
	}
	if id == "" {
		return Dim("--")
	}
	return TruncID(id)
}

// FormatRequestList renders change requests as a table.
func FormatRequestList(reqs []*domain.ChangeRequest, names Names, now time.Time) string {
	if len(reqs) == 0 {
		return Dim("No change requests.") + "\n"
	}

	headers := []string{"NUMBER", "TITLE", "STATUS", "PRIORITY", "RISK", "CREATED BY", "UPDATED"}
	rows := make([][]string, 0, len(reqs))
	for _, cr := range reqs {
		rows = append(rows, []string{
			Bold(cr.Number),
			Truncate(cr.Title, 40),
			StatusBadge(cr.Status),
			PriorityBadge(cr.Priority),
			RiskBadge(cr.Risk),
			names.Name(cr.CreatedByID),
			Dim(HumanTimestamp(cr.UpdatedAt, now)),
		})
	}
	return RenderTable(headers, rows)
}

// FormatRequestDetail renders one change request with its approvals,
// assignments and comments.
func FormatRequestDetail(d *service.RequestDetail, names Names, now time.Time) string {
	cr := d.Request
	var b strings.Builder

	field := func(label, value string) {
		b.WriteString(fmt.Sprintf("%s %s\n", Dim(fmt.Sprintf("%-11s", label)), value))
	}
	field("Status", StatusBadge(cr.Status))
	field("Priority", PriorityBadge(cr.Priority))
	field("Risk", RiskBadge(cr.Risk))
	field("Type", string(cr.Type))
	field("Impact", string(cr.Impact))
	field("Created by", names.Name(cr.CreatedByID))
	field("Created", HumanTimestamp(cr.CreatedAt, now))
	field("Window", Window(cr.ScheduledStart, cr.ScheduledEnd))
	if cr.ImplementedAt != nil {
		field("Implemented", HumanTimestamp(*cr.ImplementedAt, now))
	}
	if cr.Status == domain.StatusSubmittedForCABApproval || cr.CAB.Approved > 0 {
		field("CAB", TallyBar(cr.CAB, 10))
	}

	for _, s := range []struct{ label, text string }{
		{"Description", cr.Description},
		{"Justification", cr.Justification},
		{"Risk assessment", cr.RiskAssessment},
		{"Backout plan", cr.BackoutPlan},
	} {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		b.WriteString("\n" + Bold(s.label) + "\n" + s.text + "\n")
	}

	out := RenderBox(cr.Number+"  "+cr.Title, strings.TrimRight(b.String(), "\n")) + "\n"

	if len(d.Approvals) > 0 {
		out += "\n" + Header("Approvals") + "\n" + formatApprovals(d.Approvals, names, now)
	}
	if len(d.Assignments) > 0 {
		out += "\n" + Header("Assignments") + "\n" + formatAssignments(d.Assignments, names)
	}
	if len(d.Comments) > 0 {
		out += "\n" + Header("Comments") + "\n" + FormatComments(d.Comments, names, now)
	}
	return out
}

func formatApprovals(approvals []*domain.Approval, names Names, now time.Time) string {
	rows := make([][]string, 0, len(approvals))
	for _, a := range approvals {
		when := Dim("--")
		if a.ActionedAt != nil {
			when = HumanTimestamp(*a.ActionedAt, now)
		}
		rows = append(rows, []string{
			strings.ToUpper(string(a.Type)),
			names.Name(a.ApproverID),
			approvalBadge(a.Status),
			when,
			orDash(Truncate(a.Comments, 40)),
		})
	}
	return RenderTable([]string{"TYPE", "APPROVER", "STATUS", "ACTIONED", "COMMENTS"}, rows)
}

func approvalBadge(s domain.ApprovalStatus) string {
	switch s {
	case domain.ApprovalApproved:
		return StyleGreen.Render("✔ approved")
	case domain.ApprovalRejected:
		return StyleRed.Render("✖ rejected")
	default:
		return StyleYellow.Render("○ pending")
	}
}

func formatAssignments(assignments []*domain.Assignment, names Names) string {
	rows := make([][]string, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, []string{
			TruncID(a.ID),
			names.Name(a.AssigneeID),
			orDash(a.Role),
			string(a.Status),
			orDash(Truncate(a.Notes, 40)),
		})
	}
	return RenderTable([]string{"ID", "ASSIGNEE", "ROLE", "STATUS", "NOTES"}, rows)
}

// FormatComments renders comments oldest first. Internal comments are marked.
func FormatComments(comments []*domain.Comment, names Names, now time.Time) string {
	if len(comments) == 0 {
		return Dim("No comments.") + "\n"
	}
	var b strings.Builder
	for _, c := range comments {
		meta := fmt.Sprintf("%s · %s", names.Name(c.AuthorID), HumanTimestamp(c.CreatedAt, now))
		if c.IsInternal {
			meta += " " + StylePurple.Render("[internal]")
		}
		b.WriteString(Dim(meta) + "\n")
		b.WriteString("  " + c.Text + "\n")
	}
	return b.String()
}

// FormatHistory renders history entries in the order given, with each
// entry's field changes listed beneath it.
func FormatHistory(entries []*domain.History, names Names, now time.Time) string {
	if len(entries) == 0 {
		return Dim("No history.") + "\n"
	}
	var b strings.Builder
	for _, h := range entries {
		b.WriteString(fmt.Sprintf("%s  %s  %s\n",
			Dim(h.CreatedAt.Local().Format("2006-01-02 15:04")),
			StyleBlue.Render(fmt.Sprintf("%-20s", h.ActionType)),
			names.Name(h.UserID)))
		if h.Description != "" {
			b.WriteString("    " + h.Description + "\n")
		}
		for _, c := range h.Changes {
			b.WriteString(fmt.Sprintf("    %s %s %s %s\n",
				Dim(c.Field+":"), orDash(Truncate(c.Before, 30)), Dim("→"), orDash(Truncate(c.After, 30))))
		}
	}
	return b.String()
}

// FormatCalendar renders scheduled windows ordered by start.
func FormatCalendar(reqs []*domain.ChangeRequest, names Names) string {
	if len(reqs) == 0 {
		return Dim("Nothing scheduled in this range.") + "\n"
	}
	sorted := append([]*domain.ChangeRequest(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ScheduledStart, sorted[j].ScheduledStart
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})

	rows := make([][]string, 0, len(sorted))
	for _, cr := range sorted {
		rows = append(rows, []string{
			Window(cr.ScheduledStart, cr.ScheduledEnd),
			Bold(cr.Number),
			Truncate(cr.Title, 40),
			StatusBadge(cr.Status),
			RiskBadge(cr.Risk),
			names.Name(cr.CreatedByID),
		})
	}
	return RenderTable([]string{"WINDOW", "NUMBER", "TITLE", "STATUS", "RISK", "CREATED BY"}, rows)
}
