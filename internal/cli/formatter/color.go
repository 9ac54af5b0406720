package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorPurple = lipgloss.Color("#d3869b")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBlue   = lipgloss.NewStyle().Foreground(ColorBlue)
	StylePurple = lipgloss.NewStyle().Foreground(ColorPurple)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold   = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// StatusStyle groups statuses by where they sit in the lifecycle.
func StatusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusDraft:
		return StyleDim
	case domain.StatusSubmittedForSupervisorApproval, domain.StatusSubmittedForCABApproval:
		return StyleYellow
	case domain.StatusSupervisorApproved, domain.StatusCABApproved:
		return StyleBlue
	case domain.StatusScheduled, domain.StatusRescheduled:
		return StylePurple
	case domain.StatusInProgress, domain.StatusCompleted:
		return StyleGreen
	case domain.StatusSupervisorRejected, domain.StatusCABRejected, domain.StatusFailed:
		return StyleRed
	default:
		return StyleDim
	}
}

// StatusBadge renders a status label such as "● Scheduled".
func StatusBadge(s domain.Status) string {
	glyph := "●"
	switch {
	case s == domain.StatusCompleted:
		glyph = "✔"
	case s == domain.StatusCancelled || s == domain.StatusFailed:
		glyph = "✖"
	case s == domain.StatusDraft:
		glyph = "○"
	}
	return StatusStyle(s).Render(glyph + " " + s.Label())
}

func PriorityBadge(p domain.Priority) string {
	label := strings.ToUpper(string(p))
	switch p {
	case domain.PriorityCritical:
		return StyleRed.Bold(true).Render(label)
	case domain.PriorityHigh:
		return StyleRed.Render(label)
	case domain.PriorityMedium:
		return StyleYellow.Render(label)
	default:
		return StyleDim.Render(label)
	}
}

func RiskBadge(r domain.RiskLevel) string {
	label := strings.ToUpper(string(r))
	switch r {
	case domain.RiskCritical, domain.RiskHigh:
		return StyleRed.Render(label)
	case domain.RiskMedium:
		return StyleYellow.Render(label)
	default:
		return StyleGreen.Render(label)
	}
}

// Header renders a section header with the orange header style and an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", lipgloss.Width(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

func Dim(text string) string {
	return StyleDim.Render(text)
}

func Bold(text string) string {
	return StyleBold.Render(text)
}
