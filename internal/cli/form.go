package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/alexanderramin/crq/internal/cli/formatter"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/service"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// crqHuhTheme returns a huh theme built on the formatter palette.
func crqHuhTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)
	t.Focused.SelectSelector = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorGreen)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(formatter.ColorFg)
	t.Focused.FocusedButton = lipgloss.NewStyle().Foreground(formatter.ColorFg).Background(formatter.ColorHeader).Padding(0, 1)
	t.Focused.BlurredButton = lipgloss.NewStyle().Foreground(formatter.ColorDim).Padding(0, 1)
	t.Focused.TextInput.Cursor = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.TextInput.Prompt = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.TextInput.Text = lipgloss.NewStyle().Foreground(formatter.ColorFg)
	t.Focused.TextInput.Placeholder = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Focused.Description = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Focused.ErrorMessage = lipgloss.NewStyle().Foreground(formatter.ColorRed)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.SelectSelector = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.UnselectedOption = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.TextInput.Prompt = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.TextInput.Text = lipgloss.NewStyle().Foreground(formatter.ColorDim)

	return t
}

func levelOptions[T ~string](values ...T) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(values))
	for _, v := range values {
		opts = append(opts, huh.NewOption(strings.ToUpper(string(v)), string(v)))
	}
	return opts
}

func validateTitle(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("title is required")
	}
	return nil
}

// createRequestForm collects the fields of a new change request. Blank
// classification fields fall back to the medium/normal defaults.
func createRequestForm(in *service.CreateInput) *huh.Form {
	if in.Priority == "" {
		in.Priority = string(domain.PriorityMedium)
	}
	if in.Type == "" {
		in.Type = string(domain.ChangeNormal)
	}
	if in.Impact == "" {
		in.Impact = string(domain.ImpactMedium)
	}
	if in.Risk == "" {
		in.Risk = string(domain.RiskMedium)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&in.Title).Validate(validateTitle),
			huh.NewText().Title("Description").Value(&in.Description),
			huh.NewText().Title("Justification").Description("Why is this change needed?").Value(&in.Justification),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Type").
				Options(levelOptions(domain.ChangeNormal, domain.ChangeStandard, domain.ChangeEmergency)...).
				Value(&in.Type),
			huh.NewSelect[string]().Title("Priority").
				Options(levelOptions(domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityCritical)...).
				Value(&in.Priority),
			huh.NewSelect[string]().Title("Impact").
				Options(levelOptions(domain.ImpactLow, domain.ImpactMedium, domain.ImpactHigh)...).
				Value(&in.Impact),
			huh.NewSelect[string]().Title("Risk").
				Options(levelOptions(domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical)...).
				Value(&in.Risk),
		),
		huh.NewGroup(
			huh.NewText().Title("Risk assessment").Value(&in.RiskAssessment),
			huh.NewText().Title("Backout plan").Description("How is the change rolled back?").Value(&in.BackoutPlan),
		),
	).WithTheme(crqHuhTheme()).WithShowHelp(false)
}

var whenLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseWhen accepts RFC 3339 or a local "YYYY-MM-DD[ HH:MM]" timestamp.
func parseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range whenLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.Invalid("cannot parse time %q (use YYYY-MM-DD HH:MM or RFC 3339)", s)
}

func validateWhen(s string) error {
	_, err := parseWhen(s)
	return err
}

// scheduleForm collects an implementation window.
func scheduleForm(start, end *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Start").Placeholder("2026-05-01 22:00").Value(start).Validate(validateWhen),
			huh.NewInput().Title("End").Placeholder("2026-05-01 23:30").Value(end).Validate(validateWhen),
		),
	).WithTheme(crqHuhTheme()).WithShowHelp(false)
}
