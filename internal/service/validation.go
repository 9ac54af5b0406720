package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/go-playground/validator/v10"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("priority", inSet(domain.ValidPriorities))
	_ = v.RegisterValidation("change_type", inSet(domain.ValidChangeTypes))
	_ = v.RegisterValidation("impact", inSet(domain.ValidImpacts))
	_ = v.RegisterValidation("risk", inSet(domain.ValidRiskLevels))
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	return v
}

func inSet(set map[string]bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return set[fl.Field().String()]
	}
}

// validateInput runs struct validation and folds every field failure into a
// single domain.ErrValidation.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating input: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return domain.Invalid("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "email":
		return fe.Field() + " must be a valid email address"
	case "priority", "change_type", "impact", "risk":
		return fmt.Sprintf("%s %q is not a valid %s", fe.Field(), fe.Value(), fe.Tag())
	default:
		return fe.Field() + " is invalid"
	}
}

func trimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CreateInput is the data for a new change request.
type CreateInput struct {
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=10000"`
	Justification  string `json:"justification" validate:"max=10000"`
	RiskAssessment string `json:"risk_assessment" validate:"max=10000"`
	BackoutPlan    string `json:"backout_plan" validate:"max=10000"`
	Priority       string `json:"priority" validate:"omitempty,priority"`
	Type           string `json:"type" validate:"omitempty,change_type"`
	Impact         string `json:"impact" validate:"omitempty,impact"`
	Risk           string `json:"risk" validate:"omitempty,risk"`
}

func (in *CreateInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Priority = trimLower(in.Priority)
	in.Type = trimLower(in.Type)
	in.Impact = trimLower(in.Impact)
	in.Risk = trimLower(in.Risk)
}

func (in CreateInput) details() domain.Details {
	return domain.Details{
		Title:          in.Title,
		Description:    in.Description,
		Justification:  in.Justification,
		RiskAssessment: in.RiskAssessment,
		BackoutPlan:    in.BackoutPlan,
		Priority:       domain.Priority(in.Priority),
		Type:           domain.ChangeType(in.Type),
		Impact:         domain.Impact(in.Impact),
		Risk:           domain.RiskLevel(in.Risk),
	}
}

// UpdateInput edits a draft. Nil fields are left unchanged.
type UpdateInput struct {
	Title          *string `json:"title" validate:"omitnil,min=1,max=200"`
	Description    *string `json:"description" validate:"omitnil,max=10000"`
	Justification  *string `json:"justification" validate:"omitnil,max=10000"`
	RiskAssessment *string `json:"risk_assessment" validate:"omitnil,max=10000"`
	BackoutPlan    *string `json:"backout_plan" validate:"omitnil,max=10000"`
	Priority       *string `json:"priority" validate:"omitnil,priority"`
	Type           *string `json:"type" validate:"omitnil,change_type"`
	Impact         *string `json:"impact" validate:"omitnil,impact"`
	Risk           *string `json:"risk" validate:"omitnil,risk"`
}

func (in *UpdateInput) Normalize() {
	for _, p := range []*string{in.Title} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	for _, p := range []*string{in.Priority, in.Type, in.Impact, in.Risk} {
		if p != nil {
			*p = trimLower(*p)
		}
	}
}

func (in UpdateInput) apply(d domain.Details) domain.Details {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&d.Title, in.Title)
	set(&d.Description, in.Description)
	set(&d.Justification, in.Justification)
	set(&d.RiskAssessment, in.RiskAssessment)
	set(&d.BackoutPlan, in.BackoutPlan)
	if in.Priority != nil {
		d.Priority = domain.Priority(*in.Priority)
	}
	if in.Type != nil {
		d.Type = domain.ChangeType(*in.Type)
	}
	if in.Impact != nil {
		d.Impact = domain.Impact(*in.Impact)
	}
	if in.Risk != nil {
		d.Risk = domain.RiskLevel(*in.Risk)
	}
	return d
}

// ScheduleInput is an implementation window. Start may equal End.
type ScheduleInput struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

type AssignInput struct {
	AssigneeID string `json:"assignee" validate:"required"`
	Role       string `json:"role" validate:"max=100"`
	Notes      string `json:"notes" validate:"max=2000"`
}

func (in *AssignInput) Normalize() {
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)
	in.Role = strings.TrimSpace(in.Role)
	in.Notes = strings.TrimSpace(in.Notes)
}

type CommentInput struct {
	Text     string `json:"text" validate:"required,max=5000"`
	Internal bool   `json:"internal"`
}

func (in *CommentInput) Normalize() {
	in.Text = strings.TrimSpace(in.Text)
}

type reasonInput struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (in *reasonInput) Normalize() {
	in.Reason = strings.TrimSpace(in.Reason)
}

// requireReason trims reason and rejects it when nothing is left.
func requireReason(reason string) (string, error) {
	in := reasonInput{Reason: reason}
	in.Normalize()
	if err := validateInput(in); err != nil {
		return "", err
	}
	return in.Reason, nil
}

type RegisterInput struct {
	Username   string `json:"username" validate:"required,min=2,max=64,username"`
	Email      string `json:"email" validate:"omitempty,email"`
	FirstName  string `json:"first_name" validate:"max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	Department string `json:"department" validate:"max=100"`
}

func (in *RegisterInput) Normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Department = strings.TrimSpace(in.Department)
}
