package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wI2L/jsondiff"
)

// History is an immutable audit record of one lifecycle event.
type History struct {
	ID              string
	ChangeRequestID string
	UserID          string
	ActionType      ActionType
	Description     string
	Changes         []FieldChange
	CreatedAt       time.Time
}

// FieldChange is one field-level before/after pair. An empty Before means the
// field was unset; an empty After means it was cleared.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// NewHistory builds a history entry with the field-level diff between before
// and after. before is nil for creation events.
func NewHistory(id, changeRequestID, userID string, action ActionType, description string, before, after *ChangeRequest, now time.Time) (*History, error) {
	var changes []FieldChange
	if after != nil {
		var err error
		changes, err = DiffChangeRequests(before, after)
		if err != nil {
			return nil, err
		}
	}
	return &History{
		ID:              id,
		ChangeRequestID: changeRequestID,
		UserID:          userID,
		ActionType:      action,
		Description:     description,
		Changes:         changes,
		CreatedAt:       now,
	}, nil
}

// Snapshot flattens the persistent fields of a change request. Unset
// fields are omitted. Navigation data (approvals, comments) never appears.
func Snapshot(cr *ChangeRequest) map[string]any {
	out := map[string]any{}
	if cr == nil {
		return out
	}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	putTime := func(k string, t *time.Time) {
		if t != nil {
			out[k] = t.UTC().Format(time.RFC3339)
		}
	}
	put("number", cr.Number)
	put("title", cr.Title)
	put("description", cr.Description)
	put("justification", cr.Justification)
	put("risk_assessment", cr.RiskAssessment)
	put("backout_plan", cr.BackoutPlan)
	put("status", string(cr.Status))
	put("priority", string(cr.Priority))
	put("type", string(cr.Type))
	put("impact", string(cr.Impact))
	put("risk", string(cr.Risk))
	put("created_by", cr.CreatedByID)
	putTime("scheduled_start", cr.ScheduledStart)
	putTime("scheduled_end", cr.ScheduledEnd)
	putTime("implemented_at", cr.ImplementedAt)
	if cr.CAB != (CABTally{}) {
		out["cab_pending"] = strconv.Itoa(cr.CAB.Pending)
		out["cab_approved"] = strconv.Itoa(cr.CAB.Approved)
	}
	return out
}

// DiffChangeRequests returns the field-level changes from before to after,
// sorted by field name. The changes are read off an invertible JSON patch
// between the two snapshots: the test op preceding a replace or remove
// carries the old value.
func DiffChangeRequests(before, after *ChangeRequest) ([]FieldChange, error) {
	patch, err := jsondiff.Compare(Snapshot(before), Snapshot(after), jsondiff.Invertible())
	if err != nil {
		return nil, fmt.Errorf("diffing change request snapshots: %w", err)
	}

	var changes []FieldChange
	tested := map[string]any{}
	for _, op := range patch {
		field := strings.TrimPrefix(op.Path, "/")
		switch op.Type {
		case jsondiff.OperationTest:
			tested[op.Path] = op.Value
		case jsondiff.OperationAdd:
			changes = append(changes, FieldChange{Field: field, After: patchString(op.Value)})
		case jsondiff.OperationRemove:
			changes = append(changes, FieldChange{Field: field, Before: patchString(oldValue(op, tested))})
		case jsondiff.OperationReplace:
			if field == "" {
				return nil, fmt.Errorf("diffing change request snapshots: unexpected whole-document replace")
			}
			changes = append(changes, FieldChange{
				Field:  field,
				Before: patchString(oldValue(op, tested)),
				After:  patchString(op.Value),
			})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes, nil
}

func oldValue(op jsondiff.Operation, tested map[string]any) any {
	if v, ok := tested[op.Path]; ok {
		return v
	}
	return op.OldValue
}

func patchString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Change returns the change recorded for field, if any.
func (h *History) Change(field string) (FieldChange, bool) {
	for _, c := range h.Changes {
		if c.Field == field {
			return c, true
		}
	}
	return FieldChange{}, false
}
