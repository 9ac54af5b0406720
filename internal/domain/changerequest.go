package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChangeRequest is the workflow subject. Status changes only through the
// transition methods below.
type ChangeRequest struct {
	ID          string
	Number      string
	Title       string
	Description string

	Justification  string
	RiskAssessment string
	BackoutPlan    string

	Status   Status
	Priority Priority
	Type     ChangeType
	Impact   Impact
	Risk     RiskLevel

	CreatedByID string

	// Schedule
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	ImplementedAt  *time.Time

	CAB CABTally

	// Version is bumped on every successful update and guards against
	// concurrent writers.
	Version int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CABTally counts CAB approvals for the current CAB round. All requested
// approvers must approve; any single rejection rejects the request.
type CABTally struct {
	Pending  int
	Approved int
}

// Cleared reports whether no requested CAB approval is outstanding.
func (t CABTally) Cleared() bool {
	return t.Pending <= 0
}

// Details holds the editable descriptive fields of a change request.
type Details struct {
	Title          string
	Description    string
	Justification  string
	RiskAssessment string
	BackoutPlan    string
	Priority       Priority
	Type           ChangeType
	Impact         Impact
	Risk           RiskLevel
}

// NewChangeRequest builds a Draft request owned by creatorID.
func NewChangeRequest(id, number, creatorID string, d Details, now time.Time) *ChangeRequest {
	cr := &ChangeRequest{
		ID:          id,
		Number:      number,
		Status:      StatusDraft,
		CreatedByID: creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	cr.setDetails(d)
	return cr
}

func (cr *ChangeRequest) setDetails(d Details) {
	cr.Title = strings.TrimSpace(d.Title)
	cr.Description = strings.TrimSpace(d.Description)
	cr.Justification = strings.TrimSpace(d.Justification)
	cr.RiskAssessment = strings.TrimSpace(d.RiskAssessment)
	cr.BackoutPlan = strings.TrimSpace(d.BackoutPlan)
	cr.Priority = Priority(CoalesceStr(string(d.Priority), string(PriorityMedium)))
	cr.Type = ChangeType(CoalesceStr(string(d.Type), string(ChangeNormal)))
	cr.Impact = Impact(CoalesceStr(string(d.Impact), string(ImpactMedium)))
	cr.Risk = RiskLevel(CoalesceStr(string(d.Risk), string(RiskMedium)))
}

// Details returns the editable fields.
func (cr *ChangeRequest) Details() Details {
	return Details{
		Title:          cr.Title,
		Description:    cr.Description,
		Justification:  cr.Justification,
		RiskAssessment: cr.RiskAssessment,
		BackoutPlan:    cr.BackoutPlan,
		Priority:       cr.Priority,
		Type:           cr.Type,
		Impact:         cr.Impact,
		Risk:           cr.Risk,
	}
}

// IsCreator reports whether userID created the request.
func (cr *ChangeRequest) IsCreator(userID string) bool {
	return cr.CreatedByID == userID
}

// Edit replaces the descriptive fields. Only drafts can be edited.
func (cr *ChangeRequest) Edit(d Details, now time.Time) error {
	if err := DefaultPolicy().Check(OpUpdate, cr.Status); err != nil {
		return err
	}
	cr.setDetails(d)
	cr.UpdatedAt = now
	return nil
}

// CheckDeletable returns an error unless the request is still a draft.
func (cr *ChangeRequest) CheckDeletable() error {
	return DefaultPolicy().Check(OpDelete, cr.Status)
}

func (cr *ChangeRequest) SubmitForSupervisorApproval(now time.Time) error {
	return cr.fire(DefaultPolicy(), OpSubmitForSupervisorApproval, StatusSubmittedForSupervisorApproval, now)
}

func (cr *ChangeRequest) ApproveBySupervisor(now time.Time) error {
	return cr.fire(DefaultPolicy(), OpApproveBySupervisor, StatusSupervisorApproved, now)
}

func (cr *ChangeRequest) RejectBySupervisor(now time.Time) error {
	return cr.fire(DefaultPolicy(), OpRejectBySupervisor, StatusSupervisorRejected, now)
}

// SubmitForCABApproval opens a CAB round expecting pendingApprovers approvals.
func (cr *ChangeRequest) SubmitForCABApproval(p Policy, pendingApprovers int, now time.Time) error {
	if err := cr.fire(p, OpSubmitForCABApproval, StatusSubmittedForCABApproval, now); err != nil {
		return err
	}
	cr.CAB = CABTally{Pending: pendingApprovers}
	return nil
}

// RecordCABApproval counts one CAB approval. heldPending is true when the
// approver had a pending CAB approval on this request. The request becomes
// CABApproved once no requested approval remains pending.
func (cr *ChangeRequest) RecordCABApproval(heldPending bool, now time.Time) (cleared bool, err error) {
	if err := DefaultPolicy().Check(OpApproveByCAB, cr.Status); err != nil {
		return false, err
	}
	if heldPending {
		if cr.CAB.Pending <= 0 {
			return false, fmt.Errorf("%w: CAB tally has no pending approvals", ErrConflict)
		}
		cr.CAB.Pending--
	}
	cr.CAB.Approved++
	cr.UpdatedAt = now
	if !cr.CAB.Cleared() {
		return false, nil
	}
	if err := cr.moveTo(StatusCABApproved, now); err != nil {
		return false, err
	}
	return true, nil
}

func (cr *ChangeRequest) RejectByCAB(now time.Time) error {
	return cr.fire(DefaultPolicy(), OpRejectByCAB, StatusCABRejected, now)
}

// Schedule sets the implementation window. The first schedule yields
// Scheduled, any later one Rescheduled. The returned action labels the
// history entry.
func (cr *ChangeRequest) Schedule(start, end, now time.Time) (ActionType, error) {
	if err := DefaultPolicy().Check(OpSchedule, cr.Status); err != nil {
		return "", err
	}
	if start.After(end) {
		return "", Invalid("start date %s is after end date %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if start.Before(now) {
		return "", Invalid("start date %s is in the past", start.Format(time.RFC3339))
	}

	action, next := ActionScheduled, StatusScheduled
	if cr.Status == StatusScheduled || cr.Status == StatusRescheduled {
		action, next = ActionRescheduled, StatusRescheduled
	}
	if err := cr.moveTo(next, now); err != nil {
		return "", err
	}
	s, e := start.UTC(), end.UTC()
	cr.ScheduledStart = &s
	cr.ScheduledEnd = &e
	return action, nil
}

func (cr *ChangeRequest) StartImplementation(now time.Time) error {
	return cr.fire(DefaultPolicy(), OpStartImplementation, StatusInProgress, now)
}

func (cr *ChangeRequest) CompleteImplementation(now time.Time) error {
	if err := cr.fire(DefaultPolicy(), OpCompleteImplementation, StatusCompleted, now); err != nil {
		return err
	}
	cr.ImplementedAt = &now
	return nil
}

func (cr *ChangeRequest) FailImplementation(now time.Time) error {
	return cr.fire(DefaultPolicy(), OpFailImplementation, StatusFailed, now)
}

func (cr *ChangeRequest) Cancel(now time.Time) error {
	return cr.fire(DefaultPolicy(), OpCancel, StatusCancelled, now)
}

func (cr *ChangeRequest) fire(p Policy, op Operation, to Status, now time.Time) error {
	if err := p.Check(op, cr.Status); err != nil {
		return err
	}
	return cr.moveTo(to, now)
}

func (cr *ChangeRequest) moveTo(to Status, now time.Time) error {
	if !CanTransition(cr.Status, to) {
		return fmt.Errorf("%w: no transition from %s to %s", ErrInvalidTransition, cr.Status.Label(), to.Label())
	}
	cr.Status = to
	cr.UpdatedAt = now
	return nil
}

// Clone returns a copy safe to keep as a before-image.
func (cr *ChangeRequest) Clone() *ChangeRequest {
	c := *cr
	c.ScheduledStart = cloneTime(cr.ScheduledStart)
	c.ScheduledEnd = cloneTime(cr.ScheduledEnd)
	c.ImplementedAt = cloneTime(cr.ImplementedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
