package domain

import (
	"fmt"
	"time"
)

// Approval is one requested sign-off on a change request.
type Approval struct {
	ID              string
	ChangeRequestID string
	ApproverID      string
	Type            ApprovalType
	Status          ApprovalStatus
	Comments        string
	RequestedAt     time.Time
	ActionedAt      *time.Time
}

// NewPendingApproval requests a sign-off from approverID.
func NewPendingApproval(id, changeRequestID, approverID string, typ ApprovalType, now time.Time) *Approval {
	return &Approval{
		ID:              id,
		ChangeRequestID: changeRequestID,
		ApproverID:      approverID,
		Type:            typ,
		Status:          ApprovalPending,
		RequestedAt:     now,
	}
}

func (a *Approval) IsPending() bool {
	return a.Status == ApprovalPending
}

// Approve records the approver's sign-off. An approval is actioned once.
func (a *Approval) Approve(comments string, now time.Time) error {
	return a.action(ApprovalApproved, comments, now)
}

// Reject records the approver's refusal. An approval is actioned once.
func (a *Approval) Reject(comments string, now time.Time) error {
	return a.action(ApprovalRejected, comments, now)
}

func (a *Approval) action(to ApprovalStatus, comments string, now time.Time) error {
	if a.Status != ApprovalPending {
		return fmt.Errorf("%w: approval already %s", ErrInvalidTransition, a.Status)
	}
	a.Status = to
	a.Comments = comments
	a.ActionedAt = &now
	return nil
}
