package domain

import (
	"fmt"
	"time"
)

// Assignment binds a support person to the implementation of a request.
type Assignment struct {
	ID              string
	ChangeRequestID string
	AssigneeID      string
	Role            string
	Notes           string
	Status          AssignmentStatus
	AssignedAt      time.Time
	UpdatedAt       time.Time
}

func NewAssignment(id, changeRequestID, assigneeID, role, notes string, now time.Time) *Assignment {
	return &Assignment{
		ID:              id,
		ChangeRequestID: changeRequestID,
		AssigneeID:      assigneeID,
		Role:            role,
		Notes:           notes,
		Status:          AssignmentAssigned,
		AssignedAt:      now,
		UpdatedAt:       now,
	}
}

// Start moves an Assigned assignment to InProgress.
func (a *Assignment) Start(now time.Time) error {
	if a.Status != AssignmentAssigned {
		return fmt.Errorf("%w: assignment is %s", ErrInvalidTransition, a.Status)
	}
	a.Status = AssignmentInProgress
	a.UpdatedAt = now
	return nil
}

// Complete closes the assignment. Cancelled assignments stay cancelled.
func (a *Assignment) Complete(now time.Time) bool {
	if a.Status == AssignmentCompleted || a.Status == AssignmentCancelled {
		return false
	}
	a.Status = AssignmentCompleted
	a.UpdatedAt = now
	return true
}

// Cancel abandons an open assignment.
func (a *Assignment) Cancel(now time.Time) bool {
	if a.Status == AssignmentCompleted || a.Status == AssignmentCancelled {
		return false
	}
	a.Status = AssignmentCancelled
	a.UpdatedAt = now
	return true
}
