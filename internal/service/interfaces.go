package service

import (
	"context"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
)

// WorkflowService is the change request lifecycle engine. Every method that
// takes a ref accepts either the request id or its CR number. Each
// state-changing call runs in one transaction and appends exactly one
// history entry.
type WorkflowService interface {
	Create(ctx context.Context, actorID string, in CreateInput) (*domain.ChangeRequest, error)
	Update(ctx context.Context, ref, actorID string, in UpdateInput) (*domain.ChangeRequest, error)
	Delete(ctx context.Context, ref, actorID string) error

	SubmitForSupervisorApproval(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error)
	ApproveBySupervisor(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error)
	RejectBySupervisor(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error)

	SubmitForCABApproval(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error)
	ApproveByCAB(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error)
	RejectByCAB(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error)

	Schedule(ctx context.Context, ref, actorID string, in ScheduleInput) (*domain.ChangeRequest, error)
	AssignSupportPersonnel(ctx context.Context, ref, actorID string, in AssignInput) (*domain.Assignment, error)
	RemoveAssignment(ctx context.Context, ref, actorID, assignmentID, reason string) error

	StartImplementation(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error)
	CompleteImplementation(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error)
	FailImplementation(ctx context.Context, ref, actorID, reason string) (*domain.ChangeRequest, error)
	Cancel(ctx context.Context, ref, actorID, reason string) (*domain.ChangeRequest, error)

	AddComment(ctx context.Context, ref, actorID string, in CommentInput) (*domain.Comment, error)
}

// RequestDetail is a change request with its child records.
type RequestDetail struct {
	Request     *domain.ChangeRequest
	Creator     *domain.User
	Approvals   []*domain.Approval
	Assignments []*domain.Assignment
	// Comments are filtered for the viewer.
	Comments []*domain.Comment
	History  []*domain.History
}

type QueryService interface {
	Get(ctx context.Context, ref, viewerID string) (*RequestDetail, error)
	ListCreatedBy(ctx context.Context, userID string) ([]*domain.ChangeRequest, error)
	ListAssignedTo(ctx context.Context, userID string) ([]*domain.ChangeRequest, error)
	ListPendingApprovalFor(ctx context.Context, userID string) ([]*domain.ChangeRequest, error)
	ListPendingApprovalsByRole(ctx context.Context, userID string) ([]*domain.ChangeRequest, error)
	CABQueue(ctx context.Context, now time.Time) ([]*domain.ChangeRequest, error)
	ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.ChangeRequest, error)
	Comments(ctx context.Context, ref, viewerID string) ([]*domain.Comment, error)
	History(ctx context.Context, ref string) ([]*domain.History, error)
	Calendar(ctx context.Context, from, to time.Time) ([]*domain.ChangeRequest, error)
}

// UserService is the identity provider and user administration surface.
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Resolve looks a user up by id, then by username.
	Resolve(ctx context.Context, ref string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
	Subordinates(ctx context.Context, userID string) ([]*domain.User, error)

	SetSupervisor(ctx context.Context, userID string, supervisorID *string) (*domain.User, error)
	SetCABMember(ctx context.Context, userID string, member bool) (*domain.User, error)
	SetSupportPersonnel(ctx context.Context, userID string, support bool) (*domain.User, error)
	SetRoles(ctx context.Context, userID string, roles []domain.Role) (*domain.User, error)
}
