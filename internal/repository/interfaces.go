package repository

import (
	"context"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
)

// ChangeRequestFilter narrows List. Zero-valued fields do not filter.
type ChangeRequestFilter struct {
	CreatedBy string
	// AssignedTo matches requests with at least one assignment for the user.
	AssignedTo string
	// PendingApprover matches requests with a Pending approval for the user.
	PendingApprover string
	// PendingType matches requests with a Pending approval of this type.
	PendingType  domain.ApprovalType
	Statuses     []domain.Status
	UpdatedSince *time.Time
}

type ChangeRequestRepo interface {
	Create(ctx context.Context, cr *domain.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error)
	GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error)
	List(ctx context.Context, f ChangeRequestFilter) ([]*domain.ChangeRequest, error)
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*domain.ChangeRequest, error)
	// Update persists cr if its Version still matches the stored row and
	// bumps cr.Version. A stale version yields domain.ErrConflict.
	Update(ctx context.Context, cr *domain.ChangeRequest) error
	Delete(ctx context.Context, id string) error
}

type ApprovalRepo interface {
	Create(ctx context.Context, a *domain.Approval) error
	Update(ctx context.Context, a *domain.Approval) error
	ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.Approval, error)
	// FindPending returns the approver's pending approval of the given type,
	// or domain.ErrNotFound.
	FindPending(ctx context.Context, changeRequestID, approverID string, typ domain.ApprovalType) (*domain.Approval, error)
	ListPendingByApprover(ctx context.Context, approverID string) ([]*domain.Approval, error)
}

type AssignmentRepo interface {
	Create(ctx context.Context, a *domain.Assignment) error
	GetByID(ctx context.Context, id string) (*domain.Assignment, error)
	Update(ctx context.Context, a *domain.Assignment) error
	Delete(ctx context.Context, id string) error
	ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.Assignment, error)
	ListByAssignee(ctx context.Context, assigneeID string) ([]*domain.Assignment, error)
}

type CommentRepo interface {
	Create(ctx context.Context, c *domain.Comment) error
	ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.Comment, error)
}

// HistoryRepo is append-only.
type HistoryRepo interface {
	Append(ctx context.Context, h *domain.History) error
	ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.History, error)
}

type UserRepo interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	ListCABMembers(ctx context.Context) ([]*domain.User, error)
	ListSubordinates(ctx context.Context, supervisorID string) ([]*domain.User, error)
	SupervisorOf(ctx context.Context, userID string) (*string, error)
	Update(ctx context.Context, u *domain.User) error
}

type RequestSequenceRepo interface {
	NextRequestSeq(ctx context.Context, year int) (int, error)
}
