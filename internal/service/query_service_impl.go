package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/repository"
)

// cabQueueRecentApproved is how long CABApproved requests stay on the CAB queue.
const cabQueueRecentApproved = 7 * 24 * time.Hour

type queryService struct {
	requests    repository.ChangeRequestRepo
	approvals   repository.ApprovalRepo
	assignments repository.AssignmentRepo
	comments    repository.CommentRepo
	history     repository.HistoryRepo
	users       repository.UserRepo
}

func NewQueryService(
	requests repository.ChangeRequestRepo,
	approvals repository.ApprovalRepo,
	assignments repository.AssignmentRepo,
	comments repository.CommentRepo,
	history repository.HistoryRepo,
	users repository.UserRepo,
) QueryService {
	return &queryService{
		requests:    requests,
		approvals:   approvals,
		assignments: assignments,
		comments:    comments,
		history:     history,
		users:       users,
	}
}

func (s *queryService) Get(ctx context.Context, ref, viewerID string) (*RequestDetail, error) {
	cr, err := loadRequest(ctx, s.requests, ref)
	if err != nil {
		return nil, err
	}
	viewer, err := s.users.GetByID(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("viewer: %w", err)
	}

	d := &RequestDetail{Request: cr}
	if d.Creator, err = s.users.GetByID(ctx, cr.CreatedByID); err != nil {
		return nil, fmt.Errorf("loading creator: %w", err)
	}
	if d.Approvals, err = s.approvals.ListByChangeRequest(ctx, cr.ID); err != nil {
		return nil, fmt.Errorf("loading approvals: %w", err)
	}
	if d.Assignments, err = s.assignments.ListByChangeRequest(ctx, cr.ID); err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}
	comments, err := s.comments.ListByChangeRequest(ctx, cr.ID)
	if err != nil {
		return nil, fmt.Errorf("loading comments: %w", err)
	}
	d.Comments = visibleComments(comments, viewer)
	if d.History, err = s.history.ListByChangeRequest(ctx, cr.ID); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return d, nil
}

func (s *queryService) ListCreatedBy(ctx context.Context, userID string) ([]*domain.ChangeRequest, error) {
	return s.requests.List(ctx, repository.ChangeRequestFilter{CreatedBy: userID})
}

func (s *queryService) ListAssignedTo(ctx context.Context, userID string) ([]*domain.ChangeRequest, error) {
	return s.requests.List(ctx, repository.ChangeRequestFilter{AssignedTo: userID})
}

// ListPendingApprovalFor returns requests waiting on userID's own decision.
// An approval only counts while the request sits in the matching submitted
// status.
func (s *queryService) ListPendingApprovalFor(ctx context.Context, userID string) ([]*domain.ChangeRequest, error) {
	return s.pendingBy(ctx, userID, userID)
}

func (s *queryService) ListPendingApprovalsByRole(ctx context.Context, userID string) ([]*domain.ChangeRequest, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sup, cab := userID, userID
	if u.IsManager() {
		sup = ""
	}
	if u.IsCABMember {
		cab = ""
	}
	return s.pendingBy(ctx, sup, cab)
}

// pendingBy merges requests with pending supervisor approvals for supApprover
// and pending CAB approvals for cabApprover. An empty approver matches anyone.
func (s *queryService) pendingBy(ctx context.Context, supApprover, cabApprover string) ([]*domain.ChangeRequest, error) {
	sup, err := s.requests.List(ctx, repository.ChangeRequestFilter{
		PendingApprover: supApprover,
		PendingType:     domain.ApprovalSupervisor,
		Statuses:        []domain.Status{domain.StatusSubmittedForSupervisorApproval},
	})
	if err != nil {
		return nil, fmt.Errorf("listing supervisor approvals: %w", err)
	}
	cab, err := s.requests.List(ctx, repository.ChangeRequestFilter{
		PendingApprover: cabApprover,
		PendingType:     domain.ApprovalCAB,
		Statuses:        []domain.Status{domain.StatusSubmittedForCABApproval},
	})
	if err != nil {
		return nil, fmt.Errorf("listing CAB approvals: %w", err)
	}
	return mergeRequests(sup, cab), nil
}

func (s *queryService) CABQueue(ctx context.Context, now time.Time) ([]*domain.ChangeRequest, error) {
	open, err := s.requests.List(ctx, repository.ChangeRequestFilter{Statuses: []domain.Status{
		domain.StatusSupervisorApproved,
		domain.StatusSubmittedForCABApproval,
		domain.StatusScheduled,
		domain.StatusRescheduled,
	}})
	if err != nil {
		return nil, err
	}
	since := now.Add(-cabQueueRecentApproved)
	recent, err := s.requests.List(ctx, repository.ChangeRequestFilter{
		Statuses:     []domain.Status{domain.StatusCABApproved},
		UpdatedSince: &since,
	})
	if err != nil {
		return nil, err
	}
	return mergeRequests(open, recent), nil
}

func (s *queryService) ListByStatus(ctx context.Context, statuses ...domain.Status) ([]*domain.ChangeRequest, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, domain.Invalid("unknown status %q", st)
		}
	}
	return s.requests.List(ctx, repository.ChangeRequestFilter{Statuses: statuses})
}

func (s *queryService) Comments(ctx context.Context, ref, viewerID string) ([]*domain.Comment, error) {
	cr, err := loadRequest(ctx, s.requests, ref)
	if err != nil {
		return nil, err
	}
	viewer, err := s.users.GetByID(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("viewer: %w", err)
	}
	comments, err := s.comments.ListByChangeRequest(ctx, cr.ID)
	if err != nil {
		return nil, err
	}
	return visibleComments(comments, viewer), nil
}

func (s *queryService) History(ctx context.Context, ref string) ([]*domain.History, error) {
	cr, err := loadRequest(ctx, s.requests, ref)
	if err != nil {
		return nil, err
	}
	return s.history.ListByChangeRequest(ctx, cr.ID)
}

func (s *queryService) Calendar(ctx context.Context, from, to time.Time) ([]*domain.ChangeRequest, error) {
	if to.Before(from) {
		return nil, domain.Invalid("calendar range ends before it starts")
	}
	return s.requests.ListScheduledBetween(ctx, from, to)
}

func visibleComments(comments []*domain.Comment, viewer *domain.User) []*domain.Comment {
	out := make([]*domain.Comment, 0, len(comments))
	for _, c := range comments {
		if c.VisibleTo(viewer) {
			out = append(out, c)
		}
	}
	return out
}

// mergeRequests deduplicates by id and orders newest update first.
func mergeRequests(lists ...[]*domain.ChangeRequest) []*domain.ChangeRequest {
	seen := map[string]bool{}
	var out []*domain.ChangeRequest
	for _, list := range lists {
		for _, cr := range list {
			if seen[cr.ID] {
				continue
			}
			seen[cr.ID] = true
			out = append(out, cr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Number > out[j].Number
	})
	return out
}
