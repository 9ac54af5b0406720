package service

import (
	"context"
	"errors"
	"strings"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/repository"
)

// txRepos are the repositories bound to one transaction.
type txRepos struct {
	requests    repository.ChangeRequestRepo
	approvals   repository.ApprovalRepo
	assignments repository.AssignmentRepo
	comments    repository.CommentRepo
	history     repository.HistoryRepo
	users       repository.UserRepo
	sequences   repository.RequestSequenceRepo
}

func newTxRepos(tx db.DBTX) *txRepos {
	return &txRepos{
		requests:    repository.NewSQLiteChangeRequestRepo(tx),
		approvals:   repository.NewSQLiteApprovalRepo(tx),
		assignments: repository.NewSQLiteAssignmentRepo(tx),
		comments:    repository.NewSQLiteCommentRepo(tx),
		history:     repository.NewSQLiteHistoryRepo(tx),
		users:       repository.NewSQLiteUserRepo(tx),
		sequences:   repository.NewSQLiteRequestSequenceRepo(tx),
	}
}

// loadRequest resolves ref as an id first, then as a CR number.
func loadRequest(ctx context.Context, requests repository.ChangeRequestRepo, ref string) (*domain.ChangeRequest, error) {
	ref = strings.TrimSpace(ref)
	cr, err := requests.GetByID(ctx, ref)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return cr, err
	}
	if _, _, ok := domain.ParseRequestNumber(strings.ToUpper(ref)); ok {
		return requests.GetByNumber(ctx, ref)
	}
	return nil, err
}

// loadUser resolves ref as an id first, then as a username.
func loadUser(ctx context.Context, users repository.UserRepo, ref string) (*domain.User, error) {
	ref = strings.TrimSpace(ref)
	u, err := users.GetByID(ctx, ref)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return u, err
	}
	return users.GetByUsername(ctx, ref)
}

func hasAssignment(assignments []*domain.Assignment, userID string, status domain.AssignmentStatus) bool {
	for _, a := range assignments {
		if a.AssigneeID == userID && a.Status == status {
			return true
		}
	}
	return false
}
