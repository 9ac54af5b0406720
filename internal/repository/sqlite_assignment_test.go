package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentRepo_Lifecycle(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	users := NewSQLiteUserRepo(database)
	requests := NewSQLiteChangeRequestRepo(database)
	assignments := NewSQLiteAssignmentRepo(database)

	author := testutil.NewTestUser("author")
	tech := testutil.NewTestUser("tech", testutil.AsSupport())
	require.NoError(t, users.Create(ctx, author))
	require.NoError(t, users.Create(ctx, tech))
	cr := testutil.NewTestChangeRequest(author.ID, "Swap disks", testutil.WithStatus(domain.StatusScheduled))
	require.NoError(t, requests.Create(ctx, cr))

	now := time.Now().UTC()
	a := domain.NewAssignment("as1", cr.ID, tech.ID, "Implementer", "bring a screwdriver", now)
	require.NoError(t, assignments.Create(ctx, a))

	got, err := assignments.GetByID(ctx, "as1")
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentAssigned, got.Status)
	assert.Equal(t, "bring a screwdriver", got.Notes)

	require.NoError(t, got.Start(now))
	require.NoError(t, assignments.Update(ctx, got))

	byAssignee, err := assignments.ListByAssignee(ctx, tech.ID)
	require.NoError(t, err)
	require.Len(t, byAssignee, 1)
	assert.Equal(t, domain.AssignmentInProgress, byAssignee[0].Status)

	require.NoError(t, assignments.Delete(ctx, "as1"))
	_, err = assignments.GetByID(ctx, "as1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, assignments.Delete(ctx, "as1"), domain.ErrNotFound)

	byRequest, err := assignments.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	assert.Empty(t, byRequest)
}

func TestCommentAndHistoryRepo_Ordering(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	users := NewSQLiteUserRepo(database)
	requests := NewSQLiteChangeRequestRepo(database)
	comments := NewSQLiteCommentRepo(database)
	history := NewSQLiteHistoryRepo(database)

	author := testutil.NewTestUser("author")
	require.NoError(t, users.Create(ctx, author))
	cr := testutil.NewTestChangeRequest(author.ID, "Order check")
	require.NoError(t, requests.Create(ctx, cr))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, comments.Create(ctx, &domain.Comment{ID: "c1", ChangeRequestID: cr.ID, AuthorID: author.ID, Text: "first", CreatedAt: now}))
	require.NoError(t, comments.Create(ctx, &domain.Comment{ID: "c2", ChangeRequestID: cr.ID, AuthorID: author.ID, Text: "second", IsInternal: true, CreatedAt: now}))

	cs, err := comments.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "first", cs[0].Text)
	assert.True(t, cs[1].IsInternal)

	created := &domain.History{ID: "h1", ChangeRequestID: cr.ID, UserID: author.ID, ActionType: domain.ActionCreated,
		Description: "Created", CreatedAt: now}
	submitted := &domain.History{ID: "h2", ChangeRequestID: cr.ID, UserID: author.ID, ActionType: domain.ActionSubmitted,
		Description: "Submitted", CreatedAt: now,
		Changes: []domain.FieldChange{{Field: "status", Before: "draft", After: "submitted_for_supervisor_approval"}}}
	require.NoError(t, history.Append(ctx, created))
	require.NoError(t, history.Append(ctx, submitted))

	hs, err := history.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, domain.ActionSubmitted, hs[0].ActionType, "newest first")
	assert.Equal(t, submitted.Changes, hs[0].Changes)
	assert.Empty(t, hs[1].Changes)
}
