package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/repository"
	"github.com/alexanderramin/crq/internal/testutil"
	"github.com/stretchr/testify/require"
)

// testEnv wires the services over one in-memory database.
type testEnv struct {
	t   *testing.T
	ctx context.Context
	db  *sql.DB

	wf    WorkflowService
	query QueryService
	users UserService

	userRepo    repository.UserRepo
	requests    repository.ChangeRequestRepo
	approvals   repository.ApprovalRepo
	assignments repository.AssignmentRepo
	comments    repository.CommentRepo
	history     repository.HistoryRepo
}

func newTestEnv(t *testing.T, observers ...UseCaseObserver) *testEnv {
	return newTestEnvWithPolicy(t, domain.DefaultPolicy(), observers...)
}

func newTestEnvWithPolicy(t *testing.T, policy domain.Policy, observers ...UseCaseObserver) *testEnv {
	t.Helper()
	database := testutil.NewTestDB(t)
	e := &testEnv{
		t:           t,
		ctx:         context.Background(),
		db:          database,
		userRepo:    repository.NewSQLiteUserRepo(database),
		requests:    repository.NewSQLiteChangeRequestRepo(database),
		approvals:   repository.NewSQLiteApprovalRepo(database),
		assignments: repository.NewSQLiteAssignmentRepo(database),
		comments:    repository.NewSQLiteCommentRepo(database),
		history:     repository.NewSQLiteHistoryRepo(database),
	}
	e.wf = NewWorkflowService(testutil.NewTestUoW(database), policy, observers...)
	e.query = NewQueryService(e.requests, e.approvals, e.assignments, e.comments, e.history, e.userRepo)
	e.users = NewUserService(testutil.NewTestUoW(database), e.userRepo, 0, observers...)
	return e
}

// withUoW rebuilds the workflow service over a different unit of work.
func (e *testEnv) withUoW(uow db.UnitOfWork) WorkflowService {
	return NewWorkflowService(uow, domain.DefaultPolicy())
}

func (e *testEnv) user(username string, opts ...testutil.UserOption) *domain.User {
	e.t.Helper()
	u := testutil.NewTestUser(username, opts...)
	require.NoError(e.t, e.userRepo.Create(e.ctx, u))
	return u
}

// org seeds a creator with a supervisor, one CAB member and one support person.
type org struct {
	creator, supervisor, cab, support *domain.User
}

func (e *testEnv) org() org {
	sup := e.user("sup")
	return org{
		supervisor: sup,
		creator:    e.user("alice", testutil.WithSupervisor(sup.ID)),
		cab:        e.user("cab1", testutil.AsCABMember()),
		support:    e.user("ops1", testutil.AsSupport()),
	}
}

func (e *testEnv) draft(creator *domain.User, title string) *domain.ChangeRequest {
	e.t.Helper()
	cr, err := e.wf.Create(e.ctx, creator.ID, CreateInput{Title: title, Priority: "high"})
	require.NoError(e.t, err)
	return cr
}

// cabApproved drives a fresh request through both approval stages.
func (e *testEnv) cabApproved(o org) *domain.ChangeRequest {
	e.t.Helper()
	cr := e.draft(o.creator, "Patch database servers")
	_, err := e.wf.SubmitForSupervisorApproval(e.ctx, cr.ID, o.creator.ID)
	require.NoError(e.t, err)
	_, err = e.wf.ApproveBySupervisor(e.ctx, cr.ID, o.supervisor.ID, "ok")
	require.NoError(e.t, err)
	_, err = e.wf.SubmitForCABApproval(e.ctx, cr.ID, o.creator.ID)
	require.NoError(e.t, err)
	cr, err = e.wf.ApproveByCAB(e.ctx, cr.ID, o.cab.ID, "ok")
	require.NoError(e.t, err)
	require.Equal(e.t, domain.StatusCABApproved, cr.Status)
	return cr
}

// scheduled continues from cabApproved, schedules tomorrow and assigns o.support.
func (e *testEnv) scheduled(o org) (*domain.ChangeRequest, *domain.Assignment) {
	e.t.Helper()
	cr := e.cabApproved(o)
	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	cr, err := e.wf.Schedule(e.ctx, cr.ID, o.cab.ID, ScheduleInput{Start: tomorrow, End: tomorrow.Add(time.Hour)})
	require.NoError(e.t, err)
	a, err := e.wf.AssignSupportPersonnel(e.ctx, cr.ID, o.cab.ID, AssignInput{AssigneeID: o.support.ID, Role: "Implementer"})
	require.NoError(e.t, err)
	return cr, a
}

func (e *testEnv) reload(id string) *domain.ChangeRequest {
	e.t.Helper()
	cr, err := e.requests.GetByID(e.ctx, id)
	require.NoError(e.t, err)
	return cr
}

func (e *testEnv) historyCount(id string) int {
	e.t.Helper()
	h, err := e.history.ListByChangeRequest(e.ctx, id)
	require.NoError(e.t, err)
	return len(h)
}
