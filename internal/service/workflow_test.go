package service

import (
	"testing"
	"time"

	"github.com/alexanderramin/crq/internal/domain"
	"github.com/alexanderramin/crq/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_FullLifecycle(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	ctx := e.ctx

	cr := e.draft(o.creator, "Upgrade firewall firmware")
	assert.Equal(t, domain.StatusDraft, cr.Status)
	assert.Regexp(t, `^CR-\d{4}-\d{5}$`, cr.Number)
	assert.Equal(t, domain.Priority("high"), cr.Priority)

	cr, err := e.wf.SubmitForSupervisorApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedForSupervisorApproval, cr.Status)

	approvals, err := e.approvals.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, domain.ApprovalSupervisor, approvals[0].Type)
	assert.Equal(t, o.supervisor.ID, approvals[0].ApproverID)
	assert.Equal(t, domain.ApprovalPending, approvals[0].Status)

	cr, err = e.wf.ApproveBySupervisor(ctx, cr.ID, o.supervisor.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSupervisorApproved, cr.Status)

	approvals, err = e.approvals.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, domain.ApprovalApproved, approvals[0].Status)
	assert.Equal(t, "ok", approvals[0].Comments)
	assert.NotNil(t, approvals[0].ActionedAt)

	cr, err = e.wf.SubmitForCABApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedForCABApproval, cr.Status)
	assert.Equal(t, 1, cr.CAB.Pending)

	cr, err = e.wf.ApproveByCAB(ctx, cr.ID, o.cab.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCABApproved, cr.Status)

	tomorrow := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	cr, err = e.wf.Schedule(ctx, cr.ID, o.cab.ID, ScheduleInput{Start: tomorrow, End: tomorrow})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, cr.Status)
	require.NotNil(t, cr.ScheduledStart)
	require.NotNil(t, cr.ScheduledEnd)
	assert.True(t, tomorrow.Equal(*cr.ScheduledStart))
	assert.True(t, tomorrow.Equal(*cr.ScheduledEnd))

	a, err := e.wf.AssignSupportPersonnel(ctx, cr.Number, o.cab.ID, AssignInput{AssigneeID: o.support.ID, Role: "Implementer"})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentAssigned, a.Status)
	assert.Equal(t, "Implementer", a.Role)
	assert.Equal(t, o.support.ID, a.AssigneeID)

	cr, err = e.wf.StartImplementation(ctx, cr.ID, o.support.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, cr.Status)

	cr, err = e.wf.CompleteImplementation(ctx, cr.ID, o.support.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, cr.Status)
	assert.NotNil(t, cr.ImplementedAt)

	stored := e.reload(cr.ID)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.ImplementedAt)

	assignments, err := e.assignments.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, domain.AssignmentCompleted, assignments[0].Status)

	history, err := e.history.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	var actions []domain.ActionType
	for _, h := range history {
		actions = append(actions, h.ActionType)
	}
	assert.Equal(t, []domain.ActionType{
		domain.ActionCompleted,
		domain.ActionStarted,
		domain.ActionAssigned,
		domain.ActionScheduled,
		domain.ActionApproved,
		domain.ActionSubmitForCABApproval,
		domain.ActionApproved,
		domain.ActionSubmitted,
		domain.ActionCreated,
	}, actions)
}

func TestWorkflow_OneHistoryRowPerOperation(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	ctx := e.ctx

	cr := e.draft(o.creator, "Rotate certificates")
	require.Equal(t, 1, e.historyCount(cr.ID))

	title := "Rotate TLS certificates"
	_, err := e.wf.Update(ctx, cr.ID, o.creator.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	require.Equal(t, 2, e.historyCount(cr.ID))

	_, err = e.wf.AddComment(ctx, cr.ID, o.creator.ID, CommentInput{Text: "looks fine"})
	require.NoError(t, err)
	require.Equal(t, 3, e.historyCount(cr.ID))

	_, err = e.wf.Cancel(ctx, cr.ID, o.creator.ID, "no longer needed")
	require.NoError(t, err)
	require.Equal(t, 4, e.historyCount(cr.ID))

	history, err := e.history.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCancelled, history[0].ActionType)
	assert.Equal(t, domain.ActionCommentAdded, history[1].ActionType)
	assert.Equal(t, domain.ActionUpdated, history[2].ActionType)

	change, ok := history[2].Change("title")
	require.True(t, ok)
	assert.Equal(t, "Rotate certificates", change.Before)
	assert.Equal(t, title, change.After)

	// Failed operations leave no trace.
	_, err = e.wf.Cancel(ctx, cr.ID, o.creator.ID, "again")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 4, e.historyCount(cr.ID))
}

func TestSubmitForSupervisorApproval_NoSupervisor(t *testing.T) {
	e := newTestEnv(t)
	loner := e.user("loner")
	cr := e.draft(loner, "Change without a manager")

	_, err := e.wf.SubmitForSupervisorApproval(e.ctx, cr.ID, loner.ID)
	require.ErrorIs(t, err, domain.ErrValidation)

	stored := e.reload(cr.ID)
	assert.Equal(t, domain.StatusDraft, stored.Status)
	assert.Equal(t, 1, stored.Version)
	approvals, err := e.approvals.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	assert.Empty(t, approvals)
	assert.Equal(t, 1, e.historyCount(cr.ID))
}

func TestSubmitForSupervisorApproval_OnlyCreator(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Someone else's draft")

	_, err := e.wf.SubmitForSupervisorApproval(e.ctx, cr.ID, o.cab.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.StatusDraft, e.reload(cr.ID).Status)
}

func TestSupervisorDecision_OnlyDesignatedApprover(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Replace switch")
	_, err := e.wf.SubmitForSupervisorApproval(e.ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)

	_, err = e.wf.ApproveBySupervisor(e.ctx, cr.ID, o.cab.ID, "not mine")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	cr, err = e.wf.RejectBySupervisor(e.ctx, cr.ID, o.supervisor.ID, "too risky")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSupervisorRejected, cr.Status)

	approvals, err := e.approvals.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, domain.ApprovalRejected, approvals[0].Status)

	_, err = e.wf.ApproveBySupervisor(e.ctx, cr.ID, o.supervisor.ID, "changed my mind")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSubmitForCABApproval_StrictPolicyRequiresSupervisorApproval(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Skip the supervisor")

	_, err := e.wf.SubmitForCABApproval(e.ctx, cr.ID, o.creator.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusDraft, e.reload(cr.ID).Status)
}

func TestSubmitForCABApproval_PermissivePolicyAllowsDraft(t *testing.T) {
	e := newTestEnvWithPolicy(t, domain.Policy{RequireSupervisorApprovalForCAB: false})
	o := e.org()
	cr := e.draft(o.creator, "Emergency fix")

	cr, err := e.wf.SubmitForCABApproval(e.ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedForCABApproval, cr.Status)
}

func TestApproveByCAB_LastPendingFlipsStatus(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cab2 := e.user("cab2", testutil.AsCABMember())
	ctx := e.ctx

	cr := e.draft(o.creator, "Migrate DNS")
	_, err := e.wf.SubmitForSupervisorApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveBySupervisor(ctx, cr.ID, o.supervisor.ID, "")
	require.NoError(t, err)
	cr, err = e.wf.SubmitForCABApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CABTally{Pending: 2}, cr.CAB)

	cr, err = e.wf.ApproveByCAB(ctx, cr.ID, o.cab.ID, "fine")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedForCABApproval, cr.Status)
	assert.Equal(t, domain.CABTally{Pending: 1, Approved: 1}, cr.CAB)

	_, err = e.wf.ApproveByCAB(ctx, cr.ID, o.cab.ID, "twice")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	cr, err = e.wf.ApproveByCAB(ctx, cr.ID, cab2.ID, "fine")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCABApproved, cr.Status)
	assert.Equal(t, domain.CABTally{Pending: 0, Approved: 2}, cr.CAB)
}

func TestApproveByCAB_RequiresCABMember(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Move backups")
	_, err := e.wf.SubmitForSupervisorApproval(e.ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveBySupervisor(e.ctx, cr.ID, o.supervisor.ID, "")
	require.NoError(t, err)
	_, err = e.wf.SubmitForCABApproval(e.ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)

	_, err = e.wf.ApproveByCAB(e.ctx, cr.ID, o.supervisor.ID, "")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = e.wf.RejectByCAB(e.ctx, cr.ID, o.support.ID, "")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestApproveByCAB_MemberOutsideRoundDoesNotClearPending(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	ctx := e.ctx

	cr := e.draft(o.creator, "Extend storage")
	_, err := e.wf.SubmitForSupervisorApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveBySupervisor(ctx, cr.ID, o.supervisor.ID, "")
	require.NoError(t, err)
	_, err = e.wf.SubmitForCABApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)

	late := e.user("latecomer", testutil.AsCABMember())
	cr, err = e.wf.ApproveByCAB(ctx, cr.ID, late.ID, "me too")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmittedForCABApproval, cr.Status)
	assert.Equal(t, domain.CABTally{Pending: 1, Approved: 1}, cr.CAB)

	approvals, err := e.approvals.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	var lateApproval *domain.Approval
	for _, a := range approvals {
		if a.ApproverID == late.ID {
			lateApproval = a
		}
	}
	require.NotNil(t, lateApproval)
	assert.Equal(t, domain.ApprovalApproved, lateApproval.Status)
	assert.Equal(t, domain.ApprovalCAB, lateApproval.Type)
}

func TestRejectByCAB_SingleRejectionWins(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cab2 := e.user("cab2", testutil.AsCABMember())
	e.user("cab3", testutil.AsCABMember())
	ctx := e.ctx

	cr := e.draft(o.creator, "Decommission legacy app")
	_, err := e.wf.SubmitForSupervisorApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveBySupervisor(ctx, cr.ID, o.supervisor.ID, "")
	require.NoError(t, err)
	_, err = e.wf.SubmitForCABApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveByCAB(ctx, cr.ID, o.cab.ID, "")
	require.NoError(t, err)

	cr, err = e.wf.RejectByCAB(ctx, cr.ID, cab2.ID, "users still on it")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCABRejected, cr.Status)

	history, err := e.history.ListByChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRejected, history[0].ActionType)
	assert.Contains(t, history[0].Description, "users still on it")

	// Rejected is final for further CAB votes.
	_, err = e.wf.ApproveByCAB(ctx, cr.ID, o.cab.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSchedule_ValidationLeavesStatusUnchanged(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.cabApproved(o)
	now := time.Now().UTC()

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"start after end", now.Add(48 * time.Hour), now.Add(24 * time.Hour)},
		{"start in the past", now.Add(-time.Hour), now.Add(time.Hour)},
		{"missing end", now.Add(time.Hour), time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.wf.Schedule(e.ctx, cr.ID, o.cab.ID, ScheduleInput{Start: tt.start, End: tt.end})
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, domain.StatusCABApproved, e.reload(cr.ID).Status)
		})
	}
}

func TestSchedule_RescheduleYieldsRescheduled(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.cabApproved(o)
	start := time.Now().UTC().Add(24 * time.Hour)

	cr, err := e.wf.Schedule(e.ctx, cr.ID, o.cab.ID, ScheduleInput{Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, cr.Status)

	cr, err = e.wf.Schedule(e.ctx, cr.ID, o.cab.ID, ScheduleInput{Start: start.Add(24 * time.Hour), End: start.Add(25 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRescheduled, cr.Status)

	cr, err = e.wf.Schedule(e.ctx, cr.ID, o.cab.ID, ScheduleInput{Start: start.Add(48 * time.Hour), End: start.Add(49 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRescheduled, cr.Status)

	history, err := e.history.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRescheduled, history[0].ActionType)
	assert.Equal(t, domain.ActionRescheduled, history[1].ActionType)
	assert.Equal(t, domain.ActionScheduled, history[2].ActionType)

	_, err = e.wf.Schedule(e.ctx, cr.ID, o.support.ID, ScheduleInput{Start: start.Add(72 * time.Hour), End: start.Add(73 * time.Hour)})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAssign_AssigneeMustBeSupport(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.cabApproved(o)

	_, err := e.wf.AssignSupportPersonnel(e.ctx, cr.ID, o.cab.ID, AssignInput{AssigneeID: o.creator.ID})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.wf.AssignSupportPersonnel(e.ctx, cr.ID, o.creator.ID, AssignInput{AssigneeID: o.support.ID})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.wf.AssignSupportPersonnel(e.ctx, cr.ID, o.cab.ID, AssignInput{AssigneeID: "nobody"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	a, err := e.wf.AssignSupportPersonnel(e.ctx, cr.ID, o.cab.ID, AssignInput{AssigneeID: o.support.Username})
	require.NoError(t, err)
	assert.Equal(t, o.support.ID, a.AssigneeID)
	assert.Equal(t, domain.StatusCABApproved, e.reload(cr.ID).Status)
}

func TestStartImplementation_RequiresAssignedAssignment(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	other := e.user("ops2", testutil.AsSupport())
	cr, _ := e.scheduled(o)

	_, err := e.wf.StartImplementation(e.ctx, cr.ID, other.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = e.wf.StartImplementation(e.ctx, cr.ID, o.cab.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	cr, err = e.wf.StartImplementation(e.ctx, cr.ID, o.support.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, cr.Status)

	assignments, err := e.assignments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentInProgress, assignments[0].Status)
}

func TestCompleteImplementation_CABMemberFromScheduled(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr, _ := e.scheduled(o)

	_, err := e.wf.CompleteImplementation(e.ctx, cr.ID, o.support.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized, "an assignment that never started does not qualify")

	cr, err = e.wf.CompleteImplementation(e.ctx, cr.ID, o.cab.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, cr.Status)
	assert.NotNil(t, cr.ImplementedAt)

	assignments, err := e.assignments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentCompleted, assignments[0].Status)
}

func TestFailImplementation_AddsReasonComment(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr, _ := e.scheduled(o)
	_, err := e.wf.StartImplementation(e.ctx, cr.ID, o.support.ID)
	require.NoError(t, err)

	_, err = e.wf.FailImplementation(e.ctx, cr.ID, o.support.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.wf.FailImplementation(e.ctx, cr.ID, o.cab.ID, "disk full")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	cr, err = e.wf.FailImplementation(e.ctx, cr.ID, o.support.ID, "disk full")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, cr.Status)

	comments, err := e.comments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Text, "disk full")
	assert.False(t, comments[0].IsInternal)
}

func TestCancel_TerminalStatusesRejected(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()

	completed, _ := e.scheduled(o)
	_, err := e.wf.CompleteImplementation(e.ctx, completed.ID, o.cab.ID)
	require.NoError(t, err)
	_, err = e.wf.Cancel(e.ctx, completed.ID, o.creator.ID, "too late")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	failed, _ := e.scheduled(o)
	_, err = e.wf.StartImplementation(e.ctx, failed.ID, o.support.ID)
	require.NoError(t, err)
	_, err = e.wf.FailImplementation(e.ctx, failed.ID, o.support.ID, "broken")
	require.NoError(t, err)
	_, err = e.wf.Cancel(e.ctx, failed.ID, o.cab.ID, "too late")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusFailed, e.reload(failed.ID).Status)
}

func TestCancel_Authorization(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()

	tests := []struct {
		name    string
		actor   *domain.User
		wantErr error
	}{
		{"creator", o.creator, nil},
		{"creator's supervisor", o.supervisor, nil},
		{"CAB member", o.cab, nil},
		{"unrelated support", o.support, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := e.draft(o.creator, "Cancel me")
			_, err := e.wf.Cancel(e.ctx, cr.ID, tt.actor.ID, "not needed")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.StatusDraft, e.reload(cr.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCancelled, e.reload(cr.ID).Status)
		})
	}
}

func TestCancel_CancelsOpenAssignments(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr, _ := e.scheduled(o)

	_, err := e.wf.Cancel(e.ctx, cr.ID, o.cab.ID, "window missed")
	require.NoError(t, err)

	assignments, err := e.assignments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentCancelled, assignments[0].Status)

	comments, err := e.comments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Cancelled: window missed", comments[0].Text)
}

func TestRemoveAssignment(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr, a := e.scheduled(o)
	before := e.historyCount(cr.ID)

	err := e.wf.RemoveAssignment(e.ctx, cr.ID, o.support.ID, a.ID, "")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	err = e.wf.RemoveAssignment(e.ctx, cr.ID, o.cab.ID, "missing", "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, e.wf.RemoveAssignment(e.ctx, cr.ID, o.cab.ID, a.ID, "wrong team"))

	assignments, err := e.assignments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	assert.Equal(t, before+1, e.historyCount(cr.ID))

	comments, err := e.comments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Text, "ops1")
	assert.Contains(t, comments[0].Text, "wrong team")
}

func TestRemoveAssignment_OtherRequestIsNotFound(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	_, a := e.scheduled(o)
	other := e.cabApproved(o)

	err := e.wf.RemoveAssignment(e.ctx, other.ID, o.cab.ID, a.ID, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateAndDelete_DraftOnly(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Tidy cron jobs")

	bad := "urgent"
	_, err := e.wf.Update(e.ctx, cr.ID, o.creator.ID, UpdateInput{Priority: &bad})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.wf.SubmitForSupervisorApproval(e.ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)

	title := "Too late"
	_, err = e.wf.Update(e.ctx, cr.ID, o.creator.ID, UpdateInput{Title: &title})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	err = e.wf.Delete(e.ctx, cr.ID, o.creator.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	draft := e.draft(o.creator, "Throwaway")
	require.NoError(t, e.wf.Delete(e.ctx, draft.Number, o.creator.ID))
	_, err = e.requests.GetByID(e.ctx, draft.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_Validation(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()

	_, err := e.wf.Create(e.ctx, o.creator.ID, CreateInput{Title: "   "})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "title is required")

	_, err = e.wf.Create(e.ctx, o.creator.ID, CreateInput{Title: "Valid", Risk: "extreme"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "risk")

	_, err = e.wf.Create(e.ctx, "ghost", CreateInput{Title: "Valid"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_NumbersAreSequentialPerYear(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()

	first := e.draft(o.creator, "One")
	second := e.draft(o.creator, "Two")

	y1, s1, ok := domain.ParseRequestNumber(first.Number)
	require.True(t, ok)
	y2, s2, ok := domain.ParseRequestNumber(second.Number)
	require.True(t, ok)
	assert.Equal(t, y1, y2)
	assert.Equal(t, s1+1, s2)
}

func TestAddComment_InternalRequiresCAB(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Comment target")

	_, err := e.wf.AddComment(e.ctx, cr.ID, o.creator.ID, CommentInput{Text: "secret", Internal: true})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	c, err := e.wf.AddComment(e.ctx, cr.ID, o.cab.ID, CommentInput{Text: "secret", Internal: true})
	require.NoError(t, err)
	assert.True(t, c.IsInternal)

	_, err = e.wf.AddComment(e.ctx, cr.ID, o.creator.ID, CommentInput{Text: ""})
	require.ErrorIs(t, err, domain.ErrValidation)

	// Comments never bump the request version.
	assert.Equal(t, cr.Version, e.reload(cr.ID).Version)
}

func TestAddComment_AnyStatus(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Cancelled soon")
	_, err := e.wf.Cancel(e.ctx, cr.ID, o.creator.ID, "dup")
	require.NoError(t, err)

	_, err = e.wf.AddComment(e.ctx, cr.ID, o.supervisor.ID, CommentInput{Text: "noted"})
	require.NoError(t, err)
}

func TestWorkflow_UnknownRequestAndActor(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Exists")

	_, err := e.wf.SubmitForSupervisorApproval(e.ctx, "CR-2000-00001", o.creator.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.wf.SubmitForSupervisorApproval(e.ctx, cr.ID, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorkflow_StatusCheckedBeforeRole(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Still a draft")

	_, err := e.wf.ApproveByCAB(e.ctx, cr.ID, o.support.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestWorkflow_BlankReasonsAndCommentsRejected(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cr := e.draft(o.creator, "Blank reasons")

	_, err := e.wf.Cancel(e.ctx, cr.ID, o.creator.ID, "   ")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.StatusDraft, e.reload(cr.ID).Status)

	_, err = e.wf.AddComment(e.ctx, cr.ID, o.creator.ID, CommentInput{Text: " \t "})
	require.ErrorIs(t, err, domain.ErrValidation)

	comments, err := e.comments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Equal(t, 1, e.historyCount(cr.ID))

	running, _ := e.scheduled(o)
	_, err = e.wf.StartImplementation(e.ctx, running.ID, o.support.ID)
	require.NoError(t, err)
	_, err = e.wf.FailImplementation(e.ctx, running.ID, o.support.ID, "\n  ")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.StatusInProgress, e.reload(running.ID).Status)

	cr, err = e.wf.Cancel(e.ctx, cr.ID, o.creator.ID, "  duplicate of CR-1  ")
	require.NoError(t, err)
	comments, err = e.comments.ListByChangeRequest(e.ctx, cr.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Cancelled: duplicate of CR-1", comments[0].Text)
}

func TestApproveByCAB_DemotedRoundMemberKeepsVote(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cab2 := e.user("cab2", testutil.AsCABMember())
	ctx := e.ctx

	cr := e.draft(o.creator, "Renew certificates")
	_, err := e.wf.SubmitForSupervisorApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveBySupervisor(ctx, cr.ID, o.supervisor.ID, "")
	require.NoError(t, err)
	_, err = e.wf.SubmitForCABApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)

	_, err = e.users.SetCABMember(ctx, cab2.ID, false)
	require.NoError(t, err)

	cr, err = e.wf.ApproveByCAB(ctx, cr.ID, o.cab.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.CABTally{Pending: 1, Approved: 1}, cr.CAB)

	cr, err = e.wf.ApproveByCAB(ctx, cr.ID, cab2.ID, "approved before leaving")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCABApproved, cr.Status)
	assert.Equal(t, domain.CABTally{Pending: 0, Approved: 2}, cr.CAB)

	// Outside that round a former member has no say.
	next := e.draft(o.creator, "Renew more certificates")
	_, err = e.wf.SubmitForSupervisorApproval(ctx, next.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveBySupervisor(ctx, next.ID, o.supervisor.ID, "")
	require.NoError(t, err)
	_, err = e.wf.SubmitForCABApproval(ctx, next.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveByCAB(ctx, next.ID, cab2.ID, "")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRejectByCAB_DemotedRoundMemberCanReject(t *testing.T) {
	e := newTestEnv(t)
	o := e.org()
	cab2 := e.user("cab2", testutil.AsCABMember())
	ctx := e.ctx

	cr := e.draft(o.creator, "Replace load balancer")
	_, err := e.wf.SubmitForSupervisorApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.wf.ApproveBySupervisor(ctx, cr.ID, o.supervisor.ID, "")
	require.NoError(t, err)
	_, err = e.wf.SubmitForCABApproval(ctx, cr.ID, o.creator.ID)
	require.NoError(t, err)
	_, err = e.users.SetCABMember(ctx, cab2.ID, false)
	require.NoError(t, err)

	cr, err = e.wf.RejectByCAB(ctx, cr.ID, cab2.ID, "not ready")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCABRejected, cr.Status)
}
