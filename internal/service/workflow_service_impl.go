package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/google/uuid"
)

type workflowService struct {
	uow      db.UnitOfWork
	policy   domain.Policy
	observer UseCaseObserver
	now      func() time.Time
}

func NewWorkflowService(uow db.UnitOfWork, policy domain.Policy, observers ...UseCaseObserver) WorkflowService {
	return &workflowService{
		uow:      uow,
		policy:   policy,
		observer: useCaseObserverOrNoop(observers),
		now:      time.Now,
	}
}

// step is the body of one state-changing operation. It runs inside the
// transaction after the request has been reloaded and its status checked,
// mutates cr and any child records, and labels the history entry.
type step func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error)

// transition runs op against the freshly loaded request: status precondition,
// body, versioned update and one history row, all in one transaction.
func (s *workflowService) transition(ctx context.Context, name, ref, actorID string, op domain.Operation, body step) (out *domain.ChangeRequest, err error) {
	startedAt := time.Now()
	fields := map[string]any{"change_request": ref, "actor_id": actorID}
	defer func() { observe(ctx, s.observer, name, startedAt, fields, &err) }()

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		cr, err := loadRequest(ctx, r.requests, ref)
		if err != nil {
			return err
		}
		fields["change_request_id"] = cr.ID
		fields["from_status"] = string(cr.Status)

		actor, err := r.users.GetByID(ctx, actorID)
		if err != nil {
			return fmt.Errorf("acting user: %w", err)
		}
		if err := s.policy.Check(op, cr.Status); err != nil {
			return err
		}

		before := cr.Clone()
		now := s.now().UTC()
		action, description, err := body(ctx, r, cr, actor, now)
		if err != nil {
			return err
		}
		cr.UpdatedAt = now
		if err := r.requests.Update(ctx, cr); err != nil {
			return err
		}
		if err := appendHistory(ctx, r, cr.ID, actor.ID, action, description, before, cr, now); err != nil {
			return err
		}
		fields["to_status"] = string(cr.Status)
		out = cr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func appendHistory(ctx context.Context, r *txRepos, crID, userID string, action domain.ActionType, description string, before, after *domain.ChangeRequest, now time.Time) error {
	h, err := domain.NewHistory(uuid.New().String(), crID, userID, action, description, before, after, now)
	if err != nil {
		return err
	}
	return r.history.Append(ctx, h)
}

func addComment(ctx context.Context, r *txRepos, crID, authorID, text string, internal bool, now time.Time) (*domain.Comment, error) {
	c := &domain.Comment{
		ID:              uuid.New().String(),
		ChangeRequestID: crID,
		AuthorID:        authorID,
		Text:            text,
		IsInternal:      internal,
		CreatedAt:       now,
	}
	if err := r.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func requireCAB(actor *domain.User, what string) error {
	if !actor.IsCABMember {
		return domain.Unauthorized("%s must be a CAB member to %s", actor.Username, what)
	}
	return nil
}

func (s *workflowService) Create(ctx context.Context, actorID string, in CreateInput) (out *domain.ChangeRequest, err error) {
	startedAt := time.Now()
	fields := map[string]any{"actor_id": actorID}
	defer func() { observe(ctx, s.observer, "create", startedAt, fields, &err) }()

	in.Normalize()
	if err = validateInput(in); err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		actor, err := r.users.GetByID(ctx, actorID)
		if err != nil {
			return fmt.Errorf("acting user: %w", err)
		}

		now := s.now().UTC()
		seq, err := r.sequences.NextRequestSeq(ctx, now.Year())
		if err != nil {
			return err
		}
		cr := domain.NewChangeRequest(uuid.New().String(), domain.FormatRequestNumber(now.Year(), seq), actor.ID, in.details(), now)
		cr.Version = 1
		if err := r.requests.Create(ctx, cr); err != nil {
			return err
		}
		if err := appendHistory(ctx, r, cr.ID, actor.ID, domain.ActionCreated, "Change request "+cr.Number+" created", nil, cr, now); err != nil {
			return err
		}
		fields["change_request_id"] = cr.ID
		fields["to_status"] = string(cr.Status)
		out = cr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *workflowService) Update(ctx context.Context, ref, actorID string, in UpdateInput) (*domain.ChangeRequest, error) {
	in.Normalize()
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return s.transition(ctx, "update", ref, actorID, domain.OpUpdate,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			if err := cr.Edit(in.apply(cr.Details()), now); err != nil {
				return "", "", err
			}
			return domain.ActionUpdated, "Details updated", nil
		})
}

func (s *workflowService) Delete(ctx context.Context, ref, actorID string) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"change_request": ref, "actor_id": actorID}
	defer func() { observe(ctx, s.observer, "delete", startedAt, fields, &err) }()

	return s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		cr, err := loadRequest(ctx, r.requests, ref)
		if err != nil {
			return err
		}
		fields["change_request_id"] = cr.ID
		if _, err := r.users.GetByID(ctx, actorID); err != nil {
			return fmt.Errorf("acting user: %w", err)
		}
		if err := cr.CheckDeletable(); err != nil {
			return err
		}
		return r.requests.Delete(ctx, cr.ID)
	})
}

func (s *workflowService) SubmitForSupervisorApproval(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, "submit", ref, actorID, domain.OpSubmitForSupervisorApproval,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			if !cr.IsCreator(actor.ID) {
				return "", "", domain.Unauthorized("only the creator can submit %s", cr.Number)
			}
			if actor.SupervisorID == nil {
				return "", "", domain.Invalid("%s has no supervisor assigned", actor.Username)
			}
			if err := cr.SubmitForSupervisorApproval(now); err != nil {
				return "", "", err
			}
			a := domain.NewPendingApproval(uuid.New().String(), cr.ID, *actor.SupervisorID, domain.ApprovalSupervisor, now)
			if err := r.approvals.Create(ctx, a); err != nil {
				return "", "", err
			}
			return domain.ActionSubmitted, "Submitted for supervisor approval", nil
		})
}

func (s *workflowService) ApproveBySupervisor(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error) {
	return s.supervisorDecision(ctx, "supervisor-approve", ref, actorID, comments, true)
}

func (s *workflowService) RejectBySupervisor(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error) {
	return s.supervisorDecision(ctx, "supervisor-reject", ref, actorID, comments, false)
}

func (s *workflowService) supervisorDecision(ctx context.Context, name, ref, actorID, comments string, approve bool) (*domain.ChangeRequest, error) {
	op := domain.OpRejectBySupervisor
	if approve {
		op = domain.OpApproveBySupervisor
	}
	return s.transition(ctx, name, ref, actorID, op,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			a, err := r.approvals.FindPending(ctx, cr.ID, actor.ID, domain.ApprovalSupervisor)
			if err != nil {
				if domain.KindOf(err) == domain.KindNotFound {
					return "", "", domain.Unauthorized("%s is not the designated supervisor approver for %s", actor.Username, cr.Number)
				}
				return "", "", err
			}

			action, verb := domain.ActionRejected, "rejected"
			if approve {
				action, verb = domain.ActionApproved, "approved"
				err = a.Approve(comments, now)
			} else {
				err = a.Reject(comments, now)
			}
			if err != nil {
				return "", "", err
			}
			if err := r.approvals.Update(ctx, a); err != nil {
				return "", "", err
			}

			if approve {
				err = cr.ApproveBySupervisor(now)
			} else {
				err = cr.RejectBySupervisor(now)
			}
			if err != nil {
				return "", "", err
			}
			return action, withComments("Supervisor "+verb, comments), nil
		})
}

func (s *workflowService) SubmitForCABApproval(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, "submit-cab", ref, actorID, domain.OpSubmitForCABApproval,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			members, err := r.users.ListCABMembers(ctx)
			if err != nil {
				return "", "", err
			}
			if err := cr.SubmitForCABApproval(s.policy, len(members), now); err != nil {
				return "", "", err
			}
			for _, m := range members {
				a := domain.NewPendingApproval(uuid.New().String(), cr.ID, m.ID, domain.ApprovalCAB, now)
				if err := r.approvals.Create(ctx, a); err != nil {
					return "", "", err
				}
			}
			return domain.ActionSubmitForCABApproval, fmt.Sprintf("Submitted for CAB approval (%d approvers)", len(members)), nil
		})
}

func (s *workflowService) ApproveByCAB(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, "cab-approve", ref, actorID, domain.OpApproveByCAB,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			pending, already, err := findCABApproval(ctx, r, cr.ID, actor.ID)
			if err != nil {
				return "", "", err
			}
			// A requested approver keeps their vote for this round even if
			// they have since left the board.
			if pending == nil {
				if err := requireCAB(actor, "approve"); err != nil {
					return "", "", err
				}
			}
			if already {
				return "", "", fmt.Errorf("%w: %s already approved %s", domain.ErrInvalidTransition, actor.Username, cr.Number)
			}

			held := pending != nil
			if held {
				if err := pending.Approve(comments, now); err != nil {
					return "", "", err
				}
				if err := r.approvals.Update(ctx, pending); err != nil {
					return "", "", err
				}
			} else {
				a := domain.NewPendingApproval(uuid.New().String(), cr.ID, actor.ID, domain.ApprovalCAB, now)
				if err := a.Approve(comments, now); err != nil {
					return "", "", err
				}
				if err := r.approvals.Create(ctx, a); err != nil {
					return "", "", err
				}
			}

			cleared, err := cr.RecordCABApproval(held, now)
			if err != nil {
				return "", "", err
			}
			desc := fmt.Sprintf("CAB approval recorded, %d pending", cr.CAB.Pending)
			if cleared {
				desc = "CAB approved"
			}
			return domain.ActionApproved, withComments(desc, comments), nil
		})
}

func (s *workflowService) RejectByCAB(ctx context.Context, ref, actorID, comments string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, "cab-reject", ref, actorID, domain.OpRejectByCAB,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			pending, _, err := findCABApproval(ctx, r, cr.ID, actor.ID)
			if err != nil {
				return "", "", err
			}
			if pending == nil {
				if err := requireCAB(actor, "reject"); err != nil {
					return "", "", err
				}
			}
			if pending != nil {
				if err := pending.Reject(comments, now); err != nil {
					return "", "", err
				}
				if err := r.approvals.Update(ctx, pending); err != nil {
					return "", "", err
				}
			} else {
				a := domain.NewPendingApproval(uuid.New().String(), cr.ID, actor.ID, domain.ApprovalCAB, now)
				if err := a.Reject(comments, now); err != nil {
					return "", "", err
				}
				if err := r.approvals.Create(ctx, a); err != nil {
					return "", "", err
				}
			}
			if err := cr.RejectByCAB(now); err != nil {
				return "", "", err
			}
			return domain.ActionRejected, withComments("CAB rejected", comments), nil
		})
}

// findCABApproval returns the actor's pending CAB approval on the request, if
// any, and whether the actor has already approved it.
func findCABApproval(ctx context.Context, r *txRepos, crID, actorID string) (*domain.Approval, bool, error) {
	approvals, err := r.approvals.ListByChangeRequest(ctx, crID)
	if err != nil {
		return nil, false, err
	}
	var pending *domain.Approval
	approved := false
	for _, a := range approvals {
		if a.Type != domain.ApprovalCAB || a.ApproverID != actorID {
			continue
		}
		switch a.Status {
		case domain.ApprovalPending:
			if pending == nil {
				pending = a
			}
		case domain.ApprovalApproved:
			approved = true
		}
	}
	return pending, approved, nil
}

func (s *workflowService) Schedule(ctx context.Context, ref, actorID string, in ScheduleInput) (*domain.ChangeRequest, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return s.transition(ctx, "schedule", ref, actorID, domain.OpSchedule,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			if err := requireCAB(actor, "schedule"); err != nil {
				return "", "", err
			}
			action, err := cr.Schedule(in.Start, in.End, now)
			if err != nil {
				return "", "", err
			}
			desc := fmt.Sprintf("%s from %s to %s", action,
				cr.ScheduledStart.Format(time.RFC3339), cr.ScheduledEnd.Format(time.RFC3339))
			return action, desc, nil
		})
}

func (s *workflowService) AssignSupportPersonnel(ctx context.Context, ref, actorID string, in AssignInput) (*domain.Assignment, error) {
	in.Normalize()
	if err := validateInput(in); err != nil {
		return nil, err
	}
	var assigned *domain.Assignment
	_, err := s.transition(ctx, "assign", ref, actorID, domain.OpAssignSupportPersonnel,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			if err := requireCAB(actor, "assign support personnel"); err != nil {
				return "", "", err
			}
			assignee, err := loadUser(ctx, r.users, in.AssigneeID)
			if err != nil {
				return "", "", fmt.Errorf("assignee: %w", err)
			}
			if !assignee.IsSupportPersonnel {
				return "", "", domain.Invalid("%s is not support personnel", assignee.Username)
			}
			a := domain.NewAssignment(uuid.New().String(), cr.ID, assignee.ID, in.Role, in.Notes, now)
			if err := r.assignments.Create(ctx, a); err != nil {
				return "", "", err
			}
			assigned = a
			desc := "Assigned " + assignee.Username
			if in.Role != "" {
				desc += " as " + in.Role
			}
			return domain.ActionAssigned, desc, nil
		})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

func (s *workflowService) RemoveAssignment(ctx context.Context, ref, actorID, assignmentID, reason string) error {
	reason = strings.TrimSpace(reason)
	_, err := s.transition(ctx, "unassign", ref, actorID, domain.OpRemoveAssignment,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			if err := requireCAB(actor, "remove assignments"); err != nil {
				return "", "", err
			}
			a, err := r.assignments.GetByID(ctx, assignmentID)
			if err != nil {
				return "", "", err
			}
			if a.ChangeRequestID != cr.ID {
				return "", "", fmt.Errorf("assignment %s on %s: %w", assignmentID, cr.Number, domain.ErrNotFound)
			}
			if err := r.assignments.Delete(ctx, a.ID); err != nil {
				return "", "", err
			}

			assignee := a.AssigneeID
			if u, err := r.users.GetByID(ctx, a.AssigneeID); err == nil {
				assignee = u.Username
			}
			text := withComments(fmt.Sprintf("Assignment of %s removed", assignee), reason)
			if _, err := addComment(ctx, r, cr.ID, actor.ID, text, false, now); err != nil {
				return "", "", err
			}
			return domain.ActionUnassigned, text, nil
		})
	return err
}

func (s *workflowService) StartImplementation(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, "start", ref, actorID, domain.OpStartImplementation,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			assignments, err := r.assignments.ListByChangeRequest(ctx, cr.ID)
			if err != nil {
				return "", "", err
			}
			if !hasAssignment(assignments, actor.ID, domain.AssignmentAssigned) {
				return "", "", domain.Unauthorized("%s holds no open assignment on %s", actor.Username, cr.Number)
			}
			for _, a := range assignments {
				if a.AssigneeID != actor.ID || a.Status != domain.AssignmentAssigned {
					continue
				}
				if err := a.Start(now); err != nil {
					return "", "", err
				}
				if err := r.assignments.Update(ctx, a); err != nil {
					return "", "", err
				}
			}
			if err := cr.StartImplementation(now); err != nil {
				return "", "", err
			}
			return domain.ActionStarted, "Implementation started by " + actor.Username, nil
		})
}

func (s *workflowService) CompleteImplementation(ctx context.Context, ref, actorID string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, "complete", ref, actorID, domain.OpCompleteImplementation,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			assignments, err := r.assignments.ListByChangeRequest(ctx, cr.ID)
			if err != nil {
				return "", "", err
			}
			if !actor.IsCABMember && !hasAssignment(assignments, actor.ID, domain.AssignmentInProgress) {
				return "", "", domain.Unauthorized("%s must be implementing %s or be a CAB member to complete it", actor.Username, cr.Number)
			}
			if err := cr.CompleteImplementation(now); err != nil {
				return "", "", err
			}
			for _, a := range assignments {
				if a.Complete(now) {
					if err := r.assignments.Update(ctx, a); err != nil {
						return "", "", err
					}
				}
			}
			return domain.ActionCompleted, "Implementation completed", nil
		})
}

func (s *workflowService) FailImplementation(ctx context.Context, ref, actorID, reason string) (*domain.ChangeRequest, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "fail", ref, actorID, domain.OpFailImplementation,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			assignments, err := r.assignments.ListByChangeRequest(ctx, cr.ID)
			if err != nil {
				return "", "", err
			}
			if !hasAssignment(assignments, actor.ID, domain.AssignmentInProgress) {
				return "", "", domain.Unauthorized("%s is not implementing %s", actor.Username, cr.Number)
			}
			if err := cr.FailImplementation(now); err != nil {
				return "", "", err
			}
			if _, err := addComment(ctx, r, cr.ID, actor.ID, "Implementation failed: "+reason, false, now); err != nil {
				return "", "", err
			}
			return domain.ActionFailed, "Implementation failed: " + reason, nil
		})
}

func (s *workflowService) Cancel(ctx context.Context, ref, actorID, reason string) (*domain.ChangeRequest, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "cancel", ref, actorID, domain.OpCancel,
		func(ctx context.Context, r *txRepos, cr *domain.ChangeRequest, actor *domain.User, now time.Time) (domain.ActionType, string, error) {
			allowed := cr.IsCreator(actor.ID) || actor.IsCABMember
			if !allowed {
				creator, err := r.users.GetByID(ctx, cr.CreatedByID)
				if err != nil {
					return "", "", err
				}
				allowed = creator.SupervisedBy(actor.ID)
			}
			if !allowed {
				return "", "", domain.Unauthorized("%s may not cancel %s", actor.Username, cr.Number)
			}
			if err := cr.Cancel(now); err != nil {
				return "", "", err
			}

			assignments, err := r.assignments.ListByChangeRequest(ctx, cr.ID)
			if err != nil {
				return "", "", err
			}
			for _, a := range assignments {
				if a.Cancel(now) {
					if err := r.assignments.Update(ctx, a); err != nil {
						return "", "", err
					}
				}
			}
			if _, err := addComment(ctx, r, cr.ID, actor.ID, "Cancelled: "+reason, false, now); err != nil {
				return "", "", err
			}
			return domain.ActionCancelled, "Cancelled: " + reason, nil
		})
}

func (s *workflowService) AddComment(ctx context.Context, ref, actorID string, in CommentInput) (out *domain.Comment, err error) {
	startedAt := time.Now()
	fields := map[string]any{"change_request": ref, "actor_id": actorID, "internal": in.Internal}
	defer func() { observe(ctx, s.observer, "comment", startedAt, fields, &err) }()

	in.Normalize()
	if err = validateInput(in); err != nil {
		return nil, err
	}
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		r := newTxRepos(tx)
		cr, err := loadRequest(ctx, r.requests, ref)
		if err != nil {
			return err
		}
		fields["change_request_id"] = cr.ID
		actor, err := r.users.GetByID(ctx, actorID)
		if err != nil {
			return fmt.Errorf("acting user: %w", err)
		}
		if in.Internal {
			if err := requireCAB(actor, "add internal comments"); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		c, err := addComment(ctx, r, cr.ID, actor.ID, in.Text, in.Internal, now)
		if err != nil {
			return err
		}
		desc := "Comment added"
		if in.Internal {
			desc = "Internal comment added"
		}
		if err := appendHistory(ctx, r, cr.ID, actor.ID, domain.ActionCommentAdded, desc, nil, nil, now); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func withComments(desc, comments string) string {
	if comments == "" {
		return desc
	}
	return desc + ": " + comments
}
