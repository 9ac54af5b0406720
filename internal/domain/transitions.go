package domain

// Operation names a workflow operation on a change request.
type Operation string

const (
	OpCreate                      Operation = "Create"
	OpUpdate                      Operation = "Update"
	OpDelete                      Operation = "Delete"
	OpSubmitForSupervisorApproval Operation = "SubmitForSupervisorApproval"
	OpApproveBySupervisor         Operation = "ApproveBySupervisor"
	OpRejectBySupervisor          Operation = "RejectBySupervisor"
	OpSubmitForCABApproval        Operation = "SubmitForCABApproval"
	OpApproveByCAB                Operation = "ApproveByCAB"
	OpRejectByCAB                 Operation = "RejectByCAB"
	OpSchedule                    Operation = "ScheduleChangeRequest"
	OpAssignSupportPersonnel      Operation = "AssignSupportPersonnel"
	OpRemoveAssignment            Operation = "RemoveAssignment"
	OpStartImplementation         Operation = "StartImplementation"
	OpCompleteImplementation      Operation = "CompleteImplementation"
	OpFailImplementation          Operation = "FailImplementation"
	OpCancel                      Operation = "CancelChangeRequest"
	OpAddComment                  Operation = "AddComment"
)

var operationVerbs = map[Operation]string{
	OpUpdate:                      "update",
	OpDelete:                      "delete",
	OpSubmitForSupervisorApproval: "submit for supervisor approval",
	OpApproveBySupervisor:         "approve",
	OpRejectBySupervisor:          "reject",
	OpSubmitForCABApproval:        "submit for CAB approval",
	OpApproveByCAB:                "approve",
	OpRejectByCAB:                 "reject",
	OpSchedule:                    "schedule",
	OpAssignSupportPersonnel:      "assign support personnel to",
	OpRemoveAssignment:            "remove an assignment from",
	OpStartImplementation:         "start implementation of",
	OpCompleteImplementation:      "complete implementation of",
	OpFailImplementation:          "fail implementation of",
	OpCancel:                      "cancel",
}

func (o Operation) verb() string {
	if v, ok := operationVerbs[o]; ok {
		return v
	}
	return string(o)
}

// Policy holds the configurable parts of the transition table.
type Policy struct {
	// RequireSupervisorApprovalForCAB restricts SubmitForCABApproval to
	// SupervisorApproved requests. When false, Draft and
	// SubmittedForSupervisorApproval requests may also go straight to CAB.
	RequireSupervisorApprovalForCAB bool
}

// DefaultPolicy is the strict policy.
func DefaultPolicy() Policy {
	return Policy{RequireSupervisorApprovalForCAB: true}
}

var validFrom = map[Operation][]Status{
	OpUpdate:                      {StatusDraft},
	OpDelete:                      {StatusDraft},
	OpSubmitForSupervisorApproval: {StatusDraft},
	OpApproveBySupervisor:         {StatusSubmittedForSupervisorApproval},
	OpRejectBySupervisor:          {StatusSubmittedForSupervisorApproval},
	OpSubmitForCABApproval:        {StatusSupervisorApproved},
	OpApproveByCAB:                {StatusSubmittedForCABApproval},
	OpRejectByCAB:                 {StatusSubmittedForCABApproval},
	OpSchedule:                    {StatusCABApproved, StatusScheduled, StatusRescheduled},
	OpAssignSupportPersonnel:      {StatusCABApproved, StatusScheduled, StatusRescheduled, StatusInProgress},
	OpRemoveAssignment: {
		StatusCABApproved, StatusScheduled, StatusRescheduled, StatusInProgress,
	},
	OpStartImplementation:    {StatusScheduled, StatusRescheduled},
	OpCompleteImplementation: {StatusInProgress, StatusScheduled, StatusRescheduled},
	OpFailImplementation:     {StatusInProgress},
	OpCancel: {
		StatusDraft, StatusSubmittedForSupervisorApproval, StatusSupervisorApproved,
		StatusSupervisorRejected, StatusSubmittedForCABApproval, StatusCABApproved,
		StatusCABRejected, StatusScheduled, StatusRescheduled, StatusInProgress,
	},
}

// ValidFrom returns the statuses from which op may fire under p.
func (p Policy) ValidFrom(op Operation) []Status {
	if op == OpSubmitForCABApproval && !p.RequireSupervisorApprovalForCAB {
		return []Status{StatusDraft, StatusSubmittedForSupervisorApproval, StatusSupervisorApproved}
	}
	return validFrom[op]
}

// Allows reports whether op may fire from status s under p.
func (p Policy) Allows(op Operation, s Status) bool {
	for _, st := range p.ValidFrom(op) {
		if st == s {
			return true
		}
	}
	return false
}

// Check returns an ErrInvalidTransition error when op may not fire from s.
func (p Policy) Check(op Operation, s Status) error {
	if !p.Allows(op, s) {
		return invalidTransition(op, s)
	}
	return nil
}

// edges is the full status graph. Every status assignment goes through
// ChangeRequest.moveTo, which refuses anything not listed here.
var edges = map[Status][]Status{
	StatusDraft: {
		StatusSubmittedForSupervisorApproval, StatusSubmittedForCABApproval, StatusCancelled,
	},
	StatusSubmittedForSupervisorApproval: {
		StatusSupervisorApproved, StatusSupervisorRejected, StatusSubmittedForCABApproval, StatusCancelled,
	},
	StatusSupervisorApproved:      {StatusSubmittedForCABApproval, StatusCancelled},
	StatusSupervisorRejected:      {StatusCancelled},
	StatusSubmittedForCABApproval: {StatusCABApproved, StatusCABRejected, StatusCancelled},
	StatusCABApproved:             {StatusScheduled, StatusCancelled},
	StatusCABRejected:             {StatusCancelled},
	StatusScheduled:               {StatusRescheduled, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusRescheduled:             {StatusRescheduled, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress:              {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether the status graph has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}
