package domain

// Status is the lifecycle state of a change request.
type Status string

const (
	StatusDraft                          Status = "draft"
	StatusSubmittedForSupervisorApproval Status = "submitted_for_supervisor_approval"
	StatusSupervisorApproved             Status = "supervisor_approved"
	StatusSupervisorRejected             Status = "supervisor_rejected"
	StatusSubmittedForCABApproval        Status = "submitted_for_cab_approval"
	StatusCABApproved                    Status = "cab_approved"
	StatusCABRejected                    Status = "cab_rejected"
	StatusScheduled                      Status = "scheduled"
	StatusRescheduled                    Status = "rescheduled"
	StatusInProgress                     Status = "in_progress"
	StatusCompleted                      Status = "completed"
	StatusFailed                         Status = "failed"
	StatusCancelled                      Status = "cancelled"
)

// AllStatuses lists every declared status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusSubmittedForSupervisorApproval,
	StatusSupervisorApproved,
	StatusSupervisorRejected,
	StatusSubmittedForCABApproval,
	StatusCABApproved,
	StatusCABRejected,
	StatusScheduled,
	StatusRescheduled,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusLabels = map[Status]string{
	StatusDraft:                          "Draft",
	StatusSubmittedForSupervisorApproval: "Submitted for Supervisor Approval",
	StatusSupervisorApproved:             "Supervisor Approved",
	StatusSupervisorRejected:             "Supervisor Rejected",
	StatusSubmittedForCABApproval:        "Submitted for CAB Approval",
	StatusCABApproved:                    "CAB Approved",
	StatusCABRejected:                    "CAB Rejected",
	StatusScheduled:                      "Scheduled",
	StatusRescheduled:                    "Rescheduled",
	StatusInProgress:                     "In Progress",
	StatusCompleted:                      "Completed",
	StatusFailed:                         "Failed",
	StatusCancelled:                      "Cancelled",
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human-readable status name.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type ChangeType string

const (
	ChangeNormal    ChangeType = "normal"
	ChangeStandard  ChangeType = "standard"
	ChangeEmergency ChangeType = "emergency"
)

type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type ApprovalType string

const (
	ApprovalSupervisor ApprovalType = "supervisor"
	ApprovalCAB        ApprovalType = "cab"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

// ActionType labels a history entry. Each workflow operation writes exactly one.
type ActionType string

const (
	ActionCreated              ActionType = "Created"
	ActionUpdated              ActionType = "Updated"
	ActionSubmitted            ActionType = "Submitted"
	ActionApproved             ActionType = "Approved"
	ActionRejected             ActionType = "Rejected"
	ActionSubmitForCABApproval ActionType = "SubmitForCABApproval"
	ActionScheduled            ActionType = "Scheduled"
	ActionRescheduled          ActionType = "Rescheduled"
	ActionAssigned             ActionType = "Assigned"
	ActionUnassigned           ActionType = "Unassigned"
	ActionStarted              ActionType = "Started"
	ActionCompleted            ActionType = "Completed"
	ActionFailed               ActionType = "Failed"
	ActionCancelled            ActionType = "Cancelled"
	ActionCommentAdded         ActionType = "CommentAdded"
)

// Canonical sets of accepted classification strings.
var (
	ValidPriorities  = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
	ValidChangeTypes = map[string]bool{"normal": true, "standard": true, "emergency": true}
	ValidImpacts     = map[string]bool{"low": true, "medium": true, "high": true}
	ValidRiskLevels  = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
)

// ParseStatus resolves a stored or user-supplied status string.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	if st.Valid() {
		return st, true
	}
	for k, label := range statusLabels {
		if label == s {
			return k, true
		}
	}
	return "", false
}
