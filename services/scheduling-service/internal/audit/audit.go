package audit

import "context"

// Actions recorded against the SCHEDULE resource.
const (
	ActionCreate   = "CREATE"
	ActionApproval = "APPROVAL"
	ActionAssign   = "ASSIGN"
	ActionAccept   = "ACCEPT"
	ActionComplete = "COMPLETE"
	ActionCancel   = "CANCEL"
	ActionEscalate = "ESCALATE"
)

const ResourceSchedule = "SCHEDULE"

// Event is one audit trail entry. BeforeState/AfterState carry JSON snapshots
// of the fields a transition changed.
type Event struct {
	UserID        string
	TenantID      string
	Action        string
	Resource      string
	ResourceID    string
	BeforeState   string
	AfterState    string
	CorrelationID string
}

// Sink persists audit events. Implementations must treat Record as
// best-effort from the caller's point of view: callers log failures but do
// not fail the operation that produced the event.
type Sink interface {
	Record(ctx context.Context, evt Event) error
}
