package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nayeem-hossain/coursebook/libs/db"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/outbox"
)

// AuditTopic is the Kafka topic (and outbox event type) audit entries are
// shipped to for downstream consumers (notification, analytics).
const AuditTopic = "scheduling.audit.v1"

// Recorder persists audit events to the audit_events table and, when an
// outbox repository is wired, appends an outbox row in the same transaction
// so the event also reaches Kafka.
type Recorder struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewRecorder(pool *db.Pool, outboxRepo *outbox.Repository) *Recorder {
	return &Recorder{pool: pool, outboxRepo: outboxRepo}
}

func (r *Recorder) Record(ctx context.Context, evt Event) error {
	if r.outboxRepo == nil {
		return r.insert(ctx, r.pool, evt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.insert(ctx, tx, evt); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"user_id":        evt.UserID,
		"tenant_id":      evt.TenantID,
		"action":         evt.Action,
		"resource":       evt.Resource,
		"resource_id":    evt.ResourceID,
		"before_state":   evt.BeforeState,
		"after_state":    evt.AfterState,
		"correlation_id": evt.CorrelationID,
		"recorded_at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "audit_event",
		AggregateID:   evt.ResourceID,
		EventType:     AuditTopic,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// querier covers both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *Recorder) insert(ctx context.Context, q querier, evt Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO audit_events (user_id, tenant_id, action, resource, resource_id, before_state, after_state, correlation_id)
		VALUES (NULLIF($1, '')::uuid, NULLIF($2, '')::uuid, $3, $4, NULLIF($5, '')::uuid, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
	`, evt.UserID, evt.TenantID, evt.Action, evt.Resource, evt.ResourceID, evt.BeforeState, evt.AfterState, evt.CorrelationID)
	return err
}
