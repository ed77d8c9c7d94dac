package escalation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/audit"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/booking"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

// Sweeper walks bookings still REQUESTED with no instructor past the
// threshold and raises an ESCALATE audit event for each, plus a warning log
// for human follow-up. Escalation is advisory: the booking's status is never
// touched, and admins still have to act. The sweep spans all tenants.
type Sweeper struct {
	store     booking.Store
	sink      audit.Sink
	logger    *slog.Logger
	threshold time.Duration
	batchSize int
	now       func() time.Time
}

type Config struct {
	Threshold time.Duration
	BatchSize int
}

func NewSweeper(store booking.Store, sink audit.Sink, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Sweeper{
		store:     store,
		sink:      sink,
		logger:    logger,
		threshold: cfg.Threshold,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Run performs one sweep. A failure on one booking is logged and does not
// stop the rest of the batch; only a failure to list the candidates at all is
// returned to the caller (the retry wrapper).
func (s *Sweeper) Run(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.threshold)

	stale, err := s.store.ListStaleRequested(ctx, cutoff, s.batchSize)
	if err != nil {
		return err
	}

	for _, b := range stale {
		if err := s.escalate(ctx, b); err != nil {
			s.logger.Error("booking escalation failed",
				"booking_id", b.ID,
				"tenant_id", b.TenantID,
				"err", err,
			)
		}
	}
	return nil
}

func (s *Sweeper) escalate(ctx context.Context, b model.Booking) error {
	thresholdHours := int(s.threshold / time.Hour)

	s.logger.Warn("escalating booking to admin: no instructor assigned within threshold",
		"booking_id", b.ID,
		"tenant_id", b.TenantID,
		"student_id", b.StudentID,
		"requested_at", b.RequestedAt.UTC().Format(time.RFC3339),
		"threshold_hours", thresholdHours,
	)

	after, err := json.Marshal(map[string]any{
		"reason":         "No instructor assigned within threshold",
		"requestedAt":    b.RequestedAt.UTC().Format(time.RFC3339),
		"thresholdHours": thresholdHours,
	})
	if err != nil {
		return err
	}

	return s.sink.Record(ctx, audit.Event{
		TenantID:   b.TenantID,
		Action:     audit.ActionEscalate,
		Resource:   audit.ResourceSchedule,
		ResourceID: b.ID,
		AfterState: string(after),
	})
}
