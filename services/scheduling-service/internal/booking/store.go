package booking

import (
	"context"
	"time"

	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

// Store provides access to booking records. All reads and writes are scoped
// to one tenant except ListStaleRequested, which the escalation sweeper uses
// across tenants.
//
// Begin opens a transaction; every single-booking mutation runs inside one so
// the conflict check and the subsequent write form one critical section. The
// Postgres implementation locks the booking row (SELECT ... FOR UPDATE) and
// backs the check with an exclusion constraint over
// (tenant_id, instructor_id, tstzrange(start_at, end_at)) for non-cancelled
// rows, so the loser of two racing assigns gets a conflict error instead of a
// double-booking.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	ListByTenant(ctx context.Context, tenantID, studentID string, limit, offset int) ([]model.Booking, int, error)
	ListInRange(ctx context.Context, tenantID string, start, end time.Time) ([]model.Booking, error)
	ListActiveForInstructor(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) ([]model.Booking, error)
	ListStaleRequested(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error)
}

// Tx is one transactional unit of booking work. Get returns a row locked
// against concurrent mutation until Commit or Rollback.
type Tx interface {
	Insert(ctx context.Context, b model.Booking) error
	Get(ctx context.Context, tenantID, bookingID string) (model.Booking, error)
	ListActiveForInstructor(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) ([]model.Booking, error)
	Update(ctx context.Context, b model.Booking) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AvailabilityStore holds the per-tenant, per-instructor offered time windows.
type AvailabilityStore interface {
	Insert(ctx context.Context, slot model.AvailabilitySlot) error
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.AvailabilitySlot, int, error)
	ListForInstructorInRange(ctx context.Context, tenantID, instructorID string, start, end time.Time) ([]model.AvailabilitySlot, error)
}
