package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nayeem-hossain/coursebook/libs/db"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/booking"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

const bookingColumns = `id, tenant_id, student_id, instructor_id, name,
		requested_at, start_at, end_at, status,
		approved_at, assigned_at, completed_at, cancelled_at, created_at`

// BookingRepository implements booking.Store on Postgres. The bookings table
// carries an exclusion constraint over
// (tenant_id, instructor_id, tstzrange(start_at, end_at)) for non-cancelled
// rows, so a racing second writer fails with 23P01 even when both raced past
// the in-transaction conflict scan.
type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (booking.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &bookingTx{tx: tx}, nil
}

func (r *BookingRepository) ListByTenant(ctx context.Context, tenantID, studentID string, limit, offset int) ([]model.Booking, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE tenant_id = $1 AND ($2 = '' OR student_id = $2)
	`, tenantID, studentID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1 AND ($2 = '' OR student_id = $2)
		ORDER BY start_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bookings, err := scanBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func (r *BookingRepository) ListInRange(ctx context.Context, tenantID string, start, end time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
			AND status <> 'CANCELLED'
			AND start_at < $3
			AND end_at > $2
		ORDER BY start_at ASC
	`, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (r *BookingRepository) ListActiveForInstructor(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, activeForInstructorQuery, tenantID, instructorID, start, end, excludeBookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (r *BookingRepository) ListStaleRequested(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'REQUESTED'
			AND instructor_id IS NULL
			AND requested_at < $1
		ORDER BY requested_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

const activeForInstructorQuery = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE tenant_id = $1
			AND instructor_id = $2
			AND status <> 'CANCELLED'
			AND start_at < $4
			AND end_at > $3
			AND ($5 = '' OR id::text <> $5)
		ORDER BY start_at ASC`

type bookingTx struct {
	tx pgx.Tx
}

func (t *bookingTx) Insert(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, tenant_id, student_id, instructor_id, name, requested_at, start_at, end_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.TenantID, b.StudentID, b.InstructorID, b.Name,
		b.RequestedAt, b.StartAt, b.EndAt, b.Status, b.CreatedAt)
	return mapError(err)
}

func (t *bookingTx) Get(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, bookingID, tenantID)
	b, err := scanBooking(row)
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	return b, nil
}

func (t *bookingTx) ListActiveForInstructor(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) ([]model.Booking, error) {
	rows, err := t.tx.Query(ctx, activeForInstructorQuery, tenantID, instructorID, start, end, excludeBookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (t *bookingTx) Update(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET instructor_id = $3,
			status = $4,
			approved_at = $5,
			assigned_at = $6,
			completed_at = $7,
			cancelled_at = $8
		WHERE id = $1 AND tenant_id = $2
	`, b.ID, b.TenantID, b.InstructorID, b.Status,
		b.ApprovedAt, b.AssignedAt, b.CompletedAt, b.CancelledAt)
	return mapError(err)
}

func (t *bookingTx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx))
}

func (t *bookingTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.StudentID,
		&b.InstructorID,
		&b.Name,
		&b.RequestedAt,
		&b.StartAt,
		&b.EndAt,
		&b.Status,
		&b.ApprovedAt,
		&b.AssignedAt,
		&b.CompletedAt,
		&b.CancelledAt,
		&b.CreatedAt,
	)
	return b, err
}

func scanBookings(rows pgx.Rows) ([]model.Booking, error) {
	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

// mapError translates driver errors into domain error kinds: missing rows
// become NotFound (cross-tenant lookups land here on purpose) and exclusion
// constraint violations become Conflict.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.NewNotFound("booking not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return booking.NewConflict("instructor is already booked for this time slot")
	}
	return err
}
