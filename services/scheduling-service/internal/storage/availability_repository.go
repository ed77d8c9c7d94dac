package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nayeem-hossain/coursebook/libs/db"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

// AvailabilityRepository implements booking.AvailabilityStore on Postgres.
type AvailabilityRepository struct {
	pool *db.Pool
}

func NewAvailabilityRepository(pool *db.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

func (r *AvailabilityRepository) Insert(ctx context.Context, slot model.AvailabilitySlot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_slots (id, tenant_id, instructor_id, start_at, end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, slot.ID, slot.TenantID, slot.InstructorID, slot.StartAt, slot.EndAt, slot.CreatedAt)
	return err
}

func (r *AvailabilityRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.AvailabilitySlot, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM availability_slots WHERE tenant_id = $1
	`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, instructor_id, start_at, end_at, created_at
		FROM availability_slots
		WHERE tenant_id = $1
		ORDER BY start_at ASC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	slots, err := scanSlots(rows)
	if err != nil {
		return nil, 0, err
	}
	return slots, total, nil
}

func (r *AvailabilityRepository) ListForInstructorInRange(ctx context.Context, tenantID, instructorID string, start, end time.Time) ([]model.AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, instructor_id, start_at, end_at, created_at
		FROM availability_slots
		WHERE tenant_id = $1
			AND instructor_id = $2
			AND start_at < $4
			AND end_at > $3
		ORDER BY start_at ASC
	`, tenantID, instructorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlots(rows)
}

func scanSlots(rows pgx.Rows) ([]model.AvailabilitySlot, error) {
	var slots []model.AvailabilitySlot
	for rows.Next() {
		var slot model.AvailabilitySlot
		if err := rows.Scan(
			&slot.ID,
			&slot.TenantID,
			&slot.InstructorID,
			&slot.StartAt,
			&slot.EndAt,
			&slot.CreatedAt,
		); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}
