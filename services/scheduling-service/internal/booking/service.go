package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/audit"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/identity"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/interval"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

const maxBookingNameLen = 200

// Service owns the booking lifecycle: who may trigger each transition, the
// conflict-freedom invariant for instructor assignment, and the audit event
// emitted after every successful transition.
type Service struct {
	store        Store
	availability AvailabilityStore
	sink         audit.Sink
	logger       *slog.Logger
	now          func() time.Time
}

func NewService(store Store, availability AvailabilityStore, sink audit.Sink, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		availability: availability,
		sink:         sink,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateBooking opens a new booking in REQUESTED with no instructor.
func (s *Service) CreateBooking(ctx context.Context, tenantID, studentID, name string, requestedAt, startAt, endAt time.Time) (model.Booking, error) {
	if tenantID == "" || studentID == "" {
		return model.Booking{}, NewValidation("tenant and student are required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Booking{}, NewValidation("booking name is required")
	}
	if len(name) > maxBookingNameLen {
		return model.Booking{}, NewValidation("booking name must be at most %d characters", maxBookingNameLen)
	}
	if !endAt.After(startAt) {
		return model.Booking{}, NewValidation("endAt must be after startAt")
	}
	if startAt.Before(requestedAt) {
		return model.Booking{}, NewValidation("preferred start cannot be before the request time")
	}

	b := model.Booking{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		StudentID:   studentID,
		Name:        name,
		RequestedAt: requestedAt,
		StartAt:     startAt,
		EndAt:       endAt,
		Status:      model.StatusRequested,
		CreatedAt:   s.now().UTC(),
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.Insert(ctx, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}

	s.emit(ctx, audit.ActionCreate, b, "", snapshot{Status: b.Status, StartAt: &b.StartAt, EndAt: &b.EndAt}.encode())
	return b, nil
}

// ApproveBooking moves REQUESTED to APPROVED. A booking in any other state is
// reported as absent, matching the tenant-scoped lookup contract.
func (s *Service) ApproveBooking(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.Get(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.StatusRequested {
		return model.Booking{}, NewNotFound("booking not found")
	}

	before := snapshot{Status: b.Status}.encode()
	now := s.now().UTC()
	b.Status = model.StatusApproved
	b.ApprovedAt = &now

	if err := tx.Update(ctx, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}

	s.emit(ctx, audit.ActionApproval, b, before, snapshot{Status: b.Status}.encode())
	return b, nil
}

// AssignInstructor puts the booking on the target instructor's calendar,
// provided no non-cancelled booking of theirs overlaps the requested
// interval. Re-assigning the same instructor is a no-op; anything else after
// assignment is rejected.
func (s *Service) AssignInstructor(ctx context.Context, tenantID, bookingID, instructorID string) (model.Booking, error) {
	if instructorID == "" {
		return model.Booking{}, NewValidation("instructorId is required")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.Get(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	switch b.Status {
	case model.StatusCancelled:
		return model.Booking{}, NewValidation("cannot assign a cancelled booking")
	case model.StatusCompleted:
		return model.Booking{}, NewValidation("cannot assign a completed booking")
	case model.StatusAssigned:
		if b.AssignedTo(instructorID) {
			return b, nil
		}
		return model.Booking{}, NewValidation("booking already has an instructor assigned")
	}

	if err := ensureNoConflict(ctx, tx, tenantID, instructorID, b.StartAt, b.EndAt, b.ID); err != nil {
		return model.Booking{}, err
	}

	before := snapshot{Status: b.Status, InstructorID: b.InstructorID}.encode()
	now := s.now().UTC()
	b.InstructorID = &instructorID
	b.Status = model.StatusAssigned
	b.AssignedAt = &now

	if err := tx.Update(ctx, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}

	s.emit(ctx, audit.ActionAssign, b, before, snapshot{Status: b.Status, InstructorID: b.InstructorID}.encode())
	return b, nil
}

// AcceptBooking is the instructor self-assign path: the accepting instructor
// must have declared availability overlapping the booking interval and must
// be conflict-free for it.
func (s *Service) AcceptBooking(ctx context.Context, tenantID, bookingID, instructorID string) (model.Booking, error) {
	if instructorID == "" {
		return model.Booking{}, NewValidation("instructorId is required")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.Get(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.StatusCancelled {
		return model.Booking{}, NewValidation("cannot accept a cancelled booking")
	}
	if b.InstructorID != nil {
		return model.Booking{}, NewValidation("booking already has an instructor assigned")
	}

	slots, err := s.availability.ListForInstructorInRange(ctx, tenantID, instructorID, b.StartAt, b.EndAt)
	if err != nil {
		return model.Booking{}, err
	}
	offered := make([]interval.Interval, 0, len(slots))
	for _, slot := range slots {
		offered = append(offered, interval.Interval{Start: slot.StartAt, End: slot.EndAt})
	}
	if !interval.OverlapsAny(b.StartAt, b.EndAt, offered) {
		return model.Booking{}, NewNoAvailability("you do not have availability for this time slot")
	}

	if err := ensureNoConflict(ctx, tx, tenantID, instructorID, b.StartAt, b.EndAt, b.ID); err != nil {
		return model.Booking{}, err
	}

	before := snapshot{Status: b.Status, InstructorID: b.InstructorID}.encode()
	now := s.now().UTC()
	b.InstructorID = &instructorID
	b.Status = model.StatusAssigned
	b.AssignedAt = &now

	if err := tx.Update(ctx, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}

	s.emit(ctx, audit.ActionAccept, b, before, snapshot{Status: b.Status, InstructorID: b.InstructorID}.encode())
	return b, nil
}

// CompleteBooking closes an ASSIGNED booking. Only the assigned instructor or
// an administrator may do so.
func (s *Service) CompleteBooking(ctx context.Context, tenantID, bookingID, actorID string, actorIsAdmin bool) (model.Booking, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.Get(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.AssignedTo(actorID) && !actorIsAdmin {
		return model.Booking{}, NewForbidden("only the assigned instructor or an admin can complete this booking")
	}
	if b.Status != model.StatusAssigned {
		return model.Booking{}, NewValidation("only assigned bookings can be completed")
	}

	before := snapshot{Status: b.Status}.encode()
	now := s.now().UTC()
	b.Status = model.StatusCompleted
	b.CompletedAt = &now

	if err := tx.Update(ctx, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}

	s.emit(ctx, audit.ActionComplete, b, before, snapshot{Status: b.Status}.encode())
	return b, nil
}

// CancelBooking moves any non-terminal booking to CANCELLED. The requesting
// student, the assigned instructor, and administrators may cancel.
func (s *Service) CancelBooking(ctx context.Context, tenantID, bookingID, actorID string, actorIsAdmin bool) (model.Booking, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := tx.Get(ctx, tenantID, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.StudentID != actorID && !b.AssignedTo(actorID) && !actorIsAdmin {
		return model.Booking{}, NewForbidden("not authorized to cancel this booking")
	}
	if b.Status.Terminal() {
		return model.Booking{}, NewValidation("cannot cancel a %s booking", strings.ToLower(string(b.Status)))
	}

	before := snapshot{Status: b.Status}.encode()
	now := s.now().UTC()
	b.Status = model.StatusCancelled
	b.CancelledAt = &now

	if err := tx.Update(ctx, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}

	s.emit(ctx, audit.ActionCancel, b, before, snapshot{Status: b.Status}.encode())
	return b, nil
}

// HasConflict reports whether any non-cancelled booking for the instructor
// overlaps [start, end), excluding excludeBookingID. Read-only; assign and
// accept re-run the same check inside their transaction.
func (s *Service) HasConflict(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) (bool, error) {
	if instructorID == "" {
		return false, nil
	}
	candidates, err := s.store.ListActiveForInstructor(ctx, tenantID, instructorID, start, end, excludeBookingID)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if interval.Overlaps(start, end, c.StartAt, c.EndAt) {
			return true, nil
		}
	}
	return false, nil
}

// CreateAvailability records an instructor's offered window. Overlap with
// existing slots or bookings is deliberately not checked here; the conflict
// invariant lives at the booking layer.
func (s *Service) CreateAvailability(ctx context.Context, tenantID, instructorID string, startAt, endAt time.Time) (model.AvailabilitySlot, error) {
	if tenantID == "" || instructorID == "" {
		return model.AvailabilitySlot{}, NewValidation("tenant and instructor are required")
	}
	if !endAt.After(startAt) {
		return model.AvailabilitySlot{}, NewValidation("endAt must be after startAt")
	}
	slot := model.AvailabilitySlot{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		InstructorID: instructorID,
		StartAt:      startAt,
		EndAt:        endAt,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.availability.Insert(ctx, slot); err != nil {
		return model.AvailabilitySlot{}, err
	}
	return slot, nil
}

func (s *Service) ListAvailability(ctx context.Context, tenantID string, limit, offset int) ([]model.AvailabilitySlot, int, error) {
	return s.availability.ListByTenant(ctx, tenantID, limit, offset)
}

// ListBookings returns the tenant's bookings, newest first. A non-empty
// studentID narrows the listing to that student's own bookings.
func (s *Service) ListBookings(ctx context.Context, tenantID, studentID string, limit, offset int) ([]model.Booking, int, error) {
	return s.store.ListByTenant(ctx, tenantID, studentID, limit, offset)
}

// ListWeekly returns the tenant's non-cancelled bookings overlapping the
// half-open week [weekStart, weekStart+7d).
func (s *Service) ListWeekly(ctx context.Context, tenantID string, weekStart time.Time) ([]model.Booking, error) {
	return s.store.ListInRange(ctx, tenantID, weekStart, weekStart.AddDate(0, 0, 7))
}

type conflictLister interface {
	ListActiveForInstructor(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) ([]model.Booking, error)
}

func ensureNoConflict(ctx context.Context, lister conflictLister, tenantID, instructorID string, start, end time.Time, excludeBookingID string) error {
	candidates, err := lister.ListActiveForInstructor(ctx, tenantID, instructorID, start, end, excludeBookingID)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if interval.Overlaps(start, end, c.StartAt, c.EndAt) {
			return NewConflict("instructor is already booked for this time slot")
		}
	}
	return nil
}

// snapshot is the before/after state payload carried on audit events.
type snapshot struct {
	Status       model.BookingStatus `json:"status"`
	InstructorID *string             `json:"instructorId,omitempty"`
	StartAt      *time.Time          `json:"startAt,omitempty"`
	EndAt        *time.Time          `json:"endAt,omitempty"`
}

func (sn snapshot) encode() string {
	raw, err := json.Marshal(sn)
	if err != nil {
		return ""
	}
	return string(raw)
}

// emit dispatches the audit event for a committed transition. Audit failures
// are logged and never fail the transition.
func (s *Service) emit(ctx context.Context, action string, b model.Booking, before, after string) {
	evt := audit.Event{
		TenantID:    b.TenantID,
		Action:      action,
		Resource:    audit.ResourceSchedule,
		ResourceID:  b.ID,
		BeforeState: before,
		AfterState:  after,
	}
	if id, ok := identity.FromContext(ctx); ok {
		evt.UserID = id.UserID
		evt.CorrelationID = id.CorrelationID
	}
	if err := s.sink.Record(ctx, evt); err != nil {
		s.logger.Error("audit record failed", "action", action, "booking_id", b.ID, "err", err)
	}
}
