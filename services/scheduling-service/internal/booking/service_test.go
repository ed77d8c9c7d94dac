package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/audit"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

type memStore struct {
	mu       sync.Mutex
	bookings map[string]model.Booking
}

func newMemStore() *memStore {
	return &memStore{bookings: make(map[string]model.Booking)}
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	return &memTx{store: s, pending: make(map[string]model.Booking)}, nil
}

func (s *memStore) ListByTenant(ctx context.Context, tenantID, studentID string, limit, offset int) ([]model.Booking, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID != tenantID {
			continue
		}
		if studentID != "" && b.StudentID != studentID {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (s *memStore) ListInRange(ctx context.Context, tenantID string, start, end time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID != tenantID || b.Status == model.StatusCancelled {
			continue
		}
		if b.StartAt.Before(end) && start.Before(b.EndAt) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) ListActiveForInstructor(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeForInstructorLocked(tenantID, instructorID, start, end, excludeBookingID), nil
}

func (s *memStore) activeForInstructorLocked(tenantID, instructorID string, start, end time.Time, excludeBookingID string) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID != tenantID || b.Status == model.StatusCancelled {
			continue
		}
		if b.InstructorID == nil || *b.InstructorID != instructorID {
			continue
		}
		if b.ID == excludeBookingID {
			continue
		}
		if b.StartAt.Before(end) && start.Before(b.EndAt) {
			out = append(out, b)
		}
	}
	return out
}

func (s *memStore) ListStaleRequested(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.Status != model.StatusRequested || b.InstructorID != nil {
			continue
		}
		if b.RequestedAt.Before(cutoff) {
			out = append(out, b)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// memTx holds the store lock from Begin until Commit or Rollback,
// serializing transactions the way row locks do in Postgres.
type memTx struct {
	store   *memStore
	pending map[string]model.Booking
	done    bool
}

func (t *memTx) Insert(ctx context.Context, b model.Booking) error {
	t.pending[b.ID] = b
	return nil
}

func (t *memTx) Get(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	if b, ok := t.pending[bookingID]; ok && b.TenantID == tenantID {
		return b, nil
	}
	b, ok := t.store.bookings[bookingID]
	if !ok || b.TenantID != tenantID {
		return model.Booking{}, NewNotFound("booking not found")
	}
	return b, nil
}

func (t *memTx) ListActiveForInstructor(ctx context.Context, tenantID, instructorID string, start, end time.Time, excludeBookingID string) ([]model.Booking, error) {
	return t.store.activeForInstructorLocked(tenantID, instructorID, start, end, excludeBookingID), nil
}

func (t *memTx) Update(ctx context.Context, b model.Booking) error {
	t.pending[b.ID] = b
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	for id, b := range t.pending {
		t.store.bookings[id] = b
	}
	t.finish()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.finish()
	return nil
}

func (t *memTx) finish() {
	if !t.done {
		t.done = true
		t.store.mu.Unlock()
	}
}

type memAvailability struct {
	slots []model.AvailabilitySlot
}

func (a *memAvailability) Insert(ctx context.Context, slot model.AvailabilitySlot) error {
	a.slots = append(a.slots, slot)
	return nil
}

func (a *memAvailability) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]model.AvailabilitySlot, int, error) {
	var out []model.AvailabilitySlot
	for _, slot := range a.slots {
		if slot.TenantID == tenantID {
			out = append(out, slot)
		}
	}
	return out, len(out), nil
}

func (a *memAvailability) ListForInstructorInRange(ctx context.Context, tenantID, instructorID string, start, end time.Time) ([]model.AvailabilitySlot, error) {
	var out []model.AvailabilitySlot
	for _, slot := range a.slots {
		if slot.TenantID != tenantID || slot.InstructorID != instructorID {
			continue
		}
		if slot.StartAt.Before(end) && start.Before(slot.EndAt) {
			out = append(out, slot)
		}
	}
	return out, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (c *captureSink) Record(ctx context.Context, evt audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *captureSink) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Action)
	}
	return out
}

type fixture struct {
	svc   *Service
	store *memStore
	avail *memAvailability
	sink  *captureSink
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		avail: &memAvailability{},
		sink:  &captureSink{},
		now:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.store, f.avail, f.sink, logger)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) createBooking(t *testing.T, student string, start, end time.Time) model.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(context.Background(), "tenant-1", student, "Algebra session", f.now, start, end)
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	return b
}

func (f *fixture) hour(h int) time.Time {
	return f.now.Add(time.Duration(h) * time.Hour)
}

func TestCreateBookingStartsRequested(t *testing.T) {
	f := newFixture(t)

	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))
	if b.Status != model.StatusRequested {
		t.Fatalf("expected REQUESTED, got %s", b.Status)
	}
	if b.InstructorID != nil {
		t.Fatalf("new booking must have no instructor, got %v", *b.InstructorID)
	}
	if b.ID == "" {
		t.Fatal("expected generated booking id")
	}
	if got := f.sink.actions(); len(got) != 1 || got[0] != audit.ActionCreate {
		t.Fatalf("expected one CREATE audit event, got %v", got)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name        string
		bookingName string
		start, end  time.Time
	}{
		{"empty name", "   ", f.hour(1), f.hour(2)},
		{"end before start", "Algebra", f.hour(2), f.hour(1)},
		{"zero length", "Algebra", f.hour(1), f.hour(1)},
		{"start before requested", "Algebra", f.hour(-1), f.hour(1)},
	}
	for _, tc := range cases {
		_, err := f.svc.CreateBooking(ctx, "tenant-1", "student-1", tc.bookingName, f.now, tc.start, tc.end)
		if !IsKind(err, KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
	if len(f.sink.actions()) != 0 {
		t.Fatal("rejected bookings must not emit audit events")
	}
}

func TestCreateBookingNameTooLong(t *testing.T) {
	f := newFixture(t)
	name := make([]byte, maxBookingNameLen+1)
	for i := range name {
		name[i] = 'a'
	}
	_, err := f.svc.CreateBooking(context.Background(), "tenant-1", "student-1", string(name), f.now, f.hour(1), f.hour(2))
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApproveBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	approved, err := f.svc.ApproveBooking(ctx, "tenant-1", b.ID)
	if err != nil {
		t.Fatalf("ApproveBooking: %v", err)
	}
	if approved.Status != model.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}
	if approved.ApprovedAt == nil || !approved.ApprovedAt.Equal(f.now) {
		t.Fatalf("expected approvedAt %v, got %v", f.now, approved.ApprovedAt)
	}

	// A second approve sees a non-REQUESTED booking and reports it absent.
	if _, err := f.svc.ApproveBooking(ctx, "tenant-1", b.ID); !IsKind(err, KindNotFound) {
		t.Fatalf("expected not found on re-approve, got %v", err)
	}
}

func TestApproveBookingWrongTenant(t *testing.T) {
	f := newFixture(t)
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	if _, err := f.svc.ApproveBooking(context.Background(), "tenant-2", b.ID); !IsKind(err, KindNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
}

func TestAssignInstructor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	assigned, err := f.svc.AssignInstructor(ctx, "tenant-1", b.ID, "instr-1")
	if err != nil {
		t.Fatalf("AssignInstructor: %v", err)
	}
	if assigned.Status != model.StatusAssigned {
		t.Fatalf("expected ASSIGNED, got %s", assigned.Status)
	}
	if assigned.InstructorID == nil || *assigned.InstructorID != "instr-1" {
		t.Fatalf("expected instructor instr-1, got %v", assigned.InstructorID)
	}
	if !assigned.StartAt.Equal(b.StartAt) || !assigned.EndAt.Equal(b.EndAt) {
		t.Fatal("assignment must not alter the booking interval")
	}
	if got := f.sink.actions(); got[len(got)-1] != audit.ActionAssign {
		t.Fatalf("expected ASSIGN audit event, got %v", got)
	}
}

func TestAssignInstructorConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createBooking(t, "student-1", f.hour(1), f.hour(3))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", first.ID, "instr-1"); err != nil {
		t.Fatalf("assign first: %v", err)
	}

	// Overlapping interval for the same instructor must be rejected.
	second := f.createBooking(t, "student-2", f.hour(2), f.hour(4))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", second.ID, "instr-1"); !IsKind(err, KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// The losing booking keeps its pre-attempt state.
	got, _, err := f.svc.ListBookings(ctx, "tenant-1", "student-2", 10, 0)
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(got) != 1 || got[0].Status != model.StatusRequested || got[0].InstructorID != nil {
		t.Fatalf("conflicted booking must stay REQUESTED and unassigned, got %+v", got[0])
	}

	// Touching intervals do not conflict; a different instructor is also free.
	third := f.createBooking(t, "student-3", f.hour(3), f.hour(5))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", third.ID, "instr-1"); err != nil {
		t.Fatalf("touching interval must not conflict: %v", err)
	}
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", second.ID, "instr-2"); err != nil {
		t.Fatalf("different instructor must not conflict: %v", err)
	}
}

func TestAssignInstructorCancelledBookingFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createBooking(t, "student-1", f.hour(1), f.hour(2))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", first.ID, "instr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.CancelBooking(ctx, "tenant-1", first.ID, "instr-1", false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second := f.createBooking(t, "student-2", f.hour(1), f.hour(2))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", second.ID, "instr-1"); err != nil {
		t.Fatalf("cancelled booking must not block the slot: %v", err)
	}
}

func TestAssignInstructorIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", b.ID, "instr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	audits := len(f.sink.actions())

	again, err := f.svc.AssignInstructor(ctx, "tenant-1", b.ID, "instr-1")
	if err != nil {
		t.Fatalf("re-assign same instructor must be a no-op: %v", err)
	}
	if again.Status != model.StatusAssigned {
		t.Fatalf("expected ASSIGNED, got %s", again.Status)
	}
	if len(f.sink.actions()) != audits {
		t.Fatal("no-op re-assign must not emit an audit event")
	}

	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", b.ID, "instr-2"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for different instructor, got %v", err)
	}
}

func TestAssignInstructorTerminalStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := f.createBooking(t, "student-1", f.hour(1), f.hour(2))
	if _, err := f.svc.CancelBooking(ctx, "tenant-1", cancelled.ID, "student-1", false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", cancelled.ID, "instr-1"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error on cancelled booking, got %v", err)
	}

	completed := f.createBooking(t, "student-2", f.hour(3), f.hour(4))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", completed.ID, "instr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.CompleteBooking(ctx, "tenant-1", completed.ID, "instr-1", false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", completed.ID, "instr-2"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error on completed booking, got %v", err)
	}
}

func TestAcceptBookingRequiresAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	_, err := f.svc.AcceptBooking(ctx, "tenant-1", b.ID, "instr-1")
	if !IsKind(err, KindNoAvailability) {
		t.Fatalf("expected no-availability error, got %v", err)
	}

	// A slot merely overlapping the interval is enough.
	if _, err := f.svc.CreateAvailability(ctx, "tenant-1", "instr-1", f.hour(1).Add(30*time.Minute), f.hour(4)); err != nil {
		t.Fatalf("CreateAvailability: %v", err)
	}
	accepted, err := f.svc.AcceptBooking(ctx, "tenant-1", b.ID, "instr-1")
	if err != nil {
		t.Fatalf("AcceptBooking: %v", err)
	}
	if accepted.Status != model.StatusAssigned {
		t.Fatalf("expected ASSIGNED, got %s", accepted.Status)
	}
	if accepted.InstructorID == nil || *accepted.InstructorID != "instr-1" {
		t.Fatalf("expected instructor instr-1, got %v", accepted.InstructorID)
	}
	if got := f.sink.actions(); got[len(got)-1] != audit.ActionAccept {
		t.Fatalf("expected ACCEPT audit event, got %v", got)
	}
}

func TestAcceptBookingTouchingSlotDoesNotCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	// Slot ends exactly where the booking starts.
	if _, err := f.svc.CreateAvailability(ctx, "tenant-1", "instr-1", f.hour(0), f.hour(1)); err != nil {
		t.Fatalf("CreateAvailability: %v", err)
	}
	if _, err := f.svc.AcceptBooking(ctx, "tenant-1", b.ID, "instr-1"); !IsKind(err, KindNoAvailability) {
		t.Fatalf("expected no-availability for touching slot, got %v", err)
	}
}

func TestAcceptBookingAlreadyAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	if _, err := f.svc.CreateAvailability(ctx, "tenant-1", "instr-1", f.hour(0), f.hour(5)); err != nil {
		t.Fatalf("CreateAvailability: %v", err)
	}
	if _, err := f.svc.AcceptBooking(ctx, "tenant-1", b.ID, "instr-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.AcceptBooking(ctx, "tenant-1", b.ID, "instr-1"); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error on second accept, got %v", err)
	}
}

func TestAcceptBookingConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateAvailability(ctx, "tenant-1", "instr-1", f.hour(0), f.hour(10)); err != nil {
		t.Fatalf("CreateAvailability: %v", err)
	}
	first := f.createBooking(t, "student-1", f.hour(1), f.hour(3))
	if _, err := f.svc.AcceptBooking(ctx, "tenant-1", first.ID, "instr-1"); err != nil {
		t.Fatalf("accept first: %v", err)
	}

	second := f.createBooking(t, "student-2", f.hour(2), f.hour(4))
	if _, err := f.svc.AcceptBooking(ctx, "tenant-1", second.ID, "instr-1"); !IsKind(err, KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCompleteBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	// Not assigned yet: actor check runs first for outsiders.
	if _, err := f.svc.CompleteBooking(ctx, "tenant-1", b.ID, "instr-1", false); !IsKind(err, KindForbidden) {
		t.Fatalf("expected forbidden before assignment, got %v", err)
	}
	// An admin passes the actor check but hits the state guard.
	if _, err := f.svc.CompleteBooking(ctx, "tenant-1", b.ID, "admin-1", true); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation for unassigned booking, got %v", err)
	}

	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", b.ID, "instr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.CompleteBooking(ctx, "tenant-1", b.ID, "instr-2", false); !IsKind(err, KindForbidden) {
		t.Fatalf("expected forbidden for other instructor, got %v", err)
	}

	done, err := f.svc.CompleteBooking(ctx, "tenant-1", b.ID, "instr-1", false)
	if err != nil {
		t.Fatalf("CompleteBooking: %v", err)
	}
	if done.Status != model.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatal("expected completedAt to be set")
	}
	if _, err := f.svc.CompleteBooking(ctx, "tenant-1", b.ID, "instr-1", false); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation on double complete, got %v", err)
	}
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.createBooking(t, "student-1", f.hour(1), f.hour(2))

	if _, err := f.svc.CancelBooking(ctx, "tenant-1", b.ID, "student-2", false); !IsKind(err, KindForbidden) {
		t.Fatalf("expected forbidden for another student, got %v", err)
	}

	cancelled, err := f.svc.CancelBooking(ctx, "tenant-1", b.ID, "student-1", false)
	if err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("expected cancelledAt to be set")
	}

	if _, err := f.svc.CancelBooking(ctx, "tenant-1", b.ID, "student-1", false); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation on double cancel, got %v", err)
	}
	if got := f.sink.actions(); got[len(got)-1] != audit.ActionCancel {
		t.Fatalf("expected CANCEL as last audit event, got %v", got)
	}
}

func TestCancelBookingByAssignedInstructorAndAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	byInstructor := f.createBooking(t, "student-1", f.hour(1), f.hour(2))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", byInstructor.ID, "instr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.CancelBooking(ctx, "tenant-1", byInstructor.ID, "instr-1", false); err != nil {
		t.Fatalf("assigned instructor must be able to cancel: %v", err)
	}

	byAdmin := f.createBooking(t, "student-1", f.hour(3), f.hour(4))
	if _, err := f.svc.CancelBooking(ctx, "tenant-1", byAdmin.ID, "admin-1", true); err != nil {
		t.Fatalf("admin must be able to cancel: %v", err)
	}

	completed := f.createBooking(t, "student-1", f.hour(5), f.hour(6))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", completed.ID, "instr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.CompleteBooking(ctx, "tenant-1", completed.ID, "instr-1", false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.CancelBooking(ctx, "tenant-1", completed.ID, "admin-1", true); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation for completed booking, got %v", err)
	}
}

func TestHasConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.createBooking(t, "student-1", f.hour(1), f.hour(3))
	if _, err := f.svc.AssignInstructor(ctx, "tenant-1", b.ID, "instr-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	got, err := f.svc.HasConflict(ctx, "tenant-1", "instr-1", f.hour(2), f.hour(4), "")
	if err != nil {
		t.Fatalf("HasConflict: %v", err)
	}
	if !got {
		t.Fatal("expected overlap to report a conflict")
	}

	got, err = f.svc.HasConflict(ctx, "tenant-1", "instr-1", f.hour(3), f.hour(4), "")
	if err != nil {
		t.Fatalf("HasConflict: %v", err)
	}
	if got {
		t.Fatal("touching intervals must not conflict")
	}

	// Excluding the booking itself reports no conflict.
	got, err = f.svc.HasConflict(ctx, "tenant-1", "instr-1", f.hour(1), f.hour(3), b.ID)
	if err != nil {
		t.Fatalf("HasConflict: %v", err)
	}
	if got {
		t.Fatal("excluded booking must not conflict with itself")
	}

	got, err = f.svc.HasConflict(ctx, "tenant-1", "", f.hour(1), f.hour(3), "")
	if err != nil {
		t.Fatalf("HasConflict: %v", err)
	}
	if got {
		t.Fatal("empty instructor can never conflict")
	}
}

func TestListWeekly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	inside := f.createBooking(t, "student-1", weekStart.Add(24*time.Hour), weekStart.Add(25*time.Hour))
	// Spans the week boundary; overlap is enough to be listed.
	spanning := f.createBooking(t, "student-1", weekStart.Add(6*24*time.Hour+23*time.Hour), weekStart.Add(7*24*time.Hour+time.Hour))
	// Starts exactly at the end of the half-open week.
	f.createBooking(t, "student-1", weekStart.Add(7*24*time.Hour), weekStart.Add(7*24*time.Hour+time.Hour))

	got, err := f.svc.ListWeekly(ctx, "tenant-1", weekStart)
	if err != nil {
		t.Fatalf("ListWeekly: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bookings in week, got %d", len(got))
	}
	ids := map[string]bool{got[0].ID: true, got[1].ID: true}
	if !ids[inside.ID] || !ids[spanning.ID] {
		t.Fatalf("unexpected weekly listing: %v", ids)
	}
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("kafka down")

	b, err := f.svc.CreateBooking(context.Background(), "tenant-1", "student-1", "Algebra", f.now, f.hour(1), f.hour(2))
	if err != nil {
		t.Fatalf("transition must survive audit failure: %v", err)
	}
	if b.Status != model.StatusRequested {
		t.Fatalf("expected REQUESTED, got %s", b.Status)
	}
}
