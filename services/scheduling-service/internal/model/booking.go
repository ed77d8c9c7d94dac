package model

import "time"

type BookingStatus string

const (
	StatusRequested BookingStatus = "REQUESTED"
	StatusApproved  BookingStatus = "APPROVED"
	StatusAssigned  BookingStatus = "ASSIGNED"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed out of the status.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Booking is a training-session request owned by a tenant. InstructorID stays
// nil until an assign or accept transition sets it; the transition timestamps
// are set once on the matching transition and never cleared.
type Booking struct {
	ID           string
	TenantID     string
	StudentID    string
	InstructorID *string
	Name         string
	RequestedAt  time.Time
	StartAt      time.Time
	EndAt        time.Time
	Status       BookingStatus
	ApprovedAt   *time.Time
	AssignedAt   *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CreatedAt    time.Time
}

// AssignedTo reports whether the booking is held by the given instructor.
func (b Booking) AssignedTo(instructorID string) bool {
	return b.InstructorID != nil && *b.InstructorID == instructorID
}

// AvailabilitySlot is an open offer by an instructor to be booked within
// [StartAt, EndAt). Slots may overlap each other; only bookings are checked
// for conflicts.
type AvailabilitySlot struct {
	ID           string
	TenantID     string
	InstructorID string
	StartAt      time.Time
	EndAt        time.Time
	CreatedAt    time.Time
}
