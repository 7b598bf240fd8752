package model

import "time"

// SessionStatus is the lifecycle state of a booking.  Completed and
// canceled are terminal.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCanceled  SessionStatus = "canceled"
)

// Terminal reports whether no further transition is allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCanceled
}

// Valid reports whether s is one of the known session statuses.
func (s SessionStatus) Valid() bool {
	return s == SessionActive || s.Terminal()
}

// Session records one client's booking against one slot.  Sessions are
// created active by the booking engine, move once to a terminal status
// and are kept as history.  This struct corresponds to a row in the
// `sessions` table.
//
// Fields:
//
//	ID           – primary key identifier.
//	ClientID     – user who booked the slot.
//	SlotID       – booked slot; immutable.
//	FacilityID   – gym where the session takes place.
//	Status       – active, completed or canceled.
//	TrainingType – optional, recorded on completion.
//	Notes        – optional, recorded on completion.
//	CreatedAt    – creation timestamp.
//	UpdatedAt    – last update timestamp.
type Session struct {
	ID           uint64        `json:"id"`                      // sessions.id
	ClientID     uint64        `json:"client_id"`               // sessions.client_id
	SlotID       uint64        `json:"slot_id"`                 // sessions.slot_id
	FacilityID   uint64        `json:"facility_id"`             // sessions.facility_id
	Status       SessionStatus `json:"status"`                  // sessions.status
	TrainingType *string       `json:"training_type,omitempty"` // sessions.training_type (nullable)
	Notes        *string       `json:"notes,omitempty"`         // sessions.notes (nullable)
	CreatedAt    time.Time     `json:"created_at"`              // sessions.created_at (unix millis)
	UpdatedAt    time.Time     `json:"updated_at"`              // sessions.updated_at (unix millis)
}

// SessionFields carries the optional attributes written together with a
// status transition.  Nil pointers leave the stored value untouched.
type SessionFields struct {
	TrainingType *string
	Notes        *string
}
