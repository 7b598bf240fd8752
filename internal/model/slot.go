package model

import "time"

// SlotStatus is the occupancy state of a slot.  Only the booking engine
// moves a slot between statuses.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available" // open for booking
	SlotOccupied  SlotStatus = "occupied"  // held by exactly one active session
	SlotWithdrawn SlotStatus = "withdrawn" // removed from offer by the provider
)

// Valid reports whether s is one of the known slot statuses.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotOccupied, SlotWithdrawn:
		return true
	}
	return false
}

// Slot represents a provider's offered time window.  A slot is either a
// weekly template (Recurrence.Kind == RecurrenceWeekly) or a concrete
// dated instance (Recurrence.Kind == RecurrenceDated); never both.  This
// struct corresponds to a row in the `slots` table.
//
// Fields:
//
//	ID         – primary key identifier.
//	ProviderID – user ID of the trainer offering the slot.
//	Recurrence – weekday template or calendar date.
//	StartTime  – local start time, "HH:MM".
//	EndTime    – local end time, "HH:MM"; always after StartTime.
//	Status     – available, occupied or withdrawn.
//	CreatedAt  – creation timestamp.
//	UpdatedAt  – last update timestamp.
type Slot struct {
	ID         uint64     `json:"id"`          // slots.id
	ProviderID uint64     `json:"provider_id"` // slots.provider_id
	Recurrence Recurrence `json:"recurrence"`  // slots.recurrence_kind + weekday + slot_date
	StartTime  string     `json:"start_time"`  // slots.start_time
	EndTime    string     `json:"end_time"`    // slots.end_time
	Status     SlotStatus `json:"status"`      // slots.status
	CreatedAt  time.Time  `json:"created_at"`  // slots.created_at (unix millis)
	UpdatedAt  time.Time  `json:"updated_at"`  // slots.updated_at (unix millis)
}

// SlotInput carries the provider-supplied attributes of a slot.  Exactly
// one of Weekday and Date must be set.  The validate tags are checked by
// the validation package; cross-field rules (start before end, exactly one
// recurrence field) are checked by SlotInput.Recurrence and the store.
type SlotInput struct {
	ProviderID uint64 `json:"provider_id" validate:"required,gt=0"`
	Weekday    string `json:"weekday" validate:"omitempty,weekday"`
	Date       string `json:"date" validate:"omitempty,isodate"`
	StartTime  string `json:"start_time" validate:"required,hhmm"`
	EndTime    string `json:"end_time" validate:"required,hhmm"`
}

// SlotFilter narrows ListByProvider results.  Zero values mean "no
// filter".  From and To ("YYYY-MM-DD", inclusive) restrict the result to
// dated slots inside the range.
type SlotFilter struct {
	Status  SlotStatus
	Kind    RecurrenceKind
	Weekday string
	From    string
	To      string
}
