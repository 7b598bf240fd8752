// Package queue defines the session lifecycle events exchanged over the
// message broker, the publisher used by the service layer and the audit
// consumer that records them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
)

// Event types.
const (
	SessionBooked    = "session.booked"
	SessionCompleted = "session.completed"
	SessionCanceled  = "session.canceled"
)

// SessionEvent is published after a booking, completion or cancellation
// has been committed.  It carries enough information for downstream
// consumers to audit or trigger analytics without querying the primary
// database.
type SessionEvent struct {
	EventID      string `json:"event_id"`
	Type         string `json:"type"`
	SessionID    uint64 `json:"session_id"`
	SlotID       uint64 `json:"slot_id"`
	ClientID     uint64 `json:"client_id"`
	ProviderID   uint64 `json:"provider_id"`
	FacilityID   uint64 `json:"facility_id"`
	Status       string `json:"status"`
	SlotDate     string `json:"slot_date,omitempty"`
	Weekday      string `json:"weekday,omitempty"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	TrainingType string `json:"training_type,omitempty"`
	OccurredAt   string `json:"occurred_at"` // RFC3339, UTC
}

// NewSessionEvent builds an event of typ from the committed session and
// slot.
func NewSessionEvent(typ string, sess *model.Session, slot *model.Slot, at time.Time) SessionEvent {
	ev := SessionEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		SessionID:  sess.ID,
		SlotID:     sess.SlotID,
		ClientID:   sess.ClientID,
		FacilityID: sess.FacilityID,
		Status:     string(sess.Status),
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
	if sess.TrainingType != nil {
		ev.TrainingType = *sess.TrainingType
	}
	if slot != nil {
		ev.ProviderID = slot.ProviderID
		ev.SlotDate = slot.Recurrence.Date
		ev.Weekday = slot.Recurrence.Weekday
		ev.StartTime = slot.StartTime
		ev.EndTime = slot.EndTime
	}
	return ev
}
