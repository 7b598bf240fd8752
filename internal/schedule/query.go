// Package schedule builds the read-only views over slots and sessions: a
// provider's schedule and a client's booking history.  It takes no locks
// and may observe a state that is already stale when returned.
package schedule

import (
	"context"

	"github.com/iliyamo/trainer-slot-booking/internal/booking"
	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/repository"
)

// SlotReader lists a provider's slots with their active session attached.
type SlotReader interface {
	ListByProviderWithActive(ctx context.Context, providerID uint64, f model.SlotFilter) ([]repository.SlotWithSession, error)
}

// SessionReader lists a client's sessions joined with slot timing.
type SessionReader interface {
	ListByClient(ctx context.Context, clientID uint64) ([]repository.ClientSession, error)
}

// ActiveSession is the part of an active session shown on a provider's
// schedule.
type ActiveSession struct {
	SessionID  uint64              `json:"session_id"`
	ClientID   uint64              `json:"client_id"`
	FacilityID uint64              `json:"facility_id"`
	Status     model.SessionStatus `json:"status"`
}

// EnrichedSlot is a slot with its active session, if any.  Session is nil
// for available and withdrawn slots.
type EnrichedSlot struct {
	model.Slot
	Session *ActiveSession `json:"session"`
}

// EnrichedSession is a session with the timing and provider of its slot.
type EnrichedSession struct {
	model.Session
	ProviderID uint64           `json:"provider_id"`
	Recurrence model.Recurrence `json:"recurrence"`
	StartTime  string           `json:"start_time"`
	EndTime    string           `json:"end_time"`
}

// Query composes the two views.
type Query struct {
	slots    SlotReader
	sessions SessionReader
}

// NewQuery returns a Query reading from the given stores.
func NewQuery(slots SlotReader, sessions SessionReader) *Query {
	return &Query{slots: slots, sessions: sessions}
}

// ProviderSlots returns the provider's slots matching f in schedule order,
// each with its active session when occupied.
func (q *Query) ProviderSlots(ctx context.Context, providerID uint64, f model.SlotFilter) ([]EnrichedSlot, error) {
	rows, err := q.slots.ListByProviderWithActive(ctx, providerID, f)
	if err != nil {
		return nil, booking.Classify("list provider slots", err)
	}
	out := make([]EnrichedSlot, 0, len(rows))
	for _, r := range rows {
		es := EnrichedSlot{Slot: r.Slot}
		if r.Session != nil {
			es.Session = &ActiveSession{
				SessionID:  r.Session.ID,
				ClientID:   r.Session.ClientID,
				FacilityID: r.Session.FacilityID,
				Status:     r.Session.Status,
			}
		}
		out = append(out, es)
	}
	return out, nil
}

// ClientSessions returns every session of the client, any status, in
// chronological order of their slots.
func (q *Query) ClientSessions(ctx context.Context, clientID uint64) ([]EnrichedSession, error) {
	rows, err := q.sessions.ListByClient(ctx, clientID)
	if err != nil {
		return nil, booking.Classify("list client sessions", err)
	}
	out := make([]EnrichedSession, 0, len(rows))
	for _, r := range rows {
		out = append(out, EnrichedSession{
			Session:    r.Session,
			ProviderID: r.ProviderID,
			Recurrence: r.Recurrence,
			StartTime:  r.StartTime,
			EndTime:    r.EndTime,
		})
	}
	return out, nil
}
