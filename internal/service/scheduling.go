// Package service exposes the scheduling operations to the transport
// layer.  It bounds each operation with a timeout, retries transient store
// failures with exponential backoff and, once a change has been committed,
// publishes the lifecycle event and drops the provider's cached schedule.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/booking"
	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/queue"
	"github.com/iliyamo/trainer-slot-booking/internal/schedule"
)

// DefaultFacilityID is used when a booking names no facility.
const DefaultFacilityID uint64 = 1

// Engine is the booking state machine.
type Engine interface {
	CreateSlot(ctx context.Context, in model.SlotInput) (*model.Slot, error)
	Book(ctx context.Context, clientID, slotID, facilityID uint64) (*booking.Booking, error)
	Complete(ctx context.Context, sessionID uint64, fields model.SessionFields) (*booking.Booking, error)
	Cancel(ctx context.Context, sessionID uint64) (*booking.Booking, error)
	DeleteSlot(ctx context.Context, slotID uint64) (bool, error)
	WithdrawSlot(ctx context.Context, slotID uint64) (*model.Slot, error)
	RestoreSlot(ctx context.Context, slotID uint64) (*model.Slot, error)
	UpdateSlot(ctx context.Context, slotID uint64, in model.SlotInput) (*model.Slot, error)
}

// Query is the read side.
type Query interface {
	ProviderSlots(ctx context.Context, providerID uint64, f model.SlotFilter) ([]schedule.EnrichedSlot, error)
	ClientSessions(ctx context.Context, clientID uint64) ([]schedule.EnrichedSession, error)
}

// SlotReader loads single slots.
type SlotReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Slot, error)
}

// SessionReader loads single sessions.
type SessionReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
}

// EventPublisher delivers lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.SessionEvent) error
}

// CacheInvalidator drops cached schedule responses for a provider.
type CacheInvalidator interface {
	InvalidateProvider(ctx context.Context, providerID uint64) error
}

// RetryPolicy bounds the retries of transient failures.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options configures a Scheduling service.  Zero values select sensible
// defaults; a nil Publisher or Cache disables that side effect.
type Options struct {
	OpTimeout time.Duration
	Retry     RetryPolicy
	Publisher EventPublisher
	Cache     CacheInvalidator
	Log       *zap.Logger
	Now       func() time.Time
}

// Scheduling is the service facade used by HTTP handlers.
type Scheduling struct {
	engine   Engine
	query    Query
	slots    SlotReader
	sessions SessionReader

	opTimeout time.Duration
	retry     RetryPolicy
	publisher EventPublisher
	cache     CacheInvalidator
	log       *zap.Logger
	now       func() time.Time
}

// NewScheduling wires the facade.
func NewScheduling(engine Engine, query Query, slots SlotReader, sessions SessionReader, opts Options) *Scheduling {
	s := &Scheduling{
		engine:    engine,
		query:     query,
		slots:     slots,
		sessions:  sessions,
		opTimeout: opts.OpTimeout,
		retry:     opts.Retry,
		publisher: opts.Publisher,
		cache:     opts.Cache,
		log:       opts.Log,
		now:       opts.Now,
	}
	if s.opTimeout <= 0 {
		s.opTimeout = 5 * time.Second
	}
	if s.retry.InitialInterval <= 0 {
		s.retry.InitialInterval = 50 * time.Millisecond
	}
	if s.retry.MaxInterval <= 0 {
		s.retry.MaxInterval = time.Second
	}
	if s.publisher == nil {
		s.publisher = queue.NopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.log = s.log.Named("scheduling")
	return s
}

// run executes fn under the operation timeout, retrying while it fails
// with a transient error.  Every other kind is returned at once.
func (s *Scheduling) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.InitialInterval
	eb.MaxInterval = s.retry.MaxInterval
	eb.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, s.retry.MaxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, booking.ErrTransient) {
			s.log.Warn("transient store error",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}, bo)
	return booking.Classify(op, err)
}

// CreateSlot stores a new available slot.
func (s *Scheduling) CreateSlot(ctx context.Context, in model.SlotInput) (*model.Slot, error) {
	var out *model.Slot
	err := s.run(ctx, "create slot", func(ctx context.Context) (err error) {
		out, err = s.engine.CreateSlot(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, out.ProviderID)
	return out, nil
}

// GetSlot returns one slot.
func (s *Scheduling) GetSlot(ctx context.Context, slotID uint64) (*model.Slot, error) {
	var out *model.Slot
	err := s.run(ctx, "get slot", func(ctx context.Context) (err error) {
		out, err = s.slots.GetByID(ctx, slotID)
		return booking.Classify("get slot", err)
	})
	return out, err
}

// UpdateSlot retimes a slot that is not occupied.
func (s *Scheduling) UpdateSlot(ctx context.Context, slotID uint64, in model.SlotInput) (*model.Slot, error) {
	var out *model.Slot
	err := s.run(ctx, "update slot", func(ctx context.Context) (err error) {
		out, err = s.engine.UpdateSlot(ctx, slotID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, out.ProviderID)
	return out, nil
}

// WithdrawSlot takes an available slot off offer.
func (s *Scheduling) WithdrawSlot(ctx context.Context, slotID uint64) (*model.Slot, error) {
	return s.moveSlot(ctx, "withdraw slot", slotID, s.engine.WithdrawSlot)
}

// RestoreSlot puts a withdrawn slot back on offer.
func (s *Scheduling) RestoreSlot(ctx context.Context, slotID uint64) (*model.Slot, error) {
	return s.moveSlot(ctx, "restore slot", slotID, s.engine.RestoreSlot)
}

func (s *Scheduling) moveSlot(ctx context.Context, op string, slotID uint64, fn func(context.Context, uint64) (*model.Slot, error)) (*model.Slot, error) {
	var out *model.Slot
	err := s.run(ctx, op, func(ctx context.Context) (err error) {
		out, err = fn(ctx, slotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, out.ProviderID)
	return out, nil
}

// DeleteSlot removes a slot, or withdraws it when sessions reference it.
// An occupied slot is a conflict.
func (s *Scheduling) DeleteSlot(ctx context.Context, slotID uint64) error {
	slot, err := s.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	var removed bool
	err = s.run(ctx, "delete slot", func(ctx context.Context) (err error) {
		removed, err = s.engine.DeleteSlot(ctx, slotID)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("slot deleted", zap.Uint64("slot_id", slotID), zap.Bool("removed", removed))
	s.invalidate(ctx, slot.ProviderID)
	return nil
}

// ListProviderSlots returns the provider's schedule.
func (s *Scheduling) ListProviderSlots(ctx context.Context, providerID uint64, f model.SlotFilter) ([]schedule.EnrichedSlot, error) {
	var out []schedule.EnrichedSlot
	err := s.run(ctx, "list provider slots", func(ctx context.Context) (err error) {
		out, err = s.query.ProviderSlots(ctx, providerID, f)
		return err
	})
	return out, err
}

// BookSession books slotID for clientID.  A zero facilityID selects
// DefaultFacilityID.
func (s *Scheduling) BookSession(ctx context.Context, clientID, slotID, facilityID uint64) (*model.Session, error) {
	if facilityID == 0 {
		facilityID = DefaultFacilityID
	}
	var out *booking.Booking
	err := s.run(ctx, "book", func(ctx context.Context) (err error) {
		out, err = s.engine.Book(ctx, clientID, slotID, facilityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, queue.SessionBooked, out)
	return out.Session, nil
}

// CompleteSession marks an active session completed and frees its slot.
func (s *Scheduling) CompleteSession(ctx context.Context, sessionID uint64, trainingType, notes *string) error {
	fields := model.SessionFields{TrainingType: trainingType, Notes: notes}
	var out *booking.Booking
	err := s.run(ctx, "complete", func(ctx context.Context) (err error) {
		out, err = s.engine.Complete(ctx, sessionID, fields)
		return err
	})
	if err != nil {
		return err
	}
	s.committed(ctx, queue.SessionCompleted, out)
	return nil
}

// CancelSession cancels an active session and frees its slot.
func (s *Scheduling) CancelSession(ctx context.Context, sessionID uint64) error {
	var out *booking.Booking
	err := s.run(ctx, "cancel", func(ctx context.Context) (err error) {
		out, err = s.engine.Cancel(ctx, sessionID)
		return err
	})
	if err != nil {
		return err
	}
	s.committed(ctx, queue.SessionCanceled, out)
	return nil
}

// GetSession returns one session.
func (s *Scheduling) GetSession(ctx context.Context, sessionID uint64) (*model.Session, error) {
	var out *model.Session
	err := s.run(ctx, "get session", func(ctx context.Context) (err error) {
		out, err = s.sessions.GetByID(ctx, sessionID)
		return booking.Classify("get session", err)
	})
	return out, err
}

// ListClientSessions returns the client's sessions chronologically.
func (s *Scheduling) ListClientSessions(ctx context.Context, clientID uint64) ([]schedule.EnrichedSession, error) {
	var out []schedule.EnrichedSession
	err := s.run(ctx, "list client sessions", func(ctx context.Context) (err error) {
		out, err = s.query.ClientSessions(ctx, clientID)
		return err
	})
	return out, err
}

// committed runs the post-commit side effects of a session change.  Their
// failures are logged and never change the operation's result.
func (s *Scheduling) committed(ctx context.Context, typ string, b *booking.Booking) {
	ev := queue.NewSessionEvent(typ, b.Session, b.Slot, s.now())
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pctx, ev); err != nil {
		s.log.Warn("event not published",
			zap.String("type", typ),
			zap.String("event_id", ev.EventID),
			zap.Uint64("session_id", b.Session.ID),
			zap.Error(err))
	}
	if b.Slot != nil {
		s.invalidate(ctx, b.Slot.ProviderID)
	}
}

func (s *Scheduling) invalidate(ctx context.Context, providerID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProvider(context.WithoutCancel(ctx), providerID); err != nil {
		s.log.Warn("schedule cache not invalidated", zap.Uint64("provider_id", providerID), zap.Error(err))
	}
}
