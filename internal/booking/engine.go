// Package booking is the slot/session state machine.  It is the only code
// that changes Slot.Status or Session.Status, and it does so in pairs
// inside one database transaction so that a slot reads occupied exactly
// when one active session references it.
//
// The engine holds no locks of its own.  Exclusivity comes from the
// compare-and-set updates in the repository layer: when two callers race
// for the same slot, the database serializes the row updates and the
// loser's update matches no row, which surfaces as ErrConflict.
package booking

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/repository"
)

// SlotStore is the subset of repository.SlotRepo the engine drives.
type SlotStore interface {
	Create(ctx context.Context, in model.SlotInput) (*model.Slot, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Slot, error)
	LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Slot, error)
	TransitionStatusTx(ctx context.Context, tx *sql.Tx, id uint64, expected, next model.SlotStatus) (*model.Slot, error)
	DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error
	UpdateTimingTx(ctx context.Context, tx *sql.Tx, id uint64, in model.SlotInput) (*model.Slot, error)
}

// SessionStore is the subset of repository.SessionRepo the engine drives.
type SessionStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, clientID, slotID, facilityID uint64) (*model.Session, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error)
	TransitionStatusTx(ctx context.Context, tx *sql.Tx, id uint64, expected, next model.SessionStatus, fields model.SessionFields) (*model.Session, error)
	CountBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) (int, error)
}

// Booking is the committed state of a session and its slot after an
// engine operation.
type Booking struct {
	Session *model.Session
	Slot    *model.Slot
}

// Engine executes the booking state machine over the two stores.
type Engine struct {
	db       *sql.DB
	slots    SlotStore
	sessions SessionStore
	log      *zap.Logger
}

// NewEngine wires an engine.  db must be the handle both stores use.
func NewEngine(db *sql.DB, slots SlotStore, sessions SessionStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, slots: slots, sessions: sessions, log: log.Named("booking")}
}

// inTx runs fn in a transaction and commits only if fn succeeds.  Any
// error, including a failed commit, rolls everything back and is
// classified for op.
func (e *Engine) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyTx(ctx, op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return classifyTx(ctx, op, err)
	}
	if err := tx.Commit(); err != nil {
		return classifyTx(ctx, op, err)
	}
	committed = true
	return nil
}

// classifyTx is Classify for errors coming out of a transaction.  Once
// ctx is done database/sql rolls the transaction back on its own, and the
// statement or commit that notices reports sql.ErrTxDone or a driver
// error instead of the deadline; those are transient, not internal.
func classifyTx(ctx context.Context, op string, err error) error {
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	classified := Classify(op, err)
	if cerr := ctx.Err(); cerr != nil && errors.Is(classified, ErrInternal) {
		return &Error{Op: op, Kind: ErrTransient, Err: errors.Join(cerr, err)}
	}
	return classified
}

// CreateSlot stores a new available slot.
func (e *Engine) CreateSlot(ctx context.Context, in model.SlotInput) (*model.Slot, error) {
	s, err := e.slots.Create(ctx, in)
	if err != nil {
		return nil, Classify("create slot", err)
	}
	return s, nil
}

// Book reserves slotID for clientID.  The slot moves available→occupied
// and an active session is created in the same transaction.  A slot that
// is occupied or withdrawn yields ErrConflict.
func (e *Engine) Book(ctx context.Context, clientID, slotID, facilityID uint64) (*Booking, error) {
	const op = "book"
	if clientID == 0 || slotID == 0 || facilityID == 0 {
		return nil, newError(op, ErrValidation, "client, slot and facility ids are required")
	}
	var out Booking
	err := e.inTx(ctx, op, func(tx *sql.Tx) error {
		slot, err := e.slots.TransitionStatusTx(ctx, tx, slotID, model.SlotAvailable, model.SlotOccupied)
		if err != nil {
			return err
		}
		sess, err := e.sessions.CreateTx(ctx, tx, clientID, slotID, facilityID)
		if err != nil {
			return err
		}
		out = Booking{Session: sess, Slot: slot}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("session booked",
		zap.Uint64("session_id", out.Session.ID),
		zap.Uint64("slot_id", slotID),
		zap.Uint64("client_id", clientID))
	return &out, nil
}

// Complete finishes an active session, recording the optional fields,
// and frees its slot.
func (e *Engine) Complete(ctx context.Context, sessionID uint64, fields model.SessionFields) (*Booking, error) {
	return e.finish(ctx, "complete", sessionID, model.SessionCompleted, fields)
}

// Cancel ends an active session and frees its slot.
func (e *Engine) Cancel(ctx context.Context, sessionID uint64) (*Booking, error) {
	return e.finish(ctx, "cancel", sessionID, model.SessionCanceled, model.SessionFields{})
}

func (e *Engine) finish(ctx context.Context, op string, sessionID uint64, next model.SessionStatus, fields model.SessionFields) (*Booking, error) {
	if sessionID == 0 {
		return nil, newError(op, ErrValidation, "session id is required")
	}
	var out Booking
	err := e.inTx(ctx, op, func(tx *sql.Tx) error {
		sess, err := e.sessions.TransitionStatusTx(ctx, tx, sessionID, model.SessionActive, next, fields)
		if err != nil {
			return err
		}
		slot, err := e.slots.TransitionStatusTx(ctx, tx, sess.SlotID, model.SlotOccupied, model.SlotAvailable)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
				// An active session whose slot is not occupied means the
				// pairing was broken before this call.
				e.log.Error("slot not occupied for active session",
					zap.String("op", op),
					zap.Uint64("session_id", sessionID),
					zap.Uint64("slot_id", sess.SlotID),
					zap.Error(err))
				return newError(op, ErrInternal, "slot %d not occupied for active session %d: %v", sess.SlotID, sessionID, err)
			}
			return err
		}
		out = Booking{Session: sess, Slot: slot}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("session finished",
		zap.String("op", op),
		zap.Uint64("session_id", sessionID),
		zap.Uint64("slot_id", out.Slot.ID))
	return &out, nil
}

// DeleteSlot removes a slot that is not occupied.  A slot referenced by
// any past session is withdrawn instead so the history stays intact; the
// returned bool reports whether the row was actually removed.
func (e *Engine) DeleteSlot(ctx context.Context, slotID uint64) (bool, error) {
	const op = "delete slot"
	if slotID == 0 {
		return false, newError(op, ErrValidation, "slot id is required")
	}
	removed := false
	err := e.inTx(ctx, op, func(tx *sql.Tx) error {
		// Lock first so that a book or complete committing in between
		// cannot slip past the session count below.
		slot, err := e.slots.LockTx(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if slot.Status == model.SlotOccupied {
			return newError(op, ErrConflict, "slot %d is occupied", slotID)
		}
		n, err := e.sessions.CountBySlotTx(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if n == 0 {
			removed = true
			return e.slots.DeleteTx(ctx, tx, slotID)
		}
		if slot.Status == model.SlotWithdrawn {
			return nil
		}
		_, err = e.slots.TransitionStatusTx(ctx, tx, slotID, model.SlotAvailable, model.SlotWithdrawn)
		return err
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// WithdrawSlot takes an available slot off offer.
func (e *Engine) WithdrawSlot(ctx context.Context, slotID uint64) (*model.Slot, error) {
	return e.moveSlot(ctx, "withdraw slot", slotID, model.SlotAvailable, model.SlotWithdrawn)
}

// RestoreSlot puts a withdrawn slot back on offer.
func (e *Engine) RestoreSlot(ctx context.Context, slotID uint64) (*model.Slot, error) {
	return e.moveSlot(ctx, "restore slot", slotID, model.SlotWithdrawn, model.SlotAvailable)
}

func (e *Engine) moveSlot(ctx context.Context, op string, slotID uint64, from, to model.SlotStatus) (*model.Slot, error) {
	if slotID == 0 {
		return nil, newError(op, ErrValidation, "slot id is required")
	}
	var out *model.Slot
	err := e.inTx(ctx, op, func(tx *sql.Tx) error {
		s, err := e.slots.TransitionStatusTx(ctx, tx, slotID, from, to)
		out = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSlot changes the recurrence and times of a slot that is not
// occupied.  The provider of a slot never changes.
func (e *Engine) UpdateSlot(ctx context.Context, slotID uint64, in model.SlotInput) (*model.Slot, error) {
	const op = "update slot"
	if slotID == 0 {
		return nil, newError(op, ErrValidation, "slot id is required")
	}
	var out *model.Slot
	err := e.inTx(ctx, op, func(tx *sql.Tx) error {
		cur, err := e.slots.GetByIDTx(ctx, tx, slotID)
		if err != nil {
			return err
		}
		in.ProviderID = cur.ProviderID
		out, err = e.slots.UpdateTimingTx(ctx, tx, slotID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
