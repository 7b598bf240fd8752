package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/testutil"
	"github.com/iliyamo/trainer-slot-booking/internal/validation"
)

func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func mustCreateSlot(t *testing.T, r *SlotRepo, in model.SlotInput) *model.Slot {
	t.Helper()
	s, err := r.Create(context.Background(), in)
	require.NoError(t, err)
	return s
}

func TestSlotRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewSlotRepo(testutil.OpenSQLite(t))

	created := mustCreateSlot(t, r, model.SlotInput{ProviderID: 3, Weekday: "wednesday", StartTime: "07:00", EndTime: "08:00"})
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.SlotAvailable, created.Status)
	assert.Equal(t, model.Recurrence{Kind: model.RecurrenceWeekly, Weekday: "Wednesday"}, created.Recurrence)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = r.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSlotRepo_CreateRejectsInvalidInput(t *testing.T) {
	r := NewSlotRepo(testutil.OpenSQLite(t))

	_, err := r.Create(context.Background(), model.SlotInput{ProviderID: 3, Date: "2025-01-10", StartTime: "10:00", EndTime: "09:00"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, validation.ErrInvalid))
}

func TestSlotRepo_ListByProviderOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	r := NewSlotRepo(testutil.OpenSQLite(t))

	d2 := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Date: "2025-05-02", StartTime: "09:00", EndTime: "10:00"})
	d1late := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Date: "2025-05-01", StartTime: "18:00", EndTime: "19:00"})
	d1early := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Date: "2025-05-01", StartTime: "08:00", EndTime: "09:00"})
	fri := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Weekday: "Friday", StartTime: "08:00", EndTime: "09:00"})
	mon := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Weekday: "Monday", StartTime: "12:00", EndTime: "13:00"})
	mustCreateSlot(t, r, model.SlotInput{ProviderID: 2, Weekday: "Monday", StartTime: "12:00", EndTime: "13:00"})

	all, err := r.ListByProvider(ctx, 1, model.SlotFilter{})
	require.NoError(t, err)
	ids := make([]uint64, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []uint64{mon.ID, fri.ID, d1early.ID, d1late.ID, d2.ID}, ids)

	weekly, err := r.ListByProvider(ctx, 1, model.SlotFilter{Kind: model.RecurrenceWeekly})
	require.NoError(t, err)
	assert.Len(t, weekly, 2)

	monday, err := r.ListByProvider(ctx, 1, model.SlotFilter{Weekday: "MONDAY"})
	require.NoError(t, err)
	require.Len(t, monday, 1)
	assert.Equal(t, mon.ID, monday[0].ID)

	ranged, err := r.ListByProvider(ctx, 1, model.SlotFilter{From: "2025-05-01", To: "2025-05-01"})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	_, err = r.ListByProvider(ctx, 1, model.SlotFilter{From: "2025-05-03", To: "2025-05-01"})
	assert.True(t, errors.Is(err, validation.ErrInvalid))

	_, err = r.ListByProvider(ctx, 1, model.SlotFilter{Status: "booked"})
	assert.True(t, errors.Is(err, validation.ErrInvalid))

	none, err := r.ListByProvider(ctx, 42, model.SlotFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSlotRepo_TransitionStatusTx(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t)
	r := NewSlotRepo(db)
	s := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Weekday: "Monday", StartTime: "09:00", EndTime: "10:00"})

	err := inTx(t, db, func(tx *sql.Tx) error {
		updated, err := r.TransitionStatusTx(ctx, tx, s.ID, model.SlotAvailable, model.SlotOccupied)
		if err == nil {
			assert.Equal(t, model.SlotOccupied, updated.Status)
		}
		return err
	})
	require.NoError(t, err)

	// the same CAS again loses: the slot is no longer available
	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := r.TransitionStatusTx(ctx, tx, s.ID, model.SlotAvailable, model.SlotOccupied)
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := r.TransitionStatusTx(ctx, tx, 777, model.SlotAvailable, model.SlotOccupied)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := r.TransitionStatusTx(ctx, tx, s.ID, model.SlotOccupied, model.SlotOccupied)
		return err
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSlotRepo_DeleteAndUpdateBlockedWhileOccupied(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t)
	r := NewSlotRepo(db)
	s := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Date: "2025-06-01", StartTime: "09:00", EndTime: "10:00"})

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		_, err := r.TransitionStatusTx(ctx, tx, s.ID, model.SlotAvailable, model.SlotOccupied)
		return err
	}))

	err := inTx(t, db, func(tx *sql.Tx) error { return r.DeleteTx(ctx, tx, s.ID) })
	assert.ErrorIs(t, err, ErrConflict)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := r.UpdateTimingTx(ctx, tx, s.ID, model.SlotInput{ProviderID: 1, Date: "2025-06-02", StartTime: "09:00", EndTime: "10:00"})
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		_, err := r.TransitionStatusTx(ctx, tx, s.ID, model.SlotOccupied, model.SlotAvailable)
		return err
	}))

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		updated, err := r.UpdateTimingTx(ctx, tx, s.ID, model.SlotInput{ProviderID: 1, Weekday: "Sunday", StartTime: "10:00", EndTime: "11:30"})
		if err == nil {
			assert.Equal(t, model.Recurrence{Kind: model.RecurrenceWeekly, Weekday: "Sunday"}, updated.Recurrence)
			assert.Equal(t, "11:30", updated.EndTime)
		}
		return err
	}))

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error { return r.DeleteTx(ctx, tx, s.ID) }))
	_, err = r.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = inTx(t, db, func(tx *sql.Tx) error { return r.DeleteTx(ctx, tx, s.ID) })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSlotRepo_DeleteReferencedSlotConflicts(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t)
	r := NewSlotRepo(db)
	sessions := NewSessionRepo(db)
	s := mustCreateSlot(t, r, model.SlotInput{ProviderID: 1, Weekday: "Friday", StartTime: "09:00", EndTime: "10:00"})

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		sess, err := sessions.CreateTx(ctx, tx, 40, s.ID, 1)
		if err != nil {
			return err
		}
		_, err = sessions.TransitionStatusTx(ctx, tx, sess.ID, model.SessionActive, model.SessionCanceled, model.SessionFields{})
		return err
	}))

	// the slot is available but a canceled session still references it
	err := inTx(t, db, func(tx *sql.Tx) error { return r.DeleteTx(ctx, tx, s.ID) })
	assert.ErrorIs(t, err, ErrConflict)

	_, err = r.GetByID(ctx, s.ID)
	require.NoError(t, err)
}

func TestSlotRepo_LockTx(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenSQLite(t)
	r := NewSlotRepo(db)
	s := mustCreateSlot(t, r, model.SlotInput{ProviderID: 3, Date: "2025-06-03", StartTime: "09:00", EndTime: "10:00"})

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		locked, err := r.LockTx(ctx, tx, s.ID)
		if err == nil {
			assert.Equal(t, s.ID, locked.ID)
			assert.Equal(t, model.SlotAvailable, locked.Status)
			assert.Equal(t, s.UpdatedAt, locked.UpdatedAt)
		}
		return err
	}))

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := r.LockTx(ctx, tx, 999)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
