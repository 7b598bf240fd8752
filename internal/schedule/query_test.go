package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-slot-booking/internal/booking"
	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/repository"
	"github.com/iliyamo/trainer-slot-booking/internal/testutil"
)

func setup(t *testing.T) (*booking.Engine, *Query) {
	t.Helper()
	db := testutil.OpenSQLite(t)
	slots := repository.NewSlotRepo(db)
	sessions := repository.NewSessionRepo(db)
	return booking.NewEngine(db, slots, sessions, zap.NewNop()), NewQuery(slots, sessions)
}

func TestProviderSlotsAttachesActiveSession(t *testing.T) {
	ctx := context.Background()
	eng, q := setup(t)

	a, err := eng.CreateSlot(ctx, model.SlotInput{ProviderID: 4, Date: "2025-08-01", StartTime: "09:00", EndTime: "10:00"})
	require.NoError(t, err)
	b, err := eng.CreateSlot(ctx, model.SlotInput{ProviderID: 4, Date: "2025-08-01", StartTime: "11:00", EndTime: "12:00"})
	require.NoError(t, err)
	c, err := eng.CreateSlot(ctx, model.SlotInput{ProviderID: 4, Date: "2025-08-02", StartTime: "08:00", EndTime: "09:00"})
	require.NoError(t, err)

	booked, err := eng.Book(ctx, 21, a.ID, 2)
	require.NoError(t, err)
	done, err := eng.Book(ctx, 22, b.ID, 2)
	require.NoError(t, err)
	_, err = eng.Cancel(ctx, done.Session.ID)
	require.NoError(t, err)
	_, err = eng.WithdrawSlot(ctx, c.ID)
	require.NoError(t, err)

	view, err := q.ProviderSlots(ctx, 4, model.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, view, 3)

	assert.Equal(t, a.ID, view[0].ID)
	require.NotNil(t, view[0].Session)
	assert.Equal(t, ActiveSession{SessionID: booked.Session.ID, ClientID: 21, FacilityID: 2, Status: model.SessionActive}, *view[0].Session)

	// a canceled session is history, not schedule
	assert.Equal(t, b.ID, view[1].ID)
	assert.Nil(t, view[1].Session)
	assert.Equal(t, model.SlotAvailable, view[1].Status)

	assert.Equal(t, model.SlotWithdrawn, view[2].Status)
	assert.Nil(t, view[2].Session)

	occupied, err := q.ProviderSlots(ctx, 4, model.SlotFilter{Status: model.SlotOccupied})
	require.NoError(t, err)
	require.Len(t, occupied, 1)
	assert.Equal(t, a.ID, occupied[0].ID)
}

func TestClientSessionsChronological(t *testing.T) {
	ctx := context.Background()
	eng, q := setup(t)

	d2, err := eng.CreateSlot(ctx, model.SlotInput{ProviderID: 1, Date: "2025-09-20", StartTime: "07:00", EndTime: "08:00"})
	require.NoError(t, err)
	d1, err := eng.CreateSlot(ctx, model.SlotInput{ProviderID: 2, Date: "2025-09-10", StartTime: "19:00", EndTime: "20:00"})
	require.NoError(t, err)

	// booked in reverse date order on purpose
	s2, err := eng.Book(ctx, 8, d2.ID, 1)
	require.NoError(t, err)
	s1, err := eng.Book(ctx, 8, d1.ID, 1)
	require.NoError(t, err)
	_, err = eng.Complete(ctx, s1.Session.ID, model.SessionFields{})
	require.NoError(t, err)

	list, err := q.ClientSessions(ctx, 8)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, s1.Session.ID, list[0].ID)
	assert.Equal(t, model.SessionCompleted, list[0].Status)
	assert.Equal(t, uint64(2), list[0].ProviderID)
	assert.Equal(t, "2025-09-10", list[0].Recurrence.Date)
	assert.Equal(t, s2.Session.ID, list[1].ID)
	assert.Equal(t, "07:00", list[1].StartTime)
}

type failingReader struct{ err error }

func (f failingReader) ListByProviderWithActive(context.Context, uint64, model.SlotFilter) ([]repository.SlotWithSession, error) {
	return nil, f.err
}

func (f failingReader) ListByClient(context.Context, uint64) ([]repository.ClientSession, error) {
	return nil, f.err
}

func TestQueryClassifiesErrors(t *testing.T) {
	q := NewQuery(failingReader{err: context.DeadlineExceeded}, failingReader{err: errors.New("boom")})

	_, err := q.ProviderSlots(context.Background(), 1, model.SlotFilter{})
	assert.ErrorIs(t, err, booking.ErrTransient)

	_, err = q.ClientSessions(context.Background(), 1)
	assert.ErrorIs(t, err, booking.ErrInternal)
}
