package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
	"github.com/iliyamo/trainer-slot-booking/internal/validation"
)

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can be
// shared between plain and transactional calls.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// SlotRepo persists slots.  Status changes only go through
// TransitionStatusTx, which is a compare-and-set on the status column.
// All timestamps are stored as UTC unix milliseconds.
type SlotRepo struct {
	db       *sql.DB
	validate *validation.Validator
	now      func() time.Time
}

// NewSlotRepo returns a new SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo {
	return &SlotRepo{db: db, validate: validation.Default(), now: time.Now}
}

const slotColumns = `id, provider_id, recurrence_kind, weekday, slot_date, start_time, end_time, status, created_at, updated_at`

// slotOrder lists weekly templates first by weekday, then dated slots by
// date, then start time.  Ids break ties so the order is total.
const slotOrder = `CASE WHEN recurrence_kind = 'weekly' THEN 0 ELSE 1 END, weekday, slot_date, start_time, id`

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func scanSlot(row rowScanner) (*model.Slot, error) {
	var (
		s         model.Slot
		kind      string
		weekday   sql.NullInt64
		date      sql.NullString
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&s.ID, &s.ProviderID, &kind, &weekday, &date,
		&s.StartTime, &s.EndTime, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Recurrence.Kind = model.RecurrenceKind(kind)
	if weekday.Valid {
		s.Recurrence.Weekday, _ = model.WeekdayLabel(int(weekday.Int64))
	}
	if date.Valid {
		s.Recurrence.Date = date.String
	}
	s.Status = model.SlotStatus(status)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

// recurrenceArgs flattens a recurrence into its (kind, weekday, slot_date)
// column values.
func recurrenceArgs(rec model.Recurrence) (string, any, any) {
	if rec.Kind == model.RecurrenceWeekly {
		n, _ := model.WeekdayNumber(rec.Weekday)
		return string(rec.Kind), n, nil
	}
	return string(rec.Kind), nil, rec.Date
}

// Create validates in and inserts a new available slot.
func (r *SlotRepo) Create(ctx context.Context, in model.SlotInput) (*model.Slot, error) {
	rec, err := r.validate.Slot(in)
	if err != nil {
		return nil, err
	}
	kind, weekday, date := recurrenceArgs(rec)
	now := toMillis(r.now())

	const q = `INSERT INTO slots (provider_id, recurrence_kind, weekday, slot_date, start_time, end_time, status, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, in.ProviderID, kind, weekday, date,
		in.StartTime, in.EndTime, string(model.SlotAvailable), now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID returns the slot with the given id or ErrNotFound.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	return getSlot(ctx, r.db, id)
}

// GetByIDTx is GetByID inside an existing transaction.
func (r *SlotRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Slot, error) {
	return getSlot(ctx, tx, id)
}

func getSlot(ctx context.Context, q querier, id uint64) (*model.Slot, error) {
	s, err := scanSlot(q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %d: %w", id, ErrNotFound)
	}
	return s, err
}

// slotFilterClause turns f into extra WHERE conditions over the slots
// table aliased as prefix ("" or "s.").
func slotFilterClause(prefix string, f model.SlotFilter) (string, []any, error) {
	var (
		where string
		args  []any
		errs  validation.Errors
	)
	if f.Status != "" {
		if !f.Status.Valid() {
			errs = append(errs, validation.FieldError{Field: "status", Message: "must be one of: available occupied withdrawn"})
		}
		where += " AND " + prefix + "status = ?"
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		if f.Kind != model.RecurrenceWeekly && f.Kind != model.RecurrenceDated {
			errs = append(errs, validation.FieldError{Field: "kind", Message: "must be one of: weekly dated"})
		}
		where += " AND " + prefix + "recurrence_kind = ?"
		args = append(args, string(f.Kind))
	}
	if f.Weekday != "" {
		label, ok := model.CanonicalWeekday(f.Weekday)
		if !ok {
			errs = append(errs, validation.FieldError{Field: "weekday", Message: "must be a weekday name (Monday-Sunday)"})
		}
		n, _ := model.WeekdayNumber(label)
		where += " AND " + prefix + "weekday = ?"
		args = append(args, n)
	}
	if f.From != "" || f.To != "" {
		where += " AND " + prefix + "recurrence_kind = 'dated'"
		for _, bound := range []struct {
			field, value, op string
		}{{"from", f.From, ">="}, {"to", f.To, "<="}} {
			if bound.value == "" {
				continue
			}
			if _, err := time.Parse(model.DateLayout, bound.value); err != nil {
				errs = append(errs, validation.FieldError{Field: bound.field, Message: "must be a date in YYYY-MM-DD format"})
			}
			where += " AND " + prefix + "slot_date " + bound.op + " ?"
			args = append(args, bound.value)
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		errs = append(errs, validation.FieldError{Field: "to", Message: "must not be before from"})
	}
	if len(errs) > 0 {
		return "", nil, errs
	}
	return where, args, nil
}

// ListByProvider returns the provider's slots matching f, weekly templates
// first, then dated slots chronologically.
func (r *SlotRepo) ListByProvider(ctx context.Context, providerID uint64, f model.SlotFilter) ([]model.Slot, error) {
	where, args, err := slotFilterClause("", f)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + slotColumns + ` FROM slots WHERE provider_id = ?` + where + ` ORDER BY ` + slotOrder
	rows, err := r.db.QueryContext(ctx, q, append([]any{providerID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// TransitionStatusTx moves slot id from expected to next and returns the
// updated slot.  When the slot is not in expected status the call fails
// with ErrConflict (or ErrNotFound if it does not exist) and nothing is
// written.
func (r *SlotRepo) TransitionStatusTx(ctx context.Context, tx *sql.Tx, id uint64, expected, next model.SlotStatus) (*model.Slot, error) {
	if expected == next {
		return nil, fmt.Errorf("slot %d %s -> %s: %w", id, expected, next, ErrInvalidTransition)
	}
	const q = `UPDATE slots SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(next), toMillis(r.now()), id, string(expected))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		cur, err := getSlot(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("slot %d is %s, expected %s: %w", id, cur.Status, expected, ErrConflict)
	}
	return getSlot(ctx, tx, id)
}

// LockTx takes the row lock on slot id for the rest of tx and returns the
// slot as it is once the lock is held.  On MySQL the no-op UPDATE blocks
// until concurrent writers of the row commit, and the snapshot of the
// following reads starts after that; SQLite transactions already hold the
// database write lock from BEGIN.
func (r *SlotRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Slot, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE slots SET id = id WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return getSlot(ctx, tx, id)
}

// DeleteTx removes slot id unless it is occupied.  The caller is
// responsible for checking that no session references the slot; if one
// does, the foreign key rejects the delete and ErrConflict is returned.
func (r *SlotRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = ? AND status <> ?`, id, string(model.SlotOccupied))
	if IsForeignKeyViolation(err) {
		return fmt.Errorf("slot %d has sessions: %w", id, ErrConflict)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getSlot(ctx, tx, id); err != nil {
			return err
		}
		return fmt.Errorf("slot %d is occupied: %w", id, ErrConflict)
	}
	return nil
}

// UpdateTimingTx replaces the recurrence and times of slot id.  The
// provider is not changed.  An occupied slot cannot be retimed.
func (r *SlotRepo) UpdateTimingTx(ctx context.Context, tx *sql.Tx, id uint64, in model.SlotInput) (*model.Slot, error) {
	rec, err := r.validate.Slot(in)
	if err != nil {
		return nil, err
	}
	kind, weekday, date := recurrenceArgs(rec)
	const q = `UPDATE slots
               SET recurrence_kind = ?, weekday = ?, slot_date = ?, start_time = ?, end_time = ?, updated_at = ?
               WHERE id = ? AND status <> ?`
	res, err := tx.ExecContext(ctx, q, kind, weekday, date, in.StartTime, in.EndTime,
		toMillis(r.now()), id, string(model.SlotOccupied))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := getSlot(ctx, tx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("slot %d is occupied: %w", id, ErrConflict)
	}
	return getSlot(ctx, tx, id)
}

// SlotWithSession is a slot joined with its active session, if any.
type SlotWithSession struct {
	Slot    model.Slot
	Session *model.Session
}

// ListByProviderWithActive is ListByProvider with each slot's active
// session attached through a single LEFT JOIN.
func (r *SlotRepo) ListByProviderWithActive(ctx context.Context, providerID uint64, f model.SlotFilter) ([]SlotWithSession, error) {
	where, args, err := slotFilterClause("s.", f)
	if err != nil {
		return nil, err
	}
	q := `SELECT s.id, s.provider_id, s.recurrence_kind, s.weekday, s.slot_date, s.start_time, s.end_time,
                 s.status, s.created_at, s.updated_at,
                 se.id, se.client_id, se.facility_id, se.status, se.training_type, se.notes, se.created_at, se.updated_at
          FROM slots s
          LEFT JOIN sessions se ON se.slot_id = s.id AND se.status = 'active'
          WHERE s.provider_id = ?` + where + `
          ORDER BY CASE WHEN s.recurrence_kind = 'weekly' THEN 0 ELSE 1 END, s.weekday, s.slot_date, s.start_time, s.id`
	rows, err := r.db.QueryContext(ctx, q, append([]any{providerID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlotWithSession
	for rows.Next() {
		var (
			s                    model.Slot
			kind, status         string
			weekday              sql.NullInt64
			date                 sql.NullString
			createdAt, updatedAt int64
			sessID, clientID     sql.NullInt64
			facilityID           sql.NullInt64
			sessStatus           sql.NullString
			trainingType, notes  sql.NullString
			sessCreated          sql.NullInt64
			sessUpdated          sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.ProviderID, &kind, &weekday, &date, &s.StartTime, &s.EndTime,
			&status, &createdAt, &updatedAt,
			&sessID, &clientID, &facilityID, &sessStatus, &trainingType, &notes, &sessCreated, &sessUpdated); err != nil {
			return nil, err
		}
		s.Recurrence.Kind = model.RecurrenceKind(kind)
		if weekday.Valid {
			s.Recurrence.Weekday, _ = model.WeekdayLabel(int(weekday.Int64))
		}
		if date.Valid {
			s.Recurrence.Date = date.String
		}
		s.Status = model.SlotStatus(status)
		s.CreatedAt = fromMillis(createdAt)
		s.UpdatedAt = fromMillis(updatedAt)

		item := SlotWithSession{Slot: s}
		if sessID.Valid {
			item.Session = &model.Session{
				ID:           uint64(sessID.Int64),
				ClientID:     uint64(clientID.Int64),
				SlotID:       s.ID,
				FacilityID:   uint64(facilityID.Int64),
				Status:       model.SessionStatus(sessStatus.String),
				TrainingType: nullString(trainingType),
				Notes:        nullString(notes),
				CreatedAt:    fromMillis(sessCreated.Int64),
				UpdatedAt:    fromMillis(sessUpdated.Int64),
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
