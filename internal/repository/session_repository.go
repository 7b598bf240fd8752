package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/trainer-slot-booking/internal/model"
)

// SessionRepo persists sessions.  Sessions are inserted active, moved once
// to a terminal status by TransitionStatusTx and never deleted.  Writes
// are only exposed inside a caller-owned transaction so the booking
// engine can pair them with the slot update.
type SessionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepo returns a new SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db, now: time.Now}
}

const sessionColumns = `id, client_id, slot_id, facility_id, status, training_type, notes, created_at, updated_at`

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		s                    model.Session
		status               string
		trainingType, notes  sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&s.ID, &s.ClientID, &s.SlotID, &s.FacilityID, &status,
		&trainingType, &notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	s.TrainingType = nullString(trainingType)
	s.Notes = nullString(notes)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

// CreateTx inserts an active session for slotID within the scope of an
// existing transaction.  A second active session for the same slot is
// rejected by the storage index and reported as ErrConflict.
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, clientID, slotID, facilityID uint64) (*model.Session, error) {
	now := toMillis(r.now())
	const q = `INSERT INTO sessions (client_id, slot_id, facility_id, status, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, clientID, slotID, facilityID, string(model.SessionActive), now, now)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("slot %d already has an active session: %w", slotID, ErrConflict)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	// Query back the full row so the caller sees exactly what was stored
	return getSession(ctx, tx, uint64(id))
}

// GetByID returns the session with the given id or ErrNotFound.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	return getSession(ctx, r.db, id)
}

// GetByIDTx is GetByID inside an existing transaction.
func (r *SessionRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Session, error) {
	return getSession(ctx, tx, id)
}

func getSession(ctx context.Context, q querier, id uint64) (*model.Session, error) {
	s, err := scanSession(q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return s, err
}

// TransitionStatusTx moves session id from expected to next, writing the
// non-nil fields in the same statement, and returns the updated session.
// It fails with ErrConflict (or ErrNotFound) without writing anything if
// the session is not in expected status.
func (r *SessionRepo) TransitionStatusTx(ctx context.Context, tx *sql.Tx, id uint64, expected, next model.SessionStatus, fields model.SessionFields) (*model.Session, error) {
	if expected == next {
		return nil, fmt.Errorf("session %d %s -> %s: %w", id, expected, next, ErrInvalidTransition)
	}
	// COALESCE keeps the stored value when a field is not supplied
	const q = `UPDATE sessions
               SET status = ?, training_type = COALESCE(?, training_type), notes = COALESCE(?, notes), updated_at = ?
               WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(next), nullable(fields.TrainingType), nullable(fields.Notes),
		toMillis(r.now()), id, string(expected))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		cur, err := getSession(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session %d is %s, expected %s: %w", id, cur.Status, expected, ErrConflict)
	}
	return getSession(ctx, tx, id)
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// CountBySlotTx returns how many sessions of any status reference slotID.
func (r *SessionRepo) CountBySlotTx(ctx context.Context, tx *sql.Tx, slotID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE slot_id = ?`, slotID).Scan(&n)
	return n, err
}

// ClientSession is a session joined with the timing of its slot.
type ClientSession struct {
	Session    model.Session
	ProviderID uint64
	Recurrence model.Recurrence
	StartTime  string
	EndTime    string
}

// ListByClient returns every session of clientID, any status, joined with
// its slot.  Dated sessions are ordered by date, weekly templates come
// first by weekday; ties fall back to start time and session id.
func (r *SessionRepo) ListByClient(ctx context.Context, clientID uint64) ([]ClientSession, error) {
	const q = `SELECT se.id, se.client_id, se.slot_id, se.facility_id, se.status, se.training_type, se.notes,
                      se.created_at, se.updated_at,
                      s.provider_id, s.recurrence_kind, s.weekday, s.slot_date, s.start_time, s.end_time
               FROM sessions se
               JOIN slots s ON s.id = se.slot_id
               WHERE se.client_id = ?
               ORDER BY CASE WHEN s.recurrence_kind = 'weekly' THEN 0 ELSE 1 END, s.weekday, s.slot_date, s.start_time, se.id`
	rows, err := r.db.QueryContext(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClientSession
	for rows.Next() {
		var (
			cs                   ClientSession
			status, kind         string
			trainingType, notes  sql.NullString
			createdAt, updatedAt int64
			weekday              sql.NullInt64
			date                 sql.NullString
		)
		if err := rows.Scan(&cs.Session.ID, &cs.Session.ClientID, &cs.Session.SlotID, &cs.Session.FacilityID,
			&status, &trainingType, &notes, &createdAt, &updatedAt,
			&cs.ProviderID, &kind, &weekday, &date, &cs.StartTime, &cs.EndTime); err != nil {
			return nil, err
		}
		cs.Session.Status = model.SessionStatus(status)
		cs.Session.TrainingType = nullString(trainingType)
		cs.Session.Notes = nullString(notes)
		cs.Session.CreatedAt = fromMillis(createdAt)
		cs.Session.UpdatedAt = fromMillis(updatedAt)
		cs.Recurrence.Kind = model.RecurrenceKind(kind)
		if weekday.Valid {
			cs.Recurrence.Weekday, _ = model.WeekdayLabel(int(weekday.Int64))
		}
		if date.Valid {
			cs.Recurrence.Date = date.String
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
