package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/control"
)

// DefaultSessionLimit is used by List when limit is not positive.
const DefaultSessionLimit = 20

// Session is one stint in mapping mode.
type Session struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    *time.Time   `json:"ended_at,omitempty"`
	Selections int          `json:"selections"`
	LastSlot   control.Slot `json:"last_slot"`
}

// Open reports whether the session has not ended.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}

// Selection is one slot chosen during a session.
type Selection struct {
	Slot       control.Slot `json:"slot"`
	CC         uint8        `json:"cc"`
	SelectedAt time.Time    `json:"selected_at"`
}

// SessionRepository records mapping sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start inserts a new open session.
func (r *SessionRepository) Start() (*Session, error) {
	sess := &Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(
		`INSERT INTO mapping_sessions (id, started_at) VALUES (?, ?)`,
		sess.ID, sess.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// RecordSelection logs a slot choice and updates the session summary.
func (r *SessionRepository) RecordSelection(id string, slot control.Slot) error {
	if !slot.Valid() {
		return control.ErrUnknownSlot
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE mapping_sessions SET selections = selections + 1, last_slot = ?
		 WHERE id = ? AND ended_at IS NULL`,
		slot.String(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(
		`INSERT INTO mapping_selections (session_id, slot, cc, selected_at) VALUES (?, ?, ?, ?)`,
		id, slot.String(), slot.CC(), time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// End closes an open session. Ending an unknown or already-ended session
// returns ErrNotFound.
func (r *SessionRepository) End(id string) error {
	result, err := r.db.Exec(
		`UPDATE mapping_sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// EndAbandoned closes sessions left open by a previous run and returns how
// many there were.
func (r *SessionRepository) EndAbandoned() (int, error) {
	result, err := r.db.Exec(
		`UPDATE mapping_sessions SET ended_at = started_at WHERE ended_at IS NULL`,
	)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	return int(n), err
}

// Get retrieves a session by its ID.
func (r *SessionRepository) Get(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, selections, last_slot
		 FROM mapping_sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions, newest first.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, selections, last_slot
		 FROM mapping_sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Selections returns the slots chosen during a session in order.
func (r *SessionRepository) Selections(id string) ([]Selection, error) {
	rows, err := r.db.Query(
		`SELECT slot, cc, selected_at FROM mapping_selections
		 WHERE session_id = ? ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		var label string
		if err := rows.Scan(&label, &sel.CC, &sel.SelectedAt); err != nil {
			return nil, err
		}
		if err := sel.Slot.UnmarshalText([]byte(label)); err != nil {
			return nil, err
		}
		out = append(out, sel)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Delete removes a session and its selections.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM mapping_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime
	var lastSlot string

	if err := row.Scan(&sess.ID, &sess.StartedAt, &ended, &sess.Selections, &lastSlot); err != nil {
		return nil, err
	}

	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	if err := sess.LastSlot.UnmarshalText([]byte(lastSlot)); err != nil {
		return nil, err
	}
	return sess, nil
}
