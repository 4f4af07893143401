package reservations

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"LIBRIS-backend/internal/platform/db"
)

type Filter struct {
	UserID     *string
	TitleID    *int64
	Status     *Status
	ActiveOnly bool
}

type Page struct {
	Limit  int
	Offset int
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const reservationColumns = `reservation_id, user_id, title_id, status, queue_position, reserved_at, notified_at, expiry_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(r rowScanner) (*Reservation, error) {
	var res Reservation
	var status string
	if err := r.Scan(
		&res.ID,
		&res.UserID,
		&res.TitleID,
		&status,
		&res.QueuePosition,
		&res.ReservedAt,
		&res.NotifiedAt,
		&res.ExpiryAt,
		&res.UpdatedAt,
	); err != nil {
		return nil, err
	}
	res.Status = Status(status)
	return &res, nil
}

// LockUserTx: 代理予約の相手が存在するか確認し、貸出と同じく利用者行をロック
func (s *Store) LockUserTx(ctx context.Context, tx db.DBTX, userID string) error {
	const q = `SELECT id FROM auth_accounts WHERE id = ? FOR UPDATE`
	var id string
	err := tx.QueryRowContext(ctx, q, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

func (s *Store) HasActiveTx(ctx context.Context, tx db.DBTX, userID string, titleID int64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM reservations WHERE user_id = ? AND title_id = ? AND status IN ('PENDING', 'READY'))`
	var ok bool
	err := tx.QueryRowContext(ctx, q, userID, titleID).Scan(&ok)
	return ok, err
}

func (s *Store) CountPendingTx(ctx context.Context, tx db.DBTX, titleID int64) (int, error) {
	return s.countTx(ctx, tx, titleID, StatusPending)
}

func (s *Store) CountReadyTx(ctx context.Context, tx db.DBTX, titleID int64) (int, error) {
	return s.countTx(ctx, tx, titleID, StatusReady)
}

func (s *Store) countTx(ctx context.Context, tx db.DBTX, titleID int64, st Status) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations WHERE title_id = ? AND status = ?`
	var n int
	err := tx.QueryRowContext(ctx, q, titleID, string(st)).Scan(&n)
	return n, err
}

// InsertTx: active_key（生成列）の UNIQUE で同時予約も弾く
func (s *Store) InsertTx(ctx context.Context, tx db.DBTX, r *Reservation) error {
	const q = `
	INSERT INTO reservations
	(user_id, title_id, status, queue_position, reserved_at, updated_at)
	VALUES
	(?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, r.UserID, r.TitleID, string(r.Status), r.QueuePosition, r.ReservedAt, r.UpdatedAt)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return ErrDuplicateReservation
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (s *Store) LockTx(ctx context.Context, tx db.DBTX, id int64) (*Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE reservation_id = ? FOR UPDATE`
	r, err := scanReservation(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) SaveTx(ctx context.Context, tx db.DBTX, r *Reservation) error {
	const q = `
	UPDATE reservations
	SET status = ?, notified_at = ?, expiry_at = ?, updated_at = ?
	WHERE reservation_id = ?`
	_, err := tx.ExecContext(ctx, q, string(r.Status), r.NotifiedAt, r.ExpiryAt, r.UpdatedAt, r.ID)
	return err
}

// NextPendingTx returns the queue head for a title, or nil when nobody is waiting.
func (s *Store) NextPendingTx(ctx context.Context, tx db.DBTX, titleID int64) (*Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations
	WHERE title_id = ? AND status = 'PENDING'
	ORDER BY queue_position ASC, reserved_at ASC, reservation_id ASC
	LIMIT 1 FOR UPDATE`
	r, err := scanReservation(tx.QueryRowContext(ctx, q, titleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// LapsedReady lists READY holds whose pickup window closed at or before now.
func (s *Store) LapsedReady(ctx context.Context, now time.Time) ([]int64, error) {
	const q = `SELECT reservation_id FROM reservations WHERE status = 'READY' AND expiry_at <= ? ORDER BY expiry_at ASC`
	rows, err := s.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (*Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE reservation_id = ?`
	r, err := scanReservation(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) List(ctx context.Context, f Filter, p Page) ([]*Reservation, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.TitleID != nil {
		where = append(where, "title_id = ?")
		args = append(args, *f.TitleID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.ActiveOnly {
		where = append(where, "status IN ('PENDING', 'READY')")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + reservationColumns + ` FROM reservations`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY title_id ASC, queue_position ASC, reserved_at ASC LIMIT ? OFFSET ?")
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
