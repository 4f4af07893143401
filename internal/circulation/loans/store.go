package loans

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"LIBRIS-backend/internal/platform/db"
)

type Filter struct {
	UserID  *string
	TitleID *int64
	Status  *Status
	// 指定時刻で延滞しているものだけ
	OverdueAt *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const loanColumns = `loan_id, loan_ulid, user_id, title_id, borrowed_at, due_at, returned_at, status, issued_by, returned_to, note`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(r rowScanner) (*Loan, error) {
	var l Loan
	var status string
	if err := r.Scan(
		&l.ID,
		&l.ULID,
		&l.UserID,
		&l.TitleID,
		&l.BorrowedAt,
		&l.DueAt,
		&l.ReturnedAt,
		&status,
		&l.IssuedBy,
		&l.ReturnedTo,
		&l.Note,
	); err != nil {
		return nil, err
	}
	l.Status = Status(status)
	return &l, nil
}

// LockBorrowerTx: 同一利用者の並行貸出を直列化（上限チェックの競合防止）
func (s *Store) LockBorrowerTx(ctx context.Context, tx db.DBTX, userID string) error {
	const q = `SELECT id FROM auth_accounts WHERE id = ? FOR UPDATE`
	var id string
	err := tx.QueryRowContext(ctx, q, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBorrowerNotFound
	}
	return err
}

func (s *Store) CountActiveByUserTx(ctx context.Context, tx db.DBTX, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE user_id = ? AND status = 'ACTIVE'`
	var n int
	err := tx.QueryRowContext(ctx, q, userID).Scan(&n)
	return n, err
}

func (s *Store) HasActiveTx(ctx context.Context, tx db.DBTX, userID string, titleID int64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM loans WHERE user_id = ? AND title_id = ? AND status = 'ACTIVE')`
	var ok bool
	err := tx.QueryRowContext(ctx, q, userID, titleID).Scan(&ok)
	return ok, err
}

func (s *Store) InsertTx(ctx context.Context, tx db.DBTX, l *Loan) error {
	const q = `
	INSERT INTO loans
	(loan_ulid, user_id, title_id, borrowed_at, due_at, status, issued_by, note)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		l.ULID,
		l.UserID,
		l.TitleID,
		l.BorrowedAt,
		l.DueAt,
		string(l.Status),
		l.IssuedBy,
		l.Note,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

func (s *Store) LockTx(ctx context.Context, tx db.DBTX, id int64) (*Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE loan_id = ? FOR UPDATE`
	l, err := scanLoan(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// MarkReturnedTx: ACTIVE の行だけ更新する（二重返却は affected=0 で検出）
func (s *Store) MarkReturnedTx(ctx context.Context, tx db.DBTX, l *Loan) error {
	const q = `
	UPDATE loans
	SET status = ?, returned_at = ?, returned_to = ?
	WHERE loan_id = ? AND status = 'ACTIVE'`
	res, err := tx.ExecContext(ctx, q, string(l.Status), l.ReturnedAt, l.ReturnedTo, l.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInvalidLoanState
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE loan_id = ?`
	l, err := scanLoan(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE loan_ulid = ?`
	l, err := scanLoan(s.db.QueryRowContext(ctx, q, ulid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

func (s *Store) List(ctx context.Context, f Filter, p Page) ([]*Loan, error) {
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
	if f.OverdueAt != nil {
		where = append(where, "status <> 'RETURNED' AND due_at < ?")
		args = append(args, *f.OverdueAt)
	}

	order := "DESC"
	if strings.EqualFold(p.Order, "asc") {
		order = "ASC"
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + loanColumns + ` FROM loans`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY borrowed_at " + order + ", loan_id " + order + " LIMIT ? OFFSET ?")
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
