package fines

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"LIBRIS-backend/internal/platform/db"
)

type Filter struct {
	UserID *string
	LoanID *int64
	Status *Status
}

type Page struct {
	Limit  int
	Offset int
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const fineColumns = `fine_id, loan_id, user_id, amount, status, paid_amount, paid_at, waived_by, waiver_reason, waived_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFine(r rowScanner) (*Fine, error) {
	var f Fine
	var status string
	if err := r.Scan(
		&f.ID,
		&f.LoanID,
		&f.UserID,
		&f.Amount,
		&status,
		&f.PaidAmount,
		&f.PaidAt,
		&f.WaivedBy,
		&f.WaiverReason,
		&f.WaivedAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.Status = Status(status)
	return &f, nil
}

func (s *Store) ExistsForLoanTx(ctx context.Context, tx db.DBTX, loanID int64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM fines WHERE loan_id = ?)`
	var ok bool
	err := tx.QueryRowContext(ctx, q, loanID).Scan(&ok)
	return ok, err
}

// InsertTx: loan_id の UNIQUE 制約が最後の砦
func (s *Store) InsertTx(ctx context.Context, tx db.DBTX, f *Fine) error {
	const q = `
	INSERT INTO fines
	(loan_id, user_id, amount, status, waiver_reason, created_at, updated_at)
	VALUES
	(?, ?, ?, ?, '', ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		f.LoanID,
		f.UserID,
		f.Amount.StringFixed(2),
		string(f.Status),
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return ErrFineAlreadyExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

func (s *Store) LockTx(ctx context.Context, tx db.DBTX, id int64) (*Fine, error) {
	q := `SELECT ` + fineColumns + ` FROM fines WHERE fine_id = ? FOR UPDATE`
	f, err := scanFine(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *Store) SaveTx(ctx context.Context, tx db.DBTX, f *Fine) error {
	const q = `
	UPDATE fines
	SET status = ?, paid_amount = ?, paid_at = ?, waived_by = ?, waiver_reason = ?, waived_at = ?, updated_at = ?
	WHERE fine_id = ?`
	var paid any
	if f.PaidAmount.Valid {
		paid = f.PaidAmount.Decimal.StringFixed(2)
	}
	_, err := tx.ExecContext(ctx, q,
		string(f.Status),
		paid,
		f.PaidAt,
		f.WaivedBy,
		f.WaiverReason,
		f.WaivedAt,
		f.UpdatedAt,
		f.ID,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id int64) (*Fine, error) {
	q := `SELECT ` + fineColumns + ` FROM fines WHERE fine_id = ?`
	f, err := scanFine(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *Store) List(ctx context.Context, f Filter, p Page) ([]*Fine, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.LoanID != nil {
		where = append(where, "loan_id = ?")
		args = append(args, *f.LoanID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + fineColumns + ` FROM fines`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, fine_id DESC LIMIT ? OFFSET ?")
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Fine
	for rows.Next() {
		fi, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fi)
	}
	return out, rows.Err()
}

// PendingTotal sums the unpaid fines of a user.
func (s *Store) PendingTotal(ctx context.Context, userID string) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(amount), 0) FROM fines WHERE user_id = ? AND status = 'PENDING'`
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&total)
	return total, err
}
