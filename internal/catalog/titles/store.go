package titles

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"LIBRIS-backend/internal/platform/db"
)

type Filter struct {
	// タイトル・著者・ISBN の部分一致
	Search        string
	Category      string
	AvailableOnly bool
}

type Page struct {
	Limit  int
	Offset int
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const titleColumns = `title_id, isbn, title, author, publisher, publication_year, category, language, location,
	total_copies, available_copies, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTitle(r rowScanner) (*Title, error) {
	var (
		meta      Title
		pubYear   sql.NullInt32
		total     int
		available int
		status    string
		publisher sql.NullString
		category  sql.NullString
		location  sql.NullString
	)
	if err := r.Scan(
		&meta.ID,
		&meta.ISBN,
		&meta.Title,
		&meta.Author,
		&publisher,
		&pubYear,
		&category,
		&meta.Language,
		&location,
		&total,
		&available,
		&status,
		&meta.CreatedAt,
		&meta.UpdatedAt,
	); err != nil {
		return nil, err
	}
	meta.Publisher = publisher.String
	meta.PublicationYear = int(pubYear.Int32)
	meta.Category = category.String
	meta.Location = location.String
	return Restore(meta, total, available, Status(status))
}

func (s *Store) Get(ctx context.Context, id int64) (*Title, error) {
	q := `SELECT ` + titleColumns + ` FROM titles WHERE title_id = ?`
	t, err := scanTitle(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// LockTx: 貸出・返却・予約の間はこの行ロックで在庫を直列化する
func (s *Store) LockTx(ctx context.Context, tx db.DBTX, id int64) (*Title, error) {
	q := `SELECT ` + titleColumns + ` FROM titles WHERE title_id = ? FOR UPDATE`
	t, err := scanTitle(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// SaveTx writes back counters, status and shelf metadata.
func (s *Store) SaveTx(ctx context.Context, tx db.DBTX, t *Title) error {
	const q = `
	UPDATE titles
	SET total_copies = ?, available_copies = ?, status = ?, location = ?, updated_at = CURRENT_TIMESTAMP(6)
	WHERE title_id = ?`
	res, err := tx.ExecContext(ctx, q, t.totalCopies, t.availableCopies, string(t.status), nullStr(t.Location), t.ID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, t *Title) error {
	const q = `
	INSERT INTO titles
	(isbn, title, author, publisher, publication_year, category, language, location,
	 total_copies, available_copies, status, created_at, updated_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		t.ISBN,
		t.Title,
		t.Author,
		nullStr(t.Publisher),
		nullYear(t.PublicationYear),
		nullStr(t.Category),
		t.Language,
		nullStr(t.Location),
		t.totalCopies,
		t.availableCopies,
		string(t.status),
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return ErrDuplicateISBN
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (s *Store) List(ctx context.Context, f Filter, p Page) ([]*Title, error) {
	var (
		where []string
		args  []any
	)
	if f.Search != "" {
		like := "%" + escapeLike(f.Search) + "%"
		where = append(where, "(title LIKE ? OR author LIKE ? OR isbn LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.AvailableOnly {
		where = append(where, "available_copies > 0 AND status <> 'MAINTENANCE'")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + titleColumns + ` FROM titles`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY title ASC, title_id ASC LIMIT ? OFFSET ?")
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullYear(y int) any {
	if y == 0 {
		return nil
	}
	return y
}
