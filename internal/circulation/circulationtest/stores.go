package circulationtest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"LIBRIS-backend/internal/catalog/titles"
	"LIBRIS-backend/internal/circulation/fines"
	"LIBRIS-backend/internal/circulation/loans"
	"LIBRIS-backend/internal/circulation/reservations"
	"LIBRIS-backend/internal/platform/db"
)

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ===== titles =====

type TitleStore struct{ w *World }

var _ titles.Repository = TitleStore{}

func (s TitleStore) Get(_ context.Context, id int64) (*titles.Title, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("titles.Get"); err != nil {
		return nil, err
	}
	t, ok := s.w.t.titles[id]
	if !ok {
		return nil, titles.ErrNotFound
	}
	return &t, nil
}

func (s TitleStore) LockTx(ctx context.Context, _ db.DBTX, id int64) (*titles.Title, error) {
	s.w.mu.Lock()
	err := s.w.fail("titles.LockTx")
	s.w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s TitleStore) SaveTx(_ context.Context, _ db.DBTX, t *titles.Title) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("titles.SaveTx"); err != nil {
		return err
	}
	if _, ok := s.w.t.titles[t.ID]; !ok {
		return titles.ErrNotFound
	}
	s.w.t.titles[t.ID] = *t
	return nil
}

func (s TitleStore) Insert(_ context.Context, t *titles.Title) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("titles.Insert"); err != nil {
		return err
	}
	for _, existing := range s.w.t.titles {
		if existing.ISBN == t.ISBN {
			return titles.ErrDuplicateISBN
		}
	}
	t.ID = s.w.nextID()
	s.w.t.titles[t.ID] = *t
	return nil
}

func (s TitleStore) List(_ context.Context, f titles.Filter, p titles.Page) ([]*titles.Title, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []*titles.Title
	for _, t := range s.w.t.titles {
		t := t
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(t.Title), q) &&
				!strings.Contains(strings.ToLower(t.Author), q) &&
				!strings.Contains(t.ISBN, f.Search) {
				continue
			}
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.AvailableOnly && !t.IsAvailable() {
			continue
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return window(out, p.Limit, p.Offset), nil
}

// ===== loans =====

type LoanStore struct{ w *World }

var (
	_ loans.Repository = LoanStore{}
	_ fines.LoanSource = LoanStore{}
)

func (s LoanStore) LockBorrowerTx(_ context.Context, _ db.DBTX, userID string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("loans.LockBorrowerTx"); err != nil {
		return err
	}
	if _, ok := s.w.t.accounts[userID]; !ok {
		return loans.ErrBorrowerNotFound
	}
	return nil
}

func (s LoanStore) CountActiveByUserTx(_ context.Context, _ db.DBTX, userID string) (int, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	n := 0
	for _, l := range s.w.t.loans {
		if l.UserID == userID && l.Status == loans.StatusActive {
			n++
		}
	}
	return n, nil
}

func (s LoanStore) HasActiveTx(_ context.Context, _ db.DBTX, userID string, titleID int64) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, l := range s.w.t.loans {
		if l.UserID == userID && l.TitleID == titleID && l.Status == loans.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (s LoanStore) InsertTx(_ context.Context, _ db.DBTX, l *loans.Loan) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("loans.InsertTx"); err != nil {
		return err
	}
	l.ID = s.w.nextID()
	s.w.t.loans[l.ID] = *l
	return nil
}

func (s LoanStore) LockTx(ctx context.Context, _ db.DBTX, id int64) (*loans.Loan, error) {
	return s.Get(ctx, id)
}

func (s LoanStore) MarkReturnedTx(_ context.Context, _ db.DBTX, l *loans.Loan) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("loans.MarkReturnedTx"); err != nil {
		return err
	}
	cur, ok := s.w.t.loans[l.ID]
	if !ok || cur.Status != loans.StatusActive {
		return loans.ErrInvalidLoanState
	}
	s.w.t.loans[l.ID] = *l
	return nil
}

func (s LoanStore) Get(_ context.Context, id int64) (*loans.Loan, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	l, ok := s.w.t.loans[id]
	if !ok {
		return nil, loans.ErrNotFound
	}
	return &l, nil
}

func (s LoanStore) GetByULID(_ context.Context, ulid string) (*loans.Loan, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, l := range s.w.t.loans {
		if l.ULID == ulid {
			return &l, nil
		}
	}
	return nil, loans.ErrNotFound
}

func (s LoanStore) List(_ context.Context, f loans.Filter, p loans.Page) ([]*loans.Loan, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []*loans.Loan
	for _, l := range s.w.t.loans {
		l := l
		if f.UserID != nil && l.UserID != *f.UserID {
			continue
		}
		if f.TitleID != nil && l.TitleID != *f.TitleID {
			continue
		}
		if f.Status != nil && l.Status != *f.Status {
			continue
		}
		if f.OverdueAt != nil && !(l.Status != loans.StatusReturned && l.DueAt.Before(*f.OverdueAt)) {
			continue
		}
		out = append(out, &l)
	}
	asc := strings.EqualFold(p.Order, "asc")
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.BorrowedAt.Equal(b.BorrowedAt) {
			return a.BorrowedAt.Before(b.BorrowedAt) == asc
		}
		return (a.ID < b.ID) == asc
	})
	return window(out, p.Limit, p.Offset), nil
}

// ===== fines =====

type FineStore struct{ w *World }

var _ fines.Repository = FineStore{}

func (s FineStore) ExistsForLoanTx(_ context.Context, _ db.DBTX, loanID int64) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, f := range s.w.t.fines {
		if f.LoanID == loanID {
			return true, nil
		}
	}
	return false, nil
}

func (s FineStore) InsertTx(_ context.Context, _ db.DBTX, f *fines.Fine) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("fines.InsertTx"); err != nil {
		return err
	}
	for _, existing := range s.w.t.fines {
		if existing.LoanID == f.LoanID {
			return fines.ErrFineAlreadyExists
		}
	}
	f.ID = s.w.nextID()
	s.w.t.fines[f.ID] = *f
	return nil
}

func (s FineStore) LockTx(ctx context.Context, _ db.DBTX, id int64) (*fines.Fine, error) {
	return s.Get(ctx, id)
}

func (s FineStore) SaveTx(_ context.Context, _ db.DBTX, f *fines.Fine) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("fines.SaveTx"); err != nil {
		return err
	}
	s.w.t.fines[f.ID] = *f
	return nil
}

func (s FineStore) Get(_ context.Context, id int64) (*fines.Fine, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	f, ok := s.w.t.fines[id]
	if !ok {
		return nil, fines.ErrNotFound
	}
	return &f, nil
}

func (s FineStore) List(_ context.Context, f fines.Filter, p fines.Page) ([]*fines.Fine, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []*fines.Fine
	for _, fi := range s.w.t.fines {
		fi := fi
		if f.UserID != nil && fi.UserID != *f.UserID {
			continue
		}
		if f.LoanID != nil && fi.LoanID != *f.LoanID {
			continue
		}
		if f.Status != nil && fi.Status != *f.Status {
			continue
		}
		out = append(out, &fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return window(out, p.Limit, p.Offset), nil
}

func (s FineStore) PendingTotal(_ context.Context, userID string) (decimal.Decimal, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	total := decimal.Zero
	for _, f := range s.w.t.fines {
		if f.UserID == userID && f.Status == fines.StatusPending {
			total = total.Add(f.Amount)
		}
	}
	return total, nil
}

// ===== reservations =====

type ReservationStore struct{ w *World }

var _ reservations.Repository = ReservationStore{}

func active(r reservations.Reservation) bool { return r.IsActive() }

func (s ReservationStore) LockUserTx(_ context.Context, _ db.DBTX, userID string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("reservations.LockUserTx"); err != nil {
		return err
	}
	if _, ok := s.w.t.accounts[userID]; !ok {
		return reservations.ErrUserNotFound
	}
	return nil
}

func (s ReservationStore) HasActiveTx(_ context.Context, _ db.DBTX, userID string, titleID int64) (bool, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, r := range s.w.t.reservations {
		if r.UserID == userID && r.TitleID == titleID && active(r) {
			return true, nil
		}
	}
	return false, nil
}

func (s ReservationStore) CountPendingTx(_ context.Context, _ db.DBTX, titleID int64) (int, error) {
	return s.count(titleID, reservations.StatusPending), nil
}

func (s ReservationStore) CountReadyTx(_ context.Context, _ db.DBTX, titleID int64) (int, error) {
	return s.count(titleID, reservations.StatusReady), nil
}

func (s ReservationStore) count(titleID int64, st reservations.Status) int {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	n := 0
	for _, r := range s.w.t.reservations {
		if r.TitleID == titleID && r.Status == st {
			n++
		}
	}
	return n
}

// InsertTx: MySQL の active_key UNIQUE と同じく有効な予約の重複を拒否
func (s ReservationStore) InsertTx(_ context.Context, _ db.DBTX, r *reservations.Reservation) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("reservations.InsertTx"); err != nil {
		return err
	}
	for _, existing := range s.w.t.reservations {
		if existing.UserID == r.UserID && existing.TitleID == r.TitleID && active(existing) {
			return reservations.ErrDuplicateReservation
		}
	}
	r.ID = s.w.nextID()
	s.w.t.reservations[r.ID] = *r
	return nil
}

func (s ReservationStore) LockTx(ctx context.Context, _ db.DBTX, id int64) (*reservations.Reservation, error) {
	return s.Get(ctx, id)
}

func (s ReservationStore) SaveTx(_ context.Context, _ db.DBTX, r *reservations.Reservation) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.fail("reservations.SaveTx"); err != nil {
		return err
	}
	s.w.t.reservations[r.ID] = *r
	return nil
}

func (s ReservationStore) NextPendingTx(_ context.Context, _ db.DBTX, titleID int64) (*reservations.Reservation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var head *reservations.Reservation
	for _, r := range s.w.t.reservations {
		r := r
		if r.TitleID != titleID || r.Status != reservations.StatusPending {
			continue
		}
		if head == nil || queueLess(&r, head) {
			head = &r
		}
	}
	return head, nil
}

func queueLess(a, b *reservations.Reservation) bool {
	if a.QueuePosition != b.QueuePosition {
		return a.QueuePosition < b.QueuePosition
	}
	if !a.ReservedAt.Equal(b.ReservedAt) {
		return a.ReservedAt.Before(b.ReservedAt)
	}
	return a.ID < b.ID
}

func (s ReservationStore) LapsedReady(_ context.Context, now time.Time) ([]int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var ids []int64
	for id, r := range s.w.t.reservations {
		if r.HoldLapsed(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s ReservationStore) Get(_ context.Context, id int64) (*reservations.Reservation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	r, ok := s.w.t.reservations[id]
	if !ok {
		return nil, reservations.ErrNotFound
	}
	return &r, nil
}

func (s ReservationStore) List(_ context.Context, f reservations.Filter, p reservations.Page) ([]*reservations.Reservation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []*reservations.Reservation
	for _, r := range s.w.t.reservations {
		r := r
		if f.UserID != nil && r.UserID != *f.UserID {
			continue
		}
		if f.TitleID != nil && r.TitleID != *f.TitleID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.ActiveOnly && !active(r) {
			continue
		}
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TitleID != out[j].TitleID {
			return out[i].TitleID < out[j].TitleID
		}
		return queueLess(out[i], out[j])
	})
	return window(out, p.Limit, p.Offset), nil
}
