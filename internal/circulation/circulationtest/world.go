// Package circulationtest is an in-memory stand-in for the MySQL stores so the
// circulation services can be exercised end to end in tests.
package circulationtest

import (
	"context"
	"fmt"
	"sync"

	"LIBRIS-backend/internal/catalog/titles"
	"LIBRIS-backend/internal/circulation/fines"
	"LIBRIS-backend/internal/circulation/loans"
	"LIBRIS-backend/internal/circulation/reservations"
	"LIBRIS-backend/internal/platform/db"
)

type tables struct {
	accounts     map[string]struct{}
	titles       map[int64]titles.Title
	loans        map[int64]loans.Loan
	fines        map[int64]fines.Fine
	reservations map[int64]reservations.Reservation
	seq          int64
}

func (t *tables) clone() tables {
	c := tables{
		accounts:     make(map[string]struct{}, len(t.accounts)),
		titles:       make(map[int64]titles.Title, len(t.titles)),
		loans:        make(map[int64]loans.Loan, len(t.loans)),
		fines:        make(map[int64]fines.Fine, len(t.fines)),
		reservations: make(map[int64]reservations.Reservation, len(t.reservations)),
		seq:          t.seq,
	}
	for k, v := range t.accounts {
		c.accounts[k] = v
	}
	for k, v := range t.titles {
		c.titles[k] = v
	}
	for k, v := range t.loans {
		c.loans[k] = v
	}
	for k, v := range t.fines {
		c.fines[k] = v
	}
	for k, v := range t.reservations {
		c.reservations[k] = v
	}
	return c
}

// World holds every table. Transactions run one at a time and are rolled back
// by restoring a snapshot, which stands in for row locks and InnoDB rollback.
type World struct {
	txMu sync.Mutex
	mu   sync.Mutex
	t    tables

	failures map[string]error
	commits  int
}

func NewWorld() *World {
	w := &World{failures: make(map[string]error)}
	w.t = tables{
		accounts:     make(map[string]struct{}),
		titles:       make(map[int64]titles.Title),
		loans:        make(map[int64]loans.Loan),
		fines:        make(map[int64]fines.Fine),
		reservations: make(map[int64]reservations.Reservation),
	}
	return w
}

var _ db.TxRunner = (*World)(nil)

func (w *World) RunInTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	w.txMu.Lock()
	defer w.txMu.Unlock()

	w.mu.Lock()
	snapshot := w.t.clone()
	w.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		w.mu.Lock()
		w.t = snapshot
		w.mu.Unlock()
		return err
	}
	w.mu.Lock()
	w.commits++
	w.mu.Unlock()
	return nil
}

// Conn: メモリ実装なので接続は無い
func (w *World) Conn() db.DBTX { return nil }

// Commits counts committed transactions.
func (w *World) Commits() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commits
}

// FailOn makes the next call of the named store operation (e.g. "loans.InsertTx") return err.
func (w *World) FailOn(op string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[op] = err
}

// fail must be called with w.mu held.
func (w *World) fail(op string) error {
	if err, ok := w.failures[op]; ok {
		delete(w.failures, op)
		return err
	}
	return nil
}

func (w *World) nextID() int64 {
	w.t.seq++
	return w.t.seq
}

// AddAccount registers a borrower row.
func (w *World) AddAccount(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.t.accounts[id] = struct{}{}
}

// PutTitle stores t as-is, assigning an ID when it has none.
func (w *World) PutTitle(t *titles.Title) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.ID == 0 {
		t.ID = w.nextID()
	}
	w.t.titles[t.ID] = *t
}

// Title returns the committed state of a title.
func (w *World) Title(id int64) *titles.Title {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.t.titles[id]
	if !ok {
		panic(fmt.Sprintf("circulationtest: no title %d", id))
	}
	return &t
}

func (w *World) Loan(id int64) loans.Loan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.t.loans[id]
}

func (w *World) Reservation(id int64) reservations.Reservation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.t.reservations[id]
}

// Fines returns every fine, in no particular order.
func (w *World) Fines() []fines.Fine {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]fines.Fine, 0, len(w.t.fines))
	for _, f := range w.t.fines {
		out = append(out, f)
	}
	return out
}

func (w *World) LoanCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.t.loans)
}
