package circulationtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"LIBRIS-backend/internal/catalog/titles"
	"LIBRIS-backend/internal/circulation/fines"
	"LIBRIS-backend/internal/circulation/loans"
	"LIBRIS-backend/internal/circulation/policy"
	"LIBRIS-backend/internal/circulation/reservations"
	"LIBRIS-backend/internal/platform/audit"
	"LIBRIS-backend/internal/platform/auth"
	"LIBRIS-backend/internal/platform/notify"
)

// ===== clock =====

type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *FakeClock { return &FakeClock{now: t.UTC()} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// ===== audit / notify =====

type AuditLog struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *AuditLog) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *AuditLog) Entries() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

// Actions lists the recorded actions in order.
func (a *AuditLog) Actions() []audit.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Action, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

type Outbox struct {
	mu     sync.Mutex
	events []notify.Event
}

var (
	_ notify.Notifier = (*Outbox)(nil)
	_ notify.Inbox    = (*Outbox)(nil)
)

func (o *Outbox) Notify(_ context.Context, e notify.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

// Inbox returns the newest events first, like the Redis list.
func (o *Outbox) Inbox(_ context.Context, userID string, limit int) ([]notify.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Event
	for i := len(o.events) - 1; i >= 0; i-- {
		if o.events[i].UserID != userID {
			continue
		}
		out = append(out, o.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *Outbox) Events() []notify.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notify.Event(nil), o.events...)
}

// OfType filters the delivered events.
func (o *Outbox) OfType(typ notify.EventType) []notify.Event {
	var out []notify.Event
	for _, e := range o.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ===== ids =====

type SeqIDs struct {
	mu sync.Mutex
	n  int
}

// New returns ULID-shaped ids that never parse as numbers.
func (g *SeqIDs) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("01TEST%020d", g.n), nil
}

// ===== env =====

var (
	Admin     = auth.Principal{UserID: "admin", Role: auth.RoleAdmin}
	Librarian = auth.Principal{UserID: "librarian", Role: auth.RoleLibrarian}
)

// Student returns a STUDENT principal for id.
func Student(id string) auth.Principal {
	return auth.Principal{UserID: id, Role: auth.RoleStudent}
}

// Env wires the four circulation services over one World the same way main does.
type Env struct {
	World  *World
	Clock  *FakeClock
	Audit  *AuditLog
	Outbox *Outbox
	Policy policy.Policy

	Titles       *titles.Service
	Loans        *loans.Service
	Fines        *fines.Service
	Reservations *reservations.Service

	isbn int
}

var epoch = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func NewEnv(pol policy.Policy) *Env {
	w := NewWorld()
	clock := NewClock(epoch)
	sink := &AuditLog{}
	outbox := &Outbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	titleStore := TitleStore{w}
	loanStore := LoanStore{w}

	titleSvc := titles.NewService(titleStore, w,
		titles.WithAuditSink(sink),
		titles.WithClock(clock),
		titles.WithLogger(logger),
	)
	resSvc := reservations.NewService(ReservationStore{w}, titleStore, w, pol,
		reservations.WithNotifier(outbox),
		reservations.WithAuditSink(sink),
		reservations.WithClock(clock),
		reservations.WithLogger(logger),
	)
	fineSvc := fines.NewService(FineStore{w}, loanStore, w, pol,
		fines.WithNotifier(outbox),
		fines.WithAuditSink(sink),
		fines.WithClock(clock),
		fines.WithLogger(logger),
	)
	loanSvc := loans.NewService(loanStore, titleStore, w, pol,
		loans.WithFineAssessor(fineSvc),
		loans.WithReservationFulfiller(resSvc),
		loans.WithCopyListener(resSvc),
		loans.WithNotifier(outbox),
		loans.WithAuditSink(sink),
		loans.WithClock(clock),
		loans.WithIDGen(&SeqIDs{}),
		loans.WithLogger(logger),
	)
	titleSvc.SetCopyListener(resSvc)

	for _, p := range []auth.Principal{Admin, Librarian} {
		w.AddAccount(p.UserID)
	}

	return &Env{
		World:        w,
		Clock:        clock,
		Audit:        sink,
		Outbox:       outbox,
		Policy:       pol,
		Titles:       titleSvc,
		Loans:        loanSvc,
		Fines:        fineSvc,
		Reservations: resSvc,
	}
}

// AddStudent registers a borrower account and returns its principal.
func (e *Env) AddStudent(id string) auth.Principal {
	e.World.AddAccount(id)
	return Student(id)
}

// AddTitle stores a title with the given number of copies, all on the shelf.
func (e *Env) AddTitle(name string, copies int) *titles.Title {
	e.isbn++
	t, err := titles.New(fmt.Sprintf("978%010d", e.isbn), name, "Author of "+name, copies)
	if err != nil {
		panic(err)
	}
	t.CreatedAt = e.Clock.Now()
	t.UpdatedAt = t.CreatedAt
	e.World.PutTitle(t)
	return t
}

// Borrow is a shortcut for a student borrowing a title for themselves.
func (e *Env) Borrow(p auth.Principal, titleID int64) (*loans.Loan, error) {
	return e.Loans.Borrow(context.Background(), p, loans.BorrowRequest{TitleID: titleID})
}
