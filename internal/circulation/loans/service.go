package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"LIBRIS-backend/internal/catalog/titles"
	"LIBRIS-backend/internal/circulation/policy"
	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/audit"
	"LIBRIS-backend/internal/platform/auth"
	"LIBRIS-backend/internal/platform/db"
	"LIBRIS-backend/internal/platform/notify"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type IDGen interface {
	New() (string, error)
}

// Monotonic entropy はスレッドセーフではないのでロックで守る
type ulidGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type Repository interface {
	LockBorrowerTx(ctx context.Context, tx db.DBTX, userID string) error
	CountActiveByUserTx(ctx context.Context, tx db.DBTX, userID string) (int, error)
	HasActiveTx(ctx context.Context, tx db.DBTX, userID string, titleID int64) (bool, error)
	InsertTx(ctx context.Context, tx db.DBTX, l *Loan) error
	LockTx(ctx context.Context, tx db.DBTX, id int64) (*Loan, error)
	MarkReturnedTx(ctx context.Context, tx db.DBTX, l *Loan) error
	Get(ctx context.Context, id int64) (*Loan, error)
	GetByULID(ctx context.Context, ulid string) (*Loan, error)
	List(ctx context.Context, f Filter, p Page) ([]*Loan, error)
}

// Ledger is the slice of the inventory ledger a loan needs.
type Ledger interface {
	LockTx(ctx context.Context, tx db.DBTX, id int64) (*titles.Title, error)
	SaveTx(ctx context.Context, tx db.DBTX, t *titles.Title) error
}

// Assessment is a fine created while returning a loan.
type Assessment struct {
	FineID int64
	Amount decimal.Decimal
}

// FineAssessor creates the fine for an overdue loan inside the return transaction.
// A nil Assessment means nothing was owed.
type FineAssessor interface {
	AssessTx(ctx context.Context, tx db.DBTX, l *Loan, now time.Time) (*Assessment, error)
}

// ReservationFulfiller closes a READY hold as part of a borrow.
type ReservationFulfiller interface {
	FulfillTx(ctx context.Context, tx db.DBTX, reservationID int64, userID string, titleID int64, now time.Time) error
}

// ===== Service本体 =====

type Service struct {
	repo         Repository
	ledger       Ledger
	tx           db.TxRunner
	policy       policy.Policy
	fines        FineAssessor
	reservations ReservationFulfiller
	listener     titles.CopyListener
	notifier     notify.Notifier
	audit        audit.Sink
	clock        Clock
	ids          IDGen
	logger       *slog.Logger
}

type Option func(*Service)

func WithFineAssessor(f FineAssessor) Option { return func(s *Service) { s.fines = f } }
func WithReservationFulfiller(r ReservationFulfiller) Option {
	return func(s *Service) { s.reservations = r }
}
func WithCopyListener(l titles.CopyListener) Option { return func(s *Service) { s.listener = l } }
func WithNotifier(n notify.Notifier) Option         { return func(s *Service) { s.notifier = n } }
func WithAuditSink(a audit.Sink) Option             { return func(s *Service) { s.audit = a } }
func WithClock(c Clock) Option                      { return func(s *Service) { s.clock = c } }
func WithIDGen(g IDGen) Option                      { return func(s *Service) { s.ids = g } }
func WithLogger(l *slog.Logger) Option              { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, ledger Ledger, tx db.TxRunner, pol policy.Policy, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		ledger: ledger,
		tx:     tx,
		policy: pol,
		audit:  audit.Discard,
		clock:  realClock{},
		ids:    newULIDGen(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// 貸出
func (s *Service) Borrow(ctx context.Context, actor auth.Principal, req BorrowRequest) (*Loan, error) {
	if req.TitleID <= 0 {
		return nil, apierr.ErrInvalid("title_id must be > 0")
	}
	borrower := actor.UserID
	if req.UserID != nil && *req.UserID != "" && *req.UserID != actor.UserID {
		if !actor.CanManageBooks() {
			return nil, apierr.ErrForbidden("only staff can borrow on behalf of another user")
		}
		borrower = *req.UserID
	}

	ulidStr, err := s.ids.New()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()

	loan := &Loan{
		ULID:       ulidStr,
		UserID:     borrower,
		TitleID:    req.TitleID,
		BorrowedAt: now,
		DueAt:      now.Add(s.policy.BorrowPeriod),
		Status:     StatusActive,
	}
	if actor.CanManageBooks() {
		loan.IssuedBy = sql.NullString{String: actor.UserID, Valid: true}
	}
	if req.Note != nil && *req.Note != "" {
		loan.Note = sql.NullString{String: *req.Note, Valid: true}
	}

	var title *titles.Title
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		// ロック順: 利用者 → 書誌
		if err := s.repo.LockBorrowerTx(ctx, tx, borrower); err != nil {
			return err
		}
		var err error
		title, err = s.ledger.LockTx(ctx, tx, req.TitleID)
		if err != nil {
			return err
		}

		active, err := s.repo.CountActiveByUserTx(ctx, tx, borrower)
		if err != nil {
			return err
		}
		if active >= s.policy.MaxBooksPerUser {
			return ErrLoanLimitExceeded
		}
		if !title.IsAvailable() {
			return ErrTitleUnavailable
		}
		dup, err := s.repo.HasActiveTx(ctx, tx, borrower, req.TitleID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateLoan
		}

		if err := title.Decrement(); err != nil {
			return err
		}
		if err := s.ledger.SaveTx(ctx, tx, title); err != nil {
			return err
		}
		if err := s.repo.InsertTx(ctx, tx, loan); err != nil {
			return err
		}

		if req.ReservationID != nil {
			if s.reservations == nil {
				return apierr.ErrInvalid("reservations are not enabled")
			}
			return s.reservations.FulfillTx(ctx, tx, *req.ReservationID, borrower, req.TitleID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionBorrow,
		"Title", strconv.FormatInt(title.ID, 10), title.Repr(),
		fmt.Sprintf("Borrowed book: %s (loan %s, user %s, due %s)", title.Title, loan.ULID, borrower, loan.DueAt.Format(time.DateOnly)), now))
	s.logger.InfoContext(ctx, "loan issued", "loan", loan.ULID, "user_id", borrower, "title_id", title.ID)
	return loan, nil
}

// 返却
func (s *Service) Return(ctx context.Context, actor auth.Principal, key string) (*ReturnResult, error) {
	found, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !actor.CanAct(found.UserID) {
		return nil, apierr.ErrForbidden("you can only return your own loans")
	}

	now := s.clock.Now().UTC()
	var (
		loan  *Loan
		title *titles.Title
		fine  *Assessment
		days  int
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		// ロック順: 書誌 → 貸出（title_id は不変なので事前読み取りの値を使う）
		var err error
		title, err = s.ledger.LockTx(ctx, tx, found.TitleID)
		if err != nil {
			return err
		}
		loan, err = s.repo.LockTx(ctx, tx, found.ID)
		if err != nil {
			return err
		}
		if loan.Status != StatusActive {
			return ErrInvalidLoanState
		}
		overdue := IsOverdue(loan, now)

		loan.Status = StatusReturned
		loan.ReturnedAt = sql.NullTime{Time: now, Valid: true}
		loan.ReturnedTo = sql.NullString{String: actor.UserID, Valid: true}
		if err := s.repo.MarkReturnedTx(ctx, tx, loan); err != nil {
			return err
		}

		if err := title.Increment(); err != nil {
			return err
		}
		if err := s.ledger.SaveTx(ctx, tx, title); err != nil {
			return err
		}

		if overdue {
			days = DaysOverdue(loan, now)
			if s.fines != nil {
				fine, err = s.fines.AssessTx(ctx, tx, loan, now)
				// 職員が返却前に手動で科した罰金があればそれを優先
				if err != nil && !apierr.HasCode(err, apierr.CodeFineAlreadyExists) {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail := "Returned book: " + title.Title
	if fine != nil {
		detail += fmt.Sprintf(" (%d days overdue, fine %s)", days, fine.Amount.StringFixed(2))
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionReturn,
		"Title", strconv.FormatInt(title.ID, 10), title.Repr(), detail, now))

	if fine != nil && s.notifier != nil {
		ev := notify.NewEvent(notify.EventFineAssessed, loan.UserID, now)
		ev.TitleID = title.ID
		ev.SubjectID = fine.FineID
		ev.Message = fmt.Sprintf("A fine of %s was assessed for returning %q %d days late.", fine.Amount.StringFixed(2), title.Title, days)
		s.notifier.Notify(ctx, ev)
	}
	if s.listener != nil && title.IsAvailable() {
		s.listener.CopiesAvailable(ctx, title.ID)
	}

	return &ReturnResult{Loan: loan, DaysOverdue: days, Fine: fine}, nil
}

// Get は ID（数値）でも ULID でも引ける
func (s *Service) Get(ctx context.Context, actor auth.Principal, key string) (*Loan, error) {
	l, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !actor.CanAct(l.UserID) {
		return nil, apierr.ErrForbidden("you can only view your own loans")
	}
	return l, nil
}

func (s *Service) get(ctx context.Context, key string) (*Loan, error) {
	if key == "" {
		return nil, apierr.ErrInvalid("id or ulid is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return s.repo.Get(ctx, id)
	}
	return s.repo.GetByULID(ctx, key)
}

// List: 学生は自分の貸出だけ
func (s *Service) List(ctx context.Context, actor auth.Principal, f Filter, p Page) ([]*Loan, error) {
	if !actor.CanManageBooks() {
		uid := actor.UserID
		f.UserID = &uid
	}
	return s.repo.List(ctx, f, normalizePage(p))
}

// ListOverdue returns every loan overdue at now, oldest first.
func (s *Service) ListOverdue(ctx context.Context, now time.Time) ([]*Loan, error) {
	const batch = 500
	f := Filter{OverdueAt: &now}
	var out []*Loan
	for offset := 0; ; offset += batch {
		page, err := s.repo.List(ctx, f, Page{Limit: batch, Offset: offset, Order: "asc"})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < batch {
			return out, nil
		}
	}
}

// Now exposes the service clock so derived fields use the same instant.
func (s *Service) Now() time.Time { return s.clock.Now().UTC() }

// FinePerDay is the configured daily fine.
func (s *Service) FinePerDay() decimal.Decimal { return s.policy.FinePerDay }

func normalizePage(p Page) Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
