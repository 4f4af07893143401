package fines

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"LIBRIS-backend/internal/circulation/loans"
	"LIBRIS-backend/internal/circulation/policy"
	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/audit"
	"LIBRIS-backend/internal/platform/auth"
	"LIBRIS-backend/internal/platform/db"
	"LIBRIS-backend/internal/platform/notify"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Repository interface {
	ExistsForLoanTx(ctx context.Context, tx db.DBTX, loanID int64) (bool, error)
	InsertTx(ctx context.Context, tx db.DBTX, f *Fine) error
	LockTx(ctx context.Context, tx db.DBTX, id int64) (*Fine, error)
	SaveTx(ctx context.Context, tx db.DBTX, f *Fine) error
	Get(ctx context.Context, id int64) (*Fine, error)
	List(ctx context.Context, f Filter, p Page) ([]*Fine, error)
	PendingTotal(ctx context.Context, userID string) (decimal.Decimal, error)
}

// LoanSource resolves and locks the loan a fine is raised against.
type LoanSource interface {
	Get(ctx context.Context, id int64) (*loans.Loan, error)
	GetByULID(ctx context.Context, ulid string) (*loans.Loan, error)
	LockTx(ctx context.Context, tx db.DBTX, id int64) (*loans.Loan, error)
}

type Service struct {
	repo     Repository
	loans    LoanSource
	tx       db.TxRunner
	policy   policy.Policy
	notifier notify.Notifier
	audit    audit.Sink
	clock    Clock
	logger   *slog.Logger
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithAuditSink(a audit.Sink) Option     { return func(s *Service) { s.audit = a } }
func WithClock(c Clock) Option              { return func(s *Service) { s.clock = c } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, loanSrc LoanSource, tx db.TxRunner, pol policy.Policy, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		loans:  loanSrc,
		tx:     tx,
		policy: pol,
		audit:  audit.Discard,
		clock:  realClock{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AssessTx is called by the loan manager inside the return transaction.
func (s *Service) AssessTx(ctx context.Context, tx db.DBTX, l *loans.Loan, now time.Time) (*loans.Assessment, error) {
	f, err := s.assessTx(ctx, tx, l, now)
	if err != nil || f == nil {
		return nil, err
	}
	return &loans.Assessment{FineID: f.ID, Amount: f.Amount}, nil
}

// 1日未満の延滞は金額0なので作らない
func (s *Service) assessTx(ctx context.Context, tx db.DBTX, l *loans.Loan, now time.Time) (*Fine, error) {
	exists, err := s.repo.ExistsForLoanTx(ctx, tx, l.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrFineAlreadyExists
	}
	amount := loans.FineAmount(l, now, s.policy.FinePerDay)
	if !amount.IsPositive() {
		return nil, nil
	}
	f := &Fine{
		LoanID:    l.ID,
		UserID:    l.UserID,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertTx(ctx, tx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Create raises a fine for an overdue loan by hand (staff only).
func (s *Service) Create(ctx context.Context, actor auth.Principal, loanKey string) (*Fine, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can create fines")
	}
	l, err := s.resolveLoan(ctx, loanKey)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	var f *Fine
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		locked, err := s.loans.LockTx(ctx, tx, l.ID)
		if err != nil {
			return err
		}
		f, err = s.assessTx(ctx, tx, locked, now)
		if err != nil {
			return err
		}
		if f == nil {
			return ErrNotOverdue
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionCreate,
		"Fine", strconv.FormatInt(f.ID, 10), fmt.Sprintf("Fine for loan %s", l.ULID),
		fmt.Sprintf("Assessed %s for user %s", f.Amount.StringFixed(2), f.UserID), now))
	if s.notifier != nil {
		ev := notify.NewEvent(notify.EventFineAssessed, f.UserID, now)
		ev.TitleID = l.TitleID
		ev.SubjectID = f.ID
		ev.Message = fmt.Sprintf("A fine of %s was assessed for an overdue loan.", f.Amount.StringFixed(2))
		s.notifier.Notify(ctx, ev)
	}
	return f, nil
}

func (s *Service) resolveLoan(ctx context.Context, key string) (*loans.Loan, error) {
	if key == "" {
		return nil, apierr.ErrInvalid("loan id or ulid is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return s.loans.Get(ctx, id)
	}
	return s.loans.GetByULID(ctx, key)
}

// Pay: amount 省略時は全額
func (s *Service) Pay(ctx context.Context, actor auth.Principal, id int64, amount *decimal.Decimal) (*Fine, error) {
	if amount != nil && amount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	now := s.clock.Now().UTC()
	f, err := s.mutate(ctx, id, func(f *Fine) error {
		if !actor.CanAct(f.UserID) {
			return apierr.ErrForbidden("you can only pay your own fines")
		}
		return f.Pay(amount, now)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionUpdate,
		"Fine", strconv.FormatInt(f.ID, 10), fmt.Sprintf("Fine for loan %d", f.LoanID),
		fmt.Sprintf("Paid %s of %s", f.PaidAmount.Decimal.StringFixed(2), f.Amount.StringFixed(2)), now))
	return f, nil
}

func (s *Service) Waive(ctx context.Context, actor auth.Principal, id int64, reason string) (*Fine, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can waive fines")
	}
	now := s.clock.Now().UTC()
	f, err := s.mutate(ctx, id, func(f *Fine) error {
		return f.Waive(actor.UserID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionUpdate,
		"Fine", strconv.FormatInt(f.ID, 10), fmt.Sprintf("Fine for loan %d", f.LoanID),
		fmt.Sprintf("Waived %s: %s", f.Amount.StringFixed(2), reason), now))
	return f, nil
}

func (s *Service) mutate(ctx context.Context, id int64, fn func(f *Fine) error) (*Fine, error) {
	var f *Fine
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		f, err = s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return s.repo.SaveTx(ctx, tx, f)
	})
	return f, err
}

func (s *Service) Get(ctx context.Context, actor auth.Principal, id int64) (*Fine, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAct(f.UserID) {
		return nil, apierr.ErrForbidden("you can only view your own fines")
	}
	return f, nil
}

// List: 学生は自分の罰金だけ
func (s *Service) List(ctx context.Context, actor auth.Principal, f Filter, p Page) ([]*Fine, error) {
	if !actor.CanManageBooks() {
		uid := actor.UserID
		f.UserID = &uid
	}
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return s.repo.List(ctx, f, p)
}

// Balance is the sum of a user's PENDING fines.
func (s *Service) Balance(ctx context.Context, actor auth.Principal, userID string) (decimal.Decimal, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if !actor.CanAct(userID) {
		return decimal.Zero, apierr.ErrForbidden("you can only view your own balance")
	}
	return s.repo.PendingTotal(ctx, userID)
}
