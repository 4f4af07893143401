package titles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/audit"
	"LIBRIS-backend/internal/platform/auth"
	"LIBRIS-backend/internal/platform/db"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Repository interface {
	Get(ctx context.Context, id int64) (*Title, error)
	List(ctx context.Context, f Filter, p Page) ([]*Title, error)
	Insert(ctx context.Context, t *Title) error
	LockTx(ctx context.Context, tx db.DBTX, id int64) (*Title, error)
	SaveTx(ctx context.Context, tx db.DBTX, t *Title) error
}

// CopyListener is told when a title may have gained a free copy.
type CopyListener interface {
	CopiesAvailable(ctx context.Context, titleID int64)
}

// ===== Service本体 =====

type Service struct {
	repo     Repository
	tx       db.TxRunner
	audit    audit.Sink
	clock    Clock
	logger   *slog.Logger
	listener CopyListener
}

type Option func(*Service)

func WithAuditSink(s audit.Sink) Option      { return func(svc *Service) { svc.audit = s } }
func WithClock(c Clock) Option               { return func(svc *Service) { svc.clock = c } }
func WithLogger(l *slog.Logger) Option       { return func(svc *Service) { svc.logger = l } }
func WithCopyListener(l CopyListener) Option { return func(svc *Service) { svc.listener = l } }

func NewService(repo Repository, tx db.TxRunner, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		tx:     tx,
		audit:  audit.Discard,
		clock:  realClock{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetCopyListener は循環する依存（予約キュー）を後から繋ぐため
func (s *Service) SetCopyListener(l CopyListener) { s.listener = l }

func (s *Service) Create(ctx context.Context, actor auth.Principal, req CreateTitleRequest) (*Title, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can add titles")
	}
	t, err := New(req.ISBN, req.Title, req.Author, req.TotalCopies)
	if err != nil {
		return nil, err
	}
	t.Publisher = req.Publisher
	t.PublicationYear = req.PublicationYear
	t.Category = req.Category
	t.Location = req.Location
	if req.Language != "" {
		t.Language = req.Language
	}
	now := s.clock.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionCreate,
		"Title", strconv.FormatInt(t.ID, 10), t.Repr(), fmt.Sprintf("Added title with %d copies", t.Total()), now))
	return t, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Title, error) {
	if id <= 0 {
		return nil, apierr.ErrInvalid("title id must be > 0")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, p Page) ([]*Title, error) {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return s.repo.List(ctx, f, p)
}

func (s *Service) SetMaintenance(ctx context.Context, actor auth.Principal, id int64, on bool) (*Title, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can change maintenance status")
	}
	var t *Title
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		t, err = s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		t.SetMaintenance(on)
		return s.repo.SaveTx(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	detail := "Put title under maintenance"
	if !on {
		detail = "Returned title to circulation"
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionUpdate,
		"Title", strconv.FormatInt(t.ID, 10), t.Repr(), detail, s.clock.Now()))
	if !on {
		s.copiesAvailable(ctx, t)
	}
	return t, nil
}

func (s *Service) AdjustCopies(ctx context.Context, actor auth.Principal, id int64, delta int) (*Title, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can change copy counts")
	}
	var t *Title
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		t, err = s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := t.AdjustCopies(delta); err != nil {
			return err
		}
		return s.repo.SaveTx(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionUpdate,
		"Title", strconv.FormatInt(t.ID, 10), t.Repr(),
		fmt.Sprintf("Adjusted copies by %+d (total %d, available %d)", delta, t.Total(), t.Available()), s.clock.Now()))
	if delta > 0 {
		s.copiesAvailable(ctx, t)
	}
	return t, nil
}

func (s *Service) copiesAvailable(ctx context.Context, t *Title) {
	if s.listener != nil && t.IsAvailable() {
		s.logger.DebugContext(ctx, "copies available", "title_id", t.ID, "available", t.Available())
		s.listener.CopiesAvailable(ctx, t.ID)
	}
}
