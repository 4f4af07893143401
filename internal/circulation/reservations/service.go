package reservations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"LIBRIS-backend/internal/catalog/titles"
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
	LockUserTx(ctx context.Context, tx db.DBTX, userID string) error
	HasActiveTx(ctx context.Context, tx db.DBTX, userID string, titleID int64) (bool, error)
	CountPendingTx(ctx context.Context, tx db.DBTX, titleID int64) (int, error)
	CountReadyTx(ctx context.Context, tx db.DBTX, titleID int64) (int, error)
	InsertTx(ctx context.Context, tx db.DBTX, r *Reservation) error
	LockTx(ctx context.Context, tx db.DBTX, id int64) (*Reservation, error)
	SaveTx(ctx context.Context, tx db.DBTX, r *Reservation) error
	NextPendingTx(ctx context.Context, tx db.DBTX, titleID int64) (*Reservation, error)
	LapsedReady(ctx context.Context, now time.Time) ([]int64, error)
	Get(ctx context.Context, id int64) (*Reservation, error)
	List(ctx context.Context, f Filter, p Page) ([]*Reservation, error)
}

// TitleLocker serializes queue changes per title.
type TitleLocker interface {
	LockTx(ctx context.Context, tx db.DBTX, id int64) (*titles.Title, error)
}

type Service struct {
	repo     Repository
	titles   TitleLocker
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

func NewService(repo Repository, tl TitleLocker, tx db.TxRunner, pol policy.Policy, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		titles: tl,
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

// Reserve: 在庫の有無に関わらず列に並べる
func (s *Service) Reserve(ctx context.Context, actor auth.Principal, titleID int64, req ReserveRequest) (*Reservation, error) {
	if titleID <= 0 {
		return nil, apierr.ErrInvalid("title id must be > 0")
	}
	user := actor.UserID
	if req.UserID != nil && *req.UserID != "" && *req.UserID != actor.UserID {
		if !actor.CanManageBooks() {
			return nil, apierr.ErrForbidden("only staff can reserve on behalf of another user")
		}
		user = *req.UserID
	}

	now := s.clock.Now().UTC()
	r := &Reservation{
		UserID:     user,
		TitleID:    titleID,
		Status:     StatusPending,
		ReservedAt: now,
		UpdatedAt:  now,
	}
	var title *titles.Title
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		// account → title の順でロック
		if err := s.repo.LockUserTx(ctx, tx, user); err != nil {
			return err
		}
		var err error
		title, err = s.titles.LockTx(ctx, tx, titleID)
		if err != nil {
			return err
		}
		dup, err := s.repo.HasActiveTx(ctx, tx, user, titleID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateReservation
		}
		pending, err := s.repo.CountPendingTx(ctx, tx, titleID)
		if err != nil {
			return err
		}
		r.QueuePosition = pending + 1
		return s.repo.InsertTx(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionCreate,
		"Reservation", strconv.FormatInt(r.ID, 10), title.Repr(),
		fmt.Sprintf("Reserved for %s, queue position %d", user, r.QueuePosition), now))
	return r, nil
}

// NotifyReady moves a PENDING reservation to READY by hand (staff).
func (s *Service) NotifyReady(ctx context.Context, actor auth.Principal, id int64) (*Reservation, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can mark reservations ready")
	}
	now := s.clock.Now().UTC()
	r, err := s.mutate(ctx, id, func(r *Reservation) error {
		return r.NotifyReady(now, s.policy.ReservationHold)
	})
	if err != nil {
		return nil, err
	}
	s.afterReady(ctx, actor.UserID, r, now)
	return r, nil
}

func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id int64) (*Reservation, error) {
	now := s.clock.Now().UTC()
	var wasReady bool
	r, err := s.mutate(ctx, id, func(r *Reservation) error {
		if !actor.CanAct(r.UserID) {
			return apierr.ErrForbidden("you can only cancel your own reservations")
		}
		wasReady = r.Status == StatusReady
		return r.Cancel(now)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionUpdate,
		"Reservation", strconv.FormatInt(r.ID, 10), fmt.Sprintf("Reservation #%d", r.QueuePosition), "Cancelled reservation", now))
	// 取り置きが空いたら次の人へ
	if wasReady {
		s.CopiesAvailable(ctx, r.TitleID)
	}
	return r, nil
}

// Fulfill closes a READY hold outside of a borrow (staff).
func (s *Service) Fulfill(ctx context.Context, actor auth.Principal, id int64) (*Reservation, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can fulfill reservations")
	}
	now := s.clock.Now().UTC()
	r, err := s.mutate(ctx, id, func(r *Reservation) error { return r.Fulfill(now) })
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionUpdate,
		"Reservation", strconv.FormatInt(r.ID, 10), fmt.Sprintf("Reservation #%d", r.QueuePosition), "Fulfilled reservation", now))
	return r, nil
}

// FulfillTx runs inside the borrow transaction; the hold must be READY and match the loan.
func (s *Service) FulfillTx(ctx context.Context, tx db.DBTX, id int64, userID string, titleID int64, now time.Time) error {
	r, err := s.repo.LockTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if r.UserID != userID || r.TitleID != titleID {
		return ErrMismatch
	}
	if err := r.Fulfill(now); err != nil {
		return err
	}
	return s.repo.SaveTx(ctx, tx, r)
}

func (s *Service) Expire(ctx context.Context, actor auth.Principal, id int64) (*Reservation, error) {
	if !actor.CanManageBooks() {
		return nil, apierr.ErrForbidden("only staff can expire reservations")
	}
	now := s.clock.Now().UTC()
	r, err := s.mutate(ctx, id, func(r *Reservation) error { return r.Expire(now) })
	if err != nil {
		return nil, err
	}
	s.afterExpired(ctx, actor.UserID, r, now)
	s.CopiesAvailable(ctx, r.TitleID)
	return r, nil
}

// ExpireDue expires every lapsed READY hold and offers the freed copies to the next in line.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	ids, err := s.repo.LapsedReady(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	touched := make(map[int64]struct{})
	for _, id := range ids {
		var done bool
		r, err := s.mutate(ctx, id, func(r *Reservation) error {
			// 取得後に受け取り済み・取消済みになっていれば何もしない
			if !r.HoldLapsed(now) {
				return nil
			}
			done = true
			return r.Expire(now)
		})
		if err != nil {
			return expired, err
		}
		if !done {
			continue
		}
		expired++
		touched[r.TitleID] = struct{}{}
		s.afterExpired(ctx, "", r, now)
	}

	for titleID := range touched {
		if _, err := s.PromoteQueue(ctx, titleID); err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// PromoteQueue marks PENDING heads READY, in queue order, while free copies exceed the holds
// already READY. It returns the promoted reservations, empty when nobody moved.
func (s *Service) PromoteQueue(ctx context.Context, titleID int64) ([]*Reservation, error) {
	now := s.clock.Now().UTC()
	var promoted []*Reservation
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		promoted = nil
		title, err := s.titles.LockTx(ctx, tx, titleID)
		if err != nil {
			return err
		}
		if !title.IsAvailable() {
			return nil
		}
		ready, err := s.repo.CountReadyTx(ctx, tx, titleID)
		if err != nil {
			return err
		}
		for free := title.Available() - ready; free > 0; free-- {
			head, err := s.repo.NextPendingTx(ctx, tx, titleID)
			if err != nil {
				return err
			}
			if head == nil {
				break
			}
			if err := head.NotifyReady(now, s.policy.ReservationHold); err != nil {
				return err
			}
			if err := s.repo.SaveTx(ctx, tx, head); err != nil {
				return err
			}
			promoted = append(promoted, head)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// 通知はコミット後に 1 件ずつ
	for _, r := range promoted {
		s.afterReady(ctx, "", r, now)
	}
	return promoted, nil
}

// CopiesAvailable is the hook fired after returns and stock changes.
func (s *Service) CopiesAvailable(ctx context.Context, titleID int64) {
	if _, err := s.PromoteQueue(ctx, titleID); err != nil {
		s.logger.WarnContext(ctx, "failed to promote reservation queue", "title_id", titleID, "err", err)
	}
}

// RunSweeper expires lapsed holds every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.ExpireDue(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "reservation sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "reservation sweep", "expired", n)
			}
		}
	}
}

func (s *Service) Get(ctx context.Context, actor auth.Principal, id int64) (*Reservation, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAct(r.UserID) {
		return nil, apierr.ErrForbidden("you can only view your own reservations")
	}
	return r, nil
}

// List: 学生は自分の予約だけ
func (s *Service) List(ctx context.Context, actor auth.Principal, f Filter, p Page) ([]*Reservation, error) {
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

// ActiveSummaries feeds the "my books" view.
func (s *Service) ActiveSummaries(ctx context.Context, userID string) ([]loans.ReservationSummary, error) {
	list, err := s.repo.List(ctx, Filter{UserID: &userID, ActiveOnly: true}, Page{Limit: 200})
	if err != nil {
		return nil, err
	}
	out := make([]loans.ReservationSummary, 0, len(list))
	for _, r := range list {
		sum := loans.ReservationSummary{
			ID:            r.ID,
			TitleID:       r.TitleID,
			Status:        string(r.Status),
			QueuePosition: r.QueuePosition,
			ReservedAt:    r.ReservedAt,
		}
		if r.ExpiryAt.Valid {
			t := r.ExpiryAt.Time
			sum.ExpiryAt = &t
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Service) mutate(ctx context.Context, id int64, fn func(r *Reservation) error) (*Reservation, error) {
	var r *Reservation
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		r, err = s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		before := r.Status
		if err := fn(r); err != nil {
			return err
		}
		if r.Status == before {
			return nil
		}
		return s.repo.SaveTx(ctx, tx, r)
	})
	return r, err
}

// コミット後に通知（ロールバックされた READY を知らせないため）
func (s *Service) afterReady(ctx context.Context, actor string, r *Reservation, now time.Time) {
	s.audit.Record(ctx, audit.NewEntry(ctx, actor, audit.ActionUpdate,
		"Reservation", strconv.FormatInt(r.ID, 10), fmt.Sprintf("Reservation #%d", r.QueuePosition),
		fmt.Sprintf("Ready for pickup until %s", r.ExpiryAt.Time.Format(time.RFC3339)), now))
	if s.notifier == nil {
		return
	}
	ev := notify.NewEvent(notify.EventReservationReady, r.UserID, now)
	ev.TitleID = r.TitleID
	ev.SubjectID = r.ID
	exp := r.ExpiryAt.Time
	ev.ExpiresAt = &exp
	ev.Message = fmt.Sprintf("Your reserved title is ready for pickup until %s.", exp.Format("2006-01-02 15:04 MST"))
	s.notifier.Notify(ctx, ev)
}

func (s *Service) afterExpired(ctx context.Context, actor string, r *Reservation, now time.Time) {
	s.audit.Record(ctx, audit.NewEntry(ctx, actor, audit.ActionUpdate,
		"Reservation", strconv.FormatInt(r.ID, 10), fmt.Sprintf("Reservation #%d", r.QueuePosition), "Reservation expired", now))
	if s.notifier == nil {
		return
	}
	ev := notify.NewEvent(notify.EventReservationExpired, r.UserID, now)
	ev.TitleID = r.TitleID
	ev.SubjectID = r.ID
	ev.Message = "Your reservation expired before it was picked up."
	s.notifier.Notify(ctx, ev)
}
