package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/audit"
)

const minPasswordLen = 8

var (
	ErrAlreadyExists      = apierr.ErrConflict("account already exists")
	ErrNotFound           = apierr.ErrNotFound("account not found")
	ErrInvalidCredentials = apierr.New(apierr.CodeUnauthenticated, "invalid id or password")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	store  AccountStore
	tokens *Tokens
	audit  audit.Sink
	clock  Clock
	logger *slog.Logger
}

type Option func(*Service)

func WithAuditSink(s audit.Sink) Option { return func(svc *Service) { svc.audit = s } }
func WithClock(c Clock) Option          { return func(svc *Service) { svc.clock = c } }
func WithLogger(l *slog.Logger) Option  { return func(svc *Service) { svc.logger = l } }

func NewService(store AccountStore, tokens *Tokens, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		audit:  audit.Discard,
		clock:  realClock{},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Login は成功・失敗どちらも監査ログに残す
func (s *Service) Login(ctx context.Context, id, password string) (string, Principal, error) {
	now := s.clock.Now()

	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", Principal{}, err
	}
	if acct == nil || acct.IsDisabled ||
		bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		s.audit.Record(ctx, audit.NewEntry(ctx, "", audit.ActionFailedLogin,
			"Account", id, id, "Failed login attempt for id: "+id, now))
		return "", Principal{}, ErrInvalidCredentials
	}

	p := Principal{UserID: acct.ID, Role: acct.Role}
	token, err := s.tokens.Issue(p, now)
	if err != nil {
		return "", Principal{}, err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, acct.ID, audit.ActionLogin,
		"Account", acct.ID, acct.ID, "User logged in", now))
	return token, p, nil
}

// Logout: トークンはステートレスなので記録のみ
func (s *Service) Logout(ctx context.Context, actor Principal) {
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionLogout,
		"Account", actor.UserID, actor.UserID, "User logged out", s.clock.Now()))
}

// Register: 自己登録は常に STUDENT
func (s *Service) Register(ctx context.Context, id, password string) error {
	if err := s.create(ctx, id, password, RoleStudent); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, id, audit.ActionCreate,
		"Account", id, id, "Registered account", s.clock.Now()))
	return nil
}

func (s *Service) CreateAccount(ctx context.Context, actor Principal, id, password string, role Role) error {
	if !actor.CanManageUsers() {
		return apierr.ErrForbidden("only admins can create accounts")
	}
	if !role.Valid() {
		return apierr.ErrInvalid("invalid role")
	}
	if err := s.create(ctx, id, password, role); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionCreate,
		"Account", id, id, fmt.Sprintf("Created account with role %s", role), s.clock.Now()))
	return nil
}

func (s *Service) create(ctx context.Context, id, password string, role Role) error {
	if id == "" {
		return apierr.ErrInvalid("id is required")
	}
	if len(password) < minPasswordLen {
		return apierr.ErrInvalid(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}

	exists, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.store.Create(ctx, &Account{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
	})
}

func (s *Service) ChangeRole(ctx context.Context, actor Principal, id string, role Role) error {
	if !actor.CanManageUsers() {
		return apierr.ErrForbidden("only admins can change roles")
	}
	if !role.Valid() {
		return apierr.ErrInvalid("invalid role")
	}
	n, err := s.store.UpdateRole(ctx, id, role)
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL は値が同じだと affected=0 を返すので存在確認し直す
		acct, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if acct == nil {
			return ErrNotFound
		}
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionUpdate,
		"Account", id, id, fmt.Sprintf("Changed role to %s", role), s.clock.Now()))
	return nil
}

func (s *Service) Delete(ctx context.Context, actor Principal, id string) error {
	if !actor.CanManageUsers() {
		return apierr.ErrForbidden("only admins can delete accounts")
	}
	if actor.UserID == id {
		return apierr.ErrInvalid("cannot delete your own account")
	}
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, actor.UserID, audit.ActionDelete,
		"Account", id, id, "Deleted account", s.clock.Now()))
	return nil
}

// Profile returns the caller's own account.
func (s *Service) Profile(ctx context.Context, actor Principal) (*Account, error) {
	acct, err := s.store.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNotFound
	}
	return acct, nil
}

// EnsureAdmin creates the first ADMIN at start-up. An existing account is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, id, password string) (bool, error) {
	acct, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if acct != nil {
		return false, nil
	}
	if err := s.create(ctx, id, password, RoleAdmin); err != nil {
		return false, err
	}
	s.audit.Record(ctx, audit.NewEntry(ctx, "", audit.ActionCreate,
		"Account", id, id, "Bootstrapped admin account", s.clock.Now()))
	return true, nil
}
