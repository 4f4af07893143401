package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/audit"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type memStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func newMemStore() *memStore { return &memStore{accounts: map[string]*Account{}} }

func (m *memStore) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return 0, nil
	}
	delete(m.accounts, id)
	return 1, nil
}

func (m *memStore) UpdateRole(_ context.Context, id string, role Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.Role == role {
		return 0, nil
	}
	a.Role = role
	return 1, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingSink) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingSink) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" librarian ")
	require.NoError(t, err)
	assert.Equal(t, RoleLibrarian, r)

	_, err = ParseRole("superuser")
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	assert.True(t, CanManageBooks(RoleAdmin))
	assert.True(t, CanManageBooks(RoleLibrarian))
	assert.False(t, CanManageBooks(RoleStudent))

	assert.True(t, CanManageUsers(RoleAdmin))
	assert.False(t, CanManageUsers(RoleLibrarian))
	assert.False(t, CanManageUsers(RoleStudent))

	student := Principal{UserID: "s1", Role: RoleStudent}
	assert.True(t, student.CanAct("s1"))
	assert.False(t, student.CanAct("s2"))
	assert.True(t, Principal{UserID: "lib", Role: RoleLibrarian}.CanAct("s2"))
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	tok, err := tokens.Issue(Principal{UserID: "s1", Role: RoleStudent}, time.Now())
	require.NoError(t, err)

	p, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "s1", Role: RoleStudent}, p)

	_, err = NewTokens([]byte("another-secret-another-secret-xx"), time.Hour).Verify(tok)
	assert.Error(t, err)

	expired, err := tokens.Issue(Principal{UserID: "s1", Role: RoleStudent}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = tokens.Verify(expired)
	assert.Error(t, err)
}

func newRouter(tokens *Tokens) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", RequireAuth(tokens))
	g.GET("/me", func(c *gin.Context) {
		p, _ := CurrentPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"id": p.UserID, "role": p.Role})
	})
	g.GET("/staff", RequireBookManager(), func(c *gin.Context) { c.Status(http.StatusOK) })
	g.GET("/admin", RequireUserManager(), func(c *gin.Context) { c.Status(http.StatusOK) })
	g.GET("/desk", RequireRole(RoleLibrarian), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	r := newRouter(tokens)

	student, err := tokens.Issue(Principal{UserID: "s1", Role: RoleStudent}, time.Now())
	require.NoError(t, err)
	librarian, err := tokens.Issue(Principal{UserID: "lib", Role: RoleLibrarian}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "garbage").Code)
	assert.Equal(t, http.StatusOK, doGet(r, "/me", student).Code)

	assert.Equal(t, http.StatusForbidden, doGet(r, "/staff", student).Code)
	assert.Equal(t, http.StatusOK, doGet(r, "/staff", librarian).Code)
	assert.Equal(t, http.StatusForbidden, doGet(r, "/admin", librarian).Code)
	assert.Equal(t, http.StatusOK, doGet(r, "/desk", librarian).Code)
	assert.Equal(t, http.StatusForbidden, doGet(r, "/desk", student).Code)
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(0.001, 2)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"))
}

func TestServiceLoginAudits(t *testing.T) {
	store := newMemStore()
	sink := &recordingSink{}
	svc := NewService(store, NewTokens(testSecret, time.Hour), WithAuditSink(sink))
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "s1", "correct-horse"))

	_, _, err := svc.Login(ctx, "s1", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tok, p, err := svc.Login(ctx, "s1", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, RoleStudent, p.Role)

	assert.Equal(t, []audit.Action{audit.ActionCreate, audit.ActionFailedLogin, audit.ActionLogin}, sink.actions())
}

func TestServiceRegisterValidation(t *testing.T) {
	svc := NewService(newMemStore(), NewTokens(testSecret, time.Hour))
	ctx := context.Background()

	assert.True(t, apierr.HasCode(svc.Register(ctx, "s1", "short"), apierr.CodeInvalidArgument))
	require.NoError(t, svc.Register(ctx, "s1", "long-enough"))
	assert.ErrorIs(t, svc.Register(ctx, "s1", "long-enough"), ErrAlreadyExists)
}

func TestServiceAdminOperations(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, NewTokens(testSecret, time.Hour))
	ctx := context.Background()
	admin := Principal{UserID: "root", Role: RoleAdmin}
	librarian := Principal{UserID: "lib", Role: RoleLibrarian}

	err := svc.CreateAccount(ctx, librarian, "x", "password1", RoleStudent)
	assert.True(t, apierr.HasCode(err, apierr.CodeForbidden))

	require.NoError(t, svc.CreateAccount(ctx, admin, "lib2", "password1", RoleLibrarian))
	require.NoError(t, svc.ChangeRole(ctx, admin, "lib2", RoleLibrarian))
	require.NoError(t, svc.ChangeRole(ctx, admin, "lib2", RoleAdmin))
	a, _ := store.GetByID(ctx, "lib2")
	assert.Equal(t, RoleAdmin, a.Role)

	assert.ErrorIs(t, svc.ChangeRole(ctx, admin, "ghost", RoleStudent), ErrNotFound)
	assert.True(t, apierr.HasCode(svc.Delete(ctx, admin, "root"), apierr.CodeInvalidArgument))
	require.NoError(t, svc.Delete(ctx, admin, "lib2"))
	assert.ErrorIs(t, svc.Delete(ctx, admin, "lib2"), ErrNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, NewTokens(testSecret, time.Hour))
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "root", "bootstrap-pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "root", "another-pw")
	require.NoError(t, err)
	assert.False(t, created)

	_, p, err := svc.Login(ctx, "root", "bootstrap-pw")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, p.Role)
}

func TestProfileHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	tokens := NewTokens(testSecret, time.Hour)
	svc := NewService(store, tokens)
	ctx := context.Background()
	admin := Principal{UserID: "root", Role: RoleAdmin}

	require.NoError(t, svc.Register(ctx, "s1", "correct-horse"))
	tok, _, err := svc.Login(ctx, "s1", "correct-horse")
	require.NoError(t, err)

	r := gin.New()
	RegisterSessionRoutes(r.Group("/", RequireAuth(tokens)), svc)

	w := doGet(r, "/me", tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, RoleStudent, got.Role)

	// 昇格は次のトークン発行を待たずに反映
	require.NoError(t, svc.ChangeRole(ctx, admin, "s1", RoleLibrarian))
	w = doGet(r, "/me", tok)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, RoleLibrarian, got.Role)

	require.NoError(t, svc.Delete(ctx, admin, "s1"))
	assert.Equal(t, http.StatusNotFound, doGet(r, "/me", tok).Code)
}
