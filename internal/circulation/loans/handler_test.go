package loans_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRIS-backend/internal/circulation/circulationtest"
	"LIBRIS-backend/internal/circulation/loans"
	"LIBRIS-backend/internal/circulation/policy"
	"LIBRIS-backend/internal/circulation/reservations"
	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/audit"
	"LIBRIS-backend/internal/platform/auth"
)

// serve は RequireAuth の代わりに principal を直接詰めて 1 リクエスト流す
func serve(env *circulationtest.Env, p auth.Principal, method, path string, body any) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(audit.Middleware())
	g := r.Group("", func(c *gin.Context) {
		c.Set(auth.CtxUserIDKey, p.UserID)
		c.Set(auth.CtxRoleKey, p.Role)
		c.Next()
	})
	loans.RegisterRoutes(g, env.Loans, env.Reservations)

	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "circulation-desk/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error struct {
		Code    apierr.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var e errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHandlerBorrowAndReturn(t *testing.T) {
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	book := env.AddTitle("Go in Practice", 1)

	w := serve(env, alice, http.MethodPost, "/loans", map[string]any{"title_id": book.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created loans.LoanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, loans.StatusActive, created.Status)
	assert.Equal(t, "alice", created.UserID)
	assert.Equal(t, "/loans/"+created.ULID, w.Header().Get("Location"))

	entries := env.Audit.Entries()
	require.NotEmpty(t, entries)
	borrowed := entries[len(entries)-1]
	assert.Equal(t, audit.ActionBorrow, borrowed.Action)
	assert.Equal(t, "alice", borrowed.Actor)
	assert.Equal(t, "192.0.2.1", borrowed.SourceIP)
	assert.Equal(t, "circulation-desk/1.0", borrowed.UserAgent)

	env.Clock.Advance(17 * day)

	w = serve(env, alice, http.MethodPost, "/loans/"+created.ULID+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var returned loans.ReturnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &returned))
	assert.Equal(t, loans.StatusReturned, returned.Loan.Status)
	assert.Equal(t, 3, returned.DaysOverdue)
	require.NotNil(t, returned.FineID)
	require.NotNil(t, returned.FineAmount)
	assert.True(t, decimal.RequireFromString("1.50").Equal(*returned.FineAmount), returned.FineAmount.String())
}

func TestHandlerBorrowErrors(t *testing.T) {
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	bob := env.AddStudent("bob")
	book := env.AddTitle("Go in Practice", 1)

	w := serve(env, alice, http.MethodPost, "/loans", map[string]any{"note": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apierr.CodeInvalidArgument, decodeError(t, w).Error.Code)

	w = serve(env, alice, http.MethodPost, "/loans", map[string]any{"title_id": book.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	w = serve(env, bob, http.MethodPost, "/loans", map[string]any{"title_id": book.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apierr.CodeTitleUnavailable, decodeError(t, w).Error.Code)

	w = serve(env, bob, http.MethodPost, "/loans", map[string]any{"title_id": book.ID, "user_id": "alice"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandlerLoanVisibility(t *testing.T) {
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	bob := env.AddStudent("bob")
	book := env.AddTitle("Go in Practice", 2)

	loan, err := env.Borrow(alice, book.ID)
	require.NoError(t, err)

	w := serve(env, bob, http.MethodGet, "/loans/"+loan.ULID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(env, circulationtest.Librarian, http.MethodGet, "/loans/"+strconv.FormatInt(loan.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(env, alice, http.MethodGet, "/loans/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apierr.CodeNotFound, decodeError(t, w).Error.Code)

	w = serve(env, bob, http.MethodPost, "/loans/"+loan.ULID+"/return", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandlerMyBooks(t *testing.T) {
	env := circulationtest.NewEnv(policy.Default())
	ctx := context.Background()
	alice := env.AddStudent("alice")
	bob := env.AddStudent("bob")
	book := env.AddTitle("Go in Practice", 1)
	other := env.AddTitle("Concurrency in Go", 1)

	_, err := env.Borrow(alice, book.ID)
	require.NoError(t, err)
	_, err = env.Borrow(bob, other.ID)
	require.NoError(t, err)
	_, err = env.Reservations.Reserve(ctx, alice, other.ID, reservations.ReserveRequest{})
	require.NoError(t, err)

	w := serve(env, alice, http.MethodGet, "/me/loans", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out loans.MyBooksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Loans, 1)
	assert.Equal(t, book.ID, out.Loans[0].TitleID)
	require.Len(t, out.Reservations, 1)
	assert.Equal(t, other.ID, out.Reservations[0].TitleID)
	assert.Equal(t, string(reservations.StatusPending), out.Reservations[0].Status)
	assert.Equal(t, 1, out.Reservations[0].QueuePosition)
	assert.Empty(t, out.Returned)
}

func TestHandlerMyBooksShowsRecentReturns(t *testing.T) {
	env := circulationtest.NewEnv(policy.Default())
	ctx := context.Background()
	alice := env.AddStudent("alice")

	var lastTitle int64
	for i := 0; i < loans.RecentReturnedLimit+2; i++ {
		book := env.AddTitle("Volume "+strconv.Itoa(i), 1)
		loan, err := env.Borrow(alice, book.ID)
		require.NoError(t, err)
		env.Clock.Advance(time.Hour)
		_, err = env.Loans.Return(ctx, alice, loan.ULID)
		require.NoError(t, err)
		lastTitle = book.ID
	}
	current := env.AddTitle("Still Reading", 1)
	_, err := env.Borrow(alice, current.ID)
	require.NoError(t, err)

	w := serve(env, alice, http.MethodGet, "/me/loans", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out loans.MyBooksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Loans, 1)
	assert.Equal(t, current.ID, out.Loans[0].TitleID)
	require.Len(t, out.Returned, loans.RecentReturnedLimit)
	// 新しい順
	assert.Equal(t, lastTitle, out.Returned[0].TitleID)
	for _, l := range out.Returned {
		assert.Equal(t, loans.StatusReturned, l.Status)
	}
}
