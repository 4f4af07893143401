package fines_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRIS-backend/internal/circulation/circulationtest"
	"LIBRIS-backend/internal/circulation/fines"
	"LIBRIS-backend/internal/circulation/policy"
	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/auth"
)

const day = 24 * time.Hour

// lateReturn borrows a title and returns it `late` days after the due date.
func lateReturn(t *testing.T, env *circulationtest.Env, p auth.Principal, late int) *fines.Fine {
	t.Helper()
	book := env.AddTitle("Late #"+p.UserID, 1)
	loan, err := env.Borrow(p, book.ID)
	require.NoError(t, err)
	env.Clock.Advance(env.Policy.BorrowPeriod + time.Duration(late)*day)
	res, err := env.Loans.Return(context.Background(), p, loan.ULID)
	require.NoError(t, err)
	require.NotNil(t, res.Fine)
	f, err := env.Fines.Get(context.Background(), p, res.Fine.FineID)
	require.NoError(t, err)
	return f
}

func TestPayFullAmount(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	f := lateReturn(t, env, alice, 4)

	paid, err := env.Fines.Pay(ctx, alice, f.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fines.StatusPaid, paid.Status)
	assert.True(t, paid.PaidAmount.Valid)
	assert.True(t, decimal.RequireFromString("2.00").Equal(paid.PaidAmount.Decimal))
	assert.True(t, paid.PaidAt.Valid)

	_, err = env.Fines.Pay(ctx, alice, f.ID, nil)
	assert.ErrorIs(t, err, fines.ErrInvalidFineState)
	_, err = env.Fines.Waive(ctx, circulationtest.Librarian, f.ID, "too late")
	assert.ErrorIs(t, err, fines.ErrInvalidFineState)
}

func TestPayPartialAmountIsRecorded(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	f := lateReturn(t, env, alice, 6)

	amount := decimal.RequireFromString("1.25")
	paid, err := env.Fines.Pay(ctx, alice, f.ID, &amount)
	require.NoError(t, err)
	assert.Equal(t, fines.StatusPaid, paid.Status)
	assert.True(t, amount.Equal(paid.PaidAmount.Decimal))
	assert.True(t, decimal.RequireFromString("3.00").Equal(paid.Amount))
}

func TestPayRejectsNegativeAndStrangers(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	bob := env.AddStudent("bob")
	f := lateReturn(t, env, alice, 2)

	neg := decimal.RequireFromString("-1")
	_, err := env.Fines.Pay(ctx, alice, f.ID, &neg)
	assert.ErrorIs(t, err, fines.ErrNegativeAmount)

	_, err = env.Fines.Pay(ctx, bob, f.ID, nil)
	assert.True(t, apierr.HasCode(err, apierr.CodeForbidden))

	_, err = env.Fines.Pay(ctx, alice, 424242, nil)
	assert.ErrorIs(t, err, fines.ErrNotFound)

	// 職員は代理で支払いを記録できる
	paid, err := env.Fines.Pay(ctx, circulationtest.Librarian, f.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, fines.StatusPaid, paid.Status)
}

func TestWaive(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	f := lateReturn(t, env, alice, 3)

	_, err := env.Fines.Waive(ctx, alice, f.ID, "please")
	assert.True(t, apierr.HasCode(err, apierr.CodeForbidden))

	w, err := env.Fines.Waive(ctx, circulationtest.Librarian, f.ID, "hospitalised")
	require.NoError(t, err)
	assert.Equal(t, fines.StatusWaived, w.Status)
	assert.Equal(t, "librarian", w.WaivedBy.String)
	assert.Equal(t, "hospitalised", w.WaiverReason)
	assert.False(t, w.PaidAmount.Valid)

	_, err = env.Fines.Pay(ctx, alice, f.ID, nil)
	assert.ErrorIs(t, err, fines.ErrInvalidFineState)
}

func TestCreateByHand(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	book := env.AddTitle("Still Out", 1)
	loan, err := env.Borrow(alice, book.ID)
	require.NoError(t, err)

	_, err = env.Fines.Create(ctx, circulationtest.Librarian, loan.ULID)
	assert.ErrorIs(t, err, fines.ErrNotOverdue)

	env.Clock.Advance(env.Policy.BorrowPeriod + 12*time.Hour)
	_, err = env.Fines.Create(ctx, circulationtest.Librarian, loan.ULID)
	assert.ErrorIs(t, err, fines.ErrNotOverdue, "zero amount fines are never stored")

	env.Clock.Advance(2 * day)
	_, err = env.Fines.Create(ctx, alice, loan.ULID)
	assert.True(t, apierr.HasCode(err, apierr.CodeForbidden))

	f, err := env.Fines.Create(ctx, circulationtest.Admin, loan.ULID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.00").Equal(f.Amount))
	assert.Equal(t, fines.StatusPending, f.Status)

	_, err = env.Fines.Create(ctx, circulationtest.Admin, loan.ULID)
	assert.ErrorIs(t, err, fines.ErrFineAlreadyExists)
	assert.Len(t, env.World.Fines(), 1)
}

func TestBalanceAndList(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	alice := env.AddStudent("alice")
	bob := env.AddStudent("bob")

	first := lateReturn(t, env, alice, 2)
	lateReturn(t, env, alice, 4)
	lateReturn(t, env, bob, 10)

	bal, err := env.Fines.Balance(ctx, alice, "")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.00").Equal(bal), bal.String())

	_, err = env.Fines.Pay(ctx, alice, first.ID, nil)
	require.NoError(t, err)
	bal, err = env.Fines.Balance(ctx, alice, "alice")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.00").Equal(bal))

	_, err = env.Fines.Balance(ctx, alice, "bob")
	assert.True(t, apierr.HasCode(err, apierr.CodeForbidden))
	bal, err = env.Fines.Balance(ctx, circulationtest.Librarian, "bob")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("5.00").Equal(bal))

	mine, err := env.Fines.List(ctx, alice, fines.Filter{}, fines.Page{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending := fines.StatusPending
	all, err := env.Fines.List(ctx, circulationtest.Librarian, fines.Filter{Status: &pending}, fines.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
