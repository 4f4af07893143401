package titles_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRIS-backend/internal/catalog/titles"
	"LIBRIS-backend/internal/circulation/circulationtest"
	"LIBRIS-backend/internal/circulation/policy"
	"LIBRIS-backend/internal/circulation/reservations"
	"LIBRIS-backend/internal/platform/apierr"
	"LIBRIS-backend/internal/platform/audit"
	"LIBRIS-backend/internal/platform/notify"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	req := titles.CreateTitleRequest{
		ISBN:        "978-4-06-519981-7",
		Title:       "  Kafka on the Shore ",
		Author:      "Haruki Murakami",
		TotalCopies: 3,
		Category:    "Fiction",
	}

	_, err := env.Titles.Create(ctx, circulationtest.Student("s1"), req)
	assert.True(t, apierr.HasCode(err, apierr.CodeForbidden))

	got, err := env.Titles.Create(ctx, circulationtest.Librarian, req)
	require.NoError(t, err)
	assert.NotZero(t, got.ID)
	assert.Equal(t, "9784065199817", got.ISBN)
	assert.Equal(t, "Kafka on the Shore", got.Title)
	assert.Equal(t, "English", got.Language)
	assert.Equal(t, 3, got.Available())
	assert.Equal(t, titles.StatusAvailable, got.Status())
	assert.Equal(t, []audit.Action{audit.ActionCreate}, env.Audit.Actions())

	req.ISBN = "9784065199817"
	_, err = env.Titles.Create(ctx, circulationtest.Admin, req)
	assert.ErrorIs(t, err, titles.ErrDuplicateISBN)

	req.ISBN = "12345"
	_, err = env.Titles.Create(ctx, circulationtest.Admin, req)
	assert.True(t, apierr.HasCode(err, apierr.CodeInvalidArgument))
}

func TestMaintenanceIsSticky(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	u := env.AddStudent("s1")
	book := env.AddTitle("Sticky", 2)

	loan, err := env.Borrow(u, book.ID)
	require.NoError(t, err)
	_, err = env.Titles.SetMaintenance(ctx, circulationtest.Librarian, book.ID, true)
	require.NoError(t, err)

	_, err = env.Loans.Return(ctx, u, loan.ULID)
	require.NoError(t, err)
	got := env.World.Title(book.ID)
	assert.Equal(t, titles.StatusMaintenance, got.Status())
	assert.Equal(t, 2, got.Available())

	back, err := env.Titles.SetMaintenance(ctx, circulationtest.Librarian, book.ID, false)
	require.NoError(t, err)
	assert.Equal(t, titles.StatusAvailable, back.Status())
}

func TestAdjustCopies(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	u := env.AddStudent("s1")
	book := env.AddTitle("Stocked", 2)

	_, err := env.Borrow(u, book.ID)
	require.NoError(t, err)

	_, err = env.Titles.AdjustCopies(ctx, circulationtest.Librarian, book.ID, -2)
	assert.True(t, apierr.HasCode(err, apierr.CodeInvalidArgument), "cannot withdraw a copy that is on loan")
	_, err = env.Titles.AdjustCopies(ctx, circulationtest.Librarian, book.ID, 0)
	assert.True(t, apierr.HasCode(err, apierr.CodeInvalidArgument))
	_, err = env.Titles.AdjustCopies(ctx, u, book.ID, 1)
	assert.True(t, apierr.HasCode(err, apierr.CodeForbidden))

	got, err := env.Titles.AdjustCopies(ctx, circulationtest.Librarian, book.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Total())
	assert.Equal(t, 0, got.Available())
	assert.Equal(t, titles.StatusBorrowed, got.Status())

	got, err = env.Titles.AdjustCopies(ctx, circulationtest.Admin, book.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Total())
	assert.Equal(t, 3, got.Available())
}

func TestAdjustCopiesPromotesWaitingReader(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	book := env.AddTitle("Sold Out", 0)
	r, err := env.Reservations.Reserve(ctx, env.AddStudent("s2"), book.ID, reservations.ReserveRequest{})
	require.NoError(t, err)

	_, err = env.Titles.AdjustCopies(ctx, circulationtest.Librarian, book.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, reservations.StatusReady, env.World.Reservation(r.ID).Status)
}

func TestAdjustCopiesPromotesOneReaderPerCopy(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	book := env.AddTitle("Reprint", 0)

	var held []int64
	for _, u := range []string{"s1", "s2", "s3", "s4"} {
		r, err := env.Reservations.Reserve(ctx, env.AddStudent(u), book.ID, reservations.ReserveRequest{})
		require.NoError(t, err)
		held = append(held, r.ID)
	}

	_, err := env.Titles.AdjustCopies(ctx, circulationtest.Librarian, book.ID, 3)
	require.NoError(t, err)

	for _, id := range held[:3] {
		assert.Equal(t, reservations.StatusReady, env.World.Reservation(id).Status)
	}
	assert.Equal(t, reservations.StatusPending, env.World.Reservation(held[3]).Status)
	assert.Len(t, env.Outbox.OfType(notify.EventReservationReady), 3)
}

func TestSaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	book := env.AddTitle("Unsaved", 1)
	env.World.FailOn("titles.SaveTx", errors.New("lock wait timeout"))

	_, err := env.Titles.SetMaintenance(ctx, circulationtest.Librarian, book.ID, true)
	require.Error(t, err)
	assert.Equal(t, titles.StatusAvailable, env.World.Title(book.ID).Status())
	assert.Empty(t, env.Audit.Actions())
}

func TestListFiltersAndClampsPage(t *testing.T) {
	ctx := context.Background()
	env := circulationtest.NewEnv(policy.Default())
	env.AddTitle("Distributed Systems", 1)
	env.AddTitle("Systems Performance", 0)
	env.AddTitle("Poetry", 2)

	got, err := env.Titles.List(ctx, titles.Filter{Search: "systems"}, titles.Page{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Distributed Systems", got[0].Title)

	got, err = env.Titles.List(ctx, titles.Filter{Search: "systems", AvailableOnly: true}, titles.Page{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = env.Titles.Get(ctx, 0)
	assert.True(t, apierr.HasCode(err, apierr.CodeInvalidArgument))
}
