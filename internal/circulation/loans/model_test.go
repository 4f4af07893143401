package loans

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOverdueMath(t *testing.T) {
	due := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	perDay := decimal.RequireFromString("0.50")
	active := &Loan{Status: StatusActive, DueAt: due}

	cases := []struct {
		name    string
		now     time.Time
		overdue bool
		days    int
		fine    string
	}{
		{"before due", due.Add(-time.Hour), false, 0, "0"},
		{"exactly due", due, false, 0, "0"},
		{"partial day", due.Add(23 * time.Hour), true, 0, "0"},
		{"one day", due.Add(24 * time.Hour), true, 1, "0.5"},
		{"three and a half", due.Add(84 * time.Hour), true, 3, "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overdue, IsOverdue(active, tc.now))
			assert.Equal(t, tc.days, DaysOverdue(active, tc.now))
			assert.True(t, decimal.RequireFromString(tc.fine).Equal(FineAmount(active, tc.now, perDay)))
		})
	}
}

func TestReturnedLoanStopsAccruing(t *testing.T) {
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	l := &Loan{
		Status:     StatusReturned,
		DueAt:      due,
		ReturnedAt: sql.NullTime{Time: due.Add(2 * day), Valid: true},
	}
	later := due.Add(30 * day)

	assert.False(t, IsOverdue(l, later))
	assert.Equal(t, 2, DaysOverdue(l, later))
}

func TestToResponse(t *testing.T) {
	now := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	l := &Loan{
		ID:       7,
		ULID:     "01HX",
		UserID:   "alice",
		TitleID:  3,
		DueAt:    now.Add(-4 * day),
		Status:   StatusActive,
		IssuedBy: sql.NullString{String: "librarian", Valid: true},
	}
	res := ToResponse(l, now, decimal.RequireFromString("0.25"))

	assert.True(t, res.IsOverdue)
	assert.Equal(t, 4, res.DaysOverdue)
	assert.True(t, decimal.NewFromInt(1).Equal(res.AccruedFine))
	assert.Nil(t, res.ReturnedAt)
	if assert.NotNil(t, res.IssuedBy) {
		assert.Equal(t, "librarian", *res.IssuedBy)
	}
}
