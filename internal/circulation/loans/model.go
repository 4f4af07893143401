package loans

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReturned Status = "RETURNED"
	StatusOverdue  Status = "OVERDUE"
	StatusLost     Status = "LOST"
)

const day = 24 * time.Hour

type Loan struct {
	ID         int64
	ULID       string
	UserID     string
	TitleID    int64
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt sql.NullTime
	Status     Status
	// 処理した職員
	IssuedBy   sql.NullString
	ReturnedTo sql.NullString
	Note       sql.NullString
}

// IsOverdue: 延滞は保存せず都度導出する
func IsOverdue(l *Loan, now time.Time) bool {
	return l.Status != StatusReturned && now.After(l.DueAt)
}

// DaysOverdue counts whole days past due. A returned loan is measured at its return time,
// so the figure does not keep growing afterwards.
func DaysOverdue(l *Loan, now time.Time) int {
	t := now
	if l.Status == StatusReturned && l.ReturnedAt.Valid {
		t = l.ReturnedAt.Time
	}
	if !t.After(l.DueAt) {
		return 0
	}
	return int(t.Sub(l.DueAt) / day)
}

func FineAmount(l *Loan, now time.Time, perDay decimal.Decimal) decimal.Decimal {
	return perDay.Mul(decimal.NewFromInt(int64(DaysOverdue(l, now))))
}
