package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

// 貸出登録リクエスト
type BorrowRequest struct {
	TitleID int64 `json:"title_id" binding:"required"`
	// 職員が代理で貸し出す場合のみ
	UserID *string `json:"user_id,omitempty"`
	// READY の予約を引き当てる場合
	ReservationID *int64  `json:"reservation_id,omitempty"`
	Note          *string `json:"note,omitempty"`
}

type ReturnResult struct {
	Loan        *Loan
	DaysOverdue int
	Fine        *Assessment
}

// 貸出レスポンス
type LoanResponse struct {
	ID          int64           `json:"id"`
	ULID        string          `json:"ulid"`
	UserID      string          `json:"user_id"`
	TitleID     int64           `json:"title_id"`
	BorrowedAt  time.Time       `json:"borrowed_at"`
	DueAt       time.Time       `json:"due_at"`
	ReturnedAt  *time.Time      `json:"returned_at,omitempty"`
	Status      Status          `json:"status"`
	IssuedBy    *string         `json:"issued_by,omitempty"`
	ReturnedTo  *string         `json:"returned_to,omitempty"`
	Note        *string         `json:"note,omitempty"`
	IsOverdue   bool            `json:"is_overdue"`
	DaysOverdue int             `json:"days_overdue"`
	AccruedFine decimal.Decimal `json:"accrued_fine"`
}

type ReturnResponse struct {
	Loan        LoanResponse     `json:"loan"`
	DaysOverdue int              `json:"days_overdue"`
	FineID      *int64           `json:"fine_id,omitempty"`
	FineAmount  *decimal.Decimal `json:"fine_amount,omitempty"`
}

// ReservationSummary is the reservation view shown next to a user's loans.
type ReservationSummary struct {
	ID            int64      `json:"id"`
	TitleID       int64      `json:"title_id"`
	Status        string     `json:"status"`
	QueuePosition int        `json:"queue_position"`
	ReservedAt    time.Time  `json:"reserved_at"`
	ExpiryAt      *time.Time `json:"expiry_at,omitempty"`
}

type MyBooksResponse struct {
	Loans []LoanResponse `json:"loans"`
	// 直近の返却済み（最大 RecentReturnedLimit 件）
	Returned     []LoanResponse       `json:"returned"`
	Reservations []ReservationSummary `json:"reservations"`
}

const RecentReturnedLimit = 10

func ToResponse(l *Loan, now time.Time, perDay decimal.Decimal) LoanResponse {
	r := LoanResponse{
		ID:          l.ID,
		ULID:        l.ULID,
		UserID:      l.UserID,
		TitleID:     l.TitleID,
		BorrowedAt:  l.BorrowedAt,
		DueAt:       l.DueAt,
		Status:      l.Status,
		IsOverdue:   IsOverdue(l, now),
		DaysOverdue: DaysOverdue(l, now),
		AccruedFine: FineAmount(l, now, perDay),
	}
	if l.ReturnedAt.Valid {
		t := l.ReturnedAt.Time
		r.ReturnedAt = &t
	}
	if l.IssuedBy.Valid {
		v := l.IssuedBy.String
		r.IssuedBy = &v
	}
	if l.ReturnedTo.Valid {
		v := l.ReturnedTo.String
		r.ReturnedTo = &v
	}
	if l.Note.Valid {
		v := l.Note.String
		r.Note = &v
	}
	return r
}
