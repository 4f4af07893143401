package fines

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayRequest struct {
	// 省略時は全額
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type WaiveRequest struct {
	Reason string `json:"reason"`
}

type FineResponse struct {
	ID           int64            `json:"id"`
	LoanID       int64            `json:"loan_id"`
	UserID       string           `json:"user_id"`
	Amount       decimal.Decimal  `json:"amount"`
	Status       Status           `json:"status"`
	PaidAmount   *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidAt       *time.Time       `json:"paid_at,omitempty"`
	WaivedBy     *string          `json:"waived_by,omitempty"`
	WaiverReason string           `json:"waiver_reason,omitempty"`
	WaivedAt     *time.Time       `json:"waived_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Pending decimal.Decimal `json:"pending"`
}

func ToResponse(f *Fine) FineResponse {
	r := FineResponse{
		ID:           f.ID,
		LoanID:       f.LoanID,
		UserID:       f.UserID,
		Amount:       f.Amount,
		Status:       f.Status,
		WaiverReason: f.WaiverReason,
		CreatedAt:    f.CreatedAt,
	}
	if f.PaidAmount.Valid {
		v := f.PaidAmount.Decimal
		r.PaidAmount = &v
	}
	if f.PaidAt.Valid {
		t := f.PaidAt.Time
		r.PaidAt = &t
	}
	if f.WaivedBy.Valid {
		v := f.WaivedBy.String
		r.WaivedBy = &v
	}
	if f.WaivedAt.Valid {
		t := f.WaivedAt.Time
		r.WaivedAt = &t
	}
	return r
}
