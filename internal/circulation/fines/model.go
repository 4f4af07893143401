package fines

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusWaived  Status = "WAIVED"
)

// Fine: PAID / WAIVED は終端状態
type Fine struct {
	ID           int64
	LoanID       int64
	UserID       string
	Amount       decimal.Decimal
	Status       Status
	PaidAmount   decimal.NullDecimal
	PaidAt       sql.NullTime
	WaivedBy     sql.NullString
	WaiverReason string
	WaivedAt     sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Pay settles the fine. Without an amount the full fine is recorded as paid.
// The paid amount is not required to match the fine.
func (f *Fine) Pay(amount *decimal.Decimal, now time.Time) error {
	if f.Status != StatusPending {
		return ErrInvalidFineState
	}
	paid := f.Amount
	if amount != nil {
		if amount.IsNegative() {
			return ErrNegativeAmount
		}
		paid = *amount
	}
	f.PaidAmount = decimal.NewNullDecimal(paid)
	f.PaidAt = sql.NullTime{Time: now, Valid: true}
	f.Status = StatusPaid
	f.UpdatedAt = now
	return nil
}

func (f *Fine) Waive(by, reason string, now time.Time) error {
	if f.Status != StatusPending {
		return ErrInvalidFineState
	}
	f.WaivedBy = sql.NullString{String: by, Valid: by != ""}
	f.WaiverReason = reason
	f.WaivedAt = sql.NullTime{Time: now, Valid: true}
	f.Status = StatusWaived
	f.UpdatedAt = now
	return nil
}
