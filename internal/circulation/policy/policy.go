// Package policy holds the circulation rules shared by loans, fines and reservations.
package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

const (
	DefaultBorrowPeriodDays    = 14
	DefaultFinePerDay          = "0.50"
	DefaultMaxBooksPerUser     = 5
	DefaultReservationHoldDays = 3
)

type Policy struct {
	BorrowPeriod    time.Duration
	FinePerDay      decimal.Decimal
	MaxBooksPerUser int
	ReservationHold time.Duration
}

func Default() Policy {
	return Policy{
		BorrowPeriod:    DefaultBorrowPeriodDays * day,
		FinePerDay:      decimal.RequireFromString(DefaultFinePerDay),
		MaxBooksPerUser: DefaultMaxBooksPerUser,
		ReservationHold: DefaultReservationHoldDays * day,
	}
}

// Days converts a day count from configuration into a duration.
func Days(n int) time.Duration { return time.Duration(n) * day }
