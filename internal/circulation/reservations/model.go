package reservations

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReady     Status = "READY"
	StatusFulfilled Status = "FULFILLED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Reservation: PENDING → READY → FULFILLED / EXPIRED, PENDING|READY → CANCELLED
type Reservation struct {
	ID      int64
	UserID  string
	TitleID int64
	Status  Status
	// 採番時の値のまま（前が抜けても詰めない）
	QueuePosition int
	ReservedAt    time.Time
	NotifiedAt    sql.NullTime
	ExpiryAt      sql.NullTime
	UpdatedAt     time.Time
}

func (r *Reservation) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusReady
}

// NotifyReady starts the pickup window.
func (r *Reservation) NotifyReady(now time.Time, hold time.Duration) error {
	if r.Status != StatusPending {
		return ErrInvalidReservationState
	}
	r.Status = StatusReady
	r.NotifiedAt = sql.NullTime{Time: now, Valid: true}
	r.ExpiryAt = sql.NullTime{Time: now.Add(hold), Valid: true}
	r.UpdatedAt = now
	return nil
}

func (r *Reservation) Cancel(now time.Time) error {
	if !r.IsActive() {
		return ErrInvalidReservationState
	}
	r.Status = StatusCancelled
	r.UpdatedAt = now
	return nil
}

func (r *Reservation) Fulfill(now time.Time) error {
	if r.Status != StatusReady {
		return ErrInvalidReservationState
	}
	r.Status = StatusFulfilled
	r.UpdatedAt = now
	return nil
}

func (r *Reservation) Expire(now time.Time) error {
	if r.Status != StatusReady {
		return ErrInvalidReservationState
	}
	r.Status = StatusExpired
	r.UpdatedAt = now
	return nil
}

// HoldLapsed reports whether a READY hold has passed its expiry.
func (r *Reservation) HoldLapsed(now time.Time) bool {
	return r.Status == StatusReady && r.ExpiryAt.Valid && !now.Before(r.ExpiryAt.Time)
}
