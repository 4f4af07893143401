package reservations

import "time"

type ReserveRequest struct {
	// 職員が代理で予約する場合のみ
	UserID *string `json:"user_id,omitempty"`
}

type ReservationResponse struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	TitleID       int64      `json:"title_id"`
	Status        Status     `json:"status"`
	QueuePosition int        `json:"queue_position"`
	ReservedAt    time.Time  `json:"reserved_at"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	ExpiryAt      *time.Time `json:"expiry_at,omitempty"`
}

func ToResponse(r *Reservation) ReservationResponse {
	out := ReservationResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		TitleID:       r.TitleID,
		Status:        r.Status,
		QueuePosition: r.QueuePosition,
		ReservedAt:    r.ReservedAt,
	}
	if r.NotifiedAt.Valid {
		t := r.NotifiedAt.Time
		out.NotifiedAt = &t
	}
	if r.ExpiryAt.Valid {
		t := r.ExpiryAt.Time
		out.ExpiryAt = &t
	}
	return out
}
