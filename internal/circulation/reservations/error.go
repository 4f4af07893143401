package reservations

import "LIBRIS-backend/internal/platform/apierr"

var (
	ErrDuplicateReservation    = apierr.New(apierr.CodeDuplicateReservation, "you already have an active reservation for this title")
	ErrInvalidReservationState = apierr.New(apierr.CodeInvalidReservationState, "reservation cannot make this transition")
	ErrNotFound                = apierr.ErrNotFound("reservation not found")
	ErrUserNotFound            = apierr.ErrNotFound("user not found")
	ErrMismatch                = apierr.ErrInvalid("reservation belongs to another user or title")
)
