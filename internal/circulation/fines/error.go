package fines

import "LIBRIS-backend/internal/platform/apierr"

var (
	ErrFineAlreadyExists = apierr.New(apierr.CodeFineAlreadyExists, "a fine already exists for this loan")
	ErrInvalidFineState  = apierr.New(apierr.CodeInvalidFineState, "fine is not pending")
	ErrNotFound          = apierr.ErrNotFound("fine not found")
	ErrNegativeAmount    = apierr.ErrInvalid("amount must not be negative")
	ErrNotOverdue        = apierr.ErrInvalid("loan is not overdue by a full day")
)
