package loans

import "LIBRIS-backend/internal/platform/apierr"

var (
	ErrLoanLimitExceeded = apierr.New(apierr.CodeLoanLimitExceeded, "borrowing limit reached")
	ErrTitleUnavailable  = apierr.New(apierr.CodeTitleUnavailable, "title is not available")
	ErrDuplicateLoan     = apierr.New(apierr.CodeDuplicateLoan, "title is already on loan to this user")
	ErrInvalidLoanState  = apierr.New(apierr.CodeInvalidLoanState, "loan is not active")
	ErrNotFound          = apierr.ErrNotFound("loan not found")
	ErrBorrowerNotFound  = apierr.ErrNotFound("borrower not found")
)
