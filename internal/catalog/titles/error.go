package titles

import "LIBRIS-backend/internal/platform/apierr"

var (
	ErrOutOfStock    = apierr.New(apierr.CodeOutOfStock, "no available copies")
	ErrOverCapacity  = apierr.New(apierr.CodeOverCapacity, "all copies are already on the shelf")
	ErrNotFound      = apierr.ErrNotFound("title not found")
	ErrDuplicateISBN = apierr.ErrConflict("isbn already registered")
)
