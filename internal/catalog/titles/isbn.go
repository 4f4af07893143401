package titles

import (
	"strings"

	"golang.org/x/text/width"

	"LIBRIS-backend/internal/platform/apierr"
)

// NormalizeISBN folds full-width digits, drops hyphens and spaces, and accepts 10 or 13 characters.
// ISBN-10 may end with X.
func NormalizeISBN(raw string) (string, error) {
	s := width.Narrow.String(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	s = strings.ToUpper(s)

	switch len(s) {
	case 10:
		for i, r := range s {
			if r >= '0' && r <= '9' {
				continue
			}
			if r == 'X' && i == 9 {
				continue
			}
			return "", apierr.ErrInvalid("isbn must contain only digits")
		}
	case 13:
		for _, r := range s {
			if r < '0' || r > '9' {
				return "", apierr.ErrInvalid("isbn must contain only digits")
			}
		}
	default:
		return "", apierr.ErrInvalid("isbn must be 10 or 13 digits")
	}
	return s, nil
}
