package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInvalid("bad"), http.StatusBadRequest},
		{New(CodeUnauthenticated, "who"), http.StatusUnauthorized},
		{ErrForbidden("no"), http.StatusForbidden},
		{ErrNotFound("gone"), http.StatusNotFound},
		{New(CodeTitleUnavailable, "x"), http.StatusConflict},
		{New(CodeInvalidReservationState, "x"), http.StatusConflict},
		{New(CodeLoanLimitExceeded, "x"), http.StatusUnprocessableEntity},
		{errors.New("db down"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", New(CodeDuplicateLoan, "x")), http.StatusConflict},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeOutOfStock, "no available copies")
	other := New(CodeOutOfStock, "title 3 has no copies left")

	assert.ErrorIs(t, other, sentinel)
	assert.ErrorIs(t, fmt.Errorf("borrow: %w", other), sentinel)
	assert.NotErrorIs(t, New(CodeOverCapacity, "x"), sentinel)
	assert.True(t, HasCode(other, CodeOutOfStock))
	assert.False(t, HasCode(errors.New("plain"), CodeOutOfStock))
}

func TestFromErrHidesUnexpectedErrors(t *testing.T) {
	body := FromErr(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.Equal(t, CodeInternal, body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)

	body = FromErr(ErrNotFound("loan not found"))
	assert.Equal(t, CodeNotFound, body.Error.Code)
	assert.Equal(t, "loan not found", body.Error.Message)
}
