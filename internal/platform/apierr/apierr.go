package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ===== Error model =====
// 各パッケージで複製していた APIError をここに集約する

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnprocessable   Code = "UNPROCESSABLE_ENTITY"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL"

	// 貸出・予約まわりの業務エラー
	CodeOutOfStock              Code = "OUT_OF_STOCK"
	CodeOverCapacity            Code = "OVER_CAPACITY"
	CodeLoanLimitExceeded       Code = "LOAN_LIMIT_EXCEEDED"
	CodeTitleUnavailable        Code = "TITLE_UNAVAILABLE"
	CodeDuplicateLoan           Code = "DUPLICATE_LOAN"
	CodeInvalidLoanState        Code = "INVALID_LOAN_STATE"
	CodeFineAlreadyExists       Code = "FINE_ALREADY_EXISTS"
	CodeInvalidFineState        Code = "INVALID_FINE_STATE"
	CodeDuplicateReservation    Code = "DUPLICATE_RESERVATION"
	CodeInvalidReservationState Code = "INVALID_RESERVATION_STATE"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is はコードが同じなら同一エラーとみなす（メッセージは問わない）
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) *APIError { return &APIError{Code: code, Message: msg} }

func ErrInvalid(msg string) *APIError   { return New(CodeInvalidArgument, msg) }
func ErrNotFound(msg string) *APIError  { return New(CodeNotFound, msg) }
func ErrConflict(msg string) *APIError  { return New(CodeConflict, msg) }
func ErrForbidden(msg string) *APIError { return New(CodeForbidden, msg) }
func ErrInternal(msg string) *APIError  { return New(CodeInternal, msg) }

// HasCode reports whether err carries an APIError with the given code.
func HasCode(err error, code Code) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == code
}

func HTTPStatus(err error) int {
	var api *APIError
	if !errors.As(err, &api) {
		return http.StatusInternalServerError
	}
	switch api.Code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict,
		CodeOutOfStock,
		CodeOverCapacity,
		CodeTitleUnavailable,
		CodeDuplicateLoan,
		CodeInvalidLoanState,
		CodeFineAlreadyExists,
		CodeInvalidFineState,
		CodeDuplicateReservation,
		CodeInvalidReservationState:
		return http.StatusConflict
	case CodeUnprocessable, CodeLoanLimitExceeded:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ===== handler helpers =====

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// FromErr は想定外のエラー（DB断など）の中身をクライアントに出さない
func FromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return Body(api.Code, api.Message)
	}
	return Body(CodeInternal, "internal server error")
}

// Respond writes err as the standard error envelope.
func Respond(c *gin.Context, err error) {
	c.JSON(HTTPStatus(err), FromErr(err))
}

// Abort is Respond for middleware.
func Abort(c *gin.Context, status int, code Code, msg string) {
	c.AbortWithStatusJSON(status, Body(code, msg))
}
