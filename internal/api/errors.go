package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chatdepot/chatdepot/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewValidationError(err *chat.ValidationError) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    err.Error(),
	}
}

func NewTokenInvalidError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    "invalid or expired token",
	}
}

// errorResponse maps a core error to its API envelope. Token failures
// collapse to one user-facing message regardless of the underlying
// cause.
func errorResponse(err error) *ApiError {
	var vErr *chat.ValidationError
	switch {
	case errors.As(err, &vErr):
		return NewValidationError(vErr)
	case errors.Is(err, chat.ErrRoomNotApproved),
		errors.Is(err, chat.ErrNotFound),
		errors.Is(err, chat.ErrRequestNotFound):
		return NewNotFoundError()
	case errors.Is(err, chat.ErrForbidden):
		return NewForbiddenError()
	case errors.Is(err, chat.ErrTokenInvalid):
		return NewTokenInvalidError()
	default:
		return NewInternalServerError(err)
	}
}
