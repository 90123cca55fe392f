package api

import (
	"errors"
	"log/slog"
	"net/http"
)

// AppError is an error with the HTTP status and message the client sees.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest       = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized     = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrInvalidToken     = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrForbidden        = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound         = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrMethodNotAllowed = &AppError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	ErrInternalServer   = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg}
}

// HandleError writes err as a JSON error body. Errors that are not an *AppError
// are logged and reported as 500 without their text.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONError(w, appErr.Code, appErr.Message)
		return
	}
	slog.Error("unhandled api error", "error", err)
	JSONError(w, ErrInternalServer.Code, ErrInternalServer.Message)
}
