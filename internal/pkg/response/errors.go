package response

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Machine readable error codes returned in the error envelope.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidBody   = "INVALID_REQUEST"
	CodeInvalidParams = "INVALID_PARAMS"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeConflict      = "CONFLICT"
	CodeInternal      = "INTERNAL_SERVER_ERROR"
)

// AppError is an error that knows its HTTP status and envelope code.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ErrValidation(details interface{}) *AppError {
	return &AppError{Status: fiber.StatusBadRequest, Code: CodeValidation, Message: "Validation error", Details: details}
}

func ErrInvalidBody(err error) *AppError {
	return &AppError{Status: fiber.StatusBadRequest, Code: CodeInvalidBody, Message: "Invalid request body", Err: err}
}

func ErrInvalidParams(details interface{}) *AppError {
	return &AppError{Status: fiber.StatusBadRequest, Code: CodeInvalidParams, Message: "Invalid query parameters", Details: details}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Status: fiber.StatusBadRequest, Code: CodeInvalidBody, Message: msg}
}

func ErrNotFound(msg string) *AppError {
	if msg == "" {
		msg = "Resource not found"
	}
	return &AppError{Status: fiber.StatusNotFound, Code: CodeNotFound, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	if msg == "" {
		msg = "Unauthorized"
	}
	return &AppError{Status: fiber.StatusUnauthorized, Code: CodeUnauthorized, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	if msg == "" {
		msg = "Forbidden"
	}
	return &AppError{Status: fiber.StatusForbidden, Code: CodeForbidden, Message: msg}
}

func ErrConflict(msg string, err error) *AppError {
	return &AppError{Status: fiber.StatusConflict, Code: CodeConflict, Message: msg, Err: err}
}

func ErrInternal(msg string, err error) *AppError {
	if msg == "" {
		msg = "Internal server error"
	}
	return &AppError{Status: fiber.StatusInternalServerError, Code: CodeInternal, Message: msg, Err: err}
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
