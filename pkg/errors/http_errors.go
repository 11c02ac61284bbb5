package errors

import (
	stderrors "errors"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	appErr := NewBadRequestError(code, message)
	appErr.Details = details
	return appErr
}

// FromError converts a standard error to an AppError
// If the error is (or wraps) an AppError, that one is returned
// Otherwise, it is wrapped as an internal server error with a generic message
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewInternalServerError("INTERNAL_ERROR", "Internal server error").WithCause(err)
}
