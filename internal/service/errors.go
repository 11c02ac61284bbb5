package service

import (
	"context"
	"errors"
	"time"

	apperrors "companion-chat/backend/pkg/errors"
)

// Domain errors. Handlers map them onto HTTP statuses.
var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrInvalidCharacter  = errors.New("invalid character")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrInvalidTurn       = errors.New("invalid turn")
	ErrInvalidSession    = errors.New("invalid session")
)

// ToAppError maps a domain error onto the HTTP error envelope. Anything it
// does not recognise becomes a 500 whose cause is logged but never sent.
func ToAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrCharacterNotFound):
		return apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", "Character not found")
	case errors.Is(err, ErrInvalidCharacter),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrInvalidTurn),
		errors.Is(err, ErrInvalidSession):
		return apperrors.NewBadRequestError("VALIDATION_ERROR", err.Error())
	default:
		return apperrors.NewInternalServerError("INTERNAL_ERROR", "Internal server error").WithCause(err)
	}
}

// Store is the shared key/value cache. shared/redis.RedisClient implements it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// CompareAndDelete removes key only while it still holds value
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
