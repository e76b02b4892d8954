package e

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrPersistence  = errors.New("persistence failure")
	ErrDeadline     = errors.New("deadline exceeded")
	ErrCanceled     = errors.New("context canceled")

	ErrAlreadyValidated   = errors.New("report already validated by this user")
	ErrSelfValidation     = errors.New("reporters cannot validate their own report")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrReportClosed       = errors.New("report is closed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrForbidden          = errors.New("forbidden")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrGeocode            = errors.New("reverse geocoding failed")
)

// InputError reports a request field rejected before anything reaches the store.
type InputError struct {
	Field  string
	Reason string
}

func (ie *InputError) Error() string {
	return fmt.Sprintf("%s: %s", ie.Field, ie.Reason)
}

func (ie *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func Input(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// WrapError translates pgx and context failures into the sentinels above,
// prefixed with op. Sentinels already in the chain pass through untouched.
func WrapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if isSentinel(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrDeadline)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrCanceled)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, ErrConflict)
		case "23503", "23514", "22P02":
			return fmt.Errorf("%s: %w", op, ErrInvalidInput)
		default:
			return fmt.Errorf("%s: pg error %s: %w", op, pgErr.Code, ErrPersistence)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrPersistence)
}

// IsUniqueViolation reports whether err is a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSentinel(err error) bool {
	for _, s := range []error{
		ErrNotFound, ErrConflict, ErrInvalidInput, ErrAlreadyValidated,
		ErrSelfValidation, ErrNotAuthenticated, ErrReportClosed,
		ErrInvalidTransition, ErrForbidden, ErrEmailTaken, ErrInvalidCredentials,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
