package errutil

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrAlreadyClaimed       = errors.New("already claimed")
	ErrNotCompleted         = errors.New("not completed")
	ErrInvalidMilestone     = errors.New("invalid milestone")
	ErrCardPoolEmpty        = errors.New("card pool empty")
	ErrDatastoreUnavailable = errors.New("datastore unavailable")
)

func AlreadyClaimed(msg string) error {
	return Conflict(msg, ErrAlreadyClaimed)
}

func NotCompleted(msg string) error {
	return UnprocessableEntity(msg, ErrNotCompleted)
}

func InvalidMilestone(msg string) error {
	return BadRequest(msg, ErrInvalidMilestone)
}

// Datastore wraps an infrastructure failure so callers can tell it apart from
// domain outcomes. Context cancellation is passed through untouched.
func Datastore(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var be BaseError
	if errors.As(err, &be) {
		return err
	}
	return Unavailable("datastore unavailable", fmt.Errorf("%w: %w", ErrDatastoreUnavailable, err))
}

func IsAlreadyClaimed(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed)
}

func IsNotCompleted(err error) bool {
	return errors.Is(err, ErrNotCompleted)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrDatastoreUnavailable) || StatusOf(err).Retryable()
}
