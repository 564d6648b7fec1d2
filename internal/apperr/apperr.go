package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrAntiCheat   = errors.New("activity rejected")
	ErrNotFound    = errors.New("not found")
	ErrIntegrity   = errors.New("integrity violation")
	ErrRateLimited = errors.New("too many submissions")
)

// ValidationError carries a message the client can act on.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AntiCheatError is returned when a submission breaks a hard ceiling.
type AntiCheatError struct {
	Msg string
}

func (e *AntiCheatError) Error() string { return e.Msg }

func (e *AntiCheatError) Is(target error) bool { return target == ErrAntiCheat }

var ErrDuplicateActivity = &ValidationError{Msg: "activity already logged for this goal on this date"}

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func AntiCheat(format string, args ...any) error {
	return &AntiCheatError{Msg: fmt.Sprintf(format, args...)}
}

// Message returns the client-facing text for validation and anti-cheat errors.
func Message(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Msg
	}
	var ae *AntiCheatError
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return err.Error()
}
