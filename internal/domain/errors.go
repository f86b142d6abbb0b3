package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("invalid bet state")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrLockHeld          = errors.New("lock already held")
)
