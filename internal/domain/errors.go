package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")

	ErrInvalidAction     = errors.New("invalid action parameters")
	ErrInvalidTransition = errors.New("invalid action state transition")
	ErrUnknownAction     = errors.New("unknown action variant")
	ErrLockMisuse        = errors.New("permission lock misuse")
	ErrIterationState    = errors.New("invalid iteration state")
)
