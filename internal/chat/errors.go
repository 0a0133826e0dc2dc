package chat

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("not a participant of this conversation")
	ErrPersistence    = errors.New("persistence failure")
	ErrInvalidRequest = errors.New("invalid request")
)
