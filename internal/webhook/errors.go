package webhook

import "errors"

var (
	// ErrQueueFull indicates the dispatcher cannot accept new comments right now.
	ErrQueueFull = errors.New("comment queue is full")
	// ErrQueueClosed indicates the dispatcher has been shut down.
	ErrQueueClosed = errors.New("comment queue is closed")
	// ErrMissingToken is returned when the forwarded request has no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when the bearer token does not verify.
	ErrInvalidToken = errors.New("invalid bearer token")
)
