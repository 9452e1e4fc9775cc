package publisher

import "errors"

var (
	// ErrClosed is returned for operations on a closed publisher.
	ErrClosed = errors.New("publisher closed")

	// ErrSubscriberExists is returned when a subscriber id is already taken.
	ErrSubscriberExists = errors.New("subscriber already exists")

	// ErrSubscriberNotFound is returned for operations on an unknown
	// subscriber id.
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrNilChannel is returned when subscribing with a nil channel.
	ErrNilChannel = errors.New("nil subscriber channel")
)
