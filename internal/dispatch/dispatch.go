// Package dispatch delivers encoded scale tokens to the shared signal list.
//
// Delivery is at-least-once: a retried request appends a second token and
// the downstream autoscaler is expected to tolerate duplicates and expired
// tokens. No dispatcher retries on its own.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/semaphore/internal/scale"
)

// Kind is a stable, machine-readable failure category.
type Kind string

const (
	KindTransportUnavailable Kind = "transport_unavailable"
	KindTimeout              Kind = "timeout"
	KindTransportError       Kind = "transport_error"
	KindUnexpected           Kind = "unexpected_error"
)

// Result is the outcome of a successful dispatch. QueueDepth is the list
// length observed right after the push; concurrent pushers may have moved it.
type Result struct {
	Accepted   bool
	QueueDepth int64
}

// Dispatcher pushes one signal onto the signal list.
type Dispatcher interface {
	Dispatch(ctx context.Context, sig scale.Signal) (Result, error)
}

// Error is a categorized dispatch failure.
type Error struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch: %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnexpected if err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnexpected
}

// Message returns a human-readable description of a dispatch failure
// suitable for API responses.
func Message(err error) string {
	var de *Error
	if !errors.As(err, &de) {
		return fmt.Sprintf("Unexpected error while sending the scale-out request: %v", err)
	}
	switch de.Kind {
	case KindTransportUnavailable:
		return "Cannot connect to the signal queue server. Check the network."
	case KindTimeout:
		return "The signal queue operation timed out."
	case KindTransportError:
		return fmt.Sprintf("The signal queue rejected the request: %v", de.Err)
	default:
		return fmt.Sprintf("Unexpected error while sending the scale-out request: %v", de.Err)
	}
}
