package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessingTimeout is returned internally when the configured
	// processing timeout fires before the handler completes.
	ErrProcessingTimeout = errors.New("messaging: processing timeout elapsed")

	// ErrSubscriberClosed is returned when subscribing on a closed subscriber
	ErrSubscriberClosed = errors.New("messaging: subscriber is closed")

	// ErrNilHandler is returned when a nil handler is registered
	ErrNilHandler = errors.New("messaging: handler cannot be nil")
)

// TopologyError reports a failed declare or bind operation. Topology errors
// are fatal: they propagate to the caller of Subscribe and no subscription
// is registered.
type TopologyError struct {
	Component string // queue, exchange or binding
	Name      string
	Op        string
	Err       error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("messaging topology error: failed to %s %s '%s': %v", e.Op, e.Component, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}
