package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrNotConnected is returned when no connection has been established
	ErrNotConnected = errors.New("rabbitmq: not connected")

	// ErrConnectionClosed is returned when the connection has been closed
	ErrConnectionClosed = errors.New("rabbitmq: connection is closed")
)

// ConnectionError represents a connection-level failure
type ConnectionError struct {
	Op  string
	URL string // sanitized
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq connection error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// sanitizeURL strips credentials from a connection URL before it is logged.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}
