package rosbridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("rosbridge: not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("rosbridge: client closed")

	// ErrDisconnected is delivered to pending service calls when the
	// connection drops before a response arrives.
	ErrDisconnected = errors.New("rosbridge: connection lost")
)

// ServiceError is a failed service_response.
type ServiceError struct {
	Service string
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rosbridge: service %s failed", e.Service)
	}
	return fmt.Sprintf("rosbridge: service %s failed: %s", e.Service, e.Message)
}
