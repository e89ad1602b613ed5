package j1939

import "errors"

var (
	// ErrInvalidParameter indicates required input was missing or out of range
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNotConnected indicates operation requires an active connection
	ErrNotConnected = errors.New("client is not connected")
	// ErrAlreadyConnected indicates Connect was called on connected client
	ErrAlreadyConnected = errors.New("client is already connected")
	// ErrTransport wraps errors reported by the transport
	ErrTransport = errors.New("transport failure")
	// ErrOutOfCapacity indicates subscription table is full
	ErrOutOfCapacity = errors.New("subscription table is full")
	// ErrTimeout indicates operation timed out
	ErrTimeout = errors.New("operation timed out")
	// ErrUnsupported indicates operation is not supported by the transport
	ErrUnsupported = errors.New("operation is not supported")
)
