package api

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("channel not connected")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("connection closed")

	ErrUnknownQueue = errors.New("unknown queue")
)
