package service

import "errors"

// Common service errors
var (
	// ErrNotFound is returned when a chart session does not exist or has expired
	ErrNotFound = errors.New("chart not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooManySessions is returned when the session store is full
	ErrTooManySessions = errors.New("too many active charts, try again later")

	// ErrSearchUnavailable is returned when no backend is configured for a search domain
	ErrSearchUnavailable = errors.New("search backend not configured")
)
