package model

import "errors"

// Sentinel errors shared by every layer. Wrap them with fmt.Errorf("...: %w")
// and classify with errors.Is; the HTTP layer maps each to a status code.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrAlreadyExists       = errors.New("already exists")

	// ErrInvalidTransition is returned when a job is moved out of a state
	// that does not allow it (e.g. completing a job that is still queued).
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrNoJob is returned by Claim when nothing is queued.
	ErrNoJob = errors.New("no queued job")
)
