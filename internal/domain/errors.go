package domain

import "errors"

var (
	// ErrEmptyInput is returned for a blank symptom or response.
	ErrEmptyInput = errors.New("input must not be empty")
	// ErrInvalidState is returned when an operation does not fit the session phase.
	ErrInvalidState = errors.New("operation not valid for interview state")
	// ErrSessionBusy is returned while another turn for the same session is in flight.
	ErrSessionBusy = errors.New("interview turn already in progress")
	// ErrUpstreamReasoning wraps any failure of the policy or compiler.
	ErrUpstreamReasoning = errors.New("reasoning service failed")
	// ErrSessionNotFound is returned by stores for unknown ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionConflict is returned by stores when a save loses an optimistic race.
	ErrVersionConflict = errors.New("session version conflict")
	// ErrSessionExists is returned by stores when creating a duplicate id.
	ErrSessionExists = errors.New("session already exists")
)
