package fhirtx

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers
// can match with errors.Is.
var (
	// ErrUnknownCodeSystem is returned when a code system is not present in
	// the loaded repository.
	ErrUnknownCodeSystem = errors.New("unknown code system")

	// ErrUnknownValueSet is returned when a value set is not present in the
	// loaded repository.
	ErrUnknownValueSet = errors.New("unknown value set")

	// ErrProhibitedSystem is returned when policy denies access to a code system.
	ErrProhibitedSystem = errors.New("prohibited code system")

	// ErrFilterOperation is returned for filter combinations that cannot be expanded.
	ErrFilterOperation = errors.New("unsupported filter operation")

	// ErrCollision is returned when two resources map to the same output path.
	ErrCollision = errors.New("output path collision")

	// ErrInvalidSystem is returned when a system URL cannot form a composite key.
	ErrInvalidSystem = errors.New("invalid code system url")

	// ErrMalformedURL is returned for empty or unparsable canonical URLs.
	ErrMalformedURL = errors.New("malformed canonical url")
)

// FilterOperationError describes a filter that could not be evaluated.
type FilterOperationError struct {
	System   string
	Property string
	Op       string
	Value    string
	Reason   string
}

func (e *FilterOperationError) Error() string {
	msg := fmt.Sprintf("filter %s %s %s on %s", e.Property, e.Op, e.Value, e.System)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap returns ErrFilterOperation.
func (e *FilterOperationError) Unwrap() error { return ErrFilterOperation }

// CollisionError reports that Path already holds a resource with a
// different canonical URL than the one being written.
type CollisionError struct {
	Path     string
	Existing string
	Incoming string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%s already holds %s, refusing to write %s", e.Path, e.Existing, e.Incoming)
}

// Unwrap returns ErrCollision.
func (e *CollisionError) Unwrap() error { return ErrCollision }

// ProhibitedSystemError names the code system denied by policy.
type ProhibitedSystemError struct {
	System string
}

func (e *ProhibitedSystemError) Error() string {
	return fmt.Sprintf("code system %s is prohibited by policy", e.System)
}

// Unwrap returns ErrProhibitedSystem.
func (e *ProhibitedSystemError) Unwrap() error { return ErrProhibitedSystem }

// NotFoundError wraps ErrUnknownCodeSystem or ErrUnknownValueSet with the
// URL that was looked up.
type NotFoundError struct {
	Kind error
	URL  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.URL)
}

// Unwrap returns the sentinel for the kind of lookup.
func (e *NotFoundError) Unwrap() error { return e.Kind }

// UnknownCodeSystem returns an error for a missing code system.
func UnknownCodeSystem(url string) error {
	return &NotFoundError{Kind: ErrUnknownCodeSystem, URL: url}
}

// UnknownValueSet returns an error for a missing value set.
func UnknownValueSet(url string) error {
	return &NotFoundError{Kind: ErrUnknownValueSet, URL: url}
}
