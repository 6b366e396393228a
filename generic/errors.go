/*
errors.go - Centralized error types for the compliance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Integration packages (api, store, factory) wrap these with context.

ERROR CATEGORIES:
  1. Configuration errors - Invalid Rule definitions, fatal at load time
  2. Trip errors - Malformed trips, rejected by the caller
  3. Lookup errors - Unknown rule or trip

  Search exhaustion in the simulator is NOT an error. It is a nil result.

USAGE:
  if errors.Is(err, generic.ErrConfiguration) {
      log.Fatal().Err(err).Msg("invalid rule set")
  }

  var cfgErr *generic.ConfigurationError
  if errors.As(err, &cfgErr) {
      fmt.Println(cfgErr.Field)
  }
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration is returned when a Rule is invalid (non-positive
	// allowance or window, unknown counting method).
	ErrConfiguration = errors.New("invalid rule configuration")

	// ErrInvalidTrip is returned when a trip ends before it starts or has
	// no dates at all.
	ErrInvalidTrip = errors.New("invalid trip")

	// ErrInvalidTripLength is returned when a planner is asked about a trip
	// shorter than one day or longer than the allowed maximum.
	ErrInvalidTripLength = errors.New("invalid trip length")

	// ErrRuleNotFound is returned when a jurisdiction code has no rule.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrTripNotFound is returned when a referenced trip doesn't exist.
	ErrTripNotFound = errors.New("trip not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError describes an invalid Rule.
type ConfigurationError struct {
	Code   JurisdictionCode
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s %s", e.Code, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// InvalidTripError describes a trip the caller must reject.
type InvalidTripError struct {
	TripID TripID
	Start  TimePoint
	End    TimePoint
	Reason string
}

func (e *InvalidTripError) Error() string {
	if e.TripID == "" {
		return fmt.Sprintf("invalid trip %s..%s: %s", e.Start, e.End, e.Reason)
	}
	return fmt.Sprintf("invalid trip %s (%s..%s): %s", e.TripID, e.Start, e.End, e.Reason)
}

func (e *InvalidTripError) Unwrap() error {
	return ErrInvalidTrip
}

// ValidateTrip checks the invariants the engine assumes. The engine itself
// skips trips failing these checks; callers should reject them up front.
func ValidateTrip(t Trip) error {
	if t.Start.IsZero() || t.End.IsZero() {
		return &InvalidTripError{TripID: t.ID, Start: t.Start, End: t.End, Reason: "start and end dates are required"}
	}
	if t.End.Before(t.Start) {
		return &InvalidTripError{TripID: t.ID, Start: t.Start, End: t.End, Reason: "end date is before start date"}
	}
	return nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTrip) ||
		errors.Is(err, ErrInvalidTripLength) ||
		errors.Is(err, ErrConfiguration)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrTripNotFound)
}
