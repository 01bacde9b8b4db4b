/*
errors.go - Centralized error types for the commission engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these to HTTP status codes.

ERROR CATEGORIES:
  1. NotFound      - booking/hotel/agreement absent when required
  2. InvalidState  - calculation on a non-completed booking, malformed
                     agreement spec
  3. Conflict      - concurrent open-agreement creation race; retried
                     internally by the resolver before surfacing

USAGE:
  if commission.IsNotFound(err) {
      // 404
  }

SEE ALSO:
  - resolver.go: retries ErrOpenAgreementConflict
  - api/handlers.go: status code mapping
*/
package commission

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrHotelNotFound is returned when a referenced hotel doesn't exist.
	ErrHotelNotFound = errors.New("hotel not found")

	// ErrBookingNotFound is returned when a referenced booking doesn't exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAgreementNotFound is returned when no agreement covers a timestamp
	// and default provisioning is not in play.
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrCommissionNotFound is returned when no commission exists for a booking.
	ErrCommissionNotFound = errors.New("commission not found")

	// ErrBookingNotCompleted is returned when calculation is requested for a
	// booking that is not COMPLETED. Hard precondition, not a retry case.
	ErrBookingNotCompleted = errors.New("booking not completed")

	// ErrInvalidAgreementSpec is returned when an agreement spec is missing
	// the fields its type requires.
	ErrInvalidAgreementSpec = errors.New("invalid agreement spec")

	// ErrInvalidBookingStatus is returned when a booking is created with a
	// status outside the PENDING/COMPLETED lifecycle.
	ErrInvalidBookingStatus = errors.New("invalid booking status")

	// ErrOpenAgreementConflict is returned by stores when creating an open
	// agreement would violate the one-open-agreement-per-hotel invariant.
	ErrOpenAgreementConflict = errors.New("open agreement already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotCompletedError reports the calculation precondition violation.
type NotCompletedError struct {
	BookingID BookingID
	Status    BookingStatus
}

func (e *NotCompletedError) Error() string {
	return fmt.Sprintf("booking %s not completed (status: %s)", e.BookingID, e.Status)
}

func (e *NotCompletedError) Unwrap() error { return ErrBookingNotCompleted }

// AgreementSpecError reports which field a spec is missing or has malformed.
type AgreementSpecError struct {
	Type   AgreementType
	Reason string
}

func (e *AgreementSpecError) Error() string {
	return fmt.Sprintf("invalid %s agreement spec: %s", e.Type, e.Reason)
}

func (e *AgreementSpecError) Unwrap() error { return ErrInvalidAgreementSpec }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHotelNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrAgreementNotFound) ||
		errors.Is(err, ErrCommissionNotFound)
}

// IsInvalidState returns true if the error is a rejected-precondition error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrBookingNotCompleted) ||
		errors.Is(err, ErrInvalidAgreementSpec) ||
		errors.Is(err, ErrInvalidBookingStatus)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOpenAgreementConflict)
}
