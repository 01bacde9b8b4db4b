/*
store.go - Persistence interfaces for the commission engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  HotelStore:      Hotel records (engine reads ID and Status)
  BookingStore:    Bookings, conditional completion, monthly volume counts
  AgreementStore:  Append-only agreement versions
  CommissionStore: Atomic commission upsert keyed by booking

UNIQUENESS CONTRACTS:
  Two invariants are enforced by the storage layer, not by read-then-write
  sequences in the engine:
  - commissions.booking_id is unique; UpsertCommission is a single atomic
    operation, so concurrent recalculations converge to one row
  - at most one open agreement (valid_to IS NULL) per hotel;
    CreateAgreement returns ErrOpenAgreementConflict when violated and the
    resolver retries its lookup

APPEND-ONLY AGREEMENTS:
  Agreement rate fields are never updated. CloseOpenAgreement sets the
  upper validity bound; new terms are always a new row. Historical bookings
  therefore stay recomputable against the rate in force at completion time.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - commission/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Orchestrates these interfaces
  - resolver.go: Uses AgreementStore
*/
package commission

import (
	"context"
	"time"
)

// =============================================================================
// HOTEL STORE
// =============================================================================

type HotelStore interface {
	// GetHotel returns the hotel, or nil if it doesn't exist.
	GetHotel(ctx context.Context, id HotelID) (*Hotel, error)

	// SaveHotel inserts or updates a hotel.
	SaveHotel(ctx context.Context, h Hotel) error

	// ListHotels returns all hotels, including soft-deleted ones.
	ListHotels(ctx context.Context) ([]Hotel, error)

	// DeleteHotel removes a hotel row entirely (hard delete).
	DeleteHotel(ctx context.Context, id HotelID) error
}

// =============================================================================
// BOOKING STORE
// =============================================================================

type BookingStore interface {
	// GetBooking returns the booking, or nil if it doesn't exist.
	GetBooking(ctx context.Context, id BookingID) (*Booking, error)

	// SaveBooking inserts or updates a booking.
	SaveBooking(ctx context.Context, b Booking) error

	// MarkCompleted transitions a PENDING booking to COMPLETED, stamping
	// completedAt. Returns (false, nil) when the booking was not PENDING,
	// so callers can distinguish a genuine transition from an idempotent
	// re-completion without a read-then-write race.
	MarkCompleted(ctx context.Context, id BookingID, at time.Time) (bool, error)

	// ListHotelBookings returns all bookings for a hotel, newest first.
	ListHotelBookings(ctx context.Context, hotelID HotelID) ([]Booking, error)

	// CountCompleted counts COMPLETED bookings for a hotel with completedAt
	// in [from, to], inclusive on both ends.
	CountCompleted(ctx context.Context, hotelID HotelID, from, to time.Time) (int, error)
}

// =============================================================================
// AGREEMENT STORE (append-only)
// =============================================================================

type AgreementStore interface {
	// AgreementAt returns the agreement for the hotel whose validity window
	// covers at (validFrom <= at and validTo nil or >= at), picking the one
	// with the latest validFrom when several match. Returns nil when none.
	AgreementAt(ctx context.Context, hotelID HotelID, at time.Time) (*Agreement, error)

	// OpenAgreement returns the currently open agreement, or nil.
	OpenAgreement(ctx context.Context, hotelID HotelID) (*Agreement, error)

	// CreateAgreement persists a new agreement version with its tiers.
	// Returns ErrOpenAgreementConflict when it would be a second open
	// agreement for the hotel.
	CreateAgreement(ctx context.Context, a Agreement) error

	// CloseOpenAgreement sets validTo=at on the hotel's open agreement, if
	// any. Closing a hotel with no open agreement is a no-op.
	CloseOpenAgreement(ctx context.Context, hotelID HotelID, at time.Time) error

	// ListAgreements returns all agreement versions for a hotel, newest
	// validFrom first.
	ListAgreements(ctx context.Context, hotelID HotelID) ([]Agreement, error)
}

// =============================================================================
// COMMISSION STORE
// =============================================================================

// CommissionRow is a commission joined with the context the aggregator needs.
type CommissionRow struct {
	Commission
	HotelID   HotelID
	HotelName string
}

type CommissionStore interface {
	// UpsertCommission creates the commission for its booking, or atomically
	// replaces amount, appliedRate, breakdown, agreementID, and calculatedAt
	// if one already exists. Keyed by the unique BookingID. Must be a single
	// storage operation, not an existence check plus a conditional write.
	UpsertCommission(ctx context.Context, c Commission) (*Commission, error)

	// GetCommission returns the commission for a booking, or nil.
	GetCommission(ctx context.Context, bookingID BookingID) (*Commission, error)

	// ListCommissions returns commissions with calculatedAt in [from, to],
	// joined with their booking's hotel.
	ListCommissions(ctx context.Context, from, to time.Time) ([]CommissionRow, error)
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is the full persistence surface the engine depends on.
type Store interface {
	HotelStore
	BookingStore
	AgreementStore
	CommissionStore
}
