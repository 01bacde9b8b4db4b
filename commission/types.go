/*
Package commission provides the commission calculation engine.

PURPOSE:
  This package contains the domain model and algorithms for computing
  intermediary commissions on completed hotel bookings: resolving the
  commercial agreement in force at completion time, evaluating a composable
  set of rate rules (flat, percentage, preferred-partner bonus, volume tier
  bonus), and recording an idempotent, recomputable commission per booking.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hotel/Booking: the entities the engine reads
  - Agreement/Tier: time-bounded commercial terms, append-only versioned
  - Commission: the computed result, one per booking
  - Breakdown: itemized rate/amount contributions summing to the total

DESIGN PRINCIPLES:
  1. Append-only agreements: rates are never edited, only closed and
     re-created, so historical bookings stay recomputable
  2. Precision: decimal.Decimal for all money and rates, never float64
  3. Type safety: distinct ID types prevent mixing hotel/booking/agreement IDs
  4. Idempotence: Commission is keyed one-to-one by BookingID

SEE ALSO:
  - resolver.go: Agreement resolution and default provisioning
  - evaluator.go: Pure rate rule evaluation
  - engine.go: Pipeline orchestration (complete -> resolve -> evaluate -> record)
  - report.go: Monthly aggregation and export
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type HotelID string
type BookingID string
type AgreementID string
type CommissionID string

// =============================================================================
// ENUMERATIONS - Closed sets, evaluator switches exhaustively on these
// =============================================================================

// HotelStatus marks the partnership tier of a hotel.
type HotelStatus string

const (
	HotelStandard  HotelStatus = "STANDARD"
	HotelPreferred HotelStatus = "PREFERRED"
)

// BookingStatus is the booking lifecycle state. PENDING -> COMPLETED, terminal.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingCompleted BookingStatus = "COMPLETED"
)

// AgreementType selects how the base commission is computed.
type AgreementType string

const (
	AgreementPercentage AgreementType = "PERCENTAGE"
	AgreementFlat       AgreementType = "FLAT"
	AgreementTiered     AgreementType = "TIERED"
)

// TierBonusType selects whether a tier bonus is a rate or an absolute amount.
type TierBonusType string

const (
	TierBonusPercentage TierBonusType = "PERCENTAGE"
	TierBonusFlat       TierBonusType = "FLAT"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Hotel is owned by the CRUD layer; the engine reads ID and Status.
type Hotel struct {
	ID        HotelID
	Name      string
	Status    HotelStatus
	Deleted   bool // soft-deletion flag, set by smart delete
	CreatedAt time.Time
}

// Booking carries a given monetary amount; the engine never prices bookings.
// Invariant: CompletedAt is non-nil iff Status == BookingCompleted.
type Booking struct {
	ID          BookingID
	HotelID     HotelID
	Amount      decimal.Decimal
	Status      BookingStatus
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Completed reports whether the booking satisfies the calculation precondition.
func (b *Booking) Completed() bool {
	return b.Status == BookingCompleted && b.CompletedAt != nil
}

// Tier is a volume threshold within a TIERED agreement unlocking a bonus.
// Evaluation picks the tier with the largest MinBookings not exceeding the
// observed monthly count.
type Tier struct {
	MinBookings int
	BonusRate   decimal.Decimal
	BonusType   TierBonusType
}

// Agreement is a time-bounded commercial contract for a hotel.
// Both validity bounds are inclusive; a nil ValidTo means open-ended
// (currently active). At most one open agreement exists per hotel.
type Agreement struct {
	ID             AgreementID
	HotelID        HotelID
	Type           AgreementType
	BaseRate       decimal.Decimal // required iff PERCENTAGE
	FlatFee        decimal.Decimal // required iff FLAT
	PreferredBonus decimal.Decimal // optional, applies regardless of Type
	ValidFrom      time.Time
	ValidTo        *time.Time
	Tiers          []Tier // required non-empty iff TIERED
	CreatedAt      time.Time
}

// Open reports whether the agreement has no upper validity bound.
func (a *Agreement) Open() bool { return a.ValidTo == nil }

// ActiveAt reports whether the agreement was in force at the given instant.
func (a *Agreement) ActiveAt(at time.Time) bool {
	if a.ValidFrom.After(at) {
		return false
	}
	return a.ValidTo == nil || !a.ValidTo.Before(at)
}

// =============================================================================
// COMMISSION - Computed result, one-to-one with its booking
// =============================================================================

// Breakdown maps a contribution name to the rate or flat amount it contributed.
type Breakdown map[string]decimal.Decimal

// Contribution names used as Breakdown keys.
const (
	ContribBaseRate       = "baseRate"
	ContribFlatFee        = "flatFee"
	ContribPreferredBonus = "preferredBonus"
	ContribTierBonus      = "tierBonus"
)

// Commission records the outcome of a calculation. Recalculation replaces the
// record in place (upsert keyed by BookingID); the last calculation wins.
type Commission struct {
	ID           CommissionID
	BookingID    BookingID
	AgreementID  AgreementID
	Amount       decimal.Decimal
	AppliedRate  decimal.Decimal // sum of fractional rates applied, informational
	Breakdown    Breakdown
	CalculatedAt time.Time
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustParseDecimal parses a decimal string, returning zero on failure.
// For trusted inputs (storage round-trips, seeds).
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
