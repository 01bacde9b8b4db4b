/*
agreements.go - Agreement specs and append-only versioning

PURPOSE:
  Turns a client-supplied agreement spec into a validated Agreement and
  implements the close-and-create versioning strategy: rate fields are
  never edited in place, so historical bookings stay recomputable against
  the terms that were in force when they completed.

VALIDATION:
  The spec is a tagged variant. Each type has required fields:
    PERCENTAGE -> baseRate
    FLAT       -> flatFee
    TIERED     -> at least one tier
  All rates and fees must be non-negative; this is the single place that
  guarantees the evaluator's amount >= 0 property.

SEE ALSO:
  - engine.go: CreateAgreement/PatchAgreement entry points
  - evaluator.go: Consumes the validated variant
*/
package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGREEMENT SPEC - Client-facing tagged variant
// =============================================================================

// TierSpec describes one tier of a TIERED agreement.
type TierSpec struct {
	MinBookings int
	BonusRate   decimal.Decimal
	BonusType   TierBonusType // defaults to PERCENTAGE when empty
}

// AgreementSpec describes the terms of a new agreement version. BaseRate and
// FlatFee are pointers so an explicit zero rate is distinguishable from an
// omitted field: a 0% agreement is legal, a PERCENTAGE spec with no rate at
// all is not.
type AgreementSpec struct {
	Type           AgreementType
	BaseRate       *decimal.Decimal
	FlatFee        *decimal.Decimal
	PreferredBonus decimal.Decimal
	Tiers          []TierSpec
}

// RateOf returns a pointer to d, for building AgreementSpec rate fields.
func RateOf(d decimal.Decimal) *decimal.Decimal { return &d }

// Validate checks the per-type required fields and non-negativity.
func (s AgreementSpec) Validate() error {
	switch s.Type {
	case AgreementPercentage:
		if s.BaseRate == nil {
			return &AgreementSpecError{Type: s.Type, Reason: "baseRate is required"}
		}
		if s.BaseRate.IsNegative() {
			return &AgreementSpecError{Type: s.Type, Reason: "baseRate must be non-negative"}
		}
	case AgreementFlat:
		if s.FlatFee == nil {
			return &AgreementSpecError{Type: s.Type, Reason: "flatFee is required"}
		}
		if s.FlatFee.IsNegative() {
			return &AgreementSpecError{Type: s.Type, Reason: "flatFee must be non-negative"}
		}
	case AgreementTiered:
		if len(s.Tiers) == 0 {
			return &AgreementSpecError{Type: s.Type, Reason: "at least one tier is required"}
		}
		for _, t := range s.Tiers {
			if t.MinBookings < 0 {
				return &AgreementSpecError{Type: s.Type, Reason: "tier minBookings must be non-negative"}
			}
			if t.BonusRate.IsNegative() {
				return &AgreementSpecError{Type: s.Type, Reason: "tier bonusRate must be non-negative"}
			}
			if t.BonusType != "" && t.BonusType != TierBonusPercentage && t.BonusType != TierBonusFlat {
				return &AgreementSpecError{Type: s.Type, Reason: "tier bonusType must be PERCENTAGE or FLAT"}
			}
		}
	default:
		return &AgreementSpecError{Type: s.Type, Reason: "type must be PERCENTAGE, FLAT, or TIERED"}
	}

	if s.PreferredBonus.IsNegative() {
		return &AgreementSpecError{Type: s.Type, Reason: "preferredBonus must be non-negative"}
	}
	return nil
}

// materialize builds the Agreement row for a validated spec.
func (s AgreementSpec) materialize(id AgreementID, hotelID HotelID, from time.Time) Agreement {
	tiers := make([]Tier, len(s.Tiers))
	for i, t := range s.Tiers {
		bonusType := t.BonusType
		if bonusType == "" {
			bonusType = TierBonusPercentage
		}
		tiers[i] = Tier{MinBookings: t.MinBookings, BonusRate: t.BonusRate, BonusType: bonusType}
	}
	a := Agreement{
		ID:             id,
		HotelID:        hotelID,
		Type:           s.Type,
		PreferredBonus: s.PreferredBonus,
		ValidFrom:      from,
		ValidTo:        nil,
		Tiers:          tiers,
	}
	if s.BaseRate != nil {
		a.BaseRate = *s.BaseRate
	}
	if s.FlatFee != nil {
		a.FlatFee = *s.FlatFee
	}
	return a
}
