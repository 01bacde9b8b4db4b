/*
evaluator.go - Pure rate rule evaluation

PURPOSE:
  Computes a commission amount and its breakdown from a resolved agreement,
  a booking, and ancillary facts (hotel preferred status, monthly completed
  booking count). No I/O, no clock, no side effects.

COMPUTATION ORDER (fixed):
  1. Base:            PERCENTAGE -> amount * baseRate
                      FLAT       -> flatFee
                      TIERED     -> 0 (the tier bonus supplies the amount)
  2. Preferred bonus: amount * preferredBonus when the hotel is PREFERRED,
                      independent of agreement type, stacks additively
  3. Tier bonus:      TIERED only; highest tier whose minBookings does not
                      exceed the monthly count; PERCENTAGE bonus multiplies
                      the booking amount, FLAT bonus adds directly

  AppliedRate sums only the fractional contributions (base rate, preferred
  bonus rate, percentage tier rate). Flat contributions add to the amount
  but not to the rate.

PRECISION:
  All arithmetic is decimal.Decimal at full precision. Rounding happens
  once, at persistence time (engine.go), never between stages.

SEE ALSO:
  - engine.go: Supplies the inputs and records the result
  - types.go: Breakdown contribution names
*/
package commission

import (
	"github.com/shopspring/decimal"
)

// Evaluation is the outcome of rule evaluation, before persistence.
type Evaluation struct {
	Amount      decimal.Decimal
	AppliedRate decimal.Decimal
	Breakdown   Breakdown
}

// Evaluate applies the agreement's rate rules to a completed booking.
// Returns a NotCompletedError when the booking precondition fails; no
// partial result is ever produced.
func Evaluate(booking *Booking, agreement *Agreement, hotelStatus HotelStatus, monthlyCount int) (Evaluation, error) {
	if !booking.Completed() {
		return Evaluation{}, &NotCompletedError{BookingID: booking.ID, Status: booking.Status}
	}

	amount := decimal.Zero
	appliedRate := decimal.Zero
	breakdown := Breakdown{}

	// 1. Base
	switch agreement.Type {
	case AgreementPercentage:
		amount = booking.Amount.Mul(agreement.BaseRate)
		appliedRate = appliedRate.Add(agreement.BaseRate)
		breakdown[ContribBaseRate] = agreement.BaseRate
	case AgreementFlat:
		amount = agreement.FlatFee
		breakdown[ContribFlatFee] = agreement.FlatFee
	case AgreementTiered:
		// No separate base; the tier bonus supplies the full amount.
	}

	// 2. Preferred bonus, independent of agreement type
	if hotelStatus == HotelPreferred && agreement.PreferredBonus.IsPositive() {
		amount = amount.Add(booking.Amount.Mul(agreement.PreferredBonus))
		appliedRate = appliedRate.Add(agreement.PreferredBonus)
		breakdown[ContribPreferredBonus] = agreement.PreferredBonus
	}

	// 3. Tier bonus
	if agreement.Type == AgreementTiered {
		if tier := ApplicableTier(agreement.Tiers, monthlyCount); tier != nil {
			switch tier.BonusType {
			case TierBonusFlat:
				amount = amount.Add(tier.BonusRate)
			default: // TierBonusPercentage
				amount = amount.Add(booking.Amount.Mul(tier.BonusRate))
				appliedRate = appliedRate.Add(tier.BonusRate)
			}
			breakdown[ContribTierBonus] = tier.BonusRate
		}
	}

	return Evaluation{Amount: amount, AppliedRate: appliedRate, Breakdown: breakdown}, nil
}

// ApplicableTier selects the tier with the largest MinBookings not exceeding
// count. Returns nil when the count is below every threshold.
func ApplicableTier(tiers []Tier, count int) *Tier {
	var best *Tier
	for i := range tiers {
		t := &tiers[i]
		if count < t.MinBookings {
			continue
		}
		if best == nil || t.MinBookings > best.MinBookings {
			best = t
		}
	}
	return best
}
