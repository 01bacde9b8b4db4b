package commission_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decP(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func completedBooking(amount string) *commission.Booking {
	at := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	return &commission.Booking{
		ID:          "bk-1",
		HotelID:     "ht-1",
		Amount:      dec(amount),
		Status:      commission.BookingCompleted,
		CompletedAt: &at,
	}
}

func percentageAgreement(baseRate string) *commission.Agreement {
	return &commission.Agreement{
		ID:       "ag-1",
		HotelID:  "ht-1",
		Type:     commission.AgreementPercentage,
		BaseRate: dec(baseRate),
	}
}

// =============================================================================
// BASE RULE TESTS
// =============================================================================

func TestEvaluate_Percentage_StandardHotel(t *testing.T) {
	// GIVEN: PERCENTAGE agreement with baseRate 0.10, booking amount 100
	// WHEN: Evaluating for a STANDARD hotel
	// THEN: amount = 10, appliedRate = 0.10, breakdown has only baseRate

	eval, err := commission.Evaluate(completedBooking("100"), percentageAgreement("0.10"), commission.HotelStandard, 0)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("10")), "expected 10, got %s", eval.Amount)
	assert.True(t, eval.AppliedRate.Equal(dec("0.10")))
	assert.Len(t, eval.Breakdown, 1)
	assert.True(t, eval.Breakdown[commission.ContribBaseRate].Equal(dec("0.10")))
}

func TestEvaluate_Flat_AmountIsFee(t *testing.T) {
	// GIVEN: FLAT agreement with flatFee 25
	// WHEN: Evaluating a 100 booking
	// THEN: amount = 25 regardless of booking amount; flat fees don't
	//       contribute to appliedRate

	agreement := &commission.Agreement{
		ID:      "ag-1",
		HotelID: "ht-1",
		Type:    commission.AgreementFlat,
		FlatFee: dec("25"),
	}

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelStandard, 0)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("25")))
	assert.True(t, eval.AppliedRate.IsZero(), "flat fee must not add to appliedRate")
	assert.True(t, eval.Breakdown[commission.ContribFlatFee].Equal(dec("25")))
}

// =============================================================================
// PREFERRED BONUS TESTS
// =============================================================================

func TestEvaluate_PreferredBonus_StacksOnBase(t *testing.T) {
	// GIVEN: PERCENTAGE 0.10 agreement with preferredBonus 0.20
	// WHEN: Evaluating a 100 booking for a PREFERRED hotel
	// THEN: amount = 30 (10 base + 20 bonus), appliedRate = 0.30

	agreement := percentageAgreement("0.10")
	agreement.PreferredBonus = dec("0.20")

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelPreferred, 0)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("30")), "expected 30, got %s", eval.Amount)
	assert.True(t, eval.AppliedRate.Equal(dec("0.30")))
	assert.True(t, eval.Breakdown[commission.ContribPreferredBonus].Equal(dec("0.20")))
}

func TestEvaluate_PreferredBonus_IgnoredForStandardHotel(t *testing.T) {
	// GIVEN: An agreement carrying a preferred bonus
	// WHEN: The hotel is STANDARD
	// THEN: The bonus does not apply

	agreement := percentageAgreement("0.10")
	agreement.PreferredBonus = dec("0.20")

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelStandard, 0)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("10")))
	_, hasBonus := eval.Breakdown[commission.ContribPreferredBonus]
	assert.False(t, hasBonus)
}

func TestEvaluate_PreferredBonus_AppliesToFlatAgreements(t *testing.T) {
	// GIVEN: FLAT agreement (fee 25) with preferredBonus 0.10
	// WHEN: Evaluating a 100 booking for a PREFERRED hotel
	// THEN: amount = 35; the bonus is independent of agreement type

	agreement := &commission.Agreement{
		ID:             "ag-1",
		HotelID:        "ht-1",
		Type:           commission.AgreementFlat,
		FlatFee:        dec("25"),
		PreferredBonus: dec("0.10"),
	}

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelPreferred, 0)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("35")))
	assert.True(t, eval.AppliedRate.Equal(dec("0.10")), "only the bonus rate counts toward appliedRate")
}

// =============================================================================
// TIER TESTS
// =============================================================================

func tieredAgreement(tiers ...commission.Tier) *commission.Agreement {
	return &commission.Agreement{
		ID:      "ag-1",
		HotelID: "ht-1",
		Type:    commission.AgreementTiered,
		Tiers:   tiers,
	}
}

func TestEvaluate_Tiered_SingleTierMatches(t *testing.T) {
	// GIVEN: TIERED agreement, one tier {minBookings: 1, bonusRate: 0.5}
	// WHEN: Monthly count = 5, booking amount = 100
	// THEN: amount = 50

	agreement := tieredAgreement(commission.Tier{
		MinBookings: 1, BonusRate: dec("0.5"), BonusType: commission.TierBonusPercentage,
	})

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelStandard, 5)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("50")), "expected 50, got %s", eval.Amount)
	assert.True(t, eval.AppliedRate.Equal(dec("0.5")))
	assert.True(t, eval.Breakdown[commission.ContribTierBonus].Equal(dec("0.5")))
}

func TestEvaluate_Tiered_HighestQualifyingTierWins(t *testing.T) {
	// GIVEN: Tiers at 1, 5, and 10 bookings
	// WHEN: Monthly count = 7
	// THEN: The 5-booking tier applies, not 1 or 10

	agreement := tieredAgreement(
		commission.Tier{MinBookings: 1, BonusRate: dec("0.02"), BonusType: commission.TierBonusPercentage},
		commission.Tier{MinBookings: 5, BonusRate: dec("0.05"), BonusType: commission.TierBonusPercentage},
		commission.Tier{MinBookings: 10, BonusRate: dec("0.08"), BonusType: commission.TierBonusPercentage},
	)

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelStandard, 7)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("5")))
	assert.True(t, eval.Breakdown[commission.ContribTierBonus].Equal(dec("0.05")))
}

func TestEvaluate_Tiered_CountBelowAllTiers_NoBonus(t *testing.T) {
	// GIVEN: Lowest tier requires 5 bookings
	// WHEN: Monthly count = 3
	// THEN: No tier bonus, amount = 0 (tiered has no separate base)

	agreement := tieredAgreement(
		commission.Tier{MinBookings: 5, BonusRate: dec("0.05"), BonusType: commission.TierBonusPercentage},
	)

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelStandard, 3)
	require.NoError(t, err)

	assert.True(t, eval.Amount.IsZero())
	_, hasTier := eval.Breakdown[commission.ContribTierBonus]
	assert.False(t, hasTier, "no tier bonus should be recorded when none matched")
}

func TestEvaluate_Tiered_FlatBonus_NotMultiplied(t *testing.T) {
	// GIVEN: Tier with a FLAT bonus of 15
	// WHEN: Booking amount is 100 and the tier matches
	// THEN: amount = 15 exactly; flat bonuses don't touch appliedRate

	agreement := tieredAgreement(
		commission.Tier{MinBookings: 1, BonusRate: dec("15"), BonusType: commission.TierBonusFlat},
	)

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelStandard, 2)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("15")))
	assert.True(t, eval.AppliedRate.IsZero())
	assert.True(t, eval.Breakdown[commission.ContribTierBonus].Equal(dec("15")))
}

func TestApplicableTier_ExactThreshold(t *testing.T) {
	// Thresholds are inclusive: a count of exactly minBookings qualifies.
	tiers := []commission.Tier{
		{MinBookings: 5, BonusRate: dec("0.05")},
		{MinBookings: 10, BonusRate: dec("0.08")},
	}

	tier := commission.ApplicableTier(tiers, 10)
	require.NotNil(t, tier)
	assert.Equal(t, 10, tier.MinBookings)
}

// =============================================================================
// ADDITIVITY
// =============================================================================

func TestEvaluate_Additivity(t *testing.T) {
	// GIVEN: An agreement combining base rate and preferred bonus
	// WHEN: Removing one input and recomputing
	// THEN: The amount changes by exactly that contribution

	full := percentageAgreement("0.10")
	full.PreferredBonus = dec("0.20")

	noBonus := percentageAgreement("0.10")

	withBonus, err := commission.Evaluate(completedBooking("100"), full, commission.HotelPreferred, 0)
	require.NoError(t, err)
	withoutBonus, err := commission.Evaluate(completedBooking("100"), noBonus, commission.HotelPreferred, 0)
	require.NoError(t, err)

	diff := withBonus.Amount.Sub(withoutBonus.Amount)
	assert.True(t, diff.Equal(dec("20")), "removing the bonus should change the amount by exactly 20, got %s", diff)
}

// =============================================================================
// PRECONDITION TESTS
// =============================================================================

func TestEvaluate_PendingBooking_InvalidState(t *testing.T) {
	// GIVEN: A PENDING booking
	// WHEN: Evaluating
	// THEN: Fails with the not-completed error, never a partial result

	booking := &commission.Booking{
		ID:      "bk-1",
		HotelID: "ht-1",
		Amount:  dec("100"),
		Status:  commission.BookingPending,
	}

	_, err := commission.Evaluate(booking, percentageAgreement("0.10"), commission.HotelStandard, 0)
	require.Error(t, err)
	assert.True(t, commission.IsInvalidState(err))

	var notCompleted *commission.NotCompletedError
	assert.ErrorAs(t, err, &notCompleted)
	assert.Equal(t, commission.BookingID("bk-1"), notCompleted.BookingID)
}

func TestEvaluate_CompletedWithoutTimestamp_InvalidState(t *testing.T) {
	// A COMPLETED status with a nil completedAt violates the invariant and
	// must be rejected the same way.
	booking := &commission.Booking{
		ID:      "bk-1",
		HotelID: "ht-1",
		Amount:  dec("100"),
		Status:  commission.BookingCompleted,
	}

	_, err := commission.Evaluate(booking, percentageAgreement("0.10"), commission.HotelStandard, 0)
	require.Error(t, err)
	assert.True(t, commission.IsInvalidState(err))
}

// =============================================================================
// PRECISION
// =============================================================================

func TestEvaluate_ExactDecimalArithmetic(t *testing.T) {
	// GIVEN: Inputs that lose precision in binary floating point
	// WHEN: Evaluating 0.1 + 0.2 as stacked rates on 100
	// THEN: The result is exactly 30, with no drift

	agreement := percentageAgreement("0.1")
	agreement.PreferredBonus = dec("0.2")

	eval, err := commission.Evaluate(completedBooking("100"), agreement, commission.HotelPreferred, 0)
	require.NoError(t, err)

	assert.True(t, eval.Amount.Equal(dec("30")))
	assert.True(t, eval.AppliedRate.Equal(dec("0.3")), "0.1 + 0.2 must be exactly 0.3, got %s", eval.AppliedRate)
}
