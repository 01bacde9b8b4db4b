/*
engine.go - Commission pipeline orchestration

PURPOSE:
  Wires the pipeline together: booking completion -> agreement resolution
  (may provision a default) -> monthly volume count (TIERED only) -> pure
  rule evaluation -> idempotent commission upsert. Also carries the
  agreement versioning operations and the hotel smart delete the API
  exposes.

CONSISTENCY:
  Completion commits before calculation runs. A calculation failure is
  surfaced to the caller while the completion stands; the state is
  repairable by calling Calculate again later, which is why the recorder's
  upsert is load-bearing. Re-completing an already COMPLETED booking is an
  idempotent no-op and does NOT re-trigger calculation, preserving the
  original completedAt.

ROUNDING:
  The evaluator works at full precision; the engine rounds the final
  amount to 2 places exactly once, when handing it to the recorder.

SEE ALSO:
  - resolver.go, evaluator.go: The stages
  - report.go: Independent monthly aggregation
*/
package commission

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// amountScale is the number of decimal places persisted for money amounts.
const amountScale = 2

// Engine orchestrates commission calculation over a Store.
type Engine struct {
	Store    Store
	Resolver *Resolver

	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time

	// Logf receives warning-level events. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

func NewEngine(store Store) *Engine {
	e := &Engine{
		Store: store,
		Now:   time.Now,
		Logf:  log.Printf,
	}
	e.Resolver = &Resolver{Agreements: store, Logf: e.Logf}
	return e
}

// =============================================================================
// BOOKINGS
// =============================================================================

// CreateBooking records a booking for a hotel. Status defaults to PENDING
// and must otherwise be PENDING or COMPLETED; a completedAt may be supplied
// when seeding already-completed bookings.
func (e *Engine) CreateBooking(ctx context.Context, hotelID HotelID, amount decimal.Decimal, status BookingStatus, completedAt *time.Time) (*Booking, error) {
	hotel, err := e.Store.GetHotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	if hotel == nil {
		return nil, ErrHotelNotFound
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("booking amount must be non-negative, got %s", amount)
	}

	switch status {
	case "":
		status = BookingPending
	case BookingPending, BookingCompleted:
	default:
		return nil, fmt.Errorf("booking status must be %s or %s, got %q: %w",
			BookingPending, BookingCompleted, status, ErrInvalidBookingStatus)
	}
	if status == BookingCompleted && completedAt == nil {
		now := e.now()
		completedAt = &now
	}
	if status == BookingPending {
		completedAt = nil
	}

	b := Booking{
		ID:          BookingID(uuid.NewString()),
		HotelID:     hotelID,
		Amount:      amount,
		Status:      status,
		CompletedAt: completedAt,
		CreatedAt:   e.now(),
	}
	if err := e.Store.SaveBooking(ctx, b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBooking returns a booking or ErrBookingNotFound.
func (e *Engine) GetBooking(ctx context.Context, id BookingID) (*Booking, error) {
	b, err := e.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// CompleteBooking transitions PENDING -> COMPLETED and synchronously runs
// commission calculation for a genuine transition. Already-completed
// bookings are returned unchanged with a nil commission; completion is
// idempotent, not an error. When calculation fails the completed booking is
// returned together with the error so the caller can see both outcomes.
func (e *Engine) CompleteBooking(ctx context.Context, id BookingID) (*Booking, *Commission, error) {
	booking, err := e.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, ErrBookingNotFound
	}

	if booking.Status == BookingCompleted {
		return booking, nil, nil
	}

	transitioned, err := e.Store.MarkCompleted(ctx, id, e.now())
	if err != nil {
		return nil, nil, err
	}
	if !transitioned {
		// Lost a race with a concurrent completion; treat as the no-op case.
		booking, err = e.Store.GetBooking(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return booking, nil, nil
	}

	booking, err = e.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	comm, err := e.Calculate(ctx, id)
	if err != nil {
		// Completion already committed; surface the calculation error
		// alongside the booking. Repairable via a later Calculate call.
		return booking, nil, fmt.Errorf("booking completed but commission calculation failed: %w", err)
	}
	return booking, comm, nil
}

// =============================================================================
// CALCULATION
// =============================================================================

// Calculate computes and records the commission for a completed booking.
// Safe to call any number of times; the result converges to a single
// commission row keyed by the booking.
func (e *Engine) Calculate(ctx context.Context, bookingID BookingID) (*Commission, error) {
	booking, err := e.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if !booking.Completed() {
		return nil, &NotCompletedError{BookingID: booking.ID, Status: booking.Status}
	}

	hotel, err := e.Store.GetHotel(ctx, booking.HotelID)
	if err != nil {
		return nil, err
	}
	if hotel == nil {
		return nil, ErrHotelNotFound
	}

	agreement, err := e.Resolver.Resolve(ctx, booking.HotelID, *booking.CompletedAt)
	if err != nil {
		return nil, err
	}

	// The monthly count feeds tier selection only; the count includes this
	// booking because it is already COMPLETED. Best-effort under concurrent
	// completions in the same month, by design.
	monthlyCount := 0
	if agreement.Type == AgreementTiered {
		month := MonthOf(*booking.CompletedAt)
		monthlyCount, err = e.Store.CountCompleted(ctx, booking.HotelID, month.Start(), month.End())
		if err != nil {
			return nil, fmt.Errorf("failed to count monthly bookings: %w", err)
		}
	}

	eval, err := Evaluate(booking, agreement, hotel.Status, monthlyCount)
	if err != nil {
		return nil, err
	}

	return e.Store.UpsertCommission(ctx, Commission{
		ID:           CommissionID(uuid.NewString()),
		BookingID:    booking.ID,
		AgreementID:  agreement.ID,
		Amount:       eval.Amount.Round(amountScale),
		AppliedRate:  eval.AppliedRate,
		Breakdown:    eval.Breakdown,
		CalculatedAt: e.now(),
	})
}

// =============================================================================
// AGREEMENTS (append-only versioning)
// =============================================================================

// CreateAgreement validates the spec, closes the hotel's open agreement,
// and creates the new version effective now.
func (e *Engine) CreateAgreement(ctx context.Context, hotelID HotelID, spec AgreementSpec) (*Agreement, error) {
	hotel, err := e.Store.GetHotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	if hotel == nil {
		return nil, ErrHotelNotFound
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	if err := e.Store.CloseOpenAgreement(ctx, hotelID, now); err != nil {
		return nil, fmt.Errorf("failed to close open agreement: %w", err)
	}

	a := spec.materialize(AgreementID(uuid.NewString()), hotelID, now)
	a.CreatedAt = now
	if err := e.Store.CreateAgreement(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAgreement returns the hotel's currently open agreement.
func (e *Engine) GetAgreement(ctx context.Context, hotelID HotelID) (*Agreement, error) {
	hotel, err := e.Store.GetHotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	if hotel == nil {
		return nil, ErrHotelNotFound
	}
	a, err := e.Store.OpenAgreement(ctx, hotelID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAgreementNotFound
	}
	return a, nil
}

// PatchAgreement replaces the hotel's terms going forward. Same
// close-and-create semantics as CreateAgreement; agreements are never
// mutated in place.
func (e *Engine) PatchAgreement(ctx context.Context, hotelID HotelID, spec AgreementSpec) (*Agreement, error) {
	return e.CreateAgreement(ctx, hotelID, spec)
}

// =============================================================================
// HOTELS
// =============================================================================

// HotelDeletion reports how DeleteHotel disposed of a hotel.
type HotelDeletion struct {
	HotelID     HotelID
	SoftDeleted bool
	Message     string
}

// DeleteHotel closes any open agreement, then soft-deletes the hotel when it
// still has bookings or had an open agreement, otherwise removes it entirely.
func (e *Engine) DeleteHotel(ctx context.Context, id HotelID) (*HotelDeletion, error) {
	hotel, err := e.Store.GetHotel(ctx, id)
	if err != nil {
		return nil, err
	}
	if hotel == nil {
		return nil, ErrHotelNotFound
	}

	open, err := e.Store.OpenAgreement(ctx, id)
	if err != nil {
		return nil, err
	}
	bookings, err := e.Store.ListHotelBookings(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := e.Store.CloseOpenAgreement(ctx, id, e.now()); err != nil {
		return nil, err
	}

	if len(bookings) > 0 || open != nil {
		hotel.Deleted = true
		if err := e.Store.SaveHotel(ctx, *hotel); err != nil {
			return nil, err
		}
		return &HotelDeletion{
			HotelID:     id,
			SoftDeleted: true,
			Message:     "hotel has bookings or an active agreement; agreements closed, hotel soft-deleted",
		}, nil
	}

	if err := e.Store.DeleteHotel(ctx, id); err != nil {
		return nil, err
	}
	return &HotelDeletion{
		HotelID: id,
		Message: "hotel had no bookings or active agreements; fully deleted",
	}, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
