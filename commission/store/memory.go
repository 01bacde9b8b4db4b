// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements commission.Store with mutex-guarded maps. The same
// uniqueness rules the SQL indexes enforce are checked here under one lock:
// one open agreement per hotel, one commission per booking.
type Memory struct {
	mu          sync.RWMutex
	hotels      map[commission.HotelID]commission.Hotel
	bookings    map[commission.BookingID]commission.Booking
	agreements  map[commission.AgreementID]commission.Agreement
	commissions map[commission.BookingID]commission.Commission
}

func NewMemory() *Memory {
	return &Memory{
		hotels:      make(map[commission.HotelID]commission.Hotel),
		bookings:    make(map[commission.BookingID]commission.Booking),
		agreements:  make(map[commission.AgreementID]commission.Agreement),
		commissions: make(map[commission.BookingID]commission.Commission),
	}
}

// =============================================================================
// HOTELS
// =============================================================================

func (m *Memory) GetHotel(_ context.Context, id commission.HotelID) (*commission.Hotel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hotels[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *Memory) SaveHotel(_ context.Context, h commission.Hotel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotels[h.ID] = h
	return nil
}

func (m *Memory) ListHotels(_ context.Context) ([]commission.Hotel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hotels := make([]commission.Hotel, 0, len(m.hotels))
	for _, h := range m.hotels {
		hotels = append(hotels, h)
	}
	sort.Slice(hotels, func(i, j int) bool { return hotels[i].Name < hotels[j].Name })
	return hotels, nil
}

func (m *Memory) DeleteHotel(_ context.Context, id commission.HotelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.hotels, id)
	for aid, a := range m.agreements {
		if a.HotelID == id {
			delete(m.agreements, aid)
		}
	}
	return nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (m *Memory) GetBooking(_ context.Context, id commission.BookingID) (*commission.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) SaveBooking(_ context.Context, b commission.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
	return nil
}

func (m *Memory) MarkCompleted(_ context.Context, id commission.BookingID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok || b.Status != commission.BookingPending {
		return false, nil
	}
	b.Status = commission.BookingCompleted
	b.CompletedAt = &at
	m.bookings[id] = b
	return true, nil
}

func (m *Memory) ListHotelBookings(_ context.Context, hotelID commission.HotelID) ([]commission.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var bookings []commission.Booking
	for _, b := range m.bookings {
		if b.HotelID == hotelID {
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

func (m *Memory) CountCompleted(_ context.Context, hotelID commission.HotelID, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, b := range m.bookings {
		if b.HotelID != hotelID || b.Status != commission.BookingCompleted || b.CompletedAt == nil {
			continue
		}
		if b.CompletedAt.Before(from) || b.CompletedAt.After(to) {
			continue
		}
		count++
	}
	return count, nil
}

// =============================================================================
// AGREEMENTS (append-only)
// =============================================================================

func (m *Memory) AgreementAt(_ context.Context, hotelID commission.HotelID, at time.Time) (*commission.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *commission.Agreement
	for _, a := range m.agreements {
		a := a
		if a.HotelID != hotelID || !a.ActiveAt(at) {
			continue
		}
		if best == nil || a.ValidFrom.After(best.ValidFrom) {
			best = &a
		}
	}
	return best, nil
}

func (m *Memory) OpenAgreement(_ context.Context, hotelID commission.HotelID) (*commission.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openLocked(hotelID), nil
}

func (m *Memory) openLocked(hotelID commission.HotelID) *commission.Agreement {
	for _, a := range m.agreements {
		a := a
		if a.HotelID == hotelID && a.Open() {
			return &a
		}
	}
	return nil
}

func (m *Memory) CreateAgreement(_ context.Context, a commission.Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.Open() && m.openLocked(a.HotelID) != nil {
		return commission.ErrOpenAgreementConflict
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.agreements[a.ID] = a
	return nil
}

func (m *Memory) CloseOpenAgreement(_ context.Context, hotelID commission.HotelID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, a := range m.agreements {
		if a.HotelID == hotelID && a.Open() {
			closed := at
			a.ValidTo = &closed
			m.agreements[id] = a
		}
	}
	return nil
}

func (m *Memory) ListAgreements(_ context.Context, hotelID commission.HotelID) ([]commission.Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var agreements []commission.Agreement
	for _, a := range m.agreements {
		if a.HotelID == hotelID {
			agreements = append(agreements, a)
		}
	}
	sort.Slice(agreements, func(i, j int) bool { return agreements[i].ValidFrom.After(agreements[j].ValidFrom) })
	return agreements, nil
}

// =============================================================================
// COMMISSIONS
// =============================================================================

// UpsertCommission is atomic under the store lock: the existing row's ID is
// preserved and its computed fields replaced, matching the SQL
// ON CONFLICT(booking_id) DO UPDATE semantics.
func (m *Memory) UpsertCommission(_ context.Context, c commission.Commission) (*commission.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.commissions[c.BookingID]; ok {
		c.ID = existing.ID
	}
	m.commissions[c.BookingID] = c
	return &c, nil
}

func (m *Memory) GetCommission(_ context.Context, bookingID commission.BookingID) (*commission.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commissions[bookingID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListCommissions(_ context.Context, from, to time.Time) ([]commission.CommissionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []commission.CommissionRow
	for _, c := range m.commissions {
		if c.CalculatedAt.Before(from) || c.CalculatedAt.After(to) {
			continue
		}
		row := commission.CommissionRow{Commission: c}
		if b, ok := m.bookings[c.BookingID]; ok {
			row.HotelID = b.HotelID
			if h, ok := m.hotels[b.HotelID]; ok {
				row.HotelName = h.Name
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CalculatedAt.Before(rows[j].CalculatedAt) })
	return rows, nil
}
