/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements commission.Store using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  hotels:      Hotel records with the soft-deletion flag
  bookings:    Booking lifecycle rows (status, completed_at)
  agreements:  Append-only agreement versions with validity windows
  tiers:       Volume tiers owned by TIERED agreements
  commissions: One computed commission per booking

INVARIANTS ENFORCED BY INDEXES:
  idx_one_open_agreement: at most one agreement with valid_to IS NULL per
    hotel. A violating insert fails and the resolver retries its lookup,
    which is what makes concurrent default provisioning benign.
  commissions.booking_id UNIQUE: UpsertCommission is a single
    INSERT ... ON CONFLICT(booking_id) DO UPDATE, so concurrent
    recalculations serialize on the database and converge to one row.

APPEND-ONLY AGREEMENTS:
  No UPDATE touches agreement rate fields. The only mutation is
  CloseOpenAgreement setting valid_to; new terms are always a new row.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - commission/store.go: Interface definitions
  - commission/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
	"github.com/warp/commission-engine/commission"
)

// Store implements commission.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Hotels
	CREATE TABLE IF NOT EXISTS hotels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'STANDARD',
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Bookings
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		hotel_id TEXT NOT NULL REFERENCES hotels(id),
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_hotel
		ON bookings(hotel_id);

	-- Composite index for monthly volume counts (hot path for TIERED)
	CREATE INDEX IF NOT EXISTS idx_bookings_hotel_status_completed
		ON bookings(hotel_id, status, completed_at);

	-- Agreements (append-only versions)
	CREATE TABLE IF NOT EXISTS agreements (
		id TEXT PRIMARY KEY,
		hotel_id TEXT NOT NULL REFERENCES hotels(id),
		type TEXT NOT NULL,
		base_rate TEXT,
		flat_fee TEXT,
		preferred_bonus TEXT,
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agreements_hotel_from
		ON agreements(hotel_id, valid_from DESC);

	-- CRITICAL: at most one open agreement per hotel. Concurrent default
	-- provisioning serializes on this index.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_agreement
		ON agreements(hotel_id)
		WHERE valid_to IS NULL;

	-- Tiers (owned by TIERED agreements)
	CREATE TABLE IF NOT EXISTS tiers (
		agreement_id TEXT NOT NULL REFERENCES agreements(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		min_bookings INTEGER NOT NULL,
		bonus_rate TEXT NOT NULL,
		bonus_type TEXT NOT NULL DEFAULT 'PERCENTAGE',
		PRIMARY KEY (agreement_id, position)
	);

	-- Commissions (one per booking)
	CREATE TABLE IF NOT EXISTS commissions (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL UNIQUE REFERENCES bookings(id) ON DELETE CASCADE,
		agreement_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		applied_rate TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		calculated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commissions_calculated_at
		ON commissions(calculated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HOTEL STORE
// =============================================================================

// SaveHotel inserts or updates a hotel.
func (s *Store) SaveHotel(ctx context.Context, h commission.Hotel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO hotels (id, name, status, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			is_deleted = excluded.is_deleted
	`

	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		h.ID, h.Name, h.Status, h.Deleted, formatTime(createdAt),
	)
	return err
}

// GetHotel retrieves a hotel by ID. Returns nil when absent.
func (s *Store) GetHotel(ctx context.Context, id commission.HotelID) (*commission.Hotel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var h commission.Hotel
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, status, is_deleted, created_at FROM hotels WHERE id = ?",
		id,
	).Scan(&h.ID, &h.Name, &h.Status, &h.Deleted, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	h.CreatedAt = parseTime(createdAt)
	return &h, nil
}

// ListHotels returns all hotels ordered by name.
func (s *Store) ListHotels(ctx context.Context) ([]commission.Hotel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, status, is_deleted, created_at FROM hotels ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hotels []commission.Hotel
	for rows.Next() {
		var h commission.Hotel
		var createdAt string
		if err := rows.Scan(&h.ID, &h.Name, &h.Status, &h.Deleted, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		hotels = append(hotels, h)
	}
	return hotels, rows.Err()
}

// DeleteHotel removes a hotel and its agreements.
func (s *Store) DeleteHotel(ctx context.Context, id commission.HotelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM tiers WHERE agreement_id IN (SELECT id FROM agreements WHERE hotel_id = ?)", id,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM agreements WHERE hotel_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM hotels WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// BOOKING STORE
// =============================================================================

// SaveBooking inserts or updates a booking.
func (s *Store) SaveBooking(ctx context.Context, b commission.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO bookings (id, hotel_id, amount, status, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			status = excluded.status,
			completed_at = excluded.completed_at
	`

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.HotelID, b.Amount.String(), b.Status,
		nullTime(b.CompletedAt), formatTime(createdAt),
	)
	return err
}

// GetBooking retrieves a booking by ID. Returns nil when absent.
func (s *Store) GetBooking(ctx context.Context, id commission.BookingID) (*commission.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b commission.Booking
	var amount, createdAt string
	var completedAt sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT id, hotel_id, amount, status, completed_at, created_at FROM bookings WHERE id = ?",
		id,
	).Scan(&b.ID, &b.HotelID, &amount, &b.Status, &completedAt, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b.Amount = commission.MustParseDecimal(amount)
	b.CompletedAt = parseNullTime(completedAt)
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

// MarkCompleted performs the PENDING -> COMPLETED transition as a single
// conditional UPDATE, so concurrent completions cannot double-stamp
// completed_at.
func (s *Store) MarkCompleted(ctx context.Context, id commission.BookingID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = ?, completed_at = ? WHERE id = ? AND status = ?",
		commission.BookingCompleted, formatTime(at), id, commission.BookingPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListHotelBookings returns a hotel's bookings, newest first.
func (s *Store) ListHotelBookings(ctx context.Context, hotelID commission.HotelID) ([]commission.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hotel_id, amount, status, completed_at, created_at
		 FROM bookings WHERE hotel_id = ? ORDER BY created_at DESC`,
		hotelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []commission.Booking
	for rows.Next() {
		var b commission.Booking
		var amount, createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&b.ID, &b.HotelID, &amount, &b.Status, &completedAt, &createdAt); err != nil {
			return nil, err
		}
		b.Amount = commission.MustParseDecimal(amount)
		b.CompletedAt = parseNullTime(completedAt)
		b.CreatedAt = parseTime(createdAt)
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CountCompleted counts completed bookings in [from, to], both inclusive.
func (s *Store) CountCompleted(ctx context.Context, hotelID commission.HotelID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings
		 WHERE hotel_id = ? AND status = ? AND completed_at >= ? AND completed_at <= ?`,
		hotelID, commission.BookingCompleted, formatTime(from), formatTime(to),
	).Scan(&count)
	return count, err
}

// =============================================================================
// AGREEMENT STORE (append-only)
// =============================================================================

const agreementColumns = "id, hotel_id, type, base_rate, flat_fee, preferred_bonus, valid_from, valid_to, created_at"

// CreateAgreement persists an agreement version and its tiers atomically.
func (s *Store) CreateAgreement(ctx context.Context, a commission.Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO agreements (`+agreementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.HotelID, a.Type,
		a.BaseRate.String(), a.FlatFee.String(), a.PreferredBonus.String(),
		formatTime(a.ValidFrom), nullTime(a.ValidTo), formatTime(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return commission.ErrOpenAgreementConflict
		}
		return fmt.Errorf("failed to insert agreement: %w", err)
	}

	for i, t := range a.Tiers {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tiers (agreement_id, position, min_bookings, bonus_rate, bonus_type)
			 VALUES (?, ?, ?, ?, ?)`,
			a.ID, i, t.MinBookings, t.BonusRate.String(), t.BonusType,
		)
		if err != nil {
			return fmt.Errorf("failed to insert tier: %w", err)
		}
	}

	return tx.Commit()
}

// AgreementAt returns the agreement covering the instant, latest valid_from
// winning. Returns nil when none covers it.
func (s *Store) AgreementAt(ctx context.Context, hotelID commission.HotelID, at time.Time) (*commission.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + agreementColumns + ` FROM agreements
		WHERE hotel_id = ? AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY valid_from DESC
		LIMIT 1
	`
	return s.queryAgreement(ctx, query, hotelID, formatTime(at), formatTime(at))
}

// OpenAgreement returns the hotel's currently open agreement, or nil.
func (s *Store) OpenAgreement(ctx context.Context, hotelID commission.HotelID) (*commission.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + agreementColumns + ` FROM agreements WHERE hotel_id = ? AND valid_to IS NULL`
	return s.queryAgreement(ctx, query, hotelID)
}

// CloseOpenAgreement bounds the open agreement's validity at the given time.
func (s *Store) CloseOpenAgreement(ctx context.Context, hotelID commission.HotelID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE agreements SET valid_to = ? WHERE hotel_id = ? AND valid_to IS NULL",
		formatTime(at), hotelID,
	)
	return err
}

// ListAgreements returns all agreement versions for a hotel, newest first.
func (s *Store) ListAgreements(ctx context.Context, hotelID commission.HotelID) ([]commission.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agreementColumns+` FROM agreements WHERE hotel_id = ? ORDER BY valid_from DESC`,
		hotelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agreements []commission.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		agreements = append(agreements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range agreements {
		if err := s.loadTiers(ctx, &agreements[i]); err != nil {
			return nil, err
		}
	}
	return agreements, nil
}

func (s *Store) queryAgreement(ctx context.Context, query string, args ...any) (*commission.Agreement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAgreement(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadTiers(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAgreement(rows *sql.Rows) (commission.Agreement, error) {
	var (
		a         commission.Agreement
		baseRate  sql.NullString
		flatFee   sql.NullString
		preferred sql.NullString
		validFrom string
		validTo   sql.NullString
		createdAt string
	)

	err := rows.Scan(&a.ID, &a.HotelID, &a.Type,
		&baseRate, &flatFee, &preferred, &validFrom, &validTo, &createdAt)
	if err != nil {
		return a, fmt.Errorf("failed to scan agreement: %w", err)
	}

	a.BaseRate = commission.MustParseDecimal(baseRate.String)
	a.FlatFee = commission.MustParseDecimal(flatFee.String)
	a.PreferredBonus = commission.MustParseDecimal(preferred.String)
	a.ValidFrom = parseTime(validFrom)
	a.ValidTo = parseNullTime(validTo)
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func (s *Store) loadTiers(ctx context.Context, a *commission.Agreement) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT min_bookings, bonus_rate, bonus_type FROM tiers WHERE agreement_id = ? ORDER BY position",
		a.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t commission.Tier
		var bonusRate string
		if err := rows.Scan(&t.MinBookings, &bonusRate, &t.BonusType); err != nil {
			return err
		}
		t.BonusRate = commission.MustParseDecimal(bonusRate)
		a.Tiers = append(a.Tiers, t)
	}
	return rows.Err()
}

// =============================================================================
// COMMISSION STORE
// =============================================================================

// UpsertCommission creates or atomically replaces the commission for a
// booking. Single statement keyed by the unique booking_id, so concurrent
// recalculations cannot interleave a lost update.
func (s *Store) UpsertCommission(ctx context.Context, c commission.Commission) (*commission.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	breakdownJSON, err := json.Marshal(breakdownToStrings(c.Breakdown))
	if err != nil {
		return nil, fmt.Errorf("failed to encode breakdown: %w", err)
	}

	query := `
		INSERT INTO commissions (id, booking_id, agreement_id, amount, applied_rate, breakdown_json, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(booking_id) DO UPDATE SET
			agreement_id = excluded.agreement_id,
			amount = excluded.amount,
			applied_rate = excluded.applied_rate,
			breakdown_json = excluded.breakdown_json,
			calculated_at = excluded.calculated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.BookingID, c.AgreementID,
		c.Amount.String(), c.AppliedRate.String(),
		string(breakdownJSON), formatTime(c.CalculatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert commission: %w", err)
	}

	return s.getCommissionLocked(ctx, c.BookingID)
}

// GetCommission returns the commission for a booking, or nil.
func (s *Store) GetCommission(ctx context.Context, bookingID commission.BookingID) (*commission.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCommissionLocked(ctx, bookingID)
}

func (s *Store) getCommissionLocked(ctx context.Context, bookingID commission.BookingID) (*commission.Commission, error) {
	var c commission.Commission
	var amount, appliedRate, breakdownJSON, calculatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, booking_id, agreement_id, amount, applied_rate, breakdown_json, calculated_at
		 FROM commissions WHERE booking_id = ?`,
		bookingID,
	).Scan(&c.ID, &c.BookingID, &c.AgreementID, &amount, &appliedRate, &breakdownJSON, &calculatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Amount = commission.MustParseDecimal(amount)
	c.AppliedRate = commission.MustParseDecimal(appliedRate)
	c.Breakdown = parseBreakdown(breakdownJSON)
	c.CalculatedAt = parseTime(calculatedAt)
	return &c, nil
}

// ListCommissions returns commissions with calculated_at in [from, to],
// joined with booking and hotel for the aggregator.
func (s *Store) ListCommissions(ctx context.Context, from, to time.Time) ([]commission.CommissionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.booking_id, c.agreement_id, c.amount, c.applied_rate, c.breakdown_json, c.calculated_at,
		        b.hotel_id, h.name
		 FROM commissions c
		 JOIN bookings b ON b.id = c.booking_id
		 JOIN hotels h ON h.id = b.hotel_id
		 WHERE c.calculated_at >= ? AND c.calculated_at <= ?
		 ORDER BY c.calculated_at ASC`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []commission.CommissionRow
	for rows.Next() {
		var r commission.CommissionRow
		var amount, appliedRate, breakdownJSON, calculatedAt string
		err := rows.Scan(&r.ID, &r.BookingID, &r.AgreementID,
			&amount, &appliedRate, &breakdownJSON, &calculatedAt,
			&r.HotelID, &r.HotelName)
		if err != nil {
			return nil, err
		}
		r.Amount = commission.MustParseDecimal(amount)
		r.AppliedRate = commission.MustParseDecimal(appliedRate)
		r.Breakdown = parseBreakdown(breakdownJSON)
		r.CalculatedAt = parseTime(calculatedAt)
		result = append(result, r)
	}
	return result, rows.Err()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func breakdownToStrings(b commission.Breakdown) map[string]string {
	out := make(map[string]string, len(b))
	for k, v := range b {
		out[k] = v.String()
	}
	return out
}

func parseBreakdown(raw string) commission.Breakdown {
	var strs map[string]string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return commission.Breakdown{}
	}
	b := make(commission.Breakdown, len(strs))
	for k, v := range strs {
		b[k] = commission.MustParseDecimal(v)
	}
	return b
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
