/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the persistence interfaces (TripStore, RuleSource,
  SnapshotStore) plus the integration-layer records the API needs:
  family members and tracked jurisdictions. In production the same
  patterns apply to PostgreSQL with minor dialect differences.

INTERFACES IMPLEMENTED:
  generic.TripStore:     Trip CRUD
  generic.RuleSource:    Custom rules (the jurisdiction.Registry sits in front)
  generic.SnapshotStore: Summary history

KEY TABLES:
  trips:                 One row per stay, dates as YYYY-MM-DD
  family_members:        Travelers other than the primary
  rules:                 Custom rule definitions as factory JSON
  tracked_jurisdictions: Which rules each traveler watches
  snapshots:             Summary history, one per (owner, jurisdiction, day)

DATES:
  Dates are stored as YYYY-MM-DD text so range filters are plain string
  comparisons and sort correctly.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/staycount.db")
  if err != nil {
      log.Fatal().Err(err).Msg("open store")
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/staycount/factory"
	"github.com/warp/staycount/generic"
)

// ErrMemberNotFound is returned when deleting an unknown family member.
var ErrMemberNotFound = errors.New("member not found")

// Store implements all storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	rules *factory.RuleFactory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, rules: factory.NewRuleFactory()}
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

// Ping checks the connection (used by the health endpoint).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Trips
	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL DEFAULT '',
		jurisdiction TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'manual',
		confidence REAL NOT NULL DEFAULT 1,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_date >= start_date)
	);

	-- Summary hot path: one owner, one jurisdiction, recent window
	CREATE INDEX IF NOT EXISTS idx_trips_owner_jurisdiction_start
		ON trips(owner_id, jurisdiction, start_date);
	CREATE INDEX IF NOT EXISTS idx_trips_end
		ON trips(end_date);

	-- Family members
	CREATE TABLE IF NOT EXISTS family_members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		relationship TEXT,
		created_at TEXT NOT NULL
	);

	-- Custom rules
	CREATE TABLE IF NOT EXISTS rules (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Tracked jurisdictions
	CREATE TABLE IF NOT EXISTS tracked_jurisdictions (
		owner_id TEXT NOT NULL DEFAULT '',
		jurisdiction TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (owner_id, jurisdiction)
	);

	-- Snapshots
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL DEFAULT '',
		jurisdiction TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		status TEXT NOT NULL,
		days_used INTEGER NOT NULL,
		summary_json TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(owner_id, jurisdiction, taken_at)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_owner_jurisdiction
		ON snapshots(owner_id, jurisdiction, taken_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRIP STORE (generic.TripStore interface)
// =============================================================================

// SaveTrip inserts or replaces a trip.
func (s *Store) SaveTrip(ctx context.Context, trip generic.Trip) error {
	if err := generic.ValidateTrip(trip); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO trips (id, owner_id, jurisdiction, country, start_date, end_date,
			source, confidence, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			jurisdiction = excluded.jurisdiction,
			country = excluded.country,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			source = excluded.source,
			confidence = excluded.confidence,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`

	source := trip.Source
	if source == "" {
		source = generic.SourceManual
	}
	confidence := trip.Confidence
	if confidence == 0 {
		confidence = 1
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		trip.ID, trip.Owner, trip.Jurisdiction, trip.Country,
		trip.Start.String(), trip.End.String(),
		source, confidence, nullString(trip.Notes),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save trip %s: %w", trip.ID, err)
	}
	return nil
}

// GetTrip retrieves a trip by ID.
func (s *Store) GetTrip(ctx context.Context, id generic.TripID) (*generic.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE id = ?", id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrTripNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTrip removes a trip.
func (s *Store) DeleteTrip(ctx context.Context, id generic.TripID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM trips WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete trip %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrTripNotFound, id)
	}
	return nil
}

// ListTrips returns trips matching filter ordered by start date.
func (s *Store) ListTrips(ctx context.Context, filter generic.TripFilter) ([]generic.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.Owner != nil {
		where = append(where, "owner_id = ?")
		args = append(args, *filter.Owner)
	}
	if filter.Jurisdiction != nil {
		where = append(where, "jurisdiction = ?")
		args = append(args, *filter.Jurisdiction)
	}
	if filter.From != nil {
		where = append(where, "end_date >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		where = append(where, "start_date <= ?")
		args = append(args, filter.To.String())
	}

	query := "SELECT " + tripColumns + " FROM trips"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []generic.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

const tripColumns = "id, owner_id, jurisdiction, country, start_date, end_date, source, confidence, notes"

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(row scanner) (generic.Trip, error) {
	var t generic.Trip
	var start, end string
	var notes sql.NullString

	if err := row.Scan(&t.ID, &t.Owner, &t.Jurisdiction, &t.Country,
		&start, &end, &t.Source, &t.Confidence, &notes); err != nil {
		return generic.Trip{}, err
	}

	var err error
	if t.Start, err = generic.ParseDate(start); err != nil {
		return generic.Trip{}, fmt.Errorf("trip %s: %w", t.ID, err)
	}
	if t.End, err = generic.ParseDate(end); err != nil {
		return generic.Trip{}, fmt.Errorf("trip %s: %w", t.ID, err)
	}
	t.Notes = notes.String
	return t, nil
}

// =============================================================================
// RULE SOURCE (generic.RuleSource interface)
// =============================================================================

// SaveRule validates and stores a custom rule. Saving an existing code
// bumps its version.
func (s *Store) SaveRule(ctx context.Context, rule generic.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	configJSON, err := s.rules.MarshalRule(rule.WithDefaults())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rules (code, name, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			version = rules.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, rule.Code, rule.Name, configJSON, now, now); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.Code, err)
	}
	return nil
}

// GetRule retrieves a custom rule by code.
func (s *Store) GetRule(ctx context.Context, code generic.JurisdictionCode) (*generic.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM rules WHERE code = ?", code).Scan(&configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrRuleNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return s.rules.ParseRule(configJSON)
}

// ListRules returns all custom rules ordered by code.
func (s *Store) ListRules(ctx context.Context) ([]generic.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM rules ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []generic.Rule
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, err
		}
		rule, err := s.rules.ParseRule(configJSON)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// DeleteRule removes a custom rule. Built-in rules are unaffected.
func (s *Store) DeleteRule(ctx context.Context, code generic.JurisdictionCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE code = ?", code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrRuleNotFound, code)
	}
	return nil
}

// =============================================================================
// FAMILY MEMBERS
// =============================================================================

// Member is a traveler other than the primary.
type Member struct {
	ID           generic.OwnerID
	Name         string
	Relationship string
	CreatedAt    time.Time
}

// SaveMember inserts or updates a family member.
func (s *Store) SaveMember(ctx context.Context, m Member) error {
	if m.ID == generic.PrimaryOwner {
		return fmt.Errorf("member id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO family_members (id, name, relationship, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			relationship = excluded.relationship
	`

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, nullString(m.Relationship),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ListMembers returns all family members ordered by name.
func (s *Store) ListMembers(ctx context.Context) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, relationship, created_at FROM family_members ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var rel sql.NullString
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Name, &rel, &createdAt); err != nil {
			return nil, err
		}
		m.Relationship = rel.String
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// DeleteMember removes a member together with their trips, tracked
// jurisdictions and snapshots.
func (s *Store) DeleteMember(ctx context.Context, id generic.OwnerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM family_members WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	for _, table := range []string{"trips", "tracked_jurisdictions", "snapshots"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE owner_id = ?", id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// TRACKED JURISDICTIONS
// =============================================================================

// Track adds code to owner's tracked jurisdictions. Tracking twice is a no-op.
func (s *Store) Track(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_jurisdictions (owner_id, jurisdiction, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(owner_id, jurisdiction) DO NOTHING`,
		owner, code, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Untrack removes code from owner's tracked jurisdictions.
func (s *Store) Untrack(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM tracked_jurisdictions WHERE owner_id = ? AND jurisdiction = ?", owner, code)
	return err
}

// Tracked returns owner's tracked jurisdiction codes, sorted.
func (s *Store) Tracked(ctx context.Context, owner generic.OwnerID) ([]generic.JurisdictionCode, error) {
	all, err := s.queryTracked(ctx, "WHERE owner_id = ?", owner)
	if err != nil {
		return nil, err
	}
	return all[owner], nil
}

// AllTracked returns every owner's tracked codes (used by the snapshot job).
func (s *Store) AllTracked(ctx context.Context) (map[generic.OwnerID][]generic.JurisdictionCode, error) {
	return s.queryTracked(ctx, "")
}

func (s *Store) queryTracked(ctx context.Context, where string, args ...any) (map[generic.OwnerID][]generic.JurisdictionCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT owner_id, jurisdiction FROM tracked_jurisdictions "+where+" ORDER BY owner_id, jurisdiction", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[generic.OwnerID][]generic.JurisdictionCode)
	for rows.Next() {
		var owner generic.OwnerID
		var code generic.JurisdictionCode
		if err := rows.Scan(&owner, &code); err != nil {
			return nil, err
		}
		out[owner] = append(out[owner], code)
	}
	return out, rows.Err()
}

// =============================================================================
// SNAPSHOT STORE (generic.SnapshotStore interface)
// =============================================================================

// SaveSnapshot stores a snapshot. A second snapshot for the same owner,
// jurisdiction and day replaces the first.
func (s *Store) SaveSnapshot(ctx context.Context, snap generic.Snapshot) error {
	summaryJSON, err := json.Marshal(snap.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot summary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO snapshots (id, owner_id, jurisdiction, taken_at, status, days_used, summary_json, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, jurisdiction, taken_at) DO UPDATE SET
			status = excluded.status,
			days_used = excluded.days_used,
			summary_json = excluded.summary_json,
			reason = excluded.reason,
			created_at = excluded.created_at
	`

	_, err = s.db.ExecContext(ctx, query,
		snap.ID, snap.Owner, snap.Jurisdiction, snap.TakenAt.String(),
		snap.Summary.Status, snap.Summary.DaysUsed, string(summaryJSON), snap.Reason,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns up to limit most recent snapshots, oldest first.
// limit <= 0 returns all.
func (s *Store) ListSnapshots(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode, limit int) ([]generic.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, owner_id, jurisdiction, taken_at, summary_json, reason
		FROM snapshots WHERE owner_id = ? AND jurisdiction = ? ORDER BY taken_at DESC`
	args := []any{owner, code}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []generic.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; callers want chronological order
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}

// LatestSnapshot returns the most recent snapshot, or nil when none exist.
func (s *Store) LatestSnapshot(ctx context.Context, owner generic.OwnerID, code generic.JurisdictionCode) (*generic.Snapshot, error) {
	snaps, err := s.ListSnapshots(ctx, owner, code, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return &snaps[0], nil
}

func scanSnapshot(row scanner) (generic.Snapshot, error) {
	var snap generic.Snapshot
	var takenAt, summaryJSON string
	if err := row.Scan(&snap.ID, &snap.Owner, &snap.Jurisdiction, &takenAt, &summaryJSON, &snap.Reason); err != nil {
		return generic.Snapshot{}, err
	}
	var err error
	if snap.TakenAt, err = generic.ParseDate(takenAt); err != nil {
		return generic.Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(summaryJSON), &snap.Summary); err != nil {
		return generic.Snapshot{}, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return snap, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"trips", "snapshots", "tracked_jurisdictions", "family_members", "rules"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Compile-time interface checks
var (
	_ generic.TripStore     = (*Store)(nil)
	_ generic.RuleSource    = (*Store)(nil)
	_ generic.SnapshotStore = (*Store)(nil)
)
