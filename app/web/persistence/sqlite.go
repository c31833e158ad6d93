package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// TimeLayout is the ISO-8601 layout used for stored timestamps, always UTC with milliseconds
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record represents a single application submitted via the intake form
type Record struct {
	ID           int64
	FullName     string
	Email        string
	Phone        string
	FitnessLevel string
	PrimaryGoal  string
	WhyCoaching  string
	Timestamp    time.Time
}

// Stats holds aggregated counters over all records
type Stats struct {
	Total    int
	Today    int       // records created on the current UTC calendar day
	TopGoal  string    // most frequent primary goal, empty for empty table
	LatestAt time.Time // timestamp of the newest record, zero for empty table
}

// recordRow is the db representation of Record
type recordRow struct {
	ID           int64  `db:"id"`
	FullName     string `db:"full_name"`
	Email        string `db:"email"`
	Phone        string `db:"phone"`
	FitnessLevel string `db:"fitness_level"`
	PrimaryGoal  string `db:"primary_goal"`
	WhyCoaching  string `db:"why_coaching"`
	Timestamp    string `db:"ts"`
}

func (r recordRow) record() (Record, error) {
	ts, err := parseTimestamp(r.ID, r.Timestamp)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:           r.ID,
		FullName:     r.FullName,
		Email:        r.Email,
		Phone:        r.Phone,
		FitnessLevel: r.FitnessLevel,
		PrimaryGoal:  r.PrimaryGoal,
		WhyCoaching:  r.WhyCoaching,
		Timestamp:    ts,
	}, nil
}

func parseTimestamp(id int64, v string) (time.Time, error) {
	ts, err := time.Parse(TimeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q for record %d: %w", v, id, err)
	}
	return ts, nil
}

// SQLiteStore implements persistence using SQLite
type SQLiteStore struct {
	db     *sqlx.DB
	dbPath string
}

// NewSQLiteStore opens the database file, creating it and its directory if missing,
// and initializes the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory for %s: %w", dbPath, err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single connection, requests are applied one at a time
	db.SetMaxOpenConns(1)

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.Initialize(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close db: %v)", err, closeErr)
		}
		return nil, err
	}
	return s, nil
}

// Initialize creates the database schema
func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS applications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			fitness_level TEXT NOT NULL,
			primary_goal TEXT NOT NULL,
			why_coaching TEXT NOT NULL DEFAULT '',
			ts TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return s.Persist()
}

// Persist flushes the WAL into the main database file, leaving the file as a complete image
func (s *SQLiteStore) Persist() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint database: %w", err)
	}
	return nil
}

// Insert adds a new record and returns it with the assigned id.
// Timestamp is stored with millisecond precision in UTC.
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Millisecond)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (full_name, email, phone, fitness_level, primary_goal, why_coaching, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.FullName, rec.Email, rec.Phone, rec.FitnessLevel, rec.PrimaryGoal, rec.WhyCoaching,
		rec.Timestamp.Format(TimeLayout))
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert application: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("failed to get inserted id: %w", err)
	}
	rec.ID = id

	if err := s.Persist(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns a single record by id
func (s *SQLiteStore) Get(ctx context.Context, id int64) (Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, full_name, email, phone, fitness_level, primary_goal, why_coaching, ts
		FROM applications WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get application %d: %w", id, err)
	}
	return row.record()
}

// List returns all records, newest first
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows := []recordRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, full_name, email, phone, fitness_level, primary_goal, why_coaching, ts
		FROM applications ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}

	res := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			log.Printf("[WARN] failed to convert application row: %v", err)
			continue
		}
		res = append(res, rec)
	}
	return res, nil
}

// DeleteByID removes a record, returns ErrNotFound if it doesn't exist
func (s *SQLiteStore) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM applications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete application %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return s.Persist()
}

// DeleteAll removes all records and returns the number of removed rows.
// The id sequence is kept, so ids are never reused.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM applications")
	if err != nil {
		return 0, fmt.Errorf("failed to delete applications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if err := s.Persist(); err != nil {
		return 0, err
	}
	return affected, nil
}

// statsRow is the subset of columns needed for Aggregate
type statsRow struct {
	ID          int64  `db:"id"`
	PrimaryGoal string `db:"primary_goal"`
	Timestamp   string `db:"ts"`
}

// Aggregate computes stats over all records. The "today" counter uses now's UTC date.
// Top goal ties are broken by the goal seen first in newest-first order.
// Rows with invalid timestamp are skipped, the same way List skips them.
func (s *SQLiteStore) Aggregate(ctx context.Context, now time.Time) (Stats, error) {
	rows := []statsRow{}
	if err := s.db.SelectContext(ctx, &rows, "SELECT id, primary_goal, ts FROM applications ORDER BY id DESC"); err != nil {
		return Stats{}, fmt.Errorf("failed to query applications for stats: %w", err)
	}

	var res Stats
	today := now.UTC().Format("2006-01-02")
	counts := map[string]int{}
	goals := []string{} // in first-seen order, newest first
	for _, row := range rows {
		ts, err := parseTimestamp(row.ID, row.Timestamp)
		if err != nil {
			log.Printf("[WARN] skip application in stats: %v", err)
			continue
		}
		if res.Total == 0 {
			res.LatestAt = ts
		}
		res.Total++
		if ts.UTC().Format("2006-01-02") == today {
			res.Today++
		}
		if _, seen := counts[row.PrimaryGoal]; !seen {
			goals = append(goals, row.PrimaryGoal)
		}
		counts[row.PrimaryGoal]++
	}

	best := 0
	for _, g := range goals {
		if counts[g] > best {
			best, res.TopGoal = counts[g], g
		}
	}
	return res, nil
}

// Snapshot writes a consistent copy of the database to path.
// The copy is made into a temp file next to path and renamed over it.
func (s *SQLiteStore) Snapshot(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale temp file %s: %w", tmp, err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename snapshot to %s: %w", path, err)
	}
	return nil
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if err := s.Persist(); err != nil {
		log.Printf("[WARN] failed to flush database on close: %v", err)
	}
	return s.db.Close()
}
