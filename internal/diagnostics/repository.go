package diagnostics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
)

// Repository stores diagnostic counters.
type Repository interface {
	// LoadCounters returns every stored counter.
	LoadCounters(ctx context.Context) ([]g32.CounterValue, error)

	// SaveCounters upserts values in a single transaction.
	SaveCounters(ctx context.Context, values []g32.CounterValue) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// LoadCounters returns the stored counters. Rows naming a counter this
// build does not know are skipped.
func (r *SQLiteRepository) LoadCounters(ctx context.Context) ([]g32.CounterValue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT serial, counter, value
		 FROM grill_counters
		 ORDER BY serial, counter`)
	if err != nil {
		return nil, fmt.Errorf("querying counters: %w", err)
	}
	defer rows.Close()

	var values []g32.CounterValue
	for rows.Next() {
		var serial, name string
		var value int64
		if err := rows.Scan(&serial, &name, &value); err != nil {
			return nil, fmt.Errorf("scanning counter: %w", err)
		}
		counter, err := g32.ParseCounter(name)
		if err != nil || value < 0 {
			continue
		}
		values = append(values, g32.CounterValue{
			Serial:  serial,
			Counter: counter,
			Value:   uint64(value),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counters: %w", err)
	}

	return values, nil
}

// SaveCounters upserts values. An empty slice is a no-op.
func (r *SQLiteRepository) SaveCounters(ctx context.Context, values []g32.CounterValue) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := r.now().UTC().Format(time.RFC3339)
	for _, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO grill_counters (serial, counter, value, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (serial, counter) DO UPDATE SET
			     value = excluded.value,
			     updated_at = excluded.updated_at`,
			v.Serial, string(v.Counter), clampInt64(v.Value), now,
		)
		if err != nil {
			return fmt.Errorf("saving counter %s/%s: %w", v.Serial, v.Counter, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing counters: %w", err)
	}
	return nil
}

// clampInt64 converts a counter to the signed range SQLite stores.
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v) // #nosec G115 -- bounded above
}
