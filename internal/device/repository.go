package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository persists the grills last discovered from the cloud.
type Repository interface {
	// List returns all stored grills in discovery order.
	List(ctx context.Context) ([]Grill, error)

	// ReplaceAll stores grills as the complete catalogue, removing grills
	// that are no longer on the account.
	ReplaceAll(ctx context.Context, grills []Grill) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns all grills ordered by their discovery position.
func (r *SQLiteRepository) List(ctx context.Context) ([]Grill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT serial, pop_key, nickname, firmware, gasbuddy
		 FROM grills
		 ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying grills: %w", err)
	}
	defer rows.Close()

	var grills []Grill
	for rows.Next() {
		var g Grill
		var gasbuddy string
		if err := rows.Scan(&g.Serial, &g.PopKey, &g.Nickname, &g.Firmware, &gasbuddy); err != nil {
			return nil, fmt.Errorf("scanning grill: %w", err)
		}
		if gasbuddy != "" {
			if err := json.Unmarshal([]byte(gasbuddy), &g.GasBuddy); err != nil {
				return nil, fmt.Errorf("unmarshalling gasbuddy for %s: %w", g.Serial, err)
			}
		}
		grills = append(grills, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grills: %w", err)
	}

	return grills, nil
}

// ReplaceAll replaces the stored catalogue in a single transaction.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, grills []Grill) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM grills"); err != nil {
		return fmt.Errorf("clearing grills: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, g := range grills {
		gasbuddy, err := json.Marshal(g.GasBuddy)
		if err != nil {
			return fmt.Errorf("marshalling gasbuddy for %s: %w", g.Serial, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO grills (serial, pop_key, nickname, firmware, gasbuddy, position, discovered_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.Serial, g.PopKey, g.Nickname, g.Firmware, string(gasbuddy), i, now,
		)
		if err != nil {
			return fmt.Errorf("inserting grill %s: %w", g.Serial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing grills: %w", err)
	}
	return nil
}
