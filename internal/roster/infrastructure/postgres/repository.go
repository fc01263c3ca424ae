// Package postgres loads the fleet roster from the operations database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	roster "solarops/internal/roster/domain"
)

const defaultRosterTable = "fleet_roster"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is a Postgres implementation of the roster.
type Repository struct {
	db    DBTX
	table string
}

// Option configures the repository.
type Option func(*Repository)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(repo *Repository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewRepository constructs a repository.
func NewRepository(db DBTX, opts ...Option) *Repository {
	repo := &Repository{db: db, table: defaultRosterTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// List loads the fleet roster ordered by serial. A row that violates
// roster invariants fails the whole load: a bad roster is a configuration
// problem, not a per-device condition.
func (r *Repository) List(ctx context.Context) ([]roster.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("roster repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT serial, beneficiary, capacity_kw
FROM %s
ORDER BY serial ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []roster.Device
	for rows.Next() {
		var device roster.Device
		if err := rows.Scan(&device.Serial, &device.Beneficiary, &device.CapacityKW); err != nil {
			return nil, err
		}
		if err := device.Validate(); err != nil {
			return nil, err
		}
		result = append(result, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
