package settings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads settings from the settings table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ListAll returns every row of the settings table.
func (s *PostgresStore) ListAll(ctx context.Context) ([]Setting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT setting_name, setting_value, COALESCE(description, ''), last_updated
		 FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	var all []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Name, &st.Value, &st.Description, &st.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		all = append(all, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}

	return all, nil
}

var _ Store = (*PostgresStore)(nil)
