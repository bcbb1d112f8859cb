package checkers

import (
	"context"
	"fmt"
)

// Pinger is the subset of a database pool used for connectivity checks.
// *pgxpool.Pool satisfies this.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresChecker checks the health of a Postgres connection pool.
type PostgresChecker struct {
	pool Pinger
	name string
}

// NewPostgresChecker creates a new Postgres health checker.
// The name parameter allows customization of the check name (e.g., "sessions-db").
// If name is empty, defaults to "postgres".
func NewPostgresChecker(pool Pinger, name string) *PostgresChecker {
	if name == "" {
		name = "postgres"
	}
	return &PostgresChecker{
		pool: pool,
		name: name,
	}
}

// Name returns the name of this health check.
func (p *PostgresChecker) Name() string {
	return p.name
}

// Check pings the database to verify connectivity.
func (p *PostgresChecker) Check(ctx context.Context) error {
	err := p.pool.Ping(ctx)
	if err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
