package database

import (
	"context"
)

// HealthCheck performs a simple database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
