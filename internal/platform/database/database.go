// Package database holds the engine's Postgres schema and a helper to
// apply it on a fresh connection.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var Schema string

// ApplySchema runs the schema against db. Statements are idempotent, so
// applying on every startup is safe.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
