package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// the service owns its schema, no separate migration tooling for now;
// order_items rows die together with their parent order
var setupStatements = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id            SERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            SERIAL PRIMARY KEY,
		customer_name TEXT NOT NULL,
		table_no      TEXT NOT NULL DEFAULT '',
		note          TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'pending',
		total         BIGINT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id       SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		name     TEXT NOT NULL,
		price    BIGINT NOT NULL DEFAULT 0,
		qty      INTEGER NOT NULL DEFAULT 1,
		image    TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS order_items_order_id_idx ON order_items (order_id);`,
}

// Setup creates the service tables if not present
func Setup(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range setupStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db setup: %w", err)
		}
	}
	return nil
}
