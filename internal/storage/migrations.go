package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Product catalog",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS products (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					category TEXT,
					unit TEXT NOT NULL DEFAULT 'un',
					average_price TEXT NOT NULL DEFAULT '0',
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_products_name ON products(name COLLATE NOCASE)`,

				`CREATE TABLE IF NOT EXISTS product_aliases (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					product_id TEXT NOT NULL REFERENCES products(id),
					alias TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(product_id, alias)
				)`,
				`CREATE INDEX idx_product_aliases_alias ON product_aliases(alias)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Learned mappings",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS learned_mappings (
					key TEXT PRIMARY KEY,
					product_id TEXT NOT NULL REFERENCES products(id),
					confidence REAL NOT NULL,
					confirmed BOOLEAN NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					use_count INTEGER NOT NULL DEFAULT 0,
					last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_learned_mappings_product ON learned_mappings(product_id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Purchases and purchase items",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS purchases (
					id TEXT PRIMARY KEY,
					purchase_date DATETIME,
					supplier TEXT,
					invoice_number TEXT,
					total TEXT NOT NULL DEFAULT '0',
					status TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_purchases_status ON purchases(status)`,

				`CREATE TABLE IF NOT EXISTS purchase_items (
					id TEXT PRIMARY KEY,
					purchase_id TEXT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
					position INTEGER NOT NULL,
					raw_name TEXT NOT NULL,
					quantity TEXT NOT NULL DEFAULT '1',
					unit TEXT NOT NULL DEFAULT 'un',
					unit_price TEXT NOT NULL DEFAULT '0',
					total_price TEXT NOT NULL DEFAULT '0',
					product_id TEXT REFERENCES products(id),
					needs_review BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_purchase_items_purchase ON purchase_items(purchase_id, position)`,
				`CREATE INDEX idx_purchase_items_product ON purchase_items(product_id)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Track resolution tier on purchase items",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE purchase_items ADD COLUMN resolution_source TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE purchase_items ADD COLUMN confidence REAL NOT NULL DEFAULT 0`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SchemaVersion reports the applied schema version and the latest known one.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (current, latest int, err error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return 0, 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return current, migrations[len(migrations)-1].Version, nil
}

// Migrate runs all database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
