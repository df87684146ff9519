// Package testutil provides test utilities for the pantry project.
// It offers isolated, migrated databases and helpers for seeding catalogs
// and purchases.
package testutil

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
	"github.com/Veraticus/pantry/internal/storage"
	"github.com/Veraticus/pantry/internal/testutil/catalog"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage  service.Storage
	t        *testing.T
	Products catalog.Products
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithCatalog creates a test database seeded through a catalog builder.
//
// Example:
//
//	db := testutil.SetupTestDBWithCatalog(t, func(b catalog.Builder) catalog.Builder {
//		return b.WithBasicProducts().WithProduct("Queijo Parmesão", "parmesao")
//	})
func SetupTestDBWithCatalog(t *testing.T, configure func(catalog.Builder) catalog.Builder) *TestDB {
	t.Helper()

	db := SetupTestDB(t)
	builder := catalog.NewBuilder(t)
	if configure != nil {
		builder = configure(builder)
	}
	db.Products = builder.MustBuild(context.Background(), db.Storage)
	return db
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	// A named in-memory database would be shared between tests; a plain
	// ":memory:" is private to the single pooled connection.
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// MustGetProduct returns the seeded product with the given name or fails the test.
func (db *TestDB) MustGetProduct(name catalog.ProductName) model.Product {
	db.t.Helper()
	return db.Products.MustFind(db.t, name)
}

// SavePendingPurchase stores a confirmed purchase whose items all await review.
func (db *TestDB) SavePendingPurchase(rawNames ...string) *model.Purchase {
	db.t.Helper()

	price := decimal.RequireFromString("5.00")
	purchase := &model.Purchase{
		Status: model.PurchaseConfirmed,
		Total:  price.Mul(decimal.NewFromInt(int64(len(rawNames)))),
	}
	for i, name := range rawNames {
		purchase.Items = append(purchase.Items, model.PurchaseItem{
			Position:    i,
			RawName:     name,
			Quantity:    decimal.NewFromInt(1),
			Unit:        model.DefaultUnit,
			UnitPrice:   price,
			TotalPrice:  price,
			NeedsReview: true,
		})
	}
	if err := db.Storage.SavePurchase(context.Background(), purchase); err != nil {
		db.t.Fatalf("failed to save purchase: %v", err)
	}
	return purchase
}
