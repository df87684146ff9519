// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/pantry/internal/model"
)

// PurchaseFilter defines filtering options for purchase queries.
type PurchaseFilter struct {
	Status *model.PurchaseStatus
	Limit  int
	Offset int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Catalog operations
	CreateProduct(ctx context.Context, product *model.NewProduct, aliases ...string) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetProducts(ctx context.Context) ([]model.Product, error)
	ListProducts(ctx context.Context, includeInactive bool) ([]model.Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]model.Product, error)
	AddProductAlias(ctx context.Context, productID, alias string) (bool, error)
	DeactivateProduct(ctx context.Context, id string) error
	RefreshAveragePrice(ctx context.Context, productID string) error

	// Learned mapping operations
	GetMapping(ctx context.Context, key string) (*model.LearnedMapping, error)
	UpsertMapping(ctx context.Context, mapping *model.LearnedMapping) error
	IncrementMappingUsage(ctx context.Context, key string) error
	GetAllMappings(ctx context.Context) ([]model.LearnedMapping, error)
	DeleteMapping(ctx context.Context, key string) error

	// Purchase operations
	SavePurchase(ctx context.Context, purchase *model.Purchase) error
	GetPurchase(ctx context.Context, id string) (*model.Purchase, error)
	ListPurchases(ctx context.Context, filter PurchaseFilter) ([]model.Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, id string, status model.PurchaseStatus) error
	GetPurchaseItem(ctx context.Context, id string) (*model.PurchaseItem, error)
	GetPendingItems(ctx context.Context) ([]model.PurchaseItem, error)
	LinkPurchaseItem(ctx context.Context, itemID string, resolution model.Resolution) error
	ApplyConfirmation(ctx context.Context, confirmation model.Confirmation) (*model.ConfirmationResult, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// ResolveStats summarizes a batch resolution run.
type ResolveStats struct {
	Total      int
	ByMapping  int
	ByLexical  int
	BySemantic int
	Unresolved int
	Duration   time.Duration
}

// Add records one resolution outcome.
func (s *ResolveStats) Add(r model.Resolution) {
	s.Total++
	switch {
	case !r.IsResolved():
		s.Unresolved++
	case r.Source == model.SourceLearnedMapping:
		s.ByMapping++
	case r.Source == model.SourceLexical:
		s.ByLexical++
	case r.Source == model.SourceSemantic:
		s.BySemantic++
	}
}

// ReviewStats summarizes a confirmation session.
type ReviewStats struct {
	Linked        int
	AutoLinked    int
	Created       int
	Skipped       int
	AliasesLearnt int
}
