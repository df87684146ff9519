// Package catalog provides test infrastructure for seeding product catalogs.
// It offers a fluent API for declaring products and their aliases and
// creating them in a storage backend.
//
// Example usage:
//
//	db := testutil.SetupTestDB(t)
//	products := catalog.NewBuilder(t).
//		WithBasicProducts().
//		WithProduct("Queijo Parmesão", "parmesao").
//		MustBuild(ctx, db.Storage)
package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

// Builder provides a fluent interface for constructing test catalogs.
type Builder interface {
	// WithProduct adds a product with optional aliases.
	WithProduct(name ProductName, aliases ...string) Builder

	// WithCategory sets the category used for products added after the call.
	WithCategory(category string) Builder

	// WithBasicProducts adds the small produce catalog most tests use.
	WithBasicProducts() Builder

	// Build creates the products in storage in declaration order.
	Build(ctx context.Context, storage service.Storage) (Products, error)

	// MustBuild is Build that fails the test on error.
	MustBuild(ctx context.Context, storage service.Storage) Products
}

// ProductName is a strongly-typed product name.
type ProductName string

// String returns the string representation of the product name.
func (p ProductName) String() string {
	return string(p)
}

// Common product names used across tests.
const (
	ProductTomato    ProductName = "Tomate"
	ProductParmesan  ProductName = "Queijo Parmesão"
	ProductRice      ProductName = "Arroz"
	ProductBeans     ProductName = "Feijão Preto"
	ProductOliveOil  ProductName = "Azeite Extra Virgem"
	ProductOnion     ProductName = "Cebola"
	ProductSoybeanOil ProductName = "Óleo de Soja"
)

// DefaultCategory is assigned when no category is chosen.
const DefaultCategory = "Geral"

// Products is a collection of created test products.
type Products []model.Product

// Find returns the product with the given name, or nil if not found.
func (p Products) Find(name ProductName) *model.Product {
	for i := range p {
		if p[i].Name == name.String() {
			return &p[i]
		}
	}
	return nil
}

// MustFind returns the product with the given name, or fails the test.
func (p Products) MustFind(t *testing.T, name ProductName) model.Product {
	t.Helper()
	product := p.Find(name)
	if product == nil {
		t.Fatalf("product %q not found in test data", name)
	}
	return *product
}

// IDs returns all product IDs in creation order.
func (p Products) IDs() []string {
	ids := make([]string, len(p))
	for i, product := range p {
		ids[i] = product.ID
	}
	return ids
}

type pendingProduct struct {
	name     ProductName
	category string
	aliases  []string
}

// productBuilder implements the Builder interface.
type productBuilder struct {
	t        *testing.T
	seen     map[ProductName]int
	category string
	pending  []pendingProduct
}

// NewBuilder creates a new catalog builder for the given test.
func NewBuilder(t *testing.T) Builder {
	t.Helper()
	return &productBuilder{
		t:        t,
		seen:     make(map[ProductName]int),
		category: DefaultCategory,
	}
}

func (b *productBuilder) WithProduct(name ProductName, aliases ...string) Builder {
	if i, ok := b.seen[name]; ok {
		b.pending[i].aliases = append(b.pending[i].aliases, aliases...)
		return b
	}
	b.seen[name] = len(b.pending)
	b.pending = append(b.pending, pendingProduct{name: name, category: b.category, aliases: aliases})
	return b
}

func (b *productBuilder) WithCategory(category string) Builder {
	b.category = category
	return b
}

func (b *productBuilder) WithBasicProducts() Builder {
	return b.
		WithProduct(ProductTomato).
		WithProduct(ProductRice).
		WithProduct(ProductBeans).
		WithProduct(ProductOnion)
}

func (b *productBuilder) Build(ctx context.Context, storage service.Storage) (Products, error) {
	b.t.Helper()

	result := make(Products, 0, len(b.pending))
	for _, entry := range b.pending {
		category := entry.category
		product, err := storage.CreateProduct(ctx, &model.NewProduct{
			Name:     entry.name.String(),
			Category: &category,
			Unit:     model.DefaultUnit,
		}, entry.aliases...)
		if err != nil {
			return nil, fmt.Errorf("failed to create product %q: %w", entry.name, err)
		}
		result = append(result, *product)
	}
	return result, nil
}

func (b *productBuilder) MustBuild(ctx context.Context, storage service.Storage) Products {
	b.t.Helper()
	products, err := b.Build(ctx, storage)
	if err != nil {
		b.t.Fatalf("failed to build catalog: %v", err)
	}
	return products
}
