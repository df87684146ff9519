package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/config"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/engine"
	"github.com/Veraticus/pantry/internal/llm"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
	"github.com/Veraticus/pantry/internal/storage"
)

// initStorage opens the catalog database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// newMatcher builds the semantic oracle. A missing API key is not fatal:
// resolution still runs the mapping and lexical tiers.
func newMatcher() (engine.SemanticMatcher, error) {
	cfg, err := config.LoadLLMConfig()
	if errors.Is(err, common.ErrMissingConfig) {
		slog.Warn("Semantic matching disabled", "reason", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	matcher, err := llm.NewProductMatcher(cfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to create product matcher: %w", err)
	}
	return matcher, nil
}

// newResolver wires the three-tier resolver from configuration.
func newResolver(store service.Storage) (*engine.Resolver, error) {
	cfg, err := config.LoadResolutionConfig()
	if err != nil {
		return nil, err
	}

	matcher, err := newMatcher()
	if err != nil {
		return nil, err
	}
	return engine.NewWithConfig(store, matcher, cfg), nil
}

// newWorkflow creates a review session with every pending item queued.
func newWorkflow(ctx context.Context, store service.Storage, resolver confirmation.Resolver) (*confirmation.Workflow, error) {
	workflow := confirmation.NewWorkflow(store, resolver)
	if _, err := workflow.Sweep(ctx); err != nil {
		return nil, fmt.Errorf("failed to load pending items: %w", err)
	}
	return workflow, nil
}

// findProduct accepts a product ID or its exact name.
func findProduct(ctx context.Context, store service.Storage, ref string) (*model.Product, error) {
	ref = strings.TrimSpace(ref)
	product, err := store.GetProduct(ctx, ref)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	products, err := store.SearchProducts(ctx, ref, 0)
	if err != nil {
		return nil, err
	}
	want := model.NormalizeName(ref)
	for i := range products {
		if model.NormalizeName(products[i].Name) == want {
			return &products[i], nil
		}
	}
	return nil, common.NewUserError(fmt.Sprintf("no product named %q", ref), common.ErrNotFound)
}

// readImage loads a receipt image and sniffs its MIME type.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(config.ExpandPath(path))
	if err != nil {
		return nil, "", common.NewUserError(fmt.Sprintf("cannot read %s", path), err)
	}
	return data, detectMimeType(data), nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
