// Package engine implements the tiered product-identity resolution pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

// ErrEmptyRawName is returned when asked to resolve a blank item name.
var ErrEmptyRawName = errors.New("raw item name is empty")

// Resolver maps raw receipt item names onto catalog products. It tries, in
// order, a learned mapping, lexical matching over names and aliases, and the
// semantic oracle, stopping at the first tier that produces an answer.
type Resolver struct {
	storage service.Storage
	matcher SemanticMatcher
	config  Config
}

// Config holds configuration options for the resolver.
type Config struct {
	// ConfidenceFloor is the minimum learned mapping confidence applied automatically.
	ConfidenceFloor float64
	// AIConfidence is the confidence written for single-candidate oracle answers.
	AIConfidence  float64
	MaxCandidates int
	Workers       int
	// AutoApplyUnconfirmed lets AI-suggested mappings resolve items without
	// a human having confirmed them.
	AutoApplyUnconfirmed bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor:      model.ConfidenceFloorBase,
		AIConfidence:         model.ConfidenceAIGuess,
		MaxCandidates:        5,
		Workers:              4,
		AutoApplyUnconfirmed: true,
	}
}

// New creates a resolver with the default configuration. matcher may be nil,
// in which case the semantic tier never produces candidates.
func New(storage service.Storage, matcher SemanticMatcher) *Resolver {
	return NewWithConfig(storage, matcher, DefaultConfig())
}

// NewWithConfig creates a resolver with custom configuration.
func NewWithConfig(storage service.Storage, matcher SemanticMatcher, config Config) *Resolver {
	defaults := DefaultConfig()
	if config.ConfidenceFloor <= 0 {
		config.ConfidenceFloor = defaults.ConfidenceFloor
	}
	if config.AIConfidence <= 0 {
		config.AIConfidence = defaults.AIConfidence
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = defaults.MaxCandidates
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	return &Resolver{
		storage: storage,
		matcher: matcher,
		config:  config,
	}
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config {
	return r.config
}

// Resolve decides which product rawName refers to.
func (r *Resolver) Resolve(ctx context.Context, rawName string) (model.Resolution, error) {
	return r.resolve(ctx, rawName, newCatalogSnapshot(r.storage))
}

// ResolveAll resolves names concurrently and returns results in input order.
func (r *Resolver) ResolveAll(ctx context.Context, names []string) ([]model.Resolution, error) {
	return r.ResolveAllFunc(ctx, names, nil)
}

// ResolveAllFunc is ResolveAll with a callback invoked after each item
// resolves. The callback runs on worker goroutines and must be safe for
// concurrent use.
func (r *Resolver) ResolveAllFunc(ctx context.Context, names []string, onResolved func(index int, res model.Resolution)) ([]model.Resolution, error) {
	results := make([]model.Resolution, len(names))
	snapshot := newCatalogSnapshot(r.storage)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for i, name := range names {
		g.Go(func() error {
			res, err := r.resolve(gctx, name, snapshot)
			if err != nil {
				return fmt.Errorf("item %d (%q): %w", i, name, err)
			}
			results[i] = res
			if onResolved != nil {
				onResolved(i, res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Resolver) resolve(ctx context.Context, rawName string, snapshot *catalogSnapshot) (model.Resolution, error) {
	key := model.NormalizeName(rawName)
	if key == "" {
		return model.Resolution{}, ErrEmptyRawName
	}

	res, done, err := r.resolveByMapping(ctx, rawName, key, snapshot)
	if err != nil || done {
		return res, err
	}

	catalog, err := snapshot.get(ctx)
	if err != nil {
		return model.Resolution{}, err
	}

	if matches := lexicalMatches(rawName, catalog); len(matches) > 0 {
		if len(matches) == 1 && matches[0].exact {
			return model.Resolved(rawName, matches[0].product.ID, model.ConfidenceCertain, model.SourceLexical, true), nil
		}
		return model.Unresolved(rawName, capCandidates(matches, r.config.MaxCandidates)), nil
	}

	return r.resolveSemantic(ctx, rawName, key, catalog), nil
}

// resolveByMapping applies tier 1. done reports whether the pipeline stops here.
func (r *Resolver) resolveByMapping(ctx context.Context, rawName, key string, snapshot *catalogSnapshot) (model.Resolution, bool, error) {
	mapping, err := r.storage.GetMapping(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return model.Resolution{}, false, nil
	}
	if err != nil {
		return model.Resolution{}, false, fmt.Errorf("failed to look up learned mapping: %w", err)
	}
	if mapping.Confidence < r.config.ConfidenceFloor {
		return model.Resolution{}, false, nil
	}

	if !mapping.Confirmed && !r.config.AutoApplyUnconfirmed {
		candidates, err := r.suggestMapped(ctx, rawName, mapping.ProductID, snapshot)
		if err != nil {
			return model.Resolution{}, false, err
		}
		return model.Unresolved(rawName, candidates), true, nil
	}

	if err := r.storage.IncrementMappingUsage(ctx, key); err != nil {
		common.LogError(err, "Failed to increment mapping usage", common.Fields{"key": key})
	}

	slog.Debug("Resolved by learned mapping", "raw_name", rawName, "product_id", mapping.ProductID,
		"confidence", mapping.Confidence, "confirmed", mapping.Confirmed)
	return model.Resolved(rawName, mapping.ProductID, mapping.Confidence, model.SourceLearnedMapping, mapping.Confirmed), true, nil
}

// suggestMapped puts an unconfirmed mapping's product first among the
// lexical candidates so a human can confirm it.
func (r *Resolver) suggestMapped(ctx context.Context, rawName, productID string, snapshot *catalogSnapshot) ([]model.Product, error) {
	catalog, err := snapshot.get(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []model.Product
	for _, p := range catalog {
		if p.ID == productID {
			candidates = append(candidates, p)
			break
		}
	}
	for _, m := range lexicalMatches(rawName, catalog) {
		if len(candidates) >= r.config.MaxCandidates {
			break
		}
		if m.product.ID != productID {
			candidates = append(candidates, m.product)
		}
	}
	return candidates, nil
}

// resolveSemantic applies tier 3. Oracle failures degrade to no candidates.
func (r *Resolver) resolveSemantic(ctx context.Context, rawName, key string, catalog []model.Product) model.Resolution {
	if r.matcher == nil || len(catalog) == 0 {
		return model.Unresolved(rawName, nil)
	}

	ids, err := r.matcher.MatchProducts(ctx, rawName, catalog)
	if err != nil {
		slog.Warn("Semantic matching failed, continuing without candidates", "raw_name", rawName, "error", err)
		return model.Unresolved(rawName, nil)
	}

	byID := make(map[string]model.Product, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	var candidates []model.Product
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			candidates = append(candidates, p)
		}
	}
	if len(candidates) > r.config.MaxCandidates {
		candidates = candidates[:r.config.MaxCandidates]
	}

	if len(candidates) == 1 {
		err := r.storage.UpsertMapping(ctx, &model.LearnedMapping{
			Key:        key,
			ProductID:  candidates[0].ID,
			Confidence: r.config.AIConfidence,
			Source:     model.SourceAISuggested,
			UseCount:   1,
		})
		if err != nil {
			common.LogError(err, "Failed to store suggested mapping", common.Fields{"key": key})
		}
	}

	return model.Unresolved(rawName, candidates)
}

// catalogSnapshot loads the active catalog at most once and shares it
// between concurrent resolutions of the same batch.
type catalogSnapshot struct {
	storage  service.Storage
	err      error
	products []model.Product
	once     sync.Once
}

func newCatalogSnapshot(storage service.Storage) *catalogSnapshot {
	return &catalogSnapshot{storage: storage}
}

func (s *catalogSnapshot) get(ctx context.Context) ([]model.Product, error) {
	s.once.Do(func() {
		s.products, s.err = s.storage.GetProducts(ctx)
		if s.err != nil {
			s.err = fmt.Errorf("failed to load catalog: %w", s.err)
		}
	})
	return s.products, s.err
}
