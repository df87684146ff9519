package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
)

func TestUpsertMapping_Precedence(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := createTestProduct(t, store, "Product A")
	b := createTestProduct(t, store, "Product B")
	c := createTestProduct(t, store, "Product C")

	unconfirmed := func(productID string, confidence float64) *model.LearnedMapping {
		return &model.LearnedMapping{
			Key: "QJ PARM", ProductID: productID, Confidence: confidence, Source: model.SourceAISuggested,
		}
	}
	confirmed := func(productID string) *model.LearnedMapping {
		return &model.LearnedMapping{
			Key: "qj parm", ProductID: productID, Confidence: 1, Confirmed: true, Source: model.SourceUserConfirmed,
		}
	}

	steps := []struct {
		name          string
		write         *model.LearnedMapping
		wantProduct   string
		wantConfirmed bool
	}{
		{name: "first unconfirmed write inserts", write: unconfirmed(a.ID, 0.7), wantProduct: a.ID},
		{name: "lower unconfirmed loses", write: unconfirmed(b.ID, 0.5), wantProduct: a.ID},
		{name: "equal unconfirmed wins", write: unconfirmed(b.ID, 0.7), wantProduct: b.ID},
		{name: "confirmed replaces unconfirmed", write: confirmed(c.ID), wantProduct: c.ID, wantConfirmed: true},
		{name: "later unconfirmed never wins", write: unconfirmed(a.ID, 1.0), wantProduct: c.ID, wantConfirmed: true},
		{name: "last confirmed write wins", write: confirmed(a.ID), wantProduct: a.ID, wantConfirmed: true},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			prior, err := store.GetMapping(ctx, "qj parm")
			if errors.Is(err, common.ErrNotFound) {
				prior = nil
			} else {
				require.NoError(t, err)
			}

			require.NoError(t, store.UpsertMapping(ctx, step.write))

			got, err := store.GetMapping(ctx, "  Qj Parm ")
			require.NoError(t, err)
			assert.Equal(t, "qj parm", got.Key)
			assert.Equal(t, step.wantProduct, got.ProductID)
			assert.Equal(t, step.wantConfirmed, got.Confirmed)

			replaced := got.ProductID == step.write.ProductID && got.Confirmed == step.write.Confirmed &&
				got.Confidence == step.write.Confidence
			assert.Equal(t, step.write.Supersedes(prior), replaced, "in-memory rule must agree with the stored outcome")
		})
	}
}

func TestLearnedMapping_Supersedes(t *testing.T) {
	tests := []struct {
		existing *model.LearnedMapping
		write    model.LearnedMapping
		name     string
		want     bool
	}{
		{name: "nothing stored", write: model.LearnedMapping{Confidence: 0.1}, want: true},
		{name: "confirmed over confirmed", existing: &model.LearnedMapping{Confirmed: true, Confidence: 1}, write: model.LearnedMapping{Confirmed: true, Confidence: 1}, want: true},
		{name: "confirmed over unconfirmed", existing: &model.LearnedMapping{Confidence: 0.9}, write: model.LearnedMapping{Confirmed: true, Confidence: 1}, want: true},
		{name: "unconfirmed over confirmed", existing: &model.LearnedMapping{Confirmed: true, Confidence: 0.6}, write: model.LearnedMapping{Confidence: 1}, want: false},
		{name: "higher unconfirmed", existing: &model.LearnedMapping{Confidence: 0.6}, write: model.LearnedMapping{Confidence: 0.7}, want: true},
		{name: "equal unconfirmed", existing: &model.LearnedMapping{Confidence: 0.7}, write: model.LearnedMapping{Confidence: 0.7}, want: true},
		{name: "lower unconfirmed", existing: &model.LearnedMapping{Confidence: 0.7}, write: model.LearnedMapping{Confidence: 0.65}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := createTestStorage(t)
			defer cleanup()
			ctx := context.Background()

			oldTarget := createTestProduct(t, store, "Old")
			newTarget := createTestProduct(t, store, "New")

			if tt.existing != nil {
				existing := *tt.existing
				existing.Key = "arroz tp1"
				existing.ProductID = oldTarget.ID
				existing.Source = sourceFor(existing.Confirmed)
				require.NoError(t, store.UpsertMapping(ctx, &existing))
			}

			write := tt.write
			write.Key = "arroz tp1"
			write.ProductID = newTarget.ID
			write.Source = sourceFor(write.Confirmed)
			assert.Equal(t, tt.want, write.Supersedes(tt.existing))

			require.NoError(t, store.UpsertMapping(ctx, &write))
			got, err := store.GetMapping(ctx, "arroz tp1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ProductID == newTarget.ID)
		})
	}
}

func sourceFor(confirmed bool) model.MappingSource {
	if confirmed {
		return model.SourceUserConfirmed
	}
	return model.SourceAISuggested
}

func TestUpsertMapping_PreservesUseCount(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	product := createTestProduct(t, store, "Arroz")
	require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
		Key: "arroz tp1", ProductID: product.ID, Confidence: 0.7, Source: model.SourceAISuggested, UseCount: 1,
	}))
	require.NoError(t, store.IncrementMappingUsage(ctx, "ARROZ TP1"))
	require.NoError(t, store.IncrementMappingUsage(ctx, "arroz tp1"))

	require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
		Key: "arroz tp1", ProductID: product.ID, Confidence: 1, Confirmed: true, Source: model.SourceUserConfirmed, UseCount: 1,
	}))

	got, err := store.GetMapping(ctx, "arroz tp1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.UseCount)
	assert.Equal(t, model.SourceUserConfirmed, got.Source)
}

func TestUpsertMapping_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name    string
		mapping *model.LearnedMapping
	}{
		{name: "nil", mapping: nil},
		{name: "empty key", mapping: &model.LearnedMapping{Key: " ", ProductID: "p", Source: model.SourceAISuggested}},
		{name: "missing product", mapping: &model.LearnedMapping{Key: "k", Source: model.SourceAISuggested}},
		{name: "confidence too high", mapping: &model.LearnedMapping{Key: "k", ProductID: "p", Confidence: 1.5, Source: model.SourceAISuggested}},
		{name: "unknown source", mapping: &model.LearnedMapping{Key: "k", ProductID: "p", Source: "GUESS"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.UpsertMapping(ctx, tt.mapping))
		})
	}
}

func TestGetMapping_CacheInvalidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := createTestProduct(t, store, "A")
	b := createTestProduct(t, store, "B")

	require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
		Key: "x", ProductID: a.ID, Confidence: 0.7, Source: model.SourceAISuggested,
	}))
	first, err := store.GetMapping(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, a.ID, first.ProductID)
	assert.NotNil(t, store.getCachedMapping("x"))

	require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
		Key: "x", ProductID: b.ID, Confidence: 1, Confirmed: true, Source: model.SourceUserConfirmed,
	}))
	assert.Nil(t, store.getCachedMapping("x"))

	second, err := store.GetMapping(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, b.ID, second.ProductID)
}

func TestIncrementMappingUsage_KeepsCacheEntry(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	product := createTestProduct(t, store, "Leite")
	require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
		Key: "leite int", ProductID: product.ID, Confidence: 1, Confirmed: true, Source: model.SourceUserConfirmed, UseCount: 1,
	}))
	require.NoError(t, store.WarmMappingCache(ctx))

	for range 3 {
		_, err := store.GetMapping(ctx, "LEITE INT")
		require.NoError(t, err)
		require.NoError(t, store.IncrementMappingUsage(ctx, "LEITE INT"))
	}

	cached := store.getCachedMapping("leite int")
	require.NotNil(t, cached, "a tier-1 hit must not evict the mapping")
	assert.Equal(t, 4, cached.UseCount)

	stored, err := store.getMappingTx(ctx, store.db, "leite int")
	require.NoError(t, err)
	assert.Equal(t, stored.UseCount, cached.UseCount)

	err = store.IncrementMappingUsage(ctx, "nunca visto")
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Nil(t, store.getCachedMapping("nunca visto"))
}

func TestGetMapping_SkipsCachingStaleRead(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	a := createTestProduct(t, store, "A")
	require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
		Key: "x", ProductID: a.ID, Confidence: 0.7, Source: model.SourceAISuggested,
	}))

	gen := store.cacheGeneration()
	stale, err := store.getMappingTx(ctx, store.db, "x")
	require.NoError(t, err)
	store.invalidateMapping("x")

	store.cacheMapping(stale, gen)
	assert.Nil(t, store.getCachedMapping("x"))

	store.cacheMapping(stale, store.cacheGeneration())
	assert.NotNil(t, store.getCachedMapping("x"))
}

func TestWarmMappingCache(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	product := createTestProduct(t, store, "Feijao")
	for _, key := range []string{"feij car", "feijao carioca"} {
		require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
			Key: key, ProductID: product.ID, Confidence: 0.7, Source: model.SourceAISuggested,
		}))
	}

	require.NoError(t, store.WarmMappingCache(ctx))
	assert.NotNil(t, store.getCachedMapping("feij car"))
	assert.NotNil(t, store.getCachedMapping("feijao carioca"))
}

func TestDeleteMapping(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	product := createTestProduct(t, store, "Cafe")
	require.NoError(t, store.UpsertMapping(ctx, &model.LearnedMapping{
		Key: "cafe pil", ProductID: product.ID, Confidence: 0.7, Source: model.SourceAISuggested,
	}))

	require.NoError(t, store.DeleteMapping(ctx, "CAFE PIL"))
	_, err := store.GetMapping(ctx, "cafe pil")
	require.ErrorIs(t, err, common.ErrNotFound)
	require.ErrorIs(t, store.DeleteMapping(ctx, "cafe pil"), common.ErrNotFound)
	require.ErrorIs(t, store.IncrementMappingUsage(ctx, "cafe pil"), common.ErrNotFound)

	all, err := store.GetAllMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
