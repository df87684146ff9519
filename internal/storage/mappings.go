package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
)

// GetMapping retrieves the learned mapping for a raw name. The key is
// normalized before lookup. Returns common.ErrNotFound when absent.
func (s *SQLiteStorage) GetMapping(ctx context.Context, key string) (*model.LearnedMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	normalized := model.NormalizeName(key)
	if normalized == "" {
		return nil, fmt.Errorf("%w: key", ErrEmptyString)
	}

	if mapping := s.getCachedMapping(normalized); mapping != nil {
		return mapping, nil
	}

	gen := s.cacheGeneration()
	mapping, err := s.getMappingTx(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	s.cacheMapping(mapping, gen)
	return mapping, nil
}

func (s *SQLiteStorage) getMappingTx(ctx context.Context, q queryable, key string) (*model.LearnedMapping, error) {
	var row mappingRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+mappingColumns+` FROM learned_mappings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping %q: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	mapping := row.toModel()
	return &mapping, nil
}

// UpsertMapping writes a learned mapping, honoring precedence in a single
// statement: a confirmed write always replaces, an unconfirmed write never
// replaces a confirmed mapping, and between unconfirmed mappings the higher
// or equal confidence wins. A losing write is silently dropped. The usage
// counter of an existing mapping is preserved.
func (s *SQLiteStorage) UpsertMapping(ctx context.Context, mapping *model.LearnedMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMapping(mapping); err != nil {
		return err
	}
	return s.upsertMappingTx(ctx, s.db, mapping)
}

func (s *SQLiteStorage) upsertMappingTx(ctx context.Context, q queryable, mapping *model.LearnedMapping) error {
	key := model.NormalizeName(mapping.Key)
	if mapping.LastUpdated.IsZero() {
		mapping.LastUpdated = time.Now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO learned_mappings (key, product_id, confidence, confirmed, source, use_count, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			product_id = excluded.product_id,
			confidence = excluded.confidence,
			confirmed = excluded.confirmed,
			source = excluded.source,
			last_updated = excluded.last_updated
		WHERE excluded.confirmed = 1
			OR (learned_mappings.confirmed = 0 AND excluded.confidence >= learned_mappings.confidence)
	`, key, mapping.ProductID, mapping.Confidence, mapping.Confirmed, string(mapping.Source),
		mapping.UseCount, mapping.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}

	s.invalidateMapping(key)
	return nil
}

// IncrementMappingUsage bumps the usage counter after a tier-1 hit.
func (s *SQLiteStorage) IncrementMappingUsage(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	normalized := model.NormalizeName(key)
	if normalized == "" {
		return fmt.Errorf("%w: key", ErrEmptyString)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE learned_mappings SET use_count = use_count + 1 WHERE key = ?
	`, normalized)
	if err != nil {
		return fmt.Errorf("failed to increment mapping usage: %w", err)
	}

	if err := requireAffected(result, "mapping "+normalized); err != nil {
		s.invalidateMapping(normalized)
		return err
	}
	s.bumpCachedUsage(normalized)
	return nil
}

// GetAllMappings returns every learned mapping, most used first.
func (s *SQLiteStorage) GetAllMappings(ctx context.Context) ([]model.LearnedMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var rows []mappingRow
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT `+mappingColumns+` FROM learned_mappings ORDER BY use_count DESC, key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}

	mappings := make([]model.LearnedMapping, len(rows))
	for i, row := range rows {
		mappings[i] = row.toModel()
	}
	return mappings, nil
}

// DeleteMapping removes a learned mapping.
func (s *SQLiteStorage) DeleteMapping(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	normalized := model.NormalizeName(key)
	if normalized == "" {
		return fmt.Errorf("%w: key", ErrEmptyString)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM learned_mappings WHERE key = ?`, normalized)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}

	s.invalidateMapping(normalized)
	return requireAffected(result, "mapping "+normalized)
}

// WarmMappingCache preloads the most used mappings into memory.
func (s *SQLiteStorage) WarmMappingCache(ctx context.Context) error {
	mappings, err := s.GetAllMappings(ctx)
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.mappingCache = make(map[string]*model.LearnedMapping, len(mappings))
	for i := range mappings {
		s.mappingCache[mappings[i].Key] = &mappings[i]
	}
	s.cacheExpiry = time.Now().Add(mappingCacheTTL)

	return nil
}

func (s *SQLiteStorage) getCachedMapping(key string) *model.LearnedMapping {
	s.cacheMutex.RLock()

	if time.Now().After(s.cacheExpiry) {
		s.cacheMutex.RUnlock()
		s.cacheMutex.Lock()
		defer s.cacheMutex.Unlock()

		// Double-check after acquiring the write lock.
		if time.Now().After(s.cacheExpiry) {
			s.mappingCache = make(map[string]*model.LearnedMapping)
		}
		return nil
	}

	defer s.cacheMutex.RUnlock()
	mapping := s.mappingCache[key]
	if mapping == nil {
		return nil
	}
	cp := *mapping
	return &cp
}

func (s *SQLiteStorage) cacheGeneration() uint64 {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	return s.cacheGen
}

// cacheMapping stores a row read at generation gen. The row is dropped when
// a write invalidated the cache after the read started.
func (s *SQLiteStorage) cacheMapping(mapping *model.LearnedMapping, gen uint64) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if gen != s.cacheGen {
		return
	}

	if len(s.mappingCache) == 0 {
		s.cacheExpiry = time.Now().Add(mappingCacheTTL)
	}
	cp := *mapping
	s.mappingCache[mapping.Key] = &cp
}

// bumpCachedUsage keeps a cached mapping in step with a use_count increment.
func (s *SQLiteStorage) bumpCachedUsage(key string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if mapping, ok := s.mappingCache[key]; ok {
		mapping.UseCount++
	}
}

func (s *SQLiteStorage) invalidateMapping(key string) {
	s.cacheMutex.Lock()
	delete(s.mappingCache, key)
	s.cacheGen++
	s.cacheMutex.Unlock()
}
