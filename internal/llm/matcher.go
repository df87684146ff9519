package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

// OutcomeKind tags the result of a semantic match request.
type OutcomeKind int

// Match outcomes. Only Matched carries product IDs.
const (
	OutcomeMatched OutcomeKind = iota
	OutcomeEmpty
	OutcomeMalformed
	OutcomeUnavailable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeMatched:
		return "matched"
	case OutcomeEmpty:
		return "empty"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MatchOutcome is the typed result of asking the oracle for candidates.
type MatchOutcome struct {
	Err        error
	ProductIDs []string
	Kind       OutcomeKind
}

// ProductMatcher asks an LLM which catalog products a raw receipt name refers to.
type ProductMatcher struct {
	client      Client
	cache       *matchCache
	logger      *slog.Logger
	rateLimiter *rateLimiter
	schema      *jsonschema.Schema
	retryOpts   service.RetryOptions
	timeout     time.Duration
}

// NewProductMatcher creates a matcher backed by the configured provider.
func NewProductMatcher(cfg Config, logger *slog.Logger) (*ProductMatcher, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewProductMatcherWithClient(client, cfg, logger)
}

// NewProductMatcherWithClient creates a matcher around an existing client.
func NewProductMatcherWithClient(client Client, cfg Config, logger *slog.Logger) (*ProductMatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := compileSchema("match.json", matchResponseSchema())
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}

	return &ProductMatcher{
		client:      client,
		cache:       newMatchCache(cfg.CacheTTL),
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		schema:      schema,
		retryOpts:   retryOptions(cfg),
		timeout:     timeout,
	}, nil
}

func retryOptions(cfg Config) service.RetryOptions {
	opts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay == 0 {
		opts.InitialDelay = time.Second
	}
	if opts.InitialDelay > opts.MaxDelay {
		opts.MaxDelay = opts.InitialDelay
	}
	return opts
}

// Match asks the oracle for the catalog products rawName may refer to.
// IDs not present in catalog are discarded. The result is never an error:
// failures are reported through the outcome kind.
func (m *ProductMatcher) Match(ctx context.Context, rawName string, catalog []model.Product) MatchOutcome {
	if len(catalog) == 0 {
		return MatchOutcome{Kind: OutcomeEmpty}
	}

	key := model.NormalizeName(rawName) + "|" + catalogFingerprint(catalog)
	if outcome, found := m.cache.get(key); found {
		m.logger.Debug("cache hit for semantic match", "raw_name", rawName)
		return outcome
	}

	if err := m.rateLimiter.wait(ctx); err != nil {
		return MatchOutcome{Kind: OutcomeUnavailable, Err: fmt.Errorf("%w: %w", common.ErrOracleUnavailable, err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	prompt := buildMatchPrompt(rawName, catalog)
	var content string
	err := common.WithRetry(callCtx, func() error {
		var callErr error
		content, callErr = m.client.Complete(callCtx, Request{
			System:    matchSystemPrompt,
			Prompt:    prompt,
			MaxTokens: 256,
		})
		return callErr
	}, m.retryOpts)
	if err != nil {
		m.logger.Warn("semantic match unavailable", "raw_name", rawName, "error", err)
		if !errors.Is(err, common.ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %w", common.ErrOracleUnavailable, err)
		}
		return MatchOutcome{Kind: OutcomeUnavailable, Err: err}
	}

	ids, err := m.parseMatch(content)
	if err != nil {
		m.logger.Warn("semantic match response malformed", "raw_name", rawName, "error", err)
		return MatchOutcome{Kind: OutcomeMalformed, Err: err}
	}

	outcome := MatchOutcome{Kind: OutcomeEmpty}
	if known := filterKnownIDs(ids, catalog); len(known) > 0 {
		outcome = MatchOutcome{Kind: OutcomeMatched, ProductIDs: known}
	}
	if len(ids) != len(outcome.ProductIDs) {
		m.logger.Debug("discarded unknown product IDs", "raw_name", rawName,
			"returned", len(ids), "kept", len(outcome.ProductIDs))
	}

	m.cache.set(key, outcome)
	return outcome
}

// MatchProducts returns the candidate product IDs for rawName. Empty results
// return nil without error; malformed or unavailable oracles return an error
// wrapping common.ErrMalformedResponse or common.ErrOracleUnavailable.
func (m *ProductMatcher) MatchProducts(ctx context.Context, rawName string, catalog []model.Product) ([]string, error) {
	outcome := m.Match(ctx, rawName, catalog)
	switch outcome.Kind {
	case OutcomeMatched:
		return outcome.ProductIDs, nil
	case OutcomeEmpty:
		return nil, nil
	default:
		return nil, outcome.Err
	}
}

// ClearCache drops every cached match.
func (m *ProductMatcher) ClearCache() {
	m.cache.clear()
}

func (m *ProductMatcher) parseMatch(content string) ([]string, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}
	if err := validateAgainst(m.schema, []byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}

	var resp struct {
		ProductIDs []string `json:"product_ids"`
		ProdutoIDs []string `json:"produto_ids"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	if resp.ProductIDs != nil {
		return resp.ProductIDs, nil
	}
	return resp.ProdutoIDs, nil
}

// filterKnownIDs keeps IDs present in catalog, deduplicated, in reply order.
func filterKnownIDs(ids []string, catalog []model.Product) []string {
	known := make(map[string]bool, len(catalog))
	for _, p := range catalog {
		known[p.ID] = true
	}

	seen := make(map[string]bool, len(ids))
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if known[id] && !seen[id] {
			seen[id] = true
			kept = append(kept, id)
		}
	}
	return kept
}

// catalogFingerprint changes whenever a product, name or alias changes so
// cached matches never outlive the catalog they were computed against.
func catalogFingerprint(catalog []model.Product) string {
	parts := make([]string, 0, len(catalog))
	for _, p := range catalog {
		aliases := append([]string(nil), p.Aliases...)
		sort.Strings(aliases)
		part := p.ID + "\x1f" + p.Name + "\x1f" + p.CategoryName()
		for _, a := range aliases {
			part += "\x1f" + a
		}
		parts = append(parts, part)
	}
	sort.Strings(parts)

	h := fnv.New64a()
	for _, part := range parts {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum64())
}
