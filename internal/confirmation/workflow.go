package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

// DefaultCategory is assigned to products created without a category.
const DefaultCategory = "Geral"

// Resolver computes the resolution of a raw item name.
type Resolver interface {
	Resolve(ctx context.Context, rawName string) (model.Resolution, error)
}

// Presentation is what a front-end shows for the item under review.
// Creating a new product is always an available choice.
type Presentation struct {
	Item model.PurchaseItem
	// Suggested is set when a learned mapping proposes a product a human
	// has not confirmed yet. It is also the first candidate.
	Suggested  *model.Product
	Candidates []model.Product
}

// Config holds configuration options for the workflow.
type Config struct {
	DefaultCategory string
	DefaultUnit     string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultCategory: DefaultCategory,
		DefaultUnit:     model.DefaultUnit,
	}
}

// Workflow presents unresolved items one at a time and applies the human's
// decision as a single confirmation. It is safe for concurrent use, though
// a review session is normally driven by one front-end.
type Workflow struct {
	storage  service.Storage
	resolver Resolver
	queue    *Queue
	current  *Presentation
	skipped  map[string]struct{}
	config   Config
	stats    service.ReviewStats
	state    State
	mu       sync.Mutex
}

// NewWorkflow creates a workflow with the default configuration.
func NewWorkflow(storage service.Storage, resolver Resolver) *Workflow {
	return NewWorkflowWithConfig(storage, resolver, DefaultConfig())
}

// NewWorkflowWithConfig creates a workflow with custom configuration.
func NewWorkflowWithConfig(storage service.Storage, resolver Resolver, config Config) *Workflow {
	if config.DefaultCategory == "" {
		config.DefaultCategory = DefaultCategory
	}
	if config.DefaultUnit == "" {
		config.DefaultUnit = model.DefaultUnit
	}
	return &Workflow{
		storage:  storage,
		resolver: resolver,
		queue:    NewQueue(),
		skipped:  make(map[string]struct{}),
		config:   config,
		state:    StateIdle,
	}
}

// Enqueue adds purchase items to the back of the review queue.
func (w *Workflow) Enqueue(itemIDs ...string) int {
	return w.queue.Push(itemIDs...)
}

// Sweep queues every pending item in storage that is not already queued
// and was not skipped in this session. It returns how many were added.
func (w *Workflow) Sweep(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sweepLocked(ctx)
}

func (w *Workflow) sweepLocked(ctx context.Context) (int, error) {
	items, err := w.storage.GetPendingItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep pending items: %w", err)
	}

	added := 0
	for _, item := range items {
		if _, skipped := w.skipped[item.ID]; skipped {
			continue
		}
		added += w.queue.Push(item.ID)
	}
	if added > 0 {
		common.LogDebug("Swept pending items into review queue", common.Fields{"added": added, "queued": w.queue.Len()})
	}
	return added, nil
}

// Next moves to the next item that needs a human. Items that now resolve
// with certainty are linked on the way without being presented. Returns
// common.ErrNoPendingItems when nothing but skipped items remain.
func (w *Workflow) Next(ctx context.Context) (*Presentation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := transition(w.state, EventPresent); err != nil {
		return nil, err
	}

	for {
		id, ok := w.popEligible()
		if !ok {
			added, err := w.sweepLocked(ctx)
			if err != nil {
				return nil, err
			}
			if added == 0 {
				return nil, common.ErrNoPendingItems
			}
			continue
		}

		presentation, err := w.prepare(ctx, id)
		if err != nil {
			w.queue.PushFront(id)
			return nil, err
		}
		if presentation == nil {
			continue
		}

		w.state = StatePresenting
		w.current = presentation
		return presentation, nil
	}
}

// popEligible pops the first queued item that was not skipped. Skipped items
// stay queued at the back.
func (w *Workflow) popEligible() (string, bool) {
	for range w.queue.Len() {
		id, ok := w.queue.Pop()
		if !ok {
			return "", false
		}
		if _, skipped := w.skipped[id]; !skipped {
			return id, true
		}
		w.queue.Push(id)
	}
	return "", false
}

// prepare loads an item and decides whether it needs a human. A nil
// presentation means the item left the backlog.
func (w *Workflow) prepare(ctx context.Context, itemID string) (*Presentation, error) {
	item, err := w.storage.GetPurchaseItem(ctx, itemID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	if item.ProductID != nil {
		return nil, nil
	}

	purchase, err := w.storage.GetPurchase(ctx, item.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase %s: %w", item.PurchaseID, err)
	}
	if purchase.Status == model.PurchaseRejected {
		return nil, nil
	}

	res, err := w.resolver.Resolve(ctx, item.RawName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", item.RawName, err)
	}

	if res.IsResolved() && res.Confirmed {
		if err := w.storage.LinkPurchaseItem(ctx, item.ID, res); err != nil {
			return nil, fmt.Errorf("failed to link item %s: %w", item.ID, err)
		}
		w.refreshPrice(ctx, res.ProductID)
		w.stats.AutoLinked++
		slog.Info("Linked item without review", "raw_name", item.RawName, "product_id", res.ProductID, "source", res.Source)
		return nil, nil
	}

	presentation := &Presentation{Item: *item, Candidates: res.Candidates}
	if res.IsResolved() {
		product, err := w.storage.GetProduct(ctx, res.ProductID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("failed to load suggested product: %w", err)
		}
		if product != nil {
			presentation.Suggested = product
			presentation.Candidates = []model.Product{*product}
		}
	}
	return presentation, nil
}

// Associate links the presented item to an existing product and learns
// the raw name for it.
func (w *Workflow) Associate(ctx context.Context, productID string) (*model.ConfirmationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if strings.TrimSpace(productID) == "" {
		return nil, common.NewUserError("choose a product to link", nil)
	}
	return w.decide(ctx, EventAssociate, model.Confirmation{ProductID: productID})
}

// Create makes a new catalog product from the presented item and links it.
// Empty category and unit fall back to the configured defaults.
func (w *Workflow) Create(ctx context.Context, name, category, unit string) (*model.ConfirmationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.NewUserError("a new product needs a name", nil)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = w.config.DefaultCategory
	}
	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = w.config.DefaultUnit
	}

	return w.decide(ctx, EventCreate, model.Confirmation{
		NewProduct: &model.NewProduct{Name: name, Category: &category, Unit: unit},
	})
}

func (w *Workflow) decide(ctx context.Context, event Event, confirmation model.Confirmation) (*model.ConfirmationResult, error) {
	next, err := transition(w.state, event)
	if err != nil {
		return nil, err
	}

	confirmation.ItemID = w.current.Item.ID
	confirmation.RawName = w.current.Item.RawName

	result, err := w.storage.ApplyConfirmation(ctx, confirmation)
	if err != nil {
		return nil, fmt.Errorf("failed to apply confirmation: %w", err)
	}

	w.refreshPrice(ctx, result.Product.ID)
	w.stats.Linked++
	if result.Created {
		w.stats.Created++
	}
	if result.AliasAdded {
		w.stats.AliasesLearnt++
	}
	slog.Info("Confirmed item", "raw_name", confirmation.RawName, "product", result.Product.Name,
		"created", result.Created, "alias_added", result.AliasAdded)

	w.settle(next)
	return result, nil
}

// Skip leaves the presented item unresolved and moves it to the back of the
// queue. It is not presented again until ResetSkipped is called.
func (w *Workflow) Skip(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next, err := transition(w.state, EventSkip)
	if err != nil {
		return err
	}

	id := w.current.Item.ID
	w.skipped[id] = struct{}{}
	w.queue.Push(id)
	w.stats.Skipped++

	w.settle(next)
	return nil
}

// ResetSkipped makes skipped items eligible for presentation again.
func (w *Workflow) ResetSkipped() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipped = make(map[string]struct{})
}

func (w *Workflow) settle(terminal State) {
	w.state, _ = transition(terminal, EventSettle)
	w.current = nil
}

func (w *Workflow) refreshPrice(ctx context.Context, productID string) {
	if err := w.storage.RefreshAveragePrice(ctx, productID); err != nil {
		common.LogWarn("Failed to refresh average price", common.Fields{"product_id": productID, "error": err})
	}
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Current returns the item under review, or nil while idle.
func (w *Workflow) Current() *Presentation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Pending returns the number of queued items, skipped ones included.
func (w *Workflow) Pending() int {
	return w.queue.Len()
}

// Stats returns what the session has done so far.
func (w *Workflow) Stats() service.ReviewStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
