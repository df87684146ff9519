// Package reconcile turns one extracted receipt into a stored purchase.
// Every line is resolved against the catalog before a human approves the
// header; lines that stay unresolved are handed to the review queue.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
)

// ErrDraftClosed is returned when a draft is committed twice or after Discard.
var ErrDraftClosed = errors.New("draft already committed or discarded")

// Extractor reads a receipt image.
type Extractor interface {
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*model.RawReceipt, error)
}

// Resolver resolves raw item names in input order.
type Resolver interface {
	ResolveAllFunc(ctx context.Context, names []string, onResolved func(index int, res model.Resolution)) ([]model.Resolution, error)
}

// Enqueuer accepts items for human review.
type Enqueuer interface {
	Enqueue(itemIDs ...string) int
}

// Line is a normalized receipt line with its resolution.
type Line struct {
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	RawName    string
	Unit       string
	Resolution model.Resolution
	Position   int
	// Recomputed is set when TotalPrice replaced the total printed on the receipt.
	Recomputed bool
}

// Draft is a prepared receipt awaiting header approval. Nothing is stored.
type Draft struct {
	Receipt model.RawReceipt
	Lines   []Line
	// Dropped counts extracted lines that had no readable name.
	Dropped int
	closed  bool
}

// UnresolvedCount returns the number of lines a human must review.
func (d *Draft) UnresolvedCount() int {
	count := 0
	for _, line := range d.Lines {
		if !line.Resolution.IsResolved() {
			count++
		}
	}
	return count
}

// LinesTotal returns the sum of line totals.
func (d *Draft) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range d.Lines {
		sum = sum.Add(line.TotalPrice)
	}
	return sum
}

// Stats summarizes how the draft's lines were resolved.
func (d *Draft) Stats() service.ResolveStats {
	var stats service.ResolveStats
	for _, line := range d.Lines {
		stats.Add(line.Resolution)
	}
	return stats
}

// HeaderApproval carries the header fields a human approved. Nil fields
// fall back to what was extracted; a missing total falls back to the sum
// of the lines.
type HeaderApproval struct {
	Supplier      *string
	InvoiceNumber *string
	Date          *time.Time
	Total         *decimal.Decimal
	Approved      bool
}

// Result describes a committed purchase.
type Result struct {
	Total           decimal.Decimal
	PurchaseID      string
	Items           int
	UnresolvedCount int
}

// Reconciler prepares and commits receipts.
type Reconciler struct {
	storage   service.Storage
	resolver  Resolver
	extractor Extractor
	queue     Enqueuer
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithExtractor sets the receipt image extractor used by Extract.
func WithExtractor(extractor Extractor) Option {
	return func(r *Reconciler) { r.extractor = extractor }
}

// WithQueue sets where unresolved items are sent after a commit.
func WithQueue(queue Enqueuer) Option {
	return func(r *Reconciler) { r.queue = queue }
}

// New creates a reconciler.
func New(storage service.Storage, resolver Resolver, opts ...Option) *Reconciler {
	r := &Reconciler{storage: storage, resolver: resolver}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extract reads a receipt image. Failures come back as a common.UserError
// telling the user what to do about it.
func (r *Reconciler) Extract(ctx context.Context, image []byte, mimeType string) (*model.RawReceipt, error) {
	if r.extractor == nil {
		return nil, common.NewUserError("receipt scanning needs an LLM provider; set llm.provider and its API key", common.ErrMissingConfig)
	}
	if len(image) == 0 {
		return nil, common.NewUserError("the receipt image is empty", common.ErrInvalidReceipt)
	}

	raw, err := r.extractor.ExtractReceipt(ctx, image, mimeType)
	if err != nil {
		return nil, common.NewUserError("could not read the receipt; retake the photo with the whole receipt in frame and try again", err)
	}
	if raw == nil || len(raw.Items) == 0 {
		return nil, common.NewUserError("no items were found on the receipt; retake the photo with the item list in focus", common.ErrInvalidReceipt)
	}
	return raw, nil
}

// Prepare validates and normalizes a receipt and resolves every line.
func (r *Reconciler) Prepare(ctx context.Context, raw *model.RawReceipt) (*Draft, error) {
	return r.PrepareFunc(ctx, raw, nil)
}

// PrepareFunc is Prepare with a callback run as each line resolves. The
// callback runs concurrently and must be safe for concurrent use.
func (r *Reconciler) PrepareFunc(ctx context.Context, raw *model.RawReceipt, onResolved func(index int, res model.Resolution)) (*Draft, error) {
	if raw == nil || len(raw.Items) == 0 {
		return nil, common.NewUserError("the receipt has no items", common.ErrInvalidReceipt)
	}

	lines := make([]Line, 0, len(raw.Items))
	names := make([]string, 0, len(raw.Items))
	for i, item := range raw.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			slog.Warn("Dropping receipt line without a name", "line", i+1)
			continue
		}
		lines = append(lines, normalizeLine(len(lines), name, item))
		names = append(names, name)
	}
	if len(lines) == 0 {
		return nil, common.NewUserError("no item names could be read from the receipt; retake the photo with the item list in focus", common.ErrInvalidReceipt)
	}

	start := time.Now()
	resolutions, err := r.resolver.ResolveAllFunc(ctx, names, onResolved)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receipt items: %w", err)
	}
	for i := range lines {
		lines[i].Resolution = resolutions[i]
	}

	draft := &Draft{Receipt: *raw, Lines: lines, Dropped: len(raw.Items) - len(lines)}
	stats := draft.Stats()
	stats.Duration = time.Since(start)
	slog.Info("Prepared receipt",
		"items", stats.Total,
		"by_mapping", stats.ByMapping,
		"by_lexical", stats.ByLexical,
		"unresolved", stats.Unresolved,
		"dropped", draft.Dropped,
		"duration", stats.Duration)
	return draft, nil
}

// normalizeLine fills defaults and enforces total = quantity × unit price.
func normalizeLine(position int, name string, item model.RawItem) Line {
	line := Line{
		Position: position,
		RawName:  name,
		Quantity: decimal.NewFromInt(1),
		Unit:     model.DefaultUnit,
	}
	if item.Quantity != nil && item.Quantity.IsPositive() {
		line.Quantity = *item.Quantity
	}
	if item.Unit != nil {
		if unit := strings.ToLower(strings.TrimSpace(*item.Unit)); unit != "" {
			line.Unit = unit
		}
	}

	switch {
	case item.UnitPrice != nil:
		line.UnitPrice = *item.UnitPrice
		computed := line.Quantity.Mul(line.UnitPrice).Round(2)
		line.TotalPrice = computed
		if item.TotalPrice == nil || !item.TotalPrice.Equal(computed) {
			line.Recomputed = true
			if item.TotalPrice != nil {
				slog.Warn("Line total disagrees with quantity × unit price, using computed total",
					"item", name,
					"quantity", line.Quantity.String(),
					"unit_price", line.UnitPrice.String(),
					"reported_total", item.TotalPrice.String(),
					"computed_total", computed.String())
			}
		}
	case item.TotalPrice != nil:
		line.TotalPrice = *item.TotalPrice
		line.UnitPrice = item.TotalPrice.Div(line.Quantity).Round(2)
	}
	return line
}

// Commit stores the draft as a confirmed purchase in one transaction and
// queues its unresolved items for review.
func (r *Reconciler) Commit(ctx context.Context, draft *Draft, header HeaderApproval) (*Result, error) {
	if draft == nil {
		return nil, fmt.Errorf("%w: no draft", common.ErrInvalidReceipt)
	}
	if draft.closed {
		return nil, ErrDraftClosed
	}
	if !header.Approved {
		return nil, common.ErrHeaderNotApproved
	}

	purchase := &model.Purchase{
		Supplier:      firstString(header.Supplier, draft.Receipt.Supplier),
		InvoiceNumber: firstString(header.InvoiceNumber, draft.Receipt.InvoiceNumber),
		Date:          header.Date,
		Status:        model.PurchaseConfirmed,
	}
	if purchase.Date == nil {
		purchase.Date = draft.Receipt.Date
	}
	switch {
	case header.Total != nil:
		purchase.Total = *header.Total
	case draft.Receipt.Total != nil:
		purchase.Total = *draft.Receipt.Total
	default:
		purchase.Total = draft.LinesTotal()
	}

	for _, line := range draft.Lines {
		item := model.PurchaseItem{
			Position:   line.Position,
			RawName:    line.RawName,
			Quantity:   line.Quantity,
			Unit:       line.Unit,
			UnitPrice:  line.UnitPrice,
			TotalPrice: line.TotalPrice,
		}
		if res := line.Resolution; res.IsResolved() {
			productID := res.ProductID
			item.ProductID = &productID
			item.ResolutionSource = res.Source
			item.Confidence = res.Confidence
		} else {
			item.NeedsReview = true
		}
		purchase.Items = append(purchase.Items, item)
	}

	if err := r.storage.SavePurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to save purchase: %w", err)
	}
	draft.closed = true

	result := &Result{
		PurchaseID: purchase.ID,
		Total:      purchase.Total,
		Items:      len(purchase.Items),
	}

	refreshed := make(map[string]bool)
	var pending []string
	for _, item := range purchase.Items {
		if item.ProductID == nil {
			pending = append(pending, item.ID)
			continue
		}
		if refreshed[*item.ProductID] {
			continue
		}
		refreshed[*item.ProductID] = true
		if err := r.storage.RefreshAveragePrice(ctx, *item.ProductID); err != nil {
			common.LogWarn("Failed to refresh average price", common.Fields{"product_id": *item.ProductID, "error": err})
		}
	}
	result.UnresolvedCount = len(pending)
	if r.queue != nil && len(pending) > 0 {
		r.queue.Enqueue(pending...)
	}

	common.LogInfo("Committed purchase", common.Fields{
		"purchase_id": result.PurchaseID,
		"items":       result.Items,
		"unresolved":  result.UnresolvedCount,
		"total":       result.Total.StringFixed(2),
	})
	return result, nil
}

// Reconcile prepares and commits a receipt in one step.
func (r *Reconciler) Reconcile(ctx context.Context, raw *model.RawReceipt, header HeaderApproval) (*Result, error) {
	draft, err := r.Prepare(ctx, raw)
	if err != nil {
		return nil, err
	}
	return r.Commit(ctx, draft, header)
}

// Discard abandons a draft. Nothing was stored, so nothing is undone.
func (r *Reconciler) Discard(draft *Draft) {
	if draft == nil || draft.closed {
		return
	}
	draft.closed = true
	slog.Info("Discarded receipt draft", "items", len(draft.Lines))
}

// RejectPurchase marks a purchase rejected. Its unresolved items leave the
// review backlog.
func (r *Reconciler) RejectPurchase(ctx context.Context, purchaseID string) error {
	if err := r.storage.UpdatePurchaseStatus(ctx, purchaseID, model.PurchaseRejected); err != nil {
		return fmt.Errorf("failed to reject purchase: %w", err)
	}
	return nil
}

// ConfirmPurchase moves a purchase awaiting review to confirmed and queues
// its unresolved items.
func (r *Reconciler) ConfirmPurchase(ctx context.Context, purchaseID string) error {
	purchase, err := r.storage.GetPurchase(ctx, purchaseID)
	if err != nil {
		return fmt.Errorf("failed to load purchase: %w", err)
	}
	if purchase.Status != model.PurchasePendingReview {
		return fmt.Errorf("%w: purchase %s is %s", common.ErrInvalidTransition, purchaseID, purchase.Status)
	}
	if err := r.storage.UpdatePurchaseStatus(ctx, purchaseID, model.PurchaseConfirmed); err != nil {
		return fmt.Errorf("failed to confirm purchase: %w", err)
	}

	if r.queue != nil {
		var pending []string
		for _, item := range purchase.Items {
			if item.ProductID == nil {
				pending = append(pending, item.ID)
			}
		}
		r.queue.Enqueue(pending...)
	}
	return nil
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			trimmed := strings.TrimSpace(*v)
			return &trimmed
		}
	}
	return nil
}
