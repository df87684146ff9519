package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/engine"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
	"github.com/Veraticus/pantry/internal/testutil"
	"github.com/Veraticus/pantry/internal/testutil/catalog"
)

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*model.RawReceipt, error) {
	args := m.Called(ctx, image, mimeType)
	raw, _ := args.Get(0).(*model.RawReceipt)
	return raw, args.Error(1)
}

type recordingQueue struct {
	ids []string
}

func (q *recordingQueue) Enqueue(ids ...string) int {
	q.ids = append(q.ids, ids...)
	return len(ids)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func str(s string) *string {
	return &s
}

func approved() HeaderApproval {
	return HeaderApproval{Approved: true}
}

func setupReconcileDB(t *testing.T) *testutil.TestDB {
	t.Helper()
	return testutil.SetupTestDBWithCatalog(t, func(b catalog.Builder) catalog.Builder {
		return b.WithBasicProducts().WithProduct(catalog.ProductParmesan, "qj parm")
	})
}

func TestNormalizeLine(t *testing.T) {
	tests := []struct {
		name           string
		item           model.RawItem
		wantQuantity   string
		wantUnit       string
		wantUnitPrice  string
		wantTotal      string
		wantRecomputed bool
	}{
		{
			name:           "recomputes a disagreeing total",
			item:           model.RawItem{Quantity: dec("2"), UnitPrice: dec("3.50"), TotalPrice: dec("6.00")},
			wantQuantity:   "2",
			wantUnit:       model.DefaultUnit,
			wantUnitPrice:  "3.5",
			wantTotal:      "7",
			wantRecomputed: true,
		},
		{
			name:          "keeps an agreeing total",
			item:          model.RawItem{Quantity: dec("1.5"), UnitPrice: dec("4.00"), TotalPrice: dec("6.00"), Unit: str(" KG ")},
			wantQuantity:  "1.5",
			wantUnit:      "kg",
			wantUnitPrice: "4",
			wantTotal:     "6",
		},
		{
			name:           "fills a missing total",
			item:           model.RawItem{Quantity: dec("3"), UnitPrice: dec("1.99")},
			wantQuantity:   "3",
			wantUnit:       model.DefaultUnit,
			wantUnitPrice:  "1.99",
			wantTotal:      "5.97",
			wantRecomputed: true,
		},
		{
			name:          "derives unit price from total",
			item:          model.RawItem{Quantity: dec("3"), TotalPrice: dec("10.00")},
			wantQuantity:  "3",
			wantUnit:      model.DefaultUnit,
			wantUnitPrice: "3.33",
			wantTotal:     "10",
		},
		{
			name:          "defaults quantity to one",
			item:          model.RawItem{UnitPrice: dec("2.50"), TotalPrice: dec("2.50")},
			wantQuantity:  "1",
			wantUnit:      model.DefaultUnit,
			wantUnitPrice: "2.5",
			wantTotal:     "2.5",
		},
		{
			name:          "no prices at all",
			item:          model.RawItem{},
			wantQuantity:  "1",
			wantUnit:      model.DefaultUnit,
			wantUnitPrice: "0",
			wantTotal:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := normalizeLine(0, "ITEM", tt.item)
			assert.True(t, line.Quantity.Equal(decimal.RequireFromString(tt.wantQuantity)), "quantity %s", line.Quantity)
			assert.Equal(t, tt.wantUnit, line.Unit)
			assert.True(t, line.UnitPrice.Equal(decimal.RequireFromString(tt.wantUnitPrice)), "unit price %s", line.UnitPrice)
			assert.True(t, line.TotalPrice.Equal(decimal.RequireFromString(tt.wantTotal)), "total %s", line.TotalPrice)
			assert.Equal(t, tt.wantRecomputed, line.Recomputed)
		})
	}
}

func TestPrepare_Validation(t *testing.T) {
	db := setupReconcileDB(t)
	reconciler := New(db.Storage, engine.New(db.Storage, nil))

	tests := []struct {
		name string
		raw  *model.RawReceipt
	}{
		{name: "nil receipt", raw: nil},
		{name: "no items", raw: &model.RawReceipt{}},
		{name: "only blank item names", raw: &model.RawReceipt{Items: []model.RawItem{{Name: ""}, {Name: "  "}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconciler.Prepare(context.Background(), tt.raw)
			var userErr *common.UserError
			require.ErrorAs(t, err, &userErr)
			require.ErrorIs(t, err, common.ErrInvalidReceipt)
		})
	}
}

func TestReconcile_ResolvedByAlias(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)
	parmesan := db.MustGetProduct(catalog.ProductParmesan)

	matcher := engine.NewMockMatcher(nil)
	queue := &recordingQueue{}
	reconciler := New(db.Storage, engine.New(db.Storage, matcher), WithQueue(queue))

	result, err := reconciler.Reconcile(ctx, &model.RawReceipt{
		Supplier: str("Mercado Central"),
		Items: []model.RawItem{
			{Name: "QJ PARM", Quantity: dec("1"), UnitPrice: dec("42.90"), TotalPrice: dec("42.90")},
		},
	}, approved())
	require.NoError(t, err)
	assert.Zero(t, result.UnresolvedCount)
	assert.Empty(t, queue.ids)
	assert.Zero(t, matcher.CallCount())

	purchase, err := db.Storage.GetPurchase(ctx, result.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseConfirmed, purchase.Status)
	require.NotNil(t, purchase.Supplier)
	assert.Equal(t, "Mercado Central", *purchase.Supplier)
	require.Len(t, purchase.Items, 1)

	item := purchase.Items[0]
	require.NotNil(t, item.ProductID)
	assert.Equal(t, parmesan.ID, *item.ProductID)
	assert.False(t, item.NeedsReview)
	assert.Equal(t, model.SourceLexical, item.ResolutionSource)
	assert.InDelta(t, 1.0, item.Confidence, 1e-9)

	product, err := db.Storage.GetProduct(ctx, parmesan.ID)
	require.NoError(t, err)
	assert.True(t, product.AveragePrice.Equal(decimal.RequireFromString("42.90")))
}

func TestReconcile_OracleUnreachable(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)

	matcher := engine.NewMockMatcher(nil)
	matcher.Err = common.ErrOracleUnavailable
	resolver := engine.New(db.Storage, matcher)
	workflow := confirmation.NewWorkflow(db.Storage, resolver)
	reconciler := New(db.Storage, resolver, WithQueue(workflow))

	result, err := reconciler.Reconcile(ctx, &model.RawReceipt{
		Items: []model.RawItem{{Name: "XPTO 500G", UnitPrice: dec("9.99")}},
	}, approved())
	require.NoError(t, err)
	assert.Equal(t, 1, result.UnresolvedCount)
	assert.Equal(t, 1, workflow.Pending())

	purchase, err := db.Storage.GetPurchase(ctx, result.PurchaseID)
	require.NoError(t, err)
	assert.True(t, purchase.Items[0].NeedsReview)
	assert.Nil(t, purchase.Items[0].ProductID)

	presentation, err := workflow.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, purchase.Items[0].ID, presentation.Item.ID)
	assert.Empty(t, presentation.Candidates)
	assert.Nil(t, presentation.Suggested)
}

func TestReconcile_DropsNamelessLines(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)
	parmesan := db.MustGetProduct(catalog.ProductParmesan)

	matcher := engine.NewMockMatcher(nil)
	queue := &recordingQueue{}
	reconciler := New(db.Storage, engine.New(db.Storage, matcher), WithQueue(queue))

	raw := &model.RawReceipt{
		Items: []model.RawItem{
			{Name: "QJ PARM", Quantity: dec("1"), UnitPrice: dec("20.00")},
			{Name: "", Quantity: dec("1"), UnitPrice: dec("3.00")},
			{Name: "TONHTE KG", Quantity: dec("2"), UnitPrice: dec("4.00")},
		},
	}
	assert.Equal(t, 2, raw.NamedItems())

	draft, err := reconciler.Prepare(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, draft.Dropped)
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, "QJ PARM", draft.Lines[0].RawName)
	assert.Equal(t, "TONHTE KG", draft.Lines[1].RawName)
	assert.Equal(t, 1, draft.Lines[1].Position)

	result, err := reconciler.Commit(ctx, draft, approved())
	require.NoError(t, err)
	assert.Equal(t, 1, result.UnresolvedCount)
	assert.Len(t, queue.ids, 1)

	purchase, err := db.Storage.GetPurchase(ctx, result.PurchaseID)
	require.NoError(t, err)
	require.Len(t, purchase.Items, 2)
	require.NotNil(t, purchase.Items[0].ProductID)
	assert.Equal(t, parmesan.ID, *purchase.Items[0].ProductID)
	assert.True(t, purchase.Items[1].NeedsReview)
	assert.True(t, purchase.Total.Equal(decimal.RequireFromString("28.00")))
}

func TestReconcile_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)
	tomato := db.MustGetProduct(catalog.ProductTomato)

	matcher := engine.NewMockMatcher(map[string][]string{"TONHTE KG": {tomato.ID}})
	reconciler := New(db.Storage, engine.New(db.Storage, matcher))

	draft, err := reconciler.Prepare(ctx, &model.RawReceipt{
		Items: []model.RawItem{{Name: "TONHTE KG"}, {Name: "QJ PARM"}},
	})
	require.NoError(t, err)
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, "TONHTE KG", draft.Lines[0].RawName)
	assert.Equal(t, "QJ PARM", draft.Lines[1].RawName)
	assert.Equal(t, 1, draft.UnresolvedCount())

	result, err := reconciler.Commit(ctx, draft, approved())
	require.NoError(t, err)

	purchase, err := db.Storage.GetPurchase(ctx, result.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, "TONHTE KG", purchase.Items[0].RawName)
	assert.Equal(t, 0, purchase.Items[0].Position)
	assert.Equal(t, "QJ PARM", purchase.Items[1].RawName)
	assert.Equal(t, 1, purchase.Items[1].Position)
}

func TestCommit_RequiresApproval(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)
	reconciler := New(db.Storage, engine.New(db.Storage, nil))

	draft, err := reconciler.Prepare(ctx, &model.RawReceipt{Items: []model.RawItem{{Name: "ARROZ"}}})
	require.NoError(t, err)

	_, err = reconciler.Commit(ctx, draft, HeaderApproval{})
	require.ErrorIs(t, err, common.ErrHeaderNotApproved)

	purchases, err := db.Storage.ListPurchases(ctx, service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, purchases)

	_, err = reconciler.Commit(ctx, draft, approved())
	require.NoError(t, err, "an unapproved attempt leaves the draft usable")

	_, err = reconciler.Commit(ctx, draft, approved())
	require.ErrorIs(t, err, ErrDraftClosed)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)
	reconciler := New(db.Storage, engine.New(db.Storage, nil))

	draft, err := reconciler.Prepare(ctx, &model.RawReceipt{Items: []model.RawItem{{Name: "ARROZ"}}})
	require.NoError(t, err)

	reconciler.Discard(draft)
	_, err = reconciler.Commit(ctx, draft, approved())
	require.ErrorIs(t, err, ErrDraftClosed)

	purchases, err := db.Storage.ListPurchases(ctx, service.PurchaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, purchases)
}

func TestCommit_HeaderFallbacks(t *testing.T) {
	ctx := context.Background()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	approvedDate := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)

	items := []model.RawItem{
		{Name: "ARROZ", Quantity: dec("2"), UnitPrice: dec("3.50"), TotalPrice: dec("6.00")},
		{Name: "CEBOLA", UnitPrice: dec("1.25")},
	}

	tests := []struct {
		name         string
		raw          model.RawReceipt
		header       HeaderApproval
		wantTotal    string
		wantSupplier string
		wantDate     time.Time
	}{
		{
			name:      "sum of lines when no total is known",
			raw:       model.RawReceipt{Items: items, Supplier: str("Feira"), Date: &date},
			header:    approved(),
			wantTotal: "8.25", wantSupplier: "Feira", wantDate: date,
		},
		{
			name:      "extracted total",
			raw:       model.RawReceipt{Items: items, Total: dec("8.30"), Supplier: str("Feira"), Date: &date},
			header:    approved(),
			wantTotal: "8.30", wantSupplier: "Feira", wantDate: date,
		},
		{
			name: "approved fields override extraction",
			raw:  model.RawReceipt{Items: items, Total: dec("8.30"), Supplier: str("Feira"), Date: &date},
			header: HeaderApproval{
				Approved: true,
				Supplier: str("Feira Livre"),
				Date:     &approvedDate,
				Total:    dec("8.25"),
			},
			wantTotal: "8.25", wantSupplier: "Feira Livre", wantDate: approvedDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupReconcileDB(t)
			reconciler := New(db.Storage, engine.New(db.Storage, nil))

			raw := tt.raw
			result, err := reconciler.Reconcile(ctx, &raw, tt.header)
			require.NoError(t, err)
			assert.True(t, result.Total.Equal(decimal.RequireFromString(tt.wantTotal)), "total %s", result.Total)

			purchase, err := db.Storage.GetPurchase(ctx, result.PurchaseID)
			require.NoError(t, err)
			assert.True(t, purchase.Total.Equal(decimal.RequireFromString(tt.wantTotal)))
			require.NotNil(t, purchase.Supplier)
			assert.Equal(t, tt.wantSupplier, *purchase.Supplier)
			require.NotNil(t, purchase.Date)
			assert.True(t, tt.wantDate.Equal(*purchase.Date))
			assert.True(t, purchase.Items[0].TotalPrice.Equal(decimal.RequireFromString("7.00")))
		})
	}
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)
	image := []byte{0xff, 0xd8, 0xff}

	t.Run("no extractor configured", func(t *testing.T) {
		reconciler := New(db.Storage, engine.New(db.Storage, nil))
		_, err := reconciler.Extract(ctx, image, "image/jpeg")
		var userErr *common.UserError
		require.ErrorAs(t, err, &userErr)
		require.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("oracle failure", func(t *testing.T) {
		extractor := &mockExtractor{}
		extractor.On("ExtractReceipt", mock.Anything, image, "image/jpeg").
			Return(nil, common.ErrOracleUnavailable).Once()

		reconciler := New(db.Storage, engine.New(db.Storage, nil), WithExtractor(extractor))
		_, err := reconciler.Extract(ctx, image, "image/jpeg")
		var userErr *common.UserError
		require.ErrorAs(t, err, &userErr)
		require.ErrorIs(t, err, common.ErrOracleUnavailable)
		extractor.AssertExpectations(t)
	})

	t.Run("nothing extracted", func(t *testing.T) {
		extractor := &mockExtractor{}
		extractor.On("ExtractReceipt", mock.Anything, image, "image/png").
			Return(&model.RawReceipt{Supplier: str("Feira")}, nil).Once()

		reconciler := New(db.Storage, engine.New(db.Storage, nil), WithExtractor(extractor))
		_, err := reconciler.Extract(ctx, image, "image/png")
		require.ErrorIs(t, err, common.ErrInvalidReceipt)
		extractor.AssertExpectations(t)
	})

	t.Run("extracted", func(t *testing.T) {
		extractor := &mockExtractor{}
		extractor.On("ExtractReceipt", mock.Anything, image, "image/jpeg").
			Return(&model.RawReceipt{Items: []model.RawItem{{Name: "ARROZ"}}}, nil).Once()

		reconciler := New(db.Storage, engine.New(db.Storage, nil), WithExtractor(extractor))
		raw, err := reconciler.Extract(ctx, image, "image/jpeg")
		require.NoError(t, err)
		require.Len(t, raw.Items, 1)
		extractor.AssertExpectations(t)
	})

	t.Run("empty image", func(t *testing.T) {
		extractor := &mockExtractor{}
		reconciler := New(db.Storage, engine.New(db.Storage, nil), WithExtractor(extractor))
		_, err := reconciler.Extract(ctx, nil, "image/jpeg")
		require.ErrorIs(t, err, common.ErrInvalidReceipt)
		extractor.AssertNotCalled(t, "ExtractReceipt", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPurchaseStatusTransitions(t *testing.T) {
	ctx := context.Background()
	db := setupReconcileDB(t)
	queue := &recordingQueue{}
	reconciler := New(db.Storage, engine.New(db.Storage, nil), WithQueue(queue))

	price := decimal.RequireFromString("2.00")
	imported := &model.Purchase{
		Status: model.PurchasePendingReview,
		Total:  price,
		Items: []model.PurchaseItem{{
			RawName: "XPTO", Quantity: decimal.NewFromInt(1), Unit: model.DefaultUnit,
			UnitPrice: price, TotalPrice: price, NeedsReview: true,
		}},
	}
	require.NoError(t, db.Storage.SavePurchase(ctx, imported))

	require.NoError(t, reconciler.ConfirmPurchase(ctx, imported.ID))
	assert.Equal(t, []string{imported.Items[0].ID}, queue.ids)

	err := reconciler.ConfirmPurchase(ctx, imported.ID)
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	require.NoError(t, reconciler.RejectPurchase(ctx, imported.ID))
	purchase, err := db.Storage.GetPurchase(ctx, imported.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseRejected, purchase.Status)

	pending, err := db.Storage.GetPendingItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = reconciler.RejectPurchase(ctx, "missing")
	require.True(t, errors.Is(err, common.ErrNotFound))
}
