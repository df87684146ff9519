package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/engine"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/reconcile"
	"github.com/Veraticus/pantry/internal/testutil"
	"github.com/Veraticus/pantry/internal/testutil/catalog"
)

func setupReview(t *testing.T, rawNames ...string) (*testutil.TestDB, *confirmation.Workflow) {
	t.Helper()
	db := testutil.SetupTestDBWithCatalog(t, func(b catalog.Builder) catalog.Builder {
		return b.WithBasicProducts()
	})
	if len(rawNames) > 0 {
		db.SavePendingPurchase(rawNames...)
	}
	return db, confirmation.NewWorkflow(db.Storage, engine.New(db.Storage, nil))
}

func TestPrompter_Review(t *testing.T) {
	tests := []struct {
		name        string
		rawNames    []string
		input       string
		wantLinked  int
		wantCreated int
		wantSkipped int
		wantOutput  []string
	}{
		{
			name:       "associate with a candidate",
			rawNames:   []string{"TOMATE ITAL"},
			input:      "1\n",
			wantLinked: 1,
			wantOutput: []string{"TOMATE ITAL", "[1] Tomate", "Linked", `Learned alias "tomate ital"`},
		},
		{
			name:        "create a new product",
			rawNames:    []string{"TONHTE ITALIANO"},
			input:       "n\n\nTomate Italiano\nHortifruti\nkg\n",
			wantLinked:  1,
			wantCreated: 1,
			wantOutput:  []string{"No catalog product looks like this item", "Product name cannot be empty", "Created Tomate Italiano"},
		},
		{
			name:        "skip everything",
			rawNames:    []string{"XPTO A", "XPTO B"},
			input:       "s\ns\n",
			wantSkipped: 2,
			wantOutput:  []string{"Skipped XPTO A", "Skipped XPTO B", "Review Complete"},
		},
		{
			name:        "quit early",
			rawNames:    []string{"XPTO A", "XPTO B"},
			input:       "q\n",
			wantSkipped: 1,
			wantOutput:  []string{"XPTO A", "Review Complete"},
		},
		{
			name:       "invalid choice is re-prompted",
			rawNames:   []string{"TOMATE ITAL"},
			input:      "7\n1\n",
			wantLinked: 1,
			wantOutput: []string{"Invalid choice"},
		},
		{
			name:       "nothing to review",
			input:      "",
			wantOutput: []string{"Review Complete"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, workflow := setupReview(t, tt.rawNames...)
			var output bytes.Buffer
			prompter := NewCLIPrompter(strings.NewReader(tt.input), &output)

			stats, err := prompter.Review(context.Background(), workflow)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLinked, stats.Linked)
			assert.Equal(t, tt.wantCreated, stats.Created)
			assert.Equal(t, tt.wantSkipped, stats.Skipped)
			for _, want := range tt.wantOutput {
				assert.Contains(t, output.String(), want)
			}
		})
	}
}

func TestPrompter_ReviewAcceptsSuggestion(t *testing.T) {
	ctx := context.Background()
	db, workflow := setupReview(t, "TONHTE KG")
	tomato := db.MustGetProduct(catalog.ProductTomato)
	require.NoError(t, db.Storage.UpsertMapping(ctx, &model.LearnedMapping{
		Key:        "tonhte kg",
		ProductID:  tomato.ID,
		Confidence: model.ConfidenceAIGuess,
		Source:     model.SourceAISuggested,
	}))

	var output bytes.Buffer
	stats, err := NewCLIPrompter(strings.NewReader("a\n"), &output).Review(ctx, workflow)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Linked)
	assert.Contains(t, output.String(), "Suggested: Tomate")

	mapping, err := db.Storage.GetMapping(ctx, "tonhte kg")
	require.NoError(t, err)
	assert.True(t, mapping.Confirmed)
}

func TestPrompter_ReviewInputEnds(t *testing.T) {
	_, workflow := setupReview(t, "XPTO")
	var output bytes.Buffer

	_, err := NewCLIPrompter(strings.NewReader(""), &output).Review(context.Background(), workflow)
	require.ErrorIs(t, err, ErrInputTerminated)
}

func TestPrompter_ReviewCanceled(t *testing.T) {
	_, workflow := setupReview(t, "XPTO")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var output bytes.Buffer
	_, err := NewCLIPrompter(strings.NewReader("1\n"), &output).Review(ctx, workflow)
	require.Error(t, err)
}

func TestPrompter_ApproveHeader(t *testing.T) {
	supplier := "Feira"
	draft := &reconcile.Draft{
		Receipt: model.RawReceipt{Supplier: &supplier},
		Lines: []reconcile.Line{{
			RawName:    "QJ PARM",
			Quantity:   decimal.NewFromInt(2),
			Unit:       "un",
			UnitPrice:  decimal.RequireFromString("3.50"),
			TotalPrice: decimal.RequireFromString("7.00"),
			Recomputed: true,
			Resolution: model.Resolved("QJ PARM", "p1", 1.0, model.SourceLexical, true),
		}},
		Dropped: 1,
	}

	tests := []struct {
		name         string
		input        string
		wantApproved bool
		wantSupplier string
		wantDate     *time.Time
		wantTotal    string
		wantOutput   string
	}{
		{name: "approve", input: "a\n", wantApproved: true},
		{name: "discard", input: "d\n"},
		{
			name:         "edit every field",
			input:        "e\nFeira Livre\n16/03/2024\nR$ 1.234,56\n",
			wantApproved: true,
			wantSupplier: "Feira Livre",
			wantDate:     ptrTime(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)),
			wantTotal:    "1234.56",
		},
		{
			name:         "edit retries bad values",
			input:        "e\n\nyesterday\n2024-03-16\nlots\n12.5\n",
			wantApproved: true,
			wantDate:     ptrTime(time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)),
			wantTotal:    "12.5",
			wantOutput:   "Unrecognized amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			prompter := NewCLIPrompter(strings.NewReader(tt.input), &output)

			approval, err := prompter.ApproveHeader(context.Background(), draft)
			require.NoError(t, err)

			assert.Equal(t, tt.wantApproved, approval.Approved)
			assert.Contains(t, output.String(), "Feira")
			assert.Contains(t, output.String(), "recomputed")
			assert.Contains(t, output.String(), "1 unreadable lines left out")
			if tt.wantOutput != "" {
				assert.Contains(t, output.String(), tt.wantOutput)
			}

			if tt.wantSupplier == "" {
				assert.Nil(t, approval.Supplier)
			} else {
				require.NotNil(t, approval.Supplier)
				assert.Equal(t, tt.wantSupplier, *approval.Supplier)
			}
			if tt.wantDate == nil {
				assert.Nil(t, approval.Date)
			} else {
				require.NotNil(t, approval.Date)
				assert.True(t, tt.wantDate.Equal(*approval.Date))
			}
			if tt.wantTotal == "" {
				assert.Nil(t, approval.Total)
			} else {
				require.NotNil(t, approval.Total)
				assert.True(t, approval.Total.Equal(decimal.RequireFromString(tt.wantTotal)))
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "12.50", want: "12.5", ok: true},
		{input: "12,50", want: "12.5", ok: true},
		{input: "R$ 1.234,56", want: "1234.56", ok: true},
		{input: "-3", ok: false},
		{input: "abc", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseAmount(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(decimal.RequireFromString(tt.want)))
			}
		})
	}
}

func TestResolveProgress(t *testing.T) {
	var output bytes.Buffer
	progress := NewCLIPrompter(strings.NewReader(""), &output).ResolveProgress(2)

	progress(0, model.Resolution{})
	progress(1, model.Resolution{})
	assert.Contains(t, output.String(), "Resolving items")
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
