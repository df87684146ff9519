package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/engine"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
	"github.com/Veraticus/pantry/internal/testutil"
	"github.com/Veraticus/pantry/internal/testutil/catalog"
)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	next, ok := updated.(Model)
	require.True(t, ok)
	return next, cmd
}

// drain runs cmd and feeds its messages back until the chain ends or quits.
func drain(t *testing.T, m Model, cmd tea.Cmd) (Model, bool) {
	t.Helper()
	for i := 0; cmd != nil; i++ {
		require.Less(t, i, 20, "command chain did not settle")
		msg := cmd()
		if _, ok := msg.(tea.QuitMsg); ok {
			return m, true
		}
		m, cmd = send(t, m, msg)
	}
	return m, false
}

func setupReview(t *testing.T, rawNames ...string) (*testutil.TestDB, *confirmation.Workflow, Model) {
	t.Helper()
	db := testutil.SetupTestDBWithCatalog(t, func(b catalog.Builder) catalog.Builder {
		return b.WithBasicProducts()
	})
	if len(rawNames) > 0 {
		db.SavePendingPurchase(rawNames...)
	}
	workflow := confirmation.NewWorkflow(db.Storage, engine.New(db.Storage, nil))
	m := New(context.Background(), workflow)
	m, _ = drain(t, m, m.Init())
	return db, workflow, m
}

func TestModel_NothingToReview(t *testing.T) {
	_, _, m := setupReview(t)

	assert.Equal(t, StateDone, m.State())
	assert.NoError(t, m.fatal())
	assert.Contains(t, m.View(), "Review finished")
}

func TestModel_ChooseCandidate(t *testing.T) {
	db, workflow, m := setupReview(t, "TOMATE ITAL", "XPTO")
	tomato := db.MustGetProduct(catalog.ProductTomato)

	require.Equal(t, StateReviewing, m.State())
	assert.Equal(t, "TOMATE ITAL", m.current.Item.RawName)
	assert.Contains(t, m.View(), "Tomate")
	assert.Contains(t, m.View(), "Create new product")

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, quit := drain(t, m, cmd)
	require.False(t, quit)

	require.Equal(t, StateReviewing, m.State())
	assert.Equal(t, "XPTO", m.current.Item.RawName)
	assert.Equal(t, "Linked to Tomate (alias learnt)", m.status)

	product, err := db.Storage.GetProduct(context.Background(), tomato.ID)
	require.NoError(t, err)
	assert.Contains(t, product.Aliases, "tomate ital")

	m, cmd = send(t, m, keyRunes("s"))
	m, quit = drain(t, m, cmd)
	assert.True(t, quit)
	assert.Equal(t, StateDone, m.State())

	stats := workflow.Stats()
	assert.Equal(t, 1, stats.Linked)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.AliasesLearnt)
}

func TestModel_NumberKeySelects(t *testing.T) {
	_, workflow, m := setupReview(t, "TOMATE ITAL")

	m, cmd := send(t, m, keyRunes("1"))
	require.NotNil(t, cmd)
	_, quit := drain(t, m, cmd)
	assert.True(t, quit)
	assert.Equal(t, 1, workflow.Stats().Linked)
}

func TestModel_CursorBounds(t *testing.T) {
	_, _, m := setupReview(t, "TOMATE ITAL")
	require.Len(t, m.current.Candidates, 1)

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.cursor)

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.cursor)

	// The last option is always product creation.
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, StateNaming, m.State())
}

func TestModel_CreateProduct(t *testing.T) {
	db, workflow, m := setupReview(t, "LEITE INTEGRAL 1L")

	m, _ = send(t, m, keyRunes("n"))
	require.Equal(t, StateNaming, m.State())
	assert.Equal(t, "LEITE INTEGRAL 1L", m.input.Value())

	m.input.SetValue("Leite Integral")
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, confirmation.DefaultCategory, m.input.Value())

	m.input.SetValue("Laticínios")
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, model.DefaultUnit, m.input.Value())

	m, cmd = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, quit := drain(t, m, cmd)
	assert.True(t, quit)
	assert.Equal(t, StateDone, m.State())

	products, err := db.Storage.SearchProducts(context.Background(), "Leite Integral", 5)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NotNil(t, products[0].Category)
	assert.Equal(t, "Laticínios", *products[0].Category)
	assert.Equal(t, 1, workflow.Stats().Created)
}

func TestModel_CreateRequiresName(t *testing.T) {
	_, _, m := setupReview(t, "XPTO")

	m, _ = send(t, m, keyRunes("n"))
	m.input.SetValue("   ")
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Equal(t, StateNaming, m.State())
	require.Error(t, m.Err())
	assert.Contains(t, m.View(), "product name is required")

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateReviewing, m.State())
}

func TestModel_AcceptSuggestion(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDBWithCatalog(t, func(b catalog.Builder) catalog.Builder {
		return b.WithBasicProducts()
	})
	tomato := db.MustGetProduct(catalog.ProductTomato)
	db.SavePendingPurchase("TONHTE KG")
	require.NoError(t, db.Storage.UpsertMapping(ctx, &model.LearnedMapping{
		Key:        "tonhte kg",
		ProductID:  tomato.ID,
		Confidence: model.ConfidenceAIGuess,
		Source:     model.SourceAISuggested,
	}))

	workflow := confirmation.NewWorkflow(db.Storage, engine.New(db.Storage, nil))
	m := New(ctx, workflow)
	m, _ = drain(t, m, m.Init())
	require.NotNil(t, m.current.Suggested)
	assert.Contains(t, m.View(), "Suggested: Tomate")

	m, cmd := send(t, m, keyRunes("a"))
	_, quit := drain(t, m, cmd)
	assert.True(t, quit)

	mapping, err := db.Storage.GetMapping(ctx, "tonhte kg")
	require.NoError(t, err)
	assert.True(t, mapping.Confirmed)
}

func TestModel_QuitSkipsCurrent(t *testing.T) {
	_, workflow, m := setupReview(t, "XPTO", "ABC")

	m, cmd := send(t, m, keyRunes("q"))
	m, quit := drain(t, m, cmd)

	assert.True(t, quit)
	assert.Empty(t, m.View())
	assert.Equal(t, 1, workflow.Stats().Skipped)
	assert.Equal(t, confirmation.StateIdle, workflow.State())
	assert.Equal(t, 2, workflow.Pending())
}

type failingReviewer struct {
	err error
}

func (f failingReviewer) Next(context.Context) (*confirmation.Presentation, error) {
	return nil, f.err
}

func (f failingReviewer) Associate(context.Context, string) (*model.ConfirmationResult, error) {
	return nil, f.err
}

func (f failingReviewer) Create(context.Context, string, string, string) (*model.ConfirmationResult, error) {
	return nil, f.err
}

func (f failingReviewer) Skip(context.Context) error { return f.err }
func (f failingReviewer) Pending() int               { return 0 }
func (f failingReviewer) Stats() service.ReviewStats { return service.ReviewStats{} }

func TestModel_LoadErrorEndsSession(t *testing.T) {
	boom := errors.New("database is locked")
	m := New(context.Background(), failingReviewer{err: boom})

	m, quit := drain(t, m, m.Init())

	assert.True(t, quit)
	assert.Equal(t, StateDone, m.State())
	assert.ErrorIs(t, m.fatal(), boom)
	assert.Contains(t, m.View(), "database is locked")
}

func TestKeyMap_Help(t *testing.T) {
	keys := DefaultKeyMap()
	assert.NotEmpty(t, keys.ShortHelp())
	assert.Len(t, keys.FullHelp(), 3)
}
