// Package tui provides the full-screen review interface for pending purchase items.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/model"
	"github.com/Veraticus/pantry/internal/service"
	"github.com/Veraticus/pantry/internal/tui/themes"
)

// Reviewer is the review session the screen drives.
type Reviewer interface {
	Next(ctx context.Context) (*confirmation.Presentation, error)
	Associate(ctx context.Context, productID string) (*model.ConfirmationResult, error)
	Create(ctx context.Context, name, category, unit string) (*model.ConfirmationResult, error)
	Skip(ctx context.Context) error
	Pending() int
	Stats() service.ReviewStats
}

var _ Reviewer = (*confirmation.Workflow)(nil)

// State represents the current screen.
type State int

// Screen states.
const (
	StateLoading State = iota
	StateReviewing
	StateNaming
	StateDone
)

// Fields collected when creating a product, in prompt order.
const (
	fieldName = iota
	fieldCategory
	fieldUnit
	fieldCount
)

var fieldLabels = [fieldCount]string{"Product name", "Category", "Unit"}

// Model is the bubbletea model of the review screen.
type Model struct {
	ctx      context.Context
	reviewer Reviewer
	err      error
	current  *confirmation.Presentation
	status   string
	keys     KeyMap
	theme    themes.Theme
	help     help.Model
	input    textinput.Model
	fields   [fieldCount]string
	field    int
	cursor   int
	state    State
	width    int
	height   int
	quitting bool
}

// New creates a review screen bound to reviewer.
func New(ctx context.Context, reviewer Reviewer) Model {
	input := textinput.New()
	input.CharLimit = 80
	input.Width = 40

	return Model{
		ctx:      ctx,
		reviewer: reviewer,
		keys:     DefaultKeyMap(),
		theme:    themes.Default,
		help:     help.New(),
		input:    input,
		state:    StateLoading,
	}
}

// Init loads the first pending item.
func (m Model) Init() tea.Cmd {
	return m.next()
}

// Update handles messages and user input.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case presentationMsg:
		m.current = msg.presentation
		m.cursor = 0
		m.err = nil
		m.state = StateReviewing
		return m, nil

	case confirmedMsg:
		m.status = describeResult(msg.result)
		m.current = nil
		m.state = StateLoading
		return m, m.next()

	case skippedMsg:
		m.current = nil
		if msg.quit {
			return m, tea.Quit
		}
		m.status = "Skipped"
		m.state = StateLoading
		return m, m.next()

	case doneMsg:
		m.current = nil
		m.state = StateDone
		return m, tea.Quit

	case errMsg:
		m.err = msg.err
		if m.current == nil {
			m.state = StateDone
			return m, tea.Quit
		}
		m.state = StateReviewing
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.state == StateNaming {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case StateReviewing:
		return m.handleReviewKey(msg)
	case StateNaming:
		return m.handleNamingKey(msg)
	default:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	options := len(m.current.Candidates) + 1

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, m.skip(true)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < options-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Skip):
		return m, m.skip(false)

	case key.Matches(msg, m.keys.New):
		return m.startNaming()

	case key.Matches(msg, m.keys.Accept):
		if m.current.Suggested != nil {
			return m, m.associate(m.current.Suggested.ID)
		}

	case key.Matches(msg, m.keys.Select):
		return m.choose(m.cursor)

	default:
		// Number keys jump straight to a candidate.
		if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(m.current.Candidates) {
			return m.choose(n - 1)
		}
	}
	return m, nil
}

func (m Model) choose(index int) (tea.Model, tea.Cmd) {
	if index >= len(m.current.Candidates) {
		return m.startNaming()
	}
	return m, m.associate(m.current.Candidates[index].ID)
}

func (m Model) startNaming() (tea.Model, tea.Cmd) {
	m.state = StateNaming
	m.field = fieldName
	m.fields = [fieldCount]string{}
	m.fields[fieldName] = strings.TrimSpace(m.current.Item.RawName)
	m.fields[fieldCategory] = confirmation.DefaultCategory
	m.fields[fieldUnit] = m.current.Item.Unit
	m.err = nil
	m.loadField()
	m.input.Focus()
	return m, textinput.Blink
}

func (m *Model) loadField() {
	m.input.Placeholder = fieldLabels[m.field]
	m.input.SetValue(m.fields[m.field])
	m.input.CursorEnd()
}

func (m Model) handleNamingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, m.skip(true)

	case tea.KeyEsc:
		m.input.Blur()
		m.state = StateReviewing
		return m, nil

	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		if m.field == fieldName && value == "" {
			m.err = common.NewUserError("product name is required", nil)
			return m, nil
		}
		m.err = nil
		m.fields[m.field] = value
		m.field++
		if m.field < fieldCount {
			m.loadField()
			return m, nil
		}
		m.input.Blur()
		m.state = StateLoading
		return m, m.create(m.fields[fieldName], m.fields[fieldCategory], m.fields[fieldUnit])
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// State returns the current screen.
func (m Model) State() State {
	return m.state
}

// Err returns the last error reported by the reviewer.
func (m Model) Err() error {
	return m.err
}

func describeResult(result *model.ConfirmationResult) string {
	if result == nil {
		return ""
	}
	switch {
	case result.Created:
		return fmt.Sprintf("Created %s", result.Product.Name)
	case result.AliasAdded:
		return fmt.Sprintf("Linked to %s (alias learnt)", result.Product.Name)
	default:
		return fmt.Sprintf("Linked to %s", result.Product.Name)
	}
}

// fatal reports whether the session ended because of an error.
func (m Model) fatal() error {
	if m.state == StateDone && m.err != nil && !errors.Is(m.err, common.ErrNoPendingItems) {
		return m.err
	}
	return nil
}
