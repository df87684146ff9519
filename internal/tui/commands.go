package tui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/pantry/internal/common"
)

// next asks the reviewer for the following item.
func (m Model) next() tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	return func() tea.Msg {
		presentation, err := reviewer.Next(ctx)
		if errors.Is(err, common.ErrNoPendingItems) {
			return doneMsg{}
		}
		if err != nil {
			return errMsg{err: err}
		}
		return presentationMsg{presentation: presentation}
	}
}

func (m Model) associate(productID string) tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	return func() tea.Msg {
		result, err := reviewer.Associate(ctx, productID)
		if err != nil {
			return errMsg{err: err}
		}
		return confirmedMsg{result: result}
	}
}

func (m Model) create(name, category, unit string) tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	return func() tea.Msg {
		result, err := reviewer.Create(ctx, name, category, unit)
		if err != nil {
			return errMsg{err: err}
		}
		return confirmedMsg{result: result}
	}
}

// skip defers the current item. With quit set the program exits afterwards.
func (m Model) skip(quit bool) tea.Cmd {
	ctx, reviewer := m.ctx, m.reviewer
	return func() tea.Msg {
		if err := reviewer.Skip(ctx); err != nil {
			if quit {
				return tea.Quit()
			}
			return errMsg{err: err}
		}
		return skippedMsg{quit: quit}
	}
}
