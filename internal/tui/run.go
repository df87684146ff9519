package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/pantry/internal/service"
)

// Run shows the review screen until every pending item is handled or the
// user quits. Stats reflect whatever was decided before exiting.
func Run(ctx context.Context, reviewer Reviewer) (service.ReviewStats, error) {
	if reviewer == nil {
		return service.ReviewStats{}, fmt.Errorf("reviewer is required")
	}

	program := tea.NewProgram(New(ctx, reviewer), tea.WithContext(ctx), tea.WithAltScreen())
	final, err := program.Run()
	stats := reviewer.Stats()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return stats, ctx.Err()
		}
		return stats, fmt.Errorf("review screen failed: %w", err)
	}

	if m, ok := final.(Model); ok {
		if err := m.fatal(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
