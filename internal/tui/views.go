package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/pantry/internal/cli"
	"github.com/Veraticus/pantry/internal/model"
)

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.state {
	case StateLoading:
		body = m.theme.StatusPending.Render("Loading pending items...")
	case StateReviewing:
		body = m.reviewView()
	case StateNaming:
		body = m.namingView()
	case StateDone:
		body = m.doneView()
	}

	sections := []string{m.headerView(), body}
	if m.status != "" && m.state != StateDone {
		sections = append(sections, m.theme.StatusSuccess.Render(m.status))
	}
	if m.err != nil {
		sections = append(sections, m.theme.StatusError.Render(m.err.Error()))
	}
	if m.state == StateReviewing {
		sections = append(sections, m.help.View(m.keys))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	title := m.theme.Title.Render(cli.PantryIcon + " Pantry review")
	stats := m.reviewer.Stats()
	subtitle := m.theme.Subtitle.Render(fmt.Sprintf(
		"%d pending · %d linked · %d created · %d skipped",
		m.reviewer.Pending(), stats.Linked+stats.AutoLinked, stats.Created, stats.Skipped,
	))
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m Model) itemView(item model.PurchaseItem) string {
	var b strings.Builder
	b.WriteString(m.theme.Bold.Render(item.RawName))
	b.WriteString("\n")
	b.WriteString(m.theme.Normal.Render(fmt.Sprintf("%s %s × %s = %s",
		item.Quantity.String(), item.Unit, cli.FormatMoney(item.UnitPrice), cli.FormatMoney(item.TotalPrice))))
	return m.theme.RoundedBox.Render(b.String())
}

func (m Model) reviewView() string {
	p := m.current
	var b strings.Builder
	b.WriteString(m.itemView(p.Item))
	b.WriteString("\n\n")

	if p.Suggested != nil {
		b.WriteString(m.theme.Suggested.Render(fmt.Sprintf("%s Suggested: %s (press a to accept)", cli.RobotIcon, p.Suggested.Name)))
		b.WriteString("\n\n")
	}

	if len(p.Candidates) == 0 {
		b.WriteString(m.theme.StatusPending.Render("No similar products in the catalog."))
		b.WriteString("\n")
	}

	for i, product := range p.Candidates {
		line := fmt.Sprintf("%d. %s", i+1, product.Name)
		if product.Category != nil {
			line += fmt.Sprintf(" (%s)", *product.Category)
		}
		b.WriteString(m.optionLine(i, line))
		b.WriteString("\n")
	}
	b.WriteString(m.optionLine(len(p.Candidates), cli.NewIcon+" Create new product"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) optionLine(index int, text string) string {
	if index == m.cursor {
		return m.theme.Selected.Render("> " + text)
	}
	return m.theme.Normal.Render("  " + text)
}

func (m Model) namingView() string {
	var b strings.Builder
	b.WriteString(m.itemView(m.current.Item))
	b.WriteString("\n\n")
	b.WriteString(m.theme.Bold.Render(fmt.Sprintf("%s (%d/%d)", fieldLabels[m.field], m.field+1, fieldCount)))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(m.theme.Subtitle.Render("enter to continue · esc to cancel"))
	return b.String()
}

func (m Model) doneView() string {
	stats := m.reviewer.Stats()
	lines := []string{
		m.theme.StatusSuccess.Render(cli.ChartIcon + " Review finished"),
		fmt.Sprintf("Linked:         %d", stats.Linked),
		fmt.Sprintf("Auto-linked:    %d", stats.AutoLinked),
		fmt.Sprintf("Created:        %d", stats.Created),
		fmt.Sprintf("Skipped:        %d", stats.Skipped),
		fmt.Sprintf("Aliases learnt: %d", stats.AliasesLearnt),
	}
	return strings.Join(lines, "\n")
}
