package status

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/agentmon/internal/domain"
)

type styles struct {
	title        lipgloss.Style
	header       lipgloss.Style
	detail       lipgloss.Style
	warning      lipgloss.Style
	section      lipgloss.Style
	empty        lipgloss.Style
	tableHeader  lipgloss.Style
	cell         lipgloss.Style
	faint        lipgloss.Style
	statusColors map[domain.Status]lipgloss.Style
	limitKey     lipgloss.Style
	barBracket   lipgloss.Style
	barFill      lipgloss.Style
	barEmpty     lipgloss.Style
	colored      bool
}

func newStyles() styles {
	return styles{
		title:       lipgloss.NewStyle().Bold(true),
		header:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		detail:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:     lipgloss.NewStyle().MarginTop(1),
		empty:       lipgloss.NewStyle().Faint(true),
		tableHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")).Padding(0, 1),
		cell:        lipgloss.NewStyle().Padding(0, 1),
		faint:       lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Padding(0, 1),
		statusColors: map[domain.Status]lipgloss.Style{
			domain.StatusAttention: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")).Padding(0, 1),
			domain.StatusWorking:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Padding(0, 1),
			domain.StatusQuestion:  lipgloss.NewStyle().Foreground(lipgloss.Color("177")).Padding(0, 1),
			domain.StatusClosed:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1),
		},
		limitKey:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		colored:    true,
	}
}

func plainStyles() styles {
	base := lipgloss.NewStyle()
	padded := base.Padding(0, 1)
	return styles{
		title:       base,
		header:      base,
		detail:      base,
		warning:     base,
		section:     base.MarginTop(1),
		empty:       base,
		tableHeader: padded,
		cell:        padded,
		faint:       padded,
		statusColors: map[domain.Status]lipgloss.Style{
			domain.StatusAttention: padded,
			domain.StatusWorking:   padded,
			domain.StatusQuestion:  padded,
			domain.StatusClosed:    padded,
		},
		limitKey:   base,
		barBracket: base,
		barFill:    base,
		barEmpty:   base,
	}
}
