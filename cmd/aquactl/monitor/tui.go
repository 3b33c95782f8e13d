package monitor

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mdouchement/aquad"
)

type model struct {
	table table.Model
}

func newTUI() *model {
	columns := []table.Column{
		{Title: "Fans", Width: 20},
		{Title: "Speeds", Width: 20},
		{Title: "Driven by", Width: 30},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		Foreground(lipgloss.Color("#00afff")).
		BorderForeground(lipgloss.Color("#00afff")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffff")).
		Bold(false)
	t.SetStyles(s)

	return &model{
		table: t,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height)
	case []aquad.Evaluation:
		m.update(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	return m.table.View()
}

func (m *model) update(evals []aquad.Evaluation) error {
	var n int
	for _, eval := range evals {
		if eval.PWM == 0 {
			continue
		}
		evals[n] = eval
		n++
	}
	evals = evals[:n]

	//

	slices.SortStableFunc(evals, func(a, b aquad.Evaluation) int {
		if a.ID < b.ID {
			return -1
		}
		return 1
	})

	rows := make([]table.Row, 0, len(evals))
	for _, eval := range evals {
		rows = append(rows, table.Row{
			fmt.Sprintf("fan%d(%s)", eval.ID+1, eval.Label),
			fmt.Sprintf("%4d RPM (%2d%%)", eval.RPM, eval.PWM),
			fmt.Sprintf("%s @ %.1f°C", eval.TemperatureName, eval.Temperature),
		})
	}

	m.table.SetRows(rows)
	return nil
}
