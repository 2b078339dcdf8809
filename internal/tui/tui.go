package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func NewApp(endpoint string, interval time.Duration) *Model {
	return &Model{
		client:   NewStatusClient(endpoint),
		interval: interval,
		fetching: true,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.client.PollCmd(), m.tick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit

		case "r":
			if m.fetching {
				return m, nil
			}

			m.fetching = true
			return m, m.client.PollCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		// skip a beat rather than stacking polls behind a slow gateway
		if m.fetching {
			return m, m.tick()
		}

		m.fetching = true
		return m, tea.Batch(m.client.PollCmd(), m.tick())

	case StatusMsg:
		m.fetching = false
		m.status = msg.status
		m.healthy = msg.healthy
		m.err = nil
		m.lastPoll = msg.at
		m.pollCount++

	case ErrorMsg:
		m.fetching = false
		m.err = msg.err
		m.healthy = false
		m.lastPoll = msg.at
		m.pollCount++
	}

	return m, nil
}

func (m *Model) View() string {
	return render(m)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
