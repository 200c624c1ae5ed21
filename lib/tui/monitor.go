// Package tui provides an interactive terminal monitor for a running
// resource pool. It uses BubbleTea for the application framework and renders
// a periodically refreshed snapshot of pool statistics.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/poolsmith/respool/lib/pool"
)

// StatsFunc supplies the monitor with fresh pool statistics.
type StatsFunc func() pool.Stats

// Config holds monitor configuration.
type Config struct {
	// Title is shown in the monitor header.
	Title string
	// RefreshInterval is how often statistics are re-sampled.
	// Default: 1 second.
	RefreshInterval time.Duration
}

// Model is the monitor's BubbleTea model.
type Model struct {
	statsFn StatsFunc
	cfg     Config
	stats   pool.Stats
	width   int
	height  int
	ready   bool
	sampled time.Time
}

type tickMsg time.Time

// New creates a monitor model reading statistics through statsFn.
func New(statsFn StatsFunc, cfg Config) Model {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Second
	}
	if cfg.Title == "" {
		cfg.Title = "respool"
	}
	return Model{
		statsFn: statsFn,
		cfg:     cfg,
		stats:   statsFn(),
		sampled: time.Now(),
		ready:   true,
	}
}

// Init initializes the monitor model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.tick(),
		tea.SetWindowTitle(m.cfg.Title),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.stats = m.statsFn()
			m.sampled = time.Now()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats = m.statsFn()
		m.sampled = time.Now()
		return m, m.tick()
	}

	return m, nil
}

// View renders the monitor.
func (m Model) View() string {
	if !m.ready {
		return styles.Muted.Render("Loading pool statistics...")
	}

	s := m.stats
	var b strings.Builder

	b.WriteString(styles.Title.Render(m.cfg.Title + " monitor"))
	b.WriteString("\n\n")

	util := utilizationStyle(s.NumInUse, s.MaxSize)
	occupancy := lipgloss.JoinVertical(lipgloss.Left,
		styles.BoxTitle.Render("Occupancy"),
		"",
		row("Capacity", fmt.Sprintf("%d", s.MaxSize)),
		row("Live", fmt.Sprintf("%d", s.NumOpen)),
		row("In use", util.Render(fmt.Sprintf("%d", s.NumInUse))),
		row("Idle", fmt.Sprintf("%d", s.NumIdle)),
		row("Waiting", fmt.Sprintf("%d", s.NumWaiting)),
	)
	b.WriteString(styles.Box.Render(occupancy))
	b.WriteString("\n\n")

	lifetime := lipgloss.JoinVertical(lipgloss.Left,
		styles.BoxTitle.Render("Lifetime"),
		"",
		row("Created", fmt.Sprintf("%d", s.TotalCreated)),
		row("Acquires", fmt.Sprintf("%d (%d ok, %d failed)",
			s.AcquireCount, s.AcquireSuccess, s.AcquireFailed)),
		row("Timeouts", fmt.Sprintf("%d", s.TimeoutCount)),
		row("Releases", fmt.Sprintf("%d", s.ReleaseCount)),
		row("Discarded", fmt.Sprintf("%d validation, %d caller",
			s.ValidationFails, s.DiscardCount)),
		row("Wait time", fmt.Sprintf("%s over %d waits",
			s.WaitTime.Round(time.Millisecond), s.WaitCount)),
	)
	b.WriteString(styles.Box.Render(lifetime))
	b.WriteString("\n")

	b.WriteString(styles.HelpText.Render(fmt.Sprintf(
		"sampled %s ago • r refresh • q quit",
		time.Since(m.sampled).Round(time.Second))))

	return b.String()
}

// tick schedules the next refresh.
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// row formats a label/value line.
func row(label, value string) string {
	return styles.Muted.Width(12).Render(label+":") + " " + value
}

// Run starts the monitor and blocks until the user quits.
func Run(statsFn StatsFunc, cfg Config) error {
	_, err := tea.NewProgram(New(statsFn, cfg), tea.WithAltScreen()).Run()
	return err
}
