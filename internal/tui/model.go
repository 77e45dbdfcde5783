package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"editorswarm/internal/metrics"
	"editorswarm/internal/pool"
	"editorswarm/internal/runner"
	"editorswarm/internal/stats"
)

// recentResults caps the scrolling list of finished scenarios.
const recentResults = 10

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to refresh the display.
type TickMsg time.Time

// ResultMsg carries one finished scenario.
type ResultMsg struct {
	Result runner.TestResult
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// SnapshotSource provides the live session state the dashboard renders.
// *session.Session implements it.
type SnapshotSource interface {
	Summary() stats.Summary
	PoolStats() pool.Stats
	HostMetrics() *metrics.HostMetrics
}

// Config holds TUI configuration.
type Config struct {
	Target      string
	SuiteName   string
	Scenarios   int
	MetricsAddr string
	Source      SnapshotSource
}

// Model is the Bubble Tea model for the session dashboard.
type Model struct {
	target      string
	suiteName   string
	scenarios   int
	metricsAddr string

	source SnapshotSource

	summary stats.Summary
	poolSt  pool.Stats
	host    *metrics.HostMetrics
	recent  []runner.TestResult

	startTime  time.Time
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a dashboard model.
func New(cfg Config) Model {
	return Model{
		target:      cfg.Target,
		suiteName:   cfg.SuiteName,
		scenarios:   cfg.Scenarios,
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.source != nil {
			m.summary = m.source.Summary()
			m.poolSt = m.source.PoolStats()
			m.host = m.source.HostMetrics()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case ResultMsg:
		m.recent = append(m.recent, msg.Result)
		if len(m.recent) > recentResults {
			m.recent = m.recent[len(m.recent)-recentResults:]
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Helpers for external use
// =============================================================================

// SendResult pushes a finished scenario into the dashboard.
func SendResult(p *tea.Program, result runner.TestResult) {
	if p != nil {
		p.Send(ResultMsg{Result: result})
	}
}

// SendQuit asks the dashboard to exit.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	mi := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, mi, s)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// formatPercent formats a 0..1 ratio as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}
