package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
	}
	if m.poolSt.Size > 0 {
		sections = append(sections, m.renderPool())
	}
	if m.host != nil {
		sections = append(sections, m.renderHost())
	}
	if len(m.recent) > 0 {
		sections = append(sections, m.renderRecent())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := "editorswarm"
	if m.suiteName != "" {
		title += "  suite: " + m.suiteName
	}
	line := headerStyle.Render(title) + "\n" +
		mutedStyle.Render(fmt.Sprintf("target: %s  elapsed: %s",
			m.target, formatDuration(time.Since(m.startTime))))
	if m.metricsAddr != "" {
		line += mutedStyle.Render("  metrics: http://" + m.metricsAddr + "/metrics")
	}
	return line
}

func (m Model) renderProgress() string {
	s := m.summary

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Scenarios"))
	b.WriteString("\n")

	total := m.scenarios
	if total < s.Total {
		total = s.Total
	}
	b.WriteString(baseStyle.Render(fmt.Sprintf("%d/%d finished   ", s.Total, total)))
	b.WriteString(statusOK.Render(fmt.Sprintf("%d passed", s.Passed)))
	b.WriteString(baseStyle.Render("  "))
	b.WriteString(passFailStyle(s.Failed == 0).Render(fmt.Sprintf("%d failed", s.Failed)))
	if s.TimedOut > 0 {
		b.WriteString(baseStyle.Render("  "))
		b.WriteString(statusWarning.Render(fmt.Sprintf("%d timed out", s.TimedOut)))
	}
	if s.Retried > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  (%d retried)", s.Retried)))
	}
	b.WriteString("\n")

	if s.Total > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf(
			"pass rate %s   duration p50/p95/p99  %s / %s / %s",
			formatPercent(s.PassRate),
			s.DurationP50.Round(100*time.Millisecond),
			s.DurationP95.Round(100*time.Millisecond),
			s.DurationP99.Round(100*time.Millisecond),
		)))
	}

	return boxStyle.Render(b.String())
}

func (m Model) renderPool() string {
	p := m.poolSt

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Worker Pool"))
	b.WriteString("\n")
	b.WriteString(renderOccupancyBar(p.Idle, p.Busy, p.Starting, p.Failed, 24))
	b.WriteString("\n")
	b.WriteString(statusOK.Render(fmt.Sprintf("%d idle", p.Idle)))
	b.WriteString(baseStyle.Render(fmt.Sprintf("  %d busy  %d starting  ", p.Busy, p.Starting)))
	b.WriteString(passFailStyle(p.Failed == 0).Render(fmt.Sprintf("%d failed", p.Failed)))

	return boxStyle.Render(b.String())
}

// renderOccupancyBar draws a proportional bar of pool states.
func renderOccupancyBar(idle, busy, starting, failed, width int) string {
	total := idle + busy + starting + failed
	if total == 0 {
		return mutedStyle.Render(strings.Repeat("░", width))
	}

	seg := func(n int) int { return n * width / total }
	var b strings.Builder
	b.WriteString(statusOK.Render(strings.Repeat("█", seg(idle))))
	b.WriteString(baseStyle.Render(strings.Repeat("█", seg(busy))))
	b.WriteString(statusWarning.Render(strings.Repeat("▒", seg(starting))))
	b.WriteString(statusError.Render(strings.Repeat("█", seg(failed))))
	return b.String()
}

func (m Model) renderHost() string {
	h := m.host

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Host"))
	b.WriteString("\n")

	if !h.Healthy {
		b.WriteString(statusWarning.Render("scrape failing: " + h.Error))
		return boxStyle.Render(b.String())
	}

	b.WriteString(pressureStyle(h.CPUPercent).Render(fmt.Sprintf("cpu %.0f%%", h.CPUPercent)))
	b.WriteString(baseStyle.Render("  "))
	b.WriteString(pressureStyle(h.MemPercent).Render(fmt.Sprintf("mem %.0f%%", h.MemPercent)))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  (%s of %s)  load1 %.1f",
		formatBytes(h.MemUsed), formatBytes(h.MemTotal), h.Load1)))

	return boxStyle.Render(b.String())
}

func (m Model) renderRecent() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Recent"))
	b.WriteString("\n")

	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		verdict := "PASS"
		if !r.Success {
			verdict = "FAIL"
		}
		b.WriteString(passFailStyle(r.Success).Render(verdict))
		b.WriteString(baseStyle.Render(fmt.Sprintf("  %-28s %6.1fs", r.Scenario, r.DurationSeconds)))
		if r.Attempts > 1 {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("  attempt %d", r.Attempts)))
		}
		if i > 0 {
			b.WriteString("\n")
		}
	}

	return boxStyle.Render(b.String())
}

func (m Model) renderFooter() string {
	return mutedStyle.Render("q quit  r refresh") +
		mutedStyle.Render(fmt.Sprintf("   updated %s ago",
			time.Since(m.lastUpdate).Round(time.Second)))
}
