// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// Monitor TUI model
type monitorModel struct {
	connInfo      string
	showAll       bool
	started       time.Time
	stats         *link.Statistics
	log           []logEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	lastFrame     *rcdevice.Frame
	closedErr     error
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type linkClosedMsg struct {
	err error
}

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func plural(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func newMonitorModel(connInfo string, showAll bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		showAll:       showAll,
		started:       time.Now(),
		stats:         link.NewStatistics(),
		log:           make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case linkClosedMsg:
		m.closedErr = msg.err
		m.addLogEntry(fmt.Sprintf("LINK CLOSED: %v", msg.err), true)

	case monitorEvent:
		if msg.synced {
			m.synchronized = true
			m.invalidBytes = msg.invalidBytes
			if msg.invalidBytes > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}
		}

		msg.record(m.stats)

		switch {
		case msg.decodeErr != nil:
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		case len(msg.validationErrors) > 0:
			m.lastFrame = msg.frame
			name := rcdevice.FormatCommand(msg.frame.Command())
			for _, err := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
			}
		default:
			m.lastFrame = msg.frame
			if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (valid)", frameName(msg.frame)), false)
			}
		}
	}

	return m, nil
}

func frameName(f *rcdevice.Frame) string {
	if f.Generation() == rcdevice.GenerationLegacy {
		return "LEGACY_" + rcdevice.FormatLegacyArgument(f.Argument())
	}
	return rcdevice.FormatCommand(f.Command())
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CAMLINK - LINK MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | Mode: %s | Up %s | 'r' reset, 'q' quit",
		m.connInfo, cfg.Generation(), mode, formatUptime(uint64(time.Since(m.started).Milliseconds())))))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.closedErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Link closed: %v", m.closedErr)))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	totalErrors := st.CRCErrors + st.FramingErrors + st.InvalidResponses
	seen := st.FramesReceived + st.CRCErrors + st.FramingErrors
	var validPercent, errorPercent float64
	if seen > 0 {
		validPercent = float64(st.FramesReceived-st.InvalidResponses) * 100.0 / float64(seen)
		errorPercent = float64(totalErrors) * 100.0 / float64(seen)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesReceived)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.FramesReceived-st.InvalidResponses, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if totalErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", st.CRCErrors)),
			statsLabelStyle.Render("Framing:"), errorStyle.Render(fmt.Sprintf("%d", st.FramingErrors)),
			statsLabelStyle.Render("Invalid:"), warningStyle.Render(fmt.Sprintf("%d", st.InvalidResponses)),
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Error Rate:"), errorRate))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Last frame
	if m.lastFrame != nil {
		s.WriteString(statsLabelStyle.Render("Latest Frame:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(strings.TrimRight(rcdevice.FormatFrame(m.lastFrame), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 16
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.log) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.log); i++ {
			entry := m.log[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
