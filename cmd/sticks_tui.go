// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/camlink/pkg/gesture"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Simulated stick extremes (microseconds)
const (
	stickLow  = 1000
	stickMid  = 1500
	stickHigh = 2000
)

//////////////////////////////////////////////////////////////
// Key Bindings
//////////////////////////////////////////////////////////////

type sticksKeyMap struct {
	RollLeft     key.Binding
	RollRight    key.Binding
	PitchUp      key.Binding
	PitchDown    key.Binding
	YawLeft      key.Binding
	YawRight     key.Binding
	ThrottleUp   key.Binding
	ThrottleDown key.Binding
	Center       key.Binding
	Handshake    key.Binding
	Arm          key.Binding
	Suppress     key.Binding
	Camera1      key.Binding
	Camera2      key.Binding
	Camera3      key.Binding
	Raw          key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func newSticksKeyMap() sticksKeyMap {
	return sticksKeyMap{
		RollLeft:     key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "roll left")),
		RollRight:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "roll right")),
		PitchUp:      key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "pitch up")),
		PitchDown:    key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "pitch down")),
		YawLeft:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "yaw left")),
		YawRight:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "yaw right")),
		ThrottleUp:   key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "throttle up")),
		ThrottleDown: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "throttle down")),
		Center:       key.NewBinding(key.WithKeys(" ", "c"), key.WithHelp("space", "center")),
		Handshake:    key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "menu gesture")),
		Arm:          key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "arm/disarm")),
		Suppress:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "suppress ui")),
		Camera1:      key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "CAMERA1")),
		Camera2:      key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "CAMERA2")),
		Camera3:      key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "CAMERA3")),
		Raw:          key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "enter values")),
		Help:         key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k sticksKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.RollLeft, k.RollRight, k.PitchUp, k.PitchDown, k.Center, k.Handshake, k.Help, k.Quit}
}

func (k sticksKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.RollLeft, k.RollRight, k.PitchUp, k.PitchDown},
		{k.YawLeft, k.YawRight, k.ThrottleUp, k.ThrottleDown},
		{k.Center, k.Handshake, k.Arm, k.Suppress},
		{k.Camera1, k.Camera2, k.Camera3, k.Raw, k.Quit},
	}
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// sticksModel is the Bubble Tea model for the stick simulator
type sticksModel struct {
	connInfo   string
	loop       *controlLoop
	thresholds gesture.Thresholds

	// Operator input, pushed to the loop on every change
	input stickInput

	// Latest loop status
	status *controlStatus

	// Event log
	log           []logEntry
	maxLogEntries int

	keys     sticksKeyMap
	help     help.Model
	rawInput textinput.Model

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlStatusMsg controlStatus

type gestureEventMsg gesture.Event

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newSticksModel(connInfo string, loop *controlLoop) sticksModel {
	ti := textinput.New()
	ti.Placeholder = "1500 1800 1800 1500"
	ti.CharLimit = 30
	ti.Width = 30

	return sticksModel{
		connInfo:      connInfo,
		loop:          loop,
		thresholds:    loop.decoder.Thresholds(),
		input:         stickInput{sticks: gesture.Centered()},
		log:           make([]logEntry, 0),
		maxLogEntries: 100,
		keys:          newSticksKeyMap(),
		help:          help.New(),
		rawInput:      ti,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m sticksModel) Init() tea.Cmd {
	return nil
}

func (m sticksModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.rawInput.Focused() {
			return m.handleRawInput(msg)
		}
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case controlStatusMsg:
		st := controlStatus(msg)
		m.status = &st

	case gestureEventMsg:
		m.logEvent(gesture.Event(msg))
	}

	return m, nil
}

func (m sticksModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	in := &m.input
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Raw):
		m.rawInput.SetValue("")
		return m, m.rawInput.Focus()

	case key.Matches(msg, m.keys.RollLeft):
		in.sticks.Roll = stickLow
	case key.Matches(msg, m.keys.RollRight):
		in.sticks.Roll = stickHigh
	case key.Matches(msg, m.keys.PitchUp):
		in.sticks.Pitch = stickHigh
	case key.Matches(msg, m.keys.PitchDown):
		in.sticks.Pitch = stickLow
	case key.Matches(msg, m.keys.YawLeft):
		in.sticks.Yaw = stepStick(in.sticks.Yaw, -1)
	case key.Matches(msg, m.keys.YawRight):
		in.sticks.Yaw = stepStick(in.sticks.Yaw, 1)
	case key.Matches(msg, m.keys.ThrottleUp):
		in.sticks.Throttle = stepStick(in.sticks.Throttle, 1)
	case key.Matches(msg, m.keys.ThrottleDown):
		in.sticks.Throttle = stepStick(in.sticks.Throttle, -1)
	case key.Matches(msg, m.keys.Center):
		in.sticks = gesture.Centered()
	case key.Matches(msg, m.keys.Handshake):
		in.sticks = handshakeSticks(cfg.GestureOptions().Handshake)
	case key.Matches(msg, m.keys.Arm):
		in.armed = !in.armed
		m.addLogEntry(fmt.Sprintf("Armed: %t", in.armed), false)
	case key.Matches(msg, m.keys.Suppress):
		in.suppress = !in.suppress
		m.addLogEntry(fmt.Sprintf("Suppress UI: %t", in.suppress), false)
	case key.Matches(msg, m.keys.Camera1):
		in.modes[gesture.ModeCamera1] = !in.modes[gesture.ModeCamera1]
	case key.Matches(msg, m.keys.Camera2):
		in.modes[gesture.ModeCamera2] = !in.modes[gesture.ModeCamera2]
	case key.Matches(msg, m.keys.Camera3):
		in.modes[gesture.ModeCamera3] = !in.modes[gesture.ModeCamera3]
	default:
		return m, nil
	}

	m.loop.setInput(m.input)
	return m, nil
}

// handshakeSticks returns a sample matching the configured menu gesture
func handshakeSticks(g gesture.HandshakeGesture) gesture.Sticks {
	sticks := gesture.Sticks{Roll: stickMid, Pitch: stickHigh, Yaw: stickHigh, Throttle: stickMid}
	if g == gesture.HandshakeEnter {
		sticks.Pitch = stickMid
	}
	return sticks
}

// stepStick moves a channel one position: low, mid, high
func stepStick(v uint16, dir int) uint16 {
	switch {
	case dir > 0 && v < stickMid:
		return stickMid
	case dir > 0:
		return stickHigh
	case v > stickMid:
		return stickMid
	default:
		return stickLow
	}
}

func (m sticksModel) handleRawInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.rawInput.Blur()
		return m, nil

	case tea.KeyEnter:
		m.rawInput.Blur()
		parsed, err := parseStickLine(m.rawInput.Value())
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Invalid stick values: %v", err), true)
			return m, nil
		}
		if parsed != nil {
			m.input.sticks = parsed.sticks
			m.loop.setInput(m.input)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.rawInput, cmd = m.rawInput.Update(msg)
	return m, cmd
}

func (m *sticksModel) logEvent(e gesture.Event) {
	switch e.Type {
	case gesture.EventKeyFailed:
		m.addLogEntry(fmt.Sprintf("%s failed: %v", e.Key, e.Err), true)
	case gesture.EventKeySent:
		m.addLogEntry(fmt.Sprintf("Sent %s", e.Key), false)
	case gesture.EventKeyReleased:
		m.addLogEntry("Released", false)
	case gesture.EventCameraButton:
		m.addLogEntry(fmt.Sprintf("Camera button %s", rcdevice.FormatCameraOperation(e.Operation)), false)
	default:
		m.addLogEntry(fmt.Sprintf("Menu %s", e.Type), false)
	}
}

func (m *sticksModel) addLogEntry(message string, isError bool) {
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

func (m sticksModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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
	s.WriteString(titleStyle.Render("CAMLINK - STICK GESTURES"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", m.connInfo, cfg.Generation())))
	s.WriteString("\n\n")

	// Layout: left panel (sticks) | right panel (decoder)
	stickPanel := boxStyle.Width(34).Render(m.renderSticks(labelStyle, valueStyle, warningStyle))
	decoderPanel := boxStyle.Width(40).Render(m.renderDecoder(labelStyle, valueStyle, errorStyle, warningStyle, headerStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, stickPanel, " ", decoderPanel))
	s.WriteString("\n\n")

	// Link statistics
	if m.status != nil {
		st := m.status.stats
		stats := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s   %s %s",
			labelStyle.Render("Tx:"), valueStyle.Render(fmt.Sprintf("%d", st.Transactions)),
			labelStyle.Render("OK:"), valueStyle.Render(fmt.Sprintf("%d", st.Succeeded)),
			labelStyle.Render("Timeout:"), countStyle(st.TimedOut, valueStyle, errorStyle).Render(fmt.Sprintf("%d", st.TimedOut)),
			labelStyle.Render("Retries:"), countStyle(st.Retries, valueStyle, warningStyle).Render(fmt.Sprintf("%d", st.Retries)),
			labelStyle.Render("CRC:"), countStyle(st.CRCErrors, valueStyle, errorStyle).Render(fmt.Sprintf("%d", st.CRCErrors)),
		)
		s.WriteString(boxStyle.Render(stats))
		s.WriteString("\n\n")
	}

	// Raw value entry
	if m.rawInput.Focused() {
		s.WriteString(labelStyle.Render("roll pitch yaw throttle: "))
		s.WriteString(m.rawInput.View())
		s.WriteString(headerStyle.Render("  (enter apply, esc cancel)"))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(m.renderEventLog(labelStyle, errorStyle, warningStyle, headerStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func countStyle(n uint64, ok, bad lipgloss.Style) lipgloss.Style {
	if n > 0 {
		return bad
	}
	return ok
}

func (m sticksModel) renderSticks(labelStyle, valueStyle, warningStyle lipgloss.Style) string {
	var s strings.Builder

	channel := func(name string, v uint16) {
		pos := m.thresholds.Classify(v)
		style := valueStyle
		if pos != gesture.PositionMid {
			style = warningStyle
		}
		s.WriteString(fmt.Sprintf("%s %4d %s\n", labelStyle.Render(fmt.Sprintf("%-9s", name+":")), v, style.Render(pos.String())))
	}

	sticks := m.input.sticks
	channel("Roll", sticks.Roll)
	channel("Pitch", sticks.Pitch)
	channel("Yaw", sticks.Yaw)
	channel("Throttle", sticks.Throttle)

	armed := valueStyle.Render("disarmed")
	if m.input.armed {
		armed = warningStyle.Render("ARMED")
	}
	s.WriteString(fmt.Sprintf("\n%s %s", labelStyle.Render("Arming:"), armed))
	if m.input.suppress {
		s.WriteString(warningStyle.Render("  UI suppressed"))
	}
	return s.String()
}

func (m sticksModel) renderDecoder(labelStyle, valueStyle, errorStyle, warningStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	if m.status == nil {
		s.WriteString(warningStyle.Render("Querying camera..."))
		return s.String()
	}
	st := m.status

	features := st.features
	if !st.initialised {
		features = "querying..."
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Features:"), headerStyle.Render(features)))

	menu := headerStyle.Render("closed")
	if st.connected {
		menu = valueStyle.Render("OPEN")
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Menu:"), menu))
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("State:"), valueStyle.Render(st.state.String())))
	if st.releasePending {
		s.WriteString(warningStyle.Render("Center sticks to release"))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	for i, active := range st.input.modes {
		mode := gesture.CameraMode(i)
		sw := headerStyle.Render("low")
		if active {
			sw = valueStyle.Render("HIGH")
		}
		latch := ""
		if st.latches[i] {
			latch = headerStyle.Render(" (latched)")
		}
		s.WriteString(fmt.Sprintf("%s %s%s\n", labelStyle.Render(mode.String()+":"), sw, latch))
	}

	if sim := st.simulated; sim != nil {
		s.WriteString("\n")
		simMenu := "closed"
		if sim.menuOpen {
			simMenu = "open"
		}
		pressed := "none"
		if sim.pressedKey != 0 {
			pressed = rcdevice.FormatKeyOperation(sim.pressedKey)
		}
		s.WriteString(headerStyle.Render(fmt.Sprintf("Simulator: menu %s, key %s, %d button press(es)", simMenu, pressed, sim.buttons)))
	}

	return s.String()
}

func (m sticksModel) renderEventLog(labelStyle, errorStyle, warningStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 22
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
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	return s.String()
}
