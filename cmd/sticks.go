// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/events"
	"github.com/Thermoquad/camlink/pkg/gesture"
	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/simulator"
)

var sticksStdin bool

var sticksCmd = &cobra.Command{
	Use:   "sticks",
	Short: "Drive the camera menu with RC stick gestures",
	Long: `Run the stick gesture decoder against a camera.

Stick positions are turned into 5-key menu commands the same way a flight
controller does it:
  - Throttle mid, yaw right, pitch up (disarmed) opens the camera menu
  - Roll and pitch select left, right, up and down
  - Holding yaw left for the disconnect hold time closes the menu
  - Sticks must return to center between presses

The terminal UI simulates the sticks from the keyboard. With --stdin, stick
samples are read as lines of "roll pitch yaw throttle [armed]" instead, so
a receiver bridge can be piped in.

Gesture events are logged and, when enabled in the config file, published
to Redis. Link metrics are served for Prometheus when metrics are enabled.

Supports serial, WebSocket and --simulate connections.`,
	RunE: runSticks,
}

func init() {
	rootCmd.AddCommand(sticksCmd)
	sticksCmd.Flags().BoolVar(&sticksStdin, "stdin", false, "Read stick samples from standard input (no TUI)")
}

// stickInput is the operator input sampled on every tick
type stickInput struct {
	sticks   gesture.Sticks
	armed    bool
	suppress bool
	modes    [3]bool // CAMERA1..CAMERA3 switches
}

// controlStatus is published to the UI after every tick
type controlStatus struct {
	input          stickInput
	state          gesture.State
	connected      bool
	releasePending bool
	thresholds     gesture.Thresholds
	latches        [3]bool
	stats          link.Statistics
	initialised    bool
	features       string
	simulated      *simulatedStatus
}

// simulatedStatus mirrors the built-in camera for display
type simulatedStatus struct {
	menuOpen   bool
	pressedKey uint8
	buttons    int
}

// controlLoop owns the link engine. Every tick it samples the latest input
// and runs the gesture decoder and camera switches against it. Nothing else
// may touch the session while the loop runs.
type controlLoop struct {
	session  *Session
	decoder  *gesture.Decoder
	switches *gesture.Switches
	interval time.Duration
	onStatus func(controlStatus)

	mu    sync.Mutex
	input stickInput

	done    chan struct{}
	stopped chan struct{}
}

func newControlLoop(session *Session, onEvent func(gesture.Event), onStatus func(controlStatus)) *controlLoop {
	opts := cfg.GestureOptions()
	opts.Logger = logger
	opts.OnEvent = onEvent

	return &controlLoop{
		session:  session,
		decoder:  gesture.NewDecoder(session.Device, link.NewSystemClock(), opts),
		switches: gesture.NewSwitches(session.Device, logger, onEvent),
		interval: cfg.Gesture.TickInterval,
		onStatus: onStatus,
		input:    stickInput{sticks: gesture.Centered()},
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// setInput replaces the operator input seen by the next tick
func (l *controlLoop) setInput(in stickInput) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.input = in
}

func (l *controlLoop) snapshot() stickInput {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.input
}

// run initialises the camera and ticks until stop is called
func (l *controlLoop) run() {
	defer close(l.stopped)

	if err := l.session.Device.Init(); err != nil {
		logger.WithError(err).Warn("camera did not answer the feature query, gestures disabled")
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *controlLoop) tick() {
	in := l.snapshot()

	l.decoder.OnTick(in.sticks, in.armed, in.suppress)
	for i, active := range in.modes {
		// Errors are logged by the switches
		_ = l.switches.Update(gesture.CameraMode(i), active)
	}

	if l.onStatus != nil {
		l.onStatus(l.status(in))
	}
}

func (l *controlLoop) status(in stickInput) controlStatus {
	st := controlStatus{
		input:          in,
		state:          l.decoder.State(),
		connected:      l.decoder.IsConnected(),
		releasePending: l.decoder.ReleasePending(),
		thresholds:     l.decoder.Thresholds(),
		stats:          l.session.Engine.Statistics(),
		initialised:    l.session.Device.Initialized(),
		features:       l.session.Device.Features().String(),
	}
	for i := range st.latches {
		st.latches[i] = l.switches.State(gesture.CameraMode(i)).IsActivated
	}
	if sim, ok := l.session.Transport().(*simulator.Camera); ok {
		st.simulated = &simulatedStatus{
			menuOpen:   sim.Connected(),
			pressedKey: sim.PressedKey(),
			buttons:    len(sim.Buttons()),
		}
	}
	return st
}

// stop ends the loop and waits for the current tick to finish
func (l *controlLoop) stop() {
	close(l.done)
	<-l.stopped
}

// openEventPublisher builds the configured event sinks. It returns nil when
// no sink is enabled.
func openEventPublisher(ctx context.Context) (*events.Async, error) {
	var sinks events.Multi
	if cfg.Events.Log {
		sinks = append(sinks, events.NewLogPublisher(logger))
	}
	if cfg.Events.Redis.Enabled {
		rp, err := events.NewRedisPublisher(ctx, events.RedisOptions{
			Addr:       cfg.Events.Redis.Addr,
			Password:   cfg.Events.Redis.Password,
			DB:         cfg.Events.Redis.DB,
			Channel:    cfg.Events.Redis.Channel,
			HistoryLen: cfg.Events.Redis.HistoryLen,
		}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rp)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return events.NewAsync(sinks, events.DefaultQueueSize, logger), nil
}

// startMetricsServer serves reg on the configured address
func startMetricsServer(reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Metrics.Addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	return srv
}

func runSticks(cmd *cobra.Command, args []string) error {
	if !sticksStdin {
		quietForTUI(logger)
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	// A nil *Registry must not become a non-nil Registerer
	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	session, err := openSession(registerer)
	if err != nil {
		return err
	}
	defer session.Close()

	if reg != nil {
		srv := startMetricsServer(reg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	publisher, err := openEventPublisher(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open event publisher: %w", err)
	}
	if publisher != nil {
		defer publisher.Close()
	}

	var publish func(gesture.Event)
	if publisher != nil {
		publish = events.Listener(publisher, cfg.Device.Name)
	}

	if sticksStdin {
		return runSticksStdin(session, publish)
	}
	return runSticksTUI(session, publish)
}

// runSticksTUI runs the control loop behind the keyboard stick simulator
func runSticksTUI(session *Session, publish func(gesture.Event)) error {
	var p *tea.Program

	onEvent := func(e gesture.Event) {
		if publish != nil {
			publish(e)
		}
		p.Send(gestureEventMsg(e))
	}
	loop := newControlLoop(session, onEvent, func(st controlStatus) {
		p.Send(controlStatusMsg(st))
	})

	p = tea.NewProgram(newSticksModel(session.Description, loop), tea.WithAltScreen())
	go loop.run()

	_, err := p.Run()
	loop.stop()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runSticksStdin feeds stick samples read from standard input
func runSticksStdin(session *Session, publish func(gesture.Event)) error {
	fmt.Printf("Camlink - Stick Gestures\n")
	fmt.Printf("Connection: %s\n", session.Description)
	fmt.Printf("Reading \"roll pitch yaw throttle [armed]\" lines from stdin\n\n")

	onEvent := func(e gesture.Event) {
		if publish != nil {
			publish(e)
		}
		line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05.000"), e.Type)
		if e.Type == gesture.EventCameraButton {
			line += fmt.Sprintf(" operation=%d", e.Operation)
		} else if e.Key != gesture.KeyNone {
			line += " key=" + e.Key.String()
		}
		if e.Err != nil {
			line += fmt.Sprintf(" error=%v", e.Err)
		}
		fmt.Println(line)
	}

	loop := newControlLoop(session, onEvent, nil)
	go loop.run()
	defer loop.stop()

	return readStickLines(os.Stdin, loop)
}

// readStickLines parses samples until r is exhausted
func readStickLines(r io.Reader, loop *controlLoop) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		in, err := parseStickLine(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "ignoring line: %v\n", err)
			continue
		}
		if in == nil {
			continue
		}
		loop.setInput(*in)
	}
	return scanner.Err()
}

// parseStickLine parses "roll pitch yaw throttle [armed]". Blank lines and
// lines starting with '#' return nil.
func parseStickLine(line string) (*stickInput, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	fields := strings.Fields(line)
	if len(fields) < 4 || len(fields) > 5 {
		return nil, fmt.Errorf("expected 4 or 5 fields, got %d", len(fields))
	}

	var ch [4]uint16
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i+1, err)
		}
		ch[i] = uint16(v)
	}

	in := &stickInput{
		sticks: gesture.Sticks{Roll: ch[0], Pitch: ch[1], Yaw: ch[2], Throttle: ch[3]},
	}
	if len(fields) == 5 {
		armed, err := strconv.ParseBool(fields[4])
		if err != nil {
			return nil, fmt.Errorf("armed flag: %w", err)
		}
		in.armed = armed
	}
	return in, nil
}
