// Package sequencer issues device commands over a shared transport, routes the
// replies and notifications they provoke to a per-flow handler, and drives each
// flow to a terminal state.
//
// All handlers run on a single Loop goroutine. A flow that reaches no terminal
// state while the device stays silent for the liveness window is failed, the
// transport is closed and the session is marked disconnected.
package sequencer

import (
	"log/slog"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/dwarf-astro/dwarfctl/pkg/transport"
)

// DefaultTimeout is the liveness window of an invocation.
const DefaultTimeout = 5000 * time.Millisecond

var (
	// ErrNoDevice is returned when no device address is known.
	ErrNoDevice = errors.New("no device address configured")
	// ErrLivenessTimeout fails a flow the device never answered.
	ErrLivenessTimeout = errors.New("device did not answer in time")
	// ErrTransportStart fails a flow whose transport could not start.
	ErrTransportStart = errors.New("transport could not start")
	// ErrSuperseded ends a flow replaced by a newer flow of the same action.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// Recorder receives every notification accepted by a flow.
type Recorder interface {
	RecordNotification(flowID, label string, n protocol.Notification) error
}

// Invocation describes one Start call.
type Invocation struct {
	Label    string
	Commands []protocol.Command
	// Tags is the expected tag set. protocol.TagAny matches every
	// notification. An empty set makes the invocation fire-and-forget: it
	// succeeds once its commands are sent.
	Tags []protocol.Tag
	// Steps is the number of confirmed steps of a multi-step flow.
	Steps int
	// Pacing spaces the commands; zero sends them together.
	Pacing time.Duration
	// Timeout overrides the liveness window; negative disables it.
	Timeout time.Duration
	// Persistent keeps the handlers registered after the flow resolves, for
	// the connection flow which keeps interpreting telemetry.
	Persistent bool

	OnMessage     func(f *Flow, n protocol.Notification)
	OnStateChange func(f *Flow, connected bool)
	OnError       func(f *Flow, err error)
	OnReconnect   func(f *Flow)
}

// Config holds the sequencer dependencies.
type Config struct {
	Transports *transport.Registry
	Store      session.Store
	Loop       *Loop
	Recorder   Recorder
	Timeout    time.Duration
}

type Sequencer struct {
	transports *transport.Registry
	store      session.Store
	loop       *Loop
	recorder   Recorder
	timeout    time.Duration
}

func New(cfg Config) *Sequencer {
	if cfg.Loop == nil {
		cfg.Loop = NewLoop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Sequencer{
		transports: cfg.Transports,
		store:      cfg.Store,
		loop:       cfg.Loop,
		recorder:   cfg.Recorder,
		timeout:    cfg.Timeout,
	}
}

func (s *Sequencer) Store() session.Store { return s.store }
func (s *Sequencer) Loop() *Loop          { return s.loop }

// Transport returns the shared handle of the current device address.
func (s *Sequencer) Transport() (transport.Transport, error) {
	ip := s.store.Snapshot().DeviceIP
	if ip == "" {
		return nil, ErrNoDevice
	}
	return s.transports.Get(ip), nil
}

// After runs fn on the loop once d has elapsed.
func (s *Sequencer) After(d time.Duration, fn func()) *time.Timer {
	return s.loop.AfterFunc(d, fn)
}

// Start issues the invocation and returns its flow immediately; outcomes are
// delivered through the handlers on the loop.
func (s *Sequencer) Start(inv Invocation) (*Flow, error) {
	t, err := s.Transport()
	if err != nil {
		slog.Warn("flow_skipped", "flow", inv.Label, "error", err)
		return nil, err
	}

	f := newFlow(inv.Label, inv.Steps)
	f.send = func(cmds []protocol.Command) { s.transmit(t, inv.Label, cmds) }
	f.begin()

	slog.Info("flow_started", "flow", inv.Label, "flow_id", f.id, "commands", len(inv.Commands), "tags", len(inv.Tags))

	if len(inv.Tags) == 0 {
		s.sendPaced(t, f, inv, func() { f.Succeed("") })
		return f, nil
	}

	timeout := inv.Timeout
	if timeout == 0 {
		timeout = s.timeout
	}
	// lastSeen is only touched on the loop once the timer is armed.
	lastSeen := time.Now()
	var liveness *time.Timer
	if timeout > 0 {
		liveness = s.loop.AfterFunc(timeout, func() {
			// A firing queued before the last re-arm is stale.
			if time.Since(lastSeen) < timeout {
				return
			}
			s.expire(t, f)
		})
	}
	rearm := func() {
		lastSeen = time.Now()
		if liveness != nil && !f.Terminal() {
			liveness.Reset(timeout)
		}
	}

	id := t.Prepare(nil, inv.Label, inv.Tags, transport.Handlers{
		OnMessage: func(_ string, n protocol.Notification) {
			s.loop.Post(func() { s.deliver(f, inv, n, rearm) })
		},
		OnStateChange: func(connected bool) {
			if inv.OnStateChange != nil {
				s.loop.Post(func() { inv.OnStateChange(f, connected) })
			}
		},
		OnError: func(err error) {
			s.loop.Post(func() {
				if inv.OnError != nil {
					inv.OnError(f, err)
				}
				s.store.SetConnectionStatus(false)
				if f.Fail(errors.Wrap(err, "transport failure")) {
					slog.Warn("flow_transport_error", "flow", inv.Label, "flow_id", f.id, "error", err)
				}
			})
		},
		OnReconnect: func() {
			if inv.OnReconnect != nil {
				s.loop.Post(func() { inv.OnReconnect(f) })
			}
		},
	})

	f.OnResolve(func(State) {
		if liveness != nil {
			liveness.Stop()
		}
		if !inv.Persistent {
			t.Unregister(id)
		}
	})

	s.sendPaced(t, f, inv, nil)
	return f, nil
}

// Send transmits commands without expecting any reply.
func (s *Sequencer) Send(label string, cmds ...protocol.Command) error {
	t, err := s.Transport()
	if err != nil {
		slog.Warn("send_skipped", "label", label, "error", err)
		return err
	}
	s.transmit(t, label, cmds)
	return nil
}

func (s *Sequencer) transmit(t transport.Transport, label string, cmds []protocol.Command) {
	id := t.Prepare(cmds, label, nil, transport.Handlers{})
	t.Unregister(id)
	if !t.Run() {
		slog.Error("transport_run_failed", "label", label)
	}
}

// sendPaced writes the commands of inv in order, spaced by inv.Pacing, then
// calls sent. Remaining commands are dropped if the flow resolves early.
func (s *Sequencer) sendPaced(t transport.Transport, f *Flow, inv Invocation, sent func()) {
	cmds := inv.Commands
	if inv.Pacing <= 0 || len(cmds) <= 1 {
		s.run(t, f, inv.Label, cmds)
		if sent != nil {
			s.loop.Post(sent)
		}
		return
	}

	var next func(i int)
	next = func(i int) {
		if i > 0 && f.Terminal() && sent == nil {
			slog.Debug("flow_commands_dropped", "flow", inv.Label, "remaining", len(cmds)-i)
			return
		}
		s.run(t, f, inv.Label, cmds[i:i+1])
		if i+1 < len(cmds) {
			s.loop.AfterFunc(inv.Pacing, func() { next(i + 1) })
			return
		}
		if sent != nil {
			sent()
		}
	}
	next(0)
}

func (s *Sequencer) run(t transport.Transport, f *Flow, label string, cmds []protocol.Command) {
	if len(cmds) > 0 {
		id := t.Prepare(cmds, label, nil, transport.Handlers{})
		t.Unregister(id)
	}
	if !t.Run() {
		slog.Error("transport_run_failed", "flow", label, "flow_id", f.id)
		f.Fail(ErrTransportStart)
	}
}

func (s *Sequencer) deliver(f *Flow, inv Invocation, n protocol.Notification, rearm func()) {
	if f.Terminal() && !inv.Persistent {
		slog.Debug("notification_after_resolve", "flow", inv.Label, "tag", n.Tag)
		return
	}
	rearm()

	if s.recorder != nil {
		if err := s.recorder.RecordNotification(f.id, inv.Label, n); err != nil {
			slog.Warn("notification_record_failed", "flow", inv.Label, "error", err)
		}
	}
	if inv.OnMessage != nil {
		inv.OnMessage(f, n)
	}
}

// expire fails a silent flow, closes the transport once and reports the
// device as disconnected.
func (s *Sequencer) expire(t transport.Transport, f *Flow) {
	if !f.Fail(ErrLivenessTimeout) {
		return
	}
	slog.Warn("flow_liveness_timeout", "flow", f.label, "flow_id", f.id)
	t.HandleClose("liveness timeout: " + f.label)
	s.store.SetConnectionStatus(false)
}

// Close stops the loop.
func (s *Sequencer) Close() {
	s.loop.Close()
}
