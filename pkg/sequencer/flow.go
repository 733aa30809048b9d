package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/google/uuid"
)

// Status is the lifecycle of a flow. It only moves forward:
// Idle -> InProgress -> Succeeded or Failed.
type Status int

const (
	Idle Status = iota
	InProgress
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in_progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Terminal() bool { return s == Succeeded || s == Failed }

// State is the inspectable state of a flow.
type State struct {
	Status Status
	// Step counts confirmed steps of a multi-step flow, Steps is their total.
	Step  int
	Steps int
	// Detail is the last human-readable message of the flow.
	Detail string
	Err    error
}

// DeviceError is a command rejected by the device, with its mapped message.
type DeviceError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *DeviceError) Error() string { return e.Message }

// Flow is one logical interaction with the device, such as one goto attempt.
// A terminal flow is never resumed; a new attempt gets a new Flow.
type Flow struct {
	id    string
	label string

	mu        sync.Mutex
	state     State
	onResolve []func(State)
	done      chan struct{}
	resolve   func(State) bool

	send func(cmds []protocol.Command)
}

func newFlow(label string, steps int) *Flow {
	f := &Flow{
		id:    uuid.NewString(),
		label: label,
		state: State{Status: Idle, Steps: steps},
		done:  make(chan struct{}),
	}
	f.resolve = OncePerFlow(f.finish)
	return f
}

func (f *Flow) ID() string    { return f.id }
func (f *Flow) Label() string { return f.label }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Terminal() bool { return f.State().Status.Terminal() }

func (f *Flow) begin() {
	f.mu.Lock()
	if f.state.Status == Idle {
		f.state.Status = InProgress
	}
	f.mu.Unlock()
}

// Advance confirms one more step and returns the new step index. It does
// nothing on a terminal flow or once every step is confirmed.
func (f *Flow) Advance() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.Status != InProgress {
		return f.state.Step, false
	}
	if f.state.Steps > 0 && f.state.Step >= f.state.Steps {
		return f.state.Step, false
	}
	f.state.Step++
	slog.Debug("flow_step_confirmed", "flow", f.label, "flow_id", f.id, "step", f.state.Step, "steps", f.state.Steps)
	return f.state.Step, true
}

// Note records a progress message without changing the status.
func (f *Flow) Note(detail string) {
	f.mu.Lock()
	if !f.state.Status.Terminal() {
		f.state.Detail = detail
	}
	f.mu.Unlock()
}

// Succeed resolves the flow. It returns false if the flow was already
// resolved.
func (f *Flow) Succeed(detail string) bool {
	st := f.State()
	st.Status = Succeeded
	st.Detail = detail
	st.Err = nil
	return f.resolve(st)
}

// Fail resolves the flow with err. It returns false if the flow was already
// resolved.
func (f *Flow) Fail(err error) bool {
	st := f.State()
	st.Status = Failed
	st.Err = err
	if err != nil {
		st.Detail = err.Error()
	}
	return f.resolve(st)
}

// Supersede retires a flow replaced by a newer one. Its handlers are
// unregistered and its liveness timer stopped; the transport is left alone.
func (f *Flow) Supersede() bool {
	return f.Fail(ErrSuperseded)
}

func (f *Flow) finish(st State) {
	f.mu.Lock()
	// Keep the step counter current; it may have moved since st was read.
	st.Step = f.state.Step
	f.state = st
	callbacks := f.onResolve
	f.onResolve = nil
	f.mu.Unlock()

	slog.Info("flow_resolved", "flow", f.label, "flow_id", f.id, "status", st.Status, "detail", st.Detail)

	for _, fn := range callbacks {
		fn(st)
	}
	close(f.done)
}

// OnResolve registers fn to run once the flow is terminal. On an already
// terminal flow fn runs immediately.
func (f *Flow) OnResolve(fn func(State)) {
	f.mu.Lock()
	if !f.state.Status.Terminal() {
		f.onResolve = append(f.onResolve, fn)
		f.mu.Unlock()
		return
	}
	st := f.state
	f.mu.Unlock()
	fn(st)
}

// Done is closed once the flow is terminal.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Wait blocks until the flow is terminal or ctx is done.
func (f *Flow) Wait(ctx context.Context) (State, error) {
	select {
	case <-f.done:
		return f.State(), nil
	case <-ctx.Done():
		return f.State(), ctx.Err()
	}
}

// Send transmits further commands on behalf of the flow, for flows that issue
// the next command only after the previous one is confirmed.
func (f *Flow) Send(cmds ...protocol.Command) {
	if f.send == nil || len(cmds) == 0 {
		return
	}
	f.send(cmds)
}
