package fsm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/flows"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/dwarf-astro/dwarfctl/pkg/transport"
	"github.com/dwarf-astro/dwarfctl/pkg/transport/fake"
	"github.com/superfly/fsm"
)

// stubFlows starts placeholder flows on a real sequencer. By default a flow
// succeeds as soon as it is sent; refused steps are failed by a device
// error reply and silent steps hit the liveness timeout.
type stubFlows struct {
	seq    *sequencer.Sequencer
	ft     *fake.Transport
	store  session.Store
	calls  []string
	refuse map[string]bool
	silent map[string]bool
	gotos  []flows.GotoRequest
}

func (s *stubFlows) start(step string) (*sequencer.Flow, error) {
	s.calls = append(s.calls, step)
	tag := protocol.Tag("CMD_TEST_" + strings.ToUpper(step))

	switch {
	case s.refuse[step]:
		f, err := s.seq.Start(sequencer.Invocation{
			Label: step,
			Tags:  []protocol.Tag{tag},
			OnMessage: func(f *sequencer.Flow, n protocol.Notification) {
				f.Fail(&sequencer.DeviceError{Code: n.Data.Code, Message: "refused"})
			},
		})
		if err == nil {
			s.ft.Deliver(protocol.Notification{Tag: tag, Type: protocol.TypeResponse, Data: protocol.Payload{Code: -1}})
		}
		return f, err
	case s.silent[step]:
		return s.seq.Start(sequencer.Invocation{Label: step, Tags: []protocol.Tag{tag}, Timeout: 20 * time.Millisecond})
	default:
		return s.seq.Start(sequencer.Invocation{Label: step})
	}
}

func (s *stubFlows) Connect(ctx context.Context) (*sequencer.Flow, error) {
	f, err := s.start(StateConnect)
	if err == nil {
		s.store.SetConnectionStatus(true)
		s.store.SetDevice(1, "Dwarf II")
	}
	return f, err
}

func (s *stubFlows) Calibrate() (*sequencer.Flow, error) { return s.start(StateCalibrate) }

func (s *stubFlows) StartGoto(req flows.GotoRequest) (*sequencer.Flow, error) {
	s.gotos = append(s.gotos, req)
	s.store.UpdateAstro(func(a *session.AstroSettings) { a.Target = protocol.TargetName(req.ObjectName) })
	return s.start(StateGoto)
}

func newTestMachine(t *testing.T) (*Machine, *stubFlows, *session.MemoryStore) {
	t.Helper()
	ft := fake.New()
	store := session.NewMemoryStore()
	seq := sequencer.New(sequencer.Config{
		Transports: transport.NewRegistry(func(string) transport.Transport { return ft }),
		Store:      store,
		Timeout:    time.Second,
	})
	t.Cleanup(seq.Close)

	stub := &stubFlows{seq: seq, ft: ft, store: store, refuse: map[string]bool{}, silent: map[string]bool{}}
	return NewMachine(stub, store, 3, 2*time.Second), stub, store
}

func TestMachine_FullRun(t *testing.T) {
	m, stub, store := newTestMachine(t)
	ctx := context.Background()

	req := fsm.NewRequest(&RunRequest{
		DeviceIP:   "192.168.88.1",
		Calibrate:  true,
		ObjectName: "M31 (Andromeda)",
		RA:         "00h42m44s",
		Dec:        "+41 16 09",
	}, &RunResponse{})

	if _, err := m.handleConnect(ctx, req); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if store.Snapshot().DeviceIP != "192.168.88.1" {
		t.Errorf("device ip not applied")
	}
	if _, err := m.handleCalibrate(ctx, req); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if _, err := m.handleGoto(ctx, req); err != nil {
		t.Fatalf("goto: %v", err)
	}
	if _, err := m.handleComplete(ctx, req); err != nil {
		t.Fatalf("complete: %v", err)
	}

	want := []string{StateConnect, StateCalibrate, StateGoto}
	if strings.Join(stub.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", stub.calls, want)
	}

	resp := req.W.Msg
	if resp.Status != StatusComplete {
		t.Errorf("status = %q", resp.Status)
	}
	if len(resp.FlowIDs) != 3 {
		t.Errorf("flow ids = %v, want 3", resp.FlowIDs)
	}
	if resp.DeviceID != 1 || resp.DeviceName != "Dwarf II" || resp.Target != "M31" {
		t.Errorf("response = %+v", resp)
	}
	if len(stub.gotos) != 1 || stub.gotos[0].RA != "00h42m44s" {
		t.Errorf("goto requests = %+v", stub.gotos)
	}
}

func TestMachine_SkipsConnectedAndCalibration(t *testing.T) {
	m, stub, store := newTestMachine(t)
	ctx := context.Background()
	store.SetDeviceIP("192.168.88.1")
	store.SetConnectionStatus(true)

	req := fsm.NewRequest(&RunRequest{ObjectName: "M42", RA: "05h35m17s", Dec: "-05 23 28"}, &RunResponse{})
	if _, err := m.handleConnect(ctx, req); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.handleCalibrate(ctx, req); err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if len(stub.calls) != 0 {
		t.Errorf("calls = %v, want none", stub.calls)
	}
}

func TestMachine_StepFailures(t *testing.T) {
	tests := []struct {
		name      string
		refuse    bool
		silent    bool
		wantRetry bool
	}{
		{name: "refused goto aborts", refuse: true},
		{name: "silent goto is retried", silent: true, wantRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, stub, store := newTestMachine(t)
			store.SetDeviceIP("192.168.88.1")
			stub.refuse[StateGoto] = tt.refuse
			stub.silent[StateGoto] = tt.silent

			req := fsm.NewRequest(&RunRequest{ObjectName: "M42", RA: "05h35m17s", Dec: "-05 23 28"}, &RunResponse{})
			_, err := m.handleGoto(context.Background(), req)
			if err == nil {
				t.Fatalf("goto succeeded, want an error")
			}
			if got := errors.Is(err, sequencer.ErrLivenessTimeout); got != tt.wantRetry {
				t.Errorf("liveness error = %v, want %v (%v)", got, tt.wantRetry, err)
			}
			if len(req.W.Msg.FlowIDs) != 1 {
				t.Errorf("flow ids = %v", req.W.Msg.FlowIDs)
			}
			if req.W.Msg.Status != StatusFailed || req.W.Msg.ErrorMessage == "" {
				t.Errorf("response = %q/%q, want failed with a message", req.W.Msg.Status, req.W.Msg.ErrorMessage)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&sequencer.DeviceError{Code: protocol.CodeAstroFunctionBusy, Message: "busy"}, false},
		{sequencer.ErrLivenessTimeout, true},
		{sequencer.ErrTransportStart, true},
		{errors.New("transport failure: connection lost"), true},
		{flows.ErrPoweringOff, false},
		{flows.ErrNoTarget, false},
		{sequencer.ErrNoDevice, false},
		{sequencer.ErrSuperseded, false},
	}

	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
