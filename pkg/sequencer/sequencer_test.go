package sequencer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/dwarf-astro/dwarfctl/pkg/transport"
	"github.com/dwarf-astro/dwarfctl/pkg/transport/fake"
)

func newTestSequencer(t *testing.T, timeout time.Duration) (*Sequencer, *fake.Transport, *session.MemoryStore) {
	t.Helper()
	ft := fake.New()
	store := session.NewMemoryStore()
	store.SetDeviceIP("192.168.88.1")
	seq := New(Config{
		Transports: transport.NewRegistry(func(string) transport.Transport { return ft }),
		Store:      store,
		Timeout:    timeout,
	})
	t.Cleanup(seq.Close)
	return seq, ft, store
}

// settle waits until every callback queued so far has run.
func settle(seq *Sequencer) { seq.Loop().Do(func() {}) }

func wait(t *testing.T, f *Flow) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("flow %s did not resolve: %v", f.Label(), err)
	}
	return st
}

func TestStart_NoDevice(t *testing.T) {
	seq, ft, store := newTestSequencer(t, time.Second)
	store.SetDeviceIP("")

	f, err := seq.Start(Invocation{Label: "goto", Commands: []protocol.Command{protocol.StopGoto()}})
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
	if f != nil {
		t.Errorf("got a flow without a device")
	}
	if len(ft.Sent()) != 0 {
		t.Errorf("commands sent without a device: %v", ft.SentTags())
	}
}

func TestStart_SendsInOrderAndFiltersTags(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, time.Second)

	var seen []protocol.Tag
	f, err := seq.Start(Invocation{
		Label: "calibration",
		Commands: []protocol.Command{
			protocol.SetTime(time.Now()),
			protocol.SetTimezone("UTC"),
			protocol.StartCalibration(),
		},
		Tags: []protocol.Tag{protocol.CmdAstroStartCalibration},
		OnMessage: func(f *Flow, n protocol.Notification) {
			seen = append(seen, n.Tag)
			f.Succeed("done")
		},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	want := []protocol.Tag{protocol.CmdSystemSetTime, protocol.CmdSystemSetTimezone, protocol.CmdAstroStartCalibration}
	got := ft.SentTags()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	ft.Deliver(protocol.Notification{Tag: protocol.NotifyBattery})
	ft.Deliver(protocol.Notification{Tag: protocol.CmdAstroStartCalibration})

	st := wait(t, f)
	if st.Status != Succeeded {
		t.Errorf("status = %s, want succeeded", st.Status)
	}
	if len(seen) != 1 || seen[0] != protocol.CmdAstroStartCalibration {
		t.Errorf("handler saw %v, want only the calibration reply", seen)
	}
}

func TestStart_PacingKeepsOrder(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, time.Second)

	f, err := seq.Start(Invocation{
		Label:    "lights",
		Commands: []protocol.Command{protocol.PowerLightOn(), protocol.RingLightOn(), protocol.RingLightOff()},
		Pacing:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	wait(t, f)

	want := []protocol.Tag{protocol.CmdRGBPowerPowerIndOn, protocol.CmdRGBPowerOpenRGB, protocol.CmdRGBPowerCloseRGB}
	got := ft.SentTags()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStart_TerminalStateIsFinal(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, time.Second)

	f, _ := seq.Start(Invocation{
		Label: "goto",
		Tags:  []protocol.Tag{protocol.CmdAstroStartGotoDSO},
		OnMessage: func(f *Flow, n protocol.Notification) {
			if n.OK() {
				f.Succeed("ok")
				return
			}
			f.Fail(&DeviceError{Code: n.Data.Code, Message: protocol.DescribeError(n)})
		},
	})

	ft.Deliver(protocol.Notification{Tag: protocol.CmdAstroStartGotoDSO, Data: protocol.Payload{Code: protocol.CodeAstroFunctionBusy, ErrorPlainTxt: "busy"}})
	ft.Deliver(protocol.Notification{Tag: protocol.CmdAstroStartGotoDSO})
	settle(seq)

	st := wait(t, f)
	if st.Status != Failed || st.Detail != "busy" {
		t.Errorf("state = %+v, want failed with busy", st)
	}
	if f.Succeed("late") {
		t.Errorf("Succeed on a failed flow reported a resolution")
	}
	if f.State().Status != Failed {
		t.Errorf("terminal status changed")
	}
	if ft.Router.Len() != 0 {
		t.Errorf("resolved flow still registered: %d", ft.Router.Len())
	}
}

func TestStart_LivenessTimeoutClosesOnce(t *testing.T) {
	seq, ft, store := newTestSequencer(t, 30*time.Millisecond)
	store.SetConnectionStatus(true)

	f, _ := seq.Start(Invocation{
		Label:    "goto",
		Commands: []protocol.Command{protocol.StartGotoDSO(0.71, 41.27, "M31")},
		Tags:     []protocol.Tag{protocol.CmdAstroStartGotoDSO},
	})

	st := wait(t, f)
	if st.Status != Failed || !errors.Is(st.Err, ErrLivenessTimeout) {
		t.Fatalf("state = %+v, want liveness failure", st)
	}

	time.Sleep(100 * time.Millisecond)
	settle(seq)

	if ft.CloseCalls() != 1 {
		t.Errorf("HandleClose called %d times, want 1", ft.CloseCalls())
	}
	if store.Snapshot().Connected {
		t.Errorf("session still connected after liveness timeout")
	}
}

func TestFlow_SupersedeLeavesTransportOpen(t *testing.T) {
	seq, ft, store := newTestSequencer(t, 30*time.Millisecond)
	store.SetConnectionStatus(true)

	f, _ := seq.Start(Invocation{
		Label:    "goto",
		Commands: []protocol.Command{protocol.StartGotoDSO(0.71, 41.27, "M31")},
		Tags:     []protocol.Tag{protocol.CmdAstroStartGotoDSO},
	})
	if !f.Supersede() {
		t.Fatal("Supersede on a running flow returned false")
	}
	if f.Supersede() {
		t.Error("second Supersede returned true")
	}

	st := wait(t, f)
	if st.Status != Failed || !errors.Is(st.Err, ErrSuperseded) {
		t.Fatalf("state = %+v, want superseded", st)
	}
	if ft.Router.Len() != 0 {
		t.Errorf("%d registrations left after supersede", ft.Router.Len())
	}

	time.Sleep(100 * time.Millisecond)
	settle(seq)

	if ft.CloseCalls() != 0 {
		t.Errorf("HandleClose called %d times, want 0", ft.CloseCalls())
	}
	if !store.Snapshot().Connected {
		t.Errorf("session disconnected by a superseded flow")
	}
}

func TestStart_NotificationsRearmLiveness(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, 300*time.Millisecond)

	f, _ := seq.Start(Invocation{
		Label: "polar-align",
		Tags:  []protocol.Tag{protocol.CmdStepMotorRunTo},
	})

	for i := 0; i < 4; i++ {
		time.Sleep(100 * time.Millisecond)
		ft.Deliver(protocol.Notification{Tag: protocol.CmdStepMotorRunTo})
	}
	settle(seq)
	if f.Terminal() {
		t.Fatalf("flow expired while the device kept answering: %+v", f.State())
	}

	st := wait(t, f)
	if !errors.Is(st.Err, ErrLivenessTimeout) {
		t.Errorf("err = %v, want liveness timeout", st.Err)
	}
}

func TestStart_DisabledTimeout(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, 20*time.Millisecond)

	f, _ := seq.Start(Invocation{
		Label:   "connect",
		Tags:    []protocol.Tag{protocol.TagAny},
		Timeout: -1,
	})
	time.Sleep(60 * time.Millisecond)
	settle(seq)

	if f.Terminal() {
		t.Errorf("flow without liveness resolved: %+v", f.State())
	}
	if ft.CloseCalls() != 0 {
		t.Errorf("HandleClose called without liveness")
	}
}

func TestStart_FireAndForget(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, time.Second)

	f, err := seq.Start(Invocation{Label: "reboot", Commands: []protocol.Command{protocol.Reboot()}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st := wait(t, f); st.Status != Succeeded {
		t.Errorf("status = %s, want succeeded", st.Status)
	}
	if tags := ft.SentTags(); len(tags) != 1 || tags[0] != protocol.CmdRGBPowerReboot {
		t.Errorf("sent %v", tags)
	}
}

func TestStart_RunFailure(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, time.Second)
	ft.FailRun = true

	f, _ := seq.Start(Invocation{Label: "goto", Tags: []protocol.Tag{protocol.CmdAstroStartGotoDSO}})
	st := wait(t, f)
	if !errors.Is(st.Err, ErrTransportStart) {
		t.Errorf("err = %v, want ErrTransportStart", st.Err)
	}
}

func TestStart_TransportError(t *testing.T) {
	seq, ft, store := newTestSequencer(t, time.Second)
	store.SetConnectionStatus(true)

	var reported error
	f, _ := seq.Start(Invocation{
		Label:   "goto",
		Tags:    []protocol.Tag{protocol.CmdAstroStartGotoDSO},
		OnError: func(_ *Flow, err error) { reported = err },
	})

	boom := errors.New("socket closed")
	ft.Fail(boom)

	st := wait(t, f)
	settle(seq)
	if st.Status != Failed || !errors.Is(st.Err, boom) {
		t.Errorf("state = %+v, want failure wrapping the socket error", st)
	}
	if !errors.Is(reported, boom) {
		t.Errorf("OnError got %v", reported)
	}
	if store.Snapshot().Connected {
		t.Errorf("session still connected")
	}
}

func TestStart_PersistentKeepsReceiving(t *testing.T) {
	seq, ft, _ := newTestSequencer(t, time.Second)

	received := 0
	f, _ := seq.Start(Invocation{
		Label:      "connect",
		Tags:       []protocol.Tag{protocol.TagAny},
		Persistent: true,
		OnMessage: func(f *Flow, n protocol.Notification) {
			received++
			f.Succeed("connected")
		},
	})

	ft.Deliver(protocol.Notification{Tag: protocol.CmdCameraTeleGetSystemWorkingState})
	wait(t, f)
	ft.Deliver(protocol.Notification{Tag: protocol.NotifyBattery})
	settle(seq)

	if received != 2 {
		t.Errorf("received %d notifications, want 2", received)
	}
}

func TestFlow_AdvanceIsBounded(t *testing.T) {
	f := newFlow("polar-align", 2)
	if _, ok := f.Advance(); ok {
		t.Fatalf("idle flow advanced")
	}
	f.begin()

	for want := 1; want <= 2; want++ {
		got, ok := f.Advance()
		if !ok || got != want {
			t.Fatalf("Advance() = %d, %v, want %d, true", got, ok, want)
		}
	}
	if got, ok := f.Advance(); ok || got != 2 {
		t.Errorf("Advance() past the last step = %d, %v", got, ok)
	}

	f.Succeed("POLAR ALIGN POSITION OK")
	if _, ok := f.Advance(); ok {
		t.Errorf("terminal flow advanced")
	}
	if st := f.State(); st.Step != 2 || st.Detail != "POLAR ALIGN POSITION OK" {
		t.Errorf("state = %+v", st)
	}
}

func TestFlow_OnResolveAfterTerminal(t *testing.T) {
	f := newFlow("x", 0)
	f.begin()
	f.Fail(errors.New("nope"))

	called := false
	f.OnResolve(func(st State) { called = st.Status == Failed })
	if !called {
		t.Errorf("OnResolve on a terminal flow did not run")
	}
}

func TestOncePerFlow(t *testing.T) {
	var got []string
	resolve := OncePerFlow(func(s string) { got = append(got, s) })

	if !resolve("first") {
		t.Errorf("first call did not resolve")
	}
	if resolve("second") {
		t.Errorf("second call resolved")
	}
	if len(got) != 1 || got[0] != "first" {
		t.Errorf("resolved with %v", got)
	}
}

func TestRunWorkflow(t *testing.T) {
	tests := []struct {
		name        string
		firstOK     bool
		wantStarted int
		wantStatus  Status
	}{
		{"chains on success", true, 2, Succeeded},
		{"stops on failure", false, 1, Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, ft, _ := newTestSequencer(t, time.Second)
			started := 0

			step := func(tag protocol.Tag, cmd protocol.Command) Step {
				return Step{
					Name: string(tag),
					Start: func() (*Flow, error) {
						started++
						return seq.Start(Invocation{
							Label:    string(tag),
							Commands: []protocol.Command{cmd},
							Tags:     []protocol.Tag{tag},
							OnMessage: func(f *Flow, n protocol.Notification) {
								if n.OK() {
									f.Succeed("")
								} else {
									f.Fail(&DeviceError{Code: n.Data.Code, Message: "failed"})
								}
							},
						})
					},
				}
			}

			chain, err := seq.RunWorkflow(Workflow{
				Name: "goto-then-stop",
				Steps: []Step{
					step(protocol.CmdAstroStartGotoDSO, protocol.StartGotoDSO(1, 2, "M31")),
					step(protocol.CmdAstroStopGoto, protocol.StopGoto()),
				},
			})
			if err != nil {
				t.Fatalf("RunWorkflow failed: %v", err)
			}

			code := protocol.CodeOK
			if !tt.firstOK {
				code = protocol.CodeAstroGotoFailed
			}
			ft.Deliver(protocol.Notification{Tag: protocol.CmdAstroStartGotoDSO, Data: protocol.Payload{Code: code}})
			settle(seq)
			if tt.firstOK {
				ft.Deliver(protocol.Notification{Tag: protocol.CmdAstroStopGoto})
			}

			st := wait(t, chain)
			if st.Status != tt.wantStatus {
				t.Errorf("workflow status = %s, want %s", st.Status, tt.wantStatus)
			}
			if started != tt.wantStarted {
				t.Errorf("started %d steps, want %d", started, tt.wantStarted)
			}
		})
	}
}

func TestLoop_RunsInOrder(t *testing.T) {
	l := NewLoop()
	var got []int
	for i := 0; i < 100; i++ {
		l.Post(func() { got = append(got, i) })
	}
	l.Close()

	if len(got) != 100 {
		t.Fatalf("ran %d callbacks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
	if l.Post(func() {}) {
		t.Errorf("Post succeeded on a closed loop")
	}
}
