package transport

import (
	"errors"
	"testing"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
)

func TestRouter_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		tags []protocol.Tag
		tag  protocol.Tag
		want int
	}{
		{"exact match", []protocol.Tag{protocol.NotifyAstroGotoState}, protocol.NotifyAstroGotoState, 1},
		{"wildcard", []protocol.Tag{protocol.TagAny}, protocol.NotifyBattery, 1},
		{"no match", []protocol.Tag{protocol.NotifyAstroGotoState}, protocol.NotifyBattery, 0},
		{"empty set", nil, protocol.NotifyBattery, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Router
			got := 0
			r.Add("test", tt.tags, Handlers{
				OnMessage: func(label string, n protocol.Notification) {
					if label != "test" {
						t.Errorf("label = %q, want test", label)
					}
					got++
				},
			})

			if n := r.Dispatch(protocol.Notification{Tag: tt.tag}); n != tt.want {
				t.Errorf("Dispatch() = %d, want %d", n, tt.want)
			}
			if got != tt.want {
				t.Errorf("handler called %d times, want %d", got, tt.want)
			}
		})
	}
}

func TestRouter_DispatchReachesEveryMatch(t *testing.T) {
	var r Router
	var order []string
	for _, label := range []string{"first", "second"} {
		r.Add(label, []protocol.Tag{protocol.NotifyBattery}, Handlers{
			OnMessage: func(label string, n protocol.Notification) { order = append(order, label) },
		})
	}

	r.Dispatch(protocol.Notification{Tag: protocol.NotifyBattery})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("dispatch order = %v, want [first second]", order)
	}
}

func TestRouter_Remove(t *testing.T) {
	var r Router
	calls := 0
	id := r.Add("a", []protocol.Tag{protocol.TagAny}, Handlers{
		OnMessage: func(string, protocol.Notification) { calls++ },
	})
	r.Add("b", []protocol.Tag{protocol.NotifyCharge}, Handlers{})

	r.Remove(id)
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	r.Dispatch(protocol.Notification{Tag: protocol.NotifyBattery})
	if calls != 0 {
		t.Errorf("removed handler was called")
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", r.Len())
	}
}

func TestRouter_Lifecycle(t *testing.T) {
	var r Router
	var states []bool
	var gotErr error
	reconnects := 0
	r.Add("x", nil, Handlers{
		OnStateChange: func(c bool) { states = append(states, c) },
		OnError:       func(err error) { gotErr = err },
		OnReconnect:   func() { reconnects++ },
	})
	r.Add("nil handlers", nil, Handlers{})

	boom := errors.New("boom")
	r.NotifyError(boom)
	r.NotifyState(false)
	r.NotifyState(true)
	r.NotifyReconnect()

	if !errors.Is(gotErr, boom) {
		t.Errorf("error = %v, want %v", gotErr, boom)
	}
	if len(states) != 2 || states[0] || !states[1] {
		t.Errorf("states = %v, want [false true]", states)
	}
	if reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", reconnects)
	}
}

func TestRegistry_SharesHandle(t *testing.T) {
	created := 0
	reg := NewRegistry(func(addr string) Transport {
		created++
		return NewHandler(addr, Options{})
	})

	a := reg.Get("192.168.88.1")
	b := reg.Get("192.168.88.1")
	c := reg.Get("10.0.0.2")

	if a != b {
		t.Errorf("same address returned different handles")
	}
	if a == c {
		t.Errorf("different addresses returned the same handle")
	}
	if created != 2 {
		t.Errorf("factory called %d times, want 2", created)
	}
	reg.Close()
}
