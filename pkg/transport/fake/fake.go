// Package fake provides an in-memory Transport for tests. Commands are recorded
// instead of written and notifications are injected with Deliver.
package fake

import (
	"context"
	"sync"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/transport"
)

// Transport records every prepared command and dispatches injected
// notifications through a real Router.
type Transport struct {
	Router transport.Router

	// FailRun makes Run report that the transport could not start.
	FailRun bool

	mu           sync.Mutex
	sent         []protocol.Command
	labels       []string
	connected    bool
	closeReasons []string
	cleanups     []bool
	deviceID     int
	ip           string
	closeTimer   func()
	stopTimer    func()
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Prepare(cmds []protocol.Command, label string, tags []protocol.Tag, h transport.Handlers) string {
	id := t.Router.Add(label, tags, h)

	t.mu.Lock()
	t.sent = append(t.sent, cmds...)
	t.labels = append(t.labels, label)
	t.mu.Unlock()

	return id
}

func (t *Transport) Unregister(id string) { t.Router.Remove(id) }

func (t *Transport) Run() bool {
	if t.FailRun {
		return false
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return true
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) HandleClose(reason string) {
	t.mu.Lock()
	t.connected = false
	t.closeReasons = append(t.closeReasons, reason)
	hook := t.closeTimer
	t.mu.Unlock()

	t.Router.NotifyState(false)
	if hook != nil {
		hook()
	}
}

func (t *Transport) Cleanup(force bool) {
	t.mu.Lock()
	t.connected = false
	t.cleanups = append(t.cleanups, force)
	hook := t.stopTimer
	t.mu.Unlock()

	t.Router.NotifyState(false)
	t.Router.Reset()
	if force && hook != nil {
		hook()
	}
}

func (t *Transport) SetDeviceID(id int) bool {
	if id <= 0 {
		return false
	}
	t.mu.Lock()
	t.deviceID = id
	t.mu.Unlock()
	return true
}

func (t *Transport) SetNewIP(ctx context.Context, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	t.ip = ip
	t.mu.Unlock()
	return nil
}

func (t *Transport) SetCloseTimerHandler(fn func()) {
	t.mu.Lock()
	t.closeTimer = fn
	t.mu.Unlock()
}

func (t *Transport) SetStopTimerHandler(fn func()) {
	t.mu.Lock()
	t.stopTimer = fn
	t.mu.Unlock()
}

// Deliver dispatches n as if it had been read from the device and returns the
// number of registrations that received it.
func (t *Transport) Deliver(n protocol.Notification) int {
	return t.Router.Dispatch(n)
}

// Fail simulates a transport-level failure.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	t.Router.NotifyError(err)
	t.Router.NotifyState(false)
}

// Reconnect simulates a successful reconnection.
func (t *Transport) Reconnect() {
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	t.Router.NotifyState(true)
	t.Router.NotifyReconnect()
}

// Sent returns a copy of every command prepared so far, in order.
func (t *Transport) Sent() []protocol.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Command, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentTags returns the tags of every command prepared so far, in order.
func (t *Transport) SentTags() []protocol.Tag {
	cmds := t.Sent()
	tags := make([]protocol.Tag, len(cmds))
	for i, c := range cmds {
		tags[i] = c.Tag
	}
	return tags
}

func (t *Transport) Labels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.labels...)
}

// CloseCalls returns how many times HandleClose was invoked.
func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.closeReasons)
}

func (t *Transport) Cleanups() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.cleanups...)
}

func (t *Transport) DeviceID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deviceID
}

func (t *Transport) IP() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ip
}
