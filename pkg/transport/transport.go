// Package transport carries commands to a Dwarf device and dispatches its
// replies and notifications to the invocations that registered for them.
//
// A single Transport handle exists per device address and is shared by every
// flow. Each Prepare call registers one invocation: its commands are queued and
// written in submission order, and its handlers receive the notifications whose
// tag is in the invocation's expected set.
package transport

import (
	"context"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
)

// ErrClosed is returned once a transport has been force-stopped.
var ErrClosed = errors.New("transport closed")

// Handlers are the callbacks of one invocation. Any of them may be nil.
// They are called from the transport's reader goroutine.
type Handlers struct {
	OnMessage     func(label string, n protocol.Notification)
	OnStateChange func(connected bool)
	OnError       func(err error)
	OnReconnect   func()
}

// Transport is the device connection contract consumed by the sequencer.
type Transport interface {
	// Prepare queues cmds for transmission and registers handlers for tags.
	// It returns the registration id used by Unregister.
	Prepare(cmds []protocol.Command, label string, tags []protocol.Tag, h Handlers) string

	// Unregister drops a registration; later notifications no longer reach it.
	Unregister(id string)

	// Run flushes the queue, connecting first if needed. It returns false if
	// the transport could not start.
	Run() bool

	IsConnected() bool

	// HandleClose closes the current connection and fires the close-timer hook.
	HandleClose(reason string)

	// Cleanup closes the connection and drops every registration. A forced
	// cleanup also disables reconnection and fires the stop-timer hook.
	Cleanup(force bool)

	SetDeviceID(id int) bool
	SetNewIP(ctx context.Context, ip string) error

	SetCloseTimerHandler(fn func())
	SetStopTimerHandler(fn func())
}
