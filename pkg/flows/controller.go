// Package flows implements the device interactions of the control panel on top
// of the sequencer: connection, calibration, goto, motor reset, polar
// alignment, lights and power. Each flow reports through the session store
// notices and resolves its sequencer flow exactly once.
package flows

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/coords"
	"github.com/dwarf-astro/dwarfctl/pkg/devicecfg"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

var (
	ErrNoTarget    = errors.New("goto needs a target name or a solar-system index")
	ErrNoPosition  = errors.New("no recorded position")
	ErrNoLocation  = errors.New("observer location not configured")
	ErrInvalidMode = errors.New("invalid polar align position mode")
	ErrPoweringOff = errors.New("device is powering off")
)

// IdentityFetcher reads the device type from the device itself.
type IdentityFetcher interface {
	Fetch(ctx context.Context, ip string) (devicecfg.Identity, error)
}

// Options tune the flows. Zero durations take the defaults.
type Options struct {
	// Location is nil when the observer position is unknown.
	Location *coords.Observer
	Timezone string
	ForceIP  bool

	// Pacing spaces dependent commands such as the calibration sequence.
	Pacing time.Duration
	// RestoreDelay is the wait before the camera is turned back on after a
	// goto; RestoreInterval spaces the ISP settings that follow.
	RestoreDelay    time.Duration
	RestoreInterval time.Duration
	IdentityTimeout time.Duration

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Pacing == 0 {
		o.Pacing = 500 * time.Millisecond
	}
	if o.RestoreDelay == 0 {
		o.RestoreDelay = time.Second
	}
	if o.RestoreInterval == 0 {
		o.RestoreInterval = 500 * time.Millisecond
	}
	if o.IdentityTimeout == 0 {
		o.IdentityTimeout = 3 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// action groups the flows of which at most one may be in progress.
type action int

const (
	actionGoto action = iota
	actionMount
	actionCalibration
)

// Controller starts flows against the current device.
type Controller struct {
	seq      *sequencer.Sequencer
	store    session.Store
	identity IdentityFetcher
	opts     Options

	mu     sync.Mutex
	active map[action]*sequencer.Flow
}

func New(seq *sequencer.Sequencer, identity IdentityFetcher, opts Options) *Controller {
	return &Controller{
		seq:      seq,
		store:    seq.Store(),
		identity: identity,
		opts:     opts.withDefaults(),
		active:   make(map[action]*sequencer.Flow),
	}
}

// exclusive retires the flow in progress for a, if any, before start sends
// anything, and records the new flow in its place.
func (c *Controller) exclusive(a action, start func() (*sequencer.Flow, error)) (*sequencer.Flow, error) {
	c.mu.Lock()
	prev := c.active[a]
	delete(c.active, a)
	c.mu.Unlock()

	// Not under mu: resolving prev may start the next step of a workflow.
	if prev != nil && prev.Supersede() {
		slog.Info("flow_superseded", "flow", prev.Label(), "flow_id", prev.ID())
	}

	f, err := start()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.active[a] = f
	c.mu.Unlock()
	return f, nil
}

// reject fails f with the mapped message of a rejected command and shows it
// on ch. Nothing is shown if f was already resolved.
func (c *Controller) reject(f *sequencer.Flow, ch session.Channel, n protocol.Notification, message string) {
	if f.Fail(&sequencer.DeviceError{Code: n.Data.Code, Message: message}) {
		c.store.SetError(ch, message)
		slog.Warn("flow_rejected", "flow", f.Label(), "tag", n.Tag, "code", n.Data.Code, "message", message)
	}
}

// fail resolves f with a failure that does not come from a reply.
func (c *Controller) fail(f *sequencer.Flow, ch session.Channel, err error) {
	if f.Fail(err) {
		c.store.SetError(ch, err.Error())
	}
}

func (c *Controller) succeed(f *sequencer.Flow, ch session.Channel, message string) {
	if f.Succeed(message) {
		c.store.SetSuccess(ch, message)
	}
}

// progress shows an intermediate message of a flow that is still running.
func (c *Controller) progress(f *sequencer.Flow, ch session.Channel, message string) {
	if f.Terminal() {
		return
	}
	f.Note(message)
	c.store.SetSuccess(ch, message)
}

// errorText is the "Error: ..." text used by the motor flows.
func errorText(n protocol.Notification) string {
	return "Error: " + protocol.DescribeError(n)
}

// observer returns the configured location, or the origin when unknown.
func (c *Controller) observer() coords.Observer {
	if c.opts.Location == nil {
		return coords.Observer{}
	}
	return *c.opts.Location
}
