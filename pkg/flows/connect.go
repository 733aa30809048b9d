package flows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

// connectionTags are listed next to the wildcard for readability of the
// logs; the wildcard alone already matches them.
var connectionTags = []protocol.Tag{
	protocol.TagAny,
	protocol.NotifySDCardInfo,
	protocol.NotifyBattery,
	protocol.NotifyCharge,
	protocol.CmdCameraTeleGetSystemWorkingState,
	protocol.NotifyHostSlaveMode,
	protocol.CmdCameraTeleOpenCamera,
	protocol.CmdCameraWideOpenCamera,
	protocol.NotifyLiveStackingState,
	protocol.NotifyLiveStackingProgress,
}

func connectionCommands() []protocol.Command {
	return []protocol.Command{
		protocol.GetSystemWorkingState(),
		protocol.OpenTeleCamera(),
		protocol.OpenWideCamera(),
	}
}

// Connect opens the session with the device. The flow succeeds on the first
// sign of life (card info or working state) and stays registered afterwards
// to keep the session store in sync with device telemetry. A reconnection
// re-issues the connection commands.
func (c *Controller) Connect(ctx context.Context) (*sequencer.Flow, error) {
	snap := c.store.Snapshot()
	t, err := c.seq.Transport()
	if err != nil {
		return nil, err
	}
	if c.opts.ForceIP {
		if err := t.SetNewIP(ctx, snap.DeviceIP); err != nil {
			return nil, err
		}
	}

	t.SetCloseTimerHandler(func() { slog.Info("connection_closed_by_timer") })
	t.SetStopTimerHandler(func() { c.store.SetConnectionStatus(false) })

	c.store.SetSlaveMode(false)
	c.store.UpdateImaging(func(im *session.ImagingSession) { im.IsGoLive = false })
	c.store.ClearNotices(session.ChannelConnection)

	var (
		telemetry    Telemetry
		fetchedISP   bool
		identityDone bool
	)

	onMessage := func(f *sequencer.Flow, n protocol.Notification) {
		switch n.Tag {
		case protocol.NotifySDCardInfo:
			telemetry.Apply(c.store, n)
			c.markConnected(snap.DeviceIP)
			if !identityDone {
				identityDone = true
				c.negotiateIdentity(ctx, n)
			}
			c.succeed(f, session.ChannelConnection, "Connected")

		case protocol.CmdCameraTeleGetSystemWorkingState:
			c.store.SetConnectionStatus(true)
			if n.OK() {
				if !fetchedISP {
					fetchedISP = true
					if _, err := c.RefreshCameraSettings(); err != nil {
						slog.Warn("camera_settings_refresh_failed", "error", err)
					}
				}
				c.succeed(f, session.ChannelConnection, "Connected")
				return
			}
			// The device answers but reports a problem: still connected.
			msg := protocol.DescribeError(n)
			c.store.SetError(session.ChannelConnection, msg)
			if f.Succeed(msg) {
				slog.Warn("connection_working_state_error", "code", n.Data.Code, "message", msg)
			}

		case protocol.NotifyPowerOff:
			c.powerOff(f)

		default:
			if !telemetry.Apply(c.store, n) {
				slog.Debug("telemetry_ignored", "tag", n.Tag, "type", n.Type)
			}
		}
	}

	f, err := c.seq.Start(sequencer.Invocation{
		Label:      "connection",
		Commands:   connectionCommands(),
		Tags:       connectionTags,
		Persistent: true,
		OnMessage:  onMessage,
		OnStateChange: func(_ *sequencer.Flow, connected bool) {
			c.store.SetConnectionStatus(connected)
		},
		OnError: func(_ *sequencer.Flow, err error) {
			slog.Error("connection_socket_closed", "error", err)
		},
		OnReconnect: func(f *sequencer.Flow) {
			slog.Info("connection_restart")
			c.store.SetSlaveMode(false)
			f.Send(connectionCommands()...)
		},
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *Controller) markConnected(ip string) {
	c.store.SetConnectionStatus(true)
	c.store.SetInitialConnectionTime(c.opts.Now())
	c.store.SetDeviceIP(ip)
}

// negotiateIdentity makes sure outgoing frames carry the device type id. A
// known id is reused; otherwise it is read from the device config endpoint,
// falling back to the id carried by the notification.
func (c *Controller) negotiateIdentity(ctx context.Context, n protocol.Notification) {
	t, err := c.seq.Transport()
	if err != nil {
		return
	}

	if known := c.store.Snapshot().DeviceID; known != 0 {
		if !t.SetDeviceID(known) {
			slog.Error("device_id_update_failed", "device_id", known)
		}
		return
	}

	ip := c.store.Snapshot().DeviceIP
	apply := func(id int, name string) {
		c.store.SetDevice(id, name)
		if t.SetDeviceID(id) {
			slog.Info("device_id_updated", "device_id", id, "device_name", name)
		} else {
			slog.Error("device_id_update_failed", "device_id", id)
		}
	}

	go func() {
		var (
			id   int
			name string
		)
		if c.identity != nil {
			fetchCtx, cancel := context.WithTimeout(ctx, c.opts.IdentityTimeout)
			ident, err := c.identity.Fetch(fetchCtx, ip)
			cancel()
			if err != nil {
				slog.Warn("device_config_unavailable", "ip", ip, "error", err)
			} else {
				id, name = ident.ID, ident.Name
			}
		}
		if id == 0 && n.DeviceID != 0 {
			id, name = n.DeviceID, protocol.DeviceName(n.DeviceID)
		}
		if id == 0 {
			return
		}
		c.seq.Loop().Post(func() { apply(id, name) })
	}()
}

// powerOff handles the device announcing it is shutting down: the transport
// is force-stopped and the session marked disconnected.
func (c *Controller) powerOff(f *sequencer.Flow) {
	name := c.store.Snapshot().DeviceName
	if name == "" {
		name = "Dwarf"
	}
	msg := fmt.Sprintf("The %s is powering Off!", name)
	slog.Warn("device_powering_off", "device_name", name)

	c.store.SetError(session.ChannelConnection, msg)
	c.store.SetConnectionStatus(false)
	f.Fail(ErrPoweringOff)

	if t, err := c.seq.Transport(); err == nil {
		t.Cleanup(true)
	}
}
