package flows

import (
	"log/slog"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

type lightSwitch struct {
	label string
	cmd   protocol.Command
	notif protocol.Tag
	set   func(bool)
}

func (c *Controller) switchLight(ls lightSwitch, on bool) (*sequencer.Flow, error) {
	ch := session.ChannelPower
	c.store.ClearNotices(ch)

	return c.seq.Start(sequencer.Invocation{
		Label:    ls.label,
		Commands: []protocol.Command{ls.cmd},
		Tags:     []protocol.Tag{ls.cmd.Tag, ls.notif},
		OnMessage: func(f *sequencer.Flow, n protocol.Notification) {
			if !n.OK() {
				c.reject(f, ch, n, errorText(n))
				return
			}
			if n.Tag == ls.notif {
				on = n.Data.State == 1
			}
			ls.set(on)
			c.succeed(f, ch, ls.label)
		},
	})
}

// SwitchPowerLight turns the power indicator on or off.
func (c *Controller) SwitchPowerLight(on bool) (*sequencer.Flow, error) {
	ls := lightSwitch{label: "Power Light Off", cmd: protocol.PowerLightOff()}
	if on {
		ls = lightSwitch{label: "Power Light On", cmd: protocol.PowerLightOn()}
	}
	ls.notif = protocol.NotifyPowerIndicatorState
	ls.set = c.store.SetPowerLight
	return c.switchLight(ls, on)
}

// SwitchRingLight turns the RGB ring light on or off.
func (c *Controller) SwitchRingLight(on bool) (*sequencer.Flow, error) {
	ls := lightSwitch{label: "Ring Light Off", cmd: protocol.RingLightOff()}
	if on {
		ls = lightSwitch{label: "Ring Light On", cmd: protocol.RingLightOn()}
	}
	ls.notif = protocol.NotifyRGBState
	ls.set = c.store.SetRingLight
	return c.switchLight(ls, on)
}

// Shutdown powers the device down, or reboots it after closing both
// cameras. The flow succeeds on the device's acknowledgement or its
// power-off notice, whichever comes first.
func (c *Controller) Shutdown(reboot bool) (*sequencer.Flow, error) {
	label := "Shutdown"
	cmds := []protocol.Command{protocol.PowerDown()}
	if reboot {
		label = "Reboot"
		cmds = []protocol.Command{
			protocol.CloseTeleCamera(),
			protocol.CloseWideCamera(),
			protocol.Reboot(),
		}
	}

	ch := session.ChannelPower
	c.store.ClearNotices(ch)
	slog.Info("device_power_requested", "action", label)

	return c.seq.Start(sequencer.Invocation{
		Label:    label,
		Commands: cmds,
		Tags: []protocol.Tag{
			protocol.CmdRGBPowerReboot,
			protocol.CmdRGBPowerPowerDown,
			protocol.CmdCameraTeleCloseCamera,
			protocol.CmdCameraWideCloseCamera,
			protocol.NotifyPowerOff,
		},
		OnMessage: func(f *sequencer.Flow, n protocol.Notification) {
			switch n.Tag {
			case protocol.CmdRGBPowerReboot, protocol.CmdRGBPowerPowerDown:
				if !n.OK() {
					c.reject(f, ch, n, errorText(n))
					return
				}
				c.succeed(f, ch, label)
			case protocol.NotifyPowerOff:
				c.succeed(f, ch, label)
			default:
				// Camera close replies only keep the flow alive.
				f.Note(string(n.Tag))
			}
		},
	})
}
