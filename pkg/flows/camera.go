package flows

import (
	"log/slog"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

// restoreOrder is the order in which cached ISP settings are reapplied.
var restoreOrder = []string{
	protocol.ISPGainMode,
	protocol.ISPExposureMode,
	protocol.ISPGain,
	protocol.ISPExposure,
	protocol.ISPIRCut,
}

func ispValue(a session.AstroSettings, name string) int {
	switch name {
	case protocol.ISPGainMode:
		return a.GainMode
	case protocol.ISPExposureMode:
		return a.ExposureMode
	case protocol.ISPGain:
		return a.Gain
	case protocol.ISPExposure:
		return a.Exposure
	case protocol.ISPIRCut:
		return a.IR
	}
	return 0
}

// RestoreCameraSettings turns the telephoto camera back on and reapplies the
// cached astro settings. Each command is sent on its own timer, without
// waiting for confirmation: the camera is on after RestoreDelay and the five
// settings follow RestoreInterval apart. Values are read when each timer
// fires.
func (c *Controller) RestoreCameraSettings() {
	slog.Info("camera_restore_scheduled", "delay", c.opts.RestoreDelay, "interval", c.opts.RestoreInterval)

	c.seq.After(c.opts.RestoreDelay, func() {
		c.seq.Send("Turn on tele camera", protocol.OpenTeleCamera())
	})

	for i, name := range restoreOrder {
		c.seq.After(c.opts.RestoreDelay+c.opts.RestoreInterval*time.Duration(i+1), func() {
			value := ispValue(c.store.Snapshot().Astro, name)
			cmd, ok := protocol.SetTeleISP(name, value)
			if !ok {
				return
			}
			c.seq.Send("Set "+name, cmd)
		})
	}
}

// RefreshCameraSettings asks the device for its telephoto ISP settings and
// caches them as the astro settings.
func (c *Controller) RefreshCameraSettings() (*sequencer.Flow, error) {
	return c.seq.Start(sequencer.Invocation{
		Label:    "Get all tele params",
		Commands: []protocol.Command{protocol.GetAllTeleParams()},
		Tags:     []protocol.Tag{protocol.CmdCameraTeleGetAllParams},
		OnMessage: func(f *sequencer.Flow, n protocol.Notification) {
			if !n.OK() {
				f.Fail(&sequencer.DeviceError{Code: n.Data.Code, Message: protocol.DescribeError(n)})
				return
			}
			c.store.UpdateAstro(func(a *session.AstroSettings) { applyISP(a, n.Data.Params) })
			f.Succeed("camera settings cached")
		},
	})
}
