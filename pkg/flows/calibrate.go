package flows

import (
	"fmt"
	"log/slog"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

// Calibrate sends the time, the timezone and the calibration start, paced
// apart, then follows the calibration state notifications. It succeeds when
// the device reports the calibration idle again.
func (c *Controller) Calibrate() (*sequencer.Flow, error) {
	if c.opts.Location == nil {
		return nil, ErrNoLocation
	}
	return c.exclusive(actionCalibration, c.startCalibration)
}

func (c *Controller) startCalibration() (*sequencer.Flow, error) {
	c.store.ClearNotices(session.ChannelCalibration)
	c.store.UpdateAstro(func(a *session.AstroSettings) {
		a.Target = ""
		a.GotoActive = false
	})

	ch := session.ChannelCalibration
	refresh := func() {
		if _, err := c.RefreshCameraSettings(); err != nil {
			slog.Warn("camera_settings_refresh_failed", "error", err)
		}
	}

	onMessage := func(f *sequencer.Flow, n protocol.Notification) {
		switch n.Tag {
		case protocol.CmdSystemSetTime, protocol.CmdSystemSetTimezone:
			if n.OK() {
				f.Note(string(n.Tag) + " ok")
			} else {
				slog.Warn("calibration_setup_rejected", "tag", n.Tag, "message", protocol.DescribeError(n))
				f.Note(string(n.Tag) + " error")
			}

		case protocol.CmdAstroStartCalibration:
			switch n.Data.Code {
			case protocol.CodeOK:
				c.progress(f, ch, "Calibration started")
			case protocol.CodeAstroPlateSolvingFailed:
				c.reject(f, ch, n, "Error Plate Solving")
			case protocol.CodeAstroFunctionBusy:
				c.reject(f, ch, n, "Error function Busy, verify => Go Live")
			case protocol.CodeAstroCalibrationFailed:
				c.reject(f, ch, n, "Calibration Failure")
				refresh()
			default:
				c.reject(f, ch, n, "Calibration Failure: "+protocol.DescribeError(n))
			}

		case protocol.NotifyAstroCalibrationState:
			if protocol.AstroState(n.Data.State) == protocol.AstroIdle {
				refresh()
				c.succeed(f, ch, "Calibration Done")
				return
			}
			c.progress(f, ch, fmt.Sprintf("Calibration Phase #%d %s", n.Data.PlateSolvingTimes, n.Data.StatePlainTxt))
		}
	}

	return c.seq.Start(sequencer.Invocation{
		Label: "Calibration",
		Commands: []protocol.Command{
			protocol.SetTime(c.opts.Now()),
			protocol.SetTimezone(c.opts.Timezone),
			protocol.StartCalibration(),
		},
		Tags: []protocol.Tag{
			protocol.CmdSystemSetTime,
			protocol.CmdSystemSetTimezone,
			protocol.CmdAstroStartCalibration,
			protocol.NotifyAstroCalibrationState,
		},
		Pacing:    c.opts.Pacing,
		OnMessage: onMessage,
	})
}
