package flows

import (
	"fmt"
	"log/slog"

	"github.com/dwarf-astro/dwarfctl/pkg/coords"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

// GotoRequest describes a goto. Planet selects a solar-system body by index;
// otherwise RA and Dec (sexagesimal) locate a deep-sky object.
type GotoRequest struct {
	Planet     int
	RA         string
	Dec        string
	ObjectName string
	// StopAfterTracking stops the goto once tracking has started, leaving the
	// mount pointed at the target.
	StopAfterTracking bool
}

var gotoTags = []protocol.Tag{
	protocol.CmdAstroStartGotoDSO,
	protocol.CmdAstroStartGotoSolarSystem,
	protocol.NotifyAstroGotoState,
	protocol.NotifyAstroTrackingState,
}

// StartGoto slews to the requested target. The flow succeeds when the device
// reports tracking of this flow's target; tracking notifications naming
// another target are ignored. Any rejected start fails the flow and later
// notifications for the attempt change nothing. On success the camera
// settings are restored.
func (c *Controller) StartGoto(req GotoRequest) (*sequencer.Flow, error) {
	start := func() (*sequencer.Flow, error) { return c.startGoto(req) }
	if !req.StopAfterTracking {
		return start()
	}
	return c.seq.RunWorkflow(sequencer.Workflow{
		Name: "Goto then stop",
		Steps: []sequencer.Step{
			{Name: "Start Goto", Start: start},
			{Name: "Stop Goto", Start: c.StopGoto},
		},
	})
}

func (c *Controller) startGoto(req GotoRequest) (*sequencer.Flow, error) {
	var ra, dec float64
	var err error
	if req.RA != "" {
		if ra, err = coords.ParseHMS(req.RA); err != nil {
			return nil, errors.Wrap(err, "invalid right ascension")
		}
	}
	if req.Dec != "" {
		if dec, err = coords.ParseDMS(req.Dec); err != nil {
			return nil, errors.Wrap(err, "invalid declination")
		}
	}

	obs := c.observer()
	// The device expects longitude positive to the west.
	lon, lat := -obs.Lon, obs.Lat

	target := protocol.TargetName(req.ObjectName)
	var cmd protocol.Command
	switch {
	case req.Planet > 0:
		if name, ok := protocol.SolarSystemTargets[req.Planet]; ok {
			target = name
		} else if target == "" {
			target = "-"
		}
		cmd = protocol.StartGotoSolarSystem(req.Planet, lon, lat, target)
	case target != "":
		cmd = protocol.StartGotoDSO(ra, dec, target)
	default:
		return nil, ErrNoTarget
	}

	return c.exclusive(actionGoto, func() (*sequencer.Flow, error) {
		return c.issueGoto(cmd, target, ra, dec, req.Planet)
	})
}

// issueGoto records the requested goto in the session and sends cmd. The
// flow succeeds once the device tracks target.
func (c *Controller) issueGoto(cmd protocol.Command, target string, ra, dec float64, planet int) (*sequencer.Flow, error) {
	c.store.ClearNotices(session.ChannelGoto)
	c.capturePosition(ra, dec)
	c.store.UpdateAstro(func(a *session.AstroSettings) {
		a.RA, a.Dec = ra, dec
		a.Target = target
		a.GotoActive = true
		a.GotoStatus = session.GotoRequested
	})

	ch := session.ChannelGoto
	onMessage := func(f *sequencer.Flow, n protocol.Notification) {
		switch n.Tag {
		case protocol.CmdAstroStartGotoDSO, protocol.CmdAstroStartGotoSolarSystem:
			if n.OK() {
				f.Note("goto accepted")
				return
			}
			c.store.UpdateAstro(func(a *session.AstroSettings) { a.GotoStatus = session.GotoFailed })
			c.reject(f, ch, n, "Error GOTO : "+protocol.DescribeError(n))

		case protocol.NotifyAstroGotoState:
			c.progress(f, ch, n.Data.StatePlainTxt)

		case protocol.NotifyAstroTrackingState:
			if protocol.OperationState(n.Data.State) != protocol.OperationRunning {
				return
			}
			if n.Data.TargetName != target {
				slog.Debug("tracking_other_target", "want", target, "got", n.Data.TargetName)
				return
			}
			c.store.UpdateAstro(func(a *session.AstroSettings) { a.GotoStatus = session.GotoTracking })
			if f.Succeed("Start Tracking") {
				c.store.SetSuccess(ch, "Start Tracking")
				slog.Info("goto_tracking_started", "target", target)
				c.RestoreCameraSettings()
			}
		}
	}

	slog.Info("goto_requested", "target", target, "planet", planet, "ra", ra, "dec", dec)
	return c.seq.Start(sequencer.Invocation{
		Label:     "Start Goto",
		Commands:  []protocol.Command{cmd},
		Tags:      gotoTags,
		OnMessage: onMessage,
	})
}

// capturePosition keeps the coordinates of the first goto so the mount can
// return to that position later.
func (c *Controller) capturePosition(ra, dec float64) {
	pos := c.store.Snapshot().Position
	if pos.Recorded || pos.Captured || ra == 0 || dec == 0 {
		return
	}
	c.store.SetSavedPosition(session.SavedPosition{
		Captured:   true,
		RA:         ra,
		Dec:        dec,
		CapturedAt: c.opts.Now(),
	})
}

// StopGoto stops the current goto or tracking and clears the goto status.
func (c *Controller) StopGoto() (*sequencer.Flow, error) {
	return c.exclusive(actionGoto, c.stopGoto)
}

func (c *Controller) stopGoto() (*sequencer.Flow, error) {
	c.store.ClearNotices(session.ChannelGoto)
	ch := session.ChannelGoto

	return c.seq.Start(sequencer.Invocation{
		Label:    "Stop Goto",
		Commands: []protocol.Command{protocol.StopGoto()},
		Tags:     []protocol.Tag{protocol.CmdAstroStopGoto, protocol.NotifyAstroGotoState},
		OnMessage: func(f *sequencer.Flow, n protocol.Notification) {
			switch n.Tag {
			case protocol.CmdAstroStopGoto:
				if !n.OK() {
					c.reject(f, ch, n, errorText(n))
					return
				}
				c.store.UpdateAstro(func(a *session.AstroSettings) {
					a.Target = ""
					a.GotoActive = false
				})
				c.succeed(f, ch, "Stopping Goto")
			case protocol.NotifyAstroGotoState:
				f.Note(n.Data.StatePlainTxt)
			}
		},
	})
}

// SavePosition converts the captured coordinates into the horizontal
// position at capture time and records it. It returns the message shown to
// the user.
func (c *Controller) SavePosition() (string, error) {
	pos := c.store.Snapshot().Position
	if !pos.Captured {
		return "No Recorded Position", ErrNoPosition
	}
	if c.opts.Location == nil {
		return "", ErrNoLocation
	}

	alt, az := c.opts.Location.ToAltAz(pos.RA, pos.Dec, pos.CapturedAt)
	pos.Recorded = true
	pos.Alt, pos.Az = alt, az
	c.store.SetSavedPosition(pos)

	slog.Info("position_recorded", "alt", alt, "az", az)
	return fmt.Sprintf("Recorded Position: alt: %s,az: %s", coords.FormatDMS(alt), coords.FormatDMS(az)), nil
}

// GotoSavedPosition slews back to the recorded horizontal position and stops
// once tracking has started.
func (c *Controller) GotoSavedPosition() (*sequencer.Flow, string, error) {
	pos := c.store.Snapshot().Position
	if !pos.Recorded {
		return nil, "No Recorded Position", ErrNoPosition
	}
	if c.opts.Location == nil {
		return nil, "", ErrNoLocation
	}

	ra, dec := c.opts.Location.ToRaDec(pos.Alt, pos.Az, c.opts.Now())
	raText, decText := coords.FormatHMS(ra), coords.FormatDMS(dec)
	msg := fmt.Sprintf("Initial Position: alt: %s,az: %s => RA: %s, Declination: %s",
		coords.FormatDMS(pos.Alt), coords.FormatDMS(pos.Az), raText, decText)

	f, err := c.StartGoto(GotoRequest{
		RA:                raText,
		Dec:               decText,
		ObjectName:        "Initial Position",
		StopAfterTracking: true,
	})
	return f, msg, err
}
