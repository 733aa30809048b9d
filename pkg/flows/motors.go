package flows

import (
	"log/slog"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

// Motor axes.
const (
	motorAzimuth  = 1
	motorAltitude = 2
)

// Polar align position modes.
const (
	PolarModeAltitude = 0
	PolarModeHome     = 1
	PolarModeAzimuth  = 2
)

func motorResetCommands() []protocol.Command {
	return []protocol.Command{
		protocol.MotorReset(motorAzimuth, true),
		protocol.MotorReset(motorAzimuth, false),
		protocol.MotorReset(motorAltitude, false),
		protocol.MotorReset(motorAltitude, true),
	}
}

// ResetMotors homes both axes. The four reset commands are sent one at a
// time, each after the previous one is applied. With polarAlign set, the
// polar align positioning starts once all four steps are confirmed.
func (c *Controller) ResetMotors(polarAlign bool) (*sequencer.Flow, error) {
	if !polarAlign {
		return c.resetMotors()
	}
	return c.seq.RunWorkflow(sequencer.Workflow{
		Name: "Motor reset then polar align",
		Steps: []sequencer.Step{
			{Name: "Motor Reset", Start: c.resetMotors},
			{Name: "Polar Align", Start: c.PolarAlign},
		},
	})
}

func (c *Controller) resetMotors() (*sequencer.Flow, error) {
	return c.exclusive(actionMount, c.startMotorReset)
}

func (c *Controller) startMotorReset() (*sequencer.Flow, error) {
	ch := session.ChannelMotor
	c.store.ClearNotices(ch)
	c.store.SetSuccess(ch, "Start Motor Reseting")

	cmds := motorResetCommands()
	return c.seq.Start(sequencer.Invocation{
		Label:     "Motor Reset",
		Commands:  cmds[:1],
		Tags:      []protocol.Tag{protocol.CmdStepMotorReset},
		Steps:     len(cmds),
		OnMessage: c.stepper(ch, cmds, "Motor Reset", "Motor Reset"),
	})
}

// stepper handles a flow that sends cmds one by one. Each applied
// confirmation advances the flow and sends the next command; the last one
// resolves it with done.
func (c *Controller) stepper(ch session.Channel, cmds []protocol.Command, progress, done string) func(*sequencer.Flow, protocol.Notification) {
	return func(f *sequencer.Flow, n protocol.Notification) {
		if !n.OK() {
			c.reject(f, ch, n, errorText(n))
			return
		}
		if !n.Applied() {
			c.progress(f, ch, progress)
			return
		}
		step, ok := f.Advance()
		if !ok {
			return
		}
		if step < len(cmds) {
			slog.Debug("motor_step_applied", "flow", f.Label(), "step", step)
			f.Send(cmds[step])
			c.progress(f, ch, progress)
			return
		}
		c.succeed(f, ch, done)
	}
}

func altitudeHome(deviceName string) float64 {
	if deviceName == protocol.DeviceName(1) {
		return 146.5
	}
	return 166.5
}

// PolarAlign moves both axes to the polar align position. Like the motor
// reset, it retires any mount flow still in progress.
func (c *Controller) PolarAlign() (*sequencer.Flow, error) {
	return c.exclusive(actionMount, c.startPolarAlign)
}

func (c *Controller) startPolarAlign() (*sequencer.Flow, error) {
	ch := session.ChannelPolarAlign
	c.store.ClearNotices(ch)
	c.store.SetSuccess(ch, "Start Polar Align Process")

	cmds := []protocol.Command{
		protocol.MotorRunTo(motorAzimuth, 160, 10, 100, 3),
		protocol.MotorRunTo(motorAltitude, altitudeHome(c.store.Snapshot().DeviceName), 10, 100, 3),
	}
	return c.seq.Start(sequencer.Invocation{
		Label:     "Polar Align",
		Commands:  cmds[:1],
		Tags:      []protocol.Tag{protocol.CmdStepMotorRunTo},
		Steps:     len(cmds),
		OnMessage: c.stepper(ch, cmds, "Motor Goto Position", "POLAR ALIGN POSITION OK"),
	})
}

// PolarAlignPosition moves one axis to a polar align position: the home
// azimuth, the altitude position or the opposite azimuth.
func (c *Controller) PolarAlignPosition(mode int) (*sequencer.Flow, error) {
	var cmd protocol.Command
	switch mode {
	case PolarModeHome:
		cmd = protocol.MotorRunTo(motorAzimuth, 69, 10, 100, 3)
	case PolarModeAltitude:
		cmd = protocol.MotorRunTo(motorAzimuth, 160, 10, 100, 3)
	case PolarModeAzimuth:
		cmd = protocol.MotorRunTo(motorAltitude, 317, 10, 100, 2)
	default:
		return nil, ErrInvalidMode
	}

	return c.exclusive(actionMount, func() (*sequencer.Flow, error) {
		ch := session.ChannelPolarAlign
		c.store.ClearNotices(ch)
		cmds := []protocol.Command{cmd}
		return c.seq.Start(sequencer.Invocation{
			Label:     "Polar Align Position",
			Commands:  cmds,
			Tags:      []protocol.Tag{protocol.CmdStepMotorRunTo},
			Steps:     1,
			OnMessage: c.stepper(ch, cmds, "Motor Goto Position", "POLAR ALIGN POSITION OK"),
		})
	})
}
