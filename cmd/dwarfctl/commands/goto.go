package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dwarf-astro/dwarfctl/pkg/coords"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/flows"
	"github.com/dwarf-astro/dwarfctl/pkg/planetarium"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/spf13/cobra"
)

var gotoCmd = &cobra.Command{
	Use:   "goto [object name]",
	Short: "Slew to a deep-sky object or a solar-system body",
	Example: `  dwarfctl goto "M 31 (Andromeda Galaxy)" --ra "0h42m44s" --dec "41°16'9\""
  dwarfctl goto --planet jupiter --stop-after-tracking`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGoto,
}

var stopGotoCmd = &cobra.Command{
	Use:   "stop-goto",
	Short: "Stop the current goto or tracking",
	RunE:  runStopGoto,
}

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Record or return to the position of the session's first goto",
}

var positionSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Record the horizontal position of the first goto",
	RunE:  runPositionSave,
}

var positionGotoCmd = &cobra.Command{
	Use:   "goto",
	Short: "Return to the recorded position",
	RunE:  runPositionGoto,
}

var (
	gotoRA        string
	gotoDec       string
	gotoPlanet    string
	gotoStop      bool
	gotoCenter    bool
	gotoNoRestore bool
)

func init() {
	gotoCmd.Flags().StringVar(&gotoRA, "ra", "", "Right ascension, e.g. 05h34m31.9s")
	gotoCmd.Flags().StringVar(&gotoDec, "dec", "", "Declination, e.g. +22°00'52\"")
	gotoCmd.Flags().StringVar(&gotoPlanet, "planet", "", "Solar-system body, by name or device index")
	gotoCmd.Flags().BoolVar(&gotoStop, "stop-after-tracking", false, "Stop the goto once tracking has started")
	gotoCmd.Flags().BoolVar(&gotoCenter, "center", false, "Also center Stellarium on the target")
	gotoCmd.Flags().BoolVar(&gotoNoRestore, "no-wait", false, "Exit without waiting for camera settings to be restored")

	positionCmd.AddCommand(positionSaveCmd, positionGotoCmd)
	rootCmd.AddCommand(gotoCmd, stopGotoCmd, positionCmd)
}

// parsePlanet accepts a body name ("Jupiter") or its device index ("4").
func parsePlanet(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		if _, ok := protocol.SolarSystemTargets[i]; ok {
			return i, nil
		}
	}
	for i, name := range protocol.SolarSystemTargets {
		if strings.EqualFold(name, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown solar-system body %q", s)
}

func runGoto(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	planet, err := parsePlanet(gotoPlanet)
	if err != nil {
		return err
	}
	req := flows.GotoRequest{
		Planet:            planet,
		RA:                gotoRA,
		Dec:               gotoDec,
		StopAfterTracking: gotoStop,
	}
	if len(args) == 1 {
		req.ObjectName = args[0]
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if gotoCenter {
		centerPlanetarium(ctx, a, req)
	}

	if _, err := a.runFlow(ctx, func() (*sequencer.Flow, error) { return a.ctl.StartGoto(req) }); err != nil {
		return err
	}
	if !gotoNoRestore {
		a.awaitRestore(ctx)
	}
	return nil
}

// centerPlanetarium centers Stellarium on the goto target. A failure is
// reported on the planetarium channel and does not stop the goto.
func centerPlanetarium(ctx context.Context, a *app, req flows.GotoRequest) {
	t := planetarium.Target{Designation: req.ObjectName}
	if req.Planet > 0 {
		t.Designation = protocol.SolarSystemTargets[req.Planet]
	} else if req.RA != "" && req.Dec != "" {
		ra, err := coords.ParseHMS(req.RA)
		if err != nil {
			return
		}
		dec, err := coords.ParseDMS(req.Dec)
		if err != nil {
			return
		}
		t.RA, t.Dec = ra, dec
	}

	client := planetarium.New(a.cfg.StellariumURL, a.cfg.PlanetariumTimeout)
	if err := client.Center(ctx, t); err != nil {
		a.store.SetError(session.ChannelPlanetarium, planetarium.Message(err))
		return
	}
	a.store.SetSuccess(session.ChannelPlanetarium, "Stellarium centered on "+describeTarget(t))
}

func describeTarget(t planetarium.Target) string {
	if t.Designation != "" {
		return t.Designation
	}
	return coords.FormatHMS(t.RA) + " " + coords.FormatDMS(t.Dec)
}

func runStopGoto(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.runFlow(ctx, a.ctl.StopGoto)
	return err
}

func runPositionSave(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	msg, err := a.ctl.SavePosition()
	if err != nil {
		errorColor.Println(msg)
		return err
	}
	successColor.Println(msg)
	return nil
}

func runPositionGoto(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.connect(ctx); err != nil {
		return err
	}
	f, msg, err := a.ctl.GotoSavedPosition()
	if err != nil {
		return errors.Wrap(err, "return to recorded position failed")
	}
	infoColor.Println(msg)
	if _, err := wait(ctx, f); err != nil {
		return err
	}
	a.awaitRestore(ctx)
	return nil
}
