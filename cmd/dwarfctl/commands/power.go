package commands

import (
	"fmt"

	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/spf13/cobra"
)

var lightsCmd = &cobra.Command{
	Use:       "lights <ring|power> <on|off>",
	Short:     "Switch the ring light or the power indicator",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"ring", "power"},
	RunE:      runLights,
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Power the device down",
	RunE:  runShutdown,
}

var shutdownReboot bool

func init() {
	shutdownCmd.Flags().BoolVar(&shutdownReboot, "reboot", false, "Close the cameras and reboot instead")
	rootCmd.AddCommand(lightsCmd, shutdownCmd)
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func runLights(cmd *cobra.Command, args []string) error {
	on, err := parseSwitch(args[1])
	if err != nil {
		return err
	}

	var start func(a *app) (*sequencer.Flow, error)
	switch args[0] {
	case "ring":
		start = func(a *app) (*sequencer.Flow, error) { return a.ctl.SwitchRingLight(on) }
	case "power":
		start = func(a *app) (*sequencer.Flow, error) { return a.ctl.SwitchPowerLight(on) }
	default:
		return fmt.Errorf("unknown light %q", args[0])
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.runFlow(ctx, func() (*sequencer.Flow, error) { return start(a) })
	return err
}

func runShutdown(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.runFlow(ctx, func() (*sequencer.Flow, error) { return a.ctl.Shutdown(shutdownReboot) })
	return err
}
