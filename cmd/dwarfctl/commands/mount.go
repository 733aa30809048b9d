package commands

import (
	"fmt"
	"strings"

	"github.com/dwarf-astro/dwarfctl/pkg/flows"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/spf13/cobra"
)

var motorResetCmd = &cobra.Command{
	Use:   "motor-reset",
	Short: "Home both axis motors",
	RunE:  runMotorReset,
}

var polarAlignCmd = &cobra.Command{
	Use:   "polar-align",
	Short: "Move the mount to the polar alignment position",
	RunE:  runPolarAlign,
}

var polarPositionCmd = &cobra.Command{
	Use:       "polar-position <altitude|home|azimuth>",
	Short:     "Move one axis to a polar alignment preset",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"altitude", "home", "azimuth"},
	RunE:      runPolarPosition,
}

var motorResetPolarAlign bool

func init() {
	motorResetCmd.Flags().BoolVar(&motorResetPolarAlign, "polar-align", false, "Move to the polar alignment position after the reset")
	rootCmd.AddCommand(motorResetCmd, polarAlignCmd, polarPositionCmd)
}

func runMotorReset(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.runFlow(ctx, func() (*sequencer.Flow, error) {
		return a.ctl.ResetMotors(motorResetPolarAlign)
	})
	printStep(st)
	return err
}

func runPolarAlign(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.runFlow(ctx, a.ctl.PolarAlign)
	printStep(st)
	return err
}

func parsePolarMode(s string) (int, error) {
	switch strings.ToLower(s) {
	case "altitude":
		return flows.PolarModeAltitude, nil
	case "home":
		return flows.PolarModeHome, nil
	case "azimuth":
		return flows.PolarModeAzimuth, nil
	}
	return 0, fmt.Errorf("%w: %q", flows.ErrInvalidMode, s)
}

func runPolarPosition(cmd *cobra.Command, args []string) error {
	mode, err := parsePolarMode(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.runFlow(ctx, func() (*sequencer.Flow, error) {
		return a.ctl.PolarAlignPosition(mode)
	})
	return err
}
