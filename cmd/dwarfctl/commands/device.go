package commands

import (
	"fmt"

	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the device and show its session",
	RunE:  runConnect,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run the astro calibration (plate solving)",
	RunE:  runCalibrate,
}

var cameraCmd = &cobra.Command{
	Use:   "camera-refresh",
	Short: "Read the telephoto camera parameters into the session",
	RunE:  runCameraRefresh,
}

func init() {
	rootCmd.AddCommand(connectCmd, calibrateCmd, cameraCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
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

	s := a.store.Snapshot()
	fmt.Printf("Device:   %s (id %d) at %s\n", s.DeviceName, s.DeviceID, s.DeviceIP)
	fmt.Printf("Battery:  %d%% (charge status %d)\n", s.BatteryLevel, s.ChargeStatus)
	if s.CardTotal > 0 {
		fmt.Printf("Storage:  %d / %d available\n", s.CardAvailable, s.CardTotal)
	}
	if s.SlaveMode {
		infoColor.Println("Another client controls the device: read-only session")
	}
	return nil
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.runFlow(ctx, a.ctl.Calibrate)
	return err
}

func runCameraRefresh(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.runFlow(ctx, a.ctl.RefreshCameraSettings); err != nil {
		return err
	}

	printAstro(a.store.Snapshot().Astro)
	return nil
}

func printStep(st sequencer.State) {
	if st.Steps > 0 {
		fmt.Printf("%s (%d/%d)\n", st.Detail, st.Step, st.Steps)
	}
}
