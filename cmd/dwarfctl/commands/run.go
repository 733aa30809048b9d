package commands

import (
	"log/slog"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	appfsm "github.com/dwarf-astro/dwarfctl/pkg/fsm"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var runCmd = &cobra.Command{
	Use:   "run [object name]",
	Short: "Connect, optionally calibrate, then goto, as one resumable run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRun,
}

var (
	runCalibrate   bool
	runStepTimeout time.Duration
)

func init() {
	runCmd.Flags().BoolVar(&runCalibrate, "calibrate", false, "Calibrate before the goto")
	runCmd.Flags().StringVar(&gotoRA, "ra", "", "Right ascension, e.g. 05h34m31.9s")
	runCmd.Flags().StringVar(&gotoDec, "dec", "", "Declination, e.g. +22°00'52\"")
	runCmd.Flags().StringVar(&gotoPlanet, "planet", "", "Solar-system body, by name or device index")
	runCmd.Flags().BoolVar(&gotoStop, "stop-after-tracking", false, "Stop the goto once tracking has started")
	runCmd.Flags().DurationVar(&runStepTimeout, "step-timeout", 5*time.Minute, "Maximum wait for each step")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	planet, err := parsePlanet(gotoPlanet)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := ensureDirectories(a.cfg.SQLitePath, a.cfg.FSMDBPath); err != nil {
		return err
	}

	manager, err := fsm.New(fsm.Config{DBPath: a.cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(a.ctl, a.store, a.cfg.FSMMaxRetries, runStepTimeout)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &appfsm.RunRequest{
		DeviceIP:          a.store.Snapshot().DeviceIP,
		Calibrate:         runCalibrate,
		RA:                gotoRA,
		Dec:               gotoDec,
		Planet:            planet,
		StopAfterTracking: gotoStop,
	}
	if len(args) == 1 {
		req.ObjectName = args[0]
	}
	resp := &appfsm.RunResponse{}

	runID := uuid.NewString()
	version, err := start(ctx, runID, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "run_id", runID, "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		if resp.Status == appfsm.StatusFailed {
			errorColor.Println(resp.ErrorMessage)
		}
		return errors.Wrap(err, "FSM execution failed")
	}

	slog.Info("run completed", "status", resp.Status, "device", resp.DeviceName, "target", resp.Target)
	a.awaitRestore(ctx)
	return nil
}
