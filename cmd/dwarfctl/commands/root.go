package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dwarf-astro/dwarfctl/internal/config"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "dwarfctl",
	Short: "Dwarf smart telescope control panel",
	Long: `Drives a Dwarf telescope over its WebSocket command API: connection,
calibration, goto, motor reset, polar alignment, lights and power. Optionally
centers a Stellarium planetarium on the same target.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("device-ip", "", "Device IP address")
	flags.Int("device-port", 9900, "Device WebSocket port")
	flags.Bool("force-ip", false, "Reconnect to device-ip even if a session exists")
	flags.String("latitude", "", "Observer latitude, decimal degrees")
	flags.String("longitude", "", "Observer longitude, decimal degrees (east positive)")
	flags.String("timezone", "UTC", "Observer IANA timezone")
	flags.String("stellarium-url", "", "Stellarium remote control URL")
	flags.String("sqlite-path", ".dwarfctl/dwarfctl.db", "SQLite database path")
	flags.String("fsm-db-path", ".dwarfctl/fsm", "FSM database path")
	flags.Duration("command-timeout", 0, "Device liveness window (default 5s)")
	flags.String("s3-bucket", "", "S3 bucket for log archives")
	flags.String("s3-region", "us-east-1", "S3 region")
	flags.String("s3-endpoint", "", "S3-compatible endpoint URL")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Also write logs to this file, rotated")

	for _, name := range []string{
		"device-ip", "device-port", "force-ip", "latitude", "longitude", "timezone",
		"stellarium-url", "sqlite-path", "fsm-db-path", "s3-bucket", "s3-region",
		"s3-endpoint", "log-level", "log-file",
	} {
		viper.BindPFlag(name, flags.Lookup(name))
	}
}

// setupLogging installs the configured slog logger. With log-file set, logs
// are also written to a size-rotated file.
func setupLogging(cmd *cobra.Command, args []string) error {
	// Not bound: a zero flag default would shadow the configured timeout.
	if d, _ := cmd.Flags().GetDuration("command-timeout"); d > 0 {
		viper.Set("command-timeout", d)
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}
