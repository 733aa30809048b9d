package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/dwarf-astro/dwarfctl/pkg/coords"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset the persisted device session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted session",
	RunE:  runSessionShow,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the persisted session",
	RunE:  runSessionClear,
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.store.Snapshot()
	if s.DeviceIP == "" && s.DeviceID == 0 {
		fmt.Println("No session recorded")
		return nil
	}

	fmt.Printf("%-22s %s\n", "Device IP", s.DeviceIP)
	fmt.Printf("%-22s %s (id %d)\n", "Device", orDash(s.DeviceName), s.DeviceID)
	if !s.InitialConnection.IsZero() {
		fmt.Printf("%-22s %s\n", "First connection", s.InitialConnection.Format("2006-01-02 15:04:05"))
	}

	im := s.Imaging
	fmt.Printf("%-22s recording=%t live=%t taken=%d stacked=%d\n", "Imaging",
		im.IsRecording, im.IsGoLive, im.ImagesTaken, im.ImagesStacked)

	printAstro(s.Astro)
	printPosition(s.Position)
	printNotices(s.Notices)
	return nil
}

func printAstro(a session.AstroSettings) {
	fmt.Printf("%-22s gainMode=%d expMode=%d gain=%d exposure=%d IR=%d\n", "Camera",
		a.GainMode, a.ExposureMode, a.Gain, a.Exposure, a.IR)
	if a.GotoActive {
		status := map[session.GotoStatus]string{
			session.GotoFailed:    "failed",
			session.GotoRequested: "requested",
			session.GotoTracking:  "tracking",
		}[a.GotoStatus]
		fmt.Printf("%-22s %s %s %s (%s)\n", "Goto", orDash(a.Target),
			coords.FormatHMS(a.RA), coords.FormatDMS(a.Dec), status)
	}
}

func printPosition(p session.SavedPosition) {
	switch {
	case p.Recorded:
		fmt.Printf("%-22s alt %s az %s\n", "Recorded position", coords.FormatDMS(p.Alt), coords.FormatDMS(p.Az))
	case p.Captured:
		fmt.Printf("%-22s RA %s Dec %s at %s\n", "Captured position",
			coords.FormatHMS(p.RA), coords.FormatDMS(p.Dec), p.CapturedAt.Format("15:04:05"))
	}
}

func printNotices(notices map[session.Channel]session.Notice) {
	channels := make([]string, 0, len(notices))
	for ch := range notices {
		channels = append(channels, string(ch))
	}
	sort.Strings(channels)
	for _, ch := range channels {
		n := notices[session.Channel(ch)]
		if n.Error != "" {
			errorColor.Printf("%-22s %s\n", ch, n.Error)
		} else if n.Success != "" {
			successColor.Printf("%-22s %s\n", ch, n.Success)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.ClearState(context.Background()); err != nil {
		return errors.Wrap(err, "clear session failed")
	}
	fmt.Println("Session cleared")
	return nil
}
