package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/db"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List device notifications received by past flows",
	RunE:  runLog,
}

var logPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old notifications",
	RunE:  runLogPrune,
}

var (
	logFlow      string
	logTag       string
	logLimit     int
	logOlderThan time.Duration
)

func init() {
	logCmd.Flags().StringVar(&logFlow, "flow", "", "Only notifications of this flow id")
	logCmd.Flags().StringVar(&logTag, "cmd", "", "Only notifications with this tag")
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "Maximum number of notifications")
	logPruneCmd.Flags().DurationVar(&logOlderThan, "older-than", 7*24*time.Hour, "Age of the notifications to delete")

	logCmd.AddCommand(logPruneCmd)
	rootCmd.AddCommand(logCmd)
}

func openRepository(path string) (*db.Repository, error) {
	if err := ensureDirectories(path, ""); err != nil {
		return nil, err
	}
	repo, err := db.NewRepository(path)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	return repo, nil
}

func runLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	entries, err := repo.ListNotifications(context.Background(), db.Filter{
		FlowID: logFlow,
		Cmd:    logTag,
		Limit:  logLimit,
	})
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(entries) == 0 {
		fmt.Println("No notifications found")
		return nil
	}

	fmt.Printf("%-20s %-20s %-44s %-5s %-6s\n", "RECEIVED", "FLOW", "CMD", "TYPE", "CODE")
	fmt.Println("------------------------------------------------------------------------------------------------------")

	for _, e := range entries {
		fmt.Printf("%-20s %-20s %-44s %-5d %-6d\n",
			e.ReceivedAt, orDash(e.Label), e.Cmd, e.Type, e.Code)
	}

	return nil
}

func runLogPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := openRepository(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	n, err := repo.PruneNotifications(context.Background(), time.Now().Add(-logOlderThan))
	if err != nil {
		return errors.Wrap(err, "prune failed")
	}
	fmt.Printf("Deleted %d notifications\n", n)
	return nil
}
