package main

import (
	"log/slog"
	"os"

	"github.com/dwarf-astro/dwarfctl/cmd/dwarfctl/commands"
)

func main() {
	// Replaced once the configuration is loaded; stdout stays free for
	// command output.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
