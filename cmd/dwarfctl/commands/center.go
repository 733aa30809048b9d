package commands

import (
	"github.com/dwarf-astro/dwarfctl/internal/config"
	"github.com/dwarf-astro/dwarfctl/pkg/coords"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/planetarium"
	"github.com/spf13/cobra"
)

var centerCmd = &cobra.Command{
	Use:   "center [designation]",
	Short: "Center Stellarium on an object or on coordinates",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCenter,
}

var (
	centerRA       string
	centerDec      string
	centerAsteroid bool
	centerMosaic   bool
)

func init() {
	centerCmd.Flags().StringVar(&centerRA, "ra", "", "Right ascension, e.g. 05h34m31.9s")
	centerCmd.Flags().StringVar(&centerDec, "dec", "", "Declination, e.g. +22°00'52\"")
	centerCmd.Flags().BoolVar(&centerAsteroid, "asteroid", false, "The designation names an asteroid")
	centerCmd.Flags().BoolVar(&centerMosaic, "mosaic", false, "Center on the coordinates even when a designation is given")
	rootCmd.AddCommand(centerCmd)
}

func runCenter(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	t := planetarium.Target{Asteroid: centerAsteroid, Mosaic: centerMosaic}
	if len(args) == 1 {
		t.Designation = args[0]
	}
	if centerRA != "" || centerDec != "" {
		if t.RA, err = coords.ParseHMS(centerRA); err != nil {
			return errors.Wrap(err, "invalid right ascension")
		}
		if t.Dec, err = coords.ParseDMS(centerDec); err != nil {
			return errors.Wrap(err, "invalid declination")
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := planetarium.New(cfg.StellariumURL, cfg.PlanetariumTimeout)
	if err := client.Center(ctx, t); err != nil {
		errorColor.Println(planetarium.Message(err))
		return err
	}

	successColor.Printf("Stellarium centered on %s\n", describeTarget(t))
	return nil
}
