package commands

import (
	"errors"
	"testing"

	"github.com/dwarf-astro/dwarfctl/pkg/flows"
	"github.com/dwarf-astro/dwarfctl/pkg/planetarium"
)

func TestParsePlanet(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"Jupiter", 4, false},
		{"moon", 8, false},
		{"3", 3, false},
		{"0", 0, true},
		{"Pluto", 0, true},
	}

	for _, tt := range tests {
		got, err := parsePlanet(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePlanet(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePlanet(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParsePolarMode(t *testing.T) {
	tests := map[string]int{
		"altitude": flows.PolarModeAltitude,
		"HOME":     flows.PolarModeHome,
		"azimuth":  flows.PolarModeAzimuth,
	}
	for in, want := range tests {
		got, err := parsePolarMode(in)
		if err != nil {
			t.Fatalf("parsePolarMode(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parsePolarMode(%q) = %d, want %d", in, got, want)
		}
	}

	if _, err := parsePolarMode("zenith"); !errors.Is(err, flows.ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestParseSwitch(t *testing.T) {
	if on, err := parseSwitch("on"); err != nil || !on {
		t.Errorf("parseSwitch(on) = %v, %v", on, err)
	}
	if on, err := parseSwitch("off"); err != nil || on {
		t.Errorf("parseSwitch(off) = %v, %v", on, err)
	}
	if _, err := parseSwitch("dim"); err == nil {
		t.Error("expected error for dim")
	}
}

func TestDescribeTarget(t *testing.T) {
	if got := describeTarget(planetarium.Target{Designation: "M42"}); got != "M42" {
		t.Errorf("got %q", got)
	}
	if got := describeTarget(planetarium.Target{RA: 5.5, Dec: -5}); got == "" {
		t.Error("expected coordinates")
	}
}
