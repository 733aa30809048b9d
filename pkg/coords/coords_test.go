package coords

import (
	"errors"
	"math"
	"testing"
	"time"
)

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestParseHMS(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"00h42m44.3s", 0.712305, false},
		{"0:42:44.3", 0.712305, false},
		{"5 35 17", 5.588055, false},
		{"12", 12, false},
		{"24:00:00", 0, true},
		{"-1:00:00", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHMS(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFormat) {
					t.Errorf("ParseHMS(%q) err = %v, want ErrInvalidFormat", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHMS(%q) failed: %v", tt.in, err)
			}
			if !near(got, tt.want, 1e-5) {
				t.Errorf("ParseHMS(%q) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDMS(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{`+41°16'09"`, 41.269167, false},
		{"-05:23:28", -5.391111, false},
		{"-0:30:00", -0.5, false},
		{"89", 89, false},
		{"91", 0, true},
		{"1:2:3:4", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDMS(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDMS(%q) succeeded", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDMS(%q) failed: %v", tt.in, err)
			}
			if !near(got, tt.want, 1e-5) {
				t.Errorf("ParseDMS(%q) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got := FormatHMS(0.712305); got != "00h42m44.3s" {
		t.Errorf("FormatHMS = %s", got)
	}
	if got := FormatDMS(-5.391111); got != `-05°23'28.0"` {
		t.Errorf("FormatDMS = %s", got)
	}
	if got := FormatHMS(1.99999999); got != "02h00m00.0s" {
		t.Errorf("FormatHMS carry = %s", got)
	}
}

func TestVec3(t *testing.T) {
	tests := []struct {
		name    string
		ra, dec float64
		want    [3]float64
	}{
		{"vernal equinox", 0, 0, [3]float64{1, 0, 0}},
		{"six hours", 6, 0, [3]float64{0, 1, 0}},
		{"north pole", 3, 90, [3]float64{0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Vec3(tt.ra, tt.dec)
			for i := range got {
				if !near(got[i], tt.want[i], 1e-9) {
					t.Errorf("Vec3(%v, %v) = %v, want %v", tt.ra, tt.dec, got, tt.want)
					break
				}
			}
		})
	}
}

func TestLocalSiderealTime(t *testing.T) {
	// At J2000.0 the Greenwich mean sidereal time is 280.46 degrees.
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := LocalSiderealTime(j2000, 0); !near(got, 280.46061837, 1e-6) {
		t.Errorf("GMST at J2000 = %f", got)
	}
	if got := LocalSiderealTime(j2000, 90); !near(got, 10.46061837, 1e-6) {
		t.Errorf("LST at 90E = %f", got)
	}
}

func TestObserver_RoundTrip(t *testing.T) {
	obs := Observer{Lat: 48.85, Lon: 2.35}
	at := time.Date(2024, 10, 5, 22, 30, 0, 0, time.UTC)

	for _, target := range []struct{ ra, dec float64 }{
		{0.712305, 41.269167},
		{5.588055, -5.391111},
		{18.6156, 38.7837},
	} {
		alt, az := obs.ToAltAz(target.ra, target.dec, at)
		ra, dec := obs.ToRaDec(alt, az, at)
		if !near(ra, target.ra, 1e-6) || !near(dec, target.dec, 1e-6) {
			t.Errorf("round trip of (%f, %f) = (%f, %f)", target.ra, target.dec, ra, dec)
		}
	}
}

func TestObserver_PoleAltitude(t *testing.T) {
	obs := Observer{Lat: 45, Lon: 0}
	alt, _ := obs.ToAltAz(0, 90, time.Now())
	if !near(alt, 45, 1e-6) {
		t.Errorf("celestial pole altitude = %f, want the latitude", alt)
	}
}
