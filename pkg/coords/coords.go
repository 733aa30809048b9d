// Package coords converts between the coordinate forms used by the flows:
// sexagesimal strings, decimal RA/Dec, horizontal coordinates and the unit
// vectors the planetarium expects.
package coords

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
)

var ErrInvalidFormat = errors.New("invalid coordinate format")

// fields splits a sexagesimal string on any of the usual separators.
func fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ' ', ':', 'h', 'H', 'm', 'M', 's', 'S', '°', 'd', 'D', '\'', '"', '′', '″':
			return true
		}
		return false
	})
}

func parseSexagesimal(s string) (sign, value float64, err error) {
	s = strings.TrimSpace(s)
	sign = 1
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	parts := fields(s)
	if len(parts) == 0 || len(parts) > 3 {
		return 0, 0, errors.Wrapf(ErrInvalidFormat, "%q", s)
	}
	scale := 1.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, 0, errors.Wrapf(ErrInvalidFormat, "%q", s)
		}
		value += v / scale
		scale *= 60
	}
	return sign, value, nil
}

// ParseHMS parses right ascension such as "00h42m44.3s" or "0:42:44.3" into
// decimal hours.
func ParseHMS(s string) (float64, error) {
	sign, v, err := parseSexagesimal(s)
	if err != nil {
		return 0, err
	}
	if sign < 0 || v >= 24 {
		return 0, errors.Wrapf(ErrInvalidFormat, "right ascension out of range: %q", s)
	}
	return v, nil
}

// ParseDMS parses a declination or latitude such as "+41°16'09\"" into
// decimal degrees.
func ParseDMS(s string) (float64, error) {
	sign, v, err := parseSexagesimal(s)
	if err != nil {
		return 0, err
	}
	if v > 90 {
		return 0, errors.Wrapf(ErrInvalidFormat, "declination out of range: %q", s)
	}
	return sign * v, nil
}

func split(v float64) (int, int, float64) {
	whole := math.Floor(v)
	minutes := (v - whole) * 60
	m := math.Floor(minutes)
	sec := (minutes - m) * 60
	// Carry rounding so 59.96s never prints as 60.0s.
	if math.Round(sec*10)/10 >= 60 {
		sec = 0
		m++
	}
	if m >= 60 {
		m = 0
		whole++
	}
	return int(whole), int(m), sec
}

// FormatHMS formats decimal hours as "00h42m44.3s".
func FormatHMS(hours float64) string {
	h, m, s := split(math.Mod(math.Mod(hours, 24)+24, 24))
	return fmt.Sprintf("%02dh%02dm%04.1fs", h%24, m, s)
}

// FormatDMS formats decimal degrees as "+41°16'09.0\"".
func FormatDMS(deg float64) string {
	sign := "+"
	if deg < 0 {
		sign = "-"
		deg = -deg
	}
	d, m, s := split(deg)
	return fmt.Sprintf("%s%02d°%02d'%04.1f\"", sign, d, m, s)
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(rad float64) float64 { return rad * 180 / math.Pi }

// Vec3 converts RA (decimal hours) and Dec (decimal degrees) into the unit
// vector of the equatorial frame.
func Vec3(raHours, decDeg float64) [3]float64 {
	ra := rad(raHours * 15)
	dec := rad(decDeg)
	return [3]float64{
		math.Cos(dec) * math.Cos(ra),
		math.Cos(dec) * math.Sin(ra),
		math.Sin(dec),
	}
}

func julianDate(t time.Time) float64 {
	return float64(t.UTC().UnixNano())/86400e9 + 2440587.5
}

// LocalSiderealTime returns the local sidereal time in degrees for an
// observer at lonDeg (east positive).
func LocalSiderealTime(t time.Time, lonDeg float64) float64 {
	d := julianDate(t) - 2451545.0
	gmst := 280.46061837 + 360.98564736629*d
	return math.Mod(math.Mod(gmst+lonDeg, 360)+360, 360)
}

// Observer is a location on Earth in decimal degrees, longitude east positive.
type Observer struct {
	Lat float64
	Lon float64
}

// ToAltAz converts equatorial coordinates to altitude and azimuth (degrees,
// azimuth from north through east) at time t.
func (o Observer) ToAltAz(raHours, decDeg float64, t time.Time) (alt, az float64) {
	ha := rad(LocalSiderealTime(t, o.Lon) - raHours*15)
	dec := rad(decDeg)
	lat := rad(o.Lat)

	sinAlt := math.Sin(dec)*math.Sin(lat) + math.Cos(dec)*math.Cos(lat)*math.Cos(ha)
	altR := math.Asin(sinAlt)

	y := -math.Sin(ha) * math.Cos(dec)
	x := math.Sin(dec)*math.Cos(lat) - math.Cos(dec)*math.Sin(lat)*math.Cos(ha)
	azR := math.Atan2(y, x)

	return deg(altR), math.Mod(deg(azR)+360, 360)
}

// ToRaDec converts altitude and azimuth (degrees) at time t back to RA in
// decimal hours and Dec in decimal degrees.
func (o Observer) ToRaDec(alt, az float64, t time.Time) (raHours, decDeg float64) {
	altR, azR, lat := rad(alt), rad(az), rad(o.Lat)

	sinDec := math.Sin(altR)*math.Sin(lat) + math.Cos(altR)*math.Cos(lat)*math.Cos(azR)
	decR := math.Asin(sinDec)

	y := -math.Sin(azR) * math.Cos(altR)
	x := math.Sin(altR)*math.Cos(lat) - math.Cos(altR)*math.Sin(lat)*math.Cos(azR)
	ha := deg(math.Atan2(y, x))

	ra := math.Mod(math.Mod(LocalSiderealTime(t, o.Lon)-ha, 360)+360, 360)
	return ra / 15, deg(decR)
}
