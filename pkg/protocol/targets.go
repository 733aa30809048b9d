package protocol

import (
	"strconv"
	"strings"
)

// SolarSystemTargets maps the device's solar-system index to the target name
// it reports in tracking notifications.
var SolarSystemTargets = map[int]string{
	1: "Mercury",
	2: "Venus",
	3: "Mars",
	4: "Jupiter",
	5: "Saturn",
	6: "Uranus",
	7: "Neptune",
	8: "Moon",
	9: "Sun",
}

// TargetName normalises a catalogue label into the name sent with a goto:
// everything before the first "(" trimmed, spaces replaced by underscores.
//
//	"M 31 (Andromeda Galaxy)" -> "M_31"
func TargetName(objectName string) string {
	name := objectName
	if i := strings.Index(name, "("); i > 0 {
		if head := strings.TrimSpace(name[:i]); head != "" {
			name = head
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// DeviceName derives a display name from the device id reported in frames.
func DeviceName(deviceID int) string {
	if deviceID == 1 {
		return "Dwarf II"
	}
	return "Dwarf" + strconv.Itoa(deviceID+1)
}
