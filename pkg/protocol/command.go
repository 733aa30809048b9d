package protocol

import (
	"time"
)

// Command is an outbound packet. It is immutable once built: the params map is
// never modified after construction.
type Command struct {
	Tag    Tag
	Params map[string]any
}

func newCommand(tag Tag, params map[string]any) Command {
	if params == nil {
		params = map[string]any{}
	}
	return Command{Tag: tag, Params: params}
}

// SetTime sends the host clock to the device.
func SetTime(now time.Time) Command {
	return newCommand(CmdSystemSetTime, map[string]any{
		"timestamp":       now.Unix(),
		"timezone_offset": offsetHours(now),
	})
}

// SetTimezone sends an IANA timezone name to the device.
func SetTimezone(tz string) Command {
	return newCommand(CmdSystemSetTimezone, map[string]any{"timezone": tz})
}

// StartCalibration starts the astro calibration (plate solving) routine.
func StartCalibration() Command {
	return newCommand(CmdAstroStartCalibration, nil)
}

// StartGotoDSO slews to a deep-sky object given RA in decimal hours and
// declination in decimal degrees.
func StartGotoDSO(ra, dec float64, target string) Command {
	return newCommand(CmdAstroStartGotoDSO, map[string]any{
		"ra":          ra,
		"dec":         dec,
		"target_name": target,
	})
}

// StartGotoSolarSystem slews to a solar-system body. Longitude is positive to
// the west, as the device expects.
func StartGotoSolarSystem(index int, lon, lat float64, target string) Command {
	return newCommand(CmdAstroStartGotoSolarSystem, map[string]any{
		"index":       index,
		"lon":         lon,
		"lat":         lat,
		"target_name": target,
	})
}

// StopGoto stops the current goto or tracking.
func StopGoto() Command {
	return newCommand(CmdAstroStopGoto, nil)
}

func GetSystemWorkingState() Command { return newCommand(CmdCameraTeleGetSystemWorkingState, nil) }
func OpenTeleCamera() Command { return newCommand(CmdCameraTeleOpenCamera, nil) }
func CloseTeleCamera() Command { return newCommand(CmdCameraTeleCloseCamera, nil) }
func OpenWideCamera() Command { return newCommand(CmdCameraWideOpenCamera, nil) }
func CloseWideCamera() Command { return newCommand(CmdCameraWideCloseCamera, nil) }
func GetAllTeleParams() Command { return newCommand(CmdCameraTeleGetAllParams, nil) }

// ISP setting names understood by SetTeleISP.
const (
	ISPGainMode     = "gainMode"
	ISPExposureMode = "exposureMode"
	ISPGain         = "gain"
	ISPExposure     = "exposure"
	ISPIRCut        = "IR"
)

var ispTags = map[string]Tag{
	ISPGainMode:     CmdCameraTeleSetGainMode,
	ISPExposureMode: CmdCameraTeleSetExpMode,
	ISPGain:         CmdCameraTeleSetGain,
	ISPExposure:     CmdCameraTeleSetExp,
	ISPIRCut:        CmdCameraTeleSetIRCut,
}

// SetTeleISP builds the command applying one telephoto ISP setting. The second
// return value is false for an unknown setting name.
func SetTeleISP(name string, value int) (Command, bool) {
	tag, ok := ispTags[name]
	if !ok {
		return Command{}, false
	}
	key := "index"
	if name == ISPGainMode || name == ISPExposureMode {
		key = "mode"
	}
	return newCommand(tag, map[string]any{key: value}), true
}

func RingLightOn() Command { return newCommand(CmdRGBPowerOpenRGB, nil) }
func RingLightOff() Command { return newCommand(CmdRGBPowerCloseRGB, nil) }
func PowerLightOn() Command { return newCommand(CmdRGBPowerPowerIndOn, nil) }
func PowerLightOff() Command { return newCommand(CmdRGBPowerPowerIndOff, nil) }
func PowerDown() Command { return newCommand(CmdRGBPowerPowerDown, nil) }
func Reboot() Command { return newCommand(CmdRGBPowerReboot, nil) }

// MotorReset homes one axis motor in the given direction.
func MotorReset(motorID int, direction bool) Command {
	return newCommand(CmdStepMotorReset, map[string]any{
		"id":        motorID,
		"direction": direction,
	})
}

// MotorRunTo moves one axis motor to an absolute angle.
func MotorRunTo(motorID int, endPosition, speed float64, speedRamping, resolutionLevel int) Command {
	return newCommand(CmdStepMotorRunTo, map[string]any{
		"id":               motorID,
		"end_position":     endPosition,
		"speed":            speed,
		"speed_ramping":    speedRamping,
		"resolution_level": resolutionLevel,
	})
}

func offsetHours(t time.Time) float64 {
	_, offset := t.Zone()
	return float64(offset) / 3600
}
