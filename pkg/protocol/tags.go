// Package protocol describes the Dwarf command API as seen by the orchestration
// layer: command and notification tags, error codes, state enums, outbound
// commands and inbound notifications.
//
// The vendor wire protocol is not reproduced here. Frames are exchanged as JSON
// envelopes carrying the tag, the message type and a typed payload.
package protocol

// Tag identifies a command reply or a device notification.
type Tag string

// TagAny matches every notification. It is used by the connection flow so that
// all device telemetry reaches the session store without listing each tag.
const TagAny Tag = "*"

// Command tags.
const (
	CmdSystemSetTime     Tag = "CMD_SYSTEM_SET_TIME"
	CmdSystemSetTimezone Tag = "CMD_SYSTEM_SET_TIME_ZONE"

	CmdAstroStartCalibration     Tag = "CMD_ASTRO_START_CALIBRATION"
	CmdAstroStartGotoDSO         Tag = "CMD_ASTRO_START_GOTO_DSO"
	CmdAstroStartGotoSolarSystem Tag = "CMD_ASTRO_START_GOTO_SOLAR_SYSTEM"
	CmdAstroStopGoto             Tag = "CMD_ASTRO_STOP_GOTO"

	CmdCameraTeleOpenCamera            Tag = "CMD_CAMERA_TELE_OPEN_CAMERA"
	CmdCameraTeleCloseCamera           Tag = "CMD_CAMERA_TELE_CLOSE_CAMERA"
	CmdCameraTeleGetSystemWorkingState Tag = "CMD_CAMERA_TELE_GET_SYSTEM_WORKING_STATE"
	CmdCameraTeleGetAllParams          Tag = "CMD_CAMERA_TELE_GET_ALL_PARAMS"
	CmdCameraTeleSetGainMode           Tag = "CMD_CAMERA_TELE_SET_GAIN_MODE"
	CmdCameraTeleSetExpMode            Tag = "CMD_CAMERA_TELE_SET_EXP_MODE"
	CmdCameraTeleSetGain               Tag = "CMD_CAMERA_TELE_SET_GAIN"
	CmdCameraTeleSetExp                Tag = "CMD_CAMERA_TELE_SET_EXP"
	CmdCameraTeleSetIRCut              Tag = "CMD_CAMERA_TELE_SET_IRCUT"
	CmdCameraWideOpenCamera            Tag = "CMD_CAMERA_WIDE_OPEN_CAMERA"
	CmdCameraWideCloseCamera           Tag = "CMD_CAMERA_WIDE_CLOSE_CAMERA"

	CmdRGBPowerOpenRGB     Tag = "CMD_RGB_POWER_OPEN_RGB"
	CmdRGBPowerCloseRGB    Tag = "CMD_RGB_POWER_CLOSE_RGB"
	CmdRGBPowerPowerDown   Tag = "CMD_RGB_POWER_POWER_DOWN"
	CmdRGBPowerPowerIndOn  Tag = "CMD_RGB_POWER_POWERIND_ON"
	CmdRGBPowerPowerIndOff Tag = "CMD_RGB_POWER_POWERIND_OFF"
	CmdRGBPowerReboot      Tag = "CMD_RGB_POWER_REBOOT"

	CmdStepMotorReset Tag = "CMD_STEP_MOTOR_RESET"
	CmdStepMotorRunTo Tag = "CMD_STEP_MOTOR_RUN_TO"
)

// Notification tags.
const (
	NotifySDCardInfo            Tag = "CMD_NOTIFY_SDCARD_INFO"
	NotifyBattery               Tag = "CMD_NOTIFY_ELE"
	NotifyCharge                Tag = "CMD_NOTIFY_CHARGE"
	NotifyHostSlaveMode         Tag = "CMD_NOTIFY_WS_HOST_SLAVE_MODE"
	NotifyLiveStackingState     Tag = "CMD_NOTIFY_STATE_CAPTURE_RAW_LIVE_STACKING"
	NotifyLiveStackingProgress  Tag = "CMD_NOTIFY_PROGRASS_CAPTURE_RAW_LIVE_STACKING"
	NotifyAstroCalibrationState Tag = "CMD_NOTIFY_STATE_ASTRO_CALIBRATION"
	NotifyAstroGotoState        Tag = "CMD_NOTIFY_STATE_ASTRO_GOTO"
	NotifyAstroTrackingState    Tag = "CMD_NOTIFY_STATE_ASTRO_TRACKING"
	NotifyRGBState              Tag = "CMD_NOTIFY_RGB_STATE"
	NotifyPowerIndicatorState   Tag = "CMD_NOTIFY_POWER_IND_STATE"
	NotifyPowerOff              Tag = "CMD_NOTIFY_POWER_OFF"
)

// TagSet is the set of tags a flow is willing to interpret.
type TagSet map[Tag]struct{}

// NewTagSet builds a set from tags.
func NewTagSet(tags ...Tag) TagSet {
	set := make(TagSet, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

// Matches reports whether tag belongs to the set, honouring TagAny.
func (s TagSet) Matches(tag Tag) bool {
	if _, ok := s[TagAny]; ok {
		return true
	}
	_, ok := s[tag]
	return ok
}
