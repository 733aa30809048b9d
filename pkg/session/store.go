// Package session holds the device session: the single connection-scoped
// state shared by every flow. Flows never write fields directly; they go
// through the typed setters of Store so an implementation decides how changes
// propagate (subscribers, persistence).
package session

import (
	"time"
)

// Channel names a pair of error/success notice slots.
type Channel string

const (
	ChannelConnection  Channel = "connection"
	ChannelCalibration Channel = "calibration"
	ChannelGoto        Channel = "goto"
	ChannelMotor       Channel = "motor"
	ChannelPolarAlign  Channel = "polar_align"
	ChannelPower       Channel = "power"
	ChannelPlanetarium Channel = "planetarium"
)

// Notice is the current message of a channel. Setting an error clears the
// success text of the same channel and the reverse.
type Notice struct {
	Error   string
	Success string
}

// GotoStatus is the status of the last goto recorded in the astro settings.
type GotoStatus int

const (
	GotoFailed    GotoStatus = -1
	GotoRequested GotoStatus = 0
	GotoTracking  GotoStatus = 1
)

// ImagingSession mirrors the live stacking state reported by the device.
type ImagingSession struct {
	IsRecording         bool `json:"isRecording"`
	EndRecording        bool `json:"endRecording"`
	IsGoLive            bool `json:"isGoLive"`
	ImagesTaken         int  `json:"imagesTaken"`
	ImagesStacked       int  `json:"imagesStacked"`
	IsStackedCountStart bool `json:"isStackedCountStart"`
}

// AstroSettings caches the telephoto ISP parameters reapplied after a goto,
// and the state of the current goto.
type AstroSettings struct {
	GainMode     int `json:"gainMode"`
	ExposureMode int `json:"exposureMode"`
	Gain         int `json:"gain"`
	Exposure     int `json:"exposure"`
	IR           int `json:"IR"`

	// GotoActive is false when no goto status is recorded.
	GotoActive bool       `json:"gotoActive"`
	GotoStatus GotoStatus `json:"gotoStatus"`
	Target     string     `json:"target"`
	RA         float64    `json:"ra"`
	Dec        float64    `json:"dec"`
}

// SavedPosition is the position of the first goto of a session. The
// equatorial coordinates are captured when the goto starts; Recorded is set
// once they have been converted to a horizontal position the mount can return
// to.
type SavedPosition struct {
	Captured   bool      `json:"captured"`
	RA         float64   `json:"ra"`
	Dec        float64   `json:"dec"`
	CapturedAt time.Time `json:"capturedAt"`

	Recorded bool    `json:"recorded"`
	Alt      float64 `json:"alt"`
	Az       float64 `json:"az"`
}

// Snapshot is a copy of the session at one point in time.
type Snapshot struct {
	Connected         bool
	SlaveMode         bool
	InitialConnection time.Time
	DeviceIP          string
	DeviceID          int
	DeviceName        string

	BatteryLevel  int
	ChargeStatus  int
	CardAvailable int64
	CardTotal     int64

	Imaging  ImagingSession
	Astro    AstroSettings
	Position SavedPosition

	RingLight  bool
	PowerLight bool

	Notices map[Channel]Notice
}

// Field identifies what changed in a Change.
type Field string

const (
	FieldConnection        Field = "connection"
	FieldSlaveMode         Field = "slave_mode"
	FieldInitialConnection Field = "initial_connection"
	FieldDeviceIP          Field = "device_ip"
	FieldDevice            Field = "device"
	FieldBattery           Field = "battery"
	FieldCharge            Field = "charge"
	FieldCard              Field = "card"
	FieldImaging           Field = "imaging"
	FieldAstro             Field = "astro"
	FieldPosition          Field = "position"
	FieldLights            Field = "lights"
	FieldNotice            Field = "notice"
)

// Change is delivered to subscribers after every effective mutation.
type Change struct {
	Field    Field
	Channel  Channel
	Snapshot Snapshot
}

// Store is the device session store. Setters are fire-and-forget and
// idempotent: repeating an identical value has no visible effect.
type Store interface {
	Snapshot() Snapshot

	SetConnectionStatus(connected bool)
	SetSlaveMode(slave bool)
	SetInitialConnectionTime(t time.Time)
	SetDeviceIP(ip string)
	SetDevice(id int, name string)

	SetBatteryLevel(level int)
	SetChargeStatus(status int)
	SetCardCapacity(available, total int64)

	UpdateImaging(fn func(*ImagingSession))
	UpdateAstro(fn func(*AstroSettings))
	SetSavedPosition(p SavedPosition)

	SetRingLight(on bool)
	SetPowerLight(on bool)

	SetError(ch Channel, text string)
	SetSuccess(ch Channel, text string)
	ClearNotices(ch Channel)

	// Subscribe registers fn for every change and returns a function that
	// removes it.
	Subscribe(fn func(Change)) (cancel func())
}
