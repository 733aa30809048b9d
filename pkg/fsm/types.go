package fsm

// RunRequest is the FSM input: one observing run against the configured
// device.
type RunRequest struct {
	DeviceIP string

	// Calibrate runs the calibration before the goto.
	Calibrate bool

	ObjectName        string
	RA                string
	Dec               string
	Planet            int
	StopAfterTracking bool
}

// RunResponse is the FSM output (accumulated across transitions)
type RunResponse struct {
	// From Connect
	DeviceID   int
	DeviceName string

	// From Calibrate
	CalibrationDetail string

	// From Goto
	Target     string
	GotoDetail string

	// From each flow, in order
	FlowIDs []string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateConnect   = "connect"
	StateCalibrate = "calibrate"
	StateGoto      = "goto"
	StateComplete  = "complete"
	StateFailed    = "failed"
)

// Run status values
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)
