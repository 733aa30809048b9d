package protocol

import "fmt"

// ErrorCode is the result code carried by a command reply.
type ErrorCode int

// Error codes interpreted by the flows. Any other non-zero value is reported
// through DescribeError.
const (
	CodeOK                        ErrorCode = 0
	CodeAstroPlateSolvingFailed   ErrorCode = -11500
	CodeAstroFunctionBusy         ErrorCode = -11501
	CodeAstroCalibrationFailed    ErrorCode = -11504
	CodeAstroGotoFailed           ErrorCode = -11505
	CodeStepMotorLimitPosition    ErrorCode = -14518
	CodeWebSocketDeviceIDMismatch ErrorCode = -1001
)

var codeNames = map[ErrorCode]string{
	CodeOK:                        "OK",
	CodeAstroPlateSolvingFailed:   "CODE_ASTRO_PLATE_SOLVING_FAILED",
	CodeAstroFunctionBusy:         "CODE_ASTRO_FUNCTION_BUSY",
	CodeAstroCalibrationFailed:    "CODE_ASTRO_CALIBRATION_FAILED",
	CodeAstroGotoFailed:           "CODE_ASTRO_GOTO_FAILED",
	CodeStepMotorLimitPosition:    "CODE_STEP_MOTOR_LIMIT_POSITION",
	CodeWebSocketDeviceIDMismatch: "CODE_WS_DEVICE_ID_MISMATCH",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%d", int(c))
}

// MessageType distinguishes requests, plain replies and notifications.
type MessageType int

const (
	TypeRequest MessageType = iota
	TypeResponse
	TypeNotify
	// TypeNotifyResponse marks a notification confirming that a command has
	// been applied by the hardware, as opposed to a bare acknowledgement.
	TypeNotifyResponse
)

// OperationState is reported by tracking and live stacking notifications.
type OperationState int

const (
	OperationIdle OperationState = iota
	OperationRunning
	OperationStopping
	OperationStopped
)

// AstroState is reported by calibration and goto notifications.
type AstroState int

const (
	AstroIdle AstroState = iota
	AstroRunning
	AstroStopping
	AstroStopped
	AstroPlateSolving
)

// Live stacking progress counter kinds.
const (
	CountTaken   = 0
	CountStacked = 1
	CountBoth    = 2
)
