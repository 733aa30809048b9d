package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
)

// Payload is the union of the fields carried by the replies and notifications
// the flows interpret. Fields not relevant to a tag are left at zero.
type Payload struct {
	Code          ErrorCode `json:"code"`
	ErrorTxt      string    `json:"errorTxt,omitempty"`
	ErrorPlainTxt string    `json:"errorPlainTxt,omitempty"`

	State         int    `json:"state,omitempty"`
	StatePlainTxt string `json:"statePlainTxt,omitempty"`
	TargetName    string `json:"targetName,omitempty"`

	PlateSolvingTimes int `json:"plateSolvingTimes,omitempty"`

	// Battery level, charge status.
	Value int `json:"value,omitempty"`
	// Host/slave mode.
	Mode int `json:"mode,omitempty"`

	AvailableSize int64 `json:"availableSize,omitempty"`
	TotalSize     int64 `json:"totalSize,omitempty"`

	UpdateCountType int `json:"updateCountType,omitempty"`
	CurrentCount    int `json:"currentCount,omitempty"`
	StackedCount    int `json:"stackedCount,omitempty"`

	// Telephoto ISP parameters keyed by the ISP* names.
	Params map[string]int `json:"params,omitempty"`
}

// Notification is an inbound message produced by the transport.
type Notification struct {
	Tag      Tag         `json:"cmd"`
	Type     MessageType `json:"type"`
	DeviceID int         `json:"deviceId,omitempty"`
	Data     Payload     `json:"data"`
}

// OK reports whether the reply carries CodeOK.
func (n Notification) OK() bool { return n.Data.Code == CodeOK }

// Applied reports whether the notification confirms a hardware command has
// completed successfully.
func (n Notification) Applied() bool {
	return n.Type == TypeNotifyResponse && n.OK()
}

// DescribeError maps an error reply to a human readable message using, in
// priority order, errorPlainTxt, errorTxt, the numeric code, then "Error".
func DescribeError(n Notification) string {
	switch {
	case n.Data.ErrorPlainTxt != "":
		return n.Data.ErrorPlainTxt
	case n.Data.ErrorTxt != "":
		return n.Data.ErrorTxt
	case n.Data.Code != CodeOK:
		return fmt.Sprintf("%d", int(n.Data.Code))
	default:
		return "Error"
	}
}

type frame struct {
	Cmd      Tag            `json:"cmd"`
	Type     MessageType    `json:"type"`
	DeviceID int            `json:"deviceId,omitempty"`
	Data     map[string]any `json:"data"`
}

// Encode serialises a command into a request frame addressed to deviceID.
func Encode(cmd Command, deviceID int) ([]byte, error) {
	b, err := json.Marshal(frame{
		Cmd:      cmd.Tag,
		Type:     TypeRequest,
		DeviceID: deviceID,
		Data:     cmd.Params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode command")
	}
	return b, nil
}

// Decode parses an inbound frame.
func Decode(b []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(b, &n); err != nil {
		return Notification{}, errors.Wrap(err, "failed to decode frame")
	}
	if n.Tag == "" {
		return Notification{}, fmt.Errorf("frame without cmd tag")
	}
	return n, nil
}
