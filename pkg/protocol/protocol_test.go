package protocol

import (
	"strings"
	"testing"
)

func TestDescribeError_Priority(t *testing.T) {
	tests := []struct {
		name string
		data Payload
		want string
	}{
		{"plain text wins", Payload{Code: CodeAstroFunctionBusy, ErrorTxt: "busy", ErrorPlainTxt: "Function busy"}, "Function busy"},
		{"error text second", Payload{Code: CodeAstroFunctionBusy, ErrorTxt: "busy"}, "busy"},
		{"numeric code third", Payload{Code: CodeAstroGotoFailed}, "-11505"},
		{"generic fallback", Payload{}, "Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DescribeError(Notification{Tag: CmdAstroStartGotoDSO, Data: tt.data})
			if got != tt.want {
				t.Errorf("DescribeError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotification_Applied(t *testing.T) {
	tests := []struct {
		typ  MessageType
		code ErrorCode
		want bool
	}{
		{TypeNotifyResponse, CodeOK, true},
		{TypeResponse, CodeOK, false},
		{TypeNotifyResponse, CodeStepMotorLimitPosition, false},
	}

	for _, tt := range tests {
		n := Notification{Tag: CmdStepMotorReset, Type: tt.typ, Data: Payload{Code: tt.code}}
		if got := n.Applied(); got != tt.want {
			t.Errorf("Applied() type=%d code=%d = %v, want %v", tt.typ, tt.code, got, tt.want)
		}
	}
}

func TestTagSet_Matches(t *testing.T) {
	set := NewTagSet(CmdAstroStopGoto, NotifyAstroGotoState)
	if !set.Matches(CmdAstroStopGoto) {
		t.Error("expected stop goto tag to match")
	}
	if set.Matches(NotifyBattery) {
		t.Error("battery notification must not match a goto tag set")
	}

	wildcard := NewTagSet(TagAny)
	if !wildcard.Matches(NotifyBattery) {
		t.Error("wildcard set should match any tag")
	}
}

func TestEncodeDecode(t *testing.T) {
	b, err := Encode(StartGotoDSO(10.684, 41.269, "M31"), 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(b), `"cmd":"CMD_ASTRO_START_GOTO_DSO"`) {
		t.Errorf("frame missing tag: %s", b)
	}
	if !strings.Contains(string(b), `"target_name":"M31"`) {
		t.Errorf("frame missing target: %s", b)
	}

	n, err := Decode([]byte(`{"cmd":"CMD_NOTIFY_STATE_ASTRO_TRACKING","type":2,"data":{"state":1,"targetName":"M31"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n.Tag != NotifyAstroTrackingState || OperationState(n.Data.State) != OperationRunning || n.Data.TargetName != "M31" {
		t.Errorf("unexpected notification: %+v", n)
	}

	if _, err := Decode([]byte(`{"type":2}`)); err == nil {
		t.Error("expected error for frame without tag")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}

func TestTargetName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"M31", "M31"},
		{"M 31 (Andromeda Galaxy)", "M_31"},
		{"  NGC 7000  ", "NGC_7000"},
		{"(Unnamed)", "(Unnamed)"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := TargetName(tt.in); got != tt.want {
			t.Errorf("TargetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetTeleISP(t *testing.T) {
	cmd, ok := SetTeleISP(ISPGainMode, 1)
	if !ok || cmd.Tag != CmdCameraTeleSetGainMode || cmd.Params["mode"] != 1 {
		t.Errorf("unexpected gain mode command: %+v ok=%v", cmd, ok)
	}

	cmd, ok = SetTeleISP(ISPGain, 80)
	if !ok || cmd.Tag != CmdCameraTeleSetGain || cmd.Params["index"] != 80 {
		t.Errorf("unexpected gain command: %+v ok=%v", cmd, ok)
	}

	if _, ok := SetTeleISP("focus", 1); ok {
		t.Error("unknown ISP setting should be rejected")
	}
}

func TestDeviceName(t *testing.T) {
	if got := DeviceName(1); got != "Dwarf II" {
		t.Errorf("DeviceName(1) = %q", got)
	}
	if got := DeviceName(2); got != "Dwarf3" {
		t.Errorf("DeviceName(2) = %q", got)
	}
}
