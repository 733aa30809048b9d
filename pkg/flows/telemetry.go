package flows

import (
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
)

// Telemetry maps device telemetry onto the session store. It keeps the one
// bit of state the mapping needs: whether live stacking is being stopped, in
// which case progress notifications must not flip the session back to
// recording.
type Telemetry struct {
	stopping bool
}

// Apply updates store from n and reports whether the tag was recognised.
// Unknown tags are ignored.
func (t *Telemetry) Apply(store session.Store, n protocol.Notification) bool {
	switch n.Tag {
	case protocol.NotifyHostSlaveMode:
		store.SetSlaveMode(n.Data.Mode == 1)

	case protocol.NotifyLiveStackingState:
		t.applyStackingState(store, protocol.OperationState(n.Data.State))

	case protocol.NotifyLiveStackingProgress:
		t.applyStackingProgress(store, n.Data)

	case protocol.NotifyBattery:
		if n.OK() {
			store.SetBatteryLevel(n.Data.Value)
		}

	case protocol.NotifyCharge:
		if n.OK() {
			store.SetChargeStatus(n.Data.Value)
		}

	case protocol.NotifyRGBState:
		store.SetRingLight(n.Data.State == 1)

	case protocol.NotifyPowerIndicatorState:
		store.SetPowerLight(n.Data.State == 1)

	case protocol.NotifySDCardInfo:
		store.SetCardCapacity(n.Data.AvailableSize, n.Data.TotalSize)

	case protocol.CmdCameraTeleGetAllParams:
		if !n.OK() || len(n.Data.Params) == 0 {
			return true
		}
		store.UpdateAstro(func(a *session.AstroSettings) { applyISP(a, n.Data.Params) })

	default:
		return false
	}
	return true
}

func (t *Telemetry) applyStackingState(store session.Store, state protocol.OperationState) {
	switch state {
	case protocol.OperationStopped:
		t.stopping = true
		store.UpdateImaging(func(im *session.ImagingSession) {
			im.IsRecording = false
			im.EndRecording = true
			im.IsGoLive = true
		})
	case protocol.OperationStopping:
		t.stopping = true
		store.UpdateImaging(func(im *session.ImagingSession) {
			im.IsRecording = false
			im.EndRecording = true
		})
	case protocol.OperationRunning:
		t.stopping = false
		store.UpdateImaging(func(im *session.ImagingSession) {
			im.IsRecording = true
			im.EndRecording = false
		})
	}
}

func (t *Telemetry) applyStackingProgress(store session.Store, p protocol.Payload) {
	store.UpdateImaging(func(im *session.ImagingSession) {
		if p.UpdateCountType == protocol.CountTaken || p.UpdateCountType == protocol.CountBoth {
			if !t.stopping {
				im.IsRecording = true
				im.EndRecording = false
			}
			im.ImagesTaken = p.CurrentCount
		}
		if p.UpdateCountType == protocol.CountStacked || p.UpdateCountType == protocol.CountBoth {
			if !t.stopping && im.EndRecording {
				im.IsRecording = false
			}
			im.IsStackedCountStart = true
			im.ImagesStacked = p.StackedCount
		}
	})
}

func applyISP(a *session.AstroSettings, params map[string]int) {
	for name, v := range params {
		switch name {
		case protocol.ISPGainMode:
			a.GainMode = v
		case protocol.ISPExposureMode:
			a.ExposureMode = v
		case protocol.ISPGain:
			a.Gain = v
		case protocol.ISPExposure:
			a.Exposure = v
		case protocol.ISPIRCut:
			a.IR = v
		}
	}
}
