package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/flows"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/superfly/fsm"
)

// retryable reports whether a failed flow may succeed on a new attempt. A
// device that went silent or a dropped transport may come back; a device
// that refused the command will refuse it again.
func retryable(err error) bool {
	var de *sequencer.DeviceError
	if errors.As(err, &de) {
		return false
	}
	return !errors.Is(err, flows.ErrPoweringOff) &&
		!errors.Is(err, flows.ErrNoTarget) &&
		!errors.Is(err, flows.ErrNoLocation) &&
		!errors.Is(err, sequencer.ErrNoDevice) &&
		!errors.Is(err, sequencer.ErrSuperseded)
}

// stepError turns a flow failure into the handler error: retryable failures
// are returned as is so the manager retries the state, others abort the run.
func stepError(step string, err error) error {
	err = errors.Wrapf(err, "%s failed", step)
	if retryable(err) {
		return err
	}
	return fsm.Abort(err)
}

// failed records err on the run response before the handler returns it. A
// later successful attempt of the state overwrites the status.
func failed(resp *RunResponse, err error) error {
	resp.Status = StatusFailed
	resp.ErrorMessage = err.Error()
	return err
}

func (m *Machine) checkRetries(ctx context.Context, state string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "state", state, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// runFlow starts a flow and waits for its terminal state.
func (m *Machine) runFlow(ctx context.Context, step string, start func() (*sequencer.Flow, error)) (*sequencer.Flow, sequencer.State, error) {
	f, err := start()
	if err != nil {
		slog.Error("fsm_flow_start_failed", "step", step, "error", err)
		return nil, sequencer.State{}, stepError(step, err)
	}

	if m.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.stepTimeout)
		defer cancel()
	}
	st, err := f.Wait(ctx)
	if err != nil {
		slog.Error("fsm_flow_wait_failed", "step", step, "flow_id", f.ID(), "error", err)
		return f, st, errors.Wrapf(err, "%s did not finish", step)
	}
	if st.Status == sequencer.Failed {
		slog.Warn("fsm_flow_failed", "step", step, "flow_id", f.ID(), "error", st.Err)
		return f, st, stepError(step, st.Err)
	}

	slog.Info("fsm_flow_succeeded", "step", step, "flow_id", f.ID(), "detail", st.Detail)
	return f, st, nil
}

func response(req *fsm.Request[RunRequest, RunResponse]) *RunResponse {
	if req.W.Msg == nil {
		return &RunResponse{}
	}
	return req.W.Msg
}

// handleConnect opens the device session unless it is already connected.
func (m *Machine) handleConnect(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	slog.Info("fsm_state_connect", "device_ip", req.Msg.DeviceIP)

	resp := response(req)
	if err := m.checkRetries(ctx, StateConnect); err != nil {
		return nil, failed(resp, err)
	}
	if req.Msg.DeviceIP != "" && m.store.Snapshot().DeviceIP != req.Msg.DeviceIP {
		m.store.SetDeviceIP(req.Msg.DeviceIP)
	}

	if !m.store.Snapshot().Connected {
		f, _, err := m.runFlow(ctx, StateConnect, func() (*sequencer.Flow, error) { return m.flows.Connect(ctx) })
		if f != nil {
			resp.FlowIDs = append(resp.FlowIDs, f.ID())
		}
		if err != nil {
			return nil, failed(resp, err)
		}
	} else {
		slog.Info("device_already_connected", "device_ip", req.Msg.DeviceIP)
	}

	snap := m.store.Snapshot()
	resp.DeviceID = snap.DeviceID
	resp.DeviceName = snap.DeviceName
	return fsm.NewResponse(resp), nil
}

// handleCalibrate calibrates the mount when the run asks for it.
func (m *Machine) handleCalibrate(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	slog.Info("fsm_state_calibrate", "enabled", req.Msg.Calibrate)

	resp := response(req)
	if err := m.checkRetries(ctx, StateCalibrate); err != nil {
		return nil, failed(resp, err)
	}
	if !req.Msg.Calibrate {
		slog.Info("calibration_skipped")
		return fsm.NewResponse(resp), nil
	}

	f, st, err := m.runFlow(ctx, StateCalibrate, m.flows.Calibrate)
	if f != nil {
		resp.FlowIDs = append(resp.FlowIDs, f.ID())
	}
	if err != nil {
		return nil, failed(resp, err)
	}
	resp.CalibrationDetail = st.Detail
	return fsm.NewResponse(resp), nil
}

// handleGoto slews to the target and waits for tracking.
func (m *Machine) handleGoto(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	slog.Info("fsm_state_goto", "object", req.Msg.ObjectName, "planet", req.Msg.Planet)

	resp := response(req)
	if err := m.checkRetries(ctx, StateGoto); err != nil {
		return nil, failed(resp, err)
	}
	gr := flows.GotoRequest{
		Planet:            req.Msg.Planet,
		RA:                req.Msg.RA,
		Dec:               req.Msg.Dec,
		ObjectName:        req.Msg.ObjectName,
		StopAfterTracking: req.Msg.StopAfterTracking,
	}
	f, st, err := m.runFlow(ctx, StateGoto, func() (*sequencer.Flow, error) { return m.flows.StartGoto(gr) })
	if f != nil {
		resp.FlowIDs = append(resp.FlowIDs, f.ID())
	}
	if err != nil {
		return nil, failed(resp, err)
	}

	resp.Target = m.store.Snapshot().Astro.Target
	resp.GotoDetail = st.Detail
	return fsm.NewResponse(resp), nil
}

// handleComplete marks the run as complete
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[RunRequest, RunResponse]) (*fsm.Response[RunResponse], error) {
	slog.Info("fsm_state_complete", "object", req.Msg.ObjectName)

	resp := response(req)
	resp.Status = StatusComplete
	resp.ErrorMessage = ""

	slog.Info("fsm_complete", "object", req.Msg.ObjectName, "flows", len(resp.FlowIDs), "status", resp.Status)
	return fsm.NewResponse(resp), nil
}
