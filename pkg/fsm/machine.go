// Package fsm implements the observing run: connect to the device, optionally
// calibrate, then slew to a target, as a durable superfly/fsm workflow. Each
// state starts the matching device flow and waits for its terminal state.
package fsm

import (
	"context"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/flows"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/superfly/fsm"
)

// Flows starts the device flows driven by the machine. *flows.Controller
// implements it.
type Flows interface {
	Connect(ctx context.Context) (*sequencer.Flow, error)
	Calibrate() (*sequencer.Flow, error)
	StartGoto(req flows.GotoRequest) (*sequencer.Flow, error)
}

var _ Flows = (*flows.Controller)(nil)

// Machine holds dependencies for FSM transitions
type Machine struct {
	flows       Flows
	store       session.Store
	maxRetries  int
	stepTimeout time.Duration
}

// NewMachine creates a new FSM machine with dependencies. stepTimeout bounds
// the wait for each flow; zero waits as long as the flow's own liveness
// window allows.
func NewMachine(f Flows, store session.Store, maxRetries int, stepTimeout time.Duration) *Machine {
	return &Machine{
		flows:       f,
		store:       store,
		maxRetries:  maxRetries,
		stepTimeout: stepTimeout,
	}
}

// Register registers the observing run FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[RunRequest, RunResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[RunRequest, RunResponse](manager, "observing-run").
		Start(StateConnect, m.handleConnect).
		To(StateCalibrate, m.handleCalibrate).
		To(StateGoto, m.handleGoto).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
