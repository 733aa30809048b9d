package sequencer

import (
	"log/slog"
)

// Step is one link of a Workflow.
type Step struct {
	Name  string
	Start func() (*Flow, error)
	// Continue decides, once this step's flow is terminal, whether the next
	// step starts. Nil continues on success only.
	Continue func(State) bool
}

// Workflow is an ordered chain of flows, such as goto followed by stop-goto.
type Workflow struct {
	Name  string
	Steps []Step
}

// RunWorkflow starts the first step and chains the others as each one
// resolves. The returned flow tracks the chain: it advances once per completed
// step and resolves with the state of the last step that ran.
func (s *Sequencer) RunWorkflow(w Workflow) (*Flow, error) {
	chain := newFlow(w.Name, len(w.Steps))
	chain.begin()

	var startStep func(i int) error
	startStep = func(i int) error {
		step := w.Steps[i]
		slog.Info("workflow_step_started", "workflow", w.Name, "step", step.Name, "index", i)

		f, err := step.Start()
		if err != nil {
			return err
		}
		f.OnResolve(func(st State) {
			chain.Advance()

			proceed := st.Status == Succeeded
			if step.Continue != nil {
				proceed = step.Continue(st)
			}
			if !proceed || i+1 == len(w.Steps) {
				resolveLike(chain, st)
				return
			}
			if err := startStep(i + 1); err != nil {
				slog.Error("workflow_step_failed_to_start", "workflow", w.Name, "step", w.Steps[i+1].Name, "error", err)
				chain.Fail(err)
			}
		})
		return nil
	}

	if len(w.Steps) == 0 {
		chain.Succeed("")
		return chain, nil
	}
	if err := startStep(0); err != nil {
		return nil, err
	}
	return chain, nil
}

func resolveLike(f *Flow, st State) {
	if st.Status == Succeeded {
		f.Succeed(st.Detail)
		return
	}
	f.Fail(st.Err)
}
