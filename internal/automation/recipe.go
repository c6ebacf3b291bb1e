// Package automation turns UI interactions into ordered, individually recorded
// steps so a partially failed navigation can still proceed to retrieval.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/jepx/internal/session"
	"github.com/IshaanNene/jepx/internal/types"
)

// Phase is a navigation state a step belongs to. Phases are ordered.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePageLoaded
	PhaseLayoutVerified
	PhaseDateSet
	PhaseAreaOrModeSelected
	PhaseReady
)

func (ph Phase) String() string {
	switch ph {
	case PhaseInit:
		return "init"
	case PhasePageLoaded:
		return "page-loaded"
	case PhaseLayoutVerified:
		return "layout-verified"
	case PhaseDateSet:
		return "date-set"
	case PhaseAreaOrModeSelected:
		return "area-or-mode-selected"
	case PhaseReady:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int(ph))
	}
}

// Step is a single UI interaction.
type Step struct {
	Name     string
	Phase    Phase
	Selector string

	// Requires names earlier steps that must have succeeded for this one to run.
	Requires []string

	Do func(ctx context.Context, p session.Page) error
}

// Recipe is an ordered list of steps that brings a page to a data view.
type Recipe []Step

// StepResult records the outcome of one step. Err is nil on success.
type StepResult struct {
	Step  string
	Phase Phase
	Err   error
}

// Report is the outcome of running a recipe.
type Report struct {
	Results []StepResult
}

// Failed returns the results whose step did not succeed.
func (r *Report) Failed() []StepResult {
	var out []StepResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool { return len(r.Failed()) == 0 }

// Err joins every step failure, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// Reached returns the furthest phase for which every step up to and including
// that phase succeeded. Recipes list steps in non-decreasing phase order.
func (r *Report) Reached() Phase {
	reached, current, ok := PhaseInit, PhaseInit, true
	for _, res := range r.Results {
		if res.Phase != current {
			if !ok {
				return reached
			}
			reached, current = current, res.Phase
		}
		if res.Err != nil {
			ok = false
		}
	}
	if ok {
		reached = current
	}
	return reached
}

// Runner executes recipes against a page.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger.With("component", "navigator")}
}

// Run executes every step in order. A failing step is logged and recorded and
// the runner moves on; only steps whose prerequisites failed are skipped.
func (r *Runner) Run(ctx context.Context, p session.Page, recipe Recipe) *Report {
	report := &Report{Results: make([]StepResult, 0, len(recipe))}
	failed := make(map[string]bool)

	for i, step := range recipe {
		err := r.runStep(ctx, p, step, failed)
		if err != nil {
			failed[step.Name] = true
			r.logger.Warn("navigation step failed, continuing",
				"step", step.Name,
				"index", i,
				"selector", step.Selector,
				"error", err,
			)
		} else {
			r.logger.Debug("navigation step ok", "step", step.Name, "phase", step.Phase)
		}
		report.Results = append(report.Results, StepResult{Step: step.Name, Phase: step.Phase, Err: err})
	}

	r.logger.Info("navigation finished",
		"steps", len(recipe),
		"failed", len(report.Failed()),
		"reached", report.Reached(),
	)
	return report
}

func (r *Runner) runStep(ctx context.Context, p session.Page, step Step, failed map[string]bool) (err error) {
	wrap := func(e error) error {
		var navErr *types.NavigationError
		if errors.As(e, &navErr) {
			return e
		}
		return &types.NavigationError{Step: step.Name, Selector: step.Selector, Err: e}
	}

	if err := ctx.Err(); err != nil {
		return wrap(err)
	}
	for _, req := range step.Requires {
		if failed[req] {
			return wrap(fmt.Errorf("%w (%s)", types.ErrStepSkipped, req))
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = wrap(fmt.Errorf("step panicked: %v", rec))
		}
	}()

	if err := step.Do(ctx, p); err != nil {
		return wrap(err)
	}
	return nil
}

// --- Step constructors ---

// Goto loads url.
func Goto(url string) Step {
	return Step{
		Name:  "goto",
		Phase: PhasePageLoaded,
		Do: func(ctx context.Context, p session.Page) error {
			return p.Navigate(ctx, url)
		},
	}
}

// Click clicks selector.
func Click(name string, phase Phase, selector string) Step {
	return Step{
		Name:     name,
		Phase:    phase,
		Selector: selector,
		Do: func(ctx context.Context, p session.Page) error {
			return p.Click(ctx, selector)
		},
	}
}

// Check ticks the checkbox at selector.
func Check(name string, phase Phase, selector string) Step {
	return Step{
		Name:     name,
		Phase:    phase,
		Selector: selector,
		Do: func(ctx context.Context, p session.Page) error {
			return p.Check(ctx, selector)
		},
	}
}

// Select chooses the option with value in the <select> at selector.
func Select(name string, phase Phase, selector, value string) Step {
	return Step{
		Name:     name,
		Phase:    phase,
		Selector: selector,
		Do: func(ctx context.Context, p session.Page) error {
			return p.SelectValue(ctx, selector, value)
		},
	}
}

// SetValue assigns value to the element at selector.
func SetValue(name string, phase Phase, selector, value string) Step {
	return Step{
		Name:     name,
		Phase:    phase,
		Selector: selector,
		Do: func(ctx context.Context, p session.Page) error {
			return p.SetValue(ctx, selector, value)
		},
	}
}

// ExpectText asserts that the element at selector shows want.
func ExpectText(name string, phase Phase, selector, want string) Step {
	return Step{
		Name:     name,
		Phase:    phase,
		Selector: selector,
		Do: func(ctx context.Context, p session.Page) error {
			got, err := p.Text(ctx, selector)
			if err != nil {
				return err
			}
			if got != want {
				return fmt.Errorf("%w: want %q, got %q", types.ErrLayoutMismatch, want, got)
			}
			return nil
		},
	}
}

// Settle waits with w, optionally until ready holds.
func Settle(name string, phase Phase, w Waiter, ready Condition) Step {
	return Step{
		Name:  name,
		Phase: phase,
		Do: func(ctx context.Context, p session.Page) error {
			return w.Settle(ctx, p, ready)
		},
	}
}
