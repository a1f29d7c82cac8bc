// Package dispatch implements the one non-trivial concurrent control-flow
// abstraction the orchestrator needs: wait for N independent units, each
// under its own deadline, and collect classified outcomes (spec §9). It is
// reused by both the required-worker fan-out and, structurally, by the
// Classifier pre-processing call.
package dispatch

import (
	"context"
	"time"

	"github.com/arcfin/planner/internal/errs"
)

// Unit is one independent item of work submitted to Join.
type Unit struct {
	Label    string
	Deadline time.Duration
	Fn       func(ctx context.Context) (interface{}, error)
}

// Outcome is the classified result of running one Unit.
type Outcome struct {
	Label  string
	Result interface{}
	Err    error
	Kind   errs.Kind
}

// Join runs every unit concurrently, each under a context derived from ctx
// with its own per-unit deadline, and returns one Outcome per unit in the
// same order units were submitted. If ctx is cancelled before a unit
// finishes, that unit's outcome carries errs.KindCancelled.
func Join(ctx context.Context, units []Unit) []Outcome {
	outcomes := make([]Outcome, len(units))
	done := make(chan int, len(units))

	for i, u := range units {
		i, u := i, u
		go func() {
			outcomes[i] = runOne(ctx, u)
			done <- i
		}()
	}

	for range units {
		<-done
	}

	return outcomes
}

func runOne(ctx context.Context, u Unit) Outcome {
	unitCtx := ctx
	var cancel context.CancelFunc
	if u.Deadline > 0 {
		unitCtx, cancel = context.WithTimeout(ctx, u.Deadline)
		defer cancel()
	}

	resultCh := make(chan interface{}, 1)
	errCh := make(chan error, 1)

	go func() {
		res, err := u.Fn(unitCtx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	select {
	case res := <-resultCh:
		return Outcome{Label: u.Label, Result: res, Kind: ""}
	case err := <-errCh:
		if unitCtx.Err() != nil {
			return Outcome{Label: u.Label, Err: err, Kind: errs.KindCancelled}
		}
		return Outcome{Label: u.Label, Err: err, Kind: errs.KindOf(err)}
	case <-unitCtx.Done():
		return Outcome{Label: u.Label, Err: unitCtx.Err(), Kind: errs.KindCancelled}
	}
}
