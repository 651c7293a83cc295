package integrators

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynopt/internal/dynamo"
)

// New returns the stepper registered under name.
func New(name string) (dynamo.Integrator, error) {
	switch strings.ToLower(name) {
	case "euler":
		return NewEuler(), nil
	case "rk4":
		return NewRK4(), nil
	case "rk45", "dopri":
		return NewRK45(), nil
	case "verlet":
		return NewVerlet(), nil
	case "leapfrog":
		return NewLeapfrog(), nil
	}
	return nil, fmt.Errorf("%w: unknown integrator %q", dynamo.ErrInvalidArgument, name)
}

// Names lists the steppers New accepts.
func Names() []string {
	return []string{"euler", "rk4", "rk45", "verlet", "leapfrog"}
}

// Solve integrates dyn from x0 at times[0] and records the state at every
// entry of times, which must be non-decreasing. The result has one column
// per time. Steps never exceed cfg.MaxDt; with cfg.Adaptive the step size is
// controlled to cfg.Tolerance.
func Solve(ctx context.Context, integ dynamo.Integrator, dyn dynamo.System, x0 dynamo.State, in dynamo.Inputs, times []float64, cfg dynamo.Config) (*mat.Dense, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no sample time", dynamo.ErrInvalidArgument)
	}
	if cfg.MaxDt <= 0 {
		return nil, fmt.Errorf("%w: max step must be positive, got %g", dynamo.ErrInvalidArgument, cfg.MaxDt)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return nil, fmt.Errorf("%w: tolerance must be positive for adaptive stepping", dynamo.ErrInvalidArgument)
	}

	out := mat.NewDense(len(x0), len(times), nil)
	x := x0.Clone()
	out.SetCol(0, x)
	h := cfg.MaxDt

	for k := 1; k < len(times); k++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		t0, t1 := times[k-1], times[k]
		if t1 < t0 {
			return nil, fmt.Errorf("%w: sample times decrease at %d", dynamo.ErrInvalidArgument, k)
		}

		var err error
		if cfg.Adaptive {
			x, h, err = advanceAdaptive(integ, dyn, x, in, t0, t1, h, cfg)
		} else {
			x = advanceFixed(integ, dyn, x, in, t0, t1, cfg.MaxDt)
		}
		if err != nil {
			return nil, err
		}

		if cfg.ValidateState && !x.IsValid() {
			return nil, fmt.Errorf("%w at t=%.4f", dynamo.ErrInvalidState, t1)
		}
		out.SetCol(k, x)
	}
	return out, nil
}

func advanceFixed(integ dynamo.Integrator, dyn dynamo.System, x dynamo.State, in dynamo.Inputs, t0, t1, maxDt float64) dynamo.State {
	span := t1 - t0
	if span == 0 {
		return x
	}
	n := int(math.Ceil(span/maxDt - 1e-9))
	if n < 1 {
		n = 1
	}
	dt := span / float64(n)
	for i := 0; i < n; i++ {
		x = integ.Step(dyn, x, in, t0+float64(i)*dt, dt)
	}
	return x
}

func advanceAdaptive(integ dynamo.Integrator, dyn dynamo.System, x dynamo.State, in dynamo.Inputs, t0, t1, h float64, cfg dynamo.Config) (dynamo.State, float64, error) {
	t := t0
	for t1-t > 1e-12*math.Max(1, math.Abs(t1)) {
		h = math.Min(h, cfg.MaxDt)
		dt := math.Min(h, t1-t)

		newX, taken, next, err := adaptiveStep(integ, dyn, x, in, t, dt, cfg)
		if err != nil {
			return nil, h, err
		}
		x = newX
		t += taken
		if next > 0 {
			h = next
		}
	}
	return x, h, nil
}

// adaptiveStep takes one accepted step of at most dt and reports its size
// along with the suggested next one. Integrators without an error estimate
// fall back to step doubling.
func adaptiveStep(integ dynamo.Integrator, dyn dynamo.System, x dynamo.State, in dynamo.Inputs, t, dt float64, cfg dynamo.Config) (dynamo.State, float64, float64, error) {
	if dt < cfg.MinDt {
		return nil, 0, dt, fmt.Errorf("%w at t=%.6f", dynamo.ErrStepTooSmall, t)
	}

	if adaptive, ok := integ.(dynamo.AdaptiveIntegrator); ok {
		newX, next, err := adaptive.StepAdaptive(dyn, x, in, t, dt, cfg.Tolerance)
		if errors.Is(err, dynamo.ErrStepRejected) {
			return adaptiveStep(integ, dyn, x, in, t, next, cfg)
		}
		return newX, dt, next, err
	}

	x1 := integ.Step(dyn, x, in, t, dt)
	xHalf := integ.Step(dyn, x, in, t, dt/2)
	x2 := integ.Step(dyn, xHalf, in, t+dt/2, dt/2)

	errNorm := x1.Sub(x2).Norm()

	if errNorm > cfg.Tolerance && dt/2 >= cfg.MinDt {
		return adaptiveStep(integ, dyn, x, in, t, dt/2, cfg)
	}

	next := dt
	if errNorm < cfg.Tolerance/10 && dt < cfg.MaxDt {
		next = math.Min(dt*2, cfg.MaxDt)
	}

	return x2, dt, next, nil
}
