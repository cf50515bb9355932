package dynamo

import (
	"context"
	"math"
)

type Simulator struct {
	sys        System
	integrator Integrator
	observers  []Observer
}

func New(sys System, integrator Integrator) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Sample integrates from times[0] and records the state at every entry of
// times. Steps are clipped so that each sample time is hit exactly.
func (s *Simulator) Sample(ctx context.Context, x0 State, times []float64, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x0) != s.sys.StateDim() {
		return nil, ErrDimensionMismatch
	}
	if len(times) == 0 {
		return nil, ErrBadGrid
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, ErrBadGrid
		}
	}

	result := &Result{
		States: make([]State, 0, len(times)),
		Times:  make([]float64, 0, len(times)),
	}

	x := x0.Clone()
	t := times[0]
	dt := cfg.Dt

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for _, target := range times[1:] {
		for t < target {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}

			for _, obs := range s.observers {
				obs.OnStep(x, t)
			}

			h := math.Min(dt, target-t)
			// Avoid a sliver step right before the sample point.
			if target-(t+h) < 1e-12*math.Max(1, math.Abs(target)) {
				h = target - t
			}

			var newX State
			if cfg.Adaptive {
				var next float64
				var accepted bool
				newX, next, accepted = s.adaptiveStep(x, t, h, cfg)
				if !accepted {
					result.Rejected++
					if next < cfg.MinDt {
						return result, &SimulationError{Step: result.StepsTaken, Time: t, State: x.Clone(), Wrapped: ErrStepTooSmall}
					}
					dt = next
					continue
				}
				// A clipped step says nothing about the free step size.
				if h == dt || next < h {
					dt = math.Min(next, cfg.MaxDt)
				}
			} else {
				newX = s.integrator.Step(s.sys, x, t, h)
			}

			if cfg.ValidateState && !newX.IsValid() {
				return result, &SimulationError{Step: result.StepsTaken, Time: t, State: x.Clone(), Wrapped: ErrInvalidState}
			}

			x = newX
			t += h
			result.StepsTaken++
		}
		t = target
		result.States = append(result.States, x.Clone())
		result.Times = append(result.Times, t)
	}

	return result, nil
}

func (s *Simulator) adaptiveStep(x State, t, dt float64, cfg Config) (State, float64, bool) {
	if adaptive, ok := s.integrator.(AdaptiveIntegrator); ok {
		return adaptive.StepAdaptive(s.sys, x, t, dt, cfg.Tolerance)
	}

	// Step doubling for integrators without an embedded error estimate.
	x1 := s.integrator.Step(s.sys, x, t, dt)
	xHalf := s.integrator.Step(s.sys, x, t, dt/2)
	x2 := s.integrator.Step(s.sys, xHalf, t+dt/2, dt/2)

	err := x1.Sub(x2).Norm() / (1 + x2.Norm())

	if err > cfg.Tolerance && dt > cfg.MinDt {
		return x, dt / 2, false
	}

	if err < cfg.Tolerance/10 {
		dt = math.Min(dt*2, cfg.MaxDt)
	}

	return x2, dt, true
}
