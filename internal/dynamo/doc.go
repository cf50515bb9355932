// Package dynamo provides the ODE primitives used to pre-integrate stage
// dynamics before a feasibility solve.
//
// The package defines the fundamental interfaces and types:
//
//   - [State]: vector representing system state
//   - [System]: right-hand side of dX/dt = f(X, t)
//   - [Integrator]: fixed-step numerical integrator
//   - [AdaptiveIntegrator]: integrator with embedded error control
//   - [Simulator]: drives an integrator over a time span or a sample grid
//
// # Example
//
//	sys := flatModel.System()
//	sim := dynamo.New(sys, integrators.NewRK45())
//	res, err := sim.Sample(ctx, x0, grid, cfg)
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe. Integrators keep scratch buffers,
// so each goroutine needs its own Simulator and Integrator.
package dynamo
