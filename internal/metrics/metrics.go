// Package metrics exposes Prometheus instrumentation for feasibility runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	solveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsfeas_solve_total",
		Help: "Solver calls by phase and status",
	}, []string{"phase", "status"})

	solveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dsfeas_solve_duration_seconds",
		Help:    "Solver call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	}, []string{"phase"})

	relaxationInfeasible = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsfeas_relaxation_infeasible_total",
		Help: "Solve cycles whose relaxed problem had no feasible point",
	})

	treeBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsfeas_tree_builds_total",
		Help: "Scenario trees constructed",
	})

	scenariosEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsfeas_scenarios_evaluated_total",
		Help: "Terminal scenarios evaluated by result",
	}, []string{"result"})

	designPointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dsfeas_design_point_duration_seconds",
		Help:    "Wall time to evaluate one design point",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

func ObserveSolve(phase, status string, d time.Duration) {
	solveTotal.WithLabelValues(phase, status).Inc()
	solveDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func RelaxationInfeasible() { relaxationInfeasible.Inc() }

func TreeBuilt() { treeBuilds.Inc() }

// ObserveScenarios counts terminal scenarios by outcome.
func ObserveScenarios(feasible, infeasible int) {
	scenariosEvaluated.WithLabelValues("feasible").Add(float64(feasible))
	scenariosEvaluated.WithLabelValues("infeasible").Add(float64(infeasible))
}

func ObserveDesignPoint(d time.Duration) { designPointDuration.Observe(d.Seconds()) }

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
