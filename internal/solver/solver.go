// Package solver defines the solver contract used by the two-phase driver
// and ships two implementations: an in-process evaluator for fully
// determined models and an adapter for external solver processes.
package solver

//go:generate mockgen -source=solver.go -destination=mock_solver.go -package=solver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/san-kum/dsfeas/internal/model"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
)

var statusNames = map[Status]string{
	StatusUnknown:    "unknown",
	StatusOptimal:    "optimal",
	StatusInfeasible: "infeasible",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func ParseStatus(s string) (Status, error) {
	for st, n := range statusNames {
		if n == s {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown solver status %q", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	st, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Result is the outcome of one solve. Variable values are written back into
// the problem's variables, not carried here.
type Result struct {
	Status    Status  `json:"status"`
	Objective float64 `json:"objective"`
	Message   string  `json:"message,omitempty"`
}

func (r *Result) Infeasible() bool { return r.Status == StatusInfeasible }

// Solver maximizes the problem objective over its unfixed variables. A
// problem that has no feasible point is reported through the result status;
// an error means the solver itself failed.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *model.Problem) (*Result, error)
}
