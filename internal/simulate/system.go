package simulate

import (
	"github.com/san-kum/dsfeas/internal/dynamo"
	"github.com/san-kum/dsfeas/internal/model"
)

// system evaluates the rate expressions of a block's differential states.
type system struct {
	states []*model.DiffState
	time   *model.Var
}

func newSystem(b *model.Block) *system {
	s := &system{states: b.States()}
	if v, ok := b.LookupVar("time"); ok {
		s.time = v
	}
	return s
}

func (s *system) StateDim() int { return len(s.states) }

func (s *system) Derive(x dynamo.State, t float64) dynamo.State {
	for i, st := range s.states {
		st.Now().Value = x[i]
	}
	if s.time != nil {
		s.time.Value = t
	}
	dx := make(dynamo.State, len(s.states))
	for i, st := range s.states {
		dx[i] = st.Rate.Eval()
	}
	return dx
}
