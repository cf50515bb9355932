package model

import "fmt"

// DiffState is a continuous state x(t) with dx/dt = Rate over the block's
// time grid. Now is the symbol for the current value while rates are
// evaluated; the trajectory variables hold x at each grid point.
type DiffState struct {
	Name    string
	Initial Expr
	Rate    Expr

	now    *Var
	points []*Var
	block  *Block
}

// TimeGrid sets the ordered time points that differential states are
// tracked on. It must be called before DiffState.
func (b *Block) TimeGrid(points []float64) {
	if len(points) < 2 {
		b.fail(Configf(b.component(), "time grid needs at least two points, got %d", len(points)))
		return
	}
	for i := 1; i < len(points); i++ {
		if points[i] <= points[i-1] {
			b.fail(Configf(b.component(), "time grid not increasing at %d", i))
			return
		}
	}
	b.grid = append([]float64(nil), points...)
}

func (b *Block) Grid() []float64 { return b.grid }

// Time is the symbol for the independent variable while rates are
// evaluated. It is created on first use.
func (b *Block) Time() *Var {
	if b.time == nil {
		b.time = b.FreeVar("time", 0)
		b.time.Fix(0)
	}
	return b.time
}

// DiffState declares a differential state with initial value x0. The rate
// is set afterwards with SetRate so it may refer to other states.
func (b *Block) DiffState(name string, x0 Expr) *DiffState {
	s := &DiffState{Name: name, Initial: x0, block: b}
	if len(b.grid) == 0 {
		b.fail(Configf(b.component(), "differential state %q declared before the time grid", name))
		return s
	}
	if !b.claim(name, s) {
		return s
	}
	s.now = b.FreeVar(name+"_now", x0.Eval())
	s.now.Fix(s.now.Value)
	s.points = make([]*Var, len(b.grid))
	for k := range b.grid {
		s.points[k] = b.FreeVar(fmt.Sprintf("%s[%d]", name, k), x0.Eval())
	}
	b.states = append(b.states, s)
	return s
}

func (s *DiffState) SetRate(e Expr) *DiffState {
	s.Rate = e
	return s
}

// Now is the symbol standing for the state value inside rate expressions.
func (s *DiffState) Now() *Var { return s.now }

func (s *DiffState) At(k int) *Var { return s.points[k] }

func (s *DiffState) Final() *Var { return s.points[len(s.points)-1] }

func (s *DiffState) Points() []*Var { return s.points }

func (s *DiffState) Block() *Block { return s.block }

func (b *Block) States() []*DiffState { return b.states }

func (b *Block) State(name string) (*DiffState, bool) {
	s, ok := b.names[name].(*DiffState)
	return s, ok
}

// CheckStates reports states declared without a rate.
func (b *Block) CheckStates() error {
	for _, s := range b.states {
		if s.Rate == nil {
			return Configf(b.component(), "differential state %q has no rate", s.Name)
		}
	}
	return nil
}
