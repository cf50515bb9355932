package model

// Problem is the flattened content a solver works on. The objective is
// always maximized.
type Problem struct {
	Vars        []*Var
	Params      []*Param
	Constraints []*Constraint
	States      []*DiffState
	Objective   Expr
	// Indicators are the feasibility indicators in terminal scenario order.
	Indicators []*Var
}

// Collect appends the content of b to the problem. Inactive constraints are
// left out.
func (p *Problem) Collect(b *Block) {
	p.Vars = append(p.Vars, b.vars...)
	p.Params = append(p.Params, b.params...)
	for _, c := range b.constraints {
		if c.Active {
			p.Constraints = append(p.Constraints, c)
		}
	}
	p.States = append(p.States, b.states...)
}

// Free returns the variables a solver may move.
func (p *Problem) Free() []*Var {
	var out []*Var
	for _, v := range p.Vars {
		if !v.Fixed() {
			out = append(out, v)
		}
	}
	return out
}

// VarIndex maps qualified names to variables.
func (p *Problem) VarIndex() map[string]*Var {
	idx := make(map[string]*Var, len(p.Vars))
	for _, v := range p.Vars {
		idx[v.QualifiedName()] = v
	}
	return idx
}

func (p *Problem) ParamIndex() map[string]*Param {
	idx := make(map[string]*Param, len(p.Params))
	for _, q := range p.Params {
		idx[q.QualifiedName()] = q
	}
	return idx
}
