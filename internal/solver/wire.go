package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/dsfeas/internal/model"
)

const wireVersion = 1

// Document is the JSON problem handed to an external solver on stdin.
// Absent bounds are omitted since JSON has no infinities.
type Document struct {
	Version     int              `json:"version"`
	Sense       string           `json:"sense"`
	Vars        []WireVar        `json:"vars"`
	Params      []WireParam      `json:"params"`
	Constraints []WireConstraint `json:"constraints"`
	States      []WireState      `json:"states,omitempty"`
	Objective   model.Node       `json:"objective"`
	Indicators  []string         `json:"indicators"`
}

type WireVar struct {
	Name  string   `json:"name"`
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
	Value float64  `json:"value"`
	Fixed bool     `json:"fixed,omitempty"`
}

type WireParam struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type WireConstraint struct {
	Name  string     `json:"name"`
	Body  model.Node `json:"body"`
	Lower *float64   `json:"lower,omitempty"`
	Upper *float64   `json:"upper,omitempty"`
}

// WireState describes a differential state so that an external solver can
// apply its own discretization over Grid.
type WireState struct {
	Name    string     `json:"name"`
	Initial model.Node `json:"initial"`
	Rate    model.Node `json:"rate"`
	Now     string     `json:"now"`
	Points  []string   `json:"points"`
	Grid    []float64  `json:"grid"`
}

// Reply is the JSON answer an external solver writes on stdout.
type Reply struct {
	Status    Status             `json:"status"`
	Objective float64            `json:"objective"`
	Values    map[string]float64 `json:"values"`
	Message   string             `json:"message,omitempty"`
}

func bound(f float64) *float64 {
	if math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func unbound(f *float64, inf float64) float64 {
	if f == nil {
		return inf
	}
	return *f
}

func NewDocument(p *model.Problem) *Document {
	doc := &Document{Version: wireVersion, Sense: "maximize"}
	for _, v := range p.Vars {
		doc.Vars = append(doc.Vars, WireVar{
			Name:  v.QualifiedName(),
			Lower: bound(v.Lower),
			Upper: bound(v.Upper),
			Value: v.Value,
			Fixed: v.Fixed(),
		})
	}
	for _, q := range p.Params {
		doc.Params = append(doc.Params, WireParam{Name: q.QualifiedName(), Value: q.Value})
	}
	for _, c := range p.Constraints {
		doc.Constraints = append(doc.Constraints, WireConstraint{
			Name:  c.QualifiedName(),
			Body:  model.Encode(c.Body),
			Lower: bound(c.Lower),
			Upper: bound(c.Upper),
		})
	}
	for _, s := range p.States {
		ws := WireState{
			Name:    s.Block().Name() + "." + s.Name,
			Initial: model.Encode(s.Initial),
			Rate:    model.Encode(s.Rate),
			Now:     s.Now().QualifiedName(),
			Grid:    s.Block().Grid(),
		}
		for _, pt := range s.Points() {
			ws.Points = append(ws.Points, pt.QualifiedName())
		}
		doc.States = append(doc.States, ws)
	}
	if p.Objective != nil {
		doc.Objective = model.Encode(p.Objective)
	}
	for _, v := range p.Indicators {
		doc.Indicators = append(doc.Indicators, v.QualifiedName())
	}
	return doc
}

// Load rebuilds a problem from a document. Symbols keep their qualified
// names; differential states are not rebuilt.
func (d *Document) Load() (*model.Problem, error) {
	if d.Version != wireVersion {
		return nil, fmt.Errorf("unsupported document version %d", d.Version)
	}

	p := &model.Problem{}
	vars := make(map[string]*model.Var, len(d.Vars))
	for _, wv := range d.Vars {
		v := &model.Var{
			Name:  wv.Name,
			Lower: unbound(wv.Lower, math.Inf(-1)),
			Upper: unbound(wv.Upper, math.Inf(1)),
			Value: wv.Value,
		}
		if wv.Fixed {
			v.Fix(wv.Value)
		}
		vars[wv.Name] = v
		p.Vars = append(p.Vars, v)
	}
	params := make(map[string]*model.Param, len(d.Params))
	for _, wp := range d.Params {
		q := &model.Param{Name: wp.Name, Value: wp.Value}
		params[wp.Name] = q
		p.Params = append(p.Params, q)
	}

	resolve := func(kind, ref string) (model.Expr, error) {
		if kind == "var" {
			if v, ok := vars[ref]; ok {
				return v, nil
			}
		} else if q, ok := params[ref]; ok {
			return q, nil
		}
		return nil, fmt.Errorf("document references unknown %s %q", kind, ref)
	}

	for _, wc := range d.Constraints {
		body, err := model.Decode(wc.Body, resolve)
		if err != nil {
			return nil, fmt.Errorf("constraint %s: %w", wc.Name, err)
		}
		p.Constraints = append(p.Constraints, &model.Constraint{
			Name:   wc.Name,
			Body:   body,
			Lower:  unbound(wc.Lower, math.Inf(-1)),
			Upper:  unbound(wc.Upper, math.Inf(1)),
			Active: true,
		})
	}

	if d.Objective.Op != "" {
		obj, err := model.Decode(d.Objective, resolve)
		if err != nil {
			return nil, fmt.Errorf("objective: %w", err)
		}
		p.Objective = obj
	}
	for _, name := range d.Indicators {
		v, ok := vars[name]
		if !ok {
			return nil, fmt.Errorf("unknown indicator %q", name)
		}
		p.Indicators = append(p.Indicators, v)
	}
	return p, nil
}

// Apply writes the reply's values into the unfixed variables of p.
func (r *Reply) Apply(p *model.Problem) error {
	idx := p.VarIndex()
	for name, value := range r.Values {
		v, ok := idx[name]
		if !ok {
			return fmt.Errorf("solver returned value for unknown variable %q", name)
		}
		if !v.Fixed() {
			v.Value = value
		}
	}
	return nil
}

func (r *Reply) Result() *Result {
	return &Result{Status: r.Status, Objective: r.Objective, Message: r.Message}
}

// Serve reads one document from in, solves it with s and writes the reply
// to out. It is the solver-process side of the exec protocol.
func Serve(ctx context.Context, in io.Reader, out io.Writer, s Solver) error {
	var doc Document
	if err := json.NewDecoder(in).Decode(&doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	p, err := doc.Load()
	if err != nil {
		return err
	}

	res, err := s.Solve(ctx, p)
	if err != nil {
		return err
	}

	reply := Reply{Status: res.Status, Objective: res.Objective, Message: res.Message, Values: make(map[string]float64)}
	for _, v := range p.Free() {
		reply.Values[v.QualifiedName()] = v.Value
	}
	return json.NewEncoder(out).Encode(&reply)
}
