package model

// Node is the JSON form of an expression. Variables and parameters are
// referenced by qualified name.
type Node struct {
	Op    string  `json:"op"`
	Value float64 `json:"value,omitempty"`
	Ref   string  `json:"ref,omitempty"`
	Args  []Node  `json:"args,omitempty"`
}

func Encode(e Expr) Node {
	switch n := e.(type) {
	case Const:
		return Node{Op: "const", Value: float64(n)}
	case *Var:
		return Node{Op: "var", Ref: n.QualifiedName()}
	case *Param:
		return Node{Op: "param", Ref: n.QualifiedName()}
	case *binary:
		return Node{Op: string(n.op), Args: []Node{Encode(n.l), Encode(n.r)}}
	case *unary:
		return Node{Op: string(n.op), Args: []Node{Encode(n.x)}}
	case *sum:
		args := make([]Node, len(n.terms))
		for i, t := range n.terms {
			args[i] = Encode(t)
		}
		return Node{Op: string(opSum), Args: args}
	}
	panic("model: cannot encode expression of type " + e.String())
}

// Decode rebuilds an expression from its node form. resolve maps a "var" or
// "param" reference back to the live symbol.
func Decode(n Node, resolve func(kind, ref string) (Expr, error)) (Expr, error) {
	args := make([]Expr, len(n.Args))
	for i, a := range n.Args {
		x, err := Decode(a, resolve)
		if err != nil {
			return nil, err
		}
		args[i] = x
	}

	arity := func(want int) error {
		if len(args) != want {
			return Configf("expression", "%s takes %d arguments, got %d", n.Op, want, len(args))
		}
		return nil
	}

	switch opKind(n.Op) {
	case opAdd, opSub, opMul, opDiv, opPow:
		if err := arity(2); err != nil {
			return nil, err
		}
		return &binary{op: opKind(n.Op), l: args[0], r: args[1]}, nil
	case opNeg, opExp, opLog:
		if err := arity(1); err != nil {
			return nil, err
		}
		return &unary{op: opKind(n.Op), x: args[0]}, nil
	case opSum:
		return Sum(args...), nil
	}

	switch n.Op {
	case "const":
		return Const(n.Value), nil
	case "var", "param":
		return resolve(n.Op, n.Ref)
	}
	return nil, Configf("expression", "unknown op %q", n.Op)
}
