package scenario

import "github.com/san-kum/dsfeas/internal/model"

// Ancestors is the read-only chain of blocks above the node a rule is
// building, root first.
type Ancestors struct {
	views []model.View
}

func (a Ancestors) Len() int { return len(a.views) }

func (a Ancestors) At(stage int) model.View { return a.views[stage] }

// Parent is the nearest ancestor, or nil at the root.
func (a Ancestors) Parent() model.View {
	if len(a.views) == 0 {
		return nil
	}
	return a.views[len(a.views)-1]
}

// Ref resolves name in the nearest ancestor that declares it.
func (a Ancestors) Ref(name string) (model.Expr, error) {
	for i := len(a.views) - 1; i >= 0; i-- {
		if e, ok := a.views[i].Ref(name); ok {
			return e, nil
		}
	}
	return nil, model.Configf("ancestors", "no ancestor declares %q", name)
}

func (a Ancestors) State(name string) (*model.DiffState, error) {
	for i := len(a.views) - 1; i >= 0; i-- {
		if s, ok := a.views[i].State(name); ok {
			return s, nil
		}
	}
	return nil, model.Configf("ancestors", "no ancestor declares state %q", name)
}

func (a Ancestors) with(v model.View) Ancestors {
	views := make([]model.View, len(a.views)+1)
	copy(views, a.views)
	views[len(a.views)] = v
	return Ancestors{views: views}
}
