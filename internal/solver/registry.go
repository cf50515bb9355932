package solver

import (
	"sort"
	"sync"

	"github.com/san-kum/dsfeas/internal/model"
)

// Factory builds a solver from its opaque io options.
type Factory func(opts map[string]any) (Solver, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		"eval": func(opts map[string]any) (Solver, error) {
			e := NewEvaluator()
			if err := decodeOptions(opts, e); err != nil {
				return nil, err
			}
			return e, nil
		},
		"exec": func(opts map[string]any) (Solver, error) {
			var o ExecOptions
			if err := decodeOptions(opts, &o); err != nil {
				return nil, err
			}
			return NewExec(o)
		},
	}
)

// Register adds or replaces a named solver factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

func New(name string, opts map[string]any) (Solver, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, model.Configf("solver", "unknown solver %q (available: %v)", name, Names())
	}
	return f(opts)
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
