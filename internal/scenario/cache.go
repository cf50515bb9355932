package scenario

import (
	"slices"
	"sync"
)

// Cache rebuilds the tree only when the branching factors change.
type Cache struct {
	rules []StageRule
	opts  []BuildOption

	mu     sync.Mutex
	bf     []int
	tree   *Tree
	builds int
}

func NewCache(rules []StageRule, opts ...BuildOption) *Cache {
	return &Cache{rules: rules, opts: opts}
}

func (c *Cache) Get(bf []int) (*Tree, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree != nil && slices.Equal(c.bf, bf) {
		return c.tree, nil
	}
	t, err := Build(c.rules, bf, c.opts...)
	if err != nil {
		return nil, err
	}
	c.tree = t
	c.bf = slices.Clone(bf)
	c.builds++
	return t, nil
}

// Builds counts how many trees the cache has constructed.
func (c *Cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}
