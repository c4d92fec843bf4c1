// Package category provides the index-category type used to label the
// components of a composite model and the entries of a categorized dataset.
package category

// State is one declared value of a category.
type State struct {
	Name  string
	Index int
}

// Category is a named, finite set of states with a stable declaration order.
// Decomposition of a composite model iterates states in declaration order, so
// that order is part of the category's identity.
type Category struct {
	name   string
	states []State
	index  map[string]int
}

// New creates a category with the given declared states. Duplicate state
// names are ignored after their first occurrence.
func New(name string, states ...string) *Category {
	c := &Category{name: name, index: make(map[string]int)}
	for _, s := range states {
		if _, ok := c.index[s]; ok {
			continue
		}
		c.index[s] = len(c.states)
		c.states = append(c.states, State{Name: s, Index: len(c.states)})
	}
	return c
}

// Name returns the category name.
func (c *Category) Name() string { return c.name }

// States returns the declared states in declaration order. The slice is
// shared; do not modify it.
func (c *Category) States() []State { return c.states }

// Len returns the number of declared states.
func (c *Category) Len() int { return len(c.states) }

// Has reports whether label is a declared state.
func (c *Category) Has(label string) bool {
	_, ok := c.index[label]
	return ok
}

// IndexOf returns the declaration index of label.
func (c *Category) IndexOf(label string) (int, bool) {
	i, ok := c.index[label]
	return i, ok
}
