package model

import (
	"fmt"

	"github.com/probfit/probfit/category"
	"github.com/probfit/probfit/dataset"
	"github.com/probfit/probfit/param"
)

// Simultaneous is a composite model: a labeled union of component models over
// the states of an index category. It is evaluated only through
// decomposition; calling Density on it is a programming error.
type Simultaneous struct {
	name  string
	idx   *category.Category
	comps map[string]Model
}

// NewSimultaneous creates a composite model. Component labels that are not
// declared states of idx are rejected.
func NewSimultaneous(name string, idx *category.Category, comps map[string]Model) (*Simultaneous, error) {
	for label := range comps {
		if !idx.Has(label) {
			return nil, fmt.Errorf("component label %q is not a state of category %q", label, idx.Name())
		}
	}
	return &Simultaneous{name: name, idx: idx, comps: comps}, nil
}

// Name returns the model name.
func (s *Simultaneous) Name() string { return s.name }

// IndexCategory returns the category labeling the components.
func (s *Simultaneous) IndexCategory() *category.Category { return s.idx }

// SubModel returns the component bound to label.
func (s *Simultaneous) SubModel(label string) (Model, bool) {
	m, ok := s.comps[label]
	return m, ok
}

// Observables returns the union of the components' observables, in declared
// state order with duplicates removed.
func (s *Simultaneous) Observables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, st := range s.idx.States() {
		comp, ok := s.comps[st.Name]
		if !ok {
			continue
		}
		for _, o := range comp.Observables() {
			if !seen[o] {
				seen[o] = true
				out = append(out, o)
			}
		}
	}
	return out
}

// Parameters returns the union of the components' free parameters, in
// declared state order.
func (s *Simultaneous) Parameters(data dataset.Dataset) (*param.Set, error) {
	all := param.NewSet()
	for _, st := range s.idx.States() {
		comp, ok := s.comps[st.Name]
		if !ok {
			continue
		}
		ps, err := comp.Parameters(data)
		if err != nil {
			return nil, err
		}
		all.AddAll(ps)
	}
	return all, nil
}

// Density is not defined for a composite model; the engine decomposes it
// into per-state evaluators instead.
func (s *Simultaneous) Density(obs []float64) (float64, error) {
	return 0, fmt.Errorf("composite model %q cannot be evaluated directly; it must be decomposed", s.name)
}

// ApplyChange forwards the notice to every component.
func (s *Simultaneous) ApplyChange(c param.StructuralChange) error {
	for _, st := range s.idx.States() {
		comp, ok := s.comps[st.Name]
		if !ok {
			continue
		}
		if err := comp.ApplyChange(c); err != nil {
			return fmt.Errorf("component %q: %v", st.Name, err)
		}
	}
	return nil
}
