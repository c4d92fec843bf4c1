package param

import (
	"fmt"
	"sort"
	"strings"
)

// Param is a single named, real-valued model parameter. Engines and models
// reference parameters by pointer; two holders that share a *Param see each
// other's value updates, two holders with distinct copies do not.
type Param struct {
	Name  string
	Value float64
	Const bool
}

// New creates a floating parameter with the given name and starting value.
func New(name string, value float64) *Param {
	return &Param{Name: name, Value: value}
}

// NewConst creates a parameter flagged as constant.
func NewConst(name string, value float64) *Param {
	return &Param{Name: name, Value: value, Const: true}
}

// Clone returns an independent copy of the parameter.
func (p *Param) Clone() *Param {
	c := *p
	return &c
}

// Set is an ordered collection of parameters indexed by name. Insertion order
// is preserved so iteration is deterministic.
type Set struct {
	list  []*Param
	index map[string]*Param
}

// NewSet creates a set holding the given parameters. Later duplicates of a
// name replace earlier ones.
func NewSet(params ...*Param) *Set {
	s := &Set{index: make(map[string]*Param)}
	for _, p := range params {
		s.Add(p)
	}
	return s
}

// Add inserts a parameter, replacing any existing parameter of the same name
// in place.
func (s *Set) Add(p *Param) {
	if p == nil {
		return
	}
	if old, ok := s.index[p.Name]; ok {
		for i, q := range s.list {
			if q == old {
				s.list[i] = p
				break
			}
		}
		s.index[p.Name] = p
		return
	}
	s.list = append(s.list, p)
	s.index[p.Name] = p
}

// AddAll inserts every parameter of other.
func (s *Set) AddAll(other *Set) {
	if other == nil {
		return
	}
	for _, p := range other.list {
		s.Add(p)
	}
}

// Find returns the parameter with the given name, or nil.
func (s *Set) Find(name string) *Param {
	if s == nil {
		return nil
	}
	return s.index[name]
}

// Len returns the number of parameters in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.list)
}

// Params returns the parameters in insertion order. The slice is shared; do
// not modify it.
func (s *Set) Params() []*Param {
	if s == nil {
		return nil
	}
	return s.list
}

// Names returns the parameter names in insertion order.
func (s *Set) Names() []string {
	names := make([]string, 0, s.Len())
	for _, p := range s.Params() {
		names = append(names, p.Name)
	}
	return names
}

// Clone returns a deep copy: every contained parameter is copied, so value
// changes on the clone are invisible to the original.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	c := NewSet()
	for _, p := range s.list {
		c.Add(p.Clone())
	}
	return c
}

// AllConst reports whether every parameter in the set is flagged constant.
// An empty set counts as all-constant.
func (s *Set) AllConst() bool {
	for _, p := range s.Params() {
		if !p.Const {
			return false
		}
	}
	return true
}

// String renders the set as a sorted name list, for diagnostics.
func (s *Set) String() string {
	names := s.Names()
	sort.Strings(names)
	return "(" + strings.Join(names, ",") + ")"
}

// applyRedirect replaces parameters in the set with same-named entries from
// the replacement set. Returns the number of replacements performed.
func (s *Set) applyRedirect(r Redirect) (int, error) {
	if s == nil || r.Replacements == nil {
		return 0, nil
	}
	replaced := 0
	for i, p := range s.list {
		if np := r.Replacements.Find(p.Name); np != nil && np != p {
			s.list[i] = np
			s.index[p.Name] = np
			replaced++
		}
	}
	if r.MustReplaceAll && replaced < len(s.list) {
		return replaced, fmt.Errorf("redirect replaced %d of %d parameters with mustReplaceAll set", replaced, len(s.list))
	}
	return replaced, nil
}

// ApplyRedirect replaces parameter identities per the redirect notice.
// With MustReplaceAll set, an error is returned when some parameter has no
// same-named replacement; replacements that did match are kept.
func (s *Set) ApplyRedirect(r Redirect) (int, error) {
	return s.applyRedirect(r)
}
