// Package model defines the probability-model surface the goodness-of-fit
// engine evaluates against, plus a small set of concrete densities.
package model

import (
	"fmt"

	"github.com/probfit/probfit/category"
	"github.com/probfit/probfit/dataset"
	"github.com/probfit/probfit/param"
)

// Model is a probability density over a set of named float observables.
type Model interface {
	// Name identifies the model in diagnostics.
	Name() string

	// Observables returns the data column names the model reads, in the
	// order Density expects them.
	Observables() []string

	// Parameters returns the model's free parameters with respect to the
	// given dataset: parameters whose names coincide with data columns are
	// excluded.
	Parameters(data dataset.Dataset) (*param.Set, error)

	// Density returns the probability density at a single event. The obs
	// slice carries one value per entry of Observables, in order.
	Density(obs []float64) (float64, error)

	// ApplyChange applies a structural-change notice locally: parameter
	// redirects swap the model's parameter identities, const-optimize
	// notices are model-specific and may be ignored.
	ApplyChange(c param.StructuralChange) error
}

// Composite is a model that is a labeled union of sub-models over an index
// category. Composite models are decomposed by the engine, never evaluated
// directly.
type Composite interface {
	Model

	// IndexCategory returns the category whose states label the components.
	IndexCategory() *category.Category

	// SubModel returns the component bound to the given state label.
	SubModel(label string) (Model, bool)
}

// Extended is implemented by models that predict a total event yield, used
// by extended-likelihood statistics.
type Extended interface {
	ExpectedEvents() float64
}

// IsComposite reports whether m decomposes over an index category.
func IsComposite(m Model) bool {
	_, ok := m.(Composite)
	return ok
}

// freeParams returns the subset of params not shadowed by data columns.
func freeParams(params *param.Set, data dataset.Dataset) *param.Set {
	free := param.NewSet()
	for _, p := range params.Params() {
		if data != nil {
			if _, err := data.Values(p.Name); err == nil {
				continue
			}
		}
		free.Add(p)
	}
	return free
}

// applyRedirect applies a redirect notice to a model-owned set, tolerating
// partial matches: a model's parameters are a subset of the engine's, so
// MustReplaceAll is enforced at the engine level, not here.
func applyRedirect(s *param.Set, c param.StructuralChange) error {
	r, ok := c.(param.Redirect)
	if !ok {
		return nil
	}
	local := r
	local.MustReplaceAll = false
	if _, err := s.ApplyRedirect(local); err != nil {
		return fmt.Errorf("parameter redirect failed: %v", err)
	}
	return nil
}
