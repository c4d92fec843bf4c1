package model

import (
	"fmt"
	"math"

	"github.com/probfit/probfit/dataset"
	"github.com/probfit/probfit/param"
)

// Gaussian is a one-dimensional normal density over a single observable.
type Gaussian struct {
	name      string
	obs       string
	params    *param.Set
	meanName  string
	sigmaName string
}

// NewGaussian creates a Gaussian density reading observable obs with the
// given mean and width parameters.
func NewGaussian(name, obs string, mean, sigma *param.Param) *Gaussian {
	return &Gaussian{
		name:      name,
		obs:       obs,
		params:    param.NewSet(mean, sigma),
		meanName:  mean.Name,
		sigmaName: sigma.Name,
	}
}

// Name returns the model name.
func (g *Gaussian) Name() string { return g.name }

// Observables returns the single observable column name.
func (g *Gaussian) Observables() []string { return []string{g.obs} }

// Parameters returns the mean and width parameters.
func (g *Gaussian) Parameters(data dataset.Dataset) (*param.Set, error) {
	return freeParams(g.params, data), nil
}

// Density evaluates the normal density at obs[0].
func (g *Gaussian) Density(obs []float64) (float64, error) {
	if len(obs) != 1 {
		return 0, fmt.Errorf("gaussian %q expects 1 observable, got %d", g.name, len(obs))
	}
	mean := g.params.Find(g.meanName)
	sigma := g.params.Find(g.sigmaName)
	if sigma.Value <= 0 {
		return 0, fmt.Errorf("gaussian %q has non-positive sigma %f", g.name, sigma.Value)
	}
	z := (obs[0] - mean.Value) / sigma.Value
	return math.Exp(-0.5*z*z) / (sigma.Value * math.Sqrt(2*math.Pi)), nil
}

// ApplyChange swaps parameter identities on redirect notices.
func (g *Gaussian) ApplyChange(c param.StructuralChange) error {
	return applyRedirect(g.params, c)
}

// Exponential is a one-dimensional decay density exp(-x/tau)/tau over a
// single non-negative observable.
type Exponential struct {
	name    string
	obs     string
	params  *param.Set
	tauName string
}

// NewExponential creates an exponential density with decay parameter tau.
func NewExponential(name, obs string, tau *param.Param) *Exponential {
	return &Exponential{
		name:    name,
		obs:     obs,
		params:  param.NewSet(tau),
		tauName: tau.Name,
	}
}

// Name returns the model name.
func (e *Exponential) Name() string { return e.name }

// Observables returns the single observable column name.
func (e *Exponential) Observables() []string { return []string{e.obs} }

// Parameters returns the decay parameter.
func (e *Exponential) Parameters(data dataset.Dataset) (*param.Set, error) {
	return freeParams(e.params, data), nil
}

// Density evaluates the decay density at obs[0].
func (e *Exponential) Density(obs []float64) (float64, error) {
	if len(obs) != 1 {
		return 0, fmt.Errorf("exponential %q expects 1 observable, got %d", e.name, len(obs))
	}
	tau := e.params.Find(e.tauName)
	if tau.Value <= 0 {
		return 0, fmt.Errorf("exponential %q has non-positive tau %f", e.name, tau.Value)
	}
	if obs[0] < 0 {
		return 0, fmt.Errorf("exponential %q evaluated at negative observable %f", e.name, obs[0])
	}
	return math.Exp(-obs[0]/tau.Value) / tau.Value, nil
}

// ApplyChange swaps parameter identities on redirect notices.
func (e *Exponential) ApplyChange(c param.StructuralChange) error {
	return applyRedirect(e.params, c)
}

// YieldModel wraps a model with a total-yield parameter, making it usable
// with extended-likelihood statistics.
type YieldModel struct {
	Model
	params    *param.Set
	yieldName string
}

// WithYield attaches an expected-events parameter to m.
func WithYield(m Model, yield *param.Param) *YieldModel {
	return &YieldModel{
		Model:     m,
		params:    param.NewSet(yield),
		yieldName: yield.Name,
	}
}

// Parameters returns the wrapped model's parameters plus the yield.
func (y *YieldModel) Parameters(data dataset.Dataset) (*param.Set, error) {
	inner, err := y.Model.Parameters(data)
	if err != nil {
		return nil, err
	}
	all := param.NewSet()
	all.AddAll(inner)
	all.AddAll(freeParams(y.params, data))
	return all, nil
}

// ExpectedEvents returns the current yield value.
func (y *YieldModel) ExpectedEvents() float64 {
	return y.params.Find(y.yieldName).Value
}

// ApplyChange forwards to the wrapped model and redirects the yield.
func (y *YieldModel) ApplyChange(c param.StructuralChange) error {
	if err := y.Model.ApplyChange(c); err != nil {
		return err
	}
	return applyRedirect(y.params, c)
}
