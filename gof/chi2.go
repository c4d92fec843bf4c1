package gof

import (
	"fmt"

	"github.com/probfit/probfit/dataset"
	"github.com/probfit/probfit/model"
	"github.com/probfit/probfit/param"
)

// Chi2 is a binned chi-square statistic over a histogram dataset: each entry
// is one bin with observable columns holding the bin center and a weight
// column holding the bin content. The model prediction for a bin is
// density(center) * totalWeight * binVolume.
type Chi2 struct {
	name      string
	model     model.Model
	data      dataset.Dataset
	weightCol string
	binVolume float64

	obsNames []string
	cols     [][]float64
	weights  []float64
	totalW   float64
}

// NewChi2 creates the statistic for one non-composite model bound to a
// binned dataset.
func NewChi2(name string, m model.Model, data dataset.Dataset, weightCol string, binVolume float64) (*Chi2, error) {
	if m == nil || data == nil {
		return nil, fmt.Errorf("chi2 requires a model and a dataset")
	}
	if binVolume <= 0 {
		return nil, fmt.Errorf("chi2 %s: bin volume must be positive, got %g", name, binVolume)
	}
	return &Chi2{
		name:      name,
		model:     m,
		data:      data,
		weightCol: weightCol,
		binVolume: binVolume,
		obsNames:  m.Observables(),
	}, nil
}

func (c *Chi2) loadColumns() error {
	if c.cols != nil {
		return nil
	}
	cols := make([][]float64, len(c.obsNames))
	for i, name := range c.obsNames {
		vals, err := c.data.Values(name)
		if err != nil {
			return fmt.Errorf("chi2 %s: %v", c.name, err)
		}
		cols[i] = vals
	}
	weights, err := c.data.Values(c.weightCol)
	if err != nil {
		return fmt.Errorf("chi2 %s: %v", c.name, err)
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	c.cols = cols
	c.weights = weights
	c.totalW = total
	return nil
}

// EvaluatePartition computes the chi-square over bins [first, last).
func (c *Chi2) EvaluatePartition(first, last int) (float64, error) {
	if err := c.loadColumns(); err != nil {
		return 0, err
	}
	if first < 0 || last < first || last > c.data.NumEntries() {
		return 0, fmt.Errorf("chi2 %s: partition [%d,%d) outside [0,%d)", c.name, first, last, c.data.NumEntries())
	}

	buf := make([]float64, len(c.obsNames))
	sum := 0.0
	for i := first; i < last; i++ {
		for j, col := range c.cols {
			buf[j] = col[i]
		}
		d, err := c.model.Density(buf)
		if err != nil {
			return 0, fmt.Errorf("chi2 %s: bin %d: %v", c.name, i, err)
		}
		mu := d * c.totalW * c.binVolume
		if mu <= 0 {
			return 0, fmt.Errorf("chi2 %s: bin %d: non-positive prediction %g", c.name, i, mu)
		}
		diff := c.weights[i] - mu
		sum += diff * diff / mu
	}
	return sum, nil
}

// SetSimCount is accepted for interface compatibility; the chi-square has no
// per-slave constant term to normalize.
func (c *Chi2) SetSimCount(count int) {}

// ApplyChange forwards the notice to the model.
func (c *Chi2) ApplyChange(ch param.StructuralChange) error {
	return c.model.ApplyChange(ch)
}

// Chi2Factory builds Chi2 evaluators sharing one weight-column and
// bin-volume configuration.
type Chi2Factory struct {
	WeightColumn string
	BinVolume    float64
}

// NewEvaluator implements Factory.
func (f Chi2Factory) NewEvaluator(name string, m model.Model, data dataset.Dataset, projDeps *param.Set) (PartitionEvaluator, error) {
	return NewChi2(name, m, data, f.WeightColumn, f.BinVolume)
}

// NewChi2Engine is a convenience constructor for an engine computing the
// chi-square of m against a binned dataset.
func NewChi2Engine(m model.Model, data dataset.Dataset, weightCol string, binVolume float64, cfg Config) (*Engine, error) {
	return NewEngine(Chi2Factory{WeightColumn: weightCol, BinVolume: binVolume}, m, data, cfg)
}
