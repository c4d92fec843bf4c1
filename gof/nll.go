package gof

import (
	"fmt"
	"math"

	"github.com/probfit/probfit/cache"
	"github.com/probfit/probfit/dataset"
	"github.com/probfit/probfit/model"
	"github.com/probfit/probfit/param"
)

// NLL is the unbinned negative log-likelihood statistic:
// -sum over events of log density(event). With Extended set, the model's
// predicted yield contributes an extended-likelihood term, divided by the
// simultaneous sibling count so a decomposed fit counts it once.
type NLL struct {
	name     string
	model    model.Model
	data     dataset.Dataset
	projDeps *param.Set
	extended bool
	simCount int

	obsNames []string
	cols     [][]float64

	caches    cache.Registry
	constTerm *constTermCache
}

// NewNLL creates the statistic for one non-composite model bound to data.
func NewNLL(name string, m model.Model, data dataset.Dataset, projDeps *param.Set, extended bool) (*NLL, error) {
	if m == nil || data == nil {
		return nil, fmt.Errorf("nll requires a model and a dataset")
	}
	if extended {
		if _, ok := m.(model.Extended); !ok {
			return nil, fmt.Errorf("model %q predicts no yield; extended likelihood unavailable", m.Name())
		}
	}
	n := &NLL{
		name:     name,
		model:    m,
		data:     data,
		projDeps: projDeps,
		extended: extended,
		simCount: 1,
		obsNames: m.Observables(),
	}
	n.constTerm = &constTermCache{nll: n}
	n.caches.Register(n.constTerm)
	return n, nil
}

func (n *NLL) loadColumns() error {
	if n.cols != nil {
		return nil
	}
	cols := make([][]float64, len(n.obsNames))
	for i, name := range n.obsNames {
		vals, err := n.data.Values(name)
		if err != nil {
			return fmt.Errorf("nll %s: %v", n.name, err)
		}
		cols[i] = vals
	}
	n.cols = cols
	return nil
}

func (n *NLL) logDensity(event int, buf []float64) (float64, error) {
	for j, col := range n.cols {
		buf[j] = col[event]
	}
	d, err := n.model.Density(buf)
	if err != nil {
		return 0, fmt.Errorf("nll %s: event %d: %v", n.name, event, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("nll %s: event %d: non-positive density %g", n.name, event, d)
	}
	return math.Log(d), nil
}

// EvaluatePartition computes the statistic over entries [first, last).
func (n *NLL) EvaluatePartition(first, last int) (float64, error) {
	if err := n.loadColumns(); err != nil {
		return 0, err
	}
	if first < 0 || last < first || last > n.data.NumEntries() {
		return 0, fmt.Errorf("nll %s: partition [%d,%d) outside [0,%d)", n.name, first, last, n.data.NumEntries())
	}

	sum := 0.0
	if logs := n.constTerm.cached(); logs != nil {
		for i := first; i < last; i++ {
			sum -= logs[i]
		}
	} else {
		buf := make([]float64, len(n.obsNames))
		for i := first; i < last; i++ {
			ld, err := n.logDensity(i, buf)
			if err != nil {
				return 0, err
			}
			sum -= ld
		}
	}

	if n.extended {
		nExp := n.model.(model.Extended).ExpectedEvents()
		if nExp <= 0 {
			return 0, fmt.Errorf("nll %s: non-positive expected yield %g", n.name, nExp)
		}
		// The yield constant nExp belongs to the dataset as a whole, so only
		// the partition holding entry zero carries it; the observed-count
		// piece accumulates per partition. Partition results then sum to the
		// full extended term nExp - nObs*log(nExp).
		term := -float64(last-first) * math.Log(nExp)
		if first == 0 {
			term += nExp
		}
		sum += term / float64(n.simCount)
	}
	return sum, nil
}

// SetSimCount records the simultaneous sibling count used to normalize the
// extended term.
func (n *NLL) SetSimCount(count int) {
	if count < 1 {
		count = 1
	}
	n.simCount = count
}

// ApplyChange applies a structural-change notice: redirects rebind the model
// parameters and invalidate caches, const-optimize notices drive the
// constant-term cache.
func (n *NLL) ApplyChange(c param.StructuralChange) error {
	switch ch := c.(type) {
	case param.Redirect:
		if err := n.model.ApplyChange(ch); err != nil {
			return err
		}
		return n.caches.RedirectAll(ch.Replacements, ch.MustReplaceAll, ch.NameChange, ch.Recursive)

	case param.ConstOptimize:
		if err := n.model.ApplyChange(ch); err != nil {
			return err
		}
		switch ch.Op {
		case param.Activate:
			return n.constTerm.activate()
		case param.DeActivate, param.ConfigChange, param.ValueChange:
			n.caches.SetOperMode(cache.ADirty)
		}
		return nil

	default:
		return nil
	}
}

// constTermCache holds precomputed per-event log densities for a fully
// constant model, following the cache invalidation contract: any structural
// change drops the cached values.
type constTermCache struct {
	nll  *NLL
	logs []float64
}

func (c *constTermCache) params() *param.Set {
	ps, err := c.nll.model.Parameters(c.nll.data)
	if err != nil {
		return param.NewSet()
	}
	return ps
}

// activate precomputes the log densities when every model parameter is
// constant. With a floating parameter present it leaves the cache inactive.
func (c *constTermCache) activate() error {
	if c.logs != nil {
		return nil
	}
	if !c.params().AllConst() {
		return nil
	}
	if err := c.nll.loadColumns(); err != nil {
		return err
	}
	nEvents := c.nll.data.NumEntries()
	logs := make([]float64, nEvents)
	buf := make([]float64, len(c.nll.obsNames))
	for i := 0; i < nEvents; i++ {
		ld, err := c.nll.logDensity(i, buf)
		if err != nil {
			return err
		}
		logs[i] = ld
	}
	c.logs = logs
	return nil
}

// cached returns the precomputed log densities, or nil when inactive.
func (c *constTermCache) cached() []float64 { return c.logs }

func (c *constTermCache) invalidate() { c.logs = nil }

func (c *constTermCache) RedirectHook(newServers *param.Set, mustReplaceAll, nameChange, recursive bool) error {
	c.invalidate()
	return nil
}

func (c *constTermCache) OperModeHook(mode cache.OperMode) {
	if mode != cache.AClean {
		c.invalidate()
	}
}

func (c *constTermCache) ContainedParams(a cache.Action) *param.Set {
	return c.params()
}

func (c *constTermCache) FindConstantNodes(observables *param.Set, constNodes *param.Set, processed map[cache.Element]bool) {
	if processed[c] {
		return
	}
	processed[c] = true
	for _, p := range c.params().Params() {
		if p.Const {
			constNodes.Add(p)
		}
	}
}

func (c *constTermCache) OptimizeCacheMode(observables *param.Set, optNodes *param.Set, processed map[cache.Element]bool) {
	processed[c] = true
}

// NLLFactory builds NLL evaluators, preserving the statistic across
// decomposition and cloning.
type NLLFactory struct {
	Extended bool
}

// NewEvaluator implements Factory.
func (f NLLFactory) NewEvaluator(name string, m model.Model, data dataset.Dataset, projDeps *param.Set) (PartitionEvaluator, error) {
	return NewNLL(name, m, data, projDeps, f.Extended)
}

// NewNLLEngine is a convenience constructor for an engine computing the
// negative log-likelihood of m against data.
func NewNLLEngine(m model.Model, data dataset.Dataset, cfg Config) (*Engine, error) {
	return NewEngine(NLLFactory{}, m, data, cfg)
}
