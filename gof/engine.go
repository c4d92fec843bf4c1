// Package gof implements the goodness-of-fit evaluation engine. An Engine
// organizes the computation of a scalar fit statistic for a model/dataset
// pair: a composite model is decomposed into one sub-engine per populated
// category (SimMaster), a multi-worker evaluation is split into partitions
// dispatched through parallel front-ends (MPMaster), and a plain slave
// evaluates one contiguous partition of the data directly.
package gof

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/probfit/probfit/dataset"
	"github.com/probfit/probfit/model"
	"github.com/probfit/probfit/mpfe"
	"github.com/probfit/probfit/param"
)

var (
	// ErrBadPartition signals a partition selector outside 0 <= setNum < numSets.
	ErrBadPartition = errors.New("invalid partition selector")

	// ErrWrongMode signals a mode-specific operation invoked on an engine in
	// the wrong operating mode.
	ErrWrongMode = errors.New("operation not valid in this operating mode")
)

// OperMode is the operating mode of an engine, fixed at construction.
type OperMode int

const (
	// Slave evaluates one contiguous data partition directly.
	Slave OperMode = iota
	// SimMaster owns one child engine per populated category of a composite
	// model and combines their results.
	SimMaster
	// MPMaster owns parallel worker front-ends, each evaluating one
	// partition on a private clone of the engine.
	MPMaster
)

func (m OperMode) String() string {
	switch m {
	case Slave:
		return "Slave"
	case SimMaster:
		return "SimMaster"
	case MPMaster:
		return "MPMaster"
	default:
		return "Unknown"
	}
}

// PartitionEvaluator computes the concrete fit statistic over a contiguous
// slice [first, last) of dataset entries. Implementations carry the formula
// (negative log-likelihood, chi-square, ...); the engine carries everything
// else.
type PartitionEvaluator interface {
	EvaluatePartition(first, last int) (float64, error)

	// SetSimCount tells the evaluator how many sibling slaves share a
	// common simultaneous parent, for per-slave normalization of constant
	// terms.
	SetSimCount(n int)

	// ApplyChange applies a structural-change notice to the evaluator's
	// model and caches.
	ApplyChange(c param.StructuralChange) error
}

// Factory creates a like-kind evaluator bound to a new model and dataset.
// It is the capability that preserves the concrete statistic across
// decomposition and cloning.
type Factory interface {
	NewEvaluator(name string, m model.Model, data dataset.Dataset, projDeps *param.Set) (PartitionEvaluator, error)
}

// Combiner reduces an ordered sequence of sub-results to one value. It must
// be associative so worker completion order cannot influence the result.
type Combiner func(results []float64) float64

// Sum is the default combiner: ordered arithmetic summation.
func Sum(results []float64) float64 {
	total := 0.0
	for _, v := range results {
		total += v
	}
	return total
}

// Config collects the construction options of an engine.
type Config struct {
	// Name identifies the engine in diagnostics and derived worker names.
	Name string

	// Workers is the requested parallel worker count. Values below 1 are
	// clamped to 1; a count of 1 never produces an MPMaster engine.
	Workers int

	// ProjDeps is the set of projected-out observables, copied by value.
	ProjDeps *param.Set

	// Combiner overrides the default summation reduction.
	Combiner Combiner

	// Spawner launches MPMaster workers. Nil selects the in-process
	// goroutine spawner.
	Spawner mpfe.Spawner

	// Logger receives engine diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Engine is the goodness-of-fit evaluation engine. Its operating mode is
// decided once at construction; child engines and worker front-ends are
// built lazily on the first evaluation and reused afterwards.
type Engine struct {
	name     string
	mode     OperMode
	factory  Factory
	model    model.Model
	data     dataset.Dataset
	projDeps *param.Set
	params   *param.Set

	nEvents  int
	setNum   int
	numSets  int
	simCount int
	workers  int

	initialized bool
	eval        PartitionEvaluator // Slave mode only
	children    []*Engine          // SimMaster mode only
	fronts      []*mpfe.FrontEnd   // MPMaster mode only
	workerEng   []*Engine          // engines wrapped by fronts, for cloning

	combine Combiner
	spawner mpfe.Spawner
	logger  *slog.Logger
}

// NewEngine creates an engine for the given statistic factory, model and
// dataset. Mode selection: a requested worker count above 1 yields MPMaster;
// otherwise a composite model yields SimMaster and anything else a Slave.
func NewEngine(factory Factory, m model.Model, data dataset.Dataset, cfg Config) (*Engine, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if data == nil {
		return nil, fmt.Errorf("dataset cannot be nil")
	}
	if cfg.Name == "" {
		cfg.Name = m.Name()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Combiner == nil {
		cfg.Combiner = Sum
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	params, err := m.Parameters(data)
	if err != nil {
		return nil, fmt.Errorf("failed to determine parameters of model %q: %v", m.Name(), err)
	}

	e := &Engine{
		name:     cfg.Name,
		factory:  factory,
		model:    m,
		data:     data,
		projDeps: cfg.ProjDeps.Clone(),
		params:   params,
		nEvents:  data.NumEntries(),
		setNum:   0,
		numSets:  1,
		simCount: 1,
		workers:  cfg.Workers,
		combine:  cfg.Combiner,
		spawner:  cfg.Spawner,
		logger:   cfg.Logger,
	}

	switch {
	case cfg.Workers > 1:
		e.mode = MPMaster
	case model.IsComposite(m):
		e.mode = SimMaster
	default:
		e.mode = Slave
		eval, err := factory.NewEvaluator(e.name, m, data, e.projDeps)
		if err != nil {
			return nil, fmt.Errorf("failed to create evaluator for %q: %v", e.name, err)
		}
		e.eval = eval
	}
	return e, nil
}

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// Mode returns the operating mode fixed at construction.
func (e *Engine) Mode() OperMode { return e.mode }

// NumEvents returns the entry count of the bound dataset.
func (e *Engine) NumEvents() int { return e.nEvents }

// Partition returns the current partition selector.
func (e *Engine) Partition() (setNum, numSets int) { return e.setNum, e.numSets }

// Evaluate returns the goodness-of-fit value for the bound model, dataset
// and partition selection. The first call builds children or workers; later
// calls reuse them.
func (e *Engine) Evaluate() (float64, error) {
	if err := e.Initialize(); err != nil {
		return 0, err
	}

	switch e.mode {
	case SimMaster:
		results := make([]float64, len(e.children))
		for i, child := range e.children {
			v, err := child.Evaluate()
			if err != nil {
				return 0, fmt.Errorf("child %s: %v", child.name, err)
			}
			results[i] = v
		}
		return e.combine(results), nil

	case MPMaster:
		// Start every worker before reading any result, so the wall-clock
		// cost is set by the slowest worker.
		for i, fe := range e.fronts {
			if err := fe.BeginCalculation(); err != nil {
				// Drain the workers already started; a front-end left in
				// Running would serve this pass's result on the next
				// Evaluate instead of starting a fresh calculation.
				for _, started := range e.fronts[:i] {
					_, _ = started.Result()
				}
				return 0, err
			}
		}
		results := make([]float64, len(e.fronts))
		for i, fe := range e.fronts {
			v, err := fe.Result()
			if err != nil {
				return 0, err
			}
			results[i] = v
		}
		return e.combine(results), nil

	default:
		first := e.nEvents * e.setNum / e.numSets
		last := e.nEvents * (e.setNum + 1) / e.numSets
		return e.eval.EvaluatePartition(first, last)
	}
}

// Initialize performs the one-time mode-specific setup. Repeat calls are
// no-ops.
func (e *Engine) Initialize() error {
	if e.initialized {
		return nil
	}
	switch e.mode {
	case SimMaster:
		if err := e.initSimMode(); err != nil {
			return err
		}
	case MPMaster:
		if err := e.initMPMode(); err != nil {
			return err
		}
	}
	e.initialized = true
	return nil
}

// SetPartition records the data slice selector used in Slave mode. On a
// SimMaster engine the selector is also forwarded to every child, so each
// category's own event range is subdivided identically.
func (e *Engine) SetPartition(setNum, numSets int) error {
	if numSets < 1 || setNum < 0 || setNum >= numSets {
		return fmt.Errorf("%w: setNum=%d numSets=%d", ErrBadPartition, setNum, numSets)
	}
	e.setNum = setNum
	e.numSets = numSets

	if e.mode == SimMaster {
		if err := e.Initialize(); err != nil {
			return err
		}
		for _, child := range e.children {
			if err := child.SetPartition(setNum, numSets); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetSimCount records how many sibling slaves share a common simultaneous
// parent and forwards the count to the concrete evaluator.
func (e *Engine) SetSimCount(n int) {
	if n < 1 {
		n = 1
	}
	e.simCount = n
	if e.eval != nil {
		e.eval.SetSimCount(n)
	}
}

// PropagateStructuralChange applies a parameter-redirect or const-optimize
// notice and fans it out to every owned child or worker. Fan-out is
// best-effort per sibling: one failing forward does not stop the others.
func (e *Engine) PropagateStructuralChange(c param.StructuralChange) error {
	switch ch := c.(type) {
	case param.Redirect:
		local := ch
		local.MustReplaceAll = false
		if _, err := e.params.ApplyRedirect(local); err != nil {
			return err
		}
	case param.ConstOptimize:
		// Optimization passes walk the full evaluator tree, so it must exist.
		if err := e.Initialize(); err != nil {
			return err
		}
	}

	switch e.mode {
	case SimMaster:
		if !e.initialized {
			// Children do not exist yet; the current parameter identities
			// are replayed onto each child at creation time.
			return nil
		}
		var errs []error
		for _, child := range e.children {
			if err := child.PropagateStructuralChange(c); err != nil {
				errs = append(errs, fmt.Errorf("child %s: %v", child.name, err))
			}
		}
		return errors.Join(errs...)

	case MPMaster:
		if !e.initialized {
			return nil
		}
		// Forward eagerly, including to idle workers, so no worker ever
		// evaluates against stale parameter identities.
		var errs []error
		for _, fe := range e.fronts {
			if err := fe.PropagateStructuralChange(c); err != nil {
				errs = append(errs, fmt.Errorf("front-end %s: %v", fe.Name(), err))
			}
		}
		return errors.Join(errs...)

	default:
		return e.eval.ApplyChange(c)
	}
}

// initSimMode decomposes a composite model into one child engine per
// category state that has both a component model and data entries.
func (e *Engine) initSimMode() error {
	comp, ok := e.model.(model.Composite)
	if !ok {
		return fmt.Errorf("%w: SimMaster engine bound to non-composite model %q", ErrWrongMode, e.model.Name())
	}
	idx := comp.IndexCategory()

	parts, err := e.data.SplitByCategory(idx)
	if err != nil {
		return fmt.Errorf("engine %s: unable to split dataset: %w", e.name, err)
	}

	// First pass: count eligible states so the per-slave normalization
	// count is known before any child is built.
	nGof := 0
	for _, st := range idx.States() {
		if _, ok := comp.SubModel(st.Name); !ok {
			continue
		}
		if part, ok := parts[st.Name]; ok && part.NumEntries() > 0 {
			nGof++
		}
	}

	children := make([]*Engine, 0, nGof)
	for _, st := range idx.States() {
		sub, ok := comp.SubModel(st.Name)
		if !ok {
			continue
		}
		part := parts[st.Name]
		if part == nil || part.NumEntries() == 0 {
			e.logger.Info("state has no data entries, no slave calculator created",
				"engine", e.name, "state", st.Name)
			continue
		}

		e.logger.Info("creating slave calculator",
			"engine", e.name, "state", st.Name, "entries", part.NumEntries())

		child, err := NewEngine(e.factory, sub, part, Config{
			Name:     e.name + "_" + st.Name,
			Workers:  1,
			ProjDeps: e.projDeps,
			Combiner: e.combine,
			Spawner:  e.spawner,
			Logger:   e.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create slave calculator for state %q: %v", st.Name, err)
		}
		child.SetSimCount(nGof)

		// Parameters may have been redirected between this engine's
		// construction and the present deferred initialization; replay the
		// current identities so the child never sees stale ones.
		if err := child.PropagateStructuralChange(param.Redirect{Replacements: e.params, Recursive: true}); err != nil {
			return fmt.Errorf("failed to replay redirects onto state %q: %v", st.Name, err)
		}
		children = append(children, child)
	}
	e.children = children
	// The split map is not retained; children hold their own subsets.
	return nil
}

// initMPMode builds the parallel front-ends: one prototype engine with
// worker count forced to 1, cloned once per worker with its own partition
// selector and derived identity. The last worker runs inline in the calling
// context.
func (e *Engine) initMPMode() error {
	proto, err := NewEngine(e.factory, e.model, e.data, Config{
		Name:     e.name + "_proto",
		Workers:  1,
		ProjDeps: e.projDeps,
		Combiner: e.combine,
		Spawner:  e.spawner,
		Logger:   e.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create prototype calculator: %v", err)
	}

	fronts := make([]*mpfe.FrontEnd, e.workers)
	engines := make([]*Engine, e.workers)
	for i := 0; i < e.workers; i++ {
		id := fmt.Sprintf("%s_gof%d_%s", e.name, i, uuid.NewString()[:8])

		clone, err := proto.Clone(id)
		if err != nil {
			return fmt.Errorf("failed to clone prototype for worker %d: %v", i, err)
		}
		if err := clone.SetPartition(i, e.workers); err != nil {
			return err
		}
		if err := clone.PropagateStructuralChange(param.Redirect{Replacements: e.params, Recursive: true}); err != nil {
			return fmt.Errorf("failed to replay redirects onto worker %d: %v", i, err)
		}

		inline := i == e.workers-1
		if !inline {
			e.logger.Info("starting worker front-end", "engine", e.name, "worker", i)
		}
		fe := mpfe.NewFrontEnd(id+"_mpfe", clone, inline, e.spawner)
		if err := fe.Initialize(); err != nil {
			return err
		}
		fronts[i] = fe
		engines[i] = clone
	}
	e.fronts = fronts
	e.workerEng = engines
	// The prototype is not retained.
	return nil
}

// Clone returns a deep copy of the engine under a new name: the projected
// dependencies are copied by value and, when the engine is initialized, the
// child engines or worker front-ends are cloned as well. An uninitialized
// clone defers its setup to its own first evaluation.
func (e *Engine) Clone(name string) (*Engine, error) {
	params, err := e.model.Parameters(e.data)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %q: %v", e.name, err)
	}

	c := &Engine{
		name:        name,
		mode:        e.mode,
		factory:     e.factory,
		model:       e.model,
		data:        e.data,
		projDeps:    e.projDeps.Clone(),
		params:      params,
		nEvents:     e.nEvents,
		setNum:      e.setNum,
		numSets:     e.numSets,
		simCount:    e.simCount,
		workers:     e.workers,
		initialized: e.initialized,
		combine:     e.combine,
		spawner:     e.spawner,
		logger:      e.logger,
	}

	if e.mode == Slave {
		eval, err := e.factory.NewEvaluator(name, e.model, e.data, c.projDeps)
		if err != nil {
			return nil, fmt.Errorf("failed to clone evaluator of %q: %v", e.name, err)
		}
		eval.SetSimCount(e.simCount)
		c.eval = eval
	}

	if e.initialized && e.mode == SimMaster {
		c.children = make([]*Engine, len(e.children))
		for i, child := range e.children {
			cc, err := child.Clone(child.name)
			if err != nil {
				return nil, err
			}
			c.children[i] = cc
		}
	}

	if e.initialized && e.mode == MPMaster {
		c.fronts = make([]*mpfe.FrontEnd, len(e.workerEng))
		c.workerEng = make([]*Engine, len(e.workerEng))
		for i, we := range e.workerEng {
			id := fmt.Sprintf("%s_gof%d_%s", name, i, uuid.NewString()[:8])
			ce, err := we.Clone(id)
			if err != nil {
				return nil, err
			}
			fe := mpfe.NewFrontEnd(id+"_mpfe", ce, i == len(e.workerEng)-1, e.spawner)
			if err := fe.Initialize(); err != nil {
				return nil, err
			}
			c.fronts[i] = fe
			c.workerEng[i] = ce
		}
	}
	return c, nil
}

// Close releases every owned child engine and worker front-end.
func (e *Engine) Close() error {
	var errs []error
	for _, child := range e.children {
		if err := child.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fe := range e.fronts {
		if err := fe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, we := range e.workerEng {
		if err := we.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.children = nil
	e.fronts = nil
	e.workerEng = nil
	return errors.Join(errs...)
}
