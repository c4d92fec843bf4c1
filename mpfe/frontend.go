// Package mpfe provides the parallel front-end used to dispatch
// goodness-of-fit partitions to independent workers. A FrontEnd wraps one
// private clone of an evaluation engine, starts its computation without
// blocking and hands the result back on demand. Workers share no mutable
// state; structural-change notices are the only cross-worker communication.
package mpfe

import (
	"fmt"

	"github.com/probfit/probfit/param"
)

// Calculator is the work a front-end dispatches: one fully bound evaluation
// engine owning its own model and data.
type Calculator interface {
	// Evaluate computes the goodness-of-fit value.
	Evaluate() (float64, error)

	// PropagateStructuralChange applies a parameter redirect or
	// constant-optimization notice to the wrapped engine.
	PropagateStructuralChange(c param.StructuralChange) error
}

// State is the front-end lifecycle state.
type State int

const (
	// Idle: no calculation requested since construction or the last reset.
	Idle State = iota
	// Running: a calculation was started and its result not yet read.
	Running
	// ResultReady: the last result was read and is served from cache until
	// the next BeginCalculation.
	ResultReady
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case ResultReady:
		return "ResultReady"
	default:
		return "Unknown"
	}
}

// Handle is the connection to one spawned worker. BeginCalculation must not
// block; Result blocks until the worker's value is available.
type Handle interface {
	BeginCalculation() error
	Result() (float64, error)
	PropagateStructuralChange(c param.StructuralChange) error
	Close() error
}

// Spawner launches workers. Implementations own the launching mechanics;
// this package ships an in-process goroutine spawner and a loopback spawner
// speaking the remote wire protocol.
type Spawner interface {
	Spawn(name string, calc Calculator) (Handle, error)
}

// FrontEnd is the proxy for one worker. The zero worker-overhead path is the
// inline mode, where Evaluate runs synchronously in the caller's context at
// Result time.
type FrontEnd struct {
	name    string
	calc    Calculator
	inline  bool
	spawner Spawner
	handle  Handle
	state   State
	val     float64
	err     error
}

// NewFrontEnd creates a front-end for calc. With inline set, no worker is
// spawned and the calculation runs in the caller's context. Otherwise
// spawner launches the worker at Initialize time; a nil spawner defaults to
// the goroutine spawner.
func NewFrontEnd(name string, calc Calculator, inline bool, spawner Spawner) *FrontEnd {
	if spawner == nil {
		spawner = NewGoroutineSpawner()
	}
	return &FrontEnd{name: name, calc: calc, inline: inline, spawner: spawner}
}

// Name returns the front-end identity.
func (fe *FrontEnd) Name() string { return fe.name }

// State returns the current lifecycle state.
func (fe *FrontEnd) State() State { return fe.state }

// Inline reports whether the front-end runs in the caller's context.
func (fe *FrontEnd) Inline() bool { return fe.inline }

// Initialize launches the worker. Idempotent; inline front-ends have no
// worker to launch.
func (fe *FrontEnd) Initialize() error {
	if fe.inline || fe.handle != nil {
		return nil
	}
	h, err := fe.spawner.Spawn(fe.name, fe.calc)
	if err != nil {
		return fmt.Errorf("failed to spawn worker %s: %v", fe.name, err)
	}
	fe.handle = h
	return nil
}

// BeginCalculation starts the worker's computation without waiting for it.
// Calling it while a calculation is already in flight is a no-op; calling it
// after a result was read starts a fresh calculation.
func (fe *FrontEnd) BeginCalculation() error {
	if fe.state == Running {
		return nil
	}
	if !fe.inline {
		if fe.handle == nil {
			return fmt.Errorf("front-end %s used before Initialize", fe.name)
		}
		if err := fe.handle.BeginCalculation(); err != nil {
			return fmt.Errorf("failed to start worker %s: %v", fe.name, err)
		}
	}
	fe.state = Running
	return nil
}

// Result returns the value of the last started calculation, blocking until
// the worker completes. Repeated reads return the cached value. Reading
// before any calculation was started is a contract violation.
func (fe *FrontEnd) Result() (float64, error) {
	switch fe.state {
	case Idle:
		return 0, fmt.Errorf("front-end %s: result requested before BeginCalculation", fe.name)
	case ResultReady:
		return fe.val, fe.err
	}
	if fe.inline {
		fe.val, fe.err = fe.calc.Evaluate()
	} else {
		fe.val, fe.err = fe.handle.Result()
	}
	fe.state = ResultReady
	return fe.val, fe.err
}

// PropagateStructuralChange forwards a change notice to the wrapped engine.
// It must only be called between evaluations, never while a calculation is
// in flight.
func (fe *FrontEnd) PropagateStructuralChange(c param.StructuralChange) error {
	if fe.state == Running {
		return fmt.Errorf("front-end %s: structural change while calculation in flight", fe.name)
	}
	if fe.inline || fe.handle == nil {
		return fe.calc.PropagateStructuralChange(c)
	}
	return fe.handle.PropagateStructuralChange(c)
}

// Close shuts the worker down. The front-end cannot be used afterwards.
func (fe *FrontEnd) Close() error {
	if fe.handle == nil {
		return nil
	}
	err := fe.handle.Close()
	fe.handle = nil
	return err
}
