package mpfe

import (
	"fmt"

	"github.com/probfit/probfit/param"
)

// GoroutineSpawner runs each worker as a dedicated goroutine. Commands are
// serialized through a channel, so calculations and structural changes never
// race on the worker's private engine.
type GoroutineSpawner struct{}

// NewGoroutineSpawner creates the default in-process spawner.
func NewGoroutineSpawner() *GoroutineSpawner {
	return &GoroutineSpawner{}
}

type cmdKind int

const (
	cmdCalculate cmdKind = iota
	cmdChange
	cmdClose
)

type workerCmd struct {
	kind   cmdKind
	change param.StructuralChange
	reply  chan error
}

type workerResult struct {
	val float64
	err error
}

type goroutineHandle struct {
	name    string
	cmds    chan workerCmd
	results chan workerResult
	done    chan struct{}
}

// Spawn starts the worker goroutine. The front-end state machine guarantees
// at most one calculation is in flight per handle, so a single-slot command
// buffer keeps BeginCalculation from ever blocking.
func (s *GoroutineSpawner) Spawn(name string, calc Calculator) (Handle, error) {
	if calc == nil {
		return nil, fmt.Errorf("cannot spawn worker %s with nil calculator", name)
	}
	h := &goroutineHandle{
		name:    name,
		cmds:    make(chan workerCmd, 1),
		results: make(chan workerResult, 1),
		done:    make(chan struct{}),
	}
	go h.run(calc)
	return h, nil
}

func (h *goroutineHandle) run(calc Calculator) {
	defer close(h.done)
	for cmd := range h.cmds {
		switch cmd.kind {
		case cmdCalculate:
			v, err := calc.Evaluate()
			h.results <- workerResult{val: v, err: err}
		case cmdChange:
			cmd.reply <- calc.PropagateStructuralChange(cmd.change)
		case cmdClose:
			return
		}
	}
}

func (h *goroutineHandle) BeginCalculation() error {
	select {
	case h.cmds <- workerCmd{kind: cmdCalculate}:
		return nil
	case <-h.done:
		return fmt.Errorf("worker %s has shut down", h.name)
	}
}

func (h *goroutineHandle) Result() (float64, error) {
	select {
	case res := <-h.results:
		return res.val, res.err
	case <-h.done:
		return 0, fmt.Errorf("worker %s shut down before delivering a result", h.name)
	}
}

func (h *goroutineHandle) PropagateStructuralChange(c param.StructuralChange) error {
	reply := make(chan error, 1)
	select {
	case h.cmds <- workerCmd{kind: cmdChange, change: c, reply: reply}:
	case <-h.done:
		return fmt.Errorf("worker %s has shut down", h.name)
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return fmt.Errorf("worker %s shut down while applying change", h.name)
	}
}

func (h *goroutineHandle) Close() error {
	select {
	case h.cmds <- workerCmd{kind: cmdClose}:
	case <-h.done:
		return nil
	}
	<-h.done
	return nil
}
