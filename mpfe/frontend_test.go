package mpfe

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/probfit/probfit/param"
)

// countingCalc returns a fixed value and counts evaluations and changes.
type countingCalc struct {
	val     float64
	evals   int64
	changes int64
	delay   time.Duration
	failure error
}

func (c *countingCalc) Evaluate() (float64, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	atomic.AddInt64(&c.evals, 1)
	if c.failure != nil {
		return 0, c.failure
	}
	return c.val, nil
}

func (c *countingCalc) PropagateStructuralChange(ch param.StructuralChange) error {
	atomic.AddInt64(&c.changes, 1)
	return nil
}

func TestFrontEndStateMachine(t *testing.T) {
	for _, inline := range []bool{true, false} {
		name := "worker"
		if inline {
			name = "inline"
		}
		t.Run(name, func(t *testing.T) {
			calc := &countingCalc{val: 42.0}
			fe := NewFrontEnd("fe0", calc, inline, nil)
			if err := fe.Initialize(); err != nil {
				t.Fatalf("Initialize failed: %v", err)
			}
			defer fe.Close()

			if fe.State() != Idle {
				t.Fatalf("Expected Idle after construction, got %v", fe.State())
			}

			// Result before any calculation is a contract violation.
			if _, err := fe.Result(); err == nil {
				t.Errorf("Expected error reading result in Idle state")
			}

			if err := fe.BeginCalculation(); err != nil {
				t.Fatalf("BeginCalculation failed: %v", err)
			}
			if fe.State() != Running {
				t.Errorf("Expected Running after begin, got %v", fe.State())
			}

			// Begin while running is a no-op, not a second dispatch.
			if err := fe.BeginCalculation(); err != nil {
				t.Fatalf("Repeated BeginCalculation failed: %v", err)
			}

			v, err := fe.Result()
			if err != nil {
				t.Fatalf("Result failed: %v", err)
			}
			if v != 42.0 {
				t.Errorf("Expected 42.0, got %f", v)
			}
			if fe.State() != ResultReady {
				t.Errorf("Expected ResultReady after read, got %v", fe.State())
			}

			// Repeated reads serve the cache without recomputing.
			if _, err := fe.Result(); err != nil {
				t.Fatalf("Cached Result failed: %v", err)
			}
			if n := atomic.LoadInt64(&calc.evals); n != 1 {
				t.Errorf("Expected exactly 1 evaluation, got %d", n)
			}

			// A fresh begin recomputes.
			if err := fe.BeginCalculation(); err != nil {
				t.Fatalf("Second BeginCalculation failed: %v", err)
			}
			if _, err := fe.Result(); err != nil {
				t.Fatalf("Second Result failed: %v", err)
			}
			if n := atomic.LoadInt64(&calc.evals); n != 2 {
				t.Errorf("Expected 2 evaluations after re-begin, got %d", n)
			}
		})
	}
}

func TestFrontEndPropagatesChanges(t *testing.T) {
	calc := &countingCalc{val: 1.0}
	fe := NewFrontEnd("fe0", calc, false, nil)
	if err := fe.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer fe.Close()

	err := fe.PropagateStructuralChange(param.ConstOptimize{Op: param.Activate})
	if err != nil {
		t.Fatalf("PropagateStructuralChange failed: %v", err)
	}
	if n := atomic.LoadInt64(&calc.changes); n != 1 {
		t.Errorf("Expected 1 change applied, got %d", n)
	}

	// Changes are rejected while a calculation is in flight.
	if err := fe.BeginCalculation(); err != nil {
		t.Fatalf("BeginCalculation failed: %v", err)
	}
	if err := fe.PropagateStructuralChange(param.ConstOptimize{Op: param.Activate}); err == nil {
		t.Errorf("Expected error propagating change while Running")
	}
	if _, err := fe.Result(); err != nil {
		t.Fatalf("Result failed: %v", err)
	}
}

func TestFrontEndEvaluationError(t *testing.T) {
	calc := &countingCalc{failure: fmt.Errorf("bad density")}
	fe := NewFrontEnd("fe0", calc, false, nil)
	if err := fe.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer fe.Close()

	if err := fe.BeginCalculation(); err != nil {
		t.Fatalf("BeginCalculation failed: %v", err)
	}
	if _, err := fe.Result(); err == nil {
		t.Errorf("Expected evaluation error to surface through Result")
	}
}

func TestWorkersOverlap(t *testing.T) {
	// Three workers with 50ms evaluations, started before any result is
	// read, should finish in roughly one evaluation's wall time.
	const n = 3
	fronts := make([]*FrontEnd, n)
	for i := 0; i < n; i++ {
		calc := &countingCalc{val: float64(i), delay: 50 * time.Millisecond}
		fronts[i] = NewFrontEnd(fmt.Sprintf("fe%d", i), calc, false, nil)
		if err := fronts[i].Initialize(); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		defer fronts[i].Close()
	}

	start := time.Now()
	for _, fe := range fronts {
		if err := fe.BeginCalculation(); err != nil {
			t.Fatalf("BeginCalculation failed: %v", err)
		}
	}
	sum := 0.0
	for _, fe := range fronts {
		v, err := fe.Result()
		if err != nil {
			t.Fatalf("Result failed: %v", err)
		}
		sum += v
	}
	elapsed := time.Since(start)

	if sum != 3.0 {
		t.Errorf("Expected sum 3.0, got %f", sum)
	}
	if elapsed > 120*time.Millisecond {
		t.Errorf("Workers did not overlap: %v elapsed for 3x50ms", elapsed)
	}
}
