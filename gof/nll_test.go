package gof

import (
	"math"
	"testing"

	"github.com/probfit/probfit/model"
	"github.com/probfit/probfit/param"
)

func TestNLLMatchesManualSum(t *testing.T) {
	g := gaussModel("", 0.3, 1.2)
	data := xTable(t, 25)

	nll, err := NewNLL("nll", g, data, nil, false)
	if err != nil {
		t.Fatalf("NewNLL failed: %v", err)
	}
	got, err := nll.EvaluatePartition(0, data.NumEntries())
	if err != nil {
		t.Fatalf("EvaluatePartition failed: %v", err)
	}
	want := manualNLL(t, g, data)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("NLL %f differs from manual sum %f", got, want)
	}
}

func TestNLLPartitionAdditivity(t *testing.T) {
	g := gaussModel("", 0.0, 1.0)
	data := xTable(t, 17)

	nll, err := NewNLL("nll", g, data, nil, false)
	if err != nil {
		t.Fatalf("NewNLL failed: %v", err)
	}
	full, err := nll.EvaluatePartition(0, 17)
	if err != nil {
		t.Fatalf("EvaluatePartition failed: %v", err)
	}
	a, err := nll.EvaluatePartition(0, 9)
	if err != nil {
		t.Fatalf("EvaluatePartition failed: %v", err)
	}
	b, err := nll.EvaluatePartition(9, 17)
	if err != nil {
		t.Fatalf("EvaluatePartition failed: %v", err)
	}
	if math.Abs(full-(a+b)) > 1e-12 {
		t.Errorf("Partition sums %f+%f do not add to full %f", a, b, full)
	}
}

func TestNLLPartitionBounds(t *testing.T) {
	nll, err := NewNLL("nll", gaussModel("", 0.0, 1.0), xTable(t, 5), nil, false)
	if err != nil {
		t.Fatalf("NewNLL failed: %v", err)
	}
	for _, r := range [][2]int{{-1, 3}, {2, 1}, {0, 6}} {
		if _, err := nll.EvaluatePartition(r[0], r[1]); err == nil {
			t.Errorf("Partition [%d,%d): expected bounds error", r[0], r[1])
		}
	}
}

func TestNLLMissingColumn(t *testing.T) {
	g := model.NewGaussian("g", "nope", param.New("mean", 0.0), param.New("sigma", 1.0))
	nll, err := NewNLL("nll", g, xTable(t, 5), nil, false)
	if err != nil {
		t.Fatalf("NewNLL failed: %v", err)
	}
	if _, err := nll.EvaluatePartition(0, 5); err == nil {
		t.Errorf("Expected error for model observable missing from dataset")
	}
}

func TestNLLExtended(t *testing.T) {
	t.Run("Requires a yield", func(t *testing.T) {
		if _, err := NewNLL("nll", gaussModel("", 0.0, 1.0), xTable(t, 5), nil, true); err == nil {
			t.Errorf("Extended NLL without a yield model should be rejected")
		}
	})

	t.Run("Adds the normalized yield term", func(t *testing.T) {
		data := xTable(t, 10)
		g := gaussModel("", 0.0, 1.0)
		ym := model.WithYield(g, param.New("nsig", 12.0))

		plain, err := NewNLL("plain", ym, data, nil, false)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}
		ext, err := NewNLL("ext", ym, data, nil, true)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}

		base, err := plain.EvaluatePartition(0, 10)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		got, err := ext.EvaluatePartition(0, 10)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		term := 12.0 - 10.0*math.Log(12.0)
		if math.Abs(got-(base+term)) > 1e-12 {
			t.Errorf("Extended NLL %f, expected %f", got, base+term)
		}

		// With two simultaneous siblings the constant term is halved.
		ext.SetSimCount(2)
		got2, err := ext.EvaluatePartition(0, 10)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		if math.Abs(got2-(base+term/2)) > 1e-12 {
			t.Errorf("Extended NLL with simCount 2 is %f, expected %f", got2, base+term/2)
		}
	})

	t.Run("Partition sums carry the yield constant once", func(t *testing.T) {
		data := xTable(t, 10)
		ym := model.WithYield(gaussModel("", 0.0, 1.0), param.New("nsig", 12.0))
		ext, err := NewNLL("ext", ym, data, nil, true)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}

		full, err := ext.EvaluatePartition(0, 10)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		a, err := ext.EvaluatePartition(0, 4)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		b, err := ext.EvaluatePartition(4, 10)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		if math.Abs(a+b-full) > 1e-12 {
			t.Errorf("Extended partition sums %f+%f do not add to full %f", a, b, full)
		}
	})
}

func TestNLLConstTermCache(t *testing.T) {
	data := xTable(t, 20)

	t.Run("Activates only for all-constant parameters", func(t *testing.T) {
		g := gaussModel("", 0.0, 1.0) // floating parameters
		nll, err := NewNLL("nll", g, data, nil, false)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}
		if err := nll.ApplyChange(param.ConstOptimize{Op: param.Activate}); err != nil {
			t.Fatalf("ApplyChange failed: %v", err)
		}
		if nll.constTerm.cached() != nil {
			t.Errorf("Cache activated despite floating parameters")
		}
	})

	t.Run("Cached evaluation matches direct evaluation", func(t *testing.T) {
		g := model.NewGaussian("g", "x", param.NewConst("mean", 0.1), param.NewConst("sigma", 1.1))
		nll, err := NewNLL("nll", g, data, nil, false)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}
		want, err := nll.EvaluatePartition(0, 20)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}

		if err := nll.ApplyChange(param.ConstOptimize{Op: param.Activate}); err != nil {
			t.Fatalf("ApplyChange failed: %v", err)
		}
		if nll.constTerm.cached() == nil {
			t.Fatalf("Cache did not activate for all-constant parameters")
		}
		got, err := nll.EvaluatePartition(0, 20)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Cached result %f differs from direct %f", got, want)
		}

		// Partial reads also come from the cache consistently.
		a, _ := nll.EvaluatePartition(0, 11)
		b, _ := nll.EvaluatePartition(11, 20)
		if math.Abs((a+b)-want) > 1e-12 {
			t.Errorf("Cached partitions %f+%f do not add to %f", a, b, want)
		}
	})

	t.Run("Redirect invalidates the cache", func(t *testing.T) {
		g := model.NewGaussian("g", "x", param.NewConst("mean", 0.1), param.NewConst("sigma", 1.1))
		nll, err := NewNLL("nll", g, data, nil, false)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}
		if err := nll.ApplyChange(param.ConstOptimize{Op: param.Activate}); err != nil {
			t.Fatalf("ApplyChange failed: %v", err)
		}
		if nll.constTerm.cached() == nil {
			t.Fatalf("Cache did not activate")
		}

		newMean := param.NewConst("mean", 0.7)
		if err := nll.ApplyChange(param.Redirect{Replacements: param.NewSet(newMean)}); err != nil {
			t.Fatalf("ApplyChange failed: %v", err)
		}
		if nll.constTerm.cached() != nil {
			t.Errorf("Redirect did not invalidate the cache")
		}

		// Evaluation after invalidation uses the redirected parameter.
		got, err := nll.EvaluatePartition(0, 20)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		ref := model.NewGaussian("g", "x", param.NewConst("mean", 0.7), param.NewConst("sigma", 1.1))
		refNLL, err := NewNLL("ref", ref, data, nil, false)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}
		want, err := refNLL.EvaluatePartition(0, 20)
		if err != nil {
			t.Fatalf("EvaluatePartition failed: %v", err)
		}
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Post-invalidation result %f differs from reference %f", got, want)
		}
	})

	t.Run("DeActivate drops the cache", func(t *testing.T) {
		g := model.NewGaussian("g", "x", param.NewConst("mean", 0.1), param.NewConst("sigma", 1.1))
		nll, err := NewNLL("nll", g, data, nil, false)
		if err != nil {
			t.Fatalf("NewNLL failed: %v", err)
		}
		if err := nll.ApplyChange(param.ConstOptimize{Op: param.Activate}); err != nil {
			t.Fatalf("ApplyChange failed: %v", err)
		}
		if err := nll.ApplyChange(param.ConstOptimize{Op: param.DeActivate}); err != nil {
			t.Fatalf("ApplyChange failed: %v", err)
		}
		if nll.constTerm.cached() != nil {
			t.Errorf("DeActivate did not drop the cache")
		}
	})
}
