package gof

import (
	"fmt"

	"github.com/probfit/probfit/param"
)

// ScanPoint is one sampled point of a statistic profile.
type ScanPoint struct {
	Value     float64
	Statistic float64
}

// Scan profiles the engine's statistic against one parameter over [lo, hi]
// in the given number of equally spaced steps. The parameter's original
// value is restored afterwards.
func Scan(e *Engine, p *param.Param, lo, hi float64, steps int) ([]ScanPoint, error) {
	if p == nil {
		return nil, fmt.Errorf("scan requires a parameter")
	}
	if steps < 2 {
		return nil, fmt.Errorf("scan requires at least 2 steps, got %d", steps)
	}
	if hi <= lo {
		return nil, fmt.Errorf("scan range [%g,%g] is empty", lo, hi)
	}

	orig := p.Value
	defer func() { p.Value = orig }()

	points := make([]ScanPoint, steps)
	width := (hi - lo) / float64(steps-1)
	for i := 0; i < steps; i++ {
		p.Value = lo + width*float64(i)
		v, err := e.Evaluate()
		if err != nil {
			return nil, fmt.Errorf("scan of %q at %g: %v", p.Name, p.Value, err)
		}
		points[i] = ScanPoint{Value: p.Value, Statistic: v}
	}
	return points, nil
}

// Minimum returns the scan point with the smallest statistic.
func Minimum(points []ScanPoint) (ScanPoint, error) {
	if len(points) == 0 {
		return ScanPoint{}, fmt.Errorf("no scan points")
	}
	best := points[0]
	for _, pt := range points[1:] {
		if pt.Statistic < best.Statistic {
			best = pt
		}
	}
	return best, nil
}
