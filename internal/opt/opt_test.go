package opt

import (
	"math"
	"testing"
)

// quadObjective is a separable quadratic bowl with its minimum at center.
type quadObjective struct {
	center []float64
}

func (q *quadObjective) Eval(x []float64) float64 {
	var sum float64
	for i := range x {
		d := x[i] - q.center[i]
		sum += d * d
	}
	return sum
}

func (q *quadObjective) Residuals(dst, x []float64) {
	for i := range x {
		dst[i] = x[i] - q.center[i]
	}
}

func (q *quadObjective) NumResiduals() int {
	return len(q.center)
}

func bowl() (*quadObjective, []float64, []float64, []float64) {
	obj := &quadObjective{center: []float64{1.5, -0.5, 2.0}}
	x0 := []float64{0, 0, 0}
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}
	return obj, x0, lower, upper
}

func TestNelderMeadFindsMinimum(t *testing.T) {
	obj, x0, lower, upper := bowl()

	x, cost, err := NewNelderMead(500).Run(obj, x0, lower, upper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cost > 1e-8 {
		t.Errorf("cost = %g, expected near zero", cost)
	}
	for i := range x {
		if math.Abs(x[i]-obj.center[i]) > 1e-3 {
			t.Errorf("x[%d] = %g, expected %g", i, x[i], obj.center[i])
		}
	}
}

// valleyObjective is the Rosenbrock function in residual form, a curved
// valley no simplex can descend in a handful of iterations.
type valleyObjective struct{}

func (valleyObjective) Residuals(dst, x []float64) {
	dst[0] = 10 * (x[1] - x[0]*x[0])
	dst[1] = 1 - x[0]
}

func (v valleyObjective) Eval(x []float64) float64 {
	dst := make([]float64, 2)
	v.Residuals(dst, x)
	return dst[0]*dst[0] + dst[1]*dst[1]
}

func (valleyObjective) NumResiduals() int { return 2 }

func TestNelderMeadReportsIterationLimit(t *testing.T) {
	obj := valleyObjective{}
	x0 := []float64{-1.2, 1}
	lower := []float64{-10, -10}
	upper := []float64{10, 10}

	x, cost, err := NewNelderMead(3).Run(obj, x0, lower, upper)
	if err == nil {
		t.Fatal("expected a non-convergence error after 3 iterations")
	}

	// The best point visited is still returned for best-effort use.
	if len(x) != len(x0) {
		t.Fatalf("got %d params, expected %d", len(x), len(x0))
	}
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		t.Errorf("cost = %g, expected finite", cost)
	}
	if cost > obj.Eval(x0) {
		t.Errorf("cost = %g, expected no worse than the start %g", cost, obj.Eval(x0))
	}
}

func TestLevenbergMarquardtFindsMinimum(t *testing.T) {
	obj, x0, lower, upper := bowl()

	x, cost, err := NewLevenbergMarquardt(100).Run(obj, x0, lower, upper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cost > 1e-10 {
		t.Errorf("cost = %g, expected near zero for a linear residual", cost)
	}
	for i := range x {
		if math.Abs(x[i]-obj.center[i]) > 1e-5 {
			t.Errorf("x[%d] = %g, expected %g", i, x[i], obj.center[i])
		}
	}
}

func TestMayflyFindsMinimum(t *testing.T) {
	obj, x0, lower, upper := bowl()

	x, cost, err := NewMayfly(200, 30, 42).Run(obj, x0, lower, upper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Population search, so only coarse agreement is expected.
	if cost > 0.1 {
		t.Errorf("cost = %g, expected below 0.1", cost)
	}
	for i := range x {
		if math.Abs(x[i]-obj.center[i]) > 0.5 {
			t.Errorf("x[%d] = %g, expected about %g", i, x[i], obj.center[i])
		}
	}
}

func TestMayflyDeterministicWithSeed(t *testing.T) {
	obj, x0, lower, upper := bowl()

	x1, cost1, err := NewMayfly(50, 20, 7).Run(obj, x0, lower, upper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	x2, cost2, err := NewMayfly(50, 20, 7).Run(obj, x0, lower, upper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cost1 != cost2 {
		t.Errorf("costs differ across identical seeds: %g vs %g", cost1, cost2)
	}
	for i := range x1 {
		if x1[i] != x2[i] {
			t.Errorf("x[%d] differs across identical seeds: %g vs %g", i, x1[i], x2[i])
		}
	}
}

func TestNewSelectsAlgorithm(t *testing.T) {
	for _, algo := range []Algorithm{LevenbergMarquardt, NelderMead, Mayfly} {
		o, err := New(algo, Config{MaxIters: 10})
		if err != nil {
			t.Errorf("New(%q): %v", algo, err)
		}
		if o == nil {
			t.Errorf("New(%q) returned nil optimizer", algo)
		}
	}

	if _, err := New("simulated-annealing", Config{}); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}
