package opt

import (
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

// NelderMeadAdapter wraps the gonum Nelder-Mead implementation to conform
// to our Optimizer interface. Gonum's simplex is unconstrained; the
// objective is expected to clamp trial parameters into their bounds
// itself, so lower/upper are not used here.
type NelderMeadAdapter struct {
	maxIters int
}

// NewNelderMead creates a Nelder-Mead optimizer adapter. maxIters <= 0
// leaves the iteration count to gonum's own convergence criteria.
func NewNelderMead(maxIters int) Optimizer {
	return &NelderMeadAdapter{maxIters: maxIters}
}

// Run executes the downhill simplex search over the scalar cost.
func (n *NelderMeadAdapter) Run(obj Objective, x0, lower, upper []float64) ([]float64, float64, error) {
	problem := optimize.Problem{Func: obj.Eval}

	settings := &optimize.Settings{}
	if n.maxIters > 0 {
		settings.MajorIterations = n.maxIters
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		// Best-effort: gonum still reports the best point visited.
		if result != nil {
			return result.X, result.F, fmt.Errorf("nelder-mead did not converge: %w", err)
		}
		return append([]float64{}, x0...), obj.Eval(x0),
			fmt.Errorf("nelder-mead failed: %w", err)
	}

	// Minimize returns a nil error when a budget limit stops the run; that
	// is still non-convergence, with the best point found so far.
	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return result.X, result.F,
			fmt.Errorf("nelder-mead stopped on %v before converging", result.Status)
	}

	return result.X, result.F, nil
}
