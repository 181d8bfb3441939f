package opt

import (
	"fmt"

	"github.com/maorshutman/lm"
)

// LMAdapter wraps the external Levenberg-Marquardt library to conform to
// our Optimizer interface. Unlike the scalar-cost algorithms it minimizes
// over the full residual vector, with a numerical Jacobian. Bounds are
// enforced by the objective's own clamping, not by the algorithm.
type LMAdapter struct {
	maxIters int
}

// NewLevenbergMarquardt creates a Levenberg-Marquardt optimizer adapter.
func NewLevenbergMarquardt(maxIters int) Optimizer {
	return &LMAdapter{maxIters: maxIters}
}

// Run executes damped least squares over the residual vector.
func (a *LMAdapter) Run(obj Objective, x0, lower, upper []float64) ([]float64, float64, error) {
	residuals := func(dst, param []float64) {
		obj.Residuals(dst, param)
	}
	numJac := lm.NumJac{Func: residuals}

	iters := a.maxIters
	if iters <= 0 {
		iters = 100
	}

	problem := lm.LMProblem{
		Dim:        len(x0),
		Size:       obj.NumResiduals(),
		Func:       residuals,
		Jac:        numJac.Jac,
		InitParams: append([]float64{}, x0...),
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}

	results, err := lm.LM(problem, &lm.Settings{Iterations: iters, ObjectiveTol: 1e-16})
	if err != nil {
		return append([]float64{}, x0...), obj.Eval(x0),
			fmt.Errorf("levenberg-marquardt failed: %w", err)
	}

	return results.X, obj.Eval(results.X), nil
}
