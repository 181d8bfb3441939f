// Package opt wraps external minimization libraries behind a common
// optimizer interface. Each adapter picks the objective view its
// algorithm needs: Levenberg-Marquardt consumes the per-sample residual
// vector, Nelder-Mead and Mayfly consume the scalar cost.
package opt

import "fmt"

// Objective exposes both shapes of a fit objective.
type Objective interface {
	// Eval returns the scalar cost (summed squared residuals, priors
	// included) at the given parameter vector.
	Eval(x []float64) float64

	// Residuals writes the per-sample residual vector at x into dst,
	// which must have length NumResiduals.
	Residuals(dst, x []float64)

	// NumResiduals returns the residual vector length.
	NumResiduals() int
}

// Optimizer defines an optimization algorithm interface.
type Optimizer interface {
	// Run minimizes obj starting from x0 within the box bounds
	// [lower, upper]. It returns the best parameters found and their
	// scalar cost. A non-nil error marks non-convergence within the
	// algorithm's own limits; the returned parameters are still the
	// best found and may be usable.
	Run(obj Objective, x0, lower, upper []float64) ([]float64, float64, error)
}

// Algorithm names an optimization algorithm.
type Algorithm string

const (
	// LevenbergMarquardt is damped least squares over the residual
	// vector.
	LevenbergMarquardt Algorithm = "levenberg-marquardt"

	// NelderMead is the downhill simplex method over the scalar cost.
	NelderMead Algorithm = "nelder-mead"

	// Mayfly is a population-based global search over the scalar cost.
	Mayfly Algorithm = "mayfly"
)

// Config carries the iteration and population limits shared by the
// adapters. Zero fields fall back to per-adapter defaults.
type Config struct {
	MaxIters int
	PopSize  int
	Seed     int64
}

// New creates the optimizer adapter for the named algorithm.
func New(algo Algorithm, cfg Config) (Optimizer, error) {
	switch algo {
	case LevenbergMarquardt:
		return NewLevenbergMarquardt(cfg.MaxIters), nil
	case NelderMead:
		return NewNelderMead(cfg.MaxIters), nil
	case Mayfly:
		return NewMayfly(cfg.MaxIters, cfg.PopSize, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("opt: unknown algorithm %q", algo)
	}
}
