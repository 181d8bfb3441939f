package opt

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our
// Optimizer interface. Useful as a global search when the chi-square
// surface has local minima the gradient-free simplex gets stuck in.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	if maxIters <= 0 {
		maxIters = 100
	}
	if popSize <= 0 {
		popSize = 30
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
func (m *MayflyAdapter) Run(obj Objective, x0, lower, upper []float64) ([]float64, float64, error) {
	config := mayfly.NewDefaultConfig()

	config.ObjectiveFunc = obj.Eval
	config.ProblemSize = len(x0)
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The external library uses scalar bounds; all dimensions of one fit
	// share the same range (vsini-only or coefficients-only), so the
	// first dimension stands in for all of them.
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return append([]float64{}, x0...), obj.Eval(x0), err
	}

	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}
