package match

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// splineDegree is the continuum spline order (cubic).
const splineDegree = 3

// numKnots is the fixed number of interior continuum-spline knots.
const numKnots = 5

// splineKnotPositions picks the interior knot wavelengths: numKnots points
// evenly spaced by index along the grid, held fixed for the lifetime of a
// fit.
func splineKnotPositions(w []float64) []float64 {
	interval := len(w) / (numKnots + 1)
	knots := make([]float64, numKnots)
	for i := 1; i <= numKnots; i++ {
		knots[i-1] = w[interval*i]
	}
	return knots
}

// fitSpline fits a least-squares cubic B-spline with interior knots exactly
// at the given positions to the samples (x, y) and evaluates the fitted
// spline at every x. x must be strictly increasing and the knots strictly
// interior. Returns ErrInsufficientSamples if there are fewer samples than
// spline coefficients.
func fitSpline(x, y, knots []float64) ([]float64, error) {
	n := len(x)
	nCoef := len(knots) + splineDegree + 1
	if n < nCoef {
		return nil, fmt.Errorf("%w: %d samples, %d spline coefficients",
			ErrInsufficientSamples, n, nCoef)
	}

	// Clamped knot vector: boundary knots repeated degree+1 times.
	t := make([]float64, 0, nCoef+splineDegree+1)
	for i := 0; i <= splineDegree; i++ {
		t = append(t, x[0])
	}
	t = append(t, knots...)
	for i := 0; i <= splineDegree; i++ {
		t = append(t, x[n-1])
	}

	// Design matrix: row i holds the degree+1 basis functions supported
	// at x[i].
	a := mat.NewDense(n, nCoef, nil)
	basis := make([]float64, splineDegree+1)
	for i := 0; i < n; i++ {
		span := findSpan(t, nCoef, x[i])
		basisFuncs(basis, t, span, x[i])
		for j := 0; j <= splineDegree; j++ {
			a.Set(i, span-splineDegree+j, basis[j])
		}
	}

	// Linear least squares via QR.
	b := mat.NewVecDense(n, y)
	c := mat.NewVecDense(nCoef, nil)
	qr := new(mat.QR)
	qr.Factorize(a)
	if err := qr.SolveVecTo(c, false, b); err != nil {
		return nil, fmt.Errorf("could not solve spline least squares: %w", err)
	}

	// Evaluate the fitted spline on the full grid: same design matrix.
	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(a, c)

	out := make([]float64, n)
	copy(out, fitted.RawVector().Data)
	return out, nil
}

// findSpan locates the knot span containing x: the index s with
// t[s] <= x < t[s+1], with x at the right boundary mapped to the last
// valid span.
func findSpan(t []float64, nCoef int, x float64) int {
	if x >= t[nCoef] {
		return nCoef - 1
	}
	if x <= t[splineDegree] {
		return splineDegree
	}
	lo, hi := splineDegree, nCoef
	mid := (lo + hi) / 2
	for x < t[mid] || x >= t[mid+1] {
		if x < t[mid] {
			hi = mid
		} else {
			lo = mid
		}
		mid = (lo + hi) / 2
	}
	return mid
}

// basisFuncs evaluates the degree+1 non-vanishing B-spline basis functions
// at x for the given knot span (Cox-de Boor recursion, triangular form).
// dst must have length splineDegree+1.
func basisFuncs(dst []float64, t []float64, span int, x float64) {
	var left, right [splineDegree + 1]float64
	dst[0] = 1
	for j := 1; j <= splineDegree; j++ {
		left[j] = x - t[span+1-j]
		right[j] = t[span+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			tmp := dst[r] / (right[r+1] + left[j-r])
			dst[r] = saved + right[r+1]*tmp
			saved = left[j-r] * tmp
		}
		dst[j] = saved
	}
}
