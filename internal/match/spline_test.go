package match

import (
	"errors"
	"math"
	"testing"
)

func TestSplineKnotPositions(t *testing.T) {
	w := testGrid(60)
	knots := splineKnotPositions(w)

	if len(knots) != numKnots {
		t.Fatalf("got %d knots, expected %d", len(knots), numKnots)
	}
	// interval = 60/6 = 10, so knots sit at indices 10,20,30,40,50
	for i, k := range knots {
		want := w[10*(i+1)]
		if k != want {
			t.Errorf("knot %d = %g, expected %g", i, k, want)
		}
	}
	if knots[0] <= w[0] || knots[numKnots-1] >= w[len(w)-1] {
		t.Error("knots not strictly interior")
	}
}

func TestFitSplineReproducesConstant(t *testing.T) {
	x := testGrid(80)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 1.5
	}

	fitted, err := fitSpline(x, y, splineKnotPositions(x))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range fitted {
		if math.Abs(fitted[i]-1.5) > 1e-9 {
			t.Fatalf("fitted[%d] = %g, expected 1.5", i, fitted[i])
		}
	}
}

func TestFitSplineReproducesCubic(t *testing.T) {
	// A cubic spline reproduces any global cubic polynomial exactly.
	x := testGrid(100)
	y := make([]float64, len(x))
	for i := range y {
		u := x[i] - x[0]
		y[i] = 1 + 0.5*u - 0.2*u*u + 0.05*u*u*u
	}

	fitted, err := fitSpline(x, y, splineKnotPositions(x))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range fitted {
		if math.Abs(fitted[i]-y[i]) > 1e-8 {
			t.Fatalf("fitted[%d] = %g, expected %g", i, fitted[i], y[i])
		}
	}
}

func TestFitSplineSmoothsNoise(t *testing.T) {
	x := testGrid(120)
	y := make([]float64, len(x))
	for i := range y {
		// Slow trend plus fast wiggle the 5-knot spline cannot follow.
		y[i] = 1 + 0.01*float64(i) + 0.3*math.Sin(float64(i)*2.7)
	}

	fitted, err := fitSpline(x, y, splineKnotPositions(x))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rough, smooth float64
	for i := 1; i < len(x); i++ {
		rough += math.Abs(y[i] - y[i-1])
		smooth += math.Abs(fitted[i] - fitted[i-1])
	}
	if smooth >= rough/2 {
		t.Errorf("spline variation %g, expected well below input variation %g", smooth, rough)
	}
}

func TestFitSplineInsufficientSamples(t *testing.T) {
	x := testGrid(8)
	y := make([]float64, len(x))
	knots := []float64{x[1], x[2], x[3], x[4], x[5]}

	_, err := fitSpline(x, y, knots)
	if !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
}

func TestBasisFuncsPartitionOfUnity(t *testing.T) {
	x := testGrid(50)
	knots := splineKnotPositions(x)
	nCoef := len(knots) + splineDegree + 1

	tvec := make([]float64, 0, nCoef+splineDegree+1)
	for i := 0; i <= splineDegree; i++ {
		tvec = append(tvec, x[0])
	}
	tvec = append(tvec, knots...)
	for i := 0; i <= splineDegree; i++ {
		tvec = append(tvec, x[len(x)-1])
	}

	basis := make([]float64, splineDegree+1)
	for _, xi := range x {
		span := findSpan(tvec, nCoef, xi)
		basisFuncs(basis, tvec, span, xi)

		var sum float64
		for _, b := range basis {
			if b < -1e-12 {
				t.Fatalf("negative basis value %g at x=%g", b, xi)
			}
			sum += b
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Fatalf("basis sum at x=%g is %g, expected 1", xi, sum)
		}
	}
}
