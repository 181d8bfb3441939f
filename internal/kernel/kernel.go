// Package kernel generates convolution kernels for spectral line
// broadening. Kernels are pure functions of their inputs and carry no
// state.
package kernel

import "math"

// epsilon is the linear limb-darkening coefficient of the rotational
// profile.
const epsilon = 0.6

// Rot returns the velocity offsets and normalized weights of a rotational
// broadening kernel with n points sampled every dv km/s, for a projected
// rotational velocity vsini in km/s.
//
// The profile is the classical rotational broadening function with linear
// limb darkening. Offsets outside ±vsini carry zero weight. For vsini
// small enough that only the central sample falls inside the profile
// (including vsini=0), the kernel degenerates to a delta function, so
// convolution with it is the identity.
func Rot(n int, dv, vsini float64) (offsets, weights []float64) {
	offsets = make([]float64, n)
	weights = make([]float64, n)

	center := float64(n-1) / 2
	for i := 0; i < n; i++ {
		offsets[i] = (float64(i) - center) * dv
	}

	if vsini <= 0 {
		weights[(n-1)/2] = 1
		return offsets, weights
	}

	// G(v) = c1*sqrt(1-(v/vsini)^2) + c2*(1-(v/vsini)^2) for |v| < vsini
	denom := math.Pi * vsini * (1 - epsilon/3)
	c1 := 2 * (1 - epsilon) / denom
	c2 := math.Pi * epsilon / (2 * denom)

	var sum float64
	for i, v := range offsets {
		x := v / vsini
		if x <= -1 || x >= 1 {
			continue
		}
		q := 1 - x*x
		weights[i] = c1*math.Sqrt(q) + c2*q
		sum += weights[i]
	}

	if sum == 0 {
		// vsini narrower than one pixel: delta kernel
		weights[(n-1)/2] = 1
		return offsets, weights
	}

	for i := range weights {
		weights[i] /= sum
	}
	return offsets, weights
}
