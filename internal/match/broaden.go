package match

import (
	"github.com/cwbudde/specmatch/internal/kernel"
	"github.com/cwbudde/specmatch/internal/spectrum"
)

// speedOfLight in km/s.
const speedOfLight = 2.99792e5

// kernelPoints is the fixed broadening-kernel length. Odd, so the kernel
// has a well-defined central sample.
const kernelPoints = 151

// Broaden applies a rotational broadening kernel for the given vsini to a
// spectrum's flux and flux-error arrays and returns the broadened copy.
// The wavelength grid is untouched. vsini=0 is the identity.
func Broaden(vsini float64, spec *spectrum.Spectrum) *spectrum.Spectrum {
	out := spec.Copy()
	broadenInto(out, spec, vsini)
	return out
}

// broadenInto is the allocation-free form used in the objective loop. dst
// and src must share the wavelength grid; dst flux buffers are
// overwritten. dst and src may not alias.
func broadenInto(dst, src *spectrum.Spectrum, vsini float64) {
	w := src.Wavelength
	// per-pixel velocity spacing of the (roughly log-uniform) grid
	dv := (w[1] - w[0]) / w[0] * speedOfLight

	_, weights := kernel.Rot(kernelPoints, dv, vsini)

	convolveSame(dst.Flux, src.Flux, weights)
	convolveSame(dst.FluxErr, src.FluxErr, weights)
}

// convolveSame performs same-length 1-D convolution of x with a kernel k,
// writing into dst. Samples beyond the signal edges are reflected, so a
// normalized kernel preserves a flat continuum at the boundaries. dst and
// x may not alias.
func convolveSame(dst, x, k []float64) {
	n := len(x)
	m := len(k)
	center := m / 2

	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < m; j++ {
			sum += k[j] * x[reflectIndex(i+j-center, n)]
		}
		dst[i] = sum
	}
}

// reflectIndex maps an out-of-range index back into [0,n) by reflecting
// about the signal edges without repeating the edge sample.
// Example for n=5: ... 2 1 0 1 2 3 4 3 2 1 0 1 ...
func reflectIndex(i, n int) int {
	if n <= 1 {
		return 0
	}
	period := 2*n - 2
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
