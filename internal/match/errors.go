package match

import "errors"

// Errors returned by fit-session construction and fitting.
var (
	// ErrGridMismatch means the target and a reference spectrum are
	// sampled on different wavelength grids. Detected at construction,
	// never repaired.
	ErrGridMismatch = errors.New("match: target and reference on different wavelength grids")

	// ErrInsufficientSamples means the wavelength grid has fewer samples
	// than the fixed-knot continuum spline requires.
	ErrInsufficientSamples = errors.New("match: too few samples for continuum spline")

	// ErrAlreadyFitted means BestFit or LoadParams was called on a
	// session that already holds a result. A session is single-use per
	// target/reference pairing.
	ErrAlreadyFitted = errors.New("match: session already fitted")

	// ErrNotFitted means a result accessor was called before BestFit or
	// LoadParams.
	ErrNotFitted = errors.New("match: session not fitted yet")

	// ErrVsiniCount means the lincomb vsini array length does not match
	// the number of reference spectra.
	ErrVsiniCount = errors.New("match: vsini count does not match reference count")

	// ErrNoReferences means a lincomb session was constructed with an
	// empty reference list.
	ErrNoReferences = errors.New("match: no reference spectra")
)
