// Package spectrum defines the spectrum data object shared by all fitting
// code: a fixed wavelength grid with flux and flux-error samples.
package spectrum

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrLengthMismatch is returned when the wavelength, flux, and flux-error
// arrays do not all have the same length.
var ErrLengthMismatch = errors.New("spectrum: wavelength, flux, and flux-error lengths differ")

// gridTol is the relative tolerance used when comparing wavelength grids.
const gridTol = 1e-10

// Spectrum holds an ordered sequence of (wavelength, flux, flux-error)
// samples on a fixed wavelength grid. The grid is immutable for the
// lifetime of a fit; flux and flux-error may be overwritten in place by
// model-building code that owns the buffer.
type Spectrum struct {
	Wavelength []float64
	Flux       []float64
	FluxErr    []float64
	Name       string
}

// New creates a spectrum from the given arrays. The slices are taken over,
// not copied. Returns ErrLengthMismatch if the lengths differ.
func New(wavelength, flux, fluxErr []float64, name string) (*Spectrum, error) {
	if len(flux) != len(wavelength) || len(fluxErr) != len(wavelength) {
		return nil, fmt.Errorf("%w: w=%d flux=%d fluxerr=%d",
			ErrLengthMismatch, len(wavelength), len(flux), len(fluxErr))
	}
	return &Spectrum{
		Wavelength: wavelength,
		Flux:       flux,
		FluxErr:    fluxErr,
		Name:       name,
	}, nil
}

// Blank creates a spectrum on the given wavelength grid with zeroed flux
// and flux-error buffers. Used as the working model buffer during a fit.
func Blank(wavelength []float64, name string) *Spectrum {
	return &Spectrum{
		Wavelength: wavelength,
		Flux:       make([]float64, len(wavelength)),
		FluxErr:    make([]float64, len(wavelength)),
		Name:       name,
	}
}

// N returns the number of samples.
func (s *Spectrum) N() int {
	return len(s.Wavelength)
}

// Copy returns an independent deep copy of the spectrum.
func (s *Spectrum) Copy() *Spectrum {
	c := &Spectrum{
		Wavelength: make([]float64, len(s.Wavelength)),
		Flux:       make([]float64, len(s.Flux)),
		FluxErr:    make([]float64, len(s.FluxErr)),
		Name:       s.Name,
	}
	copy(c.Wavelength, s.Wavelength)
	copy(c.Flux, s.Flux)
	copy(c.FluxErr, s.FluxErr)
	return c
}

// Sanitize replaces non-finite flux and flux-error values with 1, the
// continuum level ("no information"). This is the one-time construction
// step that lets the fitting loop skip per-iteration finite checks.
func (s *Spectrum) Sanitize() {
	for i, v := range s.Flux {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.Flux[i] = 1
		}
	}
	for i, v := range s.FluxErr {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.FluxErr[i] = 1
		}
	}
}

// SameGrid reports whether two spectra are sampled on the same wavelength
// grid, up to floating-point tolerance.
func SameGrid(a, b *Spectrum) bool {
	if a.N() != b.N() {
		return false
	}
	if a.N() == 0 {
		return true
	}
	return floats.EqualApprox(a.Wavelength, b.Wavelength, gridTol)
}
