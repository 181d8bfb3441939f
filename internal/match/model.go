package match

import (
	"github.com/cwbudde/specmatch/internal/spectrum"
	"gonum.org/v1/gonum/floats"
)

// modelBuilder assembles the raw (pre-continuum) model spectrum from a
// trial parameter set. The two variants share the continuum-spline stage,
// which the session applies after combine.
type modelBuilder interface {
	// seed adds the variant's free parameters with initial guesses and
	// bounds to an empty parameter set.
	seed(p *Params)

	// combine overwrites dst's flux and flux-error buffers from the
	// trial parameters. dst never aliases the reference buffers.
	combine(p *Params, dst *spectrum.Spectrum)
}

// singleRef models the target as one reference broadened by a free vsini.
type singleRef struct {
	ref *spectrum.Spectrum
}

func (s *singleRef) seed(p *Params) {
	p.Add("vsini", 1.0, 0.0, 10.0)
}

func (s *singleRef) combine(p *Params, dst *spectrum.Spectrum) {
	broadenInto(dst, s.ref, p.Get("vsini"))
}

// lincomb models the target as a weighted sum of N reference spectra,
// each broadened once at construction by a caller-supplied fixed vsini.
// Only the weights are optimized.
type lincomb struct {
	broadened []*spectrum.Spectrum
	vsini     []float64
}

func newLincomb(refs []*spectrum.Spectrum, vsini []float64) *lincomb {
	broadened := make([]*spectrum.Spectrum, len(refs))
	for i, ref := range refs {
		broadened[i] = Broaden(vsini[i], ref)
	}
	return &lincomb{broadened: broadened, vsini: vsini}
}

func (l *lincomb) seed(p *Params) {
	addLincombCoeffs(p, len(l.broadened))
	addVsiniList(p, l.vsini)
}

func (l *lincomb) combine(p *Params, dst *spectrum.Spectrum) {
	coeffs := LincombCoeffs(p)

	for i := range dst.Flux {
		dst.Flux[i] = 0
		dst.FluxErr[i] = 0
	}
	for i, b := range l.broadened {
		floats.AddScaled(dst.Flux, coeffs[i], b.Flux)
		floats.AddScaled(dst.FluxErr, coeffs[i], b.FluxErr)
	}
}
