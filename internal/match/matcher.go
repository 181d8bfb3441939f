// Package match fits an observed target spectrum as a transformed version
// of a reference spectrum, or as a weighted linear combination of several
// references. A fit session owns one target, the reference(s), one
// modified-model working buffer, and one parameter set; it drives an
// external minimizer over the chi-square objective and records the
// best-fit result. Sessions are single-use and not safe for concurrent
// use; run independent fits in independent sessions.
package match

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/specmatch/internal/opt"
	"github.com/cwbudde/specmatch/internal/spectrum"
	"gonum.org/v1/gonum/floats"
)

// Mode selects how residuals are weighted in the objective.
type Mode int

const (
	// ModeDefault scores raw residuals target - model.
	ModeDefault Mode = iota

	// ModeNormalized divides each residual by
	// sqrt(target_err^2 + model_err^2) before squaring
	// (inverse-variance weighting).
	ModeNormalized
)

// String returns the mode's wire name.
func (m Mode) String() string {
	switch m {
	case ModeNormalized:
		return "normalized"
	default:
		return "default"
	}
}

// ParseMode parses a mode name as used on the command line.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "default":
		return ModeDefault, nil
	case "normalized":
		return ModeNormalized, nil
	default:
		return ModeDefault, fmt.Errorf("match: unknown mode %q", s)
	}
}

// priorWidth is the Gaussian prior width softly pulling the
// linear-combination weights toward unit sum.
const priorWidth = 1e-2

// minSamples is the smallest grid the fixed-knot continuum spline can be
// fit on (one coefficient per knot plus degree+1).
const minSamples = numKnots + splineDegree + 1

type sessionState int

const (
	stateUnfit sessionState = iota
	stateFitting
	stateFitted
)

// Matcher is the fit driver for one target/reference pairing.
type Matcher struct {
	w        []float64
	target   *spectrum.Spectrum
	modified *spectrum.Spectrum
	knots    []float64
	mode     Mode
	builder  modelBuilder
	hasPrior bool

	state      sessionState
	bestParams *Params
	bestChisq  float64
	converged  bool
	continuum  []float64
	ratio      []float64
	evals      int
	onEval     func(eval int, chisq float64)
}

// New creates a single-reference fit session. Both spectra are deep-copied
// and sanitized (non-finite flux and flux-error become 1); the originals
// are never mutated. Returns ErrGridMismatch if the wavelength grids
// differ and ErrInsufficientSamples if the grid is too short for the
// continuum spline.
func New(target, ref *spectrum.Spectrum, mode Mode) (*Matcher, error) {
	if !spectrum.SameGrid(target, ref) {
		return nil, fmt.Errorf("%w: target %q, reference %q",
			ErrGridMismatch, target.Name, ref.Name)
	}
	if target.N() < minSamples {
		return nil, fmt.Errorf("%w: %d samples, need at least %d",
			ErrInsufficientSamples, target.N(), minSamples)
	}

	t := target.Copy()
	t.Sanitize()
	r := ref.Copy()
	r.Sanitize()

	return &Matcher{
		w:         t.Wavelength,
		target:    t,
		modified:  r.Copy(),
		knots:     splineKnotPositions(t.Wavelength),
		mode:      mode,
		builder:   &singleRef{ref: r},
		bestChisq: math.NaN(),
		ratio:     make([]float64, t.N()),
	}, nil
}

// NewLincomb creates a linear-combination fit session over a fixed set of
// reference spectra. Each reference is broadened once, here at
// construction, by the matching entry of vsini; only the combination
// weights are optimized.
func NewLincomb(target *spectrum.Spectrum, refs []*spectrum.Spectrum, vsini []float64, mode Mode) (*Matcher, error) {
	if len(refs) == 0 {
		return nil, ErrNoReferences
	}
	if len(vsini) != len(refs) {
		return nil, fmt.Errorf("%w: %d vsini values, %d references",
			ErrVsiniCount, len(vsini), len(refs))
	}
	for i, ref := range refs {
		if !spectrum.SameGrid(target, ref) {
			return nil, fmt.Errorf("%w: target %q, reference %d %q",
				ErrGridMismatch, target.Name, i, ref.Name)
		}
	}
	if target.N() < minSamples {
		return nil, fmt.Errorf("%w: %d samples, need at least %d",
			ErrInsufficientSamples, target.N(), minSamples)
	}

	t := target.Copy()
	t.Sanitize()
	copies := make([]*spectrum.Spectrum, len(refs))
	for i, ref := range refs {
		copies[i] = ref.Copy()
		copies[i].Sanitize()
	}

	return &Matcher{
		w:         t.Wavelength,
		target:    t,
		modified:  spectrum.Blank(t.Wavelength, fmt.Sprintf("Linear Combination %d", len(refs))),
		knots:     splineKnotPositions(t.Wavelength),
		mode:      mode,
		builder:   newLincomb(copies, vsini),
		hasPrior:  true,
		bestChisq: math.NaN(),
		ratio:     make([]float64, t.N()),
	}, nil
}

// createModel overwrites the modified-model buffer from the trial
// parameters: variant-specific combination, then the multiplicative
// continuum correction from a least-squares spline on the target/model
// ratio.
func (m *Matcher) createModel(p *Params) error {
	m.builder.combine(p, m.modified)

	for i := range m.ratio {
		m.ratio[i] = m.target.Flux[i] / m.modified.Flux[i]
	}

	corr, err := fitSpline(m.w, m.ratio, m.knots)
	if err != nil {
		return err
	}
	m.continuum = corr

	floats.Mul(m.modified.Flux, corr)
	floats.Mul(m.modified.FluxErr, corr)
	return nil
}

// residualsCore writes the n mode-weighted residuals target - model into
// dst, rebuilding the model first.
func (m *Matcher) residualsCore(dst []float64, p *Params) error {
	if err := m.createModel(p); err != nil {
		return err
	}
	for i := range dst {
		r := m.target.Flux[i] - m.modified.Flux[i]
		if m.mode == ModeNormalized {
			te := m.target.FluxErr[i]
			me := m.modified.FluxErr[i]
			r /= math.Sqrt(te*te + me*me)
		}
		dst[i] = r
	}
	return nil
}

// numResiduals is the residual vector length: one per sample, plus the
// unit-sum prior element for the linear-combination variant.
func (m *Matcher) numResiduals() int {
	if m.hasPrior {
		return m.target.N() + 1
	}
	return m.target.N()
}

// evalResiduals fills the full residual vector, prior element included,
// and fires the evaluation hook.
func (m *Matcher) evalResiduals(dst []float64, p *Params) error {
	n := m.target.N()
	if err := m.residualsCore(dst[:n], p); err != nil {
		return err
	}
	if m.hasPrior {
		// (sum-1)^2 / (2 w^2) expressed as a squared residual element
		sum := floats.Sum(LincombCoeffs(p))
		dst[n] = (sum - 1) / (math.Sqrt2 * priorWidth)
	}

	m.evals++
	if m.onEval != nil {
		m.onEval(m.evals, floats.Dot(dst, dst))
	}
	return nil
}

// residualChiSquare is the prior-free residual sum of squares at p. This
// is the quantity stored as the best chi-square, so scores rank spectral
// agreement only, with the lincomb prior kept out.
func (m *Matcher) residualChiSquare(p *Params) (float64, error) {
	res := make([]float64, m.target.N())
	if err := m.residualsCore(res, p); err != nil {
		return 0, err
	}
	return floats.Dot(res, res), nil
}

// poisonResidual is written when a trial model cannot be built, pushing
// the optimizer away from the step.
const poisonResidual = 1e30

// sessionObjective adapts a session to the opt.Objective interface. It
// decodes trial vectors into a scratch parameter set (clamping into
// bounds) before model construction.
type sessionObjective struct {
	m       *Matcher
	p       *Params
	scratch []float64
}

func (o *sessionObjective) NumResiduals() int {
	return o.m.numResiduals()
}

func (o *sessionObjective) Residuals(dst, x []float64) {
	o.p.SetVector(x)
	if err := o.m.evalResiduals(dst, o.p); err != nil {
		for i := range dst {
			dst[i] = poisonResidual
		}
	}
}

func (o *sessionObjective) Eval(x []float64) float64 {
	o.Residuals(o.scratch, x)
	return floats.Dot(o.scratch, o.scratch)
}

// BestFit seeds the parameter set, runs the given optimizer over the
// objective, and records the best-fit parameters and chi-square. The
// returned chi-square excludes the lincomb unit-sum prior. If the
// optimizer fails to converge the best parameters found are still stored
// and Converged reports false; that is not an error. Returns
// ErrAlreadyFitted on a second call.
func (m *Matcher) BestFit(optimizer opt.Optimizer) (float64, error) {
	if m.state != stateUnfit {
		return 0, ErrAlreadyFitted
	}
	m.state = stateFitting

	params := NewParams()
	m.builder.seed(params)
	addSplineKnots(params, m.knots)

	obj := &sessionObjective{
		m:       m,
		p:       params.Copy(),
		scratch: make([]float64, m.numResiduals()),
	}
	x0 := params.Vector()
	lower, upper := params.Bounds()

	slog.Info("Starting fit",
		"target", m.target.Name,
		"model", m.modified.Name,
		"mode", m.mode.String(),
		"free_params", len(x0),
	)

	xbest, cost, optErr := optimizer.Run(obj, x0, lower, upper)

	best := params.Copy()
	best.SetVector(xbest)

	chisq, err := m.residualChiSquare(best)
	if err != nil {
		m.state = stateFitted
		return 0, err
	}

	m.bestParams = best
	m.bestChisq = chisq
	m.converged = optErr == nil
	m.state = stateFitted

	if optErr != nil {
		slog.Warn("Fit did not converge",
			"target", m.target.Name,
			"chisq", chisq,
			"evals", m.evals,
			"error", optErr,
		)
	} else {
		slog.Info("Fit complete",
			"target", m.target.Name,
			"chisq", chisq,
			"objective", cost,
			"evals", m.evals,
		)
	}

	return chisq, nil
}

// LoadParams is the shortcut from Unfit straight to Fitted: it accepts an
// externally computed parameter set, evaluates the objective once, and
// stores it as the result without running an optimizer.
func (m *Matcher) LoadParams(p *Params) (float64, error) {
	if m.state != stateUnfit {
		return 0, ErrAlreadyFitted
	}

	chisq, err := m.residualChiSquare(p)
	if err != nil {
		return 0, err
	}

	m.bestParams = p.Copy()
	m.bestChisq = chisq
	m.converged = true
	m.state = stateFitted
	return chisq, nil
}

// Fitted reports whether the session holds a result.
func (m *Matcher) Fitted() bool {
	return m.state == stateFitted
}

// Converged reports whether the minimizer converged within its own
// limits. Meaningful only once Fitted.
func (m *Matcher) Converged() bool {
	return m.converged
}

// BestChisq returns the stored best chi-square (prior-free residual sum
// of squares), or NaN before the session is fitted.
func (m *Matcher) BestChisq() float64 {
	return m.bestChisq
}

// Evals returns the number of objective evaluations performed so far.
func (m *Matcher) Evals() int {
	return m.evals
}

// SetEvalHook installs a callback fired after every objective evaluation
// with the running evaluation count and the (prior-inclusive) chi-square.
// Must be set before BestFit.
func (m *Matcher) SetEvalHook(fn func(eval int, chisq float64)) {
	m.onEval = fn
}

// BestParams returns a copy of the best-fit parameter set.
func (m *Matcher) BestParams() (*Params, error) {
	if m.state != stateFitted {
		return nil, ErrNotFitted
	}
	return m.bestParams.Copy(), nil
}

// BestResiduals recomputes the model at the best-fit parameters and
// returns the mode-weighted residuals target - model.
func (m *Matcher) BestResiduals() ([]float64, error) {
	if m.state != stateFitted {
		return nil, ErrNotFitted
	}
	res := make([]float64, m.target.N())
	if err := m.residualsCore(res, m.bestParams); err != nil {
		return nil, err
	}
	return res, nil
}

// ContinuumCorrection returns the continuum spline evaluated on the grid
// for the most recently built model.
func (m *Matcher) ContinuumCorrection() []float64 {
	return append([]float64{}, m.continuum...)
}

// Modified returns a copy of the current modified-model spectrum.
func (m *Matcher) Modified() *spectrum.Spectrum {
	return m.modified.Copy()
}

// Knots returns the fixed interior knot wavelengths of the continuum
// spline.
func (m *Matcher) Knots() []float64 {
	return append([]float64{}, m.knots...)
}

// Vsini returns the best-fit broadening velocity of a single-reference
// session, or NaN if not applicable or not fitted.
func (m *Matcher) Vsini() float64 {
	if m.state != stateFitted || !m.bestParams.Has("vsini") {
		return math.NaN()
	}
	return m.bestParams.Get("vsini")
}

// Coeffs returns the best-fit linear-combination weights, or nil for a
// single-reference session.
func (m *Matcher) Coeffs() []float64 {
	if m.state != stateFitted || !m.bestParams.Has("num_refs") {
		return nil
	}
	return LincombCoeffs(m.bestParams)
}

// VsiniPerRef returns the fixed per-reference broadening velocities of a
// linear-combination session, or nil for a single-reference session.
func (m *Matcher) VsiniPerRef() []float64 {
	if m.state != stateFitted || !m.bestParams.Has("num_refs") {
		return nil
	}
	return VsiniList(m.bestParams)
}
