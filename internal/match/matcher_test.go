package match

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/specmatch/internal/opt"
	"github.com/cwbudde/specmatch/internal/spectrum"
)

// testGrid builds a linear wavelength grid near 5000 angstroms whose
// velocity spacing is about 0.3 km/s per pixel.
func testGrid(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 5000 + 0.005*float64(i)
	}
	return w
}

// lineSpectrum is a unit continuum with a few Gaussian absorption lines.
func lineSpectrum(n int, name string) *spectrum.Spectrum {
	return synthSpectrum(n, name, []float64{0.20, 0.45, 0.70, 0.85}, []float64{0.5, 0.35, 0.6, 0.4})
}

// altLineSpectrum uses a different line pattern, so it is linearly
// independent of lineSpectrum on the same grid.
func altLineSpectrum(n int, name string) *spectrum.Spectrum {
	return synthSpectrum(n, name, []float64{0.10, 0.35, 0.60, 0.90}, []float64{0.3, 0.55, 0.25, 0.45})
}

func synthSpectrum(n int, name string, centers, depths []float64) *spectrum.Spectrum {
	w := testGrid(n)
	flux := make([]float64, n)
	ferr := make([]float64, n)
	const sigma = 6.0 // pixels
	for i := range flux {
		f := 1.0
		for j, c := range centers {
			d := (float64(i) - c*float64(n)) / sigma
			f -= depths[j] * math.Exp(-0.5*d*d)
		}
		flux[i] = f
		ferr[i] = 0.01
	}
	s, err := spectrum.New(w, flux, ferr, name)
	if err != nil {
		panic(err)
	}
	return s
}

func singleRefParams(vsini float64) *Params {
	p := NewParams()
	p.Add("vsini", vsini, 0, 10)
	return p
}

func TestNewGridMismatch(t *testing.T) {
	target := lineSpectrum(100, "target")
	ref := lineSpectrum(100, "ref")
	ref.Wavelength[50] += 0.1

	if _, err := New(target, ref, ModeDefault); !errors.Is(err, ErrGridMismatch) {
		t.Fatalf("expected ErrGridMismatch, got %v", err)
	}
}

func TestNewInsufficientSamples(t *testing.T) {
	target := lineSpectrum(5, "target")
	ref := lineSpectrum(5, "ref")

	if _, err := New(target, ref, ModeDefault); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
}

func TestNewDoesNotMutateInputs(t *testing.T) {
	target := lineSpectrum(100, "target")
	target.Flux[10] = math.NaN()
	ref := lineSpectrum(100, "ref")

	m, err := New(target, ref, ModeDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !math.IsNaN(target.Flux[10]) {
		t.Error("caller's spectrum was sanitized in place")
	}
	if math.IsNaN(m.target.Flux[10]) {
		t.Error("session copy was not sanitized")
	}
}

func TestLoadParamsContinuumRoundTrip(t *testing.T) {
	ref := lineSpectrum(300, "ref")
	target := ref.Copy()
	target.Name = "target"
	// A linear continuum lies in the cubic spline space, so the correction
	// should recover it exactly and leave near-zero residuals at vsini=0.
	for i := range target.Flux {
		scale := 1 + 0.05*float64(i)/float64(target.N())
		target.Flux[i] *= scale
		target.FluxErr[i] *= scale
	}

	m, err := New(target, ref, ModeDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chisq, err := m.LoadParams(singleRefParams(0))
	if err != nil {
		t.Fatalf("LoadParams: %v", err)
	}

	if chisq > 1e-12 {
		t.Errorf("chisq = %g, expected near zero for an in-space continuum", chisq)
	}
	if !m.Fitted() || !m.Converged() {
		t.Error("session not marked fitted and converged")
	}
	if m.BestChisq() != chisq {
		t.Errorf("BestChisq = %g, expected %g", m.BestChisq(), chisq)
	}
	if m.Vsini() != 0 {
		t.Errorf("Vsini = %g, expected 0", m.Vsini())
	}
	if got := len(m.ContinuumCorrection()); got != target.N() {
		t.Errorf("continuum length = %d, expected %d", got, target.N())
	}

	if _, err := m.LoadParams(singleRefParams(0)); !errors.Is(err, ErrAlreadyFitted) {
		t.Fatalf("expected ErrAlreadyFitted on reuse, got %v", err)
	}
}

func TestChiSquareDeterministic(t *testing.T) {
	target := Broaden(3.0, lineSpectrum(200, "ref"))
	target.Name = "target"
	ref := lineSpectrum(200, "ref")

	m, err := New(target, ref, ModeDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := singleRefParams(2.0)
	a, err := m.residualChiSquare(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := m.residualChiSquare(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("chisq not deterministic: %v vs %v", a, b)
	}
}

func TestNormalizedModeWeighting(t *testing.T) {
	ref := lineSpectrum(200, "ref")
	target := Broaden(2.0, ref)
	target.Name = "target"
	for i := range target.Flux {
		target.Flux[i] += 0.01 * math.Sin(float64(i))
		target.FluxErr[i] = 0.02
	}

	p := singleRefParams(1.0)

	mDef, err := New(target, ref, ModeDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw := make([]float64, mDef.target.N())
	if err := mDef.residualsCore(raw, p); err != nil {
		t.Fatalf("residualsCore: %v", err)
	}

	// Expected normalized chisq from the raw residuals and the
	// continuum-corrected model errors left in the working buffer.
	var want float64
	for i, r := range raw {
		te := mDef.target.FluxErr[i]
		me := mDef.modified.FluxErr[i]
		want += r * r / (te*te + me*me)
	}

	mNorm, err := New(target, ref, ModeNormalized)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := mNorm.residualChiSquare(p)
	if err != nil {
		t.Fatalf("residualChiSquare: %v", err)
	}

	if math.Abs(got-want) > 1e-9*want {
		t.Errorf("normalized chisq = %g, expected %g", got, want)
	}
}

func TestBestFitRecoversVsini(t *testing.T) {
	const trueVsini = 3.0

	ref := lineSpectrum(300, "ref")
	target := Broaden(trueVsini, ref)
	target.Name = "target"
	for i := range target.Flux {
		scale := 1 + 0.1*float64(i)/float64(target.N())
		target.Flux[i] *= scale
		target.FluxErr[i] *= scale
	}

	m, err := New(target, ref, ModeDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chisq, err := m.BestFit(opt.NewNelderMead(400))
	if err != nil {
		t.Fatalf("BestFit: %v", err)
	}

	if !m.Fitted() {
		t.Fatal("session not fitted after BestFit")
	}
	if chisq > 1e-4 {
		t.Errorf("chisq = %g, expected a near-perfect fit", chisq)
	}
	if v := m.Vsini(); math.Abs(v-trueVsini) > 0.5 {
		t.Errorf("vsini = %g, expected about %g", v, trueVsini)
	}
	if m.Evals() == 0 {
		t.Error("no objective evaluations recorded")
	}

	best, err := m.BestParams()
	if err != nil {
		t.Fatalf("BestParams: %v", err)
	}
	if !best.Has("num_knots") || !best.Has("knot_x_0") {
		t.Error("best params missing continuum knot entries")
	}

	res, err := m.BestResiduals()
	if err != nil {
		t.Fatalf("BestResiduals: %v", err)
	}
	if len(res) != target.N() {
		t.Errorf("residual length = %d, expected %d", len(res), target.N())
	}

	if _, err := m.BestFit(opt.NewNelderMead(10)); !errors.Is(err, ErrAlreadyFitted) {
		t.Fatalf("expected ErrAlreadyFitted on reuse, got %v", err)
	}
}

func TestEvalHook(t *testing.T) {
	ref := lineSpectrum(150, "ref")
	target := Broaden(2.0, ref)
	target.Name = "target"

	m, err := New(target, ref, ModeDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var calls int
	var lastChisq float64
	m.SetEvalHook(func(eval int, chisq float64) {
		calls++
		if eval != calls {
			t.Fatalf("hook eval = %d, expected %d", eval, calls)
		}
		lastChisq = chisq
	})

	if _, err := m.BestFit(opt.NewNelderMead(50)); err != nil {
		t.Fatalf("BestFit: %v", err)
	}

	if calls == 0 {
		t.Fatal("hook never fired")
	}
	if calls != m.Evals() {
		t.Errorf("hook fired %d times, Evals = %d", calls, m.Evals())
	}
	if math.IsNaN(lastChisq) || math.IsInf(lastChisq, 0) {
		t.Errorf("hook chisq = %g, expected finite", lastChisq)
	}
}

func TestAccessorsBeforeFit(t *testing.T) {
	target := lineSpectrum(100, "target")
	ref := lineSpectrum(100, "ref")

	m, err := New(target, ref, ModeDefault)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Fitted() {
		t.Error("fresh session reports fitted")
	}
	if !math.IsNaN(m.BestChisq()) {
		t.Errorf("BestChisq = %g, expected NaN before fit", m.BestChisq())
	}
	if !math.IsNaN(m.Vsini()) {
		t.Errorf("Vsini = %g, expected NaN before fit", m.Vsini())
	}
	if _, err := m.BestParams(); !errors.Is(err, ErrNotFitted) {
		t.Errorf("BestParams error = %v, expected ErrNotFitted", err)
	}
	if _, err := m.BestResiduals(); !errors.Is(err, ErrNotFitted) {
		t.Errorf("BestResiduals error = %v, expected ErrNotFitted", err)
	}
}

func TestParseModeRoundTrip(t *testing.T) {
	for _, mode := range []Mode{ModeDefault, ModeNormalized} {
		parsed, err := ParseMode(mode.String())
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", mode.String(), err)
		}
		if parsed != mode {
			t.Errorf("ParseMode(%q) = %v, expected %v", mode.String(), parsed, mode)
		}
	}
	if _, err := ParseMode("chi"); err == nil {
		t.Error("expected error for unknown mode name")
	}
}
