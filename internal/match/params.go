package match

import (
	"encoding/json"
	"fmt"
	"math"
)

// Param is a single named fit parameter with box bounds and a fixed-flag.
type Param struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	Vary  bool
}

// Params is an ordered, named parameter set. The optimizer sees only the
// varying parameters, encoded as a flat vector in insertion order; fixed
// parameters (knot positions, counts, lincomb vsini) ride along for the
// model builder to read.
type Params struct {
	order []string
	table map[string]*Param
}

// ParamValue is the serializable snapshot of a single parameter.
type ParamValue struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	Vary  bool
}

// paramValueJSON is the wire form of ParamValue. Fixed parameters carry
// infinite bounds, which JSON cannot represent, so non-finite bounds are
// omitted on the wire and restored on read.
type paramValueJSON struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Vary  bool     `json:"vary"`
}

func (v ParamValue) MarshalJSON() ([]byte, error) {
	out := paramValueJSON{Name: v.Name, Value: v.Value, Vary: v.Vary}
	if !math.IsInf(v.Min, 0) && !math.IsNaN(v.Min) {
		min := v.Min
		out.Min = &min
	}
	if !math.IsInf(v.Max, 0) && !math.IsNaN(v.Max) {
		max := v.Max
		out.Max = &max
	}
	return json.Marshal(out)
}

func (v *ParamValue) UnmarshalJSON(data []byte) error {
	var in paramValueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v.Name = in.Name
	v.Value = in.Value
	v.Vary = in.Vary
	v.Min = math.Inf(-1)
	v.Max = math.Inf(1)
	if in.Min != nil {
		v.Min = *in.Min
	}
	if in.Max != nil {
		v.Max = *in.Max
	}
	return nil
}

// NewParams creates an empty parameter set.
func NewParams() *Params {
	return &Params{table: make(map[string]*Param)}
}

// Add inserts a varying parameter with the given bounds. Re-adding an
// existing name overwrites it in place.
func (p *Params) Add(name string, value, min, max float64) {
	p.put(&Param{Name: name, Value: value, Min: min, Max: max, Vary: true})
}

// AddFixed inserts a non-optimized parameter.
func (p *Params) AddFixed(name string, value float64) {
	p.put(&Param{
		Name:  name,
		Value: value,
		Min:   math.Inf(-1),
		Max:   math.Inf(1),
		Vary:  false,
	})
}

func (p *Params) put(param *Param) {
	if _, ok := p.table[param.Name]; !ok {
		p.order = append(p.order, param.Name)
	}
	p.table[param.Name] = param
}

// Get returns the value of a named parameter. A missing name is a
// programming-contract violation (the parameter set was assembled out of
// order) and panics.
func (p *Params) Get(name string) float64 {
	param, ok := p.table[name]
	if !ok {
		panic(fmt.Sprintf("match: parameter %q missing from schema", name))
	}
	return param.Value
}

// Has reports whether a named parameter exists.
func (p *Params) Has(name string) bool {
	_, ok := p.table[name]
	return ok
}

// Set overwrites the value of an existing parameter. Panics if the name
// is missing.
func (p *Params) Set(name string, value float64) {
	param, ok := p.table[name]
	if !ok {
		panic(fmt.Sprintf("match: parameter %q missing from schema", name))
	}
	param.Value = value
}

// Len returns the total number of parameters, fixed ones included.
func (p *Params) Len() int {
	return len(p.order)
}

// NumVarying returns the number of optimized parameters.
func (p *Params) NumVarying() int {
	n := 0
	for _, name := range p.order {
		if p.table[name].Vary {
			n++
		}
	}
	return n
}

// Copy returns an independent deep copy of the parameter set.
func (p *Params) Copy() *Params {
	c := NewParams()
	for _, name := range p.order {
		param := *p.table[name]
		c.put(&param)
	}
	return c
}

// Vector encodes the varying parameter values as a flat slice in
// insertion order.
func (p *Params) Vector() []float64 {
	x := make([]float64, 0, p.NumVarying())
	for _, name := range p.order {
		if param := p.table[name]; param.Vary {
			x = append(x, param.Value)
		}
	}
	return x
}

// SetVector decodes a flat slice produced by the optimizer back into the
// varying parameters, clamping each value into its bounds. Panics if the
// length does not match the number of varying parameters.
func (p *Params) SetVector(x []float64) {
	i := 0
	for _, name := range p.order {
		param := p.table[name]
		if !param.Vary {
			continue
		}
		if i >= len(x) {
			panic("match: parameter vector too short")
		}
		param.Value = clamp(x[i], param.Min, param.Max)
		i++
	}
	if i != len(x) {
		panic("match: parameter vector too long")
	}
}

// Bounds returns the lower and upper bound vectors of the varying
// parameters, in the same order as Vector.
func (p *Params) Bounds() (lower, upper []float64) {
	lower = make([]float64, 0, p.NumVarying())
	upper = make([]float64, 0, p.NumVarying())
	for _, name := range p.order {
		if param := p.table[name]; param.Vary {
			lower = append(lower, param.Min)
			upper = append(upper, param.Max)
		}
	}
	return lower, upper
}

// Values returns a serializable snapshot of all parameters in order.
func (p *Params) Values() []ParamValue {
	vals := make([]ParamValue, 0, len(p.order))
	for _, name := range p.order {
		param := p.table[name]
		vals = append(vals, ParamValue{
			Name:  param.Name,
			Value: param.Value,
			Min:   param.Min,
			Max:   param.Max,
			Vary:  param.Vary,
		})
	}
	return vals
}

// ParamsFromValues rebuilds a parameter set from a snapshot.
func ParamsFromValues(vals []ParamValue) *Params {
	p := NewParams()
	for _, v := range vals {
		p.put(&Param{Name: v.Name, Value: v.Value, Min: v.Min, Max: v.Max, Vary: v.Vary})
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Schema helpers. Parameter names follow the fixed naming scheme the
// model builders read back: vsini, num_knots, knot_x_{i}, num_refs,
// vsini_{i}, coeff_{i}.

// addSplineKnots records the fixed continuum-spline knot positions.
func addSplineKnots(p *Params, knots []float64) {
	p.AddFixed("num_knots", float64(len(knots)))
	for i, k := range knots {
		p.AddFixed(fmt.Sprintf("knot_x_%d", i), k)
	}
}

// SplineKnots reads the knot positions back from a parameter set.
func SplineKnots(p *Params) []float64 {
	n := int(p.Get("num_knots"))
	knots := make([]float64, n)
	for i := 0; i < n; i++ {
		knots[i] = p.Get(fmt.Sprintf("knot_x_%d", i))
	}
	return knots
}

// addVsiniList records the fixed per-reference broadening velocities of a
// linear-combination fit.
func addVsiniList(p *Params, vsini []float64) {
	if !p.Has("num_refs") {
		p.AddFixed("num_refs", float64(len(vsini)))
	}
	for i, v := range vsini {
		p.AddFixed(fmt.Sprintf("vsini_%d", i), v)
	}
}

// VsiniList reads the per-reference broadening velocities back.
func VsiniList(p *Params) []float64 {
	n := int(p.Get("num_refs"))
	vsini := make([]float64, n)
	for i := 0; i < n; i++ {
		vsini[i] = p.Get(fmt.Sprintf("vsini_%d", i))
	}
	return vsini
}

// addLincombCoeffs seeds the linear-combination weights at 1/N, bounded
// to [0,1].
func addLincombCoeffs(p *Params, numRefs int) {
	if !p.Has("num_refs") {
		p.AddFixed("num_refs", float64(numRefs))
	}
	for i := 0; i < numRefs; i++ {
		p.Add(fmt.Sprintf("coeff_%d", i), 1/float64(numRefs), 0, 1)
	}
}

// LincombCoeffs reads the linear-combination weights back.
func LincombCoeffs(p *Params) []float64 {
	n := int(p.Get("num_refs"))
	coeffs := make([]float64, n)
	for i := 0; i < n; i++ {
		coeffs[i] = p.Get(fmt.Sprintf("coeff_%d", i))
	}
	return coeffs
}
