package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/specmatch/internal/match"
)

// Result is the persisted outcome of one fit session: which spectra were
// matched, with what algorithm and mode, the full best-fit parameter
// snapshot, and the score. Serialized as result.json under the job
// directory.
type Result struct {
	// JobID is the unique identifier of the fit job.
	JobID string `json:"jobId"`

	// Target names the target spectrum.
	Target string `json:"target"`

	// References names the reference spectra, one entry for a
	// single-reference fit, several for a linear combination.
	References []string `json:"references"`

	// Algorithm is the optimizer used ("levenberg-marquardt",
	// "nelder-mead", "mayfly").
	Algorithm string `json:"algorithm"`

	// Mode is the residual weighting ("default", "normalized").
	Mode string `json:"mode"`

	// Params is the full best-fit parameter snapshot, bounds and
	// fixed-flags included, so a session can be rebuilt via LoadParams.
	Params []match.ParamValue `json:"params"`

	// Chisq is the best chi-square. It excludes the linear-combination
	// unit-sum prior.
	Chisq float64 `json:"chisq"`

	// Converged reports whether the optimizer converged within its own
	// limits. A non-converged result still carries the best parameters
	// found.
	Converged bool `json:"converged"`

	// Evals is the number of objective evaluations performed.
	Evals int `json:"evals"`

	// Timestamp records when the result was saved.
	Timestamp time.Time `json:"timestamp"`
}

// ResultInfo is the listing view of a result, without the parameter
// snapshot.
type ResultInfo struct {
	JobID      string    `json:"jobId"`
	Target     string    `json:"target"`
	References []string  `json:"references"`
	Algorithm  string    `json:"algorithm"`
	Mode       string    `json:"mode"`
	Chisq      float64   `json:"chisq"`
	Converged  bool      `json:"converged"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToInfo converts a full Result to its listing view.
func (r *Result) ToInfo() ResultInfo {
	return ResultInfo{
		JobID:      r.JobID,
		Target:     r.Target,
		References: r.References,
		Algorithm:  r.Algorithm,
		Mode:       r.Mode,
		Chisq:      r.Chisq,
		Converged:  r.Converged,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks that the result carries everything needed to reload it.
func (r *Result) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if r.Target == "" {
		return &ValidationError{Field: "Target", Reason: "cannot be empty"}
	}
	if len(r.References) == 0 {
		return &ValidationError{Field: "References", Reason: "cannot be empty"}
	}
	if len(r.Params) == 0 {
		return &ValidationError{Field: "Params", Reason: "cannot be empty"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a result validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// RestoreParams rebuilds the parameter set from the stored snapshot, for
// feeding into match.Matcher.LoadParams.
func (r *Result) RestoreParams() *match.Params {
	return match.ParamsFromValues(r.Params)
}

// NewResult assembles a persistable result from a fitted session.
func NewResult(jobID, target string, references []string, algorithm, mode string, m *match.Matcher) (*Result, error) {
	params, err := m.BestParams()
	if err != nil {
		return nil, fmt.Errorf("cannot persist unfitted session: %w", err)
	}
	return &Result{
		JobID:      jobID,
		Target:     target,
		References: references,
		Algorithm:  algorithm,
		Mode:       mode,
		Params:     params.Values(),
		Chisq:      m.BestChisq(),
		Converged:  m.Converged(),
		Evals:      m.Evals(),
		Timestamp:  time.Now(),
	}, nil
}
