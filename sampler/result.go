package sampler

import (
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayescmp/spec"
)

// Fit status constant strings
const (
	Success = "success"
	Failed  = "failed"
)

// Failure reason constant strings. Timeout and Canceled are retryable with
// a fresh request; the rest are not retried automatically.
const (
	ReasonSampler     = "sampler-error"
	ReasonUnsupported = "unsupported-model"
	ReasonTimeout     = "timeout"
	ReasonCanceled    = "canceled"
)

// Diagnostics carries sampler-reported health information for a fit. None
// of these make a fit Failed on their own: a pathological fit is still an
// inspectable result.
type Diagnostics struct {
	Divergences      int
	MaxTreedepthHits int
	AcceptRate       float64
	ESS              map[string]float64
	Warnings         []string
}

// A FitResult is the outcome of running one ModelSpec through a sampler.
// Draws are pooled across chains in chain order, one row per retained
// sample; LogLik rows parallel Draws rows, one column per observation.
// Immutable once produced - the fit cache owns the only copy per key.
type FitResult struct {
	Spec        *spec.ModelSpec
	Params      []string
	Draws       [][]float64
	LogLik      [][]float64
	Diagnostics Diagnostics
	Status      string
	Reason      string
	Message     string
	Elapsed     time.Duration
}

// Failure builds a Failed result for the given spec.
func Failure(sp *spec.ModelSpec, reason string, message string) *FitResult {
	return &FitResult{
		Spec:    sp,
		Status:  Failed,
		Reason:  reason,
		Message: message,
	}
}

// OK returns true for a successful fit.
func (r *FitResult) OK() bool {
	return r.Status == Success
}

// Retryable returns true if a fresh request for the same spec is allowed
// to try again (timeouts and cancellations only).
func (r *FitResult) Retryable() bool {
	return r.Status == Failed && (r.Reason == ReasonTimeout || r.Reason == ReasonCanceled)
}

// NumObs returns the number of observations covered by the log-likelihood
// matrix (0 for failed fits).
func (r *FitResult) NumObs() int {
	if len(r.LogLik) < 1 {
		return 0
	}
	return len(r.LogLik[0])
}

// Check returns an error if there is a problem with the result's shape.
func (r *FitResult) Check() error {
	if r.Status == Failed {
		if len(r.Reason) < 1 {
			return errors.New("Failed fit has no reason")
		}
		return nil
	}
	if r.Status != Success {
		return errors.Errorf("Unknown fit status %q", r.Status)
	}

	if len(r.Draws) < 1 {
		return errors.New("Successful fit has no draws")
	}
	if len(r.Draws) != len(r.LogLik) {
		return errors.Errorf("Draw count %d != log-lik row count %d", len(r.Draws), len(r.LogLik))
	}

	p := len(r.Params)
	for _, d := range r.Draws {
		if len(d) != p {
			return errors.Errorf("Draw has %d values for %d parameters", len(d), p)
		}
	}

	n := len(r.LogLik[0])
	for _, row := range r.LogLik {
		if len(row) != n {
			return errors.Errorf("Ragged log-lik matrix: %d != %d", len(row), n)
		}
	}

	return nil
}

// ParamIndex returns the column index for a named parameter.
func (r *FitResult) ParamIndex(name string) (int, error) {
	for i, p := range r.Params {
		if p == name {
			return i, nil
		}
	}
	return -1, errors.Errorf("Fit has no parameter %q", name)
}

// ParamDraws returns the pooled draw column for a named parameter.
func (r *FitResult) ParamDraws(name string) ([]float64, error) {
	idx, err := r.ParamIndex(name)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(r.Draws))
	for i, d := range r.Draws {
		out[i] = d[idx]
	}
	return out, nil
}
