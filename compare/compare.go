// Package compare implements model comparison over already-materialized
// fit results: information criteria (WAIC, LOO-IC) from per-observation
// log-likelihoods, and Bayes factors from marginal-likelihood estimates.
// Nothing here samples or touches data - it is a pure function of fits.
package compare

import (
	"github.com/pkg/errors"

	"github.com/CraigKelly/bayescmp/diag"
	"github.com/CraigKelly/bayescmp/sampler"
)

// Metric constant strings
const (
	WAIC        = "waic"
	LOOIC       = "looic"
	BayesFactor = "bayes-factor"
)

// ErrIncompleteInputs rejects a comparison that includes a failed fit.
// Silently excluding it would produce a misleading comparison, so the whole
// request fails instead.
var ErrIncompleteInputs = errors.New("comparison inputs include a failed or missing fit")

// ErrIncompatibleData rejects a comparison across different observation
// sets. Information criteria are pointwise sums - they are only comparable
// over identical observations in identical order.
var ErrIncompatibleData = errors.New("comparison inputs cover different observations")

// An Estimate is one model's value under a metric, with its standard error.
// Unreliable propagates the fit's sampling-health flags so a consumer can
// refuse to rank on a flagged value.
type Estimate struct {
	Value      float64
	SE         float64
	Unreliable bool
}

// A PairDiff is the pairwise difference (first listed model minus second)
// with the standard error of the difference. For information criteria the
// SE comes from the pointwise differences, which is tighter than combining
// the per-model SEs.
type PairDiff struct {
	Value float64
	SE    float64
}

// A Result is the outcome of comparing N models under one metric. PerModel
// is keyed by model name; Order preserves the request order. Pairwise is
// only set for the two-model case.
type Result struct {
	Metric   string
	Order    []string
	PerModel map[string]Estimate
	Pairwise *PairDiff
}

// Compare computes the requested metric over two or more fits. names give
// the model identifiers for the result, parallel to fits.
func Compare(fits []*sampler.FitResult, names []string, metric string) (*Result, error) {
	if err := checkInputs(fits, names); err != nil {
		return nil, err
	}

	switch metric {
	case WAIC:
		return pointwiseCompare(fits, names, WAIC, waicPointwise)
	case LOOIC:
		return pointwiseCompare(fits, names, LOOIC, looPointwise)
	case BayesFactor:
		return bayesFactorCompare(fits, names)
	}
	return nil, errors.Errorf("Unknown comparison metric %q", metric)
}

// checkInputs enforces the comparison preconditions: at least two named
// fits, all Success, all over the same observations.
func checkInputs(fits []*sampler.FitResult, names []string) error {
	if len(fits) < 2 {
		return errors.Errorf("Need at least 2 fits to compare, have %d", len(fits))
	}
	if len(names) != len(fits) {
		return errors.Errorf("Have %d names for %d fits", len(names), len(fits))
	}

	seen := make(map[string]bool)
	for i, n := range names {
		if len(n) < 1 {
			return errors.Errorf("Model %d has no name", i)
		}
		if seen[n] {
			return errors.Errorf("Duplicate model name %q", n)
		}
		seen[n] = true
	}

	for i, f := range fits {
		if f == nil {
			return errors.Wrapf(ErrIncompleteInputs, "model %s is missing", names[i])
		}
		if !f.OK() {
			return errors.Wrapf(ErrIncompleteInputs, "model %s failed (%s: %s)", names[i], f.Reason, f.Message)
		}
		if err := f.Check(); err != nil {
			return errors.Wrapf(err, "Model %s is malformed", names[i])
		}
		if f.Spec == nil {
			return errors.Errorf("Model %s has no spec back-reference", names[i])
		}
	}

	n0 := fits[0].NumObs()
	fp0 := fits[0].Spec.DataFingerprint
	for i, f := range fits[1:] {
		if f.NumObs() != n0 {
			return errors.Wrapf(ErrIncompatibleData, "model %s has %d observations, model %s has %d",
				names[i+1], f.NumObs(), names[0], n0)
		}
		if f.Spec.DataFingerprint != fp0 {
			return errors.Wrapf(ErrIncompatibleData, "model %s was fit to different data than model %s",
				names[i+1], names[0])
		}
	}

	return nil
}

// unreliable mirrors the diagnostics extractor's flagging policy: nonzero
// divergences or any parameter ESS below the default threshold.
func unreliable(f *sampler.FitResult) bool {
	if f.Diagnostics.Divergences > 0 {
		return true
	}
	for _, ess := range f.Diagnostics.ESS {
		if ess < diag.DefaultESSThreshold {
			return true
		}
	}
	return false
}
