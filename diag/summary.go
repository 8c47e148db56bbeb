// Package diag derives deterministic posterior summaries from fit results:
// per-parameter location, spread, credible intervals, and reliability
// flags. Everything here is a pure function of already-materialized draws.
package diag

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayescmp/sampler"
)

// DefaultESSThreshold is the effective-sample-size floor below which a
// parameter is flagged unreliable.
const DefaultESSThreshold = 400.0

// DefaultCoverage is the default credible interval coverage.
const DefaultCoverage = 0.95

// Options control summary extraction. The zero value gets the defaults.
type Options struct {
	Coverage     float64
	ESSThreshold float64
}

// A ParamSummary is the posterior summary for one model parameter.
// Unreliable is set when the effective sample size falls below the
// threshold or the fit reported any divergences - consumers are expected to
// refuse to trust flagged values.
type ParamSummary struct {
	Name       string
	Mean       float64
	SD         float64
	Lower      float64
	Upper      float64
	ESS        float64
	Unreliable bool
}

// A Summary is the full diagnostic extract for one fit.
type Summary struct {
	Params       []ParamSummary
	Coverage     float64
	ESSThreshold float64
	Divergences  int
	Warnings     []string
	Unreliable   bool
}

// Summarize computes the posterior summary for a successful fit.
func Summarize(fit *sampler.FitResult, opts Options) (*Summary, error) {
	if fit == nil {
		return nil, errors.New("No fit supplied")
	}
	if !fit.OK() {
		return nil, errors.Errorf("Cannot summarize a failed fit (%s: %s)", fit.Reason, fit.Message)
	}
	if err := fit.Check(); err != nil {
		return nil, errors.Wrap(err, "Fit is malformed")
	}

	if opts.Coverage == 0.0 {
		opts.Coverage = DefaultCoverage
	}
	if opts.Coverage <= 0.0 || opts.Coverage >= 1.0 {
		return nil, errors.Errorf("Coverage %g must be in (0, 1)", opts.Coverage)
	}
	if opts.ESSThreshold == 0.0 {
		opts.ESSThreshold = DefaultESSThreshold
	}

	s := &Summary{
		Coverage:     opts.Coverage,
		ESSThreshold: opts.ESSThreshold,
		Divergences:  fit.Diagnostics.Divergences,
		Warnings:     append([]string{}, fit.Diagnostics.Warnings...),
	}

	alpha := (1.0 - opts.Coverage) / 2.0
	for _, name := range fit.Params {
		col, err := fit.ParamDraws(name)
		if err != nil {
			return nil, err
		}

		ess, ok := fit.Diagnostics.ESS[name]
		if !ok {
			// Engine did not report ESS for this parameter - compute it
			ess = sampler.EffectiveSampleSize(col)
		}

		ps := ParamSummary{
			Name:       name,
			Mean:       mean(col),
			SD:         stddev(col),
			Lower:      quantile(col, alpha),
			Upper:      quantile(col, 1.0-alpha),
			ESS:        ess,
			Unreliable: ess < opts.ESSThreshold || fit.Diagnostics.Divergences > 0,
		}
		if ps.Unreliable {
			s.Unreliable = true
		}
		s.Params = append(s.Params, ps)
	}

	return s, nil
}

// Param returns the summary for a named parameter.
func (s *Summary) Param(name string) (*ParamSummary, error) {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i], nil
		}
	}
	return nil, errors.Errorf("Summary has no parameter %q", name)
}

func mean(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func stddev(x []float64) float64 {
	if len(x) < 2 {
		return 0.0
	}
	m := mean(x)
	ss := 0.0
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

// quantile is the linear-interpolation (type 7) empirical quantile.
func quantile(x []float64, p float64) float64 {
	s := append([]float64{}, x...)
	sort.Float64s(s)

	if len(s) == 1 {
		return s[0]
	}

	h := p * float64(len(s)-1)
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= len(s) {
		return s[len(s)-1]
	}
	return s[lo] + (h-float64(lo))*(s[hi]-s[lo])
}
