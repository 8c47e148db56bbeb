package compare

import (
	"math"

	"github.com/CraigKelly/bayescmp/sampler"
)

// A pointwiseFunc computes the per-observation elpd contributions for one
// fit. Both information criteria share everything but this function.
type pointwiseFunc func(f *sampler.FitResult) []float64

// pointwiseCompare assembles a Result for an information criterion: the
// per-model value is -2 * sum(elpd_i) with SE 2*sqrt(n*var(elpd_i)), and
// for exactly two models the pairwise difference uses the pointwise elpd
// differences, which share observation-level noise and so give a tighter
// (and sign-antisymmetric) SE.
func pointwiseCompare(fits []*sampler.FitResult, names []string, metric string, fn pointwiseFunc) (*Result, error) {
	res := &Result{
		Metric:   metric,
		Order:    append([]string{}, names...),
		PerModel: make(map[string]Estimate, len(fits)),
	}

	elpds := make([][]float64, len(fits))
	for i, f := range fits {
		elpds[i] = fn(f)
		val, se := icScale(elpds[i])
		res.PerModel[names[i]] = Estimate{
			Value:      val,
			SE:         se,
			Unreliable: unreliable(f),
		}
	}

	if len(fits) == 2 {
		d := make([]float64, len(elpds[0]))
		for i := range d {
			d[i] = elpds[0][i] - elpds[1][i]
		}
		// elpd diff negated onto the IC scale: first minus second
		sum, v := sumVar(d)
		res.Pairwise = &PairDiff{
			Value: -2.0 * sum,
			SE:    2.0 * math.Sqrt(float64(len(d))*v),
		}
	}

	return res, nil
}

// icScale converts pointwise elpd to the deviance (IC) scale.
func icScale(elpd []float64) (value float64, se float64) {
	sum, v := sumVar(elpd)
	return -2.0 * sum, 2.0 * math.Sqrt(float64(len(elpd))*v)
}

// waicPointwise computes elpd_i = lppd_i - p_i where lppd_i is the log of
// the posterior-mean density for observation i and the penalty p_i is the
// posterior variance of its log density.
func waicPointwise(f *sampler.FitResult) []float64 {
	s := len(f.LogLik)
	n := f.NumObs()
	logS := math.Log(float64(s))

	out := make([]float64, n)
	col := make([]float64, s)
	for i := 0; i < n; i++ {
		for d := 0; d < s; d++ {
			col[d] = f.LogLik[d][i]
		}
		lppd := logSumExp(col) - logS
		_, pen := sumVar(col)
		out[i] = lppd - pen
	}
	return out
}

// looPointwise computes elpd_loo_i by truncated importance sampling: raw
// importance weights are 1/p(y_i|theta_d), truncated at sqrt(S) times the
// mean weight (Ionides 2008) to bound the estimator's variance. Pareto
// smoothing (PSIS) would be better behaved in the tails but is out of
// proportion here; the truncation point is the documented choice.
func looPointwise(f *sampler.FitResult) []float64 {
	s := len(f.LogLik)
	n := f.NumObs()
	logS := math.Log(float64(s))

	out := make([]float64, n)
	lw := make([]float64, s)
	lwl := make([]float64, s)
	for i := 0; i < n; i++ {
		for d := 0; d < s; d++ {
			lw[d] = -f.LogLik[d][i]
		}

		// Truncate log weights at log(mean w) + 0.5*log(S)
		bound := logSumExp(lw) - logS + 0.5*logS
		for d := range lw {
			if lw[d] > bound {
				lw[d] = bound
			}
			lwl[d] = lw[d] + f.LogLik[d][i]
		}

		out[i] = logSumExp(lwl) - logSumExp(lw)
	}
	return out
}

// logSumExp computes log(sum(exp(x))) without overflow.
func logSumExp(x []float64) float64 {
	max := math.Inf(-1)
	for _, v := range x {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return max
	}

	sum := 0.0
	for _, v := range x {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}

// sumVar returns the sum and the (n-1 denominator) variance of x.
func sumVar(x []float64) (sum float64, variance float64) {
	for _, v := range x {
		sum += v
	}
	if len(x) < 2 {
		return sum, 0.0
	}

	m := sum / float64(len(x))
	ss := 0.0
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	return sum, ss / float64(len(x)-1)
}
