package sampler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/bayescmp/buffer"
	"github.com/CraigKelly/bayescmp/data"
	"github.com/CraigKelly/bayescmp/rand"
	"github.com/CraigKelly/bayescmp/spec"
)

// Metropolis is the built-in demonstration engine: random-walk Metropolis
// over (beta, log sigma) for gaussian linear models. It exists so the whole
// pipeline runs without an external sampler installed; it is NOT a general
// engine and reports model structures it cannot handle as Failed fits
// (multilevel terms, non-gaussian families).
//
// Chain c is seeded with Seed+c, chains run concurrently bounded by Cores,
// and warmup adapts the proposal scale toward the AdaptDelta target
// acceptance rate using a windowed acceptance history.
type Metropolis struct {
	Source          data.Source
	CheckpointEvery int // iterations between cancellation checks
}

// NewMetropolis creates an engine reading data from the given source.
func NewMetropolis(src data.Source) *Metropolis {
	return &Metropolis{
		Source:          src,
		CheckpointEvery: 128,
	}
}

// Fit implements Adapter.
func (m *Metropolis) Fit(ctx context.Context, sp *spec.ModelSpec) (*FitResult, error) {
	start := time.Now()

	if sp.Family != spec.Gaussian {
		return Failure(sp, ReasonUnsupported, fmt.Sprintf("builtin engine only fits gaussian models, not %s", sp.Family)), nil
	}
	if len(sp.Formula.Groups) > 0 {
		return Failure(sp, ReasonUnsupported, "builtin engine does not fit multilevel terms"), nil
	}

	tbl, err := m.Source.Resolve(sp.DataName)
	if err != nil {
		return Failure(sp, ReasonSampler, fmt.Sprintf("resolve data: %v", err)), nil
	}
	if fp := tbl.Fingerprint(); fp != sp.DataFingerprint {
		return Failure(sp, ReasonSampler, fmt.Sprintf("data %s fingerprint changed since spec was built", sp.DataName)), nil
	}

	des, err := newDesign(sp.Formula, tbl)
	if err != nil {
		return Failure(sp, ReasonSampler, fmt.Sprintf("build design: %v", err)), nil
	}
	if des.rows() != sp.Rows {
		return Failure(sp, ReasonSampler, fmt.Sprintf("data has %d rows, spec declared %d", des.rows(), sp.Rows)), nil
	}

	// One goroutine per chain, admission bounded by the Cores hint
	cfg := sp.Config
	runs := make([]*chainRun, cfg.Chains)
	errs := make([]error, cfg.Chains)
	slots := make(chan struct{}, cfg.Cores)

	var wg sync.WaitGroup
	for c := 0; c < cfg.Chains; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()
			runs[c], errs[c] = m.runChain(ctx, sp, des, cfg.Seed+int64(c))
		}(c)
	}
	wg.Wait()

	for _, e := range errs {
		if e == nil {
			continue
		}
		switch {
		case errors.Is(e, context.DeadlineExceeded):
			return Failure(sp, ReasonTimeout, "fit exceeded its deadline"), nil
		case errors.Is(e, context.Canceled):
			return Failure(sp, ReasonCanceled, "fit was canceled"), nil
		default:
			return Failure(sp, ReasonSampler, e.Error()), nil
		}
	}

	// Pool chains in chain order
	params := append(append([]string{}, des.names...), spec.ClassSigma)
	res := &FitResult{
		Spec:    sp,
		Params:  params,
		Status:  Success,
		Elapsed: time.Since(start),
	}

	accepts, total := 0, 0
	for _, run := range runs {
		res.Draws = append(res.Draws, run.draws...)
		res.LogLik = append(res.LogLik, run.loglik...)
		res.Diagnostics.Divergences += run.divergences
		accepts += run.accepts
		total += run.total
	}
	if total > 0 {
		res.Diagnostics.AcceptRate = float64(accepts) / float64(total)
	}

	res.Diagnostics.ESS = make(map[string]float64, len(params))
	for j, p := range params {
		col := make([]float64, len(res.Draws))
		for i, d := range res.Draws {
			col[i] = d[j]
		}
		res.Diagnostics.ESS[p] = EffectiveSampleSize(col)
	}

	if res.Diagnostics.Divergences > 0 {
		res.Diagnostics.Warnings = append(res.Diagnostics.Warnings,
			fmt.Sprintf("%d divergent proposals - treat estimates with suspicion", res.Diagnostics.Divergences))
	}
	if res.Diagnostics.AcceptRate < 0.1 {
		res.Diagnostics.Warnings = append(res.Diagnostics.Warnings,
			fmt.Sprintf("acceptance rate %.3f is very low - chains may be poorly mixed", res.Diagnostics.AcceptRate))
	}

	return res, nil
}

// chainRun is the raw output of a single chain.
type chainRun struct {
	draws       [][]float64
	loglik      [][]float64
	divergences int
	accepts     int
	total       int
}

// runChain executes one full chain: warmup with step adaptation, then
// sample retention. Cancellation is cooperative - the context is checked
// every CheckpointEvery iterations, never mid-iteration.
func (m *Metropolis) runChain(ctx context.Context, sp *spec.ModelSpec, des *design, seed int64) (*chainRun, error) {
	gen, err := rand.NewGenerator(seed)
	if err != nil {
		return nil, errors.Wrap(err, "Could not seed chain")
	}

	cfg := sp.Config
	nb := len(des.names)
	dim := nb + 1 // betas plus log sigma

	theta := make([]float64, dim)
	cur := logPosterior(sp, des, theta)

	step := 0.5
	window := buffer.NewCircularInt(50)

	ckpt := m.CheckpointEvery
	if ckpt < 1 {
		ckpt = 128
	}

	retain := cfg.Iter - cfg.Warmup
	run := &chainRun{
		draws:  make([][]float64, 0, retain),
		loglik: make([][]float64, 0, retain),
	}

	prop := make([]float64, dim)
	for it := 0; it < cfg.Iter; it++ {
		if it%ckpt == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for j := range prop {
			prop[j] = theta[j] + step*gen.NormFloat64()
		}

		accepted := false
		lp := logPosterior(sp, des, prop)
		if math.IsNaN(lp) {
			run.divergences++
		} else if lp >= cur || math.Log(gen.UnitOpen()) < lp-cur {
			copy(theta, prop)
			cur = lp
			accepted = true
		}

		warmup := it < cfg.Warmup
		if warmup {
			// Nudge the proposal scale toward the target acceptance rate
			if accepted {
				window.Add(1)
			} else {
				window.Add(0)
			}
			if window.Full() && (it+1)%25 == 0 {
				rate := window.Mean()
				if rate < cfg.AdaptDelta-0.05 {
					step *= 0.9
				} else if rate > cfg.AdaptDelta+0.05 {
					step *= 1.1
				}
			}
			continue
		}

		run.total++
		if accepted {
			run.accepts++
		}

		draw := make([]float64, dim)
		copy(draw, theta[:nb])
		sigma := math.Exp(theta[nb])
		draw[nb] = sigma
		run.draws = append(run.draws, draw)
		run.loglik = append(run.loglik, logLikRow(des, draw[:nb], sigma))
	}

	return run, nil
}

const logSqrt2Pi = 0.9189385332046727 // log(sqrt(2*pi))

// logLikRow returns the per-observation gaussian log-likelihood for one
// parameter vector.
func logLikRow(des *design, beta []float64, sigma float64) []float64 {
	out := make([]float64, des.rows())
	for i := range out {
		z := (des.y[i] - des.predict(i, beta)) / sigma
		out[i] = -logSqrt2Pi - math.Log(sigma) - 0.5*z*z
	}
	return out
}

// logPosterior evaluates the unnormalized log posterior at theta =
// (beta..., log sigma), including the log-sigma Jacobian so the walk is in
// unconstrained space. Returns NaN for numerically hopeless points, which
// the chain loop counts as divergences.
func logPosterior(sp *spec.ModelSpec, des *design, theta []float64) float64 {
	nb := len(des.names)
	beta := theta[:nb]
	logSigma := theta[nb]
	if logSigma > 200 || logSigma < -200 {
		return math.NaN()
	}
	sigma := math.Exp(logSigma)

	lp := 0.0
	for _, v := range logLikRow(des, beta, sigma) {
		lp += v
	}

	for j, name := range des.names {
		class, coef := spec.ClassB, name
		if name == spec.ClassIntercept {
			class, coef = spec.ClassIntercept, ""
		}
		d, ok := spec.PriorFor(sp.Priors, class, coef)
		if !ok {
			continue // class absent means flat
		}
		lp += logPriorDensity(d, beta[j])
	}

	if d, ok := spec.PriorFor(sp.Priors, spec.ClassSigma, ""); ok {
		lp += logPriorDensity(d, sigma) + logSigma
	}

	if math.IsInf(lp, -1) {
		return math.NaN()
	}
	return lp
}

// logPriorDensity evaluates the log density of a prior declaration at x.
func logPriorDensity(d spec.Dist, x float64) float64 {
	switch d.Name {
	case "normal":
		mu, sd := d.Args[0], d.Args[1]
		z := (x - mu) / sd
		return -logSqrt2Pi - math.Log(sd) - 0.5*z*z
	case "student_t":
		nu, mu, sd := d.Args[0], d.Args[1], d.Args[2]
		z := (x - mu) / sd
		lg1, _ := math.Lgamma((nu + 1) / 2)
		lg2, _ := math.Lgamma(nu / 2)
		return lg1 - lg2 - 0.5*math.Log(nu*math.Pi) - math.Log(sd) -
			(nu+1)/2*math.Log(1+z*z/nu)
	case "cauchy":
		mu, sd := d.Args[0], d.Args[1]
		z := (x - mu) / sd
		return -math.Log(math.Pi*sd) - math.Log(1+z*z)
	case "exponential":
		rate := d.Args[0]
		if x < 0 {
			return math.Inf(-1)
		}
		return math.Log(rate) - rate*x
	case "flat":
		return 0.0
	}
	return 0.0
}
