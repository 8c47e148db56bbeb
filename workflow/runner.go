package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/CraigKelly/bayescmp/cache"
	"github.com/CraigKelly/bayescmp/compare"
	"github.com/CraigKelly/bayescmp/data"
	"github.com/CraigKelly/bayescmp/diag"
	"github.com/CraigKelly/bayescmp/sampler"
	"github.com/CraigKelly/bayescmp/spec"
	"github.com/CraigKelly/bayescmp/store"
)

// A Runner executes plans: every model is fit through the cache (so
// identical specs never re-sample), successful fits are summarized, and the
// requested comparison runs over the batch. Archive is optional.
type Runner struct {
	Cache   *cache.Cache
	Adapter sampler.Adapter
	Archive *store.Store
	Log     *slog.Logger
}

// A ModelReport is the per-model slice of a run report.
type ModelReport struct {
	Name    string
	Key     spec.CacheKey
	Fit     *sampler.FitResult
	Summary *diag.Summary
}

// A Report is everything one plan execution produced.
type Report struct {
	RunID      string
	Plan       string
	Started    time.Time
	Finished   time.Time
	Models     []ModelReport
	Comparison *compare.Result
	CacheStats cache.Stats
}

// Run executes the plan against the given descriptor. Fits fan out
// concurrently; the cache's admission limit is the real throttle. A failed
// fit does not abort the batch - it is reported, and only the comparison
// step refuses to proceed past it.
func (r *Runner) Run(ctx context.Context, p *Plan, d *data.Descriptor) (*Report, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	specs, err := p.Specs(d)
	if err != nil {
		return nil, errors.Wrapf(err, "Plan %s failed validation", p.Name)
	}

	rep := &Report{
		RunID:   uuid.NewString(),
		Plan:    p.Name,
		Started: time.Now(),
		Models:  make([]ModelReport, len(specs)),
	}
	log.Info("starting run", "run_id", rep.RunID, "plan", p.Name, "models", len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, sp := range specs {
		i, sp := i, sp
		rep.Models[i] = ModelReport{Name: p.Models[i].Name, Key: sp.Key()}

		g.Go(func() error {
			fit, err := r.Cache.GetOrFit(gctx, sp, r.Adapter.Fit)
			if err != nil {
				return errors.Wrapf(err, "Model %s", p.Models[i].Name)
			}
			rep.Models[i].Fit = fit

			if fit.OK() {
				sum, err := diag.Summarize(fit, diag.Options{})
				if err != nil {
					return errors.Wrapf(err, "Model %s summary", p.Models[i].Name)
				}
				rep.Models[i].Summary = sum
				log.Info("model fit", "run_id", rep.RunID, "model", p.Models[i].Name,
					"divergences", fit.Diagnostics.Divergences, "unreliable", sum.Unreliable)
			} else {
				log.Warn("model failed", "run_id", rep.RunID, "model", p.Models[i].Name,
					"reason", fit.Reason, "message", fit.Message)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(p.Compare.Metric) > 0 {
		fits := make([]*sampler.FitResult, len(rep.Models))
		names := make([]string, len(rep.Models))
		for i, m := range rep.Models {
			fits[i] = m.Fit
			names[i] = m.Name
		}

		cmp, err := compare.Compare(fits, names, p.Compare.Metric)
		if err != nil {
			return nil, errors.Wrapf(err, "Plan %s comparison", p.Name)
		}
		rep.Comparison = cmp
		if cmp.Pairwise != nil {
			log.Info("comparison", "run_id", rep.RunID, "metric", cmp.Metric,
				"difference", cmp.Pairwise.Value, "se", cmp.Pairwise.SE)
		}
	}

	rep.Finished = time.Now()
	rep.CacheStats = r.Cache.Stats()

	if r.Archive != nil {
		fits := make(map[string]*sampler.FitResult, len(rep.Models))
		for _, m := range rep.Models {
			fits[m.Name] = m.Fit
		}
		run := &store.Run{
			RunID:      rep.RunID,
			PlanName:   rep.Plan,
			StartedAt:  rep.Started,
			FinishedAt: rep.Finished,
		}
		if err := r.Archive.RecordRun(run, fits); err != nil {
			return nil, errors.Wrapf(err, "Plan %s archive", p.Name)
		}
	}

	return rep, nil
}
