package workflow

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/bayescmp/cache"
	"github.com/CraigKelly/bayescmp/sampler"
	"github.com/CraigKelly/bayescmp/spec"
)

// whitesidePlan is a small version of the classic before/after insulation
// study: gas consumption against outside temperature, two insulation levels.
var whitesidePlan = []byte(`
name: insulation-study
data:
  name: whiteside
  columns:
    - name: Gas
      type: continuous
      values: [7.2, 6.9, 6.4, 6.0, 5.8, 4.7, 4.9, 4.0]
    - name: Temp
      type: continuous
      values: [-0.8, 0.4, 2.5, 3.7, 4.8, 6.0, 7.5, 8.9]
    - name: Insul
      type: binary
      levels: [Before, After]
      values: [0, 0, 0, 0, 1, 1, 1, 1]
sampler:
  chains: 4
  iter: 2500
  warmup: 1000
  seed: 101011
  cores: 2
models:
  - name: interaction
    formula: "Gas ~ Temp*Insul"
    family: gaussian
  - name: additive
    formula: "Gas ~ Temp + Insul"
    family: gaussian
compare:
  metric: waic
`)

func TestPlanParse(t *testing.T) {
	assert := assert.New(t)

	p, err := Parse(whitesidePlan)
	assert.NoError(err)
	assert.Equal("insulation-study", p.Name)
	assert.Equal(2, len(p.Models))
	assert.Equal("waic", p.Compare.Metric)
	assert.Equal(int64(101011), p.Sampler.Seed)

	bad := [][]byte{
		[]byte("models: [{name: m, formula: 'y ~ x'}]"),
		[]byte("name: p"),
		[]byte("name: p\nmodels: [{formula: 'y ~ x'}]"),
		[]byte("name: p\nmodels: [{name: m}, {name: m}]"),
		[]byte(":::not yaml"),
	}
	for i, raw := range bad {
		_, err := Parse(raw)
		assert.Error(err, "Bad plan %d should not parse", i)
	}
}

func TestPlanTable(t *testing.T) {
	assert := assert.New(t)

	p, err := Parse(whitesidePlan)
	assert.NoError(err)

	tbl, err := p.Table()
	assert.NoError(err)
	assert.Equal("whiteside", tbl.Name)
	assert.Equal(8, tbl.Rows())
	assert.Equal([]string{"Before", "After"}, tbl.Levels["Insul"])
}

func TestPlanSpecs(t *testing.T) {
	assert := assert.New(t)

	p, err := Parse(whitesidePlan)
	assert.NoError(err)
	tbl, err := p.Table()
	assert.NoError(err)

	specs, err := p.Specs(tbl.Describe())
	assert.NoError(err)
	assert.Equal(2, len(specs))

	assert.Equal("Gas ~ 1 + Insul + Temp + Insul:Temp", specs[0].Formula.Canonical())
	assert.Equal("Gas ~ 1 + Insul + Temp", specs[1].Formula.Canonical())
	assert.NotEqual(specs[0].Key(), specs[1].Key())
	assert.Equal(int64(101011), specs[0].Config.Seed)
	assert.Equal(4, specs[0].Config.Chains)
}

// countingAdapter returns deterministic successful fits and counts how many
// times the sampler was actually invoked.
func countingAdapter(calls *int64) sampler.AdapterFunc {
	return func(ctx context.Context, sp *spec.ModelSpec) (*sampler.FitResult, error) {
		atomic.AddInt64(calls, 1)

		const s = 16
		draws := make([][]float64, s)
		loglik := make([][]float64, s)
		for d := 0; d < s; d++ {
			draws[d] = []float64{float64(d) * 0.1}
			row := make([]float64, sp.Rows)
			for i := range row {
				row[i] = -1.0 - 0.01*float64(d)
			}
			loglik[d] = row
		}

		return &sampler.FitResult{
			Spec:        sp,
			Params:      []string{"b"},
			Draws:       draws,
			LogLik:      loglik,
			Diagnostics: sampler.Diagnostics{ESS: map[string]float64{"b": 900.0}},
			Status:      sampler.Success,
		}, nil
	}
}

// The full pipeline: plan in, two fits out, one pairwise WAIC difference.
// Re-running the identical plan must come entirely from the cache.
func TestRunnerEndToEnd(t *testing.T) {
	assert := assert.New(t)

	p, err := Parse(whitesidePlan)
	assert.NoError(err)
	tbl, err := p.Table()
	assert.NoError(err)

	var calls int64
	r := &Runner{
		Cache:   cache.New(2, 0),
		Adapter: countingAdapter(&calls),
	}

	rep, err := r.Run(context.Background(), p, tbl.Describe())
	assert.NoError(err)
	assert.NotEmpty(rep.RunID)
	assert.Equal("insulation-study", rep.Plan)
	assert.Equal(2, len(rep.Models))
	assert.Equal(int64(2), atomic.LoadInt64(&calls))

	for _, m := range rep.Models {
		assert.NotEmpty(m.Key)
		assert.True(m.Fit.OK())
		assert.NotNil(m.Summary)
	}
	assert.NotEqual(rep.Models[0].Key, rep.Models[1].Key)

	assert.NotNil(rep.Comparison)
	assert.Equal("waic", rep.Comparison.Metric)
	assert.Equal(2, len(rep.Comparison.PerModel))
	assert.NotNil(rep.Comparison.Pairwise)
	assert.True(rep.Comparison.Pairwise.SE >= 0.0)
	assert.False(rep.Finished.Before(rep.Started))

	// Identical plan again: same keys, zero new sampler invocations
	rep2, err := r.Run(context.Background(), p, tbl.Describe())
	assert.NoError(err)
	assert.Equal(int64(2), atomic.LoadInt64(&calls))
	assert.NotEqual(rep.RunID, rep2.RunID)
	assert.Equal(rep.Models[0].Key, rep2.Models[0].Key)
	assert.Equal(int64(2), rep2.CacheStats.Hits)
	assert.Equal(int64(2), rep2.CacheStats.Fits)
}

// A failed fit is reported per-model but sinks the comparison step.
func TestRunnerFailedFitBlocksComparison(t *testing.T) {
	assert := assert.New(t)

	p, err := Parse(whitesidePlan)
	assert.NoError(err)
	tbl, err := p.Table()
	assert.NoError(err)

	// Fail exactly one model, whichever the scheduler runs second
	failSecond := func() sampler.AdapterFunc {
		var n int64
		return func(ctx context.Context, sp *spec.ModelSpec) (*sampler.FitResult, error) {
			if atomic.AddInt64(&n, 1) > 1 {
				return sampler.Failure(sp, sampler.ReasonSampler, "chain exploded"), nil
			}
			return countingAdapter(new(int64))(ctx, sp)
		}
	}

	r := &Runner{Cache: cache.New(1, 0), Adapter: failSecond()}
	_, err = r.Run(context.Background(), p, tbl.Describe())
	assert.Error(err)

	// Fit-only plans tolerate the failure
	p.Compare.Metric = ""
	r = &Runner{Cache: cache.New(1, 0), Adapter: failSecond()}
	rep, err := r.Run(context.Background(), p, tbl.Describe())
	assert.NoError(err)
	failed := 0
	for _, m := range rep.Models {
		if !m.Fit.OK() {
			failed++
			assert.Nil(m.Summary)
		}
	}
	assert.Equal(1, failed)
}
