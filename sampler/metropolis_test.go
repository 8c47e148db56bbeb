package sampler

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/bayescmp/data"
	"github.com/CraigKelly/bayescmp/rand"
	"github.com/CraigKelly/bayescmp/spec"
)

// lineTable builds y = x + noise with a fixed noise stream
func lineTable(t *testing.T) *data.Table {
	t.Helper()

	gen, err := rand.NewGenerator(7)
	if err != nil {
		t.Fatalf("Generator failed: %v", err)
	}

	const n = 30
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i) / 3.0
		y[i] = x[i] + gen.NormFloat64()
	}

	return &data.Table{
		Name: "line",
		Columns: []data.Column{
			{Name: "y", Type: data.Continuous},
			{Name: "x", Type: data.Continuous},
		},
		Values: map[string][]float64{"y": y, "x": x},
	}
}

func lineSpec(t *testing.T, tbl *data.Table, cfg spec.SamplerConfig) *spec.ModelSpec {
	t.Helper()

	sp, err := spec.Build("y ~ x", tbl.Describe(), spec.Gaussian, nil, cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return sp
}

func TestMetropolisFitShape(t *testing.T) {
	assert := assert.New(t)

	tbl := lineTable(t)
	sp := lineSpec(t, tbl, spec.SamplerConfig{Chains: 2, Iter: 2000, Warmup: 1000, Seed: 42, AdaptDelta: 0.5, Cores: 2})

	eng := NewMetropolis(data.MapSource{"line": tbl})
	fit, err := eng.Fit(context.Background(), sp)
	assert.NoError(err)
	assert.True(fit.OK(), "Fit failed: %s %s", fit.Reason, fit.Message)
	assert.NoError(fit.Check())

	assert.Equal([]string{"Intercept", "x", "sigma"}, fit.Params)
	assert.Equal(2*1000, len(fit.Draws))
	assert.Equal(2*1000, len(fit.LogLik))
	assert.Equal(30, fit.NumObs())
	assert.Equal(3, len(fit.Diagnostics.ESS))
	assert.True(fit.Elapsed > 0)

	for _, d := range fit.Draws {
		for _, v := range d {
			assert.False(math.IsNaN(v) || math.IsInf(v, 0))
		}
		assert.True(d[2] > 0.0, "sigma draws must be positive")
	}

	// Loose recovery check: truth is intercept 0, slope 1, sigma 1
	slope, err := fit.ParamDraws("x")
	assert.NoError(err)
	m := 0.0
	for _, v := range slope {
		m += v
	}
	m /= float64(len(slope))
	assert.InDelta(1.0, m, 0.75)

	sigma, err := fit.ParamDraws("sigma")
	assert.NoError(err)
	sm := 0.0
	for _, v := range sigma {
		sm += v
	}
	sm /= float64(len(sigma))
	assert.True(sm > 0.3 && sm < 3.0, "sigma mean %v is implausible", sm)
}

// Same spec, same draws - the whole point of seeded chains
func TestMetropolisReproducible(t *testing.T) {
	assert := assert.New(t)

	tbl := lineTable(t)
	cfg := spec.SamplerConfig{Chains: 1, Iter: 200, Warmup: 100, Seed: 42, AdaptDelta: 0.5, Cores: 1}
	sp := lineSpec(t, tbl, cfg)

	eng := NewMetropolis(data.MapSource{"line": tbl})
	f1, err := eng.Fit(context.Background(), sp)
	assert.NoError(err)
	f2, err := eng.Fit(context.Background(), sp)
	assert.NoError(err)

	assert.Equal(f1.Draws, f2.Draws)

	// A different seed gives a different stream
	cfg.Seed = 43
	f3, err := eng.Fit(context.Background(), lineSpec(t, tbl, cfg))
	assert.NoError(err)
	assert.NotEqual(f1.Draws, f3.Draws)
}

func TestMetropolisUnsupported(t *testing.T) {
	assert := assert.New(t)

	tbl := lineTable(t)
	eng := NewMetropolis(data.MapSource{"line": tbl})

	// Multilevel terms are out of the builtin engine's reach
	d := tbl.Describe()
	d.Columns = append(d.Columns, data.Column{Name: "g", Type: data.Categorical})
	sp, err := spec.Build("y ~ x + (1|g)", d, spec.Gaussian, nil,
		spec.SamplerConfig{Chains: 1, Iter: 100, Warmup: 10, Seed: 1})
	assert.NoError(err)

	fit, err := eng.Fit(context.Background(), sp)
	assert.NoError(err)
	assert.False(fit.OK())
	assert.Equal(ReasonUnsupported, fit.Reason)
	assert.False(fit.Retryable())
}

func TestMetropolisDataProblems(t *testing.T) {
	assert := assert.New(t)

	tbl := lineTable(t)
	cfg := spec.SamplerConfig{Chains: 1, Iter: 100, Warmup: 10, Seed: 1}

	// Unknown data ref
	eng := NewMetropolis(data.MapSource{})
	fit, err := eng.Fit(context.Background(), lineSpec(t, tbl, cfg))
	assert.NoError(err)
	assert.False(fit.OK())
	assert.Equal(ReasonSampler, fit.Reason)

	// Data changed since the spec was built
	sp := lineSpec(t, tbl, cfg)
	tbl.Values["y"][0] += 100.0
	eng = NewMetropolis(data.MapSource{"line": tbl})
	fit, err = eng.Fit(context.Background(), sp)
	assert.NoError(err)
	assert.False(fit.OK())
	assert.Equal(ReasonSampler, fit.Reason)
}

func TestMetropolisCancellation(t *testing.T) {
	assert := assert.New(t)

	tbl := lineTable(t)
	sp := lineSpec(t, tbl, spec.SamplerConfig{Chains: 1, Iter: 100000, Warmup: 1000, Seed: 1})
	eng := NewMetropolis(data.MapSource{"line": tbl})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fit, err := eng.Fit(ctx, sp)
	assert.NoError(err)
	assert.False(fit.OK())
	assert.Equal(ReasonCanceled, fit.Reason)
	assert.True(fit.Retryable())

	tctx, tcancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer tcancel()
	fit, err = eng.Fit(tctx, sp)
	assert.NoError(err)
	assert.False(fit.OK())
	assert.Equal(ReasonTimeout, fit.Reason)
	assert.True(fit.Retryable())
}
