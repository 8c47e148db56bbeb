package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/bayescmp/data"
	"github.com/CraigKelly/bayescmp/sampler"
	"github.com/CraigKelly/bayescmp/spec"
)

func archiveSpec(t *testing.T) *spec.ModelSpec {
	t.Helper()

	d := &data.Descriptor{
		Name:        "toy",
		Fingerprint: "fp-archive",
		Rows:        4,
		Columns: []data.Column{
			{Name: "y", Type: data.Continuous},
			{Name: "x", Type: data.Continuous},
		},
	}
	sp, err := spec.Build("y ~ x", d, spec.Gaussian, nil,
		spec.SamplerConfig{Chains: 2, Iter: 100, Warmup: 50, Seed: 9})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return sp
}

func TestStoreRoundTrip(t *testing.T) {
	assert := assert.New(t)

	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	assert.NoError(err)
	defer s.Close()

	sp := archiveSpec(t)
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	ok := &sampler.FitResult{
		Spec:   sp,
		Params: []string{"b"},
		Draws:  [][]float64{{1.0}},
		LogLik: [][]float64{{-1.0, -1.0, -1.0, -1.0}},
		Diagnostics: sampler.Diagnostics{
			Divergences: 3,
			AcceptRate:  0.31,
		},
		Status:  sampler.Success,
		Elapsed: 1500 * time.Millisecond,
	}
	bad := sampler.Failure(sp, sampler.ReasonTimeout, "too slow")

	run := &Run{
		RunID:      "run-001",
		PlanName:   "insulation-study",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
	err = s.RecordRun(run, map[string]*sampler.FitResult{
		"additive":    ok,
		"interaction": bad,
	})
	assert.NoError(err)

	runs, err := s.Runs()
	assert.NoError(err)
	assert.Equal(1, len(runs))
	assert.Equal("run-001", runs[0].RunID)
	assert.Equal("insulation-study", runs[0].PlanName)
	assert.True(runs[0].FinishedAt.After(runs[0].StartedAt))

	fits, err := s.Fits("run-001")
	assert.NoError(err)
	assert.Equal(2, len(fits))

	// Ordered by model name
	assert.Equal("additive", fits[0].ModelName)
	assert.Equal(string(sp.Key()), fits[0].CacheKey)
	assert.Equal("y ~ 1 + x", fits[0].Formula)
	assert.Equal(spec.Gaussian, fits[0].Family)
	assert.Equal(sampler.Success, fits[0].Status)
	assert.Equal(3, fits[0].Divergences)
	assert.InDelta(0.31, fits[0].AcceptRate, 1e-9)
	assert.Equal(1500*time.Millisecond, fits[0].Elapsed)

	assert.Equal("interaction", fits[1].ModelName)
	assert.Equal(sampler.Failed, fits[1].Status)
	assert.Equal(sampler.ReasonTimeout, fits[1].Reason)
}

func TestStoreMultipleRuns(t *testing.T) {
	assert := assert.New(t)

	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	assert.NoError(err)
	defer s.Close()

	sp := archiveSpec(t)
	fit := sampler.Failure(sp, sampler.ReasonSampler, "boom")
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b"} {
		run := &Run{
			RunID:      id,
			PlanName:   "p",
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		assert.NoError(s.RecordRun(run, map[string]*sampler.FitResult{"m": fit}))
	}

	// Duplicate run IDs are rejected, not overwritten
	dup := &Run{RunID: "run-a", PlanName: "p", StartedAt: base, FinishedAt: base}
	assert.Error(s.RecordRun(dup, nil))

	runs, err := s.Runs()
	assert.NoError(err)
	assert.Equal(2, len(runs))
	assert.Equal("run-b", runs[0].RunID, "Most recent run first")

	fits, err := s.Fits("no-such-run")
	assert.NoError(err)
	assert.Equal(0, len(fits))
}
