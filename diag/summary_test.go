package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/bayescmp/sampler"
)

func testFit() *sampler.FitResult {
	return &sampler.FitResult{
		Params: []string{"a", "b"},
		Draws: [][]float64{
			{1.0, 10.0},
			{2.0, 10.0},
			{3.0, 10.0},
			{4.0, 10.0},
		},
		LogLik: [][]float64{
			{-1.0, -1.0},
			{-1.0, -1.0},
			{-1.0, -1.0},
			{-1.0, -1.0},
		},
		Diagnostics: sampler.Diagnostics{
			ESS: map[string]float64{"a": 500.0, "b": 500.0},
		},
		Status: sampler.Success,
	}
}

func TestSummarizeBasics(t *testing.T) {
	assert := assert.New(t)

	s, err := Summarize(testFit(), Options{})
	assert.NoError(err)
	assert.Equal(DefaultCoverage, s.Coverage)
	assert.Equal(DefaultESSThreshold, s.ESSThreshold)
	assert.Equal(2, len(s.Params))
	assert.False(s.Unreliable)

	a, err := s.Param("a")
	assert.NoError(err)
	assert.InDelta(2.5, a.Mean, 1e-12)
	assert.InDelta(1.2909944487, a.SD, 1e-9)
	// Type-7 quantiles over {1,2,3,4} at 2.5% / 97.5%
	assert.InDelta(1.075, a.Lower, 1e-9)
	assert.InDelta(3.925, a.Upper, 1e-9)
	assert.Equal(500.0, a.ESS)
	assert.False(a.Unreliable)

	b, err := s.Param("b")
	assert.NoError(err)
	assert.InDelta(10.0, b.Mean, 1e-12)
	assert.InDelta(0.0, b.SD, 1e-12)
	assert.InDelta(10.0, b.Lower, 1e-12)
	assert.InDelta(10.0, b.Upper, 1e-12)

	_, err = s.Param("missing")
	assert.Error(err)
}

func TestSummarizeCoverage(t *testing.T) {
	assert := assert.New(t)

	s, err := Summarize(testFit(), Options{Coverage: 0.5})
	assert.NoError(err)

	a, err := s.Param("a")
	assert.NoError(err)
	// 25% / 75% over {1,2,3,4}: h=0.75 -> 1.75, h=2.25 -> 3.25
	assert.InDelta(1.75, a.Lower, 1e-9)
	assert.InDelta(3.25, a.Upper, 1e-9)

	_, err = Summarize(testFit(), Options{Coverage: 1.5})
	assert.Error(err)
}

// Low ESS flags just that parameter; divergences flag everything
func TestSummarizeUnreliableFlags(t *testing.T) {
	assert := assert.New(t)

	fit := testFit()
	fit.Diagnostics.ESS["a"] = 100.0
	s, err := Summarize(fit, Options{})
	assert.NoError(err)

	a, _ := s.Param("a")
	b, _ := s.Param("b")
	assert.True(a.Unreliable)
	assert.False(b.Unreliable)
	assert.True(s.Unreliable)

	fit = testFit()
	fit.Diagnostics.Divergences = 3
	s, err = Summarize(fit, Options{})
	assert.NoError(err)
	for _, p := range s.Params {
		assert.True(p.Unreliable)
	}
	assert.Equal(3, s.Divergences)
}

// ESS is computed from draws when the engine did not report it
func TestSummarizeComputedESS(t *testing.T) {
	assert := assert.New(t)

	fit := testFit()
	fit.Diagnostics.ESS = nil
	s, err := Summarize(fit, Options{ESSThreshold: 1.0})
	assert.NoError(err)

	a, err := s.Param("a")
	assert.NoError(err)
	assert.True(a.ESS > 0.0)
}

func TestSummarizeRejectsBadFits(t *testing.T) {
	assert := assert.New(t)

	_, err := Summarize(nil, Options{})
	assert.Error(err)

	failed := sampler.Failure(nil, sampler.ReasonSampler, "no luck")
	_, err = Summarize(failed, Options{})
	assert.Error(err)

	ragged := testFit()
	ragged.Draws[1] = []float64{1.0}
	_, err = Summarize(ragged, Options{})
	assert.Error(err)
}
