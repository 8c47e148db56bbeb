package sampler

// EffectiveSampleSize estimates the effective sample size of one pooled
// parameter trace using Geyer's initial positive sequence estimator: sum
// autocorrelations in consecutive pairs and stop at the first pair with a
// non-positive sum. The result is clamped to (0, n].
func EffectiveSampleSize(x []float64) float64 {
	n := len(x)
	if n < 4 {
		return float64(n)
	}

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	// Autocovariance at lag 0 (biased, as is standard here)
	c0 := 0.0
	for _, v := range x {
		c0 += (v - mean) * (v - mean)
	}
	c0 /= float64(n)
	if c0 <= 0.0 {
		// Constant trace - every draw is the same "information"
		return float64(n)
	}

	autocov := func(lag int) float64 {
		s := 0.0
		for i := 0; i < n-lag; i++ {
			s += (x[i] - mean) * (x[i+lag] - mean)
		}
		return s / float64(n)
	}

	tau := 1.0
	maxLag := n - 2
	for lag := 1; lag+1 <= maxLag; lag += 2 {
		pair := (autocov(lag) + autocov(lag+1)) / c0
		if pair <= 0.0 {
			break
		}
		tau += 2.0 * pair
	}

	ess := float64(n) / tau
	if ess > float64(n) {
		ess = float64(n)
	}
	if ess < 1.0 {
		ess = 1.0
	}
	return ess
}
