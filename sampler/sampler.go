package sampler

import (
	"context"

	"github.com/CraigKelly/bayescmp/spec"
)

// An Adapter submits a model specification to an MCMC engine and translates
// the outcome into a FitResult. Sampling pathologies (divergences, low
// effective sample size) are diagnostics on a successful result, not
// errors; only a fit the engine cannot produce at all comes back Failed.
// The returned error is reserved for infrastructure problems where no
// FitResult shape makes sense.
type Adapter interface {
	Fit(ctx context.Context, sp *spec.ModelSpec) (*FitResult, error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, sp *spec.ModelSpec) (*FitResult, error)

// Fit implements Adapter.
func (f AdapterFunc) Fit(ctx context.Context, sp *spec.ModelSpec) (*FitResult, error) {
	return f(ctx, sp)
}
