package spec

import (
	"fmt"

	"github.com/CraigKelly/bayescmp/data"
)

// Validation failure kind constant strings.
const (
	BadFormula          = "bad-formula"
	UnknownPredictor    = "unknown-predictor"
	UnsupportedFamily   = "unsupported-family"
	IncompatibleOutcome = "incompatible-outcome"
	BadPrior            = "bad-prior"
	BadConfig           = "bad-config"
	BadData             = "bad-data"
)

// A ValidationError rejects a model specification before any fit is
// attempted. The Kind is machine-checkable so a caller can decide what to
// correct; Reason is for humans.
type ValidationError struct {
	Kind   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid model spec (%s): %s", e.Kind, e.Reason)
}

func valErrf(kind string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// AsValidation unwraps err to a *ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	ve, ok := err.(*ValidationError)
	return ve, ok
}

// SamplerConfig carries every sampler knob explicitly - there is no ambient
// global configuration (core counts included), so a spec is reproducible
// from its own fields.
type SamplerConfig struct {
	Chains     int
	Iter       int
	Warmup     int
	Seed       int64
	AdaptDelta float64
	Cores      int
}

// Check returns an error if there is a problem with the configuration.
func (c *SamplerConfig) Check() error {
	if c.Chains < 1 {
		return valErrf(BadConfig, "chains is %d, must be >= 1", c.Chains)
	}
	if c.Iter < 1 {
		return valErrf(BadConfig, "iter is %d, must be >= 1", c.Iter)
	}
	if c.Warmup < 0 || c.Warmup >= c.Iter {
		return valErrf(BadConfig, "warmup is %d, must be in [0, iter=%d)", c.Warmup, c.Iter)
	}
	if c.AdaptDelta <= 0.0 || c.AdaptDelta >= 1.0 {
		return valErrf(BadConfig, "adapt_delta is %g, must be in (0, 1)", c.AdaptDelta)
	}
	if c.Cores < 1 {
		return valErrf(BadConfig, "cores is %d, must be >= 1", c.Cores)
	}
	return nil
}

// A ModelSpec is a validated, normalized, immutable model specification:
// everything needed to ask a sampler for a fit, and nothing else. Build is
// the only constructor.
type ModelSpec struct {
	Formula         *Formula
	DataName        string
	DataFingerprint string
	Rows            int
	OutcomeType     string
	Family          string
	Priors          []Prior
	Config          SamplerConfig
}

// Build validates and normalizes a raw specification. It is pure: no fit is
// attempted, no data is touched beyond the descriptor schema. Zero-valued
// AdaptDelta and Cores are given the documented defaults (0.8 and 1) before
// validation.
func Build(rawFormula string, d *data.Descriptor, family string, priors []Prior, cfg SamplerConfig) (*ModelSpec, error) {
	if d == nil {
		return nil, valErrf(BadData, "no data descriptor supplied")
	}
	if err := d.Check(); err != nil {
		return nil, valErrf(BadData, "%v", err)
	}

	f, err := ParseFormula(rawFormula)
	if err != nil {
		return nil, valErrf(BadFormula, "%v", err)
	}

	// Every referenced variable must exist in the schema
	for _, v := range f.Vars() {
		if _, ok := d.ColumnType(v); !ok {
			return nil, valErrf(UnknownPredictor, "formula references %q, not in dataset %s", v, d.Name)
		}
	}

	if !SupportedFamily(family) {
		return nil, valErrf(UnsupportedFamily, "family %q is not supported", family)
	}

	outcomeType, _ := d.ColumnType(f.Response)
	if !FamilyCompatible(family, outcomeType) {
		return nil, valErrf(IncompatibleOutcome, "family %s cannot model %s outcome %q", family, outcomeType, f.Response)
	}

	// Classes this model actually uses drive default resolution
	classes := []string{}
	if f.Intercept {
		classes = append(classes, ClassIntercept)
	}
	if len(f.Terms) > 0 {
		classes = append(classes, ClassB)
	}
	if FamilyHasSigma(family) {
		classes = append(classes, ClassSigma)
	}
	if len(f.Groups) > 0 {
		classes = append(classes, ClassSD)
	}

	normPriors, err := normalizePriors(priors, classes)
	if err != nil {
		return nil, valErrf(BadPrior, "%v", err)
	}

	if cfg.AdaptDelta == 0.0 {
		cfg.AdaptDelta = 0.8
	}
	if cfg.Cores == 0 {
		cfg.Cores = 1
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	return &ModelSpec{
		Formula:         f,
		DataName:        d.Name,
		DataFingerprint: d.Fingerprint,
		Rows:            d.Rows,
		OutcomeType:     outcomeType,
		Family:          family,
		Priors:          normPriors,
		Config:          cfg,
	}, nil
}
