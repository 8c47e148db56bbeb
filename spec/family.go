package spec

import (
	"github.com/CraigKelly/bayescmp/data"
)

// Outcome family constant strings - matches the closed set of families the
// core accepts. Anything else is an UnsupportedFamily validation failure.
const (
	Gaussian    = "gaussian"
	StudentT    = "student"
	Bernoulli   = "bernoulli"
	Poisson     = "poisson"
	NegBinomial = "negbinomial"
	Cumulative  = "cumulative"
)

// familyOutcomes maps each supported family to the outcome column types it
// can model. A family/outcome mismatch is caught at Build time, never at
// sampling time.
var familyOutcomes = map[string][]string{
	Gaussian:    {data.Continuous},
	StudentT:    {data.Continuous},
	Bernoulli:   {data.Binary},
	Poisson:     {data.Count},
	NegBinomial: {data.Count},
	Cumulative:  {data.Ordinal},
}

// SupportedFamily returns true for members of the closed family set.
func SupportedFamily(family string) bool {
	_, ok := familyOutcomes[family]
	return ok
}

// FamilyCompatible returns true if the family can model an outcome column
// of the given declared type.
func FamilyCompatible(family string, outcomeType string) bool {
	for _, t := range familyOutcomes[family] {
		if t == outcomeType {
			return true
		}
	}
	return false
}

// FamilyHasSigma returns true for families with a residual scale parameter.
func FamilyHasSigma(family string) bool {
	return family == Gaussian || family == StudentT
}
