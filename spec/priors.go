package spec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parameter class constant strings - matches the classes a prior may target.
const (
	ClassB         = "b"         // population-level (slope) coefficients
	ClassIntercept = "Intercept" // population-level intercept
	ClassSigma     = "sigma"     // residual scale (gaussian/student only)
	ClassSD        = "sd"        // group-level standard deviations
)

// A Dist is a parsed prior distribution declaration like normal(0, 10).
type Dist struct {
	Name string
	Args []float64
}

// distArity gives the closed set of prior distributions and their argument
// counts.
var distArity = map[string]int{
	"normal":      2,
	"student_t":   3,
	"cauchy":      2,
	"exponential": 1,
	"flat":        0,
}

// ParseDist parses a declaration of the form name(arg1, arg2, ...).
func ParseDist(s string) (Dist, error) {
	s = strings.TrimSpace(s)

	open := strings.Index(s, "(")
	if open < 0 {
		// Bare name is only legal for zero-arg distributions
		if n, ok := distArity[s]; ok && n == 0 {
			return Dist{Name: s}, nil
		}
		return Dist{}, errors.Errorf("Malformed prior distribution %q", s)
	}
	if !strings.HasSuffix(s, ")") {
		return Dist{}, errors.Errorf("Malformed prior distribution %q", s)
	}

	name := strings.TrimSpace(s[:open])
	arity, ok := distArity[name]
	if !ok {
		return Dist{}, errors.Errorf("Unknown prior distribution %q", name)
	}

	d := Dist{Name: name}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if len(inner) > 0 {
		for _, a := range strings.Split(inner, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
			if err != nil {
				return Dist{}, errors.Wrapf(err, "Bad argument in prior %q", s)
			}
			d.Args = append(d.Args, v)
		}
	}

	if len(d.Args) != arity {
		return Dist{}, errors.Errorf("Prior %s takes %d arguments, got %d", name, arity, len(d.Args))
	}

	return d, nil
}

// String renders the distribution in canonical name(a,b) form.
func (d Dist) String() string {
	if len(d.Args) < 1 {
		return d.Name
	}
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = strconv.FormatFloat(a, 'g', -1, 64)
	}
	return fmt.Sprintf("%s(%s)", d.Name, strings.Join(args, ","))
}

// A Prior attaches a distribution to a parameter class, optionally narrowed
// to a single coefficient. Default tracks whether the prior came from the
// default table rather than the caller, so default resolution is always
// inspectable on a built spec.
type Prior struct {
	Class   string
	Coef    string
	Dist    Dist
	Default bool
}

// defaultPriors is the explicit default table: every parameter class a
// model uses gets one of these when the caller declares nothing for it.
// Model comparison against a baseline depends on both models resolving
// defaults identically, so this table is fixed and versioned with the code,
// never inferred from an engine.
var defaultPriors = map[string]Dist{
	ClassB:         {Name: "normal", Args: []float64{0, 10}},
	ClassIntercept: {Name: "student_t", Args: []float64{3, 0, 10}},
	ClassSigma:     {Name: "exponential", Args: []float64{1}},
	ClassSD:        {Name: "exponential", Args: []float64{1}},
}

// DefaultPrior returns the documented default distribution for a class.
func DefaultPrior(class string) (Dist, bool) {
	d, ok := defaultPriors[class]
	return d, ok
}

// normalizePriors validates the declared priors and fills in defaults for
// every class the model actually uses, returning the canonically ordered
// list. classes must be the classes present in the model.
func normalizePriors(declared []Prior, classes []string) ([]Prior, error) {
	valid := make(map[string]bool, len(classes))
	for _, c := range classes {
		valid[c] = true
	}

	seen := make(map[string]bool)
	out := []Prior{}
	for _, p := range declared {
		if !valid[p.Class] {
			return nil, errors.Errorf("Prior class %q not used by this model", p.Class)
		}
		if _, ok := distArity[p.Dist.Name]; !ok {
			return nil, errors.Errorf("Prior for class %q has unknown distribution %q", p.Class, p.Dist.Name)
		}
		key := p.Class + "/" + p.Coef
		if seen[key] {
			return nil, errors.Errorf("Duplicate prior for %s", key)
		}
		seen[key] = true
		out = append(out, Prior{Class: p.Class, Coef: p.Coef, Dist: p.Dist})
	}

	// Any used class without a class-wide declaration gets the default
	for _, c := range classes {
		if !seen[c+"/"] {
			out = append(out, Prior{Class: c, Dist: defaultPriors[c], Default: true})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].Coef < out[j].Coef
	})

	return out, nil
}

// PriorFor returns the most specific prior in the list for a class and
// coefficient: an exact coef match wins over the class-wide entry.
func PriorFor(priors []Prior, class string, coef string) (Dist, bool) {
	classWide := Dist{}
	found := false
	for _, p := range priors {
		if p.Class != class {
			continue
		}
		if p.Coef == coef && coef != "" {
			return p.Dist, true
		}
		if p.Coef == "" {
			classWide = p.Dist
			found = true
		}
	}
	return classWide, found
}
