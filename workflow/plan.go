// Package workflow drives a batch of model fits and a comparison from a
// declarative YAML plan: one dataset, N model specifications, one shared
// sampler configuration, one comparison request.
package workflow

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/bayescmp/data"
	"github.com/CraigKelly/bayescmp/spec"
)

// A Plan is the parsed workflow file.
type Plan struct {
	Name    string      `yaml:"name"`
	Data    DataPlan    `yaml:"data"`
	Sampler SamplerPlan `yaml:"sampler"`
	Models  []ModelPlan `yaml:"models"`
	Compare ComparePlan `yaml:"compare"`
}

// A DataPlan declares the dataset inline: column schema plus values, with
// factor columns carried as numeric codes and their level labels.
type DataPlan struct {
	Name    string       `yaml:"name"`
	Columns []ColumnPlan `yaml:"columns"`
}

// A ColumnPlan is one declared dataset column.
type ColumnPlan struct {
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"`
	Levels []string  `yaml:"levels,omitempty"`
	Values []float64 `yaml:"values"`
}

// A SamplerPlan is the shared sampler configuration for every model in the
// plan. Identical settings across models is what makes the comparison fair.
type SamplerPlan struct {
	Chains     int     `yaml:"chains"`
	Iter       int     `yaml:"iter"`
	Warmup     int     `yaml:"warmup"`
	Seed       int64   `yaml:"seed"`
	AdaptDelta float64 `yaml:"adapt_delta"`
	Cores      int     `yaml:"cores"`
}

// A ModelPlan declares one model to fit.
type ModelPlan struct {
	Name    string      `yaml:"name"`
	Formula string      `yaml:"formula"`
	Family  string      `yaml:"family"`
	Priors  []PriorPlan `yaml:"priors,omitempty"`
}

// A PriorPlan declares one prior, e.g. {class: b, dist: "normal(0, 5)"}.
type PriorPlan struct {
	Class string `yaml:"class"`
	Coef  string `yaml:"coef,omitempty"`
	Dist  string `yaml:"dist"`
}

// A ComparePlan requests a comparison metric over the plan's models. An
// empty metric means fit-only.
type ComparePlan struct {
	Metric string `yaml:"metric,omitempty"`
}

// Load reads and strictly decodes a plan file.
func Load(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not READ plan from %s", path)
	}
	return Parse(raw)
}

// Parse strictly decodes plan bytes and runs basic shape checks.
func Parse(raw []byte) (*Plan, error) {
	p := &Plan{}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, errors.Wrap(err, "Could not PARSE plan")
	}

	if len(p.Name) < 1 {
		return nil, errors.New("Plan has no name")
	}
	if len(p.Models) < 1 {
		return nil, errors.New("Plan has no models")
	}
	seen := make(map[string]bool)
	for i, m := range p.Models {
		if len(m.Name) < 1 {
			return nil, errors.Errorf("Plan model %d has no name", i)
		}
		if seen[m.Name] {
			return nil, errors.Errorf("Plan has duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
	}

	return p, nil
}

// Table builds the in-memory dataset the plan declares.
func (p *Plan) Table() (*data.Table, error) {
	t := &data.Table{
		Name:   p.Data.Name,
		Values: make(map[string][]float64),
		Levels: make(map[string][]string),
	}

	for _, c := range p.Data.Columns {
		t.Columns = append(t.Columns, data.Column{Name: c.Name, Type: c.Type})
		t.Values[c.Name] = append([]float64{}, c.Values...)
		if len(c.Levels) > 0 {
			t.Levels[c.Name] = append([]string{}, c.Levels...)
		}
	}

	if err := t.Check(); err != nil {
		return nil, errors.Wrapf(err, "Plan %s has invalid data", p.Name)
	}
	return t, nil
}

// Specs validates every model in the plan against the descriptor and
// returns the built specs, parallel to p.Models.
func (p *Plan) Specs(d *data.Descriptor) ([]*spec.ModelSpec, error) {
	cfg := spec.SamplerConfig{
		Chains:     p.Sampler.Chains,
		Iter:       p.Sampler.Iter,
		Warmup:     p.Sampler.Warmup,
		Seed:       p.Sampler.Seed,
		AdaptDelta: p.Sampler.AdaptDelta,
		Cores:      p.Sampler.Cores,
	}

	out := make([]*spec.ModelSpec, 0, len(p.Models))
	for _, m := range p.Models {
		priors := make([]spec.Prior, 0, len(m.Priors))
		for _, pp := range m.Priors {
			dist, err := spec.ParseDist(pp.Dist)
			if err != nil {
				return nil, errors.Wrapf(err, "Model %s", m.Name)
			}
			priors = append(priors, spec.Prior{Class: pp.Class, Coef: pp.Coef, Dist: dist})
		}

		sp, err := spec.Build(m.Formula, d, m.Family, priors, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "Model %s", m.Name)
		}
		out = append(out, sp)
	}

	return out, nil
}
