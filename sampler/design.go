package sampler

import (
	"github.com/pkg/errors"

	"github.com/CraigKelly/bayescmp/data"
	"github.com/CraigKelly/bayescmp/spec"
)

// A design holds the numeric regression inputs the built-in engine works
// from: a column-major design matrix with named columns and the outcome
// vector.
type design struct {
	names []string
	cols  [][]float64
	y     []float64
}

// newDesign expands a formula's fixed-effect terms against a table:
// intercept column, one column per main effect, and elementwise products
// for interactions. Factor columns are already numeric codes in the table
// (binary factors are 0/1 dummies).
func newDesign(f *spec.Formula, t *data.Table) (*design, error) {
	y, err := t.Column(f.Response)
	if err != nil {
		return nil, errors.Wrap(err, "Design outcome")
	}
	rows := len(y)

	d := &design{y: y}

	if f.Intercept {
		ones := make([]float64, rows)
		for i := range ones {
			ones[i] = 1.0
		}
		d.names = append(d.names, spec.ClassIntercept)
		d.cols = append(d.cols, ones)
	}

	for _, term := range f.Terms {
		col := make([]float64, rows)
		for i := range col {
			col[i] = 1.0
		}
		for _, v := range term.Vars {
			vals, err := t.Column(v)
			if err != nil {
				return nil, errors.Wrapf(err, "Design term %s", term.String())
			}
			for i := range col {
				col[i] *= vals[i]
			}
		}
		d.names = append(d.names, term.String())
		d.cols = append(d.cols, col)
	}

	if len(d.cols) < 1 {
		return nil, errors.New("Design has no columns (empty formula with no intercept)")
	}

	return d, nil
}

// predict returns x_i . beta for observation i.
func (d *design) predict(i int, beta []float64) float64 {
	mu := 0.0
	for j, col := range d.cols {
		mu += beta[j] * col[i]
	}
	return mu
}

// rows returns the observation count.
func (d *design) rows() int {
	return len(d.y)
}
