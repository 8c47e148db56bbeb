package data

import (
	"github.com/pkg/errors"
)

// Column type constants - these describe the declared statistical type of
// an outcome or predictor column, not its storage type.
const (
	Continuous  = "continuous"
	Binary      = "binary"
	Count       = "count"
	Ordinal     = "ordinal"
	Categorical = "categorical"
)

// A Column describes one column in a dataset schema.
type Column struct {
	Name string
	Type string
}

// Check returns an error if there is a problem with the column declaration.
func (c *Column) Check() error {
	if len(c.Name) < 1 {
		return errors.New("Column has no name")
	}

	switch c.Type {
	case Continuous, Binary, Count, Ordinal, Categorical:
		return nil
	}
	return errors.Errorf("Column %s has unknown type %s", c.Name, c.Type)
}

// A Descriptor identifies a dataset to the orchestration core: its schema,
// its row count, and a fingerprint of its contents. The core never sees the
// data itself; the fingerprint stands in for it in cache keys, so two
// descriptors with the same fingerprint are assumed to describe the same
// observations in the same order.
type Descriptor struct {
	Name        string
	Fingerprint string
	Rows        int
	Columns     []Column
}

// Check returns an error if there is a problem with the descriptor.
func (d *Descriptor) Check() error {
	if len(d.Name) < 1 {
		return errors.New("Descriptor has no name")
	}
	if len(d.Fingerprint) < 1 {
		return errors.Errorf("Descriptor %s has no fingerprint", d.Name)
	}
	if d.Rows < 1 {
		return errors.Errorf("Descriptor %s has row count %d", d.Name, d.Rows)
	}
	if len(d.Columns) < 1 {
		return errors.Errorf("Descriptor %s has no columns", d.Name)
	}

	seen := make(map[string]bool)
	for i := range d.Columns {
		c := &d.Columns[i]
		if e := c.Check(); e != nil {
			return errors.Wrapf(e, "Descriptor %s has an invalid column", d.Name)
		}
		if seen[c.Name] {
			return errors.Errorf("Descriptor %s has duplicate column %s", d.Name, c.Name)
		}
		seen[c.Name] = true
	}

	return nil
}

// ColumnType returns the declared type for the named column and whether the
// column exists in the schema.
func (d *Descriptor) ColumnType(name string) (string, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return d.Columns[i].Type, true
		}
	}
	return "", false
}
