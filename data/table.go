package data

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// A Table is an in-memory, read-only, column-major dataset. Factor columns
// are stored as numeric codes with the level labels kept alongside, so a
// binary factor like Insul{Before,After} becomes a 0/1 dummy with
// Levels=["Before", "After"].
type Table struct {
	Name    string
	Columns []Column
	Values  map[string][]float64
	Levels  map[string][]string
}

// Check returns an error if there is a problem with the table.
func (t *Table) Check() error {
	if len(t.Columns) < 1 {
		return errors.Errorf("Table %s has no columns", t.Name)
	}

	rows := -1
	for i := range t.Columns {
		c := &t.Columns[i]
		if e := c.Check(); e != nil {
			return errors.Wrapf(e, "Table %s has an invalid column", t.Name)
		}

		vals, ok := t.Values[c.Name]
		if !ok {
			return errors.Errorf("Table %s has no values for column %s", t.Name, c.Name)
		}
		if rows < 0 {
			rows = len(vals)
		} else if len(vals) != rows {
			return errors.Errorf("Table %s column %s has %d rows, expected %d", t.Name, c.Name, len(vals), rows)
		}
	}
	if rows < 1 {
		return errors.Errorf("Table %s has no rows", t.Name)
	}

	return nil
}

// Rows returns the number of observations in the table.
func (t *Table) Rows() int {
	for i := range t.Columns {
		return len(t.Values[t.Columns[i].Name])
	}
	return 0
}

// Column returns the values for the named column.
func (t *Table) Column(name string) ([]float64, error) {
	vals, ok := t.Values[name]
	if !ok {
		return nil, errors.Errorf("Table %s has no column %s", t.Name, name)
	}
	return vals, nil
}

// Fingerprint hashes the table schema and contents into a stable hex digest
// suitable for a Descriptor. Column order does not matter: columns are
// hashed in sorted-name order.
func (t *Table) Fingerprint() string {
	names := make([]string, 0, len(t.Columns))
	for i := range t.Columns {
		names = append(names, t.Columns[i].Name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, n := range names {
		h.Write([]byte(n))
		h.Write([]byte{0})
		for _, v := range t.Values[n] {
			h.Write([]byte(strconv.FormatFloat(v, 'g', -1, 64)))
			h.Write([]byte{0})
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Describe builds the matching Descriptor for the table.
func (t *Table) Describe() *Descriptor {
	return &Descriptor{
		Name:        t.Name,
		Fingerprint: t.Fingerprint(),
		Rows:        t.Rows(),
		Columns:     append([]Column{}, t.Columns...),
	}
}

// A Source resolves a dataset reference (the Name carried in a Descriptor)
// to an actual Table. Only the sampler boundary resolves data; the rest of
// the core works from Descriptors alone.
type Source interface {
	Resolve(ref string) (*Table, error)
}

// MapSource is the trivial in-memory Source used by workflows and tests.
type MapSource map[string]*Table

// Resolve implements Source.
func (m MapSource) Resolve(ref string) (*Table, error) {
	t, ok := m[ref]
	if !ok {
		return nil, errors.Errorf("No table registered for data ref %s", ref)
	}
	return t, nil
}
