// Package dataset holds the observation table the pipeline operates on:
// one row per species, numeric trait and environment columns, string label
// columns, and optional coordinates.
package dataset

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// Table is a column-oriented observation table. Missing numeric values are
// NaN and missing labels are empty strings. A Table is not safe for
// concurrent mutation; the pipeline only mutates tables it has just built.
type Table struct {
	ids      []string
	numeric  map[string][]float64
	labels   map[string][]string
	numOrder []string
	lblOrder []string
}

// NewTable creates an empty table with the given row ids.
func NewTable(ids []string) *Table {
	cp := make([]string, len(ids))
	copy(cp, ids)
	return &Table{
		ids:     cp,
		numeric: make(map[string][]float64),
		labels:  make(map[string][]string),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.ids) }

// IDs returns a copy of the row ids.
func (t *Table) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// ID returns the id of row i.
func (t *Table) ID(i int) string { return t.ids[i] }

// SetNumeric adds or replaces a numeric column. The slice is stored as is.
func (t *Table) SetNumeric(name string, values []float64) error {
	if len(values) != len(t.ids) {
		return errors.NewDimensionError("Table.SetNumeric", len(t.ids), len(values), 0)
	}
	if _, ok := t.numeric[name]; !ok {
		t.numOrder = append(t.numOrder, name)
	}
	t.numeric[name] = values
	return nil
}

// SetLabel adds or replaces a string column.
func (t *Table) SetLabel(name string, values []string) error {
	if len(values) != len(t.ids) {
		return errors.NewDimensionError("Table.SetLabel", len(t.ids), len(values), 0)
	}
	if _, ok := t.labels[name]; !ok {
		t.lblOrder = append(t.lblOrder, name)
	}
	t.labels[name] = values
	return nil
}

// Numeric returns the named numeric column. The returned slice aliases the
// table and must not be modified.
func (t *Table) Numeric(name string) ([]float64, bool) {
	v, ok := t.numeric[name]
	return v, ok
}

// Label returns the named string column.
func (t *Table) Label(name string) ([]string, bool) {
	v, ok := t.labels[name]
	return v, ok
}

// HasColumn reports whether a numeric or string column exists.
func (t *Table) HasColumn(name string) bool {
	if _, ok := t.numeric[name]; ok {
		return true
	}
	_, ok := t.labels[name]
	return ok
}

// NumericNames returns numeric column names in insertion order.
func (t *Table) NumericNames() []string {
	out := make([]string, len(t.numOrder))
	copy(out, t.numOrder)
	return out
}

// LabelNames returns string column names in insertion order.
func (t *Table) LabelNames() []string {
	out := make([]string, len(t.lblOrder))
	copy(out, t.lblOrder)
	return out
}

// Subset returns a deep copy restricted to rows, in the given order.
func (t *Table) Subset(rows []int) *Table {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = t.ids[r]
	}
	out := NewTable(ids)
	for _, name := range t.numOrder {
		src := t.numeric[name]
		dst := make([]float64, len(rows))
		for i, r := range rows {
			dst[i] = src[r]
		}
		out.numOrder = append(out.numOrder, name)
		out.numeric[name] = dst
	}
	for _, name := range t.lblOrder {
		src := t.labels[name]
		dst := make([]string, len(rows))
		for i, r := range rows {
			dst[i] = src[r]
		}
		out.lblOrder = append(out.lblOrder, name)
		out.labels[name] = dst
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}
	return t.Subset(rows)
}

// CompleteCases returns the indices of rows that have a finite value in
// every named numeric column and a non-empty value in every named string
// column. An unknown column yields a DataError.
func (t *Table) CompleteCases(cols ...string) ([]int, error) {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return nil, errors.NewDataError("CompleteCases", c, "column not found")
		}
	}
	rows := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if t.rowComplete(i, cols) {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

func (t *Table) rowComplete(i int, cols []string) bool {
	for _, c := range cols {
		if v, ok := t.numeric[c]; ok {
			if !IsFinite(v[i]) {
				return false
			}
			continue
		}
		if t.labels[c][i] == "" {
			return false
		}
	}
	return true
}

// FiniteCount returns the number of finite values in a numeric column.
func (t *Table) FiniteCount(name string) int {
	n := 0
	for _, v := range t.numeric[name] {
		if IsFinite(v) {
			n++
		}
	}
	return n
}

// Matrix builds a dense rows×len(cols) matrix from numeric columns.
func (t *Table) Matrix(cols []string) (*mat.Dense, error) {
	if t.Len() == 0 || len(cols) == 0 {
		return nil, errors.ErrEmptyData
	}
	data := make([]float64, t.Len()*len(cols))
	for j, c := range cols {
		v, ok := t.numeric[c]
		if !ok {
			return nil, errors.NewDataError("Table.Matrix", c, "numeric column not found")
		}
		for i := range v {
			data[i*len(cols)+j] = v[i]
		}
	}
	return mat.NewDense(t.Len(), len(cols), data), nil
}

// Levels returns the sorted distinct non-empty values of a string column.
func (t *Table) Levels(name string) []string {
	seen := make(map[string]struct{})
	for _, v := range t.labels[name] {
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// FilterMinRecords drops rows whose evidence count in col is below
// threshold. Rows with a missing count are kept. It returns the filtered
// table and the number of rows dropped.
func (t *Table) FilterMinRecords(col string, threshold float64) (*Table, int, error) {
	v, ok := t.numeric[col]
	if !ok {
		return nil, 0, errors.NewDataError("FilterMinRecords", col, "numeric column not found")
	}
	keep := make([]int, 0, t.Len())
	for i, x := range v {
		if IsFinite(x) && x < threshold {
			continue
		}
		keep = append(keep, i)
	}
	return t.Subset(keep), t.Len() - len(keep), nil
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
