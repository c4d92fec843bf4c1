// Package dataset provides the in-memory event table consumed by the
// goodness-of-fit engine, including the split-by-category operation that
// drives composite-model decomposition.
package dataset

import (
	"errors"
	"fmt"

	"github.com/probfit/probfit/category"
)

// ErrSplitFailed is wrapped by SplitByCategory when the dataset cannot be
// partitioned against a category, e.g. when an entry carries a label the
// category does not declare. Decomposition treats this as unrecoverable.
var ErrSplitFailed = errors.New("dataset split failed")

// Dataset is the read surface the evaluation engine needs: an entry count,
// per-column value access and category splitting. Implementations must be
// safe for concurrent readers; the engine never mutates a dataset.
type Dataset interface {
	// Name identifies the dataset in diagnostics.
	Name() string

	// NumEntries returns the number of events.
	NumEntries() int

	// Values returns the full column of float values for the named
	// observable. The returned slice must not be modified.
	Values(column string) ([]float64, error)

	// SplitByCategory partitions the dataset by the labels of the given
	// category column. The result maps every label that occurs in the data
	// to its subset. Errors wrap ErrSplitFailed.
	SplitByCategory(idx *category.Category) (map[string]Dataset, error)
}

// Table is a column-oriented in-memory Dataset with float observable columns
// and string label columns.
type Table struct {
	name      string
	n         int
	floatCols map[string][]float64
	floatOrd  []string
	labelCols map[string][]string
}

// NewTable creates an empty table.
func NewTable(name string) *Table {
	return &Table{
		name:      name,
		n:         -1,
		floatCols: make(map[string][]float64),
		labelCols: make(map[string][]string),
	}
}

// AddColumn adds a float observable column. All columns of a table must have
// the same length.
func (t *Table) AddColumn(name string, values []float64) error {
	if err := t.checkLen(name, len(values)); err != nil {
		return err
	}
	if _, ok := t.floatCols[name]; !ok {
		t.floatOrd = append(t.floatOrd, name)
	}
	t.floatCols[name] = values
	return nil
}

// AddLabelColumn adds a string label column, typically holding category
// state names.
func (t *Table) AddLabelColumn(name string, labels []string) error {
	if err := t.checkLen(name, len(labels)); err != nil {
		return err
	}
	t.labelCols[name] = labels
	return nil
}

func (t *Table) checkLen(col string, n int) error {
	if t.n < 0 {
		t.n = n
		return nil
	}
	if n != t.n {
		return fmt.Errorf("column %q has %d entries, table has %d", col, n, t.n)
	}
	return nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// NumEntries returns the number of events in the table.
func (t *Table) NumEntries() int {
	if t.n < 0 {
		return 0
	}
	return t.n
}

// Columns returns the float column names in insertion order.
func (t *Table) Columns() []string { return t.floatOrd }

// Values returns the float column with the given name.
func (t *Table) Values(column string) ([]float64, error) {
	vals, ok := t.floatCols[column]
	if !ok {
		return nil, fmt.Errorf("dataset %q has no column %q", t.name, column)
	}
	return vals, nil
}

// Labels returns the label column with the given name.
func (t *Table) Labels(column string) ([]string, error) {
	labels, ok := t.labelCols[column]
	if !ok {
		return nil, fmt.Errorf("dataset %q has no label column %q", t.name, column)
	}
	return labels, nil
}

// SplitByCategory partitions the table by the label column named after idx.
// Every entry must carry a label that idx declares; an undeclared label or a
// missing label column aborts the split with an error wrapping ErrSplitFailed.
// Labels that are declared but absent from the data simply produce no subset.
func (t *Table) SplitByCategory(idx *category.Category) (map[string]Dataset, error) {
	labels, ok := t.labelCols[idx.Name()]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %q has no label column %q", ErrSplitFailed, t.name, idx.Name())
	}

	// Collect entry indices per label, validating against the declared states.
	rows := make(map[string][]int)
	for i, label := range labels {
		if !idx.Has(label) {
			return nil, fmt.Errorf("%w: entry %d has label %q not declared by category %q",
				ErrSplitFailed, i, label, idx.Name())
		}
		rows[label] = append(rows[label], i)
	}

	out := make(map[string]Dataset, len(rows))
	for label, idxs := range rows {
		sub := NewTable(fmt.Sprintf("%s/%s", t.name, label))
		for _, col := range t.floatOrd {
			src := t.floatCols[col]
			vals := make([]float64, len(idxs))
			for j, i := range idxs {
				vals[j] = src[i]
			}
			if err := sub.AddColumn(col, vals); err != nil {
				return nil, err
			}
		}
		out[label] = sub
	}
	return out, nil
}
