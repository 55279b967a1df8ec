package table

import (
	"fmt"
	"strings"
)

// Table is an ordered set of uniquely named columns and rows of values.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New creates an empty table. Column names must be non-empty and unique.
func New(columns []string) (*Table, error) {
	t := &Table{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, ok := t.index[c]; ok {
			return nil, fmt.Errorf("duplicate column name: %s", c)
		}
		t.columns[i] = c
		t.index[c] = i
	}
	return t, nil
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) NumColumns() int {
	return len(t.columns)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Index returns the position of a column.
func (t *Table) Index(column string) (int, bool) {
	i, ok := t.index[column]
	return i, ok
}

// Append adds a row. The row is copied.
func (t *Table) Append(row []Value) error {
	if len(row) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.columns))
	}
	r := make([]Value, len(row))
	copy(r, row)
	t.rows = append(t.rows, r)
	return nil
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []Value {
	r := make([]Value, len(t.rows[i]))
	copy(r, t.rows[i])
	return r
}

// Value returns the cell at row i in the named column.
func (t *Table) Value(i int, column string) (Value, bool) {
	j, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return Missing(), false
	}
	return t.rows[i][j], true
}

// Column returns a copy of all values in the named column.
func (t *Table) Column(column string) ([]Value, bool) {
	j, ok := t.index[column]
	if !ok {
		return nil, false
	}
	out := make([]Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, true
}

// Project returns a new table with exactly the given columns, in that
// order. Every column must exist.
func (t *Table) Project(columns []string) (*Table, error) {
	out, err := New(columns)
	if err != nil {
		return nil, err
	}
	src := make([]int, len(columns))
	for i, c := range columns {
		j, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("column not found: %s", c)
		}
		src[i] = j
	}
	out.rows = make([][]Value, len(t.rows))
	for i, r := range t.rows {
		nr := make([]Value, len(src))
		for k, j := range src {
			nr[k] = r[j]
		}
		out.rows[i] = nr
	}
	return out, nil
}

// Without returns a copy of the table minus the named column. Dropping an
// absent column returns an unchanged copy.
func (t *Table) Without(column string) *Table {
	if !t.Has(column) {
		return t.Clone()
	}
	keep := make([]string, 0, len(t.columns)-1)
	for _, c := range t.columns {
		if c != column {
			keep = append(keep, c)
		}
	}
	out, _ := t.Project(keep)
	return out
}

// WithColumn returns a copy of the table with one more column appended.
func (t *Table) WithColumn(name string, values []Value) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("column %s has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	out, err := New(append(t.Columns(), name))
	if err != nil {
		return nil, err
	}
	out.rows = make([][]Value, len(t.rows))
	for i, r := range t.rows {
		nr := make([]Value, len(r)+1)
		copy(nr, r)
		nr[len(r)] = values[i]
		out.rows[i] = nr
	}
	return out, nil
}

// Head returns a copy holding at most the first n rows.
func (t *Table) Head(n int) *Table {
	out := t.Clone()
	if n >= 0 && n < len(out.rows) {
		out.rows = out.rows[:n]
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out, _ := New(t.columns)
	out.rows = make([][]Value, len(t.rows))
	for i := range t.rows {
		out.rows[i] = t.Row(i)
	}
	return out
}

// Records returns the rows as maps keyed by column name, for display.
func (t *Table) Records() []map[string]Value {
	out := make([]map[string]Value, len(t.rows))
	for i, r := range t.rows {
		m := make(map[string]Value, len(t.columns))
		for j, c := range t.columns {
			m[c] = r[j]
		}
		out[i] = m
	}
	return out
}
