package features

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mchmarny/credscore/pkg/table"
	"gonum.org/v1/gonum/stat"
)

// DefaultLabel is the outcome column excluded from the features.
const DefaultLabel = "TARGET"

// MissingPolicy decides what a numeric column without any value holds in
// the template.
type MissingPolicy string

const (
	// PolicyZero fills the column with 0 and logs a warning.
	PolicyZero MissingPolicy = "zero"
	// PolicyError fails the build with AmbiguousTemplateValueError.
	PolicyError MissingPolicy = "error"
)

// ParseMissingPolicy converts a config string into a MissingPolicy.
// Empty selects PolicyZero.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyZero:
		return PolicyZero, nil
	case PolicyError:
		return PolicyError, nil
	default:
		return "", fmt.Errorf("unknown missing policy %q, expected %s or %s", s, PolicyZero, PolicyError)
	}
}

// Template holds the feature column list and one representative value per
// column. It is read-only once built.
type Template struct {
	label   string
	columns []string
	index   map[string]int
	values  []table.Value
	filled  []string
}

type buildOptions struct {
	policy MissingPolicy
}

// Option customizes BuildTemplate.
type Option func(*buildOptions)

// WithMissingPolicy sets the fully-missing numeric column policy.
func WithMissingPolicy(p MissingPolicy) Option {
	return func(o *buildOptions) {
		o.policy = p
	}
}

// BuildTemplate derives the feature columns and template row from a
// reference table. Numeric columns get the median of their values, other
// columns their most frequent value (first seen wins a tie).
func BuildTemplate(ref *table.Table, label string, opts ...Option) (*Template, error) {
	o := &buildOptions{policy: PolicyZero}
	for _, opt := range opts {
		opt(o)
	}

	if label == "" {
		return nil, fmt.Errorf("%w: label column name required", ErrResourceNotFound)
	}
	if ref == nil || ref.NumColumns() == 0 {
		return nil, fmt.Errorf("%w: reference table has no columns", ErrResourceNotFound)
	}
	if ref.Len() == 0 {
		return nil, fmt.Errorf("%w: reference table has no rows", ErrResourceNotFound)
	}
	if !ref.Has(label) {
		slog.Warn("label column not in reference table", "label", label)
	}

	t := &Template{
		label: label,
		index: make(map[string]int, ref.NumColumns()),
	}

	var empty []string
	for _, c := range ref.Columns() {
		if c == label {
			continue
		}
		vals, _ := ref.Column(c)

		var v table.Value
		if isNumeric(vals) {
			m, ok := median(vals)
			if !ok {
				empty = append(empty, c)
			}
			v = table.Number(m)
		} else {
			v = mode(vals)
		}

		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
		t.values = append(t.values, v)
	}

	if len(empty) > 0 {
		if o.policy == PolicyError {
			return nil, &AmbiguousTemplateValueError{Columns: empty}
		}
		slog.Warn("numeric columns without values filled with zero", "columns", empty)
		t.filled = empty
	}

	slog.Debug("template built", "columns", len(t.columns), "rows", ref.Len())
	return t, nil
}

// Label returns the excluded outcome column name.
func (t *Template) Label() string {
	return t.label
}

// Columns returns a copy of the feature column list.
func (t *Template) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Has reports whether column is a feature.
func (t *Template) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Value returns the template value of a column.
func (t *Template) Value(column string) (table.Value, bool) {
	i, ok := t.index[column]
	if !ok {
		return table.Missing(), false
	}
	return t.values[i], true
}

// Filled lists numeric columns that had no values and were zero-filled.
func (t *Template) Filled() []string {
	out := make([]string, len(t.filled))
	copy(out, t.filled)
	return out
}

// Row returns the template as a fresh one-row table.
func (t *Template) Row() *table.Table {
	out, _ := table.New(t.columns)
	_ = out.Append(t.values)
	return out
}

func isNumeric(vals []table.Value) bool {
	for _, v := range vals {
		if !v.IsMissing() && !v.IsNumber() {
			return false
		}
	}
	return true
}

// median returns false when there are no values.
func median(vals []table.Value) (float64, bool) {
	xs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if f, ok := v.Float(); ok {
			xs = append(xs, f)
		}
	}
	n := len(xs)
	if n == 0 {
		return 0, false
	}
	sort.Float64s(xs)
	if n%2 == 1 {
		return xs[n/2], true
	}
	return stat.Mean(xs[n/2-1:n/2+1], nil), true
}

func mode(vals []table.Value) table.Value {
	counts := make(map[table.Value]int)
	var order []table.Value
	for _, v := range vals {
		if v.IsMissing() {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	best := table.Missing()
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}
