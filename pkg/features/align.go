package features

import (
	"errors"
	"fmt"

	"github.com/mchmarny/credscore/pkg/table"
)

// Align prepares an uploaded table for scoring: the label column is dropped,
// every feature column must be present, and the result holds exactly the
// feature columns in order. Extra columns are ignored.
func Align(in *table.Table, columns []string, label string) (*table.Table, error) {
	if in == nil {
		return nil, errors.New("input table required")
	}
	if label != "" {
		in = in.Without(label)
	}

	var missing []string
	for _, c := range columns {
		if !in.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}

	out, err := in.Project(columns)
	if err != nil {
		return nil, fmt.Errorf("project columns: %w", err)
	}
	return out, nil
}
