package features

import (
	"errors"
	"fmt"
	"strings"
)

// MaxReportedColumns caps how many missing column names are shown in an
// error message.
const MaxReportedColumns = 20

// ErrResourceNotFound marks a reference table that is absent, unreadable or
// empty. Serving must not start without a template.
var ErrResourceNotFound = errors.New("resource not found")

// MissingColumnsError is returned when a batch lacks required feature columns.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	shown := e.Shown()
	msg := fmt.Sprintf("missing %d required column(s): %s", len(e.Missing), strings.Join(shown, ", "))
	if rest := len(e.Missing) - len(shown); rest > 0 {
		msg = fmt.Sprintf("%s (and %d more)", msg, rest)
	}
	return msg
}

// Shown returns the names included in the message.
func (e *MissingColumnsError) Shown() []string {
	if len(e.Missing) > MaxReportedColumns {
		return e.Missing[:MaxReportedColumns]
	}
	return e.Missing
}

// AmbiguousTemplateValueError is returned when numeric reference columns have
// no values at all, so no median exists.
type AmbiguousTemplateValueError struct {
	Columns []string
}

func (e *AmbiguousTemplateValueError) Error() string {
	return fmt.Sprintf("numeric column(s) with no values in reference table: %s", strings.Join(e.Columns, ", "))
}

// ValidationError reports an applicant field outside its accepted range.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}
