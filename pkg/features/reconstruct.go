package features

import (
	"fmt"
	"math"

	"github.com/mchmarny/credscore/pkg/table"
)

const daysPerYear = 365

// Accepted applicant ranges.
const (
	MaxFamilyMembers   = 20
	MinAgeYears        = 18
	MaxAgeYears        = 90
	MaxEmploymentYears = 60
)

// Applicant holds the raw quantities entered for a single prediction.
// EmploymentYears is optional.
type Applicant struct {
	Income          float64  `json:"income" yaml:"income"`
	Credit          float64  `json:"credit" yaml:"credit"`
	Annuity         float64  `json:"annuity" yaml:"annuity"`
	FamilyMembers   float64  `json:"family_members" yaml:"family_members"`
	AgeYears        float64  `json:"age_years" yaml:"age_years"`
	EmploymentYears *float64 `json:"employment_years,omitempty" yaml:"employment_years,omitempty"`
}

// DefaultApplicant returns the values the form starts with.
func DefaultApplicant() Applicant {
	emp := 5.0
	return Applicant{
		Income:          150000,
		Credit:          500000,
		Annuity:         25000,
		FamilyMembers:   3,
		AgeYears:        35,
		EmploymentYears: &emp,
	}
}

type rangeCheck struct {
	field    string
	value    float64
	min, max float64
}

// Validate checks every field against its accepted range.
func (a Applicant) Validate() error {
	checks := []rangeCheck{
		{"income", a.Income, 0, math.Inf(1)},
		{"credit", a.Credit, 0, math.Inf(1)},
		{"annuity", a.Annuity, 0, math.Inf(1)},
		{"family_members", a.FamilyMembers, 0, MaxFamilyMembers},
		{"age_years", a.AgeYears, MinAgeYears, MaxAgeYears},
	}
	if a.EmploymentYears != nil {
		checks = append(checks, rangeCheck{"employment_years", *a.EmploymentYears, 0, MaxEmploymentYears})
	}

	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &ValidationError{Field: c.field, Value: c.value, Reason: "must be a finite number"}
		}
		if c.value < c.min || c.value > c.max {
			reason := fmt.Sprintf("must be between %v and %v", c.min, c.max)
			if math.IsInf(c.max, 1) {
				reason = fmt.Sprintf("must be at least %v", c.min)
			}
			return &ValidationError{Field: c.field, Value: c.value, Reason: reason}
		}
	}
	return nil
}

// Override maps one feature column to a value computed from the applicant.
// Value returns false when the column should keep its template value.
type Override struct {
	Column string
	Value  func(a Applicant) (float64, bool)
}

func raw(f func(a Applicant) float64) func(Applicant) (float64, bool) {
	return func(a Applicant) (float64, bool) {
		return f(a), true
	}
}

// Overrides is the fixed set of columns an applicant controls: the raw
// fields and their derived transforms. Divisors are smoothed with +1.
var Overrides = []Override{
	{"AMT_INCOME_TOTAL", raw(func(a Applicant) float64 { return a.Income })},
	{"AMT_CREDIT", raw(func(a Applicant) float64 { return a.Credit })},
	{"AMT_ANNUITY", raw(func(a Applicant) float64 { return a.Annuity })},
	{"CNT_FAM_MEMBERS", raw(func(a Applicant) float64 { return a.FamilyMembers })},
	{"DAYS_BIRTH", raw(func(a Applicant) float64 { return a.AgeYears * daysPerYear })},
	{"DAYS_EMPLOYED", func(a Applicant) (float64, bool) {
		if a.EmploymentYears == nil {
			return 0, false
		}
		return *a.EmploymentYears * daysPerYear, true
	}},
	{"AGE", raw(func(a Applicant) float64 { return a.AgeYears })},
	{"AMT_INCOME_TOTAL_LOG", raw(func(a Applicant) float64 { return math.Log1p(a.Income) })},
	{"AMT_CREDIT_LOG", raw(func(a Applicant) float64 { return math.Log1p(a.Credit) })},
	{"AMT_ANNUITY_LOG", raw(func(a Applicant) float64 { return math.Log1p(a.Annuity) })},
	{"DEBT_INCOME_RATIO", raw(func(a Applicant) float64 { return a.Credit / (a.Income + 1) })},
	{"CREDIT_ANNUITY_RATIO", raw(func(a Applicant) float64 { return a.Credit / (a.Annuity + 1) })},
	{"INCOME_PER_PERSON", raw(func(a Applicant) float64 { return a.Income / (a.FamilyMembers + 1) })},
	{"PAYMENT_RATE", raw(func(a Applicant) float64 { return a.Annuity / (a.Credit + 1) })},
}

// Reconstruct builds one feature row for an applicant: a copy of the
// template row with every override whose column is a feature applied.
// The template is not modified.
func Reconstruct(t *Template, a Applicant) (*table.Table, error) {
	row := make([]table.Value, len(t.values))
	copy(row, t.values)

	for _, o := range Overrides {
		i, ok := t.index[o.Column]
		if !ok {
			continue
		}
		if v, ok := o.Value(a); ok {
			row[i] = table.Number(v)
		}
	}

	out, err := table.New(t.columns)
	if err != nil {
		return nil, fmt.Errorf("feature columns: %w", err)
	}
	if err := out.Append(row); err != nil {
		return nil, fmt.Errorf("feature row: %w", err)
	}
	return out, nil
}
