// Package risk buckets a default probability into a display tier.
package risk

import (
	"errors"
	"fmt"
)

// Tier boundaries. A probability below LowThreshold is low, below
// HighThreshold is medium, anything else is high.
const (
	LowThreshold  = 0.20
	HighThreshold = 0.50
)

// Tier is an immutable risk classification.
type Tier struct {
	value string
}

var (
	TierLow    = Tier{value: "low"}
	TierMedium = Tier{value: "medium"}
	TierHigh   = Tier{value: "high"}
)

// FromProbability derives the tier for a probability of default.
func FromProbability(p float64) Tier {
	switch {
	case p < LowThreshold:
		return TierLow
	case p < HighThreshold:
		return TierMedium
	default:
		return TierHigh
	}
}

// Parse reconstructs a Tier from its string representation.
func Parse(s string) (Tier, error) {
	switch s {
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	default:
		return Tier{}, fmt.Errorf("invalid risk tier: %s", s)
	}
}

// String returns the tier label.
func (t Tier) String() string {
	return t.value
}

// Message returns the human readable explanation shown with the tier.
func (t Tier) Message() string {
	switch t.value {
	case "low":
		return "This applicant appears to be in the low risk segment."
	case "medium":
		return "This applicant is in the medium risk segment, additional checks may be required."
	case "high":
		return "This applicant is in the high risk segment and should be evaluated more carefully."
	default:
		return ""
	}
}

// IsZero returns true if the Tier has not been set.
func (t Tier) IsZero() bool {
	return t.value == ""
}

func (t Tier) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return nil, errors.New("risk tier not set")
	}
	return []byte(t.value), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
