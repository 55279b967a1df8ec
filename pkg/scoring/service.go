// Package scoring ties the feature template, batch alignment and the model
// together. A Service is built once at startup and shared read-only.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mchmarny/credscore/pkg/features"
	"github.com/mchmarny/credscore/pkg/model"
	"github.com/mchmarny/credscore/pkg/risk"
	"github.com/mchmarny/credscore/pkg/table"
)

// RiskColumn is the probability column appended to batch results.
const RiskColumn = "RISK_PROBA"

// ErrInvalidScore is returned when the model output does not hold one
// probability in [0,1] per row.
var ErrInvalidScore = errors.New("invalid model output")

// Result is the outcome of a single prediction.
type Result struct {
	Probability float64   `json:"probability" yaml:"probability"`
	Percent     string    `json:"percent" yaml:"percent"`
	Tier        risk.Tier `json:"tier" yaml:"tier"`
	Message     string    `json:"message" yaml:"message"`
}

// BatchResult is the outcome of a batch prediction.
type BatchResult struct {
	// Rows and Columns describe the uploaded table.
	Rows    int
	Columns int
	// Table holds the aligned features plus RiskColumn.
	Table         *table.Table
	Probabilities []float64
}

// Service scores applicants and batches.
type Service struct {
	scorer   model.Scorer
	template *features.Template
	metrics  *Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records predictions in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService returns a Service for a loaded model and template.
func NewService(scorer model.Scorer, tmpl *features.Template, opts ...Option) (*Service, error) {
	if scorer == nil {
		return nil, errors.New("scorer required")
	}
	if tmpl == nil {
		return nil, errors.New("template required")
	}

	s := &Service{
		scorer:   scorer,
		template: tmpl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Template returns the feature template.
func (s *Service) Template() *features.Template {
	return s.template
}

// ScoreApplicant validates a, reconstructs its feature row and scores it.
func (s *Service) ScoreApplicant(ctx context.Context, a features.Applicant) (*Result, error) {
	if err := a.Validate(); err != nil {
		s.metrics.fail(ModeSingle, ReasonValidation)
		return nil, err
	}

	row, err := features.Reconstruct(s.template, a)
	if err != nil {
		s.metrics.fail(ModeSingle, ReasonModel)
		return nil, fmt.Errorf("error reconstructing features: %w", err)
	}

	probs, err := s.score(ctx, ModeSingle, row)
	if err != nil {
		return nil, err
	}

	return NewResult(probs[0]), nil
}

// ScoreTable aligns in to the feature columns and scores every row. The
// model is not called when columns are missing.
func (s *Service) ScoreTable(ctx context.Context, in *table.Table) (*BatchResult, error) {
	aligned, err := features.Align(in, s.template.Columns(), s.template.Label())
	if err != nil {
		var mc *features.MissingColumnsError
		if errors.As(err, &mc) {
			s.metrics.fail(ModeBatch, ReasonMissingColumns)
		} else {
			s.metrics.fail(ModeBatch, ReasonValidation)
		}
		return nil, err
	}

	probs, err := s.score(ctx, ModeBatch, aligned)
	if err != nil {
		return nil, err
	}

	vals := make([]table.Value, len(probs))
	for i, p := range probs {
		vals[i] = table.Number(p)
	}
	out, err := aligned.WithColumn(RiskColumn, vals)
	if err != nil {
		return nil, fmt.Errorf("error appending %s: %w", RiskColumn, err)
	}

	return &BatchResult{
		Rows:          in.Len(),
		Columns:       in.NumColumns(),
		Table:         out,
		Probabilities: probs,
	}, nil
}

func (s *Service) score(ctx context.Context, mode string, t *table.Table) ([]float64, error) {
	start := time.Now()
	probs, err := s.scorer.Score(ctx, t)
	if err != nil {
		s.metrics.fail(mode, ReasonModel)
		return nil, fmt.Errorf("error scoring %d row(s): %w", t.Len(), err)
	}
	if err := check(probs, t.Len()); err != nil {
		s.metrics.fail(mode, ReasonModel)
		return nil, err
	}

	elapsed := time.Since(start)
	s.metrics.observe(mode, probs, elapsed.Seconds())
	slog.Debug("scored", "mode", mode, "rows", t.Len(), "duration", elapsed)
	return probs, nil
}

func check(probs []float64, rows int) error {
	if len(probs) != rows {
		return fmt.Errorf("%w: %d probabilities for %d row(s)", ErrInvalidScore, len(probs), rows)
	}
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: row %d has probability %v", ErrInvalidScore, i+1, p)
		}
	}
	return nil
}

// Close releases the model.
func (s *Service) Close() error {
	return model.Close(s.scorer)
}

// NewResult derives the display fields for probability p.
func NewResult(p float64) *Result {
	t := risk.FromProbability(p)
	return &Result{
		Probability: p,
		Percent:     fmt.Sprintf("%.2f%%", p*100),
		Tier:        t,
		Message:     t.Message(),
	}
}

func tierOf(p float64) string {
	return risk.FromProbability(p).String()
}
