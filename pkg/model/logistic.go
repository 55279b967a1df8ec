package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/mchmarny/credscore/pkg/table"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogisticModel is a fitted logistic regression. Missing inputs contribute 0.
type LogisticModel struct {
	Features     []string  `json:"features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Encodings    Encodings `json:"encodings,omitempty"`
}

func (m *LogisticModel) validate() error {
	if len(m.Features) == 0 {
		return errors.New("no features")
	}
	if len(m.Features) != len(m.Coefficients) {
		return fmt.Errorf("%d features but %d coefficients", len(m.Features), len(m.Coefficients))
	}
	return nil
}

// Score implements Scorer.
func (m *LogisticModel) Score(ctx context.Context, t *table.Table) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := t.Len()
	if n == 0 {
		return []float64{}, nil
	}

	data, err := matrix(t, m.Features, m.Encodings)
	if err != nil {
		return nil, err
	}
	for i, v := range data {
		if math.IsNaN(v) {
			data[i] = 0
		}
	}

	x := mat.NewDense(n, len(m.Features), data)
	w := mat.NewVecDense(len(m.Coefficients), m.Coefficients)

	var z mat.VecDense
	z.MulVec(x, w)

	out := make([]float64, n)
	copy(out, z.RawVector().Data)
	floats.AddConst(m.Intercept, out)
	for i, v := range out {
		out[i] = sigmoid(v)
	}
	return out, nil
}
