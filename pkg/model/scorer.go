// Package model loads the pre-trained classifier and scores feature tables.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/credscore/pkg/table"
)

// ErrArtifactNotFound is returned when the model artifact does not exist.
var ErrArtifactNotFound = errors.New("model artifact not found")

// Scorer returns one probability of the positive class per table row, in
// row order.
type Scorer interface {
	Score(ctx context.Context, t *table.Table) ([]float64, error)
}

// Options configures Load.
type Options struct {
	// ORTLibrary is the path to the onnxruntime shared library.
	ORTLibrary string
	// RemoteURL selects a model server instead of a local artifact.
	RemoteURL string
	// Token is sent as a bearer token to RemoteURL.
	Token string
}

// Load opens the artifact at path. The format follows the file extension:
// .onnx for an exported classifier, .json for a logistic or tree model.
func Load(ctx context.Context, path string, opts Options) (Scorer, error) {
	if opts.RemoteURL != "" {
		slog.Debug("using remote model", "url", opts.RemoteURL)
		return NewRemote(ctx, opts.RemoteURL, opts.Token), nil
	}

	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrArtifactNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("error reading model %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".onnx":
		return NewONNX(path, opts.ORTLibrary)
	case ".json":
		return LoadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported model format %q: %s", ext, path)
	}
}

// Close releases resources held by s, if any.
func Close(s Scorer) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type envelope struct {
	Type string `json:"type"`
}

// LoadJSON reads a JSON model artifact. The "type" field selects the model:
// "logistic" or "trees".
func LoadJSON(path string) (Scorer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	var s interface {
		Scorer
		validate() error
	}
	switch e.Type {
	case "logistic":
		s = &LogisticModel{}
	case "trees":
		s = &TreeEnsemble{}
	default:
		return nil, fmt.Errorf("unknown model type %q in %s", e.Type, path)
	}

	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s model: %w", e.Type, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s model %s: %w", e.Type, path, err)
	}

	slog.Debug("model loaded", "type", e.Type, "path", path)
	return s, nil
}

// Encodings maps a categorical column and its text value to the number the
// model was trained on.
type Encodings map[string]map[string]float64

// matrix flattens the named columns of t row by row. Missing values and
// unencoded text become NaN.
func matrix(t *table.Table, features []string, enc Encodings) ([]float64, error) {
	idx := make([]int, len(features))
	for j, c := range features {
		i, ok := t.Index(c)
		if !ok {
			return nil, fmt.Errorf("input has no column %s", c)
		}
		idx[j] = i
	}

	data := make([]float64, 0, t.Len()*len(features))
	for r := 0; r < t.Len(); r++ {
		row := t.Row(r)
		for j, i := range idx {
			data = append(data, encode(row[i], enc[features[j]]))
		}
	}
	return data, nil
}

func encode(v table.Value, enc map[string]float64) float64 {
	switch v.Kind() {
	case table.KindNumber:
		f, _ := v.Float()
		return f
	case table.KindString:
		if f, ok := enc[v.Text()]; ok {
			return f
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
