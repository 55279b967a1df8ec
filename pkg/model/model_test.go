package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/credscore/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, cols []string, rows ...[]table.Value) *table.Table {
	t.Helper()
	tbl, err := table.New(cols)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, tbl.Append(r))
	}
	return tbl
}

func TestLoad_Logistic(t *testing.T) {
	s, err := Load(context.Background(), "testdata/logistic.json", Options{})
	require.NoError(t, err)
	require.IsType(t, &LogisticModel{}, s)

	in := mustTable(t, []string{"NAME_CONTRACT_TYPE", "DEBT_INCOME_RATIO", "EXTRA"},
		[]table.Value{table.String("Cash loans"), table.Number(4), table.Number(9)},
		[]table.Value{table.String("Revolving loans"), table.Number(2), table.Missing()},
		[]table.Value{table.String("Unknown"), table.Missing(), table.Missing()},
	)

	p, err := s.Score(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, p, 3)
	assert.InDelta(t, sigmoid(-1+0.5*4), p[0], 1e-12)
	assert.InDelta(t, sigmoid(-1+0.5*2-1), p[1], 1e-12)
	// missing and unknown values contribute nothing
	assert.InDelta(t, sigmoid(-1), p[2], 1e-12)
	assert.NoError(t, Close(s))
}

func TestLogistic_EmptyAndMissingColumn(t *testing.T) {
	m := &LogisticModel{Features: []string{"A"}, Coefficients: []float64{1}}

	p, err := m.Score(context.Background(), mustTable(t, []string{"A"}))
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = m.Score(context.Background(), mustTable(t, []string{"B"}, []table.Value{table.Number(1)}))
	assert.Error(t, err)
}

func TestLoad_Trees(t *testing.T) {
	s, err := Load(context.Background(), "testdata/trees.json", Options{})
	require.NoError(t, err)

	in := mustTable(t, []string{"AGE", "EXT_SOURCE_2"},
		[]table.Value{table.Number(25), table.Number(0.1)},
		[]table.Value{table.Number(45), table.Number(0.5)},
		[]table.Value{table.Number(45), table.Number(0.9)},
		[]table.Value{table.Missing(), table.Missing()},
	)

	p, err := s.Score(context.Background(), in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.15, 0.4}, p, 1e-12)
}

func TestTrees_Logistic(t *testing.T) {
	m := &TreeEnsemble{
		Features:  []string{"A"},
		Objective: ObjectiveLogistic,
		BaseScore: -0.5,
		Trees: []*TreeNode{
			{Feature: 0, Threshold: 1, Left: &TreeNode{IsLeaf: true, Value: -1}, Right: &TreeNode{IsLeaf: true, Value: 1}},
			{IsLeaf: true, Value: 0.25},
		},
	}
	require.NoError(t, m.validate())

	p, err := m.Score(context.Background(), mustTable(t, []string{"A"},
		[]table.Value{table.Number(1)},
		[]table.Value{table.Number(2)},
	))
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(-1.25), p[0], 1e-12)
	assert.InDelta(t, sigmoid(0.75), p[1], 1e-12)
}

func TestTrees_Validate(t *testing.T) {
	tests := []struct {
		name string
		m    TreeEnsemble
	}{
		{"no features", TreeEnsemble{Objective: ObjectiveLogistic, Trees: []*TreeNode{{IsLeaf: true}}}},
		{"no trees", TreeEnsemble{Features: []string{"A"}, Objective: ObjectiveLogistic}},
		{"bad objective", TreeEnsemble{Features: []string{"A"}, Objective: "softmax", Trees: []*TreeNode{{IsLeaf: true}}}},
		{"bad index", TreeEnsemble{Features: []string{"A"}, Objective: ObjectiveLogistic, Trees: []*TreeNode{
			{Feature: 3, Left: &TreeNode{IsLeaf: true}, Right: &TreeNode{IsLeaf: true}},
		}}},
		{"missing child", TreeEnsemble{Features: []string{"A"}, Objective: ObjectiveLogistic, Trees: []*TreeNode{
			{Feature: 0, Left: &TreeNode{IsLeaf: true}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.m.validate())
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Load(ctx, filepath.Join(dir, "final_model.onnx"), Options{})
	assert.True(t, errors.Is(err, ErrArtifactNotFound))

	_, err = Load(ctx, "", Options{})
	assert.True(t, errors.Is(err, ErrArtifactNotFound))

	pkl := filepath.Join(dir, "final_model.pkl")
	require.NoError(t, os.WriteFile(pkl, []byte("x"), 0o600))
	_, err = Load(ctx, pkl, Options{})
	assert.Error(t, err)

	unknown := filepath.Join(dir, "m.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"type":"svm"}`), 0o600))
	_, err = Load(ctx, unknown, Options{})
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type":"logistic","features":["A"],"coefficients":[]}`), 0o600))
	_, err = Load(ctx, bad, Options{})
	assert.Error(t, err)
}

func TestRemoteScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req remoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := remoteResponse{Probabilities: make([]float64, len(req.Rows))}
		for i := range req.Rows {
			f, _ := req.Rows[i][0].Float()
			resp.Probabilities[i] = f / 10
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	in := mustTable(t, []string{"A"},
		[]table.Value{table.Number(1)},
		[]table.Value{table.Number(5)},
	)

	s, err := Load(context.Background(), "", Options{RemoteURL: srv.URL, Token: "secret"})
	require.NoError(t, err)
	p, err := s.Score(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.5}, p)

	_, err = NewRemote(context.Background(), srv.URL, "").Score(context.Background(), in)
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	enc := map[string]float64{"M": 1}
	assert.Equal(t, 2.5, encode(table.Number(2.5), enc))
	assert.Equal(t, 1.0, encode(table.String("M"), enc))
	assert.True(t, math.IsNaN(encode(table.String("F"), enc)))
	assert.True(t, math.IsNaN(encode(table.Missing(), enc)))
}
