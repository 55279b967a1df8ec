package model

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mchmarny/credscore/pkg/net"
	"github.com/mchmarny/credscore/pkg/table"
)

// RemoteScorer delegates scoring to a model server that accepts
// {"columns": [...], "rows": [[...]]} and answers {"probabilities": [...]}.
type RemoteScorer struct {
	url    string
	client *http.Client
}

type remoteRequest struct {
	Columns []string        `json:"columns"`
	Rows    [][]table.Value `json:"rows"`
}

type remoteResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// NewRemote returns a scorer for the model server at url. An empty token
// disables authentication.
func NewRemote(ctx context.Context, url, token string) *RemoteScorer {
	c := &RemoteScorer{url: url}
	if token != "" {
		c.client = net.GetOAuthClient(ctx, token)
		return c
	}

	hc, err := net.GetHTTPClient()
	if err != nil {
		hc = http.DefaultClient
	}
	c.client = hc
	return c
}

// Score implements Scorer.
func (r *RemoteScorer) Score(ctx context.Context, t *table.Table) ([]float64, error) {
	req := remoteRequest{
		Columns: t.Columns(),
		Rows:    make([][]table.Value, t.Len()),
	}
	for i := range req.Rows {
		req.Rows[i] = t.Row(i)
	}

	var resp remoteResponse
	if err := net.PostJSON(ctx, r.client, r.url, req, &resp); err != nil {
		return nil, fmt.Errorf("remote model: %w", err)
	}
	return resp.Probabilities, nil
}
