package net

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response body ends up in an error.
const maxErrorBody = 512

// PostJSON sends body as JSON to url using c and decodes the response into
// target. Any status other than 200 is an error.
func PostJSON[T any](ctx context.Context, c *http.Client, url string, body any, target *T) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("error creating HTTP Post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", clientAgent)

	resp, err := c.Do(req) //nolint:gosec // G704: URL from config, not request input
	if err != nil {
		return fmt.Errorf("error executing HTTP Post request: %w", err)
	}
	defer resp.Body.Close()
	PrintHTTPResponse(resp)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding content: %w", err)
	}
	return nil
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
}
