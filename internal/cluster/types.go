package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WorkerInfo describes one member of a multi-process group.
type WorkerInfo struct {
	Addr string `json:"addr"`
	Rank int    `json:"rank"`
}

// Envelope is the wire form of a point-to-point message.
type Envelope struct {
	Data   []float64 `json:"data"`
	Source int       `json:"source"`
	Tag    int       `json:"tag"`
}

// HealthResponse is returned by a worker's /health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Rank   int    `json:"rank"`
	Size   int    `json:"size"`
}

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}

// httpClient is shared by every transport in the process so that peers
// reuse keep-alive connections.
var httpClient = &http.Client{Timeout: 60 * time.Second}

// PostJSON posts body as JSON to url and decodes the response into out
// unless out is nil.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", url, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, url, out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return do(req, url, out)
}

// do sends req and decodes a 2xx response into out. Unread bodies are
// drained so the connection goes back to the pool.
func do(req *http.Request, url string, out any) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 300 {
			return &StatusError{URL: url, Code: resp.StatusCode}
		}
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
