package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient makes REST calls to the GilsTracker daemon.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8787").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetSession fetches /api/session.
func (c *HTTPClient) GetSession(ctx context.Context) (*Summary, error) {
	var s Summary
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetHistory fetches /api/history.
func (c *HTTPClient) GetHistory(ctx context.Context) ([]Change, error) {
	var out []Change
	if err := c.do(ctx, http.MethodGet, "/api/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset sends POST /api/session/reset and returns the new summary.
func (c *HTTPClient) Reset(ctx context.Context) (*Summary, error) {
	var s Summary
	if err := c.do(ctx, http.MethodPost, "/api/session/reset", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetConfig fetches /api/config.
func (c *HTTPClient) GetConfig(ctx context.Context) (*Display, error) {
	var p ConfigPayload
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &p); err != nil {
		return nil, err
	}
	return &p.Display, nil
}

// SetShowStatusEntry persists the status entry visibility.
func (c *HTTPClient) SetShowStatusEntry(ctx context.Context, show bool) (*Display, error) {
	body := ConfigPayload{Display: Display{ShowStatusEntry: show}}
	var p ConfigPayload
	if err := c.do(ctx, http.MethodPut, "/api/config", body, &p); err != nil {
		return nil, err
	}
	return &p.Display, nil
}

// Health fetches /healthz.
func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
