// Package edge talks to the product's Supabase edge functions.
package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/copydesk/internal/config"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
)

// Client invokes edge functions at {base}/functions/v1/{name}.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewClient(baseURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		anonKey: anonKey,
		http:    httpClient,
	}
}

func NewClientFromConfig(cfg config.EdgeConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, copyErrors.InvalidInput("backends.edge.base_url is not set")
	}
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultEdgeTimeout)
	if err != nil {
		return nil, copyErrors.InvalidInput(fmt.Sprintf("invalid backends.edge.timeout: %v", err))
	}
	return NewClient(cfg.BaseURL, cfg.AnonKey, &http.Client{Timeout: timeout}), nil
}

// Invoke posts payload as JSON and decodes a JSON object reply.
func (c *Client) Invoke(ctx context.Context, function string, payload any) (map[string]any, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, copyErrors.WrapWithCategory(err, "encode edge payload", copyErrors.ErrInvalidInput)
	}

	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, copyErrors.WrapWithCategory(err, "build edge request", copyErrors.ErrInvalidInput)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, copyErrors.WrapWithCategory(err, fmt.Sprintf("edge function %s", function), copyErrors.ErrTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, copyErrors.WrapWithCategory(err, "read edge response", copyErrors.ErrTransient)
	}
	if resp.StatusCode >= 400 {
		return nil, copyErrors.Wrap(copyErrors.FromHTTPStatus(resp.StatusCode, string(body)), fmt.Sprintf("edge function %s", function))
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, copyErrors.WrapWithCategory(err, fmt.Sprintf("edge function %s returned invalid JSON", function), copyErrors.ErrBackend)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
