// Package gamma generates presentations through the Gamma public API.
package gamma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/dispatch"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/poller"
)

type Client struct {
	baseURL   string
	apiKey    string
	textMode  string
	themeName string
	numCards  int
	http      *http.Client
}

func New(cfg config.GammaConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, copyErrors.InvalidInput("backends.gamma.api_key is not set")
	}
	if httpClient == nil {
		timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultGammaTimeout)
		if err != nil {
			return nil, copyErrors.InvalidInput(fmt.Sprintf("invalid backends.gamma.timeout: %v", err))
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultGammaBaseURL
	}
	textMode := cfg.TextMode
	if textMode == "" {
		textMode = config.DefaultGammaTextMode
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		textMode:  textMode,
		themeName: cfg.ThemeName,
		numCards:  cfg.NumCards,
		http:      httpClient,
	}, nil
}

type generationRequest struct {
	InputText              string `json:"inputText"`
	TextMode               string `json:"textMode,omitempty"`
	ThemeName              string `json:"themeName,omitempty"`
	NumCards               int    `json:"numCards,omitempty"`
	AdditionalInstructions string `json:"additionalInstructions,omitempty"`
}

type generationStatus struct {
	GenerationID string `json:"generationId"`
	Status       string `json:"status"`
	GammaURL     string `json:"gammaUrl"`
	Error        *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate starts a generation. Gamma always answers with a generation id,
// so the dispatcher treats presentations as async unless a URL is present.
func (c *Client) Generate(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	body := generationRequest{
		InputText:              req.Prompt,
		TextMode:               c.textMode,
		ThemeName:              c.themeName,
		NumCards:               c.numCards,
		AdditionalInstructions: instructions(req),
	}

	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/generations", body, &out); err != nil {
		return nil, err
	}
	return dispatch.Response(out), nil
}

// instructions flattens the content type and the context bag into Gamma's
// free-text field, one "key: value" line per entry in key order.
func instructions(req dispatch.Request) string {
	var lines []string
	if req.ContentType != "" {
		lines = append(lines, "content type: "+req.ContentType.Label())
	}
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var value string
		switch v := req.Context[k].(type) {
		case nil:
			continue
		case string:
			value = strings.TrimSpace(v)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				continue
			}
			value = string(raw)
		}
		if value != "" {
			lines = append(lines, k+": "+value)
		}
	}
	return strings.Join(lines, "\n")
}

// Status implements poller.StatusSource.
func (c *Client) Status(ctx context.Context, jobID string) (poller.JobStatus, error) {
	var out generationStatus
	if err := c.do(ctx, http.MethodGet, "/generations/"+url.PathEscape(jobID), nil, &out); err != nil {
		return poller.JobStatus{}, err
	}

	status := poller.JobStatus{State: poller.ParseState(strings.ToLower(out.Status)), ArtifactURL: out.GammaURL}
	if out.Error != nil {
		status.Error = out.Error.Message
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return copyErrors.WrapWithCategory(err, "encode gamma payload", copyErrors.ErrInvalidInput)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return copyErrors.WrapWithCategory(err, "build gamma request", copyErrors.ErrInvalidInput)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return copyErrors.WrapWithCategory(err, "gamma request", copyErrors.ErrTransient)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return copyErrors.WrapWithCategory(err, "read gamma response", copyErrors.ErrTransient)
	}
	if resp.StatusCode >= 400 {
		return copyErrors.Wrap(copyErrors.FromHTTPStatus(resp.StatusCode, string(raw)), "gamma")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return copyErrors.WrapWithCategory(err, "gamma returned invalid JSON", copyErrors.ErrBackend)
	}
	return nil
}
