package circleci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/tracing"

	"golang.org/x/time/rate"
)

const TokenHeader = "Circle-Token"

const defaultBaseURL = "https://circleci.com"

type ClientConfig struct {
	BaseURL     string
	ProjectSlug string
	APIKey      string
	Timeout     time.Duration
	// RequestsPerSecond paces every outbound call, artifact downloads included.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client talks to the CircleCI v2 API. It is safe for concurrent use.
type Client struct {
	baseURL string
	slug    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}
	return &Client{
		baseURL: base,
		slug:    cfg.ProjectSlug,
		token:   cfg.APIKey,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *Client) ProjectSlug() string { return c.slug }

// Manifest maps artifact paths to download URLs for one job.
type Manifest map[string]string

// Artifacts lists the artifacts a job published.
func (c *Client) Artifacts(ctx context.Context, jobNumber string) (Manifest, error) {
	endpoint := fmt.Sprintf("%s/api/v2/project/%s/%s/artifacts", c.baseURL, c.slug, url.PathEscape(jobNumber))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "artifacts", "")
	if err != nil {
		return nil, err
	}
	return parseManifest(body)
}

func parseManifest(body []byte) (Manifest, error) {
	var wire struct {
		Items *[]struct {
			Path *string `json:"path"`
			URL  *string `json:"url"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, schemaError("artifacts", "decode manifest: %v", err)
	}
	if wire.Items == nil {
		return nil, schemaError("artifacts", "manifest has no items array")
	}
	m := make(Manifest, len(*wire.Items))
	for i, item := range *wire.Items {
		if item.Path == nil || item.URL == nil {
			return nil, schemaError("artifacts", "manifest item %d lacks path or url", i)
		}
		m[*item.Path] = *item.URL
	}
	return m, nil
}

// Fetch downloads an artifact URL with the API token attached.
func (c *Client) Fetch(ctx context.Context, rawURL string, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "fetch", path)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, op, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError(op, path, err)
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, transportError(op, path, err)
	}
	req.Header.Set(TokenHeader, c.token)
	tracing.InjectHeaders(ctx, req.Header)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(op, path, resp.StatusCode)
	}
	return data, nil
}
