package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lnaes/engine/draft"
)

// maxResponseSize limits the adapter response body.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// HTTPGenerator calls an external generation adapter over HTTP. The adapter
// receives the Request as JSON and answers with a draft document.
type HTTPGenerator struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPOption configures an HTTPGenerator.
type HTTPOption func(*HTTPGenerator)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGenerator) {
		g.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(g *HTTPGenerator) {
		g.logger = logger
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(g *HTTPGenerator) {
		g.httpClient.Timeout = d
	}
}

// NewHTTPGenerator creates a generator for the given adapter URL.
func NewHTTPGenerator(url string, opts ...HTTPOption) *HTTPGenerator {
	g := &HTTPGenerator{
		url: url,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate posts the request and decodes the returned draft.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (*draft.Draft, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	g.logger.Debug("Sending generation request",
		"url", g.url,
		"run_id", req.RunID,
		"tone", req.Signal.Tone)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(respBody)
		if len(detail) > 200 {
			detail = detail[:200] + "..."
		}
		return nil, fmt.Errorf("generation adapter error (status %d): %s", resp.StatusCode, detail)
	}

	var d draft.Draft
	if err := json.Unmarshal(respBody, &d); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("generation adapter returned invalid draft: %w", err)
	}
	return &d, nil
}
