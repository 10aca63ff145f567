// Package client provides the HTTP client for the ingestion gateway
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/c360/semrelay/config"
	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/event"
	"github.com/c360/semrelay/health"
	"github.com/c360/semrelay/pkg/tlsutil"
)

// Gateway paths, relative to the configured ingest URL
const (
	PathIngest      = "/api/v1/ingest"
	PathIngestBatch = "/api/v1/ingest/batch"
	PathPipelines   = "/api/v1/pipelines"
	PathHealth      = "/api/v1/health"
)

// Request headers
const (
	HeaderWorkspace  = "X-Workspace"
	HeaderPipelineID = "X-Pipeline-Id"
	HeaderRequestID  = "X-Request-Id"
	HeaderSignature  = "X-Signature"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics
const maxErrorBody = 64 * 1024

// StatusError is returned for any non-2xx response. Body holds the response text.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// Unwrap maps well-known status codes onto the standard sentinels
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return errors.ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return errors.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return errors.ErrRateLimited
	case e.StatusCode >= 500:
		return errors.ErrGatewayUnavailable
	default:
		return errors.ErrInvalidData
	}
}

// Pipeline is the gateway's view of a pipeline definition
type Pipeline struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Status      string          `json:"status"`
	Description string          `json:"description,omitempty"`
	Steps       json.RawMessage `json:"steps,omitempty"`
}

// Client talks to the ingestion gateway. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	workspace  string
	userAgent  string
	compress   bool
	sign       bool
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCompression gzips request bodies
func WithCompression(enabled bool) Option {
	return func(c *Client) {
		c.compress = enabled
	}
}

// WithSigning adds a BLAKE3 digest of each request body in X-Signature
func WithSigning(enabled bool) Option {
	return func(c *Client) {
		c.sign = enabled
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a gateway client. An invalid or missing configuration is a fatal
// error, distinct from anything the gateway itself may return.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Client", "New", "configuration required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpClient.Transport = transport
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.IngestURL, "/"),
		apiKey:     cfg.APIKey,
		workspace:  cfg.Workspace,
		userAgent:  "semrelay",
		compress:   cfg.Compress,
		sign:       cfg.SignPayloads,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured ingest URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ingest sends a single event
func (c *Client) Ingest(ctx context.Context, ev event.Event, pipelineID string) error {
	if ev.IsZero() {
		return errors.WrapInvalid(errors.ErrInvalidData, "Client", "Ingest", "encode event")
	}
	return c.do(ctx, "Ingest", http.MethodPost, PathIngest, ev.Bytes(), pipelineID, nil)
}

// IngestBatch sends events as one JSON array, preserving order and each event's bytes
func (c *Client) IngestBatch(ctx context.Context, events []event.Event, pipelineID string) error {
	if len(events) == 0 {
		return errors.WrapInvalid(errors.ErrEmptyBatch, "Client", "IngestBatch", "encode batch")
	}
	payload, err := event.EncodeBatch(events)
	if err != nil {
		return err
	}
	return c.do(ctx, "IngestBatch", http.MethodPost, PathIngestBatch, payload, pipelineID, nil)
}

// PushPipeline uploads a decoded pipeline definition
func (c *Client) PushPipeline(ctx context.Context, definition any) (*Pipeline, error) {
	body, err := json.Marshal(definition)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "PushPipeline", "encode pipeline")
	}
	var p Pipeline
	if err := c.do(ctx, "PushPipeline", http.MethodPost, PathPipelines, body, "", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPipelines returns the pipelines of the workspace
func (c *Client) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	var list []Pipeline
	if err := c.do(ctx, "ListPipelines", http.MethodGet, PathPipelines, nil, "", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetPipeline returns one pipeline by id
func (c *Client) GetPipeline(ctx context.Context, id string) (*Pipeline, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Client", "GetPipeline", "pipeline id required")
	}
	var p Pipeline
	path := PathPipelines + "/" + url.PathEscape(id)
	if err := c.do(ctx, "GetPipeline", http.MethodGet, path, nil, "", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Health queries the gateway health endpoint. A 503 carrying a JSON status is
// decoded rather than treated as a failure.
func (c *Client) Health(ctx context.Context) (*health.Status, error) {
	var s health.Status
	err := c.do(ctx, "Health", http.MethodGet, PathHealth, nil, "", &s)

	var se *StatusError
	if stderrors.As(err, &se) && se.StatusCode == http.StatusServiceUnavailable {
		if jerr := json.Unmarshal([]byte(se.Body), &s); jerr == nil {
			s.Healthy = false
			if s.Status == "" {
				s.Status = health.StatusUnhealthy
			}
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}

	if s.Component == "" {
		s.Component = "gateway"
	}
	s = s.Normalize()
	return &s, nil
}

// do issues one request and decodes a successful JSON response into out
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, pipelineID string, out any) error {
	req, err := c.newRequest(ctx, method, path, body, pipelineID)
	if err != nil {
		return errors.WrapInvalid(err, "Client", op, "build request")
	}

	c.logger.Debug("Gateway request",
		"method", method,
		"path", path,
		"bytes", len(body),
		"request_id", req.Header.Get(HeaderRequestID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "Client", op, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(&StatusError{StatusCode: resp.StatusCode, Body: string(data)}, op)
	}

	if out == nil {
		// Drain to reuse the connection
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WrapInvalid(err, "Client", op, "decode response")
	}
	return nil
}

func classifyStatus(se *StatusError, op string) error {
	switch {
	case se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500:
		return errors.WrapTransient(se, "Client", op, "gateway response")
	case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
		return errors.WrapFatal(se, "Client", op, "gateway response")
	default:
		return errors.WrapInvalid(se, "Client", op, "gateway response")
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, pipelineID string) (*http.Request, error) {
	var reader io.Reader
	encoded := body
	if body != nil && c.compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		encoded = buf.Bytes()
	}
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set(HeaderWorkspace, c.workspace)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if pipelineID != "" {
		req.Header.Set(HeaderPipelineID, pipelineID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if c.compress {
			req.Header.Set("Content-Encoding", "gzip")
		}
		if c.sign {
			req.Header.Set(HeaderSignature, event.Digest(body))
		}
	}
	return req, nil
}
