package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultBaseURL is the backend address used when nothing else is configured.
	DefaultBaseURL = "http://localhost:18080"

	generatePath = "/api/codegen/generate"
	uploadPath   = "/api/codegen/uploadToMinIo"
	healthPath   = "/health"
	uploadField  = "multipartFile"
)

// Config controls how the backend is reached.
type Config struct {
	BaseURL    string
	EntityName string
	Framing    Framing
	StrictUTF8 bool
	// Timeout bounds a whole request including its streamed body. Zero means none.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements core.Generator and core.Uploader over HTTP.
type Client struct {
	cfg  Config
	base *url.URL
	http *http.Client
}

var (
	_ core.Generator = (*Client)(nil)
	_ core.Uploader  = (*Client)(nil)
)

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("codegen base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("codegen base url must be http or https: %q", raw)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("codegen base url has no host: %q", raw)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	cfg.BaseURL = base.String()
	if strings.TrimSpace(cfg.EntityName) == "" {
		cfg.EntityName = schema.DefaultEntityName
	}
	framing, err := ParseFraming(string(cfg.Framing))
	if err != nil {
		return nil, err
	}
	cfg.Framing = framing
	if cfg.Timeout < 0 {
		return nil, errors.New("codegen timeout must be >= 0")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, base: base, http: httpClient}, nil
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

type generateBody struct {
	EntityName string `json:"entity_name"`
	Fields     string `json:"fields"`
}

// Generate opens a streaming generation request. The returned stream owns
// the response body until Close.
func (c *Client) Generate(ctx context.Context, req core.GenerateRequest) (core.FragmentStream, error) {
	if strings.TrimSpace(req.Fields) == "" {
		return nil, &schema.ValidationError{Field: "fields", Reason: schema.ErrEmptyFields}
	}
	entity := strings.TrimSpace(req.EntityName)
	if entity == "" {
		entity = c.cfg.EntityName
	}
	payload, err := json.Marshal(generateBody{EntityName: entity, Fields: req.Fields})
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := c.requestContext(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.endpoint(generatePath), bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson, text/plain;q=0.9, */*;q=0.8")

	log := pslog.Ctx(ctx)
	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		log.Warn("codegen generate request failed", "err", err)
		return nil, &schema.TransportError{Op: "generate", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := readSnippet(resp.Body)
		_ = resp.Body.Close()
		cancel()
		log.Warn("codegen generate rejected", "status", resp.StatusCode, "body", snippet)
		return nil, &schema.TransportError{Op: "generate", Status: resp.StatusCode, Err: bodyError(snippet)}
	}
	framing := resolveFraming(c.cfg.Framing, resp.Header.Get("Content-Type"))
	log.Debug("codegen generate streaming", "status", resp.StatusCode, "framing", framing, "latency_ms", time.Since(started).Milliseconds())
	return newFragmentStream(streamCtx, cancel, resp.Body, framing, c.cfg.StrictUTF8), nil
}

// Upload forwards a document as multipart field multipartFile. Success
// requires a 2xx status and code 200 in the JSON answer.
func (c *Client) Upload(ctx context.Context, name string, body io.Reader) (schema.UploadResult, error) {
	if strings.TrimSpace(name) == "" || body == nil {
		return schema.UploadResult{}, &schema.ValidationError{Field: uploadField, Reason: schema.ErrInvalidRequest}
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(uploadField, name)
	if err != nil {
		return schema.UploadResult{}, err
	}
	size, err := io.Copy(part, body)
	if err != nil {
		return schema.UploadResult{}, err
	}
	if err := writer.Close(); err != nil {
		return schema.UploadResult{}, err
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(uploadPath), &buf)
	if err != nil {
		return schema.UploadResult{}, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	log := pslog.Ctx(ctx).With("file", name, "size", size)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.Warn("codegen upload failed", "err", err)
		return schema.UploadResult{}, &schema.TransportError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()
	var result schema.UploadResult
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("codegen upload rejected", "status", resp.StatusCode)
		return result, &schema.TransportError{Op: "upload", Status: resp.StatusCode, Err: bodyError(result.Message)}
	}
	if decodeErr != nil {
		return result, fmt.Errorf("%w: decode response: %v", schema.ErrUploadRejected, decodeErr)
	}
	if result.Code != http.StatusOK {
		log.Warn("codegen upload rejected", "code", result.Code, "message", result.Message)
		return result, fmt.Errorf("%w: code %d: %s", schema.ErrUploadRejected, result.Code, result.Message)
	}
	log.Info("codegen upload ok")
	return result, nil
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) (schema.HealthReport, error) {
	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()
	report := schema.HealthReport{BaseURL: c.cfg.BaseURL}
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint(healthPath), nil)
	if err != nil {
		return report, err
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return report, &schema.TransportError{Op: "health", Err: err}
	}
	defer resp.Body.Close()
	report.Status = resp.StatusCode
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return report, &schema.TransportError{Op: "health", Status: resp.StatusCode}
	}
	var details any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &details); err != nil {
			details = strings.TrimSpace(string(data))
		}
	}
	report.Details = details
	return report, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}

func bodyError(text string) error {
	if text == "" {
		return nil
	}
	return errors.New(text)
}
