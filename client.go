package metadefender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Bob-Loth/opswat-demo/internal/log"
)

const (
	// DefaultBaseURL is the MetaDefender Cloud v4 API.
	DefaultBaseURL = "https://api.metadefender.com/v4"
	// EnvAPIKey is the environment variable holding the API key.
	EnvAPIKey = "OPSWAT_API_KEY"

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 16 << 20

	pathHash = "/hash/"
	pathFile = "/file"

	headerAPIKey       = "apikey"
	headerFilename     = "filename"
	headerFileMetadata = "x-file-metadata"
)

// Client is the REST client for the MetaDefender API.
// It is read-only after construction and safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
}

// NewClient creates a REST client authenticated with apiKey.
// An empty apiKey is a configuration error; no request is ever made.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, NewConfigurationError(fmt.Sprintf("API key is required; set %s", EnvAPIKey), nil)
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.baseURL = strings.TrimRight(c.baseURL, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid base URL: %s", c.baseURL), err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, NewValidationError(fmt.Sprintf("base URL must include scheme and host: %s", c.baseURL), nil)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c, nil
}

// NewClientFromEnv creates a REST client using the API key in OPSWAT_API_KEY.
func NewClientFromEnv(opts ...ClientOption) (*Client, error) {
	return NewClient(os.Getenv(EnvAPIKey), opts...)
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// LookupHash asks whether the service already knows a file with fingerprint fp.
// It returns nil, nil when the hash is not found.
func (c *Client) LookupHash(ctx context.Context, fp Fingerprint) (*LookupResult, error) {
	if fp == "" {
		return nil, NewValidationError("fingerprint is required", nil)
	}

	req, err := c.newRequest(ctx, http.MethodGet, pathHash+url.PathEscape(fp.String()), nil)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		return parseLookup(body, status)
	case http.StatusNotFound:
		log.Debugf("hash %s not found", fp)
		return nil, nil
	default:
		return nil, c.handleErrorResponse("hash lookup", status, body)
	}
}

// Submit uploads data for analysis. filename is sent as metadata only.
func (c *Client) Submit(ctx context.Context, data []byte, filename string) (*Submission, error) {
	filename = filepath.Base(filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = "file"
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathFile, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(headerFilename, filename)

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.handleErrorResponse("file upload", status, body)
	}

	var sub Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, NewTransportError("failed to decode upload response", err)
	}
	if sub.DataID == "" {
		return nil, NewTransportError("upload response has no data_id", nil)
	}

	log.Debugf("submitted %s: data_id=%s status=%s in_queue=%d priority=%s",
		filename, sub.DataID, sub.Status, sub.InQueue, sub.QueuePriority)
	return &sub, nil
}

// FetchAnalysis retrieves the current state of the analysis for dataID.
// The report may be partial; check its progress. A data_id the service does
// not know is reported as a job-not-found error.
func (c *Client) FetchAnalysis(ctx context.Context, dataID string) (*AnalysisReport, error) {
	if strings.TrimSpace(dataID) == "" {
		return nil, NewValidationError("data_id is required", nil)
	}

	req, err := c.newRequest(ctx, http.MethodGet, pathFile+"/"+url.PathEscape(dataID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerFileMetadata, "0")

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var report AnalysisReport
		if err := json.Unmarshal(body, &report); err != nil {
			return nil, NewTransportError("failed to decode analysis response", err)
		}
		if report.DataID == "" {
			report.DataID = dataID
		}
		return &report, nil
	case http.StatusNotFound:
		return nil, NewJobNotFoundError(dataID)
	default:
		return nil, c.handleErrorResponse("fetch analysis", status, body)
	}
}

// parseLookup accepts both shapes of a hash hit: a bare {"data_id": ...}
// and a full report carrying scan_results.
func parseLookup(body []byte, status int) (*LookupResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, NewTransportError("malformed hash lookup response", nil)
	}

	dataID := gjson.GetBytes(body, "data_id").String()
	if dataID == "" {
		return nil, NewTransportError("hash lookup response has no data_id", nil)
	}

	result := &LookupResult{DataID: dataID}
	if gjson.GetBytes(body, "scan_results").IsObject() {
		var report AnalysisReport
		if err := json.Unmarshal(body, &report); err != nil {
			return nil, NewTransportError("failed to decode hash lookup report", err)
		}
		result.Report = &report
	}
	return result, nil
}

// newRequest creates an HTTP request with context, base URL, credential and default headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, NewTransportError("failed to create request", err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(headerAPIKey, c.apiKey)

	return req, nil
}

// do executes an HTTP request and returns the status and body.
// Transport errors are mapped to package error types.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, c.classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, c.classifyTransportError(err)
	}

	log.Debugf("%s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)
	return resp.StatusCode, body, nil
}

// handleErrorResponse maps a status the operation does not define to a
// protocol violation, keeping the service's own message when it sent one.
func (c *Client) handleErrorResponse(op string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.messages.0").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}

	log.Warnf("%s: unexpected status %d: %s", op, status, msg)

	text := fmt.Sprintf("%s: unexpected status %d", op, status)
	if msg != "" {
		text += ": " + msg
	}
	return NewProtocolViolationError(text, status, nil)
}

// classifyTransportError maps Go transport errors to package error types.
func (c *Client) classifyTransportError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("request canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("request timed out", err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return NewTimeoutError("request timed out", err)
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return NewTransportError("connection failed", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewTransportError("DNS resolution failed", err)
	}

	return NewTransportError("request failed", err)
}
