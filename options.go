package metadefender

import (
	"net/http"
	"time"
)

// ClientOption configures the REST client.
type ClientOption func(*Client)

// WithBaseURL overrides the service base URL, e.g. for an on-premises
// MetaDefender Core or a test server. It is validated by NewClient.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the default *http.Client. Its Timeout is left as is.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the default request timeout for all operations.
// If a context with a shorter deadline is provided to a method, that deadline takes precedence.
// Non-positive durations are ignored (no-op).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeaders sets default headers sent with every request.
// The apikey header is always set from the client's credential and cannot be overridden here.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		if headers == nil {
			c.headers = nil
			return
		}
		c.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}
