// Package analysis calls the downstream code-risk-analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultAnalyzePath  = "/analyze"
	DefaultHealthPath   = "/health"
	DefaultSecretHeader = "x-shared-secret"

	maxResponseBytes = 1 << 20
	maxSnippetBytes  = 300
)

type Client struct {
	httpClient   *http.Client
	baseURL      string
	analyzePath  string
	healthPath   string
	secretHeader string
	secret       string
	timeout      time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithPaths(analyzePath, healthPath string) Option {
	return func(c *Client) {
		if analyzePath != "" {
			c.analyzePath = analyzePath
		}
		if healthPath != "" {
			c.healthPath = healthPath
		}
	}
}

func WithSecretHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.secretHeader = name
		}
	}
}

func NewClient(baseURL, sharedSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      baseURL,
		analyzePath:  DefaultAnalyzePath,
		healthPath:   DefaultHealthPath,
		secretHeader: DefaultSecretHeader,
		secret:       sharedSecret,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Analyze submits code for a basic scan. It makes exactly one attempt and
// aborts it once the client timeout elapses.
func (c *Client) Analyze(ctx context.Context, code string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"code": code, "mode": "basic"})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.analyzePath, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.secretHeader, c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, &PaymentRequiredError{Body: snippet(body)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	result, err := normalize(body)
	if err != nil {
		return nil, &RemoteError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("malformed response body: %s", snippet(body)),
		}
	}
	return result, nil
}

// Health calls the service's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return &TransportError{Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(ctx, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: c.timeout, Err: err}
	}
	return &TransportError{Err: err}
}

// snippet truncates body to at most maxSnippetBytes without splitting a rune.
func snippet(body []byte) string {
	if len(body) <= maxSnippetBytes {
		return string(body)
	}
	cut := maxSnippetBytes
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut])
}
