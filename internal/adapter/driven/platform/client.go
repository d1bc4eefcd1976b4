// Package platform implements the PlatformClient port: it attaches auth
// material to one outbound request, dispatches it through the account's bound
// egress proxy, retries transient failures, and classifies the terminal
// result into the shared error taxonomy.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
	"github.com/ericfisherdev/accountpilot/internal/oauth1"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*Client)(nil)

const maxResponseBody = 1 << 20 // 1MB

// Client dispatches signed requests to the platform. One underlying
// http.Client is cached per proxy binding so an account's egress identity
// stays stable across its session.
type Client struct {
	consumer   oauth1.Consumer
	timeout    time.Duration
	maxRetries int

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL; "" is direct egress
}

// NewClient creates a platform client. maxRetries bounds the internal retry
// loop for transient failures; timeout is the per-request deadline.
func NewClient(consumer oauth1.Consumer, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		consumer:   consumer,
		timeout:    timeout,
		maxRetries: maxRetries,
		clients:    make(map[string]*http.Client),
	}
}

// leveledSlog adapts slog for retryablehttp, downgrading the library's ERROR
// lines to WARN since intermediate attempts are retried.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...any) { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Info(msg string, keysAndValues ...any)  { l.inner.Info(msg, keysAndValues...) }
func (l leveledSlog) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }

// retryPolicy retries connection errors and 5xx like the default policy, but
// treats 429 as non-retryable so rate limiting is classified here instead of
// being slept through inside the retry loop.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// clientFor returns the cached http.Client for the proxy binding, building
// one on first use.
func (c *Client) clientFor(proxy model.ProxyBinding) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[proxy.URL]; ok {
		return client, nil
	}

	transport := cleanhttp.DefaultPooledTransport()
	if !proxy.IsZero() {
		proxyURL, err := proxy.Parse()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", driven.ErrProxyUnavailable, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = transport
	retryClient.RetryMax = c.maxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 8 * time.Second
	retryClient.CheckRetry = retryPolicy
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{
		inner: slog.Default().With("subsystem", "platform"),
	})

	client := retryClient.StandardClient()
	client.Timeout = c.timeout

	c.clients[proxy.URL] = client
	return client, nil
}

// Do dispatches one request. The secret variant decides the auth material: a
// session cookie bundle is serialized into a Cookie header verbatim, an OAuth
// token pair is signed into an Authorization header. The switch is
// exhaustive; Secret is a sealed variant.
func (c *Client) Do(ctx context.Context, spec model.RequestSpec, secret model.Secret, proxy model.ProxyBinding) (*model.PlatformResponse, error) {
	httpClient, err := c.clientFor(proxy)
	if err != nil {
		return nil, err
	}

	req, err := c.buildRequest(ctx, spec, secret)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", driven.ErrTransient, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", driven.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", driven.ErrTransient, err)
	}

	return classify(resp.StatusCode, body)
}

func (c *Client) buildRequest(ctx context.Context, spec model.RequestSpec, secret model.Secret) (*http.Request, error) {
	form := url.Values{}
	for k, v := range spec.Params {
		form.Set(k, v)
	}

	var req *http.Request
	var err error
	if spec.Method == http.MethodGet {
		reqURL := spec.URL
		if encoded := form.Encode(); encoded != "" {
			reqURL += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, spec.Method, spec.URL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build platform request: %w", err)
	}

	switch s := secret.(type) {
	case model.SessionCookieBundle:
		req.Header.Set("Cookie", s.CookieHeader())
	case model.OAuthTokenPair:
		header, err := oauth1.AuthorizationHeader(c.consumer, s.Token, s.TokenSecret, spec.Method, spec.URL, spec.Params)
		if err != nil {
			return nil, fmt.Errorf("sign platform request: %w", err)
		}
		req.Header.Set("Authorization", header)
	default:
		return nil, fmt.Errorf("unsupported secret variant %T", secret)
	}

	return req, nil
}

// platformError is the platform's JSON error body shape, used to detect
// invalid-session signals that arrive with a non-401 status.
type platformError struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Invalid-session error codes reported by the platform inside error bodies.
var authErrorCodes = map[int]bool{
	32:  true, // could not authenticate
	64:  true, // account suspended
	89:  true, // invalid or expired token
	215: true, // bad authentication data
}

func classify(status int, body []byte) (*model.PlatformResponse, error) {
	resp := &model.PlatformResponse{StatusCode: status, Body: body}

	switch {
	case status >= 200 && status < 300:
		return resp, nil
	case status == http.StatusTooManyRequests:
		return resp, fmt.Errorf("status %d: %w", status, driven.ErrRateLimited)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return resp, fmt.Errorf("status %d: %w", status, driven.ErrPermanentAuth)
	case status >= 400 && status < 500:
		if hasAuthErrorCode(body) {
			return resp, fmt.Errorf("status %d with auth error code: %w", status, driven.ErrPermanentAuth)
		}
		return resp, fmt.Errorf("platform rejected request with status %d", status)
	default:
		// 5xx that survived the retry budget.
		return resp, fmt.Errorf("status %d: %w", status, driven.ErrTransient)
	}
}

func hasAuthErrorCode(body []byte) bool {
	var pe platformError
	if err := json.Unmarshal(body, &pe); err != nil {
		return false
	}
	for _, e := range pe.Errors {
		if authErrorCodes[e.Code] {
			return true
		}
	}
	return false
}

// IsRetryable reports whether an error from Do may succeed on a later
// attempt (soft errors and transients).
func IsRetryable(err error) bool {
	return errors.Is(err, driven.ErrTransient) || errors.Is(err, driven.ErrRateLimited)
}
