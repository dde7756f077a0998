// Package crmclient is a Go client for the CRM HTTP API. A Client holds
// the transport; signing in yields a Session, which carries the token, a
// read cache invalidated by the same policy the server publishes, and a
// route guard that mirrors the server's permission gate.
package crmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lalith-99/crmhub/internal/apperr"
	"github.com/lalith-99/crmhub/internal/tenancy"
	"github.com/lalith-99/crmhub/pkg/envelope"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 2
)

// ErrRetryable marks failures that may succeed if repeated: transport
// errors, timeouts and 5xx responses. Test with errors.Is.
var ErrRetryable = errors.New("crmclient: retryable")

// ErrClosed is returned by every call on a closed Session.
var ErrClosed = errors.New("crmclient: session closed")

// APIError is a non-2xx response. Code is the server's error code, such
// as "validation_error" or "already_converted".
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("crmclient: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("crmclient: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrRetryable && e.Status >= http.StatusInternalServerError
}

// HasKind reports whether err is an APIError carrying kind's code.
func HasKind(err error, kind apperr.Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == string(kind)
}

type Config struct {
	// BaseURL is the server root, e.g. https://acme.crm.example.com.
	BaseURL string
	// Subdomain is sent as the advisory tenant header when set. The
	// server only honours it on local hosts.
	Subdomain string
	// Timeout bounds each attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of extra attempts for GET requests. Negative
	// disables retries; zero means DefaultRetries.
	Retries int
	Logger  *zap.Logger
}

type Client struct {
	http      *resty.Client
	baseURL   string
	subdomain string
	logger    *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = DefaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(retryable)
	if cfg.Subdomain != "" {
		httpClient.SetHeader(tenancy.HeaderSubdomain, cfg.Subdomain)
	}

	return &Client{http: httpClient, baseURL: base, subdomain: cfg.Subdomain, logger: cfg.Logger}
}

// retryable repeats only GETs, and only after a transport failure or a
// 5xx. Writes are never repeated.
func retryable(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp.StatusCode() >= http.StatusInternalServerError
}

// send performs one call and returns the raw 2xx body.
func (c *Client) send(ctx context.Context, token, method, path string, query url.Values, body any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.logger.Warn("crm api call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRetryable, method, path, err)
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	return resp.Body(), nil
}

func decodeError(resp *resty.Response) error {
	var body envelope.Error
	if err := decodeStrict(resp.Body(), &body); err != nil || body.Error.Code == "" {
		return &APIError{Status: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	}
	return &APIError{
		Status:  resp.StatusCode(),
		Code:    body.Error.Code,
		Message: body.Error.Message,
		Fields:  body.Error.Fields,
	}
}

// decodeStrict rejects unknown fields and trailing data, so any drift
// between server and client shapes fails loudly.
func decodeStrict(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("crmclient: decode response: %w", err)
	}
	if dec.More() {
		return errors.New("crmclient: decode response: trailing data")
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login signs in and returns a Session bound to the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	raw, err := c.send(ctx, "", http.MethodPost, "/api/auth/login", nil, loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	var out envelope.Single[SessionInfo]
	if err := decodeStrict(raw, &out); err != nil {
		return nil, err
	}
	return newSession(c, out.Data), nil
}

// Resume wraps a token obtained earlier, loading the caller's profile.
func (c *Client) Resume(ctx context.Context, token string) (*Session, error) {
	raw, err := c.send(ctx, token, http.MethodGet, "/api/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}
	var out envelope.Single[Profile]
	if err := decodeStrict(raw, &out); err != nil {
		return nil, err
	}
	return newSession(c, SessionInfo{Token: token, Profile: out.Data}), nil
}
