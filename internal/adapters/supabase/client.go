package supabase

// Package supabase talks to a hosted Supabase project: GoTrue for credential
// flows and PostgREST for profile rows.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	maxErrorBodyBytes = 64 << 10
	defaultTimeout    = 15 * time.Second
)

// Config holds the project settings.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	HTTPClient     *http.Client // Optional, defaults to a client with a 15s timeout
	Logger         *slog.Logger
	Now            func() time.Time
}

// Client is a stateless project client. Per-session state lives with the caller.
type Client struct {
	base       *url.URL
	anonKey    string
	serviceKey string
	http       *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// APIError is a structured error body returned by GoTrue or PostgREST.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

// NewClient creates a project client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if raw == "" {
		return nil, errors.New("supabase URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse supabase URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("supabase URL must be http or https, got %q", base.Scheme)
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase anon key is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		base:       base,
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		http:       hc,
		logger:     logger.With("component", "supabase"),
		now:        now,
	}, nil
}

// URL returns the project base URL.
func (c *Client) URL() string { return c.base.String() }

type request struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	bearer  string
	body    any
	out     any
	okCodes []int
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends r. Transport failures are Network errors, error bodies are decoded
// into *APIError and returned wrapped as AuthBackend errors.
func (c *Client) do(ctx context.Context, r request) error {
	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	for k, vs := range r.header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperrors.Network(err, fmt.Sprintf("%s %s", r.method, r.path))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close response body", "error", cerr)
		}
	}()

	if !accepted(resp.StatusCode, r.okCodes) {
		apiErr := decodeAPIError(resp)
		return apperrors.Wrap(apiErr, apperrors.ErrCodeAuthBackend, apiErr.Message)
	}
	if r.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(err, apperrors.ErrCodeAuthBackend, "decode response")
	}
	return nil
}

func accepted(status int, codes []int) bool {
	if len(codes) == 0 {
		return status >= 200 && status < 300
	}
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}

// errorBody covers the GoTrue and PostgREST error shapes.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var eb errorBody
	if json.Unmarshal(raw, &eb) != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	switch {
	case eb.ErrorCode != "":
		apiErr.Code = eb.ErrorCode
	case eb.Error != "":
		apiErr.Code = eb.Error
	default:
		if s, ok := eb.Code.(string); ok {
			apiErr.Code = s
		}
	}
	for _, m := range []string{eb.Msg, eb.Message, eb.ErrorDescription, eb.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// AsAPIError extracts the backend error body from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
