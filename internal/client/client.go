// Package client is a typed client for the registry's JSON API.
//
// Every call sends the session token as a bearer token. A 401 on a request
// that carried a token means the session is gone server-side: the client
// clears the local session and returns apperror.ErrUnauthorized so the caller
// can ask the user to log in again. Other failures come back as
// *apperror.AppError rebuilt from the error envelope.
//
// The client sets no timeouts and never retries; callers bound requests
// with their context.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/circuitpad/internal/apperror"
)

// TokenStore is the part of the session store the client needs.
type TokenStore interface {
	Token() string
	Clear() error
}

// Client talks to one registry.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions TokenStore
	logger   *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL. sessions may be nil for anonymous use.
func New(baseURL string, sessions TokenStore, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		sessions: sessions,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorEnvelope struct {
	Error struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
		Field     string `json:"field"`
	} `json:"error"`
}

// get sends a GET with query parameters and decodes the member key of the
// success envelope into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, key string, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	return c.do(req, key, out)
}

// post sends body as JSON and decodes the member key of the reply into out.
// key may be empty when the reply carries nothing of interest.
func (c *Client) post(ctx context.Context, path string, body any, key string, out any) error {
	req, err := c.jsonRequest(ctx, path, body)
	if err != nil {
		return err
	}
	return c.do(req, key, out)
}

func (c *Client) jsonRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, key string, out any) error {
	_, err := c.doStatus(req, key, out)
	return err
}

// doStatus is do for callers that branch on the success status.
func (c *Client) doStatus(req *http.Request, key string, out any) (int, error) {
	resp, sentToken, err := c.send(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, c.failure(req, resp, sentToken)
	}
	if key == "" || out == nil {
		return resp.StatusCode, nil
	}

	var env map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, fmt.Errorf("client: decoding %s response: %w", req.URL.Path, err)
	}
	raw, ok := env[key]
	if !ok {
		return resp.StatusCode, fmt.Errorf("client: %s response has no %q", req.URL.Path, key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("client: decoding %s: %w", key, err)
	}
	return resp.StatusCode, nil
}

// send attaches the token and performs the request. The caller owns the body
// on success.
func (c *Client) send(req *http.Request) (*http.Response, bool, error) {
	token := ""
	if c.sessions != nil {
		token = c.sessions.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, false, fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, token != "", nil
}

// failure turns a non-2xx response into an error and handles session expiry.
func (c *Client) failure(req *http.Request, resp *http.Response, sentToken bool) error {
	var env errorEnvelope
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(body, &env)

	appErr := apperror.FromStatus(resp.StatusCode, env.Error.ErrorCode, env.Error.Message, env.Error.Field)

	c.logger.Error("request rejected",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("code", appErr.Code),
		slog.String("error", appErr.Message),
	)

	if resp.StatusCode == http.StatusUnauthorized && sentToken {
		if err := c.sessions.Clear(); err != nil {
			c.logger.Error("failed to clear expired session", slog.String("error", err.Error()))
		}
		return apperror.Unauthorized("session expired, log in again")
	}
	return appErr
}
