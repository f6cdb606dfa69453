// Package apiclient is the single HTTP transport used by everything that talks
// to the storefront backend. It attaches bearer tokens, refreshes them on 401
// and converts every response from dollars to cents before callers see it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/example/ec-storefront-client/internal/money"
	"github.com/example/ec-storefront-client/internal/session"
	"go.uber.org/zap"
)

const (
	// APIPrefix is prepended to every request path.
	APIPrefix = "/api/v1"

	// MaxQueueSize bounds the requests that may wait on a single refresh.
	MaxQueueSize = 100

	maxBodySize = 8 << 20
)

// publicEndpoints never carry a bearer token and never trigger a refresh.
var publicEndpoints = []string{"/auth/login", "/auth/register", "/auth/refresh"}

// TokenStore is where the client reads and rotates tokens.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetTokens(ctx context.Context, t session.Tokens) error
	Clear(ctx context.Context) error
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	converter  money.Converter
	logger     *zap.Logger

	mu       sync.Mutex
	state    State
	queue    *waitQueue
	onLogout func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithQueueCapacity overrides MaxQueueSize.
func WithQueueCapacity(n int) Option {
	return func(c *Client) { c.queue = newWaitQueue(n) }
}

// WithConverter replaces the response money converter.
func WithConverter(conv money.Converter) Option {
	return func(c *Client) { c.converter = conv }
}

// WithLogoutHook sets the function called after an unrecoverable refresh failure.
func WithLogoutHook(fn func()) Option {
	return func(c *Client) { c.onLogout = fn }
}

// New creates a client for the backend at baseURL (without the /api/v1 prefix).
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		tokens:     tokens,
		converter:  money.DefaultConverter,
		logger:     zap.NewNop(),
		state:      StateIdle,
		queue:      newWaitQueue(MaxQueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("apiclient")
	return c
}

// SetLogoutHook sets the logout hook after construction, for stores that are
// built on top of the client.
func (c *Client) SetLogoutHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLogout = fn
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Converter, when set, replaces the client's converter for the response.
	Converter *money.Converter

	// SendDollars converts monetary fields of Body from cents to dollars.
	// Only for bodies that carry client-held cents.
	SendDollars bool

	retried bool
	bearer  string
}

// RequestOption adjusts a Request built by the verb helpers.
type RequestOption func(*Request)

// WithQuery sets query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(r *Request) { r.Query = q }
}

// WithMoneySchema converts only the listed response paths.
func WithMoneySchema(paths ...string) RequestOption {
	return func(r *Request) {
		conv := money.Strict(paths...)
		r.Converter = &conv
	}
}

// SendDollars sets Request.SendDollars.
func SendDollars() RequestOption {
	return func(r *Request) { r.SendDollars = true }
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodGet, path, nil, opts), out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodPost, path, body, opts), out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodPatch, path, body, opts), out)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodDelete, path, nil, opts), out)
}

func newRequest(method, path string, body any, opts []RequestOption) Request {
	r := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Do sends req and decodes the converted response body into out (which may
// be nil). Callers only ever see the final outcome: refreshes and replays
// happen inside.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := c.send(ctx, &req)
	if err != nil {
		return err
	}
	return c.decode(&req, body, out)
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.Get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, req *Request) ([]byte, error) {
	status, body, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && !req.retried && !isPublic(req.Path) {
		return c.recoverUnauthorized(ctx, req)
	}
	if status >= 400 {
		return nil, newAPIError(status, body)
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (int, []byte, error) {
	u := c.baseURL + APIPrefix + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		if req.SendDollars {
			if payload, err = money.DefaultConverter.ToDollarsJSON(payload); err != nil {
				return 0, nil, err
			}
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if !isPublic(req.Path) {
		token := req.bearer
		if token == "" {
			if token, err = c.tokens.AccessToken(ctx); err != nil {
				return 0, nil, err
			}
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read %s %s: %w", ErrTransport, req.Method, req.Path, err)
	}

	c.logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Bool("retried", req.retried),
	)
	return resp.StatusCode, body, nil
}

func (c *Client) decode(req *Request, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	conv := c.converter
	if req.Converter != nil {
		conv = *req.Converter
	}
	converted, err := conv.ToCentsJSON(body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	if err := json.Unmarshal(converted, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func isPublic(path string) bool {
	for _, p := range publicEndpoints {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
