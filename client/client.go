package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	smithytime "github.com/aws/smithy-go/time"
	"github.com/galexite/guildsync"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// maxDiagnosticBody caps how much of an error response is kept for logging.
	maxDiagnosticBody = 4 << 10
)

// Observer is notified after every bucket request.
type Observer interface {
	ObserveRequest(method, path string, kind FailureKind, d time.Duration)
}

// Client reads objects from the bucket. It is safe for concurrent use; the
// only shared state is the HTTP connection pool and the signing key cache.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	signer     *guildsync.Signer
	now        func() time.Time
	logger     *slog.Logger
	observer   Observer

	timeout    time.Duration
	hasTimeout bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The client is copied, never
// modified. A nil client is ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout. It applies to the client set
// with WithHTTPClient regardless of option order.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
		c.hasTimeout = true
	}
}

// WithLogger sets the logger used for failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock sets the clock used for x-amz-date.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithObserver sets a request observer, e.g. a metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates a new Client with the given config and options.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", ErrInvalidBaseURL)
	}

	signer, err := guildsync.NewSigner(guildsync.SignerConfig{
		Region: cfg.Region,
		Host:   cfg.Host,
		Credentials: guildsync.Credentials{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		signer:     signer,
		now:        time.Now,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	if c.hasTimeout {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc

	return c, nil
}

// Signer returns the signer used for every request.
func (c *Client) Signer() *guildsync.Signer {
	return c.signer
}

// ObjectURL returns the URL an object path is fetched from.
func (c *Client) ObjectURL(path string) string {
	return c.objectURL(path).String()
}

// Sign returns the signature a request for path carries at the given time,
// together with its x-amz-date value. The canonical URI is the escaped
// request path, so a path-style base URL such as https://host/bucket/ is
// signed exactly as Get and Head send it.
func (c *Client) Sign(method, path string, at time.Time) (guildsync.Signature, string) {
	amzDate := guildsync.AmzDate(at)
	sig := c.signer.Sign(guildsync.SigningContext{
		Method:  method,
		Path:    c.objectURL(path).EscapedPath(),
		AmzDate: amzDate,
	})
	return sig, amzDate
}

func (c *Client) objectURL(path string) *url.URL {
	return c.baseURL.JoinPath(strings.TrimPrefix(path, "/"))
}

// Get downloads an object and returns its body as text.
//
// Error types returned:
//   - *TransportError: the exchange did not complete
//   - *APIError: non-2xx status, match with ErrNotFound, ErrForbidden, ErrUnauthorized
//   - ErrMissingBody: 2xx status without a body
func (c *Client) Get(ctx context.Context, path string) (*Object, error) {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("get %s: %w", path, newAPIError(resp))
	}

	// A zero-length payload is reported like a missing one so that an empty
	// object never replaces the last synced copy.
	if resp.Body == http.NoBody {
		return nil, fmt.Errorf("get %s: %w", path, ErrMissingBody)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, &TransportError{Op: "read body", Err: err})
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("get %s: %w", path, ErrMissingBody)
	}

	obj := &Object{
		Path:        strings.TrimPrefix(path, "/"),
		Body:        string(body),
		ETag:        strings.Trim(resp.Header.Get("ETag"), `"`),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        int64(len(body)),
	}
	if lm, lmErr := parseLastModified(resp.Header.Get("Last-Modified")); lmErr == nil {
		obj.LastModified = lm
	}

	return obj, nil
}

// Head fetches object metadata. A 2xx response without a parseable
// Last-Modified header returns ErrMissingLastModified.
func (c *Client) Head(ctx context.Context, path string) (*ObjectInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, path)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("head %s: %w", path, newAPIError(resp))
	}

	lastModified, err := parseLastModified(resp.Header.Get("Last-Modified"))
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", path, err)
	}

	return &ObjectInfo{
		Path:         strings.TrimPrefix(path, "/"),
		LastModified: lastModified,
		ETag:         strings.Trim(resp.Header.Get("ETag"), `"`),
		ContentType:  resp.Header.Get("Content-Type"),
		Size:         resp.ContentLength,
	}, nil
}

// FetchObject returns the body of an object, or false if it could not be
// fetched for any reason. Failures are logged, never returned.
func (c *Client) FetchObject(ctx context.Context, path string) (string, bool) {
	start := time.Now()
	obj, err := c.Get(ctx, path)
	c.observe(http.MethodGet, path, err, time.Since(start))
	if err != nil {
		c.logFailure(ctx, http.MethodGet, path, err)
		return "", false
	}
	return obj.Body, true
}

// FetchLastModified returns the Last-Modified time of an object in UTC,
// or false if it could not be fetched for any reason. Failures are logged,
// never returned.
func (c *Client) FetchLastModified(ctx context.Context, path string) (time.Time, bool) {
	start := time.Now()
	info, err := c.Head(ctx, path)
	c.observe(http.MethodHead, path, err, time.Since(start))
	if err != nil {
		c.logFailure(ctx, http.MethodHead, path, err)
		return time.Time{}, false
	}
	return info.LastModified, true
}

// Events returns the body of events.json.
func (c *Client) Events(ctx context.Context) (string, bool) {
	return c.FetchObject(ctx, guildsync.ResourceEvents.String())
}

// EventsLastModified returns the Last-Modified time of events.json.
func (c *Client) EventsLastModified(ctx context.Context) (time.Time, bool) {
	return c.FetchLastModified(ctx, guildsync.ResourceEvents.String())
}

// Organisations returns the body of organisations.json.
func (c *Client) Organisations(ctx context.Context) (string, bool) {
	return c.FetchObject(ctx, guildsync.ResourceOrganisations.String())
}

// OrganisationsLastModified returns the Last-Modified time of organisations.json.
func (c *Client) OrganisationsLastModified(ctx context.Context) (time.Time, bool) {
	return c.FetchLastModified(ctx, guildsync.ResourceOrganisations.String())
}

// do builds, signs and sends a bodyless request.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, ErrEmptyPath
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ObjectURL(path), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.signer.SignRequest(req, guildsync.AmzDate(c.now()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "do request", Err: err}
	}
	return resp, nil
}

func (c *Client) observe(method, path string, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRequest(method, strings.TrimPrefix(path, "/"), Classify(err), d)
}

// logFailure records status, body and headers for non-2xx responses so a
// signing problem can be diagnosed from the logs alone.
func (c *Client) logFailure(ctx context.Context, method, path string, err error) {
	kind := Classify(err)
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("kind", kind.String()),
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		body := apiErr.Body
		if body == "" {
			body = "NO BODY"
		}
		attrs = append(attrs,
			slog.Int("status", apiErr.StatusCode),
			slog.String("body", body),
			slog.Any("headers", apiErr.Header),
		)
	} else {
		attrs = append(attrs, slog.Any("err", err))
	}

	level := slog.LevelWarn
	if kind == AuthFailure {
		level = slog.LevelError
	}
	c.logger.LogAttrs(ctx, level, "bucket request failed", attrs...)
}

func newAPIError(resp *http.Response) *APIError {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBody))
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		Header:     resp.Header.Clone(),
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// parseLastModified parses an HTTP-date. IMF-fixdate is tried first, then
// the obsolete RFC 850 and asctime forms.
func parseLastModified(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, ErrMissingLastModified
	}

	t, err := smithytime.ParseHTTPDate(v)
	if err != nil {
		t, err = http.ParseTime(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMissingLastModified, v)
		}
	}
	return t.UTC(), nil
}
