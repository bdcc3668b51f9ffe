package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/st-keller/galacash-smoke/pause"
	"github.com/st-keller/galacash-smoke/stats"
	"github.com/st-keller/galacash-smoke/types"
)

// Options holds client settings.
type Options struct {
	BaseURL      string        // e.g. "http://localhost:3000/api"
	RequestDelay time.Duration // pause before every request
	LoginBackoff pause.Backoff // retry schedule for rate-limited logins
}

// Validate checks if the options are usable.
func (o Options) Validate() error {
	if o.BaseURL == "" {
		return fmt.Errorf("BaseURL required")
	}
	if o.RequestDelay < 0 {
		return fmt.Errorf("RequestDelay must not be negative")
	}
	if o.LoginBackoff.Attempts < 1 {
		return fmt.Errorf("LoginBackoff.Attempts must be >= 1")
	}
	return nil
}

// Client issues smoke requests against the API.
type Client struct {
	opts     Options
	http     *http.Client
	logger   *zap.Logger
	recorder *stats.Recorder
	sleeper  pause.Sleeper

	onResult func(stats.Result) // called after every recorded response
	onNotice func(string)       // human-facing warnings (retries, skips)
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client (default: http.DefaultClient).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRecorder sets the stats recorder (default: a fresh one).
func WithRecorder(r *stats.Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithSleeper sets how pauses are taken (default: pause.Real).
func WithSleeper(s pause.Sleeper) Option {
	return func(c *Client) { c.sleeper = s }
}

// WithResultHook sets the callback run after every recorded response.
func WithResultHook(fn func(stats.Result)) Option {
	return func(c *Client) { c.onResult = fn }
}

// WithNoticeHook sets the callback for human-facing warnings.
func WithNoticeHook(fn func(string)) Option {
	return func(c *Client) { c.onNotice = fn }
}

// New creates a client.
func New(opts Options, options ...Option) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	c := &Client{
		opts:     opts,
		http:     http.DefaultClient,
		logger:   zap.NewNop(),
		recorder: stats.NewRecorder(),
		sleeper:  pause.Real{},
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Recorder returns the stats recorder.
func (c *Client) Recorder() *stats.Recorder {
	return c.recorder
}

// Call describes one request.
type Call struct {
	Method   string
	Path     string // relative to BaseURL, e.g. "/transactions"
	Token    string // bearer token; empty for public routes
	Params   types.Params
	JSON     interface{} // request body
	Cookies  []*http.Cookie
	Raw      bool // binary response: keep bytes, skip JSON decoding
	Category string
}

// Response is a completed request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       types.Body // decoded JSON; nil for Raw calls
	Raw        []byte
	Cookies    []*http.Cookie
	Latency    time.Duration
	RequestID  string
}

// Cookie returns the value of the named response cookie.
func (r *Response) Cookie(name string) (string, bool) {
	for _, ck := range r.Cookies {
		if ck.Name == name && ck.Value != "" {
			return ck.Value, true
		}
	}
	return "", false
}

// Get is Do for a GET request.
func (c *Client) Get(ctx context.Context, path, token string, params types.Params, category string) (*Response, error) {
	return c.Do(ctx, Call{Method: http.MethodGet, Path: path, Token: token, Params: params, Category: category})
}

// Do performs a request, records it and returns the response.
// A non-2xx status is recorded first and then returned as *HTTPError.
func (c *Client) Do(ctx context.Context, call Call) (*Response, error) {
	if call.Method == "" {
		call.Method = http.MethodGet
	}

	// Rate-limit courtesy pause.
	if c.opts.RequestDelay > 0 {
		c.logger.Debug("Pausing",
			zap.Stringer("pause", pause.BetweenRequests),
			zap.Duration("duration", c.opts.RequestDelay),
		)
	}
	if err := c.sleeper.Sleep(ctx, c.opts.RequestDelay); err != nil {
		return nil, err
	}

	url := c.opts.BaseURL + call.Path
	if q := call.Params.Encode(); q != "" {
		url += "?" + q
	}

	var body io.Reader
	if call.JSON != nil {
		jsonData, err := json.Marshal(call.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if call.Token != "" {
		req.Header.Set("Authorization", "Bearer "+call.Token)
	}
	for _, ck := range call.Cookies {
		req.AddCookie(ck)
	}

	startTime := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(startTime)

	if err != nil {
		c.logger.Error("Request failed",
			zap.String("request_id", requestID),
			zap.String("method", call.Method),
			zap.String("path", call.Path),
			zap.Int64("latency_ms", latency.Milliseconds()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", call.Method, call.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", call.Method, call.Path, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Raw:        raw,
		Cookies:    resp.Cookies(),
		Latency:    latency,
		RequestID:  requestID,
	}

	title := call.Method + " " + call.Path
	result := stats.Result{
		Title:      title,
		Method:     call.Method,
		Path:       call.Path,
		Params:     paramsString(call.Params),
		Category:   call.Category,
		StatusCode: resp.StatusCode,
		Latency:    latency,
		RequestID:  requestID,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, decodeErr := decodeJSON(raw)
		if decodeErr != nil || errBody == nil {
			errBody = map[string]interface{}{
				"error": fmt.Sprintf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			}
		}
		if decodeErr == nil && errBody != nil {
			result.RawBody = raw
		}
		out.Body = errBody
		result.Title = title + " [ERROR]"
		result.Body = errBody
		c.record(result)

		c.logger.Warn("Request returned error status",
			zap.String("request_id", requestID),
			zap.String("method", call.Method),
			zap.String("path", call.Path),
			zap.Int("status", resp.StatusCode),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		return out, &HTTPError{
			Method:     call.Method,
			Path:       call.Path,
			Params:     call.Params,
			StatusCode: resp.StatusCode,
			Body:       errBody,
		}
	}

	if call.Raw {
		result.Body = map[string]interface{}{"bytes": len(raw)}
	} else {
		decoded, err := decodeJSON(raw)
		if err != nil {
			return out, fmt.Errorf("%s %s: invalid JSON response: %w", call.Method, call.Path, err)
		}
		out.Body = decoded
		result.Body = decoded
		if decoded != nil {
			result.RawBody = raw
		}
	}
	c.record(result)

	c.logger.Debug("Request completed",
		zap.String("request_id", requestID),
		zap.String("method", call.Method),
		zap.String("path", call.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)

	return out, nil
}

func (c *Client) record(res stats.Result) {
	c.recorder.Record(res)
	if c.onResult != nil {
		c.onResult(res)
	}
}

func (c *Client) notice(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Warn(msg)
	if c.onNotice != nil {
		c.onNotice(msg)
	}
}

func paramsString(p types.Params) string {
	if len(p) == 0 {
		return ""
	}
	return p.String()
}

// decodeJSON decodes a body keeping numbers as json.Number so ids round-trip.
func decodeJSON(raw []byte) (types.Body, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
