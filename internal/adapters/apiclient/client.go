// Package apiclient issues GET requests to third-party JSON APIs while keeping
// advisory per-second and per-hour call counts.
//
// The quota is soft: exceeding it is logged and metered but never delays or
// rejects a call. Counters reset on fixed windows measured from their last
// reset against the injected clock.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 32 << 20
)

// Quota holds the advisory call ceilings of one upstream service.
type Quota struct {
	PerSecond int
	PerHour   int
}

// Response is a fully read upstream response.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, r.URL, err)
	}
	return nil
}

// Client is a quota-tracking HTTP client for one upstream service.
type Client struct {
	service    string
	httpClient *http.Client
	quota      Quota
	now        func() time.Time
	log        logger.Logger
	warnEvery  *rate.Sometimes

	mu        sync.Mutex
	callsSec  int
	callsHr   int
	secTicker time.Time
	hrTicker  time.Time
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithQuota sets the advisory call ceilings.
func WithQuota(q Quota) ClientOption {
	return func(c *Client) {
		c.quota = q
	}
}

// WithClock replaces the wall clock used for quota windows.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithWarnInterval throttles quota warnings to one log line per interval.
// Every exceeded call is still counted in metrics.
func WithWarnInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.warnEvery = &rate.Sometimes{First: 1, Interval: d}
	}
}

// NewClient creates a client for the named service.
func NewClient(service string, opts ...ClientOption) *Client {
	c := &Client{
		service:    service,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		quota:      Quota{PerSecond: 100, PerHour: 36000},
		now:        time.Now,
		log:        logger.GetOrNop(),
		warnEvery:  &rate.Sometimes{First: 1, Interval: time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	start := c.now()
	c.secTicker = start
	c.hrTicker = start
	c.log = c.log.Named(service)
	return c
}

// Get issues a GET to rawURL with params merged into its query.
// A body reporting {"status":"nok","reason":...} or {"error":...} becomes an *UpstreamError.
// Any other response, including non-2xx statuses, is returned for the caller to interpret.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse url %q: %w", rawURL, err)
	}
	q := target.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create request: %w", err)
	}

	c.checkQuota(ctx)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	sec, hr := c.recordCall()
	latency := float64(time.Since(start).Milliseconds())

	// log without query parameters, they carry the API key
	logURL := target.Scheme + "://" + target.Host + target.Path
	if err != nil {
		metrics.RecordAPICall(c.service, "transport_error", latency)
		return nil, &TransportError{URL: logURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordAPICall(c.service, "transport_error", latency)
		return nil, &TransportError{URL: logURL, Err: err}
	}

	c.log.Debug(ctx, "request sent",
		logger.String("url", logURL),
		logger.Int("status", resp.StatusCode),
		logger.Int("calls_last_second", sec),
		logger.Int("calls_last_hour", hr),
		logger.Float64("latency_ms", latency),
	)

	if uerr := failure(resp.StatusCode, body); uerr != nil {
		uerr.URL = logURL
		metrics.RecordAPICall(c.service, "upstream_error", latency)
		return nil, uerr
	}

	outcome := "ok"
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = "http_error"
	}
	metrics.RecordAPICall(c.service, outcome, latency)

	return &Response{URL: logURL, StatusCode: resp.StatusCode, Body: body}, nil
}

// Usage returns the current per-second and per-hour call counts.
func (c *Client) Usage() (perSecond, perHour int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callsSec, c.callsHr
}

func (c *Client) checkQuota(ctx context.Context) {
	c.mu.Lock()
	sec, hr := c.callsSec, c.callsHr
	c.mu.Unlock()

	var window string
	var calls, ceiling int
	switch {
	case c.quota.PerSecond > 0 && sec > c.quota.PerSecond:
		window, calls, ceiling = "second", sec, c.quota.PerSecond
	case c.quota.PerHour > 0 && hr > c.quota.PerHour:
		window, calls, ceiling = "hour", hr, c.quota.PerHour
	default:
		return
	}

	metrics.RecordQuotaExceeded(c.service, window)
	c.warnEvery.Do(func() {
		c.log.Warn(ctx, "api call rate exceeded advisory quota",
			logger.String("window", window),
			logger.Int("calls", calls),
			logger.Int("max", ceiling),
		)
	})
}

// recordCall counts one issued call and resets windows that have elapsed.
func (c *Client) recordCall() (sec, hr int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.callsSec++
	c.callsHr++
	sec, hr = c.callsSec, c.callsHr

	now := c.now()
	if now.Sub(c.secTicker) >= time.Second {
		c.callsSec = 0
		c.secTicker = now
	}
	if now.Sub(c.hrTicker) >= time.Hour {
		c.callsHr = 0
		c.hrTicker = now
	}
	return sec, hr
}

type failureBody struct {
	Status any    `json:"status"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// failure inspects a JSON object body for a reported failure.
func failure(status int, body []byte) *UpstreamError {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fb failureBody
	if err := json.Unmarshal(trimmed, &fb); err != nil {
		return nil
	}
	var reason string
	switch {
	case fb.Status == "nok":
		reason = fb.Reason
	case fb.Error != "":
		reason = fb.Error
	default:
		return nil
	}
	return &UpstreamError{Kind: classify(reason), Message: reason, StatusCode: status}
}
