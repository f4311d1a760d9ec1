// Package renosyd fetches the collection plan for one pickup point from the
// RenoSyd self-service API.
package renosyd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/app"
	"github.com/klabast/wb-services/abfall-display/internal/logger"
)

const (
	// DefaultBaseURL is the public RenoSyd self-service API host
	DefaultBaseURL = "https://skoda-selvbetjeningsapi.renosyd.dk"

	calendarEndpoint    = "/api/v1/toemmekalender"
	defaultUserAgent    = "abfall-display/1.0"
	defaultHTTPTimeout  = 15 * time.Second
	maxResponseBodySize = 4 << 20
)

// Client talks to the RenoSyd API
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	loc       *time.Location
	log       logger.Logger
}

// Option mutates the client during construction
type Option func(*Client)

// NewClient builds a client with sane defaults
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		http:      &http.Client{Timeout: defaultHTTPTimeout},
		userAgent: defaultUserAgent,
		loc:       time.Local,
		log:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.baseURL = strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return c
}

// WithBaseURL overrides the API host (tests, mirrors)
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient installs a custom http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLocation sets the zone that date-only values are read in
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLogger sets the client logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Fetch returns the planned collections for the pickup point nummer. Every
// error is an *app.FetchError classified as transient or fatal.
func (c *Client) Fetch(ctx context.Context, nummer string) (app.Schedule, error) {
	nummer = strings.TrimSpace(nummer)
	if nummer == "" {
		return app.Schedule{}, app.Fatal(errors.New("renosyd: pickup point number is required"))
	}

	q := url.Values{}
	q.Set("nummer", nummer)
	endpoint := c.baseURL + calendarEndpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return app.Schedule{}, app.Fatal(fmt.Errorf("renosyd: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	c.log.Info("Fetching collection plan for %s", nummer)
	resp, err := c.http.Do(req)
	if err != nil {
		return app.Schedule{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return app.Schedule{}, app.Transient(fmt.Errorf("renosyd: read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return app.Schedule{}, classifyStatus(resp.StatusCode, raw)
	}

	schedule, err := decodeCalendar(raw, c.loc)
	if err != nil {
		return app.Schedule{}, app.Fatal(err)
	}
	c.log.Info("Received %d planned collections", len(schedule.Events))
	return schedule, nil
}

// classifyTransport marks network failures and timeouts as transient
func classifyTransport(err error) error {
	return app.Transient(fmt.Errorf("renosyd: execute request: %w", err))
}

// StatusError captures a non-2xx response
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("renosyd: API error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("renosyd: API error (status=%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth another attempt
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	se := &StatusError{StatusCode: status, Message: msg}
	if se.Retryable() {
		return app.Transient(se)
	}
	return app.Fatal(se)
}
