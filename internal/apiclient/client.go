// Package apiclient is the HTTP client for the remote inventory API. It adds
// rate limiting, a circuit breaker and request-id forwarding, and maps
// non-2xx responses onto domain errors whose message is the server's text.
package apiclient

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

	"github.com/simp-lee/stockroom/internal/domain"
	"github.com/simp-lee/stockroom/internal/pkg"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

// RateLimitConfig throttles outgoing requests.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// BreakerConfig configures the circuit breaker. The breaker trips once at
// least MinRequests were made in the current interval and the failure ratio
// reaches FailureThreshold.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
}

// Client talks JSON to the inventory API.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid api base url %q: scheme must be http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "api_client")),
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker, c.logger)
	}
	return c, nil
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inventory-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// Client errors say nothing about the health of the API.
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
	})
}

// BreakerState reports the breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Get decodes the JSON response of GET path?query into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch sends body as JSON and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete issues DELETE path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do performs one request. body and out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.NewAppError(domain.CodeUpstream, "request throttled", err)
		}
	}

	if c.breaker == nil {
		return c.do(ctx, method, path, query, body, out)
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewAppError(domain.CodeUpstream, "inventory api unavailable", err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return domain.NewAppError(domain.CodeInternal, "encode request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := pkg.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "inventory api request failed",
			slog.String("method", method),
			slog.String("path", u.Path),
			slog.String("error", err.Error()),
		)
		return domain.NewAppError(domain.CodeUpstream, "inventory api request failed", err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "inventory api request",
		slog.String("method", method),
		slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewAppError(domain.CodeUpstream, "decode inventory api response", err)
	}
	return nil
}

// StatusError wraps the domain error built from a non-2xx response and
// keeps the HTTP status. Its message is the server's message unchanged.
type StatusError struct {
	Status int
	Err    *domain.AppError
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status behind err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// responseError maps a non-2xx response to a domain error. The message is
// the "message" field of a JSON body (a string, or a list joined with ", "),
// else the raw body text, else the status text.
func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := errorMessage(raw)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	code := domain.CodeUpstream
	switch {
	case resp.StatusCode == http.StatusNotFound:
		code = domain.CodeNotFound
	case resp.StatusCode == http.StatusConflict:
		code = domain.CodeAlreadyExists
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		code = domain.CodeValidation
	}
	return &StatusError{Status: resp.StatusCode, Err: domain.NewAppError(code, msg, nil)}
}

func errorMessage(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}
	var body struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Message) == 0 {
		return text
	}
	var s string
	if err := json.Unmarshal(body.Message, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(body.Message, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return text
}

// countsAsFailure reports whether err indicates the API itself is unhealthy:
// transport errors and 5xx responses.
func countsAsFailure(err error) bool {
	status := StatusCode(err)
	if status == 0 {
		return !errors.Is(err, context.Canceled)
	}
	return status >= 500
}
