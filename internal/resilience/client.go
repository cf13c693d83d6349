package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/refmatch/refmatch/internal/apperr"
	"github.com/refmatch/refmatch/internal/telemetry"
)

// ClientConfig assembles one adapter's outbound call stack.
type ClientConfig struct {
	Source      string        // adapter source id, used in errors and logs
	UserAgent   string        // descriptive User-Agent with contact mailto
	MinInterval time.Duration // minimum delay between outbound requests
	Retry       Policy
	Breaker     BreakerConfig
	HTTPClient  *http.Client // optional; defaults to a 30s-timeout client
	CallLog     *CallLog     // optional shared log; defaults to a private one
	Logger      *slog.Logger
}

// Client wraps outbound HTTP calls for one adapter with rate limiting,
// retries, circuit breaking, and call recording. One Client per adapter
// instance; the breaker state is process-wide for that adapter.
type Client struct {
	source    string
	userAgent string
	http      *http.Client
	limiter   *waiter
	breaker   *Breaker
	retry     Policy
	callLog   *CallLog
	logger    *slog.Logger

	calls   metric.Int64Counter
	retries metric.Int64Counter
}

// NewClient creates the call stack for one adapter.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	callLog := cfg.CallLog
	if callLog == nil {
		callLog = NewCallLog(256)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meter := telemetry.Meter("refmatch/resilience")
	calls, _ := meter.Int64Counter("refmatch.adapter.calls",
		metric.WithDescription("Outbound adapter calls by source and outcome"))
	retries, _ := meter.Int64Counter("refmatch.adapter.retries",
		metric.WithDescription("Retry attempts beyond the first, by source"))

	return &Client{
		source:    cfg.Source,
		userAgent: cfg.UserAgent,
		http:      httpClient,
		limiter:   newWaiter(cfg.MinInterval),
		breaker:   NewBreaker(cfg.Source, cfg.Breaker, logger),
		retry:     cfg.Retry,
		callLog:   callLog,
		logger:    logger,
		calls:     calls,
		retries:   retries,
	}
}

// Breaker exposes the adapter's circuit breaker for health reporting.
func (c *Client) Breaker() *Breaker { return c.breaker }

// CallLog exposes the adapter's call records.
func (c *Client) CallLog() *CallLog { return c.callLog }

// GetJSON issues a rate-limited GET through retry and circuit breaking,
// decoding a 2xx JSON response into out. Non-2xx statuses and transport
// failures come back as tagged apperr errors.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	requestID := uuid.NewString()
	start := time.Now()

	attempts, err := c.retry.Do(ctx, func(ctx context.Context) error {
		// The rate limit applies to every outbound request, retries included.
		if err := c.limiter.wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			return c.doOnce(ctx, url, header, out)
		})
	})

	rec := CallRecord{
		RequestID:    requestID,
		Source:       c.source,
		Method:       http.MethodGet,
		URL:          url,
		Start:        start,
		End:          time.Now(),
		Attempts:     attempts,
		CircuitState: c.breaker.State(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	c.callLog.Append(rec)

	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	c.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", c.source),
		attribute.String("outcome", outcome),
	))
	if attempts > 1 {
		c.retries.Add(ctx, int64(attempts-1), metric.WithAttributes(attribute.String("source", c.source)))
	}

	if err != nil {
		c.logger.Debug("resilience: call failed",
			"source", c.source, "url", url, "attempts", attempts, "error", err)
	}
	return err
}

// doOnce performs a single HTTP round trip and classifies the outcome.
func (c *Client) doOnce(ctx context.Context, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindValidationInput, c.source, "build request", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindTimeout, c.source, "request timed out", err)
		}
		return apperr.Wrap(apperr.KindNetwork, c.source, "do request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if kindErr := c.classifyStatus(resp); kindErr != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return kindErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindParse, c.source, "decode response", err)
	}
	return nil
}

// classifyStatus maps a non-2xx response to its error kind.
func (c *Client) classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &apperr.Error{
			Kind:       apperr.KindRateLimited,
			Source:     c.source,
			Msg:        "upstream rate limited",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindUpstreamServer, c.source, fmt.Sprintf("upstream status %d", resp.StatusCode))
	default:
		return apperr.New(apperr.KindUpstreamClient, c.source, fmt.Sprintf("upstream status %d", resp.StatusCode))
	}
}

// parseRetryAfter handles the delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
