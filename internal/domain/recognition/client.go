package recognition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"formula-ocr-server/internal/platform/errors"
	"formula-ocr-server/internal/platform/logging"
	"formula-ocr-server/internal/platform/observability"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultTimeout      = 20 * time.Second
	defaultMaxAttempts  = 4
	defaultRetryWait    = 15 * time.Second
	maxResponseBodySize = 4 << 20
	maxErrorBodySize    = 64 << 10
	// maxRetryAfter bounds a server-supplied Retry-After.
	maxRetryAfter = time.Hour
)

// Config is the immutable client configuration.
type Config struct {
	BaseURL            string
	APIKey             string
	Temperature        float32
	Timeout            time.Duration
	MaxAttempts        int
	RateLimitWait      time.Duration
	TransportRetryWait time.Duration
	SystemPrompt       string
	UserPrompt         string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Result is the outcome of one Recognize call. Attempts is filled in on failure too.
type Result struct {
	Latex    string
	Raw      string
	Attempts int
}

// Client calls an OpenAI compatible chat completion endpoint to turn a formula image into LaTeX.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
	sleep      Sleeper
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSleeper replaces the wait used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = defaultRetryWait
	}
	if cfg.TransportRetryWait <= 0 {
		cfg.TransportRetryWait = defaultRetryWait
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logging.DefaultLogger,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recognize sends the base64 JPEG payload to the model and returns the sanitised LaTeX.
//
// Each attempt is bounded by the configured timeout. A 429 waits for
// Retry-After and retries, a transport failure waits and retries, any other
// non-200 status fails at once. Every retry consumes one attempt.
func (c *Client) Recognize(ctx context.Context, payload, model string) (result *Result, err error) {
	ctx, end := observability.StartSpan(ctx, "recognizer", "recognize")
	result = &Result{}
	start := time.Now()
	rateLimited := 0
	defer func() {
		end(err)
		outcome := "success"
		if err != nil {
			outcome = string(errors.KindOf(err))
		}
		observability.RecordRecognition(ctx, observability.RecognitionSample{
			Model:       model,
			Outcome:     outcome,
			Attempts:    result.Attempts,
			RateLimited: rateLimited,
			Duration:    time.Since(start),
		})
	}()

	body, err := sonic.Marshal(c.buildRequest(payload, model))
	if err != nil {
		return result, errors.Wrap(errors.KindProcessing, "recognizer.encode_request", "failed to encode request", err)
	}

	var lastTransportErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt
		c.logger.InfoTag("识别", "发送识别请求, attempt %d/%d, model=%s", attempt, c.cfg.MaxAttempts, model)

		resp, err := c.send(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return result, errors.Wrap(errors.KindUpstreamTransport, "recognizer.send", "request canceled", ctx.Err())
			}
			lastTransportErr = err
			c.logger.WarnTag("识别", "Attempt %d/%d failed: %v", attempt, c.cfg.MaxAttempts, err)
			if attempt == c.cfg.MaxAttempts {
				break
			}
			if err := c.sleep(ctx, c.cfg.TransportRetryWait); err != nil {
				return result, errors.Wrap(errors.KindUpstreamTransport, "recognizer.wait", "request canceled", err)
			}
			continue
		}
		lastTransportErr = nil

		switch {
		case resp.status == http.StatusTooManyRequests:
			rateLimited++
			wait := parseRetryAfter(resp.header.Get("Retry-After"), c.cfg.RateLimitWait)
			c.logger.WarnTag("识别", "Rate limit hit, retry after %s", wait)
			if attempt == c.cfg.MaxAttempts {
				continue
			}
			if err := c.sleep(ctx, wait); err != nil {
				return result, errors.Wrap(errors.KindUpstreamTransport, "recognizer.wait", "request canceled", err)
			}
			continue

		case resp.status != http.StatusOK:
			c.logger.ErrorTag("识别", "API request failed with status %d: %s", resp.status, resp.body)
			return result, errors.Upstream("recognizer.response", resp.status, string(resp.body))
		}

		var completion openai.ChatCompletionResponse
		if err := sonic.Unmarshal(resp.body, &completion); err != nil {
			c.logger.ErrorTag("识别", "响应解析失败: %v", err)
			return result, &errors.Error{
				Kind:    errors.KindUpstream,
				Op:      "recognizer.decode_response",
				Message: fmt.Sprintf("invalid API response: %v", err),
				Cause:   err,
				Status:  resp.status,
			}
		}

		result.Raw = strings.TrimSpace(firstContent(&completion))
		result.Latex = Sanitize(result.Raw)
		c.logger.InfoTag("识别", "识别结果: %q", result.Latex)
		return result, nil
	}

	if lastTransportErr != nil {
		return result, errors.Wrap(errors.KindUpstreamTransport, "recognizer.send", "API request failed after retries", lastTransportErr)
	}
	return result, errors.New(errors.KindRateLimited, "recognizer.rate_limit", "API rate limit exceeded")
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs one attempt under its own timeout. Errors are transport level only.
func (c *Client) send(ctx context.Context, body []byte) (*response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := int64(maxErrorBodySize)
	if resp.StatusCode == http.StatusOK {
		limit = maxResponseBodySize
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// parseRetryAfter accepts delta seconds (fractional allowed) or an HTTP date.
// The result is capped at maxRetryAfter.
func parseRetryAfter(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || secs < 0 {
			return fallback
		}
		if secs >= maxRetryAfter.Seconds() {
			return maxRetryAfter
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		switch {
		case d <= 0:
			return 0
		case d > maxRetryAfter:
			return maxRetryAfter
		}
		return d
	}
	return fallback
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
