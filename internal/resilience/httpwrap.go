package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient adds per-attempt timeouts, retries and a circuit breaker to an
// http.Client. Only transport errors, 429 and 5xx answers are retried, and
// POST/PATCH are sent once unless RetryNonIdempotent is set: a repeated
// purchase creation would bill the buyer twice.
type HTTPClient struct {
	Client             *http.Client
	Breaker            *Breaker
	BaseBackoff        time.Duration
	MaxAttempts        int
	Jitter             float64
	Timeout            time.Duration
	Target             string
	Logger             *zerolog.Logger
	RetryNonIdempotent bool
	Fallback           func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do sends req. When the breaker is open ErrOpenCircuit is returned unless a
// fallback is configured. A final 429 or 5xx response is handed back as is so
// the caller can read the provider's error body.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		// never collects enough samples to trip
		breaker = NewBreaker(math.MaxInt32, 1, time.Second)
	}
	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}
	attempts := cl.attempts(req.Method)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		start := time.Now()
		resp, err := cl.doOnce(ctx, withBody(ctx, req, body))
		retryable := err != nil || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		observeOutbound(cl.target(), outcome(resp, err), time.Since(start))
		if !retryable {
			breaker.Report(ctx, true)
			return resp, nil
		}
		breaker.Report(ctx, false)

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("resilience: %s answered %s", cl.target(), resp.Status)
			if attempt == attempts {
				return resp, nil
			}
		}
		cl.logAttempt(attempt, lastErr)
		if attempt == attempts {
			break
		}

		wait := Backoff(cl.BaseBackoff, attempt, cl.Jitter)
		if resp != nil {
			wait = max(wait, retryAfter(resp))
			_ = resp.Body.Close()
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

func (cl HTTPClient) attempts(method string) int {
	n := max(cl.MaxAttempts, 1)
	switch method {
	case http.MethodPost, http.MethodPatch:
		if !cl.RetryNonIdempotent {
			return 1
		}
	}
	return n
}

func (cl HTTPClient) target() string {
	if cl.Target == "" {
		return "default"
	}
	return cl.Target
}

func (cl HTTPClient) logAttempt(attempt int, err error) {
	if cl.Logger == nil {
		return
	}
	cl.Logger.Warn().Err(err).Str("target", cl.target()).Int("attempt", attempt).Msg("outbound_attempt_failed")
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	// the deadline must outlive Do so the caller can still read the body
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// drainBody reads the request body once so every attempt can resend it.
func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("resilience: read request body: %w", err)
	}
	return data, nil
}

func withBody(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		clone.ContentLength = int64(len(body))
	}
	return clone
}

// retryAfter reads a delay-seconds Retry-After header, capped at 30s.
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, 30*time.Second)
}

func outcome(resp *http.Response, err error) string {
	switch {
	case err != nil:
		return "error"
	case resp.StatusCode >= 500:
		return "5xx"
	case resp.StatusCode >= 400:
		return "4xx"
	default:
		return "ok"
	}
}
