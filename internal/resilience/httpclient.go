package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient retries outbound calls with exponential backoff behind a circuit breaker.
// Transport errors, 429 and 5xx responses count as failures and are retried.
type HTTPClient struct {
	Client *http.Client
	// Breakers keys a breaker per request host. Breaker is used when Breakers is nil.
	Breakers    *BreakerSet
	Breaker     *Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	// Timeout bounds each attempt.
	Timeout time.Duration
}

// StatusError reports a response that was treated as a failure.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Do sends req, buffering its body so every attempt replays it. The returned response
// belongs to the last attempt; callers close its body.
func (c HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	breaker := c.breakerFor(req)
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}
		resp, err := c.once(ctx, req, body)
		failed := err != nil || retryable(resp.StatusCode)
		breaker.Report(ctx, !failed)
		if !failed {
			return resp, nil
		}
		if err == nil {
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			if attempt == attempts {
				return resp, lastErr
			}
			drain(resp)
		} else {
			lastErr = err
		}
		if attempt == attempts {
			break
		}
		t := time.NewTimer(Backoff(c.BaseBackoff, attempt, c.Jitter))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, lastErr
}

func (c HTTPClient) breakerFor(req *http.Request) *Breaker {
	switch {
	case c.Breakers != nil:
		return c.Breakers.For(req.URL.Host)
	case c.Breaker != nil:
		return c.Breaker
	}
	return NewBreaker(1, 1, time.Second)
}

func (c HTTPClient) once(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		resp, err := c.Client.Do(clone(ctx, req, body))
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.Client.Do(clone(ctx, req, body))
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer request body: %w", err)
	}
	return data, nil
}

func clone(ctx context.Context, req *http.Request, body []byte) *http.Request {
	out := req.Clone(ctx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		out.ContentLength = int64(len(body))
	}
	return out
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// cancelOnClose keeps the per-attempt timeout alive until the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
