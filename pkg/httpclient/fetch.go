package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy controls a single Fetch call.
type Policy struct {
	Timeout    time.Duration // per attempt
	MaxRetries int           // additional attempts after the first
	RetryDelay time.Duration // fixed pause between attempts
}

// FetchError is returned once a Fetch call gives up.
type FetchError struct {
	URL         string
	StatusCode  int
	RateLimited bool
	RetryAfter  time.Duration
	Attempt     int
	Cause       error
}

func (e *FetchError) Error() string {
	switch {
	case e.RateLimited:
		return fmt.Sprintf("fetch %s: rate limited (attempt %d)", e.URL, e.Attempt)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempt, e.Cause)
	default:
		return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempt, e.Cause)
	}
}

func (e *FetchError) Unwrap() error { return e.Cause }

// IsRateLimited reports whether err carries an upstream "too many requests"
// signal.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.RateLimited
}

// Fetch GETs url under policy and returns the 2xx body. Transport failures,
// timeouts and non-2xx statuses are retried up to policy.MaxRetries times
// with a fixed pause. A 429 ends the call at once with RateLimited set: the
// escalation policy belongs to the caller.
func Fetch(ctx context.Context, client Client, url string, headers map[string]string, policy Policy) ([]byte, error) {
	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var last *FetchError
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && policy.RetryDelay > 0 {
			if err := Sleep(ctx, policy.RetryDelay); err != nil {
				return nil, &FetchError{URL: url, Attempt: attempt - 1, Cause: err}
			}
		}

		body, ferr := fetchOnce(ctx, client, url, headers, policy.Timeout)
		if ferr == nil {
			return body, nil
		}
		ferr.Attempt = attempt
		last = ferr

		if ferr.RateLimited || ctx.Err() != nil {
			break
		}
	}
	return nil, last
}

func fetchOnce(ctx context.Context, client Client, url string, headers map[string]string, timeout time.Duration) ([]byte, *FetchError) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := client.Get(attemptCtx, url, headers)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}

	status := resp.StatusCode()
	if status == http.StatusTooManyRequests {
		return nil, &FetchError{
			URL:         url,
			StatusCode:  status,
			RateLimited: true,
			RetryAfter:  retryAfter(resp.Header()),
			Cause:       errors.New(http.StatusText(status)),
		}
	}
	if status < 200 || status > 299 {
		return nil, &FetchError{
			URL:        url,
			StatusCode: status,
			Cause:      fmt.Errorf("body: %s", Snippet(resp.Body())),
		}
	}
	return resp.Body(), nil
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snippet returns a truncated body for error messages and logs.
func Snippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
