package providers

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Transiente Status, die einen Retry auslösen (inkl. Rate-Limiting).
var retryStatuses = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// RetryTransport fügt jeder Anfrage einen User-Agent-Header hinzu und
// wiederholt transiente Fehler mit begrenztem exponentiellen Backoff.
// Ein Retry-After-Header des Servers hat Vorrang vor dem Backoff.
type RetryTransport struct {
	Transport   http.RoundTripper
	UserAgent   string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	attempts := t.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	base := t.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := t.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	inner := t.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		resp, err := inner.RoundTrip(req)
		if err != nil {
			lastErr = err
			continue
		}
		if !retryStatuses[resp.StatusCode] {
			return resp, nil
		}

		// Server-seitige Wartezeit respektieren, dann erneut versuchen.
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs > 0 {
				select {
				case <-req.Context().Done():
					resp.Body.Close()
					return nil, req.Context().Err()
				case <-time.After(time.Duration(secs * float64(time.Second))):
				}
			}
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("transient status %d for %s", resp.StatusCode, req.URL)
	}
	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", attempts, lastErr)
}

// NewHTTPClient baut den für alle Provider verwendeten HTTP-Client.
func NewHTTPClient(userAgent string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &RetryTransport{
			Transport: http.DefaultTransport,
			UserAgent: userAgent,
		},
	}
}
