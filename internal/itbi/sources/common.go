package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrFetch is matched by every error returned from a source fetch.
var ErrFetch = errors.New("itbi fetch failed")

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
	errEmptyBody    = errors.New("empty response body")
	errEnvelope     = errors.New("malformed envelope")
)

// FetchError aborts a whole fetch; no partial result accompanies it.
type FetchError struct {
	Source string
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: page at offset %d: %v", e.Source, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports ErrFetch so callers need not know the concrete type.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Cause returns a short label for metrics and logs.
func (e *FetchError) Cause() string {
	var ne net.Error
	switch {
	case errors.Is(e.Err, context.DeadlineExceeded), errors.As(e.Err, &ne) && ne.Timeout():
		return "timeout"
	case errors.Is(e.Err, context.Canceled):
		return "canceled"
	case errors.Is(e.Err, errCircuitOpen):
		return "circuit_open"
	case errors.Is(e.Err, errRateLimited), errors.Is(e.Err, errServerError), errors.Is(e.Err, errUnexpected):
		return "status"
	case errors.Is(e.Err, errEnvelope), errors.Is(e.Err, errEmptyBody):
		return "envelope"
	default:
		return "transport"
	}
}

// newBreaker returns the circuit breaker guarding one source.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// doRequest executes a single attempt through the circuit breaker and returns
// the full body of a 2xx response. Reading the body happens inside the breaker
// so truncated transfers count as failures.
func doRequest(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) ([]byte, error) {
	if client == nil {
		return nil, errNoHTTPClient
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := buildRequest()
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		// Handle rate limiting and server errors explicitly.
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}
