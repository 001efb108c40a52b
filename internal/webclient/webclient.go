package webclient

import (
	"context"
	"net/http"
	"time"
)

// WebClient retrieves raw version bodies. Implementations must honor the
// request context and decode bodies to UTF-8 text.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience wrapper for a plain GET of url.
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte

	// AllowErrors suppresses the non-2xx error return so callers that want
	// to inspect error pages (status inference does) can.
	AllowErrors bool
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// Text returns the response body as a string. Bodies are already decoded to
// UTF-8 by the client.
func (r *Response) Text() string {
	return string(r.Body)
}

// Config holds fetch behavior shared by client implementations.
type Config struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration

	// Retries is the number of additional attempts after a transient
	// failure.
	Retries int

	// RetryDelay is the fixed backoff between attempts.
	RetryDelay time.Duration
}

// DefaultConfig matches the fetch policy the analysis pipeline expects:
// short timeout, a small retry budget with fixed backoff.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		Retries:    2,
		RetryDelay: time.Second,
	}
}
