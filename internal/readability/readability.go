// Package readability talks to the readability extraction service, the
// preferred tier for text analysis. The service is slow and occasionally
// reports its own timeouts, so it gets a longer deadline and one extra
// delayed retry before the caller falls back to local heuristics.
package readability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

type Config struct {
	// Endpoint is the base URL of the readability proxy service.
	Endpoint string

	// Timeout bounds one extraction call; extraction is much slower than a
	// plain fetch.
	Timeout time.Duration

	// TimeoutRetryDelay is how long to wait before the single extra retry
	// when the service reports a server-side timeout.
	TimeoutRetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Endpoint:          "http://localhost:7323",
		Timeout:           45 * time.Second,
		TimeoutRetryDelay: 10 * time.Second,
	}
}

// Client extracts readable main-content text for a captured page.
type Client struct {
	cfg    Config
	wc     webclient.WebClient
	logger logging.Logger
}

func New(cfg Config, wc webclient.WebClient, logger logging.Logger) (*Client, error) {
	if wc == nil {
		return nil, fmt.Errorf("readability: nil webclient")
	}
	if logger == nil {
		return nil, fmt.Errorf("readability: nil logger")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultConfig().Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		cfg:    cfg,
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "readability"}),
	}, nil
}

// Extract returns the readable text for the document at pageURL. A nil
// result with a nil error means the service could not parse the document;
// callers should fall back, not fail.
func (c *Client) Extract(ctx context.Context, pageURL string) (*string, error) {
	resp, err := c.extractOnce(ctx, pageURL)
	if err == nil && resp != nil && resp.StatusCode >= 500 && c.timedOut(resp) {
		// The service timed out server-side; give it a moment and try once
		// more before giving up.
		c.logger.Warn("readability service timed out, retrying once",
			logging.Field{Key: "url", Value: pageURL})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.TimeoutRetryDelay):
		}
		resp, err = c.extractOnce(ctx, pageURL)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("readability service error %d for %s", resp.StatusCode, pageURL)
	case resp.StatusCode >= 400:
		// The document was unparseable; that's an answer, not an error.
		return nil, nil
	default:
		text := resp.Text()
		return &text, nil
	}
}

func (c *Client) extractOnce(ctx context.Context, pageURL string) (*webclient.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	return c.wc.Do(callCtx, &webclient.Request{
		Method:      "GET",
		URL:         fmt.Sprintf("%s/proxy?url=%s", c.cfg.Endpoint, url.QueryEscape(pageURL)),
		AllowErrors: true,
	})
}

func (c *Client) timedOut(resp *webclient.Response) bool {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false
	}
	return body.Error == "TIMEDOUT"
}
