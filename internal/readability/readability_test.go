package readability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	wc, err := webclient.NewNetHTTPClient(webclient.Config{
		Timeout:    time.Second,
		Retries:    0,
		RetryDelay: time.Millisecond,
	}, logging.NewTestLogger(false), nil)
	if err != nil {
		t.Fatalf("webclient: %v", err)
	}
	c, err := New(Config{
		Endpoint:          endpoint,
		Timeout:           time.Second,
		TimeoutRetryDelay: time.Millisecond,
	}, wc, logging.NewTestLogger(false))
	if err != nil {
		t.Fatalf("readability.New: %v", err)
	}
	return c
}

func TestExtractSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "https://example.gov/page" {
			t.Errorf("unexpected proxied url %q", r.URL.Query().Get("url"))
		}
		w.Write([]byte("Readable text."))
	}))
	defer srv.Close()

	text, err := newClient(t, srv.URL).Extract(context.Background(), "https://example.gov/page")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text == nil || *text != "Readable text." {
		t.Errorf("unexpected text %v", text)
	}
}

func TestExtractUnparseableReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	text, err := newClient(t, srv.URL).Extract(context.Background(), "https://example.gov/x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != nil {
		t.Errorf("unparseable documents should yield nil, got %q", *text)
	}
}

func TestExtractRetriesOnServiceTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusGatewayTimeout)
			w.Write([]byte(`{"error": "TIMEDOUT"}`))
			return
		}
		w.Write([]byte("second try"))
	}))
	defer srv.Close()

	text, err := newClient(t, srv.URL).Extract(context.Background(), "https://example.gov/slow")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text == nil || *text != "second try" {
		t.Errorf("unexpected text %v", text)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected exactly one extra retry, got %d calls", calls)
	}
}

func TestExtractServerErrorNoTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "BOOM"}`))
	}))
	defer srv.Close()

	if _, err := newClient(t, srv.URL).Extract(context.Background(), "https://example.gov/x"); err == nil {
		t.Fatal("expected error for non-timeout server failure")
	}
}
