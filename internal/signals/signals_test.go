package signals

import (
	"fmt"
	"testing"

	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/normalize"
)

func htmlPage(body string) string {
	return fmt.Sprintf("<html><head><title>Test</title></head><body>%s</body></html>", body)
}

func contentFor(t *testing.T, url, html string) *Content {
	t.Helper()
	normalized, err := normalize.NormalizeHTML(html, url)
	if err != nil {
		t.Fatalf("NormalizeHTML: %v", err)
	}
	return &Content{
		Version:    &model.Version{ID: url, CaptureURL: url},
		Raw:        html,
		Normalized: normalized,
	}
}

func TestTextTierFallback(t *testing.T) {
	readableA := "old readable text"
	readableB := "new readable text"

	a := contentFor(t, "https://example.gov/p", htmlPage("<p>old</p>"))
	b := contentFor(t, "https://example.gov/p", htmlPage("<p>new</p>"))

	a.Readable = &readableA
	b.Readable = &readableB
	if sig := Text(a, b); sig.ContentTier != TierReadability || !sig.Readable {
		t.Errorf("both readable extractions present should use readability tier, got %q", sig.ContentTier)
	}

	// Only one side readable: both must fall back together.
	b.Readable = nil
	if sig := Text(a, b); sig.ContentTier == TierReadability {
		t.Error("a lone readable extraction must not be diffed against fallback text")
	}
}

func TestTextMainContentTier(t *testing.T) {
	a := contentFor(t, "https://example.gov/p",
		"<html><body><nav>menu one</nav><main><p>old body</p></main></body></html>")
	b := contentFor(t, "https://example.gov/p",
		"<html><body><nav>menu two</nav><main><p>new body</p></main></body></html>")

	sig := Text(a, b)
	if sig.ContentTier != TierMainContent {
		t.Fatalf("expected main-content tier, got %q", sig.ContentTier)
	}
	// The nav change is outside the main content, so only the body change
	// should register.
	if sig.DiffCount == 0 {
		t.Error("body change should register")
	}
}

func TestTextKeyTerms(t *testing.T) {
	a := contentFor(t, "https://example.gov/p", htmlPage("<p>about fossil fuels programs</p>"))
	b := contentFor(t, "https://example.gov/p", htmlPage("<p>about weather programs</p>"))

	sig := Text(a, b)
	if !sig.KeyTermsChanged {
		t.Fatal("removing a key term should flag key terms changed")
	}
	if net, ok := sig.KeyTerms["fossil fuels"]; !ok || net >= 0 {
		t.Errorf("expected a net removal of %q, got %v", "fossil fuels", sig.KeyTerms)
	}
	if sig.KeyTermsChangeCount == 0 {
		t.Error("change count should reflect key-term deltas")
	}
}

func TestTextIdentical(t *testing.T) {
	a := contentFor(t, "https://example.gov/p", htmlPage("<p>same</p>"))
	b := contentFor(t, "https://example.gov/p", htmlPage("<p>same</p>"))

	sig := Text(a, b)
	if sig.DiffCount != 0 || sig.PercentChanged != 0 {
		t.Errorf("identical text should produce no changes, got %+v", sig)
	}
}

func TestSourceSignal(t *testing.T) {
	a := contentFor(t, "https://example.gov/p", htmlPage(`<div class="x">same</div>`))
	b := contentFor(t, "https://example.gov/p", htmlPage(`<div class="y">same</div>`))

	sig := Source(a, b)
	if sig.DiffCount == 0 {
		t.Error("markup-only change should be visible to the source signal")
	}
	if text := Text(a, b); text.DiffCount != 0 {
		t.Error("markup-only change should be invisible to the text signal")
	}
}

func TestLinksRemovedSelfLink(t *testing.T) {
	a := contentFor(t, "https://example.gov/page",
		htmlPage(`<a href="https://example.gov/page">this page</a><a href="https://example.gov/other">other</a>`))
	b := contentFor(t, "https://example.gov/page",
		htmlPage(`<a href="https://example.gov/other">other</a>`))

	sig, err := Links(a, b)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if !sig.RemovedSelfLink {
		t.Error("dropping the page's own link should set RemovedSelfLink")
	}
	if sig.DiffCount != 1 {
		t.Errorf("expected 1 changed link record, got %d", sig.DiffCount)
	}
}

func TestLinksUnchanged(t *testing.T) {
	html := htmlPage(`<a href="/a">a</a><a href="/b">b</a>`)
	a := contentFor(t, "https://example.gov/page", html)
	b := contentFor(t, "https://example.gov/page", html)

	sig, err := Links(a, b)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if sig.DiffCount != 0 || sig.DiffRatio != 0 || sig.RemovedSelfLink {
		t.Errorf("identical link sets should not register changes: %+v", sig)
	}
}
