package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logging.NewTestLogger(false))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedPage(t *testing.T, s *SQLiteStore, url string, tags ...string) *model.Page {
	t.Helper()
	page := &model.Page{URL: url, Title: "t"}
	for _, tag := range tags {
		page.Tags = append(page.Tags, model.Tag{Name: tag})
	}
	if err := s.PutPage(context.Background(), page); err != nil {
		t.Fatalf("PutPage: %v", err)
	}
	return page
}

func seedVersion(t *testing.T, s *SQLiteStore, pageID string, at time.Time, hash string) *model.Version {
	t.Helper()
	status := 200
	v := &model.Version{
		PageID:      pageID,
		CaptureTime: at,
		Status:      &status,
		BodyHash:    hash,
		MediaType:   "text/html",
		Headers:     map[string]string{"content-type": "text/html"},
	}
	if err := s.PutVersion(context.Background(), v); err != nil {
		t.Fatalf("PutVersion: %v", err)
	}
	return v
}

func TestListPagesFilters(t *testing.T) {
	s := newTestStore(t)
	seedPage(t, s, "https://example.gov/climate", "climate", "epa")
	seedPage(t, s, "https://example.gov/energy", "energy")
	seedPage(t, s, "https://other.org/climate", "climate")

	ctx := context.Background()

	pages, err := s.ListPages(ctx, PageQuery{URLPattern: "*example.gov*"})
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 example.gov pages, got %d", len(pages))
	}

	pages, err = s.ListPages(ctx, PageQuery{Tags: []string{"climate", "epa"}})
	if err != nil {
		t.Fatalf("ListPages tags: %v", err)
	}
	if len(pages) != 1 || pages[0].URL != "https://example.gov/climate" {
		t.Fatalf("tag filter should require every tag, got %+v", pages)
	}

	count, err := s.CountPages(ctx, PageQuery{Tags: []string{"climate"}})
	if err != nil {
		t.Fatalf("CountPages: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 climate pages, got %d", count)
	}
}

func TestListVersionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	page := seedPage(t, s, "https://example.gov/a")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedVersion(t, s, page.ID, base, "h1")
	seedVersion(t, s, page.ID, base.Add(48*time.Hour), "h3")
	seedVersion(t, s, page.ID, base.Add(24*time.Hour), "h2")

	versions, err := s.ListVersions(context.Background(), VersionQuery{PageID: page.ID})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i].CaptureTime.After(versions[i-1].CaptureTime) {
			t.Fatalf("versions out of order at %d: %v then %v",
				i, versions[i-1].CaptureTime, versions[i].CaptureTime)
		}
	}
	if versions[0].BodyHash != "h3" {
		t.Errorf("newest version should come first, got %q", versions[0].BodyHash)
	}
	if versions[0].Status == nil || *versions[0].Status != 200 {
		t.Errorf("status round-trip failed: %v", versions[0].Status)
	}
	if versions[0].Headers["content-type"] != "text/html" {
		t.Errorf("headers round-trip failed: %v", versions[0].Headers)
	}
}

func TestListVersionsMixedPrecisionOrdering(t *testing.T) {
	s := newTestStore(t)
	page := seedPage(t, s, "https://example.gov/precision")

	// A whole-second capture and a fractional one inside the same second.
	// Stored timestamps must keep a fixed width or the whole-second form
	// sorts after the fractional one and newest-first breaks.
	whole := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)
	seedVersion(t, s, page.ID, whole, "whole")
	seedVersion(t, s, page.ID, half, "half")

	versions, err := s.ListVersions(context.Background(), VersionQuery{PageID: page.ID})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].BodyHash != "half" || versions[1].BodyHash != "whole" {
		t.Errorf("newest-first violated: got [%s, %s], want [half, whole]",
			versions[0].BodyHash, versions[1].BodyHash)
	}

	versions, err = s.ListVersions(context.Background(), VersionQuery{
		PageID: page.ID,
		Before: half,
	})
	if err != nil {
		t.Fatalf("ListVersions bounded: %v", err)
	}
	if len(versions) != 1 || versions[0].BodyHash != "whole" {
		t.Errorf("window lost the whole-second capture: got %+v", versions)
	}
}

func TestGetPage(t *testing.T) {
	s := newTestStore(t)
	page := seedPage(t, s, "https://example.gov/get", "domain:example.gov")

	got, err := s.GetPage(context.Background(), page.ID)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if got.URL != page.URL || len(got.Tags) != 1 {
		t.Errorf("GetPage round-trip failed: %+v", got)
	}

	if _, err := s.GetPage(context.Background(), "nope"); err != ErrPageNotFound {
		t.Errorf("expected ErrPageNotFound, got %v", err)
	}
}

func TestListVersionsWindow(t *testing.T) {
	s := newTestStore(t)
	page := seedPage(t, s, "https://example.gov/b")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedVersion(t, s, page.ID, base.AddDate(0, 0, i), "h")
	}

	versions, err := s.ListVersions(context.Background(), VersionQuery{
		PageID: page.ID,
		After:  base.AddDate(0, 0, 1),
		Before: base.AddDate(0, 0, 4),
	})
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Errorf("expected 3 versions inside the window, got %d", len(versions))
	}
}

func TestVersionCursorChunks(t *testing.T) {
	s := newTestStore(t)
	page := seedPage(t, s, "https://example.gov/c")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		seedVersion(t, s, page.ID, base.AddDate(0, 0, i), "h")
	}

	cursor := NewVersionCursor(context.Background(), s, page.ID, time.Time{}, 3)
	var seen []time.Time
	for {
		v, ok, err := cursor.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen = append(seen, v.CaptureTime)
	}
	if len(seen) != 7 {
		t.Fatalf("cursor should walk all 7 versions, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].After(seen[i-1]) {
			t.Fatalf("cursor must walk newest-first, violated at %d", i)
		}
	}
}

func TestVersionCursorCanceled(t *testing.T) {
	s := newTestStore(t)
	page := seedPage(t, s, "https://example.gov/d")
	seedVersion(t, s, page.ID, time.Now(), "h")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cursor := NewVersionCursor(ctx, s, page.ID, time.Time{}, 3)
	if _, ok, err := cursor.Next(); ok || err == nil {
		t.Fatal("canceled cursor should report the context error")
	}
}

func TestEachPageStreams(t *testing.T) {
	s := newTestStore(t)
	for _, u := range []string{"https://a.gov/1", "https://a.gov/2", "https://a.gov/3"} {
		seedPage(t, s, u)
	}

	var urls []string
	err := EachPage(context.Background(), s, PageQuery{}, 2, func(p model.Page) error {
		urls = append(urls, p.URL)
		return nil
	})
	if err != nil {
		t.Fatalf("EachPage: %v", err)
	}
	if len(urls) != 3 {
		t.Errorf("expected 3 pages streamed, got %d", len(urls))
	}
}
