package model

import "time"

// Version is one captured snapshot of a page at a point in time. Versions are
// immutable once loaded from the store; anything derived during an analysis
// (fetched body, normalized content, computed status) lives in a
// request-scoped side table keyed by version ID, never on the record itself.
type Version struct {
	// ID is the stable identifier assigned by the version store.
	ID string `json:"id"`

	// PageID references the owning page.
	PageID string `json:"page_id"`

	// CaptureTime is when the snapshot was taken.
	CaptureTime time.Time `json:"capture_time"`

	// Status is the HTTP status of the capture. Nil means a network-level
	// failure rather than a server response.
	Status *int `json:"status"`

	// ContentLength is the captured body size in bytes; -1 if unknown.
	ContentLength int64 `json:"content_length"`

	// Headers holds the response headers recorded at capture time, with
	// lower-cased keys.
	Headers map[string]string `json:"headers,omitempty"`

	// BodyHash is a content-addressed hash of the body. Two versions with
	// equal hashes have identical content regardless of status.
	BodyHash string `json:"body_hash"`

	// MediaType is the parsed content type, e.g. "text/html". May be empty.
	MediaType string `json:"media_type,omitempty"`

	// CaptureURL is the canonical URL that was captured.
	CaptureURL string `json:"capture_url"`

	// BodyURL is the handle for lazily retrieving the raw body.
	BodyURL string `json:"body_url"`

	// Redirects is the server-side redirect chain recorded at capture time,
	// in request order. The last entry is the final landing URL.
	Redirects []string `json:"redirects,omitempty"`

	// Title is the page title recorded at capture time, when known.
	Title string `json:"title,omitempty"`
}

// StatusOr returns the raw status or fallback when the capture has none.
func (v *Version) StatusOr(fallback int) int {
	if v.Status == nil {
		return fallback
	}
	return *v.Status
}

// Page is the unit of monitoring: a URL with an append-only history of
// versions ordered by capture time.
type Page struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Status      int      `json:"status,omitempty"`
	Tags        []Tag    `json:"tags,omitempty"`
	Maintainers []string `json:"maintainers,omitempty"`
}

// Tag is a free-form key:value style classification, e.g. "domain:epa.gov".
// Used only for downstream grouping.
type Tag struct {
	Name string `json:"name"`
}

// Window is a half-open capture-time range [After, Before).
type Window struct {
	After  time.Time `json:"after"`
	Before time.Time `json:"before"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.After) && t.Before(w.Before)
}
