// Package capture classifies individual captured versions: whether a capture
// is likely a blocked/error response rather than true page content, and
// whether its media type can be analyzed at all.
package capture

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pagedrift/pagedrift/internal/model"
)

// IsBadCapture identifies captures that were likely blocked responses (a rate
// limit or firewall rule stopped the crawler) or intermittent edge errors.
// These don't represent what a regular user saw at the time, so they should
// not be used as comparison candidates.
//
// This is a heuristic allowlist of known false-positive error patterns, not a
// general error detector: new provider signatures are appended, not inferred.
// Unmatched cases return false so legitimate content is never discarded.
func IsBadCapture(v *model.Version) bool {
	headers := lowerHeaders(v.Headers)

	contentLength := v.ContentLength
	if contentLength < 0 {
		if raw, ok := headers["content-length"]; ok {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				contentLength = n
			}
		}
	}

	status := v.StatusOr(200)
	// A 200 with a zero-length body is as good as a server error here.
	if status == 200 && contentLength == 0 {
		status = 500
	}
	if status < 400 {
		return false
	}

	server := strings.ToLower(headers["server"])

	noCache := false
	if cacheControl, ok := headers["cache-control"]; ok {
		cc := strings.ToLower(cacheControl)
		if strings.Contains(cc, "no-cache") || strings.Contains(cc, "max-age=0") {
			noCache = true
		}
	}
	if !noCache {
		if expiresRaw, ok := headers["expires"]; ok {
			if expires, err := http.ParseTime(expiresRaw); err == nil {
				requestTime := v.CaptureTime
				if dateRaw, ok := headers["date"]; ok {
					if date, err := http.ParseTime(dateRaw); err == nil {
						requestTime = date
					}
				}
				noCache = expires.Sub(requestTime) < time.Minute
			}
		}
	}

	xCache := strings.ToLower(headers["x-cache"])
	cacheError := strings.Contains(xCache, "error") || strings.Contains(xCache, "n/a")

	isShortOrUnknown := contentLength < 1000
	contentType := v.MediaType
	if contentType == "" {
		contentType = headers["content-type"]
	}
	isHTML := strings.HasPrefix(contentType, "text/html")

	switch {
	case strings.HasPrefix(server, "awselb/"):
		return isShortOrUnknown && isHTML
	case server == "akamaighost":
		return isShortOrUnknown && noCache
	case server == "cloudfront":
		// The WAF challenge is definitely a bad capture; the cache error is
		// only probably one.
		if strings.ToLower(headers["x-amzn-waf-action"]) == "challenge" {
			return true
		}
		return cacheError
	case server == "cloudflare":
		return strings.ToLower(headers["cf-mitigated"]) == "challenge"
	}
	return false
}

// StatusErrorClass returns the error class of a status: 4 for 4xx, 5 for 5xx
// (and above, including unknown statuses), 0 for non-errors. A nil status is
// treated as an unknown failure (class 5+).
func StatusErrorClass(status *int) int {
	s := 600
	if status != nil {
		s = *status
	}
	class := s / 100
	if class < 4 {
		return 0
	}
	return class
}

// Media-type policy: this engine can only handle HTML and HTML-like data.
// text/* types are allowed by default, so only non-text types need to be
// explicitly allowed and only text types explicitly disallowed.

var allowedMedia = map[string]struct{}{
	// HTML should be text/html, but these show up in the wild too.
	"appliction/html":       {},
	"application/xhtml":     {},
	"application/xhtml+xml": {},
	"application/xml":       {},
	"application/xml+html":  {},
	"application/xml+xhtml": {},
}

var disallowedMedia = map[string]struct{}{
	"text/calendar":       {},
	"application/rss+xml": {},
}

// Extensions to check when there's no media type information.
var disallowedExtensions = map[string]struct{}{
	".avi": {}, ".doc": {}, ".docx": {}, ".eps": {}, ".epub": {}, ".exe": {},
	".gif": {}, ".jpeg": {}, ".jpg": {}, ".kmz": {}, ".m2t": {}, ".mov": {},
	".mp3": {}, ".mpg": {}, ".pdf": {}, ".png": {}, ".ppt": {}, ".pptx": {},
	".rtf": {}, ".wmv": {}, ".xls": {}, ".xlsm": {}, ".xlsx": {}, ".xml": {},
	".zip": {},
}

// IsFetchable reports whether the version's body handle is retrievable.
func IsFetchable(bodyURL string) bool {
	return strings.HasPrefix(bodyURL, "http:") || strings.HasPrefix(bodyURL, "https:")
}

// IsAnalyzableMedia reports whether a version's content can be diffed as
// HTML-like text. When the media type is unknown, the capture URL's file
// extension decides.
func IsAnalyzableMedia(v *model.Version) bool {
	if v.MediaType != "" {
		if _, ok := allowedMedia[v.MediaType]; ok {
			return true
		}
		if _, ok := disallowedMedia[v.MediaType]; ok {
			return false
		}
		return strings.HasPrefix(v.MediaType, "text/")
	}
	ext := strings.ToLower(path.Ext(urlPath(v.CaptureURL)))
	if ext == "" {
		return true
	}
	_, disallowed := disallowedExtensions[ext]
	return !disallowed
}

func urlPath(rawURL string) string {
	// Cheap parse; a full url.Parse would also work but anything before "?"
	// or "#" is enough for an extension check.
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rawURL = rawURL[i+3:]
		if j := strings.Index(rawURL, "/"); j >= 0 {
			return rawURL[j:]
		}
		return ""
	}
	return rawURL
}

func lowerHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}
