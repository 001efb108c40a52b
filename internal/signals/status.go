package signals

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/normalize"
	"github.com/pagedrift/pagedrift/internal/urlx"
)

// Override forces an effective status for captures whose URL contains the
// pattern. Overrides exist for sites that consistently report misleading
// codes (archived pages served with 404s, error pages served with 200s).
// They are consulted in order; the first match wins.
type Override struct {
	URLPattern string
	Status     int
}

// DefaultOverrides are the site-specific rules accumulated from review of
// false positives. New rules are appended configuration, not code changes.
var DefaultOverrides = []Override{
	// FWS ECOS serves a login challenge as a 200 on retired species profiles.
	{URLPattern: "ecos.fws.gov/ecp/species", Status: 404},
	// OSMRE's legacy CMS answers 404 for pages that render fine.
	{URLPattern: "osmre.gov/lrg.shtm", Status: 200},
}

// softSignposts are URL fragments that a redirect target can carry when a
// site sends missing pages to a generic landing spot instead of answering
// with a real 404.
var softSignposts = []string{
	"page-not-found",
	"pagenotfound",
	"page_not_found",
	"not-found",
	"notfound",
	"/404",
	"errorpage",
	"/error",
}

// titleStatuses map phrases seen in error-page titles to the status they
// imply. Checked only when nothing stronger decided the status.
var titleStatuses = []struct {
	phrase string
	status int
}{
	{"page not found", 404},
	{"file not found", 404},
	{"not found", 404},
	{"access denied", 403},
	{"forbidden", 403},
	{"under maintenance", 503},
	{"site maintenance", 503},
}

// titleCode matches titles that lead with a literal status code ("404",
// "Error 503 - ..."), not any three-digit number buried in a real title.
var titleCode = regexp.MustCompile(`^\s*(?:error\s+)?([45]\d\d)\b`)

// StatusInference computes the effective HTTP-outcome classification of a
// capture: the raw status corrected by site overrides, redirect behavior and
// error-page title heuristics.
type StatusInference struct {
	Overrides []Override
}

func NewStatusInference(overrides []Override) *StatusInference {
	if overrides == nil {
		overrides = DefaultOverrides
	}
	return &StatusInference{Overrides: overrides}
}

// Redirects describes the redirect behavior observed on one version's
// capture: the server-side chain from capture metadata plus any client-side
// meta-refresh target found in the body.
func (si *StatusInference) Redirects(v *model.Version, body string) model.RedirectInfo {
	info := model.RedirectInfo{}

	if len(v.Redirects) > 1 {
		// The first entry is the requested URL itself; the rest is the chain.
		info.Server = v.Redirects[1:]
	} else if len(v.Redirects) == 1 && v.Redirects[0] != v.CaptureURL {
		info.Server = v.Redirects
	}

	if target := normalize.MetaRefreshTarget(body); target != "" {
		if resolved, err := urlx.Resolve(v.CaptureURL, target, urlx.CanonicalizeOptions{
			StripTrailingSlash: true,
		}); err == nil {
			info.Client = resolved
		} else {
			info.Client = target
		}
	}

	final := ""
	if len(info.Server) > 0 {
		final = info.Server[len(info.Server)-1]
	}
	// A client-side redirect happens after the server chain lands.
	if info.Client != "" {
		final = info.Client
	}
	if final != "" {
		if canonical, err := urlx.Canonicalize(final, urlx.CanonicalizeOptions{
			StripTrailingSlash: true,
		}); err == nil {
			final = canonical
		}
		info.FinalTarget = final
	}
	return info
}

// EffectiveStatus layers the override policy over the raw capture status:
// site-specific overrides first, then soft-404 inference from redirect
// behavior, then title heuristics. The raw status wins when nothing applies.
func (si *StatusInference) EffectiveStatus(v *model.Version, body string, redirects model.RedirectInfo) int {
	for _, o := range si.Overrides {
		if strings.Contains(v.CaptureURL, o.URLPattern) {
			return o.Status
		}
	}

	status := v.StatusOr(200)
	if status >= 400 {
		return status
	}

	if si.softNotFound(v.CaptureURL, redirects.FinalTarget) {
		return 404
	}

	title := v.Title
	if title == "" {
		title = normalize.Title(body)
	}
	if inferred := statusFromTitle(title); inferred != 0 {
		return inferred
	}

	return status
}

// softNotFound reports whether a redirect looks like a site quietly sending
// a missing page somewhere generic: a non-root page landing back on the site
// root, or a target carrying a known not-found signpost.
func (si *StatusInference) softNotFound(captureURL, finalTarget string) bool {
	if finalTarget == "" {
		return false
	}
	lower := strings.ToLower(finalTarget)
	for _, signpost := range softSignposts {
		if strings.Contains(lower, signpost) {
			return true
		}
	}
	if !urlx.IsRootPath(captureURL) && urlx.SameHost(captureURL, finalTarget) &&
		urlx.IsRootPath(finalTarget) {
		return true
	}
	return false
}

// statusFromTitle infers a status from error-page title text, or 0 when the
// title is inconclusive.
func statusFromTitle(title string) int {
	if title == "" {
		return 0
	}
	lower := strings.ToLower(title)
	for _, t := range titleStatuses {
		if strings.Contains(lower, t.phrase) {
			return t.status
		}
	}
	if m := titleCode.FindStringSubmatch(lower); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return code
		}
	}
	return 0
}

// Redirect compares redirect behavior between the older version a and newer
// version b.
func Redirect(a, b model.RedirectInfo) model.RedirectSignal {
	return model.RedirectSignal{
		A:            a,
		B:            b,
		Changed:      a.FinalTarget != b.FinalTarget,
		ClientGained: a.Client == "" && b.Client != "",
		ClientLost:   a.Client != "" && b.Client == "",
	}
}
