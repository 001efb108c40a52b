package diffs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagedrift/pagedrift/internal/urlx"
)

// Link is one extracted hyperlink with its canonicalized target.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text,omitempty"`
}

// LinkSegment is one (operation, link) record of a structured link diff.
type LinkSegment struct {
	Op   Op   `json:"op"`
	Link Link `json:"link"`
}

// ExtractLinks pulls hyperlink targets out of an HTML document and
// canonicalizes them against baseURL. Duplicate targets collapse to one
// record; anchors-only and javascript: pseudo-links are skipped.
func ExtractLinks(html, baseURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]Link)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(strings.ToLower(href), "javascript:") ||
			strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		resolved, err := urlx.Resolve(baseURL, href, urlx.CanonicalizeOptions{
			StripTrailingSlash: true,
		})
		if err != nil {
			return
		}
		if _, ok := seen[resolved]; !ok {
			seen[resolved] = Link{
				Href: resolved,
				Text: strings.TrimSpace(sel.Text()),
			}
		}
	})

	links := make([]Link, 0, len(seen))
	for _, link := range seen {
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Href < links[j].Href })
	return links, nil
}

// LinksDiff compares two link sets by canonical target and returns tri-state
// records: links only in a are deleted, only in b inserted, common kept.
// Output is ordered by target for determinism.
func LinksDiff(a, b []Link) []LinkSegment {
	aSet := make(map[string]Link, len(a))
	for _, link := range a {
		aSet[link.Href] = link
	}
	bSet := make(map[string]Link, len(b))
	for _, link := range b {
		bSet[link.Href] = link
	}

	out := make([]LinkSegment, 0, len(a)+len(b))
	for _, link := range a {
		if _, ok := bSet[link.Href]; ok {
			out = append(out, LinkSegment{Op: OpKept, Link: link})
		} else {
			out = append(out, LinkSegment{Op: OpDeleted, Link: link})
		}
	}
	for _, link := range b {
		if _, ok := aSet[link.Href]; !ok {
			out = append(out, LinkSegment{Op: OpInserted, Link: link})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Link.Href < out[j].Link.Href })
	return out
}

// LinkChanges returns only the changed records of a link diff.
func LinkChanges(diff []LinkSegment) []LinkSegment {
	out := make([]LinkSegment, 0, len(diff))
	for _, seg := range diff {
		if seg.Op != OpKept {
			out = append(out, seg)
		}
	}
	return out
}

// LinksPercentChanged is the proportion of changed link records over all
// records in the diff, 0 when the diff is empty.
func LinksPercentChanged(diff []LinkSegment) float64 {
	if len(diff) == 0 {
		return 0
	}
	changed := 0
	for _, seg := range diff {
		if seg.Op != OpKept {
			changed++
		}
	}
	return float64(changed) / float64(len(diff))
}

// HashLinkChanges fingerprints the changed records of a link diff.
func HashLinkChanges(changes []LinkSegment) string {
	var data []byte
	if len(changes) > 0 {
		data, _ = json.Marshal(changes)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
