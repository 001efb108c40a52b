// Package normalize canonicalizes captured HTML before diffing, stripping
// the parts that change pointlessly between captures (tracking params,
// script hashes, postback fields, whitespace) so two practically-identical
// pages don't score as different. It also hosts the conservative
// main-content heuristics used as the middle tier of the text fallback.
package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pagedrift/pagedrift/internal/urlx"
)

var whitespaceRun = regexp.MustCompile(`[\s\r\n]+`)

// NormalizeHTML rewrites a captured document into a canonical form:
// link and media URLs are resolved and canonicalized, scripts/styles/meta
// are dropped, hidden postback form fields removed. The returned markup is
// only meant for comparison, never for display.
func NormalizeHTML(html, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := urlx.Resolve(pageURL, href, urlx.CanonicalizeOptions{}); err == nil {
			base = resolved
		}
	}

	opts := urlx.CanonicalizeOptions{DropTrackingParams: true, StripTrailingSlash: true}

	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		target, hasHref := sel.Attr("href")

		if hasHref && target != "" {
			if resolved, err := urlx.Resolve(base, target, opts); err == nil {
				sel.SetAttr("href", resolved)
			}
		}

		// Links that are ARIA controls for other elements often carry
		// autogenerated target IDs (collapsible navigation); neutralize them
		// so those IDs don't read as changes. The link text still diffs.
		if aria, ok := sel.Attr("aria-controls"); ok && aria != "" {
			lower := strings.ToLower(target)
			if !hasHref || target == "" || strings.HasPrefix(target, "#") ||
				strings.HasPrefix(lower, "javascript:") {
				sel.SetAttr("href", "#")
			}
		}
	})

	doc.Find("img, source").Each(func(_ int, sel *goquery.Selection) {
		sel.RemoveAttr("srcset")
		if src, ok := sel.Attr("src"); ok && src != "" {
			if resolved, err := urlx.Resolve(base, src, opts); err == nil {
				sel.SetAttr("src", resolved)
			}
		}
	})

	// Remove scripts, styles and metadata; keep the charset meta so the
	// document stays self-describing.
	doc.Find("script, style, link").Remove()
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		if _, ok := sel.Attr("charset"); !ok {
			sel.Remove()
		}
	})

	// Hidden form fields for postbacks or other session info.
	doc.Find(`input[type="hidden"], input[name^="__"]`).Remove()

	out, err := doc.Html()
	if err != nil {
		return "", err
	}
	return whitespaceRun.ReplaceAllString(out, " "), nil
}

// Text flattens a document to its visible text with collapsed whitespace.
func Text(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " ")), nil
}

// MainContent attempts to find the main content area of a document and
// returns a new document containing only that content. The second return is
// false when no main content could be identified, so the caller can fall
// back to the full document instead of silently analyzing the wrong thing.
//
// Deliberately conservative: only well-marked-up pages (main/role
// attributes, single article) are reduced; anything ambiguous is left alone.
func MainContent(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	body := doc.Find("body")
	// Empty bodies are fine: the main content is simply empty.
	if strings.TrimSpace(body.Text()) == "" {
		return html, true
	}

	header := firstOf(doc, `[role="banner"]`, "header")
	footer := firstOf(doc, `[role="contentinfo"]`)
	if footer == nil {
		footers := doc.Find("footer")
		if footers.Length() > 0 {
			footer = footers.Last()
		}
	}
	main := firstOf(doc, "main", `[role="main"]`, "#main")
	if main == nil {
		articles := doc.Find("article")
		if articles.Length() == 1 {
			main = articles.First()
		}
	}
	nav := firstOf(doc, "nav", `[role="navigation"]`)

	if main == nil && header == nil && footer == nil {
		return "", false
	}

	if header != nil {
		header.Remove()
	}
	if footer != nil {
		footer.Remove()
	}
	if nav != nil {
		nav.Remove()
	}

	if main != nil {
		mainHTML, err := goquery.OuterHtml(main)
		if err != nil {
			return "", false
		}
		body.SetHtml(mainHTML)
	}

	out, err := doc.Html()
	if err != nil {
		return "", false
	}
	return out, true
}

func firstOf(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, selector := range selectors {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			return sel.First()
		}
	}
	return nil
}

// Title returns the document title, trimmed and whitespace-collapsed.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(doc.Find("title").First().Text(), " "))
}

var refreshContent = regexp.MustCompile(`(?i)^\s*\d+\s*;\s*url\s*=\s*['"]?([^'"]+)['"]?\s*$`)

// MetaRefreshTarget extracts the target of a client-side "meta refresh"
// redirect from raw markup, or "" when the document has none.
func MetaRefreshTarget(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	target := ""
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		equiv, _ := sel.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		content, _ := sel.Attr("content")
		if m := refreshContent.FindStringSubmatch(content); m != nil {
			target = strings.TrimSpace(m[1])
			return false
		}
		return true
	})
	return target
}
