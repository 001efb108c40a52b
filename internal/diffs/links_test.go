package diffs

import "testing"

const linksPageA = `<html><body>
<a href="/about">About</a>
<a href="https://example.gov/programs/">Programs</a>
<a href="#section">Skip</a>
<a href="javascript:void(0)">Menu</a>
<a href="/about">About again</a>
</body></html>`

const linksPageB = `<html><body>
<a href="/about">About</a>
<a href="/contact">Contact</a>
</body></html>`

func TestExtractLinks(t *testing.T) {
	links, err := ExtractLinks(linksPageA, "https://example.gov/page")
	if err != nil {
		t.Fatalf("ExtractLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 unique links, got %d: %+v", len(links), links)
	}
	if links[0].Href != "https://example.gov/about" {
		t.Errorf("unexpected first link %q", links[0].Href)
	}
	if links[1].Href != "https://example.gov/programs" {
		t.Errorf("trailing slash should be stripped, got %q", links[1].Href)
	}
}

func TestLinksDiff(t *testing.T) {
	a, _ := ExtractLinks(linksPageA, "https://example.gov/page")
	b, _ := ExtractLinks(linksPageB, "https://example.gov/page")

	diff := LinksDiff(a, b)
	byHref := make(map[string]Op)
	for _, seg := range diff {
		byHref[seg.Link.Href] = seg.Op
	}

	if byHref["https://example.gov/about"] != OpKept {
		t.Error("/about should be kept")
	}
	if byHref["https://example.gov/programs"] != OpDeleted {
		t.Error("/programs should be deleted")
	}
	if byHref["https://example.gov/contact"] != OpInserted {
		t.Error("/contact should be inserted")
	}

	ratio := LinksPercentChanged(diff)
	if ratio <= 0.5 || ratio >= 0.7 {
		t.Errorf("expected 2/3 changed, got %f", ratio)
	}
}

func TestLinksDiffIdentical(t *testing.T) {
	a, _ := ExtractLinks(linksPageB, "https://example.gov/page")
	diff := LinksDiff(a, a)
	if len(LinkChanges(diff)) != 0 {
		t.Error("identical link sets must produce no changes")
	}
	if LinksPercentChanged(diff) != 0 {
		t.Error("identical link sets must have ratio 0")
	}
	if LinksPercentChanged(nil) != 0 {
		t.Error("empty diff must have ratio 0")
	}
}
