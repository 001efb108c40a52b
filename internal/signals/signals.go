// Package signals turns a pair of fetched versions into the structured
// change signals the scorer combines: text, raw source, hyperlinks and
// status/redirect behavior. Extractors are pure with respect to their inputs;
// everything derived from a fetch lives on the request-scoped Content record,
// never on the stored Version.
package signals

import (
	"github.com/pagedrift/pagedrift/internal/diffs"
	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/normalize"
	"github.com/pagedrift/pagedrift/internal/terms"
	"github.com/pagedrift/pagedrift/internal/urlx"
)

// Content is the request-scoped view of one version: the fetched body plus
// everything derived from it during a single analysis call. It is owned by
// that call and discarded at its end.
type Content struct {
	Version *model.Version

	// Raw is the decoded body as captured.
	Raw string

	// Normalized is the canonicalized markup used for source and link diffs.
	Normalized string

	// Readable is the readability-service extraction, nil when the service
	// was unavailable or could not parse the document.
	Readable *string
}

// Content tiers for the text signal, most preferred first.
const (
	TierReadability = "readability"
	TierMainContent = "main-content"
	TierNormalized  = "normalized"
)

// comparableText picks the text pair to diff. Both sides must come from the
// same tier so the diff compares like with like: if only one side has a
// readability extraction, neither uses it.
func comparableText(a, b *Content) (textA, textB, tier string) {
	if a.Readable != nil && b.Readable != nil {
		return *a.Readable, *b.Readable, TierReadability
	}

	mainA, okA := normalize.MainContent(a.Normalized)
	mainB, okB := normalize.MainContent(b.Normalized)
	if okA && okB {
		if textA, err := normalize.Text(mainA); err == nil {
			if textB, err := normalize.Text(mainB); err == nil {
				return textA, textB, TierMainContent
			}
		}
	}

	textA, errA := normalize.Text(a.Normalized)
	textB, errB := normalize.Text(b.Normalized)
	if errA != nil || errB != nil {
		return a.Normalized, b.Normalized, TierNormalized
	}
	return textA, textB, TierNormalized
}

// Text diffs the page text of the two versions and derives change ratios,
// the longest contiguous changed span, and key-term deltas from a word-level
// reconstruction of the character diff.
func Text(a, b *Content) model.TextSignal {
	textA, textB, tier := comparableText(a, b)

	diff := diffs.TextDiff(textA, textB)
	changes := diffs.Changes(diff)

	deletions, insertions := diffs.WordDiffs(diff)
	deleted := map[string]int{}
	inserted := map[string]int{}
	for gram := 1; gram <= terms.MaxGrams; gram++ {
		for _, g := range diffs.ChangedNgrams(deletions, gram) {
			deleted[g]++
		}
		for _, g := range diffs.ChangedNgrams(insertions, gram) {
			inserted[g]++
		}
	}

	keyTerms := map[string]int{}
	changeCount := 0
	for _, term := range terms.KeyTerms {
		net := inserted[term] - deleted[term]
		if net != 0 {
			keyTerms[term] = net
			if net < 0 {
				changeCount -= net
			} else {
				changeCount += net
			}
		}
	}

	return model.TextSignal{
		Readable:            tier == TierReadability,
		ContentTier:         tier,
		KeyTerms:            keyTerms,
		KeyTermsChanged:     len(keyTerms) > 0,
		KeyTermsChangeCount: changeCount,
		PercentChanged:      diffs.PercentChanged(diff),
		DiffHash:            diffs.HashChanges(changes),
		DiffCount:           len(changes),
		DiffLength:          diffs.ChangedLength(diff),
		DiffMaxLength:       diffs.LongestChange(diff),
	}
}

// Source diffs the normalized raw markup, catching structural changes the
// text signal can't see.
func Source(a, b *Content) model.SourceSignal {
	diff := diffs.TextDiff(a.Normalized, b.Normalized)
	changes := diffs.Changes(diff)
	return model.SourceSignal{
		DiffHash:   diffs.HashChanges(changes),
		DiffCount:  len(changes),
		DiffLength: diffs.ChangedLength(diff),
		DiffRatio:  diffs.PercentChanged(diff),
	}
}

// Links diffs the canonicalized hyperlink targets of the two versions.
func Links(a, b *Content) (model.LinksSignal, error) {
	linksA, err := diffs.ExtractLinks(a.Normalized, a.Version.CaptureURL)
	if err != nil {
		return model.LinksSignal{}, err
	}
	linksB, err := diffs.ExtractLinks(b.Normalized, b.Version.CaptureURL)
	if err != nil {
		return model.LinksSignal{}, err
	}

	diff := diffs.LinksDiff(linksA, linksB)
	changes := diffs.LinkChanges(diff)

	selfA := canonicalSelf(a.Version.CaptureURL)
	selfB := canonicalSelf(b.Version.CaptureURL)
	removedSelf := false
	for _, seg := range diff {
		if seg.Op != diffs.OpDeleted {
			continue
		}
		if seg.Link.Href == selfA || seg.Link.Href == selfB {
			removedSelf = true
			break
		}
	}

	return model.LinksSignal{
		DiffHash:        diffs.HashLinkChanges(changes),
		DiffCount:       len(changes),
		DiffRatio:       diffs.LinksPercentChanged(diff),
		RemovedSelfLink: removedSelf,
	}, nil
}

// canonicalSelf canonicalizes a capture URL the same way link extraction
// canonicalizes hrefs, so self-link comparison is apples to apples.
func canonicalSelf(captureURL string) string {
	canonical, err := urlx.Canonicalize(captureURL, urlx.CanonicalizeOptions{
		StripTrailingSlash: true,
	})
	if err != nil {
		return captureURL
	}
	return canonical
}
