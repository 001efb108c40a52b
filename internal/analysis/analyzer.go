// Package analysis is the engine core: it fetches and normalizes the two
// boundary versions of a range, extracts change signals, scores them, and
// recursively bisects the range to localize independent changes.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pagedrift/pagedrift/internal/capture"
	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/normalize"
	"github.com/pagedrift/pagedrift/internal/readability"
	"github.com/pagedrift/pagedrift/internal/signals"
	"github.com/pagedrift/pagedrift/internal/timeline"
	"github.com/pagedrift/pagedrift/internal/urlx"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

type Config struct {
	// UseReadability enables the readability-service tier of the text signal.
	UseReadability bool

	// Threshold is the minimum overall priority before change localization
	// kicks in.
	Threshold float64
}

func DefaultConfig() Config {
	return Config{
		UseReadability: true,
		Threshold:      0.25,
	}
}

// Analyzer compares version pairs and analyzes whole pages. It is safe for
// concurrent use; all per-analysis state lives in a request-scoped content
// cache.
type Analyzer struct {
	cfg      Config
	selector *timeline.Selector
	wc       webclient.WebClient
	readable *readability.Client
	status   *signals.StatusInference
	logger   logging.Logger
}

// New wires an Analyzer. The readability client may be nil; the text signal
// then starts at the main-content tier.
func New(cfg Config, selector *timeline.Selector, wc webclient.WebClient, readable *readability.Client, logger logging.Logger) (*Analyzer, error) {
	if selector == nil {
		return nil, errors.New("analysis: nil selector")
	}
	if wc == nil {
		return nil, errors.New("analysis: nil webclient")
	}
	if logger == nil {
		return nil, errors.New("analysis: nil logger")
	}
	return &Analyzer{
		cfg:      cfg,
		selector: selector,
		wc:       wc,
		readable: readable,
		status:   signals.NewStatusInference(nil),
		logger:   logger.With(logging.Field{Key: "component", Value: "analysis"}),
	}, nil
}

// cachedContent wraps the request-scoped content of one version. The
// readability result is remembered even when it is "unparseable" so the
// service is asked at most once per version per analysis.
type cachedContent struct {
	content          *signals.Content
	readabilityTried bool
}

// contentCache is the per-analysis side table keyed by version ID. It is
// owned by one AnalyzePage call and discarded at its end; nothing in it is
// ever written back to the store.
type contentCache map[string]*cachedContent

// AnalyzePage selects the analyzable version range of a page inside window,
// scores the overall change, and localizes sub-changes when the overall
// priority crosses the configured threshold. Failures are carried in the
// result, never panicked across a worker boundary.
func (a *Analyzer) AnalyzePage(ctx context.Context, page *model.Page, window model.Window) *model.PageResult {
	result := &model.PageResult{Page: page}

	versions, err := a.selector.SelectVersions(ctx, page.ID, window)
	if err != nil {
		result.Err = err
		return result
	}
	if len(versions) < 2 {
		result.Err = noChange("page has no changed versions in the window")
		return result
	}

	oldest := versions[len(versions)-1]
	newest := versions[0]
	result.Start = &oldest
	result.End = &newest

	cache := contentCache{}
	overall, err := a.AnalyzePair(ctx, page, &oldest, &newest, cache)
	if err != nil {
		result.Err = err
		return result
	}
	result.Overall = overall

	if overall.Priority >= a.cfg.Threshold {
		changes, err := a.localize(ctx, page, versions, a.cfg.Threshold, cache)
		if err != nil {
			result.Err = fmt.Errorf("localizing changes: %w", err)
			return result
		}
		result.Changes = changes
	}
	return result
}

// AnalyzePair compares two versions, a older and b newer, and returns the
// scored analysis. ErrNoChange and ErrNotAnalyzable results are answers the
// caller should expect, not failures.
func (a *Analyzer) AnalyzePair(ctx context.Context, page *model.Page, va, vb *model.Version, cache contentCache) (*model.AnalysisResult, error) {
	if err := assertAnalyzable(va, vb); err != nil {
		return nil, err
	}

	contentA, contentB, err := a.loadPair(ctx, va, vb, cache)
	if err != nil {
		return nil, err
	}

	linksSignal, err := signals.Links(contentA, contentB)
	if err != nil {
		return nil, fmt.Errorf("extracting links: %w", err)
	}
	textSignal := signals.Text(contentA, contentB)
	sourceSignal := signals.Source(contentA, contentB)

	redirectsA := a.status.Redirects(va, contentA.Raw)
	redirectsB := a.status.Redirects(vb, contentB.Raw)
	statusA := a.status.EffectiveStatus(va, contentA.Raw, redirectsA)
	statusB := a.status.EffectiveStatus(vb, contentB.Raw, redirectsB)

	result := &model.AnalysisResult{
		AID:           va.ID,
		BID:           vb.ID,
		RootPage:      urlx.IsRootPath(page.URL),
		StatusChanged: (statusA >= 400) != (statusB >= 400),
		StatusA:       statusA,
		StatusB:       statusB,
		Links:         linksSignal,
		Text:          textSignal,
		Source:        sourceSignal,
		Redirect:      signals.Redirect(redirectsA, redirectsB),
	}
	result.Priority = Score(result)
	return result, nil
}

// assertAnalyzable is the cheap gate before any fetching happens.
func assertAnalyzable(va, vb *model.Version) error {
	if va.BodyHash != "" && va.BodyHash == vb.BodyHash {
		return noChange("boundary versions have identical content")
	}
	if !capture.IsFetchable(va.BodyURL) || !capture.IsFetchable(vb.BodyURL) {
		return notAnalyzable("raw response data is not retrievable")
	}
	if !capture.IsAnalyzableMedia(va) || !capture.IsAnalyzableMedia(vb) {
		return notAnalyzable("media type cannot be analyzed")
	}
	return nil
}

// loadPair fetches and normalizes both versions' bodies in parallel. Both
// fetches must complete before any diffing proceeds.
func (a *Analyzer) loadPair(ctx context.Context, va, vb *model.Version, cache contentCache) (*signals.Content, *signals.Content, error) {
	entryA, entryB := cache[va.ID], cache[vb.ID]

	g, gctx := errgroup.WithContext(ctx)
	if entryA == nil {
		g.Go(func() error {
			var err error
			entryA, err = a.fetch(gctx, va)
			return err
		})
	}
	if entryB == nil {
		g.Go(func() error {
			var err error
			entryB, err = a.fetch(gctx, vb)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	cache[va.ID] = entryA
	cache[vb.ID] = entryB

	if a.cfg.UseReadability && a.readable != nil {
		// Readability extraction is only useful when both sides have it; ask
		// for whichever is missing, in parallel. The service being down only
		// degrades the text tier, so errors are logged, not returned.
		var rg errgroup.Group
		for _, entry := range []*cachedContent{entryA, entryB} {
			if entry.readabilityTried {
				continue
			}
			entry := entry
			rg.Go(func() error {
				text, err := a.readable.Extract(ctx, entry.content.Version.BodyURL)
				if err != nil {
					a.logger.Warn("readability extraction failed",
						logging.Field{Key: "version", Value: entry.content.Version.ID},
						logging.Field{Key: "error", Value: err.Error()})
				} else {
					entry.content.Readable = text
				}
				entry.readabilityTried = true
				return nil
			})
		}
		_ = rg.Wait()
	}

	return entryA.content, entryB.content, nil
}

func (a *Analyzer) fetch(ctx context.Context, v *model.Version) (*cachedContent, error) {
	resp, err := a.wc.Do(ctx, &webclient.Request{
		Method:      "GET",
		URL:         v.BodyURL,
		AllowErrors: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching version %s: %w", v.ID, err)
	}
	raw := resp.Text()

	normalized, err := normalize.NormalizeHTML(raw, v.CaptureURL)
	if err != nil {
		return nil, fmt.Errorf("normalizing version %s: %w", v.ID, err)
	}

	return &cachedContent{
		content: &signals.Content{
			Version:    v,
			Raw:        raw,
			Normalized: normalized,
		},
	}, nil
}
