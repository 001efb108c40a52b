package analysis

import (
	"context"
	"errors"

	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/timeline"
)

// localizeFloor is the minimum working threshold for bisection. Localizing on
// a near-zero bar produces noise, not insight.
const localizeFloor = 0.2

// localize recursively bisects a newest-first version sequence, looking for
// the minimal disjoint sub-ranges that each contain one independent
// above-threshold change. The halves overlap at the midpoint version so no
// time is lost at the seam. A no-change sub-window is skipped silently; any
// other error aborts the search, since a bug during localization must not be
// swallowed the way a benign "nothing changed here" is.
func (a *Analyzer) localize(ctx context.Context, page *model.Page, versions []model.Version, threshold float64, cache contentCache) ([]model.ChangeSpan, error) {
	if threshold < localizeFloor {
		threshold = localizeFloor
	}
	if len(versions) < 3 {
		return nil, nil
	}

	mid := len(versions) / 2
	newerHalf := versions[:mid+1]
	olderHalf := versions[mid:]

	var spans []model.ChangeSpan
	// Oldest half first, so earlier changes surface first in ties.
	for _, period := range [][]model.Version{olderHalf, newerHalf} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trimmed := timeline.Trim(period)
		if len(trimmed) < 2 {
			// Trimming collapsed the half: nothing observable changed in it.
			continue
		}
		oldest := trimmed[len(trimmed)-1]
		newest := trimmed[0]

		result, err := a.AnalyzePair(ctx, page, &oldest, &newest, cache)
		if errors.Is(err, ErrNoChange) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if result.Priority < threshold {
			continue
		}

		sub, err := a.localize(ctx, page, period, threshold, cache)
		if err != nil {
			return nil, err
		}
		if len(sub) > 0 {
			// Recursion found something more specific; prefer it.
			spans = append(spans, sub...)
		} else {
			spans = append(spans, model.ChangeSpan{
				Start:    &oldest,
				End:      &newest,
				Analysis: result,
			})
		}
	}
	return spans, nil
}
