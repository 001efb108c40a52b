package analysis

import (
	"math"

	"github.com/pagedrift/pagedrift/internal/model"
)

// Scoring weights. These are the tuned values of the system: self-link
// removal and status transitions dominate, text and link ratios contribute on
// a logarithmic curve, key terms and redirect changes nudge.
const (
	linksBaselineFloor = 0.1
	linksWeight        = 0.3
	selfLinkBonus      = 0.75
	keyTermWeight      = 0.05
	keyTermCap         = 0.4
	textWeight         = 0.65

	// Span bonus: reward paragraph-scale contiguous edits. Spans below the
	// minimum add nothing; the bonus grows linearly up to the maximum span.
	spanMinLength = 100
	spanMaxLength = 2000
	spanMaxBonus  = 0.7

	// Floor when two independent signals (text and links) corroborate.
	corroboratedFloor = 0.125

	statusTransitionBonus = 1.0
	crossClassFactor      = 0.4
	sameClassFactor       = 0.15
	redirectChangedBonus  = 0.25
	rootPageFactor        = 0.25
)

// priorityFactor maps a change ratio through a logarithmic curve: small
// changes aren't zeroed out, large ones don't dominate linearly. At ratio 1
// the factor is exactly 1.
func priorityFactor(ratio float64) float64 {
	return math.Log(1 + (math.E-1)*ratio)
}

// Score combines the extracted signals of one version pair into a single
// review priority in [0, 1]. The order of terms matters: the status factor
// multiplies everything accumulated before it, the baseline floor and root
// page demotion apply last.
func Score(r *model.AnalysisResult) float64 {
	priority := 0.0
	baseline := 0.0

	linksChanged := r.Links.DiffCount > 0
	if linksChanged {
		baseline = math.Max(baseline, linksBaselineFloor)
		priority += linksWeight * priorityFactor(r.Links.DiffRatio)
	}
	if r.Links.RemovedSelfLink {
		priority += selfLinkBonus
	}

	if r.Text.KeyTermsChanged {
		priority += math.Min(keyTermCap, keyTermWeight*float64(r.Text.KeyTermsChangeCount))
	}

	textChanged := r.Text.DiffCount > 0
	if textChanged {
		priority += textWeight * priorityFactor(r.Text.PercentChanged)
	}
	if r.Text.DiffMaxLength > spanMinLength {
		span := r.Text.DiffMaxLength
		if span > spanMaxLength {
			span = spanMaxLength
		}
		priority += spanMaxBonus * float64(span-spanMinLength) / float64(spanMaxLength-spanMinLength)
	}

	if textChanged && linksChanged {
		baseline = math.Max(baseline, corroboratedFloor)
	}

	if r.StatusChanged {
		priority += statusTransitionBonus
	} else {
		priority *= statusFactor(r.StatusA, r.StatusB)
	}

	if r.Redirect.Changed {
		priority += redirectChangedBonus
	}

	priority = math.Max(priority, baseline)

	// Root pages are usually navigation hubs; churn there is routine.
	if r.RootPage {
		priority *= rootPageFactor
	}

	return math.Max(0, math.Min(1, priority))
}

// statusFactor dampens churn between already-broken states: two errors of
// the same class almost certainly mean the same broken page twice.
func statusFactor(a, b int) float64 {
	classA, classB := a/100, b/100
	if classA < 4 || classB < 4 {
		return 1.0
	}
	if classA == classB {
		return sameClassFactor
	}
	return crossClassFactor
}
