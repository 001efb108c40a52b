// Package timeline narrows a page's raw capture history down to the version
// range worth analyzing: in-window candidates, a trustworthy baseline just
// before the window, and trimmed boundaries so the range is the tightest span
// that actually differs.
package timeline

import (
	"context"
	"errors"
	"time"

	"github.com/pagedrift/pagedrift/internal/capture"
	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/store"
)

const (
	// baselineProbeLimit bounds how many versions older than the boundary we
	// inspect when the boundary itself looks like a bad capture.
	baselineProbeLimit = 2

	// baselineLookback bounds how far back in time the probe may reach. An
	// older clean capture stops being a useful baseline once the gap grows
	// past this.
	baselineLookback = 30 * 24 * time.Hour
)

// Selector reads version history from the store and produces analyzable
// ranges.
type Selector struct {
	store     store.Store
	logger    logging.Logger
	chunkSize int
}

func NewSelector(s store.Store, logger logging.Logger) (*Selector, error) {
	if s == nil {
		return nil, errors.New("timeline: nil store")
	}
	if logger == nil {
		return nil, errors.New("timeline: nil logger")
	}
	return &Selector{
		store:     s,
		logger:    logger.With(logging.Field{Key: "component", Value: "timeline"}),
		chunkSize: 20,
	}, nil
}

// SelectVersions returns the trimmed, newest-first version range for pageID
// inside window. An empty result means the page has nothing analyzable in the
// window; that is an answer, not an error.
func (s *Selector) SelectVersions(ctx context.Context, pageID string, window model.Window) ([]model.Version, error) {
	cursor := store.NewVersionCursor(ctx, s.store, pageID, window.Before, s.chunkSize)
	selected, err := selectRange(cursor, window)
	if err != nil {
		return nil, err
	}
	return Trim(selected), nil
}

// selectRange walks history newest to oldest, partitioning in-window versions
// into good and questionable (bad-capture) buckets, and closes the range with
// a baseline version from just before the window.
func selectRange(cursor *store.VersionCursor, window model.Window) ([]model.Version, error) {
	var selected, questionable []model.Version
	for {
		v, ok, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			// History ran out before crossing the window boundary; there is
			// no baseline to anchor against.
			return selected, nil
		}

		if window.Contains(v.CaptureTime) {
			if capture.IsBadCapture(v) {
				questionable = append(questionable, *v)
			} else {
				selected = append(selected, *v)
			}
			continue
		}

		// Boundary crossing: v is the first version older than the window.
		if len(selected) == 0 {
			// No good captures in the window; questionable ones are better
			// than nothing.
			selected = questionable
			if len(selected) == 0 {
				return nil, nil
			}
		}

		baseline := *v
		if capture.IsBadCapture(&baseline) {
			for i := 0; i < baselineProbeLimit; i++ {
				candidate, ok, err := cursor.Next()
				if err != nil {
					return nil, err
				}
				if !ok {
					break
				}
				if baseline.CaptureTime.Sub(candidate.CaptureTime) > baselineLookback {
					break
				}
				if !capture.IsBadCapture(candidate) {
					baseline = *candidate
					break
				}
			}
		}
		return append(selected, baseline), nil
	}
}

// Trim drops versions from both ends of a newest-first range that are the
// same as their boundary neighbor: same body hash, or the same HTTP error
// class when the edge version is itself an error. Ranges shorter than 3 have
// no interior to trim. If the surviving boundary versions share a body hash
// the whole range collapses to empty, since nothing observable changed
// between them. Trim is idempotent.
func Trim(versions []model.Version) []model.Version {
	if len(versions) >= 3 {
		versions = trimStart(versions)
		versions = reversed(trimStart(reversed(versions)))
	}
	if len(versions) >= 2 {
		first := versions[0]
		last := versions[len(versions)-1]
		if first.BodyHash != "" && first.BodyHash == last.BodyHash {
			return nil
		}
	}
	return versions
}

// trimStart drops leading versions matching the edge, keeping the last
// matching one as the new boundary.
func trimStart(versions []model.Version) []model.Version {
	if len(versions) < 3 {
		return versions
	}
	edgeHash := versions[0].BodyHash
	edgeClass := capture.StatusErrorClass(versions[0].Status)

	start := 0
	for i := range versions {
		if edgeClass != 0 {
			if capture.StatusErrorClass(versions[i].Status) != edgeClass {
				break
			}
		} else if versions[i].BodyHash != edgeHash {
			break
		}
		start = i
	}
	return versions[start:]
}

func reversed(versions []model.Version) []model.Version {
	out := make([]model.Version, len(versions))
	for i, v := range versions {
		out[len(versions)-1-i] = v
	}
	return out
}
