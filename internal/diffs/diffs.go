// Package diffs wraps the character-level diff engine and derives the
// measurements scoring needs: change ratios, longest changed span, change
// fingerprints and word-level reconstructions of character diffs.
package diffs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is a tri-state diff operation.
type Op int8

const (
	OpDeleted  Op = -1
	OpKept     Op = 0
	OpInserted Op = 1
)

// Segment is one (operation, text) pair of a character-level diff.
type Segment struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// TextDiff computes a character-level diff between two text blobs with
// semantic cleanup, so changed regions line up with human-meaningful chunks.
func TextDiff(a, b string) []Segment {
	dmp := diffmatchpatch.New()
	raw := dmp.DiffMain(a, b, true)
	raw = dmp.DiffCleanupSemantic(raw)

	segments := make([]Segment, 0, len(raw))
	for _, d := range raw {
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = OpDeleted
		case diffmatchpatch.DiffInsert:
			op = OpInserted
		case diffmatchpatch.DiffEqual:
			op = OpKept
		}
		segments = append(segments, Segment{Op: op, Text: d.Text})
	}
	return segments
}

// Changes returns only the changed segments of a diff.
func Changes(diff []Segment) []Segment {
	out := make([]Segment, 0, len(diff))
	for _, seg := range diff {
		if seg.Op != OpKept {
			out = append(out, seg)
		}
	}
	return out
}

// PercentChanged is the proportion of changed characters over total
// characters, 0 when the total is 0.
func PercentChanged(diff []Segment) float64 {
	var total, changed int
	for _, seg := range diff {
		total += len(seg.Text)
		if seg.Op != OpKept {
			changed += len(seg.Text)
		}
	}
	if total == 0 {
		return 0
	}
	return float64(changed) / float64(total)
}

// ChangedLength is the total length of changed text.
func ChangedLength(diff []Segment) int {
	length := 0
	for _, seg := range diff {
		if seg.Op != OpKept {
			length += len(seg.Text)
		}
	}
	return length
}

// LongestChange is the length of the single longest contiguous changed span.
// Adjacent changed segments (a delete followed by its replacing insert) count
// as one span.
func LongestChange(diff []Segment) int {
	longest, run := 0, 0
	for _, seg := range diff {
		if seg.Op == OpKept {
			run = 0
			continue
		}
		run += len(seg.Text)
		if run > longest {
			longest = run
		}
	}
	return longest
}

// HashChanges fingerprints the changed segments of a diff so identical
// changes appearing on different pages can be grouped together.
func HashChanges(changes []Segment) string {
	var data []byte
	if len(changes) > 0 {
		data, _ = json.Marshal(changes)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
