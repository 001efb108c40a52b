package diffs

import (
	"regexp"
	"strings"
)

// WordToken is one normalized word of a word-level diff reconstruction.
type WordToken struct {
	Op   Op
	Word string
}

var (
	wordBoundary  = regexp.MustCompile(`[\r\n\s.;:!?,<>{}\[\]\-–—\|\\/]+`)
	ignorableRune = regexp.MustCompile(`['‘’"“”]`)
)

// WordDiffs converts a character-by-character diff into two word-by-word
// diffs: one tracking deletions against the old text, one tracking insertions
// against the new text. Words are normalized: lower-cased, quote punctuation
// removed. A word counts as changed if any of its characters carried a
// non-zero operation.
func WordDiffs(diff []Segment) (deletions, insertions []WordToken) {
	ins := &wordDiffBuilder{changeType: OpInserted}
	del := &wordDiffBuilder{changeType: OpDeleted}

	for _, seg := range diff {
		if seg.Op == OpKept || seg.Op == OpInserted {
			ins.addText(seg.Text, seg.Op != OpKept)
		}
		if seg.Op == OpKept || seg.Op == OpDeleted {
			del.addText(seg.Text, seg.Op != OpKept)
		}
	}
	ins.addText("", false)
	del.addText("", false)

	return del.tokens, ins.tokens
}

type wordDiffBuilder struct {
	tokens     []WordToken
	buffer     strings.Builder
	hasChange  bool
	changeType Op
}

func (w *wordDiffBuilder) addText(text string, isChange bool) {
	remaining := ignorableRune.ReplaceAllString(text, "")
	for {
		loc := wordBoundary.FindStringIndex(remaining)
		if loc == nil {
			break
		}
		if loc[0] > 0 {
			w.hasChange = isChange || w.hasChange
			w.buffer.WriteString(remaining[:loc[0]])
		}
		w.completeWord()
		remaining = remaining[loc[1]:]
	}

	if remaining != "" {
		w.hasChange = isChange || w.hasChange
		w.buffer.WriteString(remaining)
	}

	// An empty add flushes whatever is buffered.
	if text == "" {
		w.completeWord()
	}
}

func (w *wordDiffBuilder) completeWord() {
	word := strings.ToLower(w.buffer.String())
	op := OpKept
	if w.hasChange {
		op = w.changeType
	}
	if word != "" {
		w.tokens = append(w.tokens, WordToken{Op: op, Word: word})
	}
	w.hasChange = false
	w.buffer.Reset()
}

// ChangedNgrams scans a word diff for n-grams of the given size in which at
// least one constituent token changed. Stopwords break n-gram windows the
// same way sentence boundaries would.
func ChangedNgrams(tokens []WordToken, size int) []string {
	var out []string
	wordBuffer := make([]string, 0, size)
	changeBuffer := make([]Op, 0, size)

	for _, tok := range tokens {
		if IsStopword(tok.Word) {
			wordBuffer = wordBuffer[:0]
			changeBuffer = changeBuffer[:0]
			continue
		}
		wordBuffer = append(wordBuffer, tok.Word)
		changeBuffer = append(changeBuffer, tok.Op)
		if len(wordBuffer) == size {
			anyChanged := false
			for _, op := range changeBuffer {
				if op != OpKept {
					anyChanged = true
					break
				}
			}
			if anyChanged {
				out = append(out, strings.Join(wordBuffer, " "))
			}
			wordBuffer = wordBuffer[1:]
			changeBuffer = changeBuffer[1:]
		}
	}
	return out
}
