package output

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pagedrift/pagedrift/internal/model"
)

// dumpEntry mirrors PageResult with the error flattened to a string so the
// dump round-trips through JSON.
type dumpEntry struct {
	Page    *model.Page           `json:"page"`
	Start   *model.Version        `json:"start,omitempty"`
	End     *model.Version        `json:"end,omitempty"`
	Overall *model.AnalysisResult `json:"overall,omitempty"`
	Changes []model.ChangeSpan    `json:"changes,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// WriteResultsDump writes every result as a gzipped JSON array, sorted by
// page URL. The dump is the machine-readable counterpart of the task sheets
// and carries the full analysis detail the sheets summarize.
func WriteResultsDump(path string, results []*model.PageResult) error {
	entries := make([]dumpEntry, 0, len(results))
	for _, result := range results {
		entries = append(entries, dumpEntry{
			Page:    result.Page,
			Start:   result.Start,
			End:     result.End,
			Overall: result.Overall,
			Changes: result.Changes,
			Error:   errString(result.Err),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Page.URL < entries[j].Page.URL
	})

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results dump: %w", err)
	}

	zw := gzip.NewWriter(file)
	if err := json.NewEncoder(zw).Encode(entries); err != nil {
		zw.Close()
		file.Close()
		return fmt.Errorf("encoding results dump: %w", err)
	}
	if err := zw.Close(); err != nil {
		file.Close()
		return fmt.Errorf("flushing results dump: %w", err)
	}
	return file.Close()
}
