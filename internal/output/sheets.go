// Package output renders finished analyses for the review workflow: CSV task
// sheets grouped by site, and a gzipped JSON dump of the full results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pagedrift/pagedrift/internal/model"
)

type Config struct {
	// Dir is where sheets and dumps are written.
	Dir string

	// ViewURLBase, when set, is the review UI origin used to build
	// side-by-side comparison links.
	ViewURLBase string

	// TagPrefixes group results into one sheet per matching tag value.
	// Pages without a matching tag land on the "" sheet.
	TagPrefixes []string
}

func DefaultConfig() Config {
	return Config{
		Dir:         "task-sheets",
		TagPrefixes: []string{"domain:"},
	}
}

var sheetHeaders = []string{
	"Index",
	"Scope",
	"Output Date/Time",
	"Maintainers",
	"Sheet",
	"Page Title",
	"URL",
	"Side by Side",
	"Date Found - Latest",
	"Date Found - Base",
	"Diff Length",
	"Diff Hash",
	"Text Diff Length",
	"Text Diff Hash",
	"Priority",
	"Error",
	"Home page?",
	"Changed status?",
	"Status",
	"Readable?",
	"Key Terms",
	"% Changed Text",
	"Longest Text Change",
	"Links Diff Hash",
	"Links Changes",
	"% Changed Links",
	"Removed Link to Self",
	"Redirect Changed?",
	"Redirects - Base",
	"Redirects - Latest",
}

var unsafePathChars = regexp.MustCompile(`[:/]`)

// WriteTaskSheets groups results by tag and writes one CSV per group into
// cfg.Dir. Inability to create the destination is fatal to the run.
func WriteTaskSheets(cfg Config, results []*model.PageResult) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	now := time.Now().UTC()
	for name, group := range GroupByTags(results, cfg.TagPrefixes) {
		sheetName := name
		if sheetName == "" {
			sheetName = "untagged"
		}
		path := filepath.Join(cfg.Dir, unsafePathChars.ReplaceAllString(sheetName, "_")+".csv")
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating sheet %s: %w", path, err)
		}
		err = writeSheet(file, cfg, sheetName, group, now)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("writing sheet %s: %w", path, err)
		}
	}
	return nil
}

// GroupByTags splits results into sheet groups keyed by the value of the
// first page tag matching each prefix, joined with "--" when multiple
// prefixes are configured.
func GroupByTags(results []*model.PageResult, prefixes []string) map[string][]*model.PageResult {
	if len(prefixes) == 0 {
		prefixes = []string{"domain:"}
	}
	groups := map[string][]*model.PageResult{}
	for _, result := range results {
		var parts []string
		for _, prefix := range prefixes {
			for _, tag := range result.Page.Tags {
				if strings.HasPrefix(tag.Name, prefix) {
					parts = append(parts, strings.TrimPrefix(tag.Name, prefix))
					break
				}
			}
		}
		name := strings.Join(parts, "--")
		groups[name] = append(groups[name], result)
	}
	return groups
}

func writeSheet(w io.Writer, cfg Config, name string, results []*model.PageResult, now time.Time) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(sheetHeaders); err != nil {
		return err
	}

	separator := make([]string, len(sheetHeaders))
	for i := range separator {
		separator[i] = "---"
	}

	index := 0
	for _, result := range results {
		index++
		if err := writer.Write(resultRow(cfg, index, "OVERALL", name, result, result.Start, result.End, result.Overall, result.Err, now)); err != nil {
			return err
		}
		for _, change := range result.Changes {
			index++
			if err := writer.Write(resultRow(cfg, index, change.End.ID, name, result, change.Start, change.End, change.Analysis, nil, now)); err != nil {
				return err
			}
		}
		if err := writer.Write(separator); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func resultRow(cfg Config, index int, scope, sheet string, result *model.PageResult, start, end *model.Version, analysis *model.AnalysisResult, resultErr error, now time.Time) []string {
	row := []string{
		strconv.Itoa(index),
		scope,
		now.Format(time.RFC3339),
		strings.Join(result.Page.Maintainers, ", "),
		sheet,
		cleanString(result.Page.Title),
		result.Page.URL,
		viewURL(cfg, result.Page, start, end),
		formatTime(end),
		formatTime(start),
	}

	if analysis == nil {
		row = append(row, "", "", "", "", "?", errString(resultErr))
		for len(row) < len(sheetHeaders) {
			row = append(row, "")
		}
		return row
	}

	row = append(row,
		strconv.Itoa(analysis.Source.DiffLength),
		shortHash(analysis.Source.DiffHash),
		strconv.Itoa(analysis.Text.DiffLength),
		shortHash(analysis.Text.DiffHash),
		strconv.FormatFloat(analysis.Priority, 'f', 3, 64),
		errString(resultErr),
		boolString(analysis.RootPage),
		boolString(analysis.StatusChanged),
		strconv.Itoa(analysis.StatusB),
		boolString(analysis.Text.Readable),
		formatKeyTerms(analysis.Text.KeyTerms),
		strconv.FormatFloat(analysis.Text.PercentChanged, 'f', 3, 64),
		strconv.Itoa(analysis.Text.DiffMaxLength),
		shortHash(analysis.Links.DiffHash),
		strconv.Itoa(analysis.Links.DiffCount),
		strconv.FormatFloat(analysis.Links.DiffRatio, 'f', 3, 64),
		boolString(analysis.Links.RemovedSelfLink),
		boolString(analysis.Redirect.Changed),
		formatRedirects(analysis.Redirect.A),
		formatRedirects(analysis.Redirect.B),
	)
	return row
}

func viewURL(cfg Config, page *model.Page, start, end *model.Version) string {
	if cfg.ViewURLBase == "" || start == nil || end == nil {
		return ""
	}
	return fmt.Sprintf("%s/page/%s/%s..%s", strings.TrimRight(cfg.ViewURLBase, "/"), page.ID, start.ID, end.ID)
}

func formatTime(v *model.Version) string {
	if v == nil {
		return ""
	}
	return v.CaptureTime.UTC().Format(time.RFC3339)
}

func formatKeyTerms(keyTerms map[string]int) string {
	if len(keyTerms) == 0 {
		return ""
	}
	terms := make([]string, 0, len(keyTerms))
	for term := range keyTerms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	parts := make([]string, len(terms))
	for i, term := range terms {
		parts[i] = fmt.Sprintf("%s: %+d", term, keyTerms[term])
	}
	return strings.Join(parts, ", ")
}

func formatRedirects(info model.RedirectInfo) string {
	var parts []string
	parts = append(parts, info.Server...)
	if info.Client != "" {
		parts = append(parts, "meta-refresh: "+info.Client)
	}
	return strings.Join(parts, " -> ")
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func boolString(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var controlChars = regexp.MustCompile(`[\r\n\t]+`)

func cleanString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, " "))
}
