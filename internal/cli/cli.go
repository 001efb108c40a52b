package cli

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// CLIArgs are the command-line arguments that control a single batch run.
type CLIArgs struct {
	// DBPath is the SQLite version store to analyze.
	DBPath string

	// URLPattern restricts the run to pages matching the pattern; "*" is a
	// wildcard. Empty means every page.
	URLPattern string

	// Tags restrict the run to pages carrying every listed tag.
	Tags []string

	// After/Before bound the capture-time window [After, Before).
	After  time.Time
	Before time.Time

	// Threshold is the minimum priority that triggers change localization.
	// Negative means "use config default".
	Threshold float64

	// Workers overrides the page worker pool size for this run; 0 means
	// "use config default".
	Workers int

	// OutDir is where task sheets and the results dump are written.
	OutDir string

	// Readability toggles the external text-extraction service.
	Readability bool

	// ReadabilityURL overrides the service endpoint when set.
	ReadabilityURL string

	// ViewURL, when set, is the review UI origin for side-by-side links.
	ViewURL string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("pagedrift", flag.ContinueOnError)
	var (
		dbPath         = fs.String("db", "pagedrift.db", "SQLite version store to analyze")
		urlPattern     = fs.String("url", "", "Only analyze pages matching this URL pattern (* is a wildcard)")
		tags           = fs.String("tags", "", "Only analyze pages carrying every listed tag (comma-separated)")
		after          = fs.String("after", "", "Start of the capture window, RFC 3339 or YYYY-MM-DD (required)")
		before         = fs.String("before", "", "End of the capture window; defaults to now")
		threshold      = fs.Float64("threshold", -1, "Minimum priority that triggers change localization (negative=use default)")
		workers        = fs.Int("workers", 0, "Page worker pool size for this run (0=use default)")
		outDir         = fs.String("out", "task-sheets", "Directory for task sheets and the results dump")
		readability    = fs.Bool("readability", true, "Use the readability service for text extraction")
		readabilityURL = fs.String("readability-url", "", "Readability service endpoint override")
		viewURL        = fs.String("view-url", "", "Review UI origin for side-by-side links")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(nil)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if strings.TrimSpace(*after) == "" {
		return nil, fmt.Errorf("missing required -after argument")
	}
	afterTime, err := parseDate(*after)
	if err != nil {
		return nil, fmt.Errorf("invalid -after: %w", err)
	}

	beforeTime := time.Now().UTC()
	if strings.TrimSpace(*before) != "" {
		beforeTime, err = parseDate(*before)
		if err != nil {
			return nil, fmt.Errorf("invalid -before: %w", err)
		}
	}
	if !afterTime.Before(beforeTime) {
		return nil, fmt.Errorf("-after must precede -before")
	}

	return &CLIArgs{
		DBPath:         *dbPath,
		URLPattern:     *urlPattern,
		Tags:           splitTags(*tags),
		After:          afterTime,
		Before:         beforeTime,
		Threshold:      *threshold,
		Workers:        *workers,
		OutDir:         *outDir,
		Readability:    *readability,
		ReadabilityURL: *readabilityURL,
		ViewURL:        *viewURL,
		RawArgs:        args,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
