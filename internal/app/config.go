package app

import (
	"github.com/pagedrift/pagedrift/internal/analysis"
	"github.com/pagedrift/pagedrift/internal/readability"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

// Config is the umbrella runtime configuration: per-component configs plus
// the orchestration knobs that don't belong to any single component.
type Config struct {
	// StorePath is the SQLite version store location.
	StorePath string

	// Workers sizes the page-level worker pool. Zero means one worker per
	// CPU core; page analysis is dominated by parsing and diffing.
	Workers int

	// PageChunkSize is how many pages one store query fetches while
	// streaming a batch.
	PageChunkSize int

	// WebClientCfg configures raw body fetches.
	WebClientCfg webclient.Config

	// ReadabilityCfg configures the text-extraction service client.
	ReadabilityCfg readability.Config

	// AnalysisCfg configures scoring threshold and the readability tier.
	AnalysisCfg analysis.Config
}

func DefaultConfig() *Config {
	return &Config{
		StorePath:      "pagedrift.db",
		Workers:        0,
		PageChunkSize:  500,
		WebClientCfg:   webclient.DefaultConfig(),
		ReadabilityCfg: readability.DefaultConfig(),
		AnalysisCfg:    analysis.DefaultConfig(),
	}
}
