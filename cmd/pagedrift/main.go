// Command pagedrift runs a batch analysis over a version store and writes
// task sheets plus a results dump.
// Usage: pagedrift -after 2024-06-01 [-before 2024-06-10] [-url pattern] [-tags a,b]
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/pagedrift/pagedrift/internal/analysis"
	"github.com/pagedrift/pagedrift/internal/app"
	"github.com/pagedrift/pagedrift/internal/cli"
	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/output"
	"github.com/pagedrift/pagedrift/internal/store"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("parsing arguments: %v", err)
	}

	logger := logging.NewStderrLogger("pagedrift")

	cfg := app.DefaultConfig()
	cfg.StorePath = args.DBPath
	cfg.Workers = args.Workers
	cfg.AnalysisCfg.UseReadability = args.Readability
	if args.Threshold >= 0 {
		cfg.AnalysisCfg.Threshold = args.Threshold
	}
	if args.ReadabilityURL != "" {
		cfg.ReadabilityCfg.Endpoint = args.ReadabilityURL
	}

	st, err := store.NewSQLiteStore(cfg.StorePath, logger)
	if err != nil {
		log.Fatalf("opening version store: %v", err)
	}
	defer st.Close()

	wc, err := webclient.NewNetHTTPClient(cfg.WebClientCfg, logger, nil)
	if err != nil {
		log.Fatalf("creating web client: %v", err)
	}
	defer wc.Close()

	orch, err := app.NewOrchestrator(cfg, st, wc, logger)
	if err != nil {
		log.Fatalf("creating orchestrator: %v", err)
	}

	quit := app.NewQuitSignal(context.Background(), logger)
	defer quit.Stop()

	q := store.PageQuery{URLPattern: args.URLPattern, Tags: args.Tags}
	window := model.Window{After: args.After, Before: args.Before}

	var results []*model.PageResult
	failed := 0
	for result := range orch.AnalyzeBatch(quit.Abort(), quit.Drain(), q, window) {
		if result.Err != nil && !errors.Is(result.Err, analysis.ErrNotAnalyzable) {
			failed++
			logger.Error("page analysis failed",
				logging.Field{Key: "url", Value: result.Page.URL},
				logging.Field{Key: "error", Value: result.Err.Error()})
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return priorityOf(results[i]) > priorityOf(results[j])
	})

	outCfg := output.DefaultConfig()
	outCfg.Dir = args.OutDir
	outCfg.ViewURLBase = args.ViewURL
	if err := output.WriteTaskSheets(outCfg, results); err != nil {
		log.Fatalf("writing task sheets: %v", err)
	}
	if err := output.WriteResultsDump(filepath.Join(args.OutDir, "results.json.gz"), results); err != nil {
		log.Fatalf("writing results dump: %v", err)
	}

	logger.Info("batch finished",
		logging.Field{Key: "pages", Value: len(results)},
		logging.Field{Key: "failed", Value: failed},
		logging.Field{Key: "out", Value: args.OutDir})

	if failed > 0 {
		os.Exit(1)
	}
}

func priorityOf(r *model.PageResult) float64 {
	if r == nil || r.Overall == nil {
		return 0
	}
	return r.Overall.Priority
}
