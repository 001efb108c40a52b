// Package app wires the engine together and owns batch orchestration:
// a page-level worker pool, job bookkeeping for the API server, and
// cooperative two-stage cancellation.
package app

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagedrift/pagedrift/internal/analysis"
	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/readability"
	"github.com/pagedrift/pagedrift/internal/store"
	"github.com/pagedrift/pagedrift/internal/timeline"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	Processed int `json:"processed,omitempty"`
	Total     int `json:"total,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Job is one batch analysis run tracked for the API.
type Job struct {
	ID         string        `json:"id"`
	URLPattern string        `json:"url_pattern,omitempty"`
	Tags       []string      `json:"tags,omitempty"`
	Window     model.Window  `json:"window"`
	Status     JobStatus     `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	Processed  int           `json:"processed"`
	Total      int           `json:"total"`
	Events     chan JobEvent `json:"-"`

	// Results are the per-page outcomes, sorted by priority descending once
	// the job completes.
	Results []*model.PageResult `json:"results,omitempty"`

	// Failed counts pages whose analysis errored (excluding benign
	// not-analyzable skips).
	Failed int `json:"failed"`
}

// Orchestrator owns the shared components and runs batch analyses.
type Orchestrator struct {
	cfg      *Config
	store    store.Store
	analyzer *analysis.Analyzer
	logger   logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
}

// NewOrchestrator wires the analyzer on top of an opened store and web
// client. The caller keeps ownership of both and closes them after the
// orchestrator is done.
func NewOrchestrator(cfg *Config, st store.Store, wc webclient.WebClient, logger logging.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if st == nil {
		return nil, errors.New("app: nil store")
	}
	if wc == nil {
		return nil, errors.New("app: nil webclient")
	}
	if logger == nil {
		return nil, errors.New("app: nil logger")
	}

	selector, err := timeline.NewSelector(st, logger)
	if err != nil {
		return nil, err
	}

	var readable *readability.Client
	if cfg.AnalysisCfg.UseReadability {
		readable, err = readability.New(cfg.ReadabilityCfg, wc, logger)
		if err != nil {
			return nil, err
		}
	}

	analyzer, err := analysis.New(cfg.AnalysisCfg, selector, wc, readable, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		analyzer: analyzer,
		logger:   logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
	}, nil
}

// AnalyzeBatch analyzes every page matching q over window on a fixed-size
// worker pool and streams results as they complete, in no particular order.
// ctx aborts in-flight analyses; drain only stops new pages from being
// handed out, so the two can come from a QuitSignal for two-stage shutdown.
// Passing the same context for both is fine.
func (o *Orchestrator) AnalyzeBatch(ctx, drain context.Context, q store.PageQuery, window model.Window) <-chan *model.PageResult {
	workers := o.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	pages := make(chan model.Page)
	results := make(chan *model.PageResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range pages {
				monitor := StartActivityMonitor("analyze "+page.URL, 30*time.Second, o.logger)
				result := o.analyzer.AnalyzePage(ctx, &page, window)
				monitor.Stop()
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(pages)
		err := store.EachPage(drain, o.store, q, o.cfg.PageChunkSize, func(p model.Page) error {
			select {
			case pages <- p:
				return nil
			case <-drain.Done():
				return drain.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("streaming pages failed", logging.Field{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (o *Orchestrator) ensureJobMaps() {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobs == nil {
		o.jobs = make(map[string]*Job)
	}
	if o.jobCancels == nil {
		o.jobCancels = make(map[string]context.CancelFunc)
	}
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if the buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	if j, ok := o.jobs[jobID]; ok {
		j.Status = status
		if errMsg != "" {
			j.Error = errMsg
		}
	}
	o.jobsMu.Unlock()
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: errMsg})
}

// StartAnalysisJob launches a tracked batch analysis. The returned Job's
// Events channel carries status and progress until the job finishes.
func (o *Orchestrator) StartAnalysisJob(ctx context.Context, q store.PageQuery, window model.Window) (*Job, error) {
	o.ensureJobMaps()

	jobID := uuid.New().String()
	job := &Job{
		ID:         jobID,
		URLPattern: q.URLPattern,
		Tags:       q.Tags,
		Window:     window,
		Status:     JobPending,
		StartedAt:  time.Now().UTC(),
		Events:     make(chan JobEvent, 16),
	}

	o.jobsMu.Lock()
	o.jobs[jobID] = job
	o.jobsMu.Unlock()

	jobCtx, cancel := context.WithCancel(ctx)
	o.jobsMu.Lock()
	o.jobCancels[jobID] = cancel
	o.jobsMu.Unlock()

	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})

	go func() {
		defer func() {
			o.jobsMu.Lock()
			j := o.jobs[jobID]
			if j != nil {
				j.EndedAt = time.Now().UTC()
			}
			delete(o.jobCancels, jobID)
			o.jobsMu.Unlock()
			if j != nil && j.Events != nil {
				close(j.Events)
			}
		}()

		o.setStatus(jobID, JobRunning, "")

		total, err := o.store.CountPages(jobCtx, q)
		if err == nil {
			o.jobsMu.Lock()
			job.Total = total
			o.jobsMu.Unlock()
		}

		var results []*model.PageResult
		failed := 0
		for result := range o.AnalyzeBatch(jobCtx, jobCtx, q, window) {
			if result.Err != nil && !errors.Is(result.Err, analysis.ErrNotAnalyzable) {
				failed++
			}
			results = append(results, result)
			o.jobsMu.Lock()
			job.Processed = len(results)
			job.Failed = failed
			processed := job.Processed
			o.jobsMu.Unlock()
			o.emitJobEvent(jobID, JobEvent{
				JobID:     jobID,
				Type:      JobEventProgress,
				Processed: processed,
				Total:     total,
			})
		}

		// Highest priority first; a stable order for consumers.
		sort.SliceStable(results, func(i, j int) bool {
			return priorityOf(results[i]) > priorityOf(results[j])
		})

		select {
		case <-jobCtx.Done():
			o.setStatus(jobID, JobCanceled, jobCtx.Err().Error())
		default:
			o.jobsMu.Lock()
			job.Results = results
			o.jobsMu.Unlock()
			o.setStatus(jobID, JobDone, "")
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Status: JobDone})
		}
	}()

	return job, nil
}

func priorityOf(r *model.PageResult) float64 {
	if r == nil || r.Overall == nil {
		return 0
	}
	return r.Overall.Priority
}

func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetJob returns a snapshot of the job, or nil when unknown. Callers get a
// copy because the job goroutine keeps mutating the live record under the
// mutex; the Events channel is shared so consumers can still stream from it.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	return snapshotJob(o.jobs[jobID])
}

// ListJobs returns snapshots of every job, oldest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, snapshotJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func snapshotJob(j *Job) *Job {
	if j == nil {
		return nil
	}
	copied := *j
	return &copied
}

// ListPages exposes the store's page listing for the API.
func (o *Orchestrator) ListPages(ctx context.Context, q store.PageQuery) ([]model.Page, error) {
	return o.store.ListPages(ctx, q)
}

// GetPage exposes the store's page lookup for the API.
func (o *Orchestrator) GetPage(ctx context.Context, id string) (*model.Page, error) {
	return o.store.GetPage(ctx, id)
}
