package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/store"
	"github.com/pagedrift/pagedrift/internal/webclient"
)

// DummyStore holds pages and a shared version history per page.
type DummyStore struct {
	pages    []model.Page
	versions map[string][]model.Version
}

func (d *DummyStore) ListPages(ctx context.Context, q store.PageQuery) ([]model.Page, error) {
	out := d.pages
	if q.Offset > len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (d *DummyStore) CountPages(ctx context.Context, q store.PageQuery) (int, error) {
	return len(d.pages), nil
}

func (d *DummyStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	for i := range d.pages {
		if d.pages[i].ID == id {
			return &d.pages[i], nil
		}
	}
	return nil, store.ErrPageNotFound
}

func (d *DummyStore) ListVersions(ctx context.Context, q store.VersionQuery) ([]model.Version, error) {
	var out []model.Version
	for _, v := range d.versions[q.PageID] {
		if !q.Before.IsZero() && !v.CaptureTime.Before(q.Before) {
			continue
		}
		out = append(out, v)
	}
	if q.Offset > len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (d *DummyStore) Close() error { return nil }

// DummyWebClient serves one canned body per URL.
type DummyWebClient struct {
	bodies map[string]string
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	body, ok := d.bodies[req.URL]
	if !ok {
		return nil, fmt.Errorf("no canned body for %s", req.URL)
	}
	return &webclient.Response{Request: req, Body: []byte(body), StatusCode: 200}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

func at(day int) time.Time {
	return time.Date(2024, 6, day, 12, 0, 0, 0, time.UTC)
}

func testFixture(pageCount int) (*DummyStore, *DummyWebClient) {
	ds := &DummyStore{versions: map[string][]model.Version{}}
	wc := &DummyWebClient{bodies: map[string]string{}}
	status := 200

	for i := 0; i < pageCount; i++ {
		pageID := fmt.Sprintf("p%d", i)
		pageURL := fmt.Sprintf("https://example.gov/program-%d", i)
		ds.pages = append(ds.pages, model.Page{ID: pageID, URL: pageURL})

		newer := model.Version{
			ID: pageID + "-new", PageID: pageID, CaptureTime: at(10),
			Status: &status, BodyHash: pageID + "-h2", ContentLength: 100,
			MediaType: "text/html", CaptureURL: pageURL,
			BodyURL: "https://archive.test/" + pageID + "/new",
		}
		older := model.Version{
			ID: pageID + "-old", PageID: pageID, CaptureTime: at(1),
			Status: &status, BodyHash: pageID + "-h1", ContentLength: 100,
			MediaType: "text/html", CaptureURL: pageURL,
			BodyURL: "https://archive.test/" + pageID + "/old",
		}
		ds.versions[pageID] = []model.Version{newer, older}
		wc.bodies[older.BodyURL] = "<html><body><p>the original fossil fuels program text</p></body></html>"
		wc.bodies[newer.BodyURL] = "<html><body><p>this page was retired</p></body></html>"
	}
	return ds, wc
}

func newOrchestrator(t *testing.T, ds *DummyStore, wc *DummyWebClient) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.AnalysisCfg.UseReadability = false
	o, err := NewOrchestrator(cfg, ds, wc, logging.NewTestLogger(false))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func window() model.Window {
	return model.Window{After: at(2), Before: at(11)}
}

func TestAnalyzeBatchYieldsEveryPage(t *testing.T) {
	ds, wc := testFixture(5)
	o := newOrchestrator(t, ds, wc)

	ctx := context.Background()
	seen := map[string]bool{}
	for result := range o.AnalyzeBatch(ctx, ctx, store.PageQuery{}, window()) {
		if result.Err != nil {
			t.Errorf("page %s failed: %v", result.Page.ID, result.Err)
		}
		if result.Overall == nil || result.Overall.Priority <= 0 {
			t.Errorf("page %s should have scored a change", result.Page.ID)
		}
		seen[result.Page.ID] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected results for all 5 pages, got %d", len(seen))
	}
}

func TestAnalyzeBatchDrainStopsNewWork(t *testing.T) {
	ds, wc := testFixture(3)
	o := newOrchestrator(t, ds, wc)

	ctx := context.Background()
	drain, cancelDrain := context.WithCancel(ctx)
	cancelDrain() // drain before anything is handed out

	count := 0
	for range o.AnalyzeBatch(ctx, drain, store.PageQuery{}, window()) {
		count++
	}
	if count != 0 {
		t.Errorf("a pre-drained batch should hand out no pages, got %d results", count)
	}
}

func TestStartAnalysisJobCompletes(t *testing.T) {
	ds, wc := testFixture(3)
	o := newOrchestrator(t, ds, wc)

	job, err := o.StartAnalysisJob(context.Background(), store.PageQuery{}, window())
	if err != nil {
		t.Fatalf("StartAnalysisJob: %v", err)
	}

	var last JobEvent
	for ev := range job.Events {
		last = ev
	}
	if last.Type != JobEventResult || last.Status != JobDone {
		t.Fatalf("expected a final done event, got %+v", last)
	}

	done := o.GetJob(job.ID)
	if done.Status != JobDone {
		t.Errorf("job status should be done, got %s", done.Status)
	}
	if done.Processed != 3 || done.Total != 3 {
		t.Errorf("expected 3/3 pages processed, got %d/%d", done.Processed, done.Total)
	}
	if len(done.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(done.Results))
	}
	for i := 1; i < len(done.Results); i++ {
		if priorityOf(done.Results[i]) > priorityOf(done.Results[i-1]) {
			t.Error("results should be sorted by priority descending")
		}
	}
}

func TestGetJobReturnsSnapshot(t *testing.T) {
	ds, wc := testFixture(1)
	o := newOrchestrator(t, ds, wc)

	job, err := o.StartAnalysisJob(context.Background(), store.PageQuery{}, window())
	if err != nil {
		t.Fatalf("StartAnalysisJob: %v", err)
	}
	for range job.Events {
	}

	// The live record keeps being mutated by the job goroutine, so lookups
	// must hand out copies, never the shared pointer.
	got := o.GetJob(job.ID)
	if got == job {
		t.Fatal("GetJob should return a snapshot, not the live job")
	}
	got.Status = JobFailed
	if o.GetJob(job.ID).Status != JobDone {
		t.Error("mutating a snapshot should not affect the stored job")
	}

	jobs := o.ListJobs()
	if len(jobs) != 1 || jobs[0] == job {
		t.Error("ListJobs should return snapshots, not the live jobs")
	}
}

func TestCancelJob(t *testing.T) {
	ds, wc := testFixture(3)
	o := newOrchestrator(t, ds, wc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job, err := o.StartAnalysisJob(ctx, store.PageQuery{}, window())
	if err != nil {
		t.Fatalf("StartAnalysisJob: %v", err)
	}

	for range job.Events {
	}
	if got := o.GetJob(job.ID).Status; got != JobCanceled {
		t.Errorf("expected canceled job, got %s", got)
	}
}

func TestActivityMonitorStopIsIdempotent(t *testing.T) {
	m := StartActivityMonitor("op", time.Millisecond, logging.NewTestLogger(false))
	m.Stop()
	m.Stop()
}
