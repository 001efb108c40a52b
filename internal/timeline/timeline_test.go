package timeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pagedrift/pagedrift/internal/logging"
	"github.com/pagedrift/pagedrift/internal/model"
	"github.com/pagedrift/pagedrift/internal/store"
)

// DummyStore serves a fixed newest-first version history.
type DummyStore struct {
	versions []model.Version
}

func (d *DummyStore) ListPages(ctx context.Context, q store.PageQuery) ([]model.Page, error) {
	return nil, nil
}

func (d *DummyStore) CountPages(ctx context.Context, q store.PageQuery) (int, error) {
	return 0, nil
}

func (d *DummyStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	return nil, store.ErrPageNotFound
}

func (d *DummyStore) ListVersions(ctx context.Context, q store.VersionQuery) ([]model.Version, error) {
	var out []model.Version
	for _, v := range d.versions {
		if !q.Before.IsZero() && !v.CaptureTime.Before(q.Before) {
			continue
		}
		if !q.After.IsZero() && v.CaptureTime.Before(q.After) {
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

func at(day int) time.Time {
	return time.Date(2024, 6, day, 12, 0, 0, 0, time.UTC)
}

func goodVersion(day int, hash string) model.Version {
	status := 200
	return model.Version{
		ID:            fmt.Sprintf("v%d", day),
		CaptureTime:   at(day),
		Status:        &status,
		BodyHash:      hash,
		ContentLength: 5000,
	}
}

func errorVersion(day int, hash string, status int) model.Version {
	v := goodVersion(day, hash)
	*v.Status = status
	return v
}

// badVersion carries an AWS load balancer fingerprint, so the bad-capture
// classifier flags it.
func badVersion(day int, hash string) model.Version {
	status := 503
	return model.Version{
		ID:            fmt.Sprintf("bad%d", day),
		CaptureTime:   at(day),
		Status:        &status,
		BodyHash:      hash,
		ContentLength: 100,
		Headers: map[string]string{
			"Server":       "awselb/2.0",
			"Content-Type": "text/html",
		},
	}
}

func newSelector(t *testing.T, versions ...model.Version) *Selector {
	t.Helper()
	s, err := NewSelector(&DummyStore{versions: versions}, logging.NewTestLogger(false))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	return s
}

func hashes(versions []model.Version) []string {
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.BodyHash
	}
	return out
}

func window(afterDay, beforeDay int) model.Window {
	return model.Window{After: at(afterDay), Before: at(beforeDay)}
}

func TestSelectVersionsAppendsBaseline(t *testing.T) {
	s := newSelector(t,
		goodVersion(20, "h3"),
		goodVersion(15, "h2"),
		goodVersion(5, "h1"), // older than the window: the baseline
	)

	got, err := s.SelectVersions(context.Background(), "p1", window(10, 25))
	if err != nil {
		t.Fatalf("SelectVersions: %v", err)
	}
	want := []string{"h3", "h2", "h1"}
	if fmt.Sprint(hashes(got)) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", hashes(got), want)
	}
}

func TestSelectVersionsBuffersQuestionable(t *testing.T) {
	s := newSelector(t,
		goodVersion(20, "h3"),
		badVersion(18, "blocked"),
		goodVersion(15, "h2"),
		goodVersion(5, "h1"),
	)

	got, err := s.SelectVersions(context.Background(), "p1", window(10, 25))
	if err != nil {
		t.Fatalf("SelectVersions: %v", err)
	}
	for _, v := range got {
		if v.BodyHash == "blocked" {
			t.Error("questionable versions should be dropped when good ones exist")
		}
	}
}

func TestSelectVersionsQuestionableFallback(t *testing.T) {
	s := newSelector(t,
		badVersion(20, "b2"),
		badVersion(15, "b1"),
		goodVersion(5, "h0"),
	)

	got, err := s.SelectVersions(context.Background(), "p1", window(10, 25))
	if err != nil {
		t.Fatalf("SelectVersions: %v", err)
	}
	// Both questionable versions are 5xx, so trimming keeps only the older
	// one of the pair as the changed edge.
	want := []string{"b1", "h0"}
	if fmt.Sprint(hashes(got)) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", hashes(got), want)
	}
}

func TestSelectVersionsEmptyWindow(t *testing.T) {
	s := newSelector(t, goodVersion(5, "h0"))

	got, err := s.SelectVersions(context.Background(), "p1", window(10, 25))
	if err != nil {
		t.Fatalf("SelectVersions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty range, got %v", hashes(got))
	}
}

func TestSelectVersionsProbesForCleanBaseline(t *testing.T) {
	s := newSelector(t,
		goodVersion(20, "h3"),
		goodVersion(15, "h2"),
		badVersion(8, "boundary"), // bad boundary: probe past it
		goodVersion(6, "clean"),
	)

	got, err := s.SelectVersions(context.Background(), "p1", window(10, 25))
	if err != nil {
		t.Fatalf("SelectVersions: %v", err)
	}
	if len(got) == 0 || got[len(got)-1].BodyHash != "clean" {
		t.Errorf("baseline should be the probed clean version, got %v", hashes(got))
	}
}

func TestSelectVersionsProbeRespectsLookback(t *testing.T) {
	bad := badVersion(8, "boundary")
	old := goodVersion(6, "too-old")
	old.CaptureTime = bad.CaptureTime.Add(-40 * 24 * time.Hour)

	s := newSelector(t,
		goodVersion(20, "h3"),
		goodVersion(15, "h2"),
		bad,
		old,
	)

	got, err := s.SelectVersions(context.Background(), "p1", window(10, 25))
	if err != nil {
		t.Fatalf("SelectVersions: %v", err)
	}
	if len(got) == 0 || got[len(got)-1].BodyHash != "boundary" {
		t.Errorf("probe should give up past the lookback limit, got %v", hashes(got))
	}
}

func TestTrimDropsMatchingEdges(t *testing.T) {
	got := Trim([]model.Version{
		goodVersion(25, "a"),
		goodVersion(20, "a"),
		goodVersion(15, "b"),
		goodVersion(10, "c"),
		goodVersion(5, "c"),
	})
	want := []string{"a", "b", "c"}
	if fmt.Sprint(hashes(got)) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", hashes(got), want)
	}
}

func TestTrimErrorClassEdges(t *testing.T) {
	// The newest edge is an error, so its run is matched by status class even
	// though the hashes differ.
	got := Trim([]model.Version{
		errorVersion(25, "e1", 404),
		errorVersion(20, "e2", 410),
		goodVersion(15, "b"),
		goodVersion(5, "c"),
	})
	want := []string{"e2", "b", "c"}
	if fmt.Sprint(hashes(got)) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", hashes(got), want)
	}
}

func TestTrimShortSequencesUntouched(t *testing.T) {
	in := []model.Version{goodVersion(10, "a"), goodVersion(5, "b")}
	got := Trim(in)
	if len(got) != 2 {
		t.Errorf("sequences shorter than 3 must not be trimmed, got %v", hashes(got))
	}
}

func TestTrimCollapsesUnchangedBoundaries(t *testing.T) {
	got := Trim([]model.Version{
		goodVersion(20, "a"),
		goodVersion(15, "b"),
		goodVersion(10, "a"),
	})
	if len(got) != 0 {
		t.Errorf("a range whose boundaries share a hash has no visible change, got %v", hashes(got))
	}
}

func TestTrimIdempotent(t *testing.T) {
	in := []model.Version{
		goodVersion(25, "a"),
		goodVersion(20, "a"),
		goodVersion(15, "b"),
		goodVersion(10, "c"),
		goodVersion(5, "c"),
	}
	once := Trim(in)
	twice := Trim(once)
	if fmt.Sprint(hashes(once)) != fmt.Sprint(hashes(twice)) {
		t.Errorf("Trim must be idempotent: %v then %v", hashes(once), hashes(twice))
	}
}
