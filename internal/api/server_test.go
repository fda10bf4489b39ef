package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"matchsync/internal/season"
	"matchsync/pkg/types"
)

// fakePassRunner optionally blocks until released so tests can observe
// a job mid-flight.
type fakePassRunner struct {
	block   chan struct{}
	reports []types.PassReport
}

func (r *fakePassRunner) RunLeaguePass(ctx context.Context, leagueID string) (types.PassReport, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return types.PassReport{LeagueID: leagueID}, ctx.Err()
		}
	}
	return types.PassReport{LeagueID: leagueID, RunID: "test-run", Updated: 1}, nil
}

func (r *fakePassRunner) LastReports() []types.PassReport {
	return r.reports
}

type fakeSeasonRunner struct{}

func (fakeSeasonRunner) SyncAll(ctx context.Context) []season.Report {
	return []season.Report{{LeagueID: "kleague1", Upserted: 3}}
}

func newTestServer(passes PassRunner) *Server {
	manager := NewJobManager(passes, fakeSeasonRunner{}, 2, context.Background())
	return NewServer(manager)
}

func TestHealthRoute(t *testing.T) {
	server := newTestServer(&fakePassRunner{})

	rr := doRequest(t, server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %s", got)
	}
}

func TestStartPassJob(t *testing.T) {
	server := newTestServer(&fakePassRunner{})

	rr := doRequest(t, server, http.MethodPost, "/api/sync/jobs",
		[]byte(`{"kind":"pass","league_id":"kleague1"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	var summary JobSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.JobID != "pass:kleague1" || summary.Kind != "pass" {
		t.Fatalf("unexpected job identity: %+v", summary)
	}

	waitForStatus(t, server, "pass:kleague1", JobStatusCompleted)

	rr = doRequest(t, server, http.MethodGet, "/api/sync/jobs/pass:kleague1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if summary.PassReport == nil || summary.PassReport.Updated != 1 {
		t.Fatalf("expected pass report on completed job, got %+v", summary)
	}
}

func TestStartPassJobFoldsLeagueCase(t *testing.T) {
	server := newTestServer(&fakePassRunner{})

	rr := doRequest(t, server, http.MethodPost, "/api/sync/jobs",
		[]byte(`{"kind":"pass","league_id":"KLeague1"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	var summary JobSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.JobID != "pass:kleague1" || summary.LeagueID != "kleague1" {
		t.Fatalf("expected lowercase job identity, got %+v", summary)
	}

	waitForStatus(t, server, "pass:kleague1", JobStatusCompleted)

	// Detail lookup works regardless of caller casing.
	rr = doRequest(t, server, http.MethodGet, "/api/sync/jobs/pass:KLEAGUE1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for mixed-case lookup, got %d", rr.Code)
	}
}

func TestStartJobValidation(t *testing.T) {
	server := newTestServer(&fakePassRunner{})

	rr := doRequest(t, server, http.MethodPost, "/api/sync/jobs", []byte(`{"kind":"reindex"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/sync/jobs", []byte(`{"kind":"pass"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for pass without league, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/sync/jobs", []byte(`{`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken json, got %d", rr.Code)
	}
}

func TestStartJobConflict(t *testing.T) {
	runner := &fakePassRunner{block: make(chan struct{})}
	server := newTestServer(runner)

	rr := doRequest(t, server, http.MethodPost, "/api/sync/jobs",
		[]byte(`{"kind":"pass","league_id":"kleague1"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/sync/jobs",
		[]byte(`{"kind":"pass","league_id":"kleague1"}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate running job, got %d", rr.Code)
	}

	close(runner.block)
	waitForStatus(t, server, "pass:kleague1", JobStatusCompleted)
}

func TestCancelRunningJob(t *testing.T) {
	runner := &fakePassRunner{block: make(chan struct{})}
	server := newTestServer(runner)

	rr := doRequest(t, server, http.MethodPost, "/api/sync/jobs",
		[]byte(`{"kind":"pass","league_id":"kleague1"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/sync/jobs/pass:kleague1/cancel", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	waitForStatus(t, server, "pass:kleague1", JobStatusCancelled)
}

func TestSeasonJob(t *testing.T) {
	server := newTestServer(&fakePassRunner{})

	rr := doRequest(t, server, http.MethodPost, "/api/sync/jobs", []byte(`{"kind":"season"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	waitForStatus(t, server, "season", JobStatusCompleted)

	rr = doRequest(t, server, http.MethodGet, "/api/sync/jobs/season", nil)
	var summary JobSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if len(summary.SeasonReports) != 1 || summary.SeasonReports[0].Upserted != 3 {
		t.Fatalf("expected season reports on completed job, got %+v", summary)
	}
}

func TestLeaguesRoute(t *testing.T) {
	runner := &fakePassRunner{reports: []types.PassReport{
		{LeagueID: "kleague1", Updated: 2},
		{LeagueID: "kbo", Unchanged: 5},
	}}
	server := newTestServer(runner)

	rr := doRequest(t, server, http.MethodGet, "/api/sync/leagues", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var reports []types.PassReport
	if err := json.Unmarshal(rr.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
}

func TestUnknownJobIs404(t *testing.T) {
	server := newTestServer(&fakePassRunner{})
	rr := doRequest(t, server, http.MethodGet, "/api/sync/jobs/pass:npb", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func waitForStatus(t *testing.T, server *Server, jobID string, want JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := server.manager.GetJob(jobID)
		if ok && job.Snapshot().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, ok := server.manager.GetJob(jobID)
	if !ok {
		t.Fatalf("job %s never appeared", jobID)
	}
	t.Fatalf("job %s never reached %s (last=%s)", jobID, want, job.Snapshot().Status)
}
