package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/runclub/clubsync/internal/models"
)

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	collector.Handler().ServeHTTP(metricsRR, metricsReq)

	if metricsRR.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", metricsRR.Code)
	}

	body := metricsRR.Body.String()
	if !strings.Contains(body, `clubsync_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `clubsync_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorUsesRoutePattern(t *testing.T) {
	collector, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"1", "2", "3"} {
		rr := httptest.NewRecorder()
		collector.InstrumentHandler(mux).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
	}

	got := testutil.ToFloat64(collector.requestTotal.WithLabelValues("GET", "GET /api/users/{id}", "200"))
	if got != 3 {
		t.Fatalf("expected 3 requests under the route pattern, got %v", got)
	}
}

func TestCollectorReportsSyncRuns(t *testing.T) {
	collector, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	start := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	results := []models.SyncResult{
		{Trigger: models.SyncTriggerScheduled, Outcome: models.SyncOutcomeSuccess, PagesFetched: 2, Upserted: 150, Rejected: 10, StartedAt: start, FinishedAt: start.Add(2 * time.Second)},
		{Trigger: models.SyncTriggerScheduled, Outcome: models.SyncOutcomeFailed, PagesFetched: 1, Upserted: 100, StartedAt: start, FinishedAt: start.Add(time.Second)},
		{Trigger: models.SyncTriggerManual, Outcome: models.SyncOutcomeSuccess, PagesFetched: 1, Upserted: 3, StartedAt: start, FinishedAt: start.Add(time.Second)},
	}
	for _, res := range results {
		if err := collector.Report(context.Background(), res); err != nil {
			t.Fatalf("Report returned error: %v", err)
		}
	}

	if got := testutil.ToFloat64(collector.syncRuns.WithLabelValues("scheduled", "success")); got != 1 {
		t.Errorf("scheduled/success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.syncRuns.WithLabelValues("scheduled", "failed")); got != 1 {
		t.Errorf("scheduled/failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.upserted); got != 253 {
		t.Errorf("upserted = %v, want 253", got)
	}
	if got := testutil.ToFloat64(collector.rejected); got != 10 {
		t.Errorf("rejected = %v, want 10", got)
	}
	if got := testutil.ToFloat64(collector.pagesFetched); got != 4 {
		t.Errorf("pages = %v, want 4", got)
	}
	if got := testutil.CollectAndCount(collector.syncDuration); got != 2 {
		t.Errorf("expected duration series for 2 outcomes, got %d", got)
	}
}

func TestCollectorObservesSweep(t *testing.T) {
	collector, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	finished := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	collector.ObserveSweep(models.SweepReport{
		Failures:   2,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	})

	if got := testutil.ToFloat64(collector.sweepFailed); got != 2 {
		t.Errorf("failed users = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.sweepCompleted); got != float64(finished.Unix()) {
		t.Errorf("last completed = %v, want %d", got, finished.Unix())
	}
}

func TestCollectorWatchesDBPool(t *testing.T) {
	collector, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	// sql.Open does not dial; pool statistics are available immediately.
	db, err := sql.Open("postgres", "postgres://clubsync@127.0.0.1:1/clubsync?sslmode=disable")
	if err != nil {
		t.Fatalf("sql.Open returned error: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(3)

	if err := collector.WatchDB(db, "clubsync"); err != nil {
		t.Fatalf("WatchDB returned error: %v", err)
	}
	if err := collector.WatchDB(db, "clubsync"); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `go_sql_max_open_connections{db_name="clubsync"} 3`) {
		t.Errorf("pool statistics missing from scrape:\n%s", rec.Body.String())
	}
}
