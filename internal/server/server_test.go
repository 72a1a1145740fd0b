package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/runclub/clubsync/internal/config"
	"github.com/runclub/clubsync/internal/logging"
)

func TestAccessLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(config.LoggingConfig{Level: slog.LevelInfo, Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	handler := AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/activities", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	out := buf.String()
	if !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"path":"/api/activities"`) {
		t.Errorf("access log missing fields: %s", out)
	}
}

func TestAccessLogQuietsHealthChecks(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewWithWriter(config.LoggingConfig{Level: slog.LevelInfo, Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}

	handler := AccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if buf.Len() != 0 {
		t.Errorf("health check logged at info: %s", buf.String())
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv := New(config.ServerConfig{Port: "0", ShutdownTimeout: time.Second}, logging.Discard(), http.NotFoundHandler())
	if srv.Addr() != ":0" {
		t.Errorf("Addr() = %q, want :0", srv.Addr())
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() after Shutdown error = %v", err)
	}
}
