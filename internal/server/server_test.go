package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/jobscope/internal/server/handlers"
	"github.com/3leaps/jobscope/internal/server/middleware"
	"github.com/3leaps/jobscope/pkg/catalog"
	"github.com/3leaps/jobscope/pkg/jobflow"
	"github.com/3leaps/jobscope/pkg/jobmetrics"
	"github.com/3leaps/jobscope/pkg/jobstatus"
	"github.com/3leaps/jobscope/pkg/jobstore"
)

func newJobs(t *testing.T) *handlers.Jobs {
	t.Helper()
	ctx := context.Background()
	store, err := jobstore.Open(ctx, jobstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, jobstore.Migrate(ctx, store.DB()))
	require.NoError(t, jobstore.SeedSample(ctx, store.DB(), time.Now()))

	cat, err := catalog.Default()
	require.NoError(t, err)
	resolver := jobstatus.NewResolver(nil)
	builder, err := jobflow.NewBuilder(cat.Flows)
	require.NoError(t, err)

	jobs, err := handlers.NewJobs(handlers.JobsDeps{
		Store:      store,
		Resolver:   resolver,
		Aggregator: jobmetrics.New(jobmetrics.Config{}, resolver),
		Composer:   jobflow.NewComposer(builder, resolver),
		JobNames:   cat.JobNames(),
	})
	require.NoError(t, err)
	return jobs
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body middleware.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
	if body.Error.RequestID == "" {
		t.Fatalf("expected request id on error response")
	}
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8000},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port)
			assert.Equal(t, tt.port, srv.Port())
		})
	}
}

func TestServer_Handler(t *testing.T) {
	srv := New("127.0.0.1", 8000)
	assert.NotNil(t, srv.Handler())
	assert.Equal(t, "127.0.0.1:8000", srv.Addr())
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodPost, "/version", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	handlers.InitHealthManager("test")

	srv := New("127.0.0.1", 0, WithJobs(newJobs(t)))

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/", http.StatusOK},
		{"GET", "/health", http.StatusOK},
		{"GET", "/health/live", http.StatusOK},
		{"GET", "/health/ready", http.StatusOK},
		{"GET", "/health/startup", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/api/jobs", http.StatusOK},
		{"GET", "/api/jobs/stats", http.StatusOK},
		{"GET", "/api/jobs/recent", http.StatusOK},
		{"GET", "/api/jobs/long-running", http.StatusOK},
		{"GET", "/api/jobs/missing", http.StatusOK},
		{"GET", "/api/jobs/flows", http.StatusOK},
		{"GET", "/api/jobs/flows/VBCDF", http.StatusOK},
		{"GET", "/api/jobs/by-app/CLMS", http.StatusOK},
		{"GET", "/api/jobs/7615134444", http.StatusOK},
		{"GET", "/api/jobs/7615134444/status", http.StatusOK},
		{"POST", "/api/jobs/7615134444/trigger", http.StatusOK},
		{"POST", "/api/jobs/7615134444/alert", http.StatusOK},
		{"DELETE", "/api/jobs/7615134444", http.StatusMethodNotAllowed},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, ep.want, rec.Code, "endpoint %s %s should return %d", ep.method, ep.path, ep.want)
		})
	}
}

func TestServer_JobsAbsentWithoutCollaborators(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_VersionInfo(t *testing.T) {
	srv := New("127.0.0.1", 0, WithVersion(handlers.VersionInfo{Version: "1.4.0", Commit: "abc", BuildDate: "2026-10-01"}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var got handlers.VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "1.4.0", got.Version)
}

func TestServer_CORSAndRateLimit(t *testing.T) {
	srv := New("127.0.0.1", 0,
		WithJobs(newJobs(t)),
		WithCORS([]string{"https://*.example.com"}),
		WithRateLimit(0.001, 1),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health stays outside the limiter.
	handlers.InitHealthManager("test")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv := New("127.0.0.1", 0)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-done)
}
