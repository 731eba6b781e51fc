package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tripsync/pkg/config"
	"tripsync/pkg/contracts"
	"tripsync/pkg/logger"
	"tripsync/pkg/metrics"

	"github.com/julienschmidt/httprouter"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		MetricsPath:     "/metrics",
		JWTSecret:       "test-secret",
		RequestTimeout:  time.Second,
		MaxRequestSize:  1024,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutdownTimeout: time.Second,
		Log:             logger.Discard(),
	}
}

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	health := contracts.RoutesFunc(func(r *httprouter.Router) {
		r.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.WriteHeader(http.StatusOK)
		})
	})
	trips := contracts.RoutesFunc(func(r *httprouter.Router) {
		r.GET("/trips/:id", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.WriteHeader(http.StatusOK)
		})
	})

	reg := metrics.NewRegistry()
	metrics.RegisterCoreMetrics(reg)

	a := NewApplication(testConfig())
	a.SetApp(health, trips, reg)
	return a
}

func TestApplication_Routing(t *testing.T) {
	a := newTestApplication(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "health bypasses auth", path: "/health", wantStatus: http.StatusOK},
		{name: "metrics bypasses auth", path: "/metrics", wantStatus: http.StatusOK},
		{name: "trip routes require a token", path: "/trips/1", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestApplication_RunStopsWorkersAndClosers(t *testing.T) {
	a := newTestApplication(t)

	workerStopped := make(chan struct{})
	a.AddWorker(func(ctx context.Context) error {
		<-ctx.Done()
		close(workerStopped)
		return nil
	})

	var order []string
	a.OnShutdown(func() { order = append(order, "audit") })
	a.OnShutdown(func() { order = append(order, "producer") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	select {
	case <-workerStopped:
	default:
		t.Error("worker did not stop")
	}
	if len(order) != 2 || order[0] != "audit" || order[1] != "producer" {
		t.Errorf("closers ran in order %v", order)
	}
}
