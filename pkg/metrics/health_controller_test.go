package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/identity-sync/pkg/ingestion"
	"github.com/iota-uz/identity-sync/pkg/server"
)

type stubLoop struct {
	topic string
	state ingestion.State
	prog  ingestion.ProgressSnapshot
}

func (l stubLoop) Topic() string                        { return l.topic }
func (l stubLoop) State() ingestion.State               { return l.state }
func (l stubLoop) Progress() ingestion.ProgressSnapshot { return l.prog }

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, healthReport) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var report healthReport
	if rec.Code == http.StatusOK || rec.Code == http.StatusServiceUnavailable {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	}
	return rec, report
}

func TestHealthController(t *testing.T) {
	live := ingestion.NewFlag(true)
	loop := stubLoop{
		topic: "person.identity-changed.v1",
		state: ingestion.StatePolling,
		prog:  ingestion.ProgressSnapshot{Processed: 3, LastOffset: 2, LastEventTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	h := server.NewHTTPServer(NewHealthController(live, loop)).Router()

	rec, report := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", report.Status)
	require.Len(t, report.Loops, 1)
	require.Equal(t, int64(3), report.Loops[0].Processed)
	require.Equal(t, "2024-05-01T12:00:00Z", report.Loops[0].LastEventTime)

	live.Set(false)
	rec, report = get(t, h, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "stopping", report.Status)
}

func TestHealthController_StoppedLoopIsDegraded(t *testing.T) {
	h := server.NewHTTPServer(NewHealthController(ingestion.NewFlag(true), stubLoop{topic: "t", state: ingestion.StateStopped})).Router()

	rec, report := get(t, h, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "degraded", report.Status)
}

func TestPrometheusController(t *testing.T) {
	reg := prometheus.NewRegistry()
	processed := prometheus.NewCounter(prometheus.CounterOpts{Name: "identity_test_processed_total", Help: "test"})
	reg.MustRegister(processed)
	processed.Add(3)

	h := server.NewHTTPServer(NewPrometheusController("", reg)).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/prometheus", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "identity_test_processed_total 3")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/prometheus", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
