package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/identity-sync/pkg/ingestion"
	"github.com/iota-uz/identity-sync/pkg/server"
)

// LoopStatus is implemented by *ingestion.Loop.
type LoopStatus interface {
	Topic() string
	State() ingestion.State
	Progress() ingestion.ProgressSnapshot
}

type HealthController struct {
	live  ingestion.Liveness
	loops []LoopStatus
}

func NewHealthController(live ingestion.Liveness, loops ...LoopStatus) server.Controller {
	return &HealthController{live: live, loops: loops}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.health).Methods(http.MethodGet)
}

type loopReport struct {
	Topic         string `json:"topic"`
	State         string `json:"state"`
	Processed     int64  `json:"processed"`
	Failed        int64  `json:"failed"`
	Backoffs      int64  `json:"backoffs"`
	LastOffset    int64  `json:"lastOffset"`
	LastEventTime string `json:"lastEventTime,omitempty"`
}

type healthReport struct {
	Status string       `json:"status"`
	Loops  []loopReport `json:"loops"`
}

// health answers 200 while the process is alive and no loop has stopped, 503 otherwise.
func (c *HealthController) health(w http.ResponseWriter, _ *http.Request) {
	report := healthReport{Status: "ok", Loops: make([]loopReport, 0, len(c.loops))}
	if !c.live.Alive() {
		report.Status = "stopping"
	}
	for _, l := range c.loops {
		p := l.Progress()
		lr := loopReport{
			Topic:      l.Topic(),
			State:      l.State().String(),
			Processed:  p.Processed,
			Failed:     p.Failed,
			Backoffs:   p.Backoffs,
			LastOffset: p.LastOffset,
		}
		if !p.LastEventTime.IsZero() {
			lr.LastEventTime = p.LastEventTime.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		if l.State() == ingestion.StateStopped && report.Status == "ok" {
			report.Status = "degraded"
		}
		report.Loops = append(report.Loops, lr)
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
