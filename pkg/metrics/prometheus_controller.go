package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iota-uz/identity-sync/pkg/server"
)

const defaultMetricsPath = "/internal/prometheus"

// PrometheusController exposes a gatherer in the text exposition format.
type PrometheusController struct {
	path     string
	gatherer prometheus.Gatherer
}

// NewPrometheusController serves gatherer on path. A nil gatherer means the
// process-wide default registry, which is where the loop and merge metrics live.
func NewPrometheusController(path string, gatherer prometheus.Gatherer) server.Controller {
	if path == "" {
		path = defaultMetricsPath
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &PrometheusController{path: path, gatherer: gatherer}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	h := promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	r.Handle(c.path, h).Methods(http.MethodGet)
}
