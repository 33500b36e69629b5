package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"
)

// Controller registers a group of routes.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

func NewHTTPServer(controllers ...Controller) *HTTPServer {
	return &HTTPServer{
		Controllers:             controllers,
		NotFoundHandler:         http.NotFoundHandler(),
		MethodNotAllowedHandler: http.HandlerFunc(methodNotAllowed),
	}
}

// HTTPServer serves the operational endpoints next to the ingestion loops.
type HTTPServer struct {
	Controllers             []Controller
	NotFoundHandler         http.Handler
	MethodNotAllowedHandler http.Handler

	mu     sync.Mutex
	srv    *http.Server
	closed bool
}

func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	for _, controller := range s.Controllers {
		controller.Register(r)
	}
	r.NotFoundHandler = s.NotFoundHandler
	r.MethodNotAllowedHandler = s.MethodNotAllowedHandler
	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return gziphandler.GzipHandler(s.Router())
}

// Start blocks serving socketAddress until Shutdown is called. Once Shutdown
// has been called Start returns nil without listening.
func (s *HTTPServer) Start(socketAddress string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              socketAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
