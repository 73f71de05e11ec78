// ABOUTME: HTTP API exposing analyzer.FindPaths over uploaded heap dumps
// ABOUTME: chi.Router with POST /v1/analyze and GET /healthz, grounded on hazyhaar-chrc's gateway service

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/prateek/heaplens/analyzer"
	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump"
)

// Server exposes the retained-path analyzer over HTTP.
type Server struct {
	logger log.Logger
	router *chi.Mux
}

// New builds a Server with its routes registered. A nil logger disables
// request logging beyond chi's own middleware.
func New(logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{logger: logger, router: chi.NewRouter()}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Post("/v1/analyze", s.handleAnalyze)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// analyzeRequest is the multipart-free JSON request body: the dump embedded
// as a JSON fixture object, plus the analysis policy. Real HPROF uploads
// would arrive as a multipart form with a side-channel policy field; the
// JSON-embedded shape here matches the dump format heapdump.JSONStub and
// the root integration tests already use end to end.
type analyzeRequest struct {
	Dump                    json.RawMessage `json:"dump"`
	ComputeRetainedHeapSize bool            `json:"computeRetainedHeapSize"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	runID := uuid.New()
	logger := log.With(s.logger, "run_id", runID.String(), "component", "server")

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		level.Warn(logger).Log("msg", "decoding request", "err", err)
		http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
		return
	}

	snapshot, err := heapdump.Open(bytes.NewReader(req.Dump))
	if err != nil {
		level.Warn(logger).Log("msg", "parsing dump", "err", err)
		http.Error(w, fmt.Sprintf("parsing dump: %v", err), http.StatusBadRequest)
		return
	}

	fixture, ok := snapshot.(*heapdump.JSONSnapshot)
	if !ok {
		http.Error(w, "dump does not carry embedded roots/weak refs", http.StatusBadRequest)
		return
	}

	listener := analyzer.NewLoggingProgressListener(logger, runID)
	results, err := analyzer.FindPaths(
		r.Context(),
		snapshot,
		func(graph.Snapshot) ([]graph.Exclusion, error) { return fixture.Exclusions(), nil },
		fixture.WeakRefs(),
		fixture.Roots(),
		req.ComputeRetainedHeapSize,
		listener,
	)
	if err != nil {
		level.Error(logger).Log("msg", "analyzing dump", "err", err)
		http.Error(w, fmt.Sprintf("analyzing dump: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
