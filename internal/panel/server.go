// Package panel serves the dashboard JSON API over net/http.
package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/macta/internal/analysis"
	"github.com/rendis/macta/internal/scheduler"
	"github.com/rendis/macta/internal/store"
)

// PanelDeps holds the dependencies for the API server.
type PanelDeps struct {
	Service   *analysis.Service
	Scheduler *scheduler.Scheduler
	Store     store.Store
	Logger    *slog.Logger
}

// PanelServer serves the dashboard API.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the API routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Simulations.
	mux.HandleFunc("POST /api/simulations", s.handleSimulate)
	mux.HandleFunc("GET /api/simulations", s.handleListRuns)
	mux.HandleFunc("GET /api/simulations/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/simulations/{id}/events", s.handleRunEvents)

	// Activity log.
	mux.HandleFunc("GET /api/events", s.handleListEvents)

	// Process models.
	mux.HandleFunc("GET /api/processes", s.handleListProcesses)
	mux.HandleFunc("POST /api/processes", s.handleImportProcess)
	mux.HandleFunc("GET /api/processes/{id}", s.handleGetProcess)
	mux.HandleFunc("DELETE /api/processes/{id}", s.handleDeleteProcess)
	mux.HandleFunc("GET /api/processes/{id}/documentation", s.handleDocumentation)
	mux.HandleFunc("GET /api/processes/{id}/diagram", s.handleDiagram)
	mux.HandleFunc("PUT /api/processes/{id}/resources", s.handleSetResources)

	// Simulation configs.
	mux.HandleFunc("GET /api/configs", s.handleListConfigs)
	mux.HandleFunc("PUT /api/configs/{name}", s.handleSaveConfig)

	// Lint.
	mux.HandleFunc("POST /api/lint", s.handleLint)

	// Schedules.
	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", s.handleCreateSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)

	return s.logRequests(mux)
}

// logRequests logs every request at debug level.
func (s *PanelServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.deps.Logger.DebugContext(r.Context(), "api request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r)
	})
}
