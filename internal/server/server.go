// Package server provides the HTTP server for the Bagwatch monitoring
// daemon: monitoring control, session and incident review, the live MJPEG
// view and a WebSocket event feed.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/bagwatch/internal/app"
	"github.com/ayusman/bagwatch/internal/server/api"
	"github.com/ayusman/bagwatch/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
}

// Server is the HTTP server for the Bagwatch daemon.
type Server struct {
	config Config
	mux    *http.ServeMux
	events *EventsHandler
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.App != nil {
		monitorHandler := api.NewMonitorHandler(s.config.App)
		s.mux.Handle("/api/monitor/", monitorHandler)
		s.mux.HandleFunc("/api/status", monitorHandler.Status)

		streamHandler := NewStreamHandler(s.config.App)
		s.mux.Handle("/api/stream", streamHandler)

		s.events = NewEventsHandler()
		s.config.App.Engine().AddListener(s.events.Publish)
		s.mux.Handle("/api/events", s.events)
	}

	if s.config.Store != nil {
		sessionHandler := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessionHandler)
		s.mux.Handle("/api/sessions/", sessionHandler)

		incidentHandler := api.NewIncidentHandler(s.config.Store)
		s.mux.Handle("/api/incidents", incidentHandler)
		s.mux.Handle("/api/incidents/", incidentHandler)

		// Alert acknowledgement lives under /api/alerts/{id}/ack; listing
		// alerts is an incident sub-resource.
		s.mux.Handle("/api/alerts/", api.NewAlertHandler(s.config.Store))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(s.start).String(),
		"monitoring": s.config.App != nil && s.config.App.IsMonitoring(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
