// Package web implements the JSON API the dashboard frontend talks
// to, plus a WebSocket feed of refresh and discovery events.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/homedeck/homedeck/internal/buildinfo"
	"github.com/homedeck/homedeck/internal/dashboard"
	"github.com/homedeck/homedeck/internal/discovery"
	"github.com/homedeck/homedeck/internal/events"
	"github.com/homedeck/homedeck/internal/overrides"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// RefreshFunc triggers a dashboard refresh against the current entity
// snapshot. The server calls it after override edits so clients see
// the effect immediately.
type RefreshFunc func()

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	svc      *dashboard.Service
	store    *overrides.Store
	detector *discovery.Detector
	bus      *events.Bus
	refresh  RefreshFunc
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader

	depStatus func() map[string]DependencyStatus
}

// DependencyStatus describes one external dependency in the health
// endpoint response.
type DependencyStatus struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	LastCheck string `json:"last_check,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// SetDependencyStatus installs the callback /healthz uses to report
// external dependency health. Optional.
func (s *Server) SetDependencyStatus(fn func() map[string]DependencyStatus) {
	s.depStatus = fn
}

// NewServer creates a new API server. refresh and bus may be nil.
func NewServer(address string, port int, svc *dashboard.Service, store *overrides.Store, detector *discovery.Detector, bus *events.Bus, refresh RefreshFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		svc:      svc,
		store:    store,
		detector: detector,
		bus:      bus,
		refresh:  refresh,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is a LAN service; the frontend is served
			// from the same origin or a kiosk wrapper.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the server's route table, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/rooms", s.handleRooms)
	mux.HandleFunc("GET /api/devices", s.handleDevices)

	mux.HandleFunc("GET /api/new-devices", s.handleNewDevices)
	mux.HandleFunc("POST /api/new-devices/dismiss", s.handleDismiss)

	mux.HandleFunc("GET /api/overrides", s.handleOverrideList)
	mux.HandleFunc("GET /api/overrides/{id}", s.handleOverrideGet)
	mux.HandleFunc("PUT /api/overrides/{id}", s.handleOverridePut)
	mux.HandleFunc("DELETE /api/overrides/{id}", s.handleOverrideDelete)

	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "homedeck",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "healthy"}
	if s.depStatus != nil {
		body["dependencies"] = s.depStatus()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, body, s.logger)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.svc.View(), s.logger)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.svc.View().Rooms, s.logger)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	view := s.svc.View()
	devices := make([]dashboard.DeviceView, 0)
	for _, room := range view.Rooms {
		devices = append(devices, room.Devices...)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, devices, s.logger)
}

func (s *Server) handleNewDevices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.svc.View().NewDevices, s.logger)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	// An empty or absent body dismisses everything.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		s.detector.DismissAll()
	} else {
		s.detector.Dismiss(req.DeviceID)
	}

	s.triggerRefresh()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOverrideList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.store.All(), s.logger)
}

func (s *Server) handleOverrideGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	o, ok := s.store.Get(id)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "no override for device")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, o, s.logger)
}

// overrideRequest mirrors overrides.Update: absent fields leave the
// stored value alone, present fields replace it.
type overrideRequest struct {
	Room         *string `json:"room"`
	FriendlyName *string `json:"friendlyName"`
	Hidden       *bool   `json:"hidden"`
}

func (s *Server) handleOverridePut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Room == nil && req.FriendlyName == nil && req.Hidden == nil {
		s.errorResponse(w, http.StatusBadRequest, "no fields to update")
		return
	}

	s.store.Set(id, overrides.Update{
		Room:         req.Room,
		FriendlyName: req.FriendlyName,
		Hidden:       req.Hidden,
	})

	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceOverrides,
		Kind:      events.KindOverrideSaved,
		Data:      map[string]any{"device_id": id},
	})
	s.triggerRefresh()

	w.Header().Set("Content-Type", "application/json")
	o, _ := s.store.Get(id)
	writeJSON(w, o, s.logger)
}

func (s *Server) handleOverrideDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.store.Remove(id)

	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceOverrides,
		Kind:      events.KindOverrideSaved,
		Data:      map[string]any{"device_id": id},
	})
	s.triggerRefresh()

	w.WriteHeader(http.StatusNoContent)
}

// handleWS upgrades the connection and forwards bus events to the
// client as JSON until either side disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(ch)

	// Drain client frames so pings and close messages are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) triggerRefresh() {
	if s.refresh != nil {
		s.refresh()
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
