// Package diagnostics exposes a small local, read-only HTTP status
// endpoint over the client's connection/engine state, for operators
// running a long-lived client as a service. It is never part of the
// deepstream wire protocol itself.
package diagnostics

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// StateProvider supplies the live values the status endpoint reports.
// Implemented by the root client façade.
type StateProvider interface {
	ConnectionState() string
	ClientID() string
	Uptime() float64
}

// Status is the JSON body of GET /status.
type Status struct {
	ConnectionState string  `json:"connectionState"`
	ClientID        string  `json:"clientId"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
}

// Server is a local read-only diagnostics HTTP server.
type Server struct {
	provider StateProvider
	handler  http.Handler
}

// New builds a Server. allowedOrigins configures rs/cors for browser-based
// dashboards; an empty slice disables cross-origin access entirely.
func New(provider StateProvider, allowedOrigins []string) *Server {
	s := &Server{provider: provider}

	router := httprouter.New()
	router.GET("/status", s.handleStatus)
	router.GET("/healthz", s.handleHealthz)

	opts := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}
	if len(allowedOrigins) == 0 {
		// rs/cors treats an empty AllowedOrigins as "allow all".
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	c := cors.New(opts)
	s.handler = c.Handler(router)
	return s
}

// ListenAndServe starts the server on addr; it blocks until the server
// stops or errors.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.handler)
}

// Handler exposes the composed http.Handler for embedding into another
// server (e.g. under httptest in tests).
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := Status{
		ConnectionState: s.provider.ConnectionState(),
		ClientID:        s.provider.ClientID(),
		UptimeSeconds:   s.provider.Uptime(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
