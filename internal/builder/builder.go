// Package builder is the composition root: it registers game plug-in
// constructors, spawns the dispatch runtime, and returns the http.Handler
// that serves it, mirroring the Builder::register/spawn pair of the
// predecessor this design is based on.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gameforge/internal/adminlog"
	"gameforge/internal/identity"
	"gameforge/internal/registry"
	"gameforge/internal/runtime"
	"gameforge/internal/transport"
	"gameforge/pkg/config"
)

// Builder accumulates registered game types before the runtime starts.
type Builder struct {
	registry *registry.Registry
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{registry: registry.New()}
}

// Register adds a game type under name. ctor must return a new, independent
// plugin.Game each time it is called.
func (b *Builder) Register(name string, ctor registry.Constructor) *Builder {
	b.registry.Register(name, ctor)
	return b
}

// Server is a spawned dispatch runtime plus the HTTP handler that fronts
// it. Call Run to drive the runtime's event loop, and mount Handler on an
// http.Server to accept connections.
type Server struct {
	rt      *runtime.Runtime
	handler http.Handler
	log     *zap.Logger
}

// version is the server's release identifier, reported on /version.
const version = "0.1.0"

// Spawn builds the dispatch runtime and the HTTP handler around it. Call
// Run(ctx) to start the runtime's event loop before serving traffic.
func (b *Builder) Spawn(cfg *config.Config, log *zap.Logger, logBuffer *adminlog.Buffer) (*Server, error) {
	auth, err := identity.New()
	if err != nil {
		return nil, fmt.Errorf("builder: %w", err)
	}

	runtimeLog := log.Named("runtime").Sugar()
	rt := runtime.New(b.registry, auth, runtimeLog, cfg.Lobby.EventChannelCapacity)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/version", handleVersion).Methods(http.MethodGet)
	router.HandleFunc("/admin/logs", handleAdminLogs(logBuffer)).Methods(http.MethodGet)
	router.HandleFunc("/ws", handleWebSocket(rt, log.Named("transport").Sugar(), cfg.WebSocket))

	return &Server{rt: rt, handler: router, log: log}, nil
}

// Run drives the dispatch runtime's event loop until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.rt.Run(ctx)
}

// Handler returns the HTTP handler serving /ws, /healthz, /version and
// /admin/logs.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func handleWebSocket(rt *runtime.Runtime, log *zap.SugaredLogger, wsCfg config.WebSocketConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := transport.Serve(r.Context(), rt, w, r, log, wsCfg); err != nil {
			log.Debugw("connection ended", "error", err)
		}
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": version})
}

func handleAdminLogs(buf *adminlog.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(buf.Recent())
	}
}

// defaultShutdownTimeout bounds how long in-flight connections get to drain
// once a shutdown signal arrives.
const defaultShutdownTimeout = 30 * time.Second

// ShutdownTimeout exposes the default grace period to callers assembling
// their own http.Server around Handler.
func ShutdownTimeout() time.Duration { return defaultShutdownTimeout }
