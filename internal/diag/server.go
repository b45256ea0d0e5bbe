// Package diag serves a small HTTP API for inspecting the bridge and feeding
// debug console commands.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skobkin/bblink/internal/adapter"
	"github.com/skobkin/bblink/internal/bridge"
	"github.com/skobkin/bblink/internal/bus"
	"github.com/skobkin/bblink/internal/connectors"
	"github.com/skobkin/bblink/internal/persistence"
)

const requestTimeout = 10 * time.Second

type BridgeStatus interface {
	Snapshot() bridge.Snapshot
}

type AdapterControl interface {
	Snapshot() connectors.AdapterState
	Console(cmd byte) error
}

type PrefLister interface {
	List(ctx context.Context) ([]persistence.Pref, error)
}

type Deps struct {
	Bridge  BridgeStatus
	Adapter AdapterControl
	Prefs   PrefLister
	Bus     bus.MessageBus
	Logger  *slog.Logger
}

// consoleCommands maps URL names to console command bytes. The raw command
// characters are accepted too.
var consoleCommands = map[string]byte{
	"reboot":        adapter.CommandReboot,
	"factory-reset": adapter.CommandFactoryReset,
	"verbose":       adapter.CommandMoreVerbosity,
	"quiet":         adapter.CommandLessVerbosity,
}

type Server struct {
	listen  string
	version string
	deps    Deps
	logger  *slog.Logger
	router  chi.Router
	srv     *http.Server

	mu      sync.RWMutex
	links   map[connectors.Link]connectors.LinkStatus
	traffic Traffic
}

// Traffic counts relayed frames since start. In is wireless to radio.
type Traffic struct {
	FramesIn    uint64                   `json:"frames_in"`
	FramesOut   uint64                   `json:"frames_out"`
	BytesIn     uint64                   `json:"bytes_in"`
	BytesOut    uint64                   `json:"bytes_out"`
	Commands    uint64                   `json:"commands"`
	LastCommand *connectors.CommandEvent `json:"last_command,omitempty"`
}

func New(listen, version string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		listen:  listen,
		version: version,
		deps:    deps,
		logger:  logger,
		links:   make(map[connectors.Link]connectors.LinkStatus),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/prefs", s.handlePrefs)
	r.Post("/console/{command}", s.handleConsole)
	s.router = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Watch records link status, relay traffic and dispatched commands from the
// bus until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	b := s.deps.Bus
	if b == nil {
		return
	}
	linkSub := b.Subscribe(connectors.TopicLinkStatus)
	inSub := b.Subscribe(connectors.TopicRawFrameIn)
	outSub := b.Subscribe(connectors.TopicRawFrameOut)
	cmdSub := b.Subscribe(connectors.TopicCommand)

	go func() {
		defer b.Unsubscribe(linkSub, connectors.TopicLinkStatus)
		defer b.Unsubscribe(inSub, connectors.TopicRawFrameIn)
		defer b.Unsubscribe(outSub, connectors.TopicRawFrameOut)
		defer b.Unsubscribe(cmdSub, connectors.TopicCommand)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-linkSub:
				if !ok {
					return
				}
				if status, ok := msg.(connectors.LinkStatus); ok {
					s.mu.Lock()
					s.links[status.Link] = status
					s.mu.Unlock()
				}
			case msg, ok := <-inSub:
				if !ok {
					return
				}
				if frame, ok := msg.(connectors.RawFrame); ok {
					s.mu.Lock()
					s.traffic.FramesIn++
					s.traffic.BytesIn += uint64(frame.Len)
					s.mu.Unlock()
				}
			case msg, ok := <-outSub:
				if !ok {
					return
				}
				if frame, ok := msg.(connectors.RawFrame); ok {
					s.mu.Lock()
					s.traffic.FramesOut++
					s.traffic.BytesOut += uint64(frame.Len)
					s.mu.Unlock()
				}
			case msg, ok := <-cmdSub:
				if !ok {
					return
				}
				if cmd, ok := msg.(connectors.CommandEvent); ok {
					s.mu.Lock()
					s.traffic.Commands++
					s.traffic.LastCommand = &cmd
					s.mu.Unlock()
				}
			}
		}
	}()
}

// ListenAndServe blocks until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.logger.Info("diagnostics listening", "addr", s.listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.srv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type statusResponse struct {
	Version string                                    `json:"version"`
	Adapter connectors.AdapterState                   `json:"adapter"`
	Bridge  bridge.Snapshot                           `json:"bridge"`
	Links   map[connectors.Link]connectors.LinkStatus `json:"links"`
	Traffic Traffic                                   `json:"traffic"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Version: s.version, Links: make(map[connectors.Link]connectors.LinkStatus)}
	if s.deps.Adapter != nil {
		resp.Adapter = s.deps.Adapter.Snapshot()
	}
	if s.deps.Bridge != nil {
		resp.Bridge = s.deps.Bridge.Snapshot()
	}
	s.mu.RLock()
	for k, v := range s.links {
		resp.Links[k] = v
	}
	resp.Traffic = s.traffic
	s.mu.RUnlock()

	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prefs == nil {
		errorResponse(w, http.StatusNotFound, "preferences unavailable")
		return
	}
	prefs, err := s.deps.Prefs.List(r.Context())
	if err != nil {
		s.logger.Warn("list prefs failed", "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to list preferences")
		return
	}
	jsonResponse(w, http.StatusOK, prefs)
}

func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	if s.deps.Adapter == nil {
		errorResponse(w, http.StatusServiceUnavailable, "adapter unavailable")
		return
	}

	name := chi.URLParam(r, "command")
	cmd, ok := consoleCommands[name]
	if !ok && len(name) == 1 {
		cmd, ok = name[0], true
	}
	if !ok {
		errorResponse(w, http.StatusBadRequest, "unknown command")
		return
	}

	switch err := s.deps.Adapter.Console(cmd); {
	case errors.Is(err, adapter.ErrUnknownCommand):
		errorResponse(w, http.StatusBadRequest, "unknown command")
	case errors.Is(err, adapter.ErrConsoleBusy):
		errorResponse(w, http.StatusTooManyRequests, "console busy")
	case err != nil:
		errorResponse(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Info("console command queued", "command", string(cmd))
		jsonResponse(w, http.StatusAccepted, map[string]string{"status": "queued", "command": string(cmd)})
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{
		"error": message,
		"code":  status,
	})
}
