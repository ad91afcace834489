package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"dojibot/internal/daemon"
	"dojibot/internal/scanner"
	"dojibot/internal/scheduler"
	"dojibot/internal/signalcache"
	"dojibot/internal/srzone"
	"dojibot/internal/watchlist"
	"dojibot/pkg/logger"
	"dojibot/pkg/model"
)

// StatusReporter is the part of the daemon the server reads
type StatusReporter interface {
	Status() daemon.Status
}

// ZoneCache serves snapshots and reports its size
type ZoneCache interface {
	srzone.ZoneComputer
	Len() int
}

// Server exposes health and status endpoints for operators
type Server struct {
	addr    string
	daemon  StatusReporter
	signals *signalcache.Cache
	zones   ZoneCache
	symbols scanner.SymbolSource
	srv     *http.Server
}

// NewServer creates a new status server listening on addr
func NewServer(addr string, d StatusReporter, signals *signalcache.Cache, zones ZoneCache, symbols scanner.SymbolSource) *Server {
	return &Server{
		addr:    addr,
		daemon:  d,
		signals: signals,
		zones:   zones,
		symbols: symbols,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/zones/", s.handleZones)
	return mux
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("[WEB] Status server at http://%s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("[WEB] Server stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// StatusResponse is the body of /api/status
type StatusResponse struct {
	Daemon        daemon.Status `json:"daemon"`
	NextPollHuman string        `json:"next_poll_human"`
	Symbols       int           `json:"symbols"`
	SignalCache   CacheStats    `json:"signal_cache"`
	SnapshotCache int           `json:"snapshot_cache"`
}

// CacheStats reports a bounded cache's fill
type CacheStats struct {
	Len      int `json:"len"`
	Capacity int `json:"capacity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.daemon.Status()
	if !st.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting", "state": string(st.State)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": string(st.State)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.daemon.Status()
	resp := StatusResponse{
		Daemon:        st,
		NextPollHuman: scheduler.FormatDuration(st.NextPoll),
		Symbols:       -1,
	}
	if s.symbols != nil {
		if list, err := s.symbols.List(r.Context()); err == nil {
			resp.Symbols = len(list)
		}
	}
	if s.signals != nil {
		resp.SignalCache = CacheStats{Len: s.signals.Len(), Capacity: s.signals.Capacity()}
	}
	if s.zones != nil {
		resp.SnapshotCache = s.zones.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleZones returns the S/R snapshot: /api/zones/BTCUSDT?timeframe=4h
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.zones == nil {
		http.Error(w, "Zones unavailable", http.StatusServiceUnavailable)
		return
	}

	symbol, err := watchlist.Normalize(strings.TrimPrefix(r.URL.Path, "/api/zones/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tf := model.TF4h
	if v := r.URL.Query().Get("timeframe"); v != "" {
		if tf, err = model.ParseTimeframe(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	snap, err := s.zones.ComputeZones(ctx, symbol, tf)
	if err != nil {
		http.Error(w, "Failed to compute zones: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
