// Package api serves discovered beacons and sweep history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tailbeacon/pkg/agent"
	"tailbeacon/pkg/journal"
	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/metrics"
	"tailbeacon/pkg/model"
	"tailbeacon/pkg/store"
	"tailbeacon/pkg/version"
)

// Server holds the handlers' dependencies. Journal, Metrics and Hub are optional.
type Server struct {
	Store   store.BeaconStore
	Journal journal.Journal
	Sweeper *agent.Sweeper
	Metrics *metrics.Metrics
	Hub     *Hub
	Auth    *Authenticator

	log *zap.Logger
}

func NewServer(st store.BeaconStore, sw *agent.Sweeper, authn *Authenticator, log *zap.Logger) *Server {
	return &Server{Store: st, Sweeper: sw, Auth: authn, log: logging.OrNop(log).Named("api")}
}

// RegisterRoutes wires the HTTP handlers on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	guard := s.Auth.Middleware

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("tailbeacon"))
	})

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", s.Auth.handleLogin)
	mux.HandleFunc("/api/v1/beacons", guard(s.handleBeacons))
	mux.HandleFunc("/api/v1/beacons/", guard(s.handleBeacon))
	mux.HandleFunc("/api/v1/runs", guard(s.handleRuns))
	mux.HandleFunc("/api/v1/discover", guard(s.handleDiscover))
	if s.Hub != nil {
		mux.HandleFunc("/api/v1/ws/beacons", guard(s.Hub.HandleBeacons))
	}
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{"status": "ok", "version": version.String()}
	code := http.StatusOK
	if err := s.Store.Ping(); err != nil {
		resp["status"] = "degraded"
		resp["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleBeacons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	beacons, err := s.Store.ListBeacons()
	if err != nil {
		s.log.Error("list beacons", zap.Error(err))
		http.Error(w, "failed to list beacons", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, beacons)
}

// handleBeacon looks a beacon up by its dedup key, e.g. /api/v1/beacons/dns:host.ts.net:18789.
func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/beacons/"))
	if err != nil || key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	b, ok, err := s.Store.GetBeacon(key)
	if err != nil {
		s.log.Error("get beacon", zap.String("key", key), zap.Error(err))
		http.Error(w, "failed to get beacon", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	var (
		runs []model.DiscoveryRun
		err  error
	)
	if s.Journal != nil {
		runs, err = s.Journal.Recent(r.Context(), limit)
	} else {
		runs, err = s.Store.ListRuns(limit)
	}
	if err != nil {
		s.log.Error("list runs", zap.Error(err))
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.DiscoveryRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleDiscover runs a sweep on demand and returns its summary.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Sweeper == nil {
		http.Error(w, "discovery not configured", http.StatusServiceUnavailable)
		return
	}
	// a client hanging up must not cut the sweep short; it is bounded by its own timeout
	run := s.Sweeper.SweepOnce(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}
