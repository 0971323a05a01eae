// Package api serves the engine's operational endpoints over HTTP and the
// standard gRPC health service.
package api

import (
	"NetVerdict/internal/artifact"
	"NetVerdict/internal/config"
	"NetVerdict/internal/model"
	"NetVerdict/internal/sink/sqlstore"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name the engine reports under.
const ServiceName = "netverdict.Engine"

// FlowStore answers stored-verdict queries. *sqlstore.Store implements it.
type FlowStore interface {
	ListFlows(ctx context.Context, filter sqlstore.FlowFilter, page, perPage int) ([]sqlstore.FlowRow, int, error)
	Summary(ctx context.Context, batchID string) (*model.Report, error)
}

// Deps are the handlers' collaborators. Store may be nil.
type Deps struct {
	Model    artifact.Info
	Gatherer prometheus.Gatherer
	Store    FlowStore
	Logger   *zap.Logger
}

// Server runs the HTTP and gRPC listeners.
type Server struct {
	cfg    config.APIConfig
	ready  *atomic.Bool
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer wires both listeners. The server starts not ready.
func NewServer(cfg config.APIConfig, deps Deps) *Server {
	ready := new(atomic.Bool)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		cfg:    cfg,
		ready:  ready,
		http:   &http.Server{Addr: cfg.HTTPListenAddr, Handler: NewRouter(deps, ready), ReadHeaderTimeout: 10 * time.Second},
		grpc:   gs,
		health: hs,
		logger: deps.Logger,
	}
}

// SetReady flips /readyz and the gRPC health status.
func (s *Server) SetReady(ok bool) {
	s.ready.Store(ok)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Start listens in the background. Listener errors are reported on the
// returned channel.
func (s *Server) Start() (<-chan error, error) {
	errCh := make(chan error, 2)
	if s.cfg.GRPCListenAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.GRPCListenAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCListenAddr, err)
		}
		go func() {
			s.logger.Info("gRPC health server starting", zap.String("addr", s.cfg.GRPCListenAddr))
			if err := s.grpc.Serve(lis); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}
	if s.cfg.HTTPListenAddr != "" {
		go func() {
			s.logger.Info("HTTP server starting", zap.String("addr", s.cfg.HTTPListenAddr))
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}
	return errCh, nil
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	s.grpc.GracefulStop()
	return s.http.Shutdown(ctx)
}

// NewRouter builds the HTTP routes.
func NewRouter(deps Deps, ready *atomic.Bool) http.Handler {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	h := &handler{deps: deps, ready: ready}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/v1/model", h.modelInfo).Methods(http.MethodGet)
	if deps.Store != nil {
		r.HandleFunc("/v1/flows", h.listFlows).Methods(http.MethodGet)
		r.HandleFunc("/v1/batches/{id}", h.batchSummary).Methods(http.MethodGet)
	}
	return r
}

type handler struct {
	deps  Deps
	ready *atomic.Bool
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if h.ready == nil || !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handler) modelInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Model)
}

type flowPage struct {
	Flows   []sqlstore.FlowRow `json:"flows"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
}

func (h *handler) listFlows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	perPage, err := intParam(q.Get("per_page"), 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if perPage > sqlstore.MaxPerPage {
		http.Error(w, fmt.Sprintf("per_page must not exceed %d", sqlstore.MaxPerPage), http.StatusBadRequest)
		return
	}
	filter := sqlstore.FlowFilter{
		Classification: q.Get("classification"),
		RiskLevel:      q.Get("risk_level"),
		ThreatType:     q.Get("threat_type"),
		SrcIP:          q.Get("src_ip"),
		Protocol:       q.Get("protocol"),
		AnalysisID:     q.Get("analysis_id"),
	}
	rows, total, err := h.deps.Store.ListFlows(r.Context(), filter, page, perPage)
	if err != nil {
		h.deps.Logger.Error("failed to list flows", zap.Error(err))
		http.Error(w, "failed to list flows", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, flowPage{Flows: rows, Total: total, Page: page, PerPage: perPage})
}

func (h *handler) batchSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rep, err := h.deps.Store.Summary(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.deps.Logger.Error("failed to load batch", zap.String("batch_id", id), zap.Error(err))
		http.Error(w, "failed to load batch", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid positive integer %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
