package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidshrink/internal/history"
	"vidshrink/internal/logging"
	"vidshrink/internal/pipeline"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryReader is the read side of the history store.
type HistoryReader interface {
	Get(ctx context.Context, sourcePath string) (*history.Record, error)
	List(ctx context.Context, limit int) ([]history.Record, error)
	Totals(ctx context.Context) (history.Totals, error)
}

// ProgressSource yields the latest event per job.
type ProgressSource interface {
	Snapshot() []pipeline.Event
}

// Server is the status API. Either data source may be nil; the matching
// routes then report empty results.
type Server struct {
	bind     string
	logger   *slog.Logger
	history  HistoryReader
	progress ProgressSource
	started  time.Time

	router   *mux.Router
	listener net.Listener
	server   *http.Server
}

// New builds a server that will listen on bind.
func New(bind string, reader HistoryReader, progress ProgressSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bind:     strings.TrimSpace(bind),
		logger:   logging.NewComponentLogger(logger, "api"),
		history:  reader,
		progress: progress,
		started:  time.Now(),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Routes stay on one router so a method mismatch on any of them reaches
	// MethodNotAllowedHandler.
	r.HandleFunc("/api/history/record", s.handleRecord).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/progress", s.handleProgress).Methods(http.MethodGet)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// Start listens and serves in the background until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "healthy",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.history != nil {
		if _, err := s.history.Totals(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Detail = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.History = true
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, HistoryResponse{Records: []Record{}})
		return
	}
	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	totals, err := s.history.Totals(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := HistoryResponse{Records: make([]Record, 0, len(records)), Totals: FromTotals(totals)}
	for _, rec := range records {
		resp.Records = append(resp.Records, FromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	rec, err := s.history.Get(r.Context(), path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.writeJSON(w, http.StatusOK, RecordResponse{Record: FromRecord(*rec)})
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	resp := ProgressResponse{Jobs: []JobProgress{}}
	if s.progress != nil {
		var done []JobProgress
		for _, evt := range s.progress.Snapshot() {
			job := FromEvent(evt)
			if job.Terminal {
				done = append(done, job)
				continue
			}
			resp.Jobs = append(resp.Jobs, job)
		}
		resp.Active = len(resp.Jobs)
		resp.Jobs = append(resp.Jobs, done...)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
