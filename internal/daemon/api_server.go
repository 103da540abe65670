package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"caseflow/internal/api"
	"caseflow/internal/config"
	"caseflow/internal/filterctx"
	"caseflow/internal/logging"
	"caseflow/internal/queuesvc"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	cfg    *config.Config
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address must be configured")
	}

	srv := &apiServer{
		bind:   bind,
		cfg:    cfg,
		logger: logging.Component(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(cfg, srv.handleStatus))
	mux.HandleFunc("/api/cases", authMiddleware(cfg, srv.handleCases))
	mux.HandleFunc("/api/cases/", authMiddleware(cfg, srv.handleCaseSubpath))
	mux.HandleFunc("/api/queue/session/start", authMiddleware(cfg, srv.handleSessionStart))
	mux.HandleFunc("/api/queue/session/", authMiddleware(cfg, srv.handleSessionSubpath))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		CaseCount:    status.CaseCount,
	})
}

func (s *apiServer) handleCases(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := s.daemon.catalog.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	summaries := make([]api.CaseSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, api.FromCaseSummary(record))
	}
	s.writeJSON(w, http.StatusOK, api.CaseListResponse{Cases: summaries, Total: len(summaries)})
}

// handleCaseSubpath serves GET /api/cases/{id} and
// POST /api/cases/{id}/status.
func (s *apiServer) handleCaseSubpath(w http.ResponseWriter, r *http.Request, userID string) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cases/")
	caseID, action, _ := strings.Cut(rest, "/")
	if caseID == "" {
		s.writeError(w, http.StatusNotFound, "case not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		record, err := s.daemon.catalog.GetByID(r.Context(), caseID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if record == nil {
			s.writeError(w, http.StatusNotFound, "case not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromCase(record))
	case "status":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleMarkStatus(w, r, userID, caseID)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleMarkStatus(w http.ResponseWriter, r *http.Request, userID, caseID string) {
	var req api.MarkStatusRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	criteria, err := filterctx.ParseCriteria(req.FilterContext)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	record, err := s.daemon.manager.MarkStatus(r.Context(), userID, caseID, req.Status, criteria, req.SessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromProgressRecord(record))
}

func (s *apiServer) handleSessionStart(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.StartSessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	criteria, err := filterctx.ParseCriteria(req.Filters)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	correlationID := uuid.NewString()
	state, err := s.daemon.manager.Start(logging.WithContext(r.Context(),
		logging.WithCorrelation(s.logger, correlationID)), userID, criteria)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromQueueState(state))
}

// handleSessionSubpath serves POST /api/queue/session/{id}/next.
func (s *apiServer) handleSessionSubpath(w http.ResponseWriter, r *http.Request, userID string) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/session/")
	sessionID, action, _ := strings.Cut(rest, "/")
	if sessionID == "" || action != "next" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.AdvanceRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	state, err := s.daemon.manager.Advance(r.Context(), userID, sessionID, req.PreviousCaseID, req.PreviousCaseStatus)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromQueueState(state))
}

// decodeBody parses the JSON request body into dst. An empty body
// leaves dst at its zero value.
func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, filterctx.ErrInvalidCriteria), errors.Is(err, queuesvc.ErrInvalidStatus):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, queuesvc.ErrSessionNotFound), errors.Is(err, queuesvc.ErrCaseNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
