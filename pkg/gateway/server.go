package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leialab/leia/internal/metrics"
	"github.com/leialab/leia/pkg/provider"
	"github.com/leialab/leia/pkg/purge"
	"github.com/leialab/leia/pkg/session"
	"github.com/leialab/leia/pkg/wizard"
	"github.com/rs/zerolog"
)

// Server exposes the wizard over HTTP: a REST surface for session and
// model management plus a websocket stream for wizard turns.
type Server struct {
	host           string
	port           int
	server         *http.Server
	upgrader       websocket.Upgrader
	orchestrator   *wizard.Orchestrator
	registry       *provider.Registry
	purgeEngine    *purge.Engine
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	Orchestrator *wizard.Orchestrator
	Registry     *provider.Registry
	PurgeEngine  *purge.Engine
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// NewServer validates the configuration and builds the server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if cfg.PurgeEngine == nil {
		return nil, fmt.Errorf("purge engine is required")
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		orchestrator: cfg.Orchestrator,
		registry:     cfg.Registry,
		purgeEngine:  cfg.PurgeEngine,
		metrics:      m,
		logger:       cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // collaborators connect from arbitrary origins
			},
		},
	}, nil
}

// Start begins serving. It does not block; errors after startup are
// logged.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/purge", s.handlePurge)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    s.addr(),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

// addr builds the listen address; an empty host binds all interfaces.
func (s *Server) addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, provider.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, wizard.ErrValidation):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createSessionRequest struct {
	ModelName string `json:"modelName"`
	UserToken string `json:"userToken"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	ModelName string `json:"modelName"`
	CreatedAt int64  `json:"createdAt"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ModelName == "" {
		req.ModelName = provider.DefaultModel
	}

	sess, err := s.orchestrator.CreateSession(r.Context(), req.ModelName, req.UserToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID,
		ModelName: sess.ModelName,
		CreatedAt: sess.CreatedAt,
	})
}

type evaluateRequest struct {
	Solution string `json:"solution"`
}

// handleSessionByID routes DELETE /api/sessions/{id} and
// POST /api/sessions/{id}/evaluate.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := s.orchestrator.EndSession(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	case action == "evaluate" && r.Method == http.MethodPost:
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		eval, err := s.orchestrator.Evaluate(r.Context(), id, req.Solution)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, eval)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type registerModelRequest struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`
}

// handleModels lists validated models on GET and hot-registers a local
// model endpoint on POST.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"models": s.registry.ValidatedModels(),
		})

	case http.MethodPost:
		var req registerModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Name == "" || req.BaseURL == "" || req.Model == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name, baseUrl and model are required"})
			return
		}

		p := provider.NewLocalModelProvider(req.Name, req.BaseURL, req.Model)
		result := s.registry.RegisterModel(r.Context(), req.Name, p)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, result)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req purge.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := s.purgeEngine.Run(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
