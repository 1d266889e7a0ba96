package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	gosync "sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paradixe-xz/evaInstance-sub001/internal/config"
	"github.com/paradixe-xz/evaInstance-sub001/internal/export"
	"github.com/paradixe-xz/evaInstance-sub001/internal/sync"
)

// Syncer runs a full sync; satisfied by *sync.Orchestrator.
type Syncer interface {
	SyncAll(ctx context.Context, agentID string, startUnix, endUnix int64) (*sync.Report, error)
}

// ConversationReader serves synced records; satisfied by *store.Store.
type ConversationReader interface {
	ListConversations(ctx context.Context, agentID string, limit int) ([]sync.ConversationRecord, error)
	GetConversation(ctx context.Context, id string) (*sync.ConversationRecord, error)
}

type Server struct {
	router *chi.Mux
	port   int
	syncer Syncer
	reader ConversationReader
	logger *slog.Logger

	mu         gosync.Mutex
	running    bool
	lastReport *sync.Report
}

func NewServer(port int, apiToken string, syncer Syncer, reader ConversationReader, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		syncer: syncer,
		reader: reader,
		logger: logger,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/sync", s.triggerSync)
		r.Get("/sync/status", s.syncStatus)
		r.Get("/conversations", s.listConversations)
		r.Get("/conversations/export", s.exportConversations)
		r.Get("/conversations/{id}", s.getConversation)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests without the configured token. An
// empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SyncRequest is the POST /api/v1/sync payload. All fields are optional;
// unset fields fall back to the configured defaults.
type SyncRequest struct {
	AgentID   string `json:"agent_id,omitempty"`
	StartDate string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate   string `json:"end_date,omitempty"`   // YYYY-MM-DD
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, `{"error":"a sync is already running"}`, http.StatusConflict)
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	// Bad dates degrade to an unbounded filter rather than failing the run.
	startUnix := config.ParseDateUnix(req.StartDate, s.logger)
	endUnix := config.ParseDateUnix(req.EndDate, s.logger)

	report, err := s.syncer.SyncAll(r.Context(), req.AgentID, startUnix, endUnix)
	if err != nil && report == nil {
		http.Error(w, fmt.Sprintf(`{"error":"sync failed: %v"}`, err), http.StatusBadGateway)
		return
	}

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":     s.running,
		"last_report": s.lastReport,
	})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	recs, err := s.reader.ListConversations(r.Context(), agentID, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []sync.ConversationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": recs, "count": len(recs)})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.reader.GetConversation(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) exportConversations(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	format := r.URL.Query().Get("format")

	recs, err := s.reader.ListConversations(r.Context(), agentID, 0)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusInternalServerError)
		return
	}

	switch format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="conversations.csv"`)
		if err := export.WriteCSV(w, recs); err != nil {
			s.logger.Error("csv export failed", "error", err)
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		if err := export.WriteJSON(w, recs); err != nil {
			s.logger.Error("json export failed", "error", err)
		}
	default:
		http.Error(w, `{"error":"unknown format, use csv or json"}`, http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
