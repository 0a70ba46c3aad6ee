package stub

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/rs/zerolog"
)

const (
	// MaxQueryLength rejects oversized questions the way the real service does.
	MaxQueryLength = 1000
	maxTopK        = 20
	maxBodyBytes   = 64 * 1024
)

// Server is a stand-in for the helpdesk service.
type Server struct {
	faq    *FAQ
	logger zerolog.Logger
	ready  atomic.Bool
}

func NewServer(faq *FAQ, logger zerolog.Logger) *Server {
	if faq == nil {
		faq = DefaultFAQ()
	}
	s := &Server{faq: faq, logger: logger.With().Str("component", "stub").Logger()}
	s.ready.Store(true)
	return s
}

// SetReady toggles whether chat queries are answered or refused with 503.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.health)
	r.Get(helpdesk.HealthPath, s.health)
	r.Route("/api/v1/chat", func(r chi.Router) {
		r.Post("/", s.chat)
		r.Get("/health", s.chatHealth)
	})
	return r
}

func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Msg("request completed")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	ModelsLoaded bool   `json:"models_loaded"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: "stub", ModelsLoaded: s.ready.Load()})
}

func (s *Server) chatHealth(w http.ResponseWriter, r *http.Request) {
	ready := s.ready.Load()
	status := "healthy"
	if !ready {
		status = "unhealthy"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"service":       "chat",
		"models_loaded": ready,
		"details": map[string]bool{
			"embeddings_loaded": ready,
			"database_loaded":   ready,
			"llm_loaded":        ready,
		},
	})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "Chatbot service is not ready. Issues: knowledge base not loaded")
		return
	}

	var req helpdesk.ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	switch {
	case req.Query == "":
		writeError(w, http.StatusBadRequest, "bad_request", "query must not be empty")
		return
	case len(req.Query) > MaxQueryLength:
		writeError(w, http.StatusBadRequest, "bad_request", "query too long")
		return
	case req.TopK < 0 || req.TopK > maxTopK:
		writeError(w, http.StatusBadRequest, "bad_request", "top_k must be between 0 and 20 (0 uses the default)")
		return
	}

	answer, contextUsed := s.faq.Fallback, ""
	if e, ok := s.faq.Match(req.Query); ok {
		answer, contextUsed = e.Answer, e.ID
	}
	elapsed := time.Since(start).Seconds()
	writeJSON(w, http.StatusOK, helpdesk.ChatResponse{
		Response:       answer,
		ContextUsed:    contextUsed,
		ProcessingTime: &elapsed,
		Query:          req.Query,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, helpdesk.ErrorResponse{
		Error:     code,
		Detail:    detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
