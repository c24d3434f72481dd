// Package httpapi exposes the webhook and operational endpoints. The webhook
// always answers 200 with an empty body; replies travel out of band through
// the messenger, never in the webhook response.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/learnsl/enrollbot/internal/logger"
	"github.com/learnsl/enrollbot/internal/observability"
	"github.com/learnsl/enrollbot/internal/store"
)

// ConversationReader serves the transcript endpoint.
type ConversationReader interface {
	ConversationsByUser(ctx context.Context, waID string) ([]store.ConversationEntry, error)
}

// TurnHandler processes one inbound webhook message.
type TurnHandler interface {
	Handle(ctx context.Context, from, body string) error
}

// Server routes inbound traffic to the conversation engine.
type Server struct {
	engine  TurnHandler
	reader  ConversationReader
	metrics *observability.Metrics
	router  chi.Router
}

// New builds the router. metrics may be nil in tests.
func New(engine TurnHandler, reader ConversationReader, metrics *observability.Metrics) *Server {
	s := &Server{engine: engine, reader: reader, metrics: metrics}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", s.handleWebhook)
	r.Get("/conversations/{waID}", s.handleConversations)
	r.Get("/healthz", s.handleHealthz)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleWebhook accepts the provider's form-encoded delivery. It responds 200
// regardless of outcome; a non-2xx would make the provider retry and replay
// the turn.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseForm(); err != nil {
		logger.HTTP.LogAttrs(r.Context(), slog.LevelWarn, "unparseable webhook",
			slog.String("event", "webhook.receive"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")

	ctx := logger.WithHandler(r.Context(), "webhook")
	ctx = logger.WithRID(ctx, uuid.NewString())
	logger.HTTP.LogAttrs(ctx, slog.LevelDebug, "webhook received",
		slog.String("event", "webhook.receive"),
		slog.String("wa_id", logger.SanitizeLimit(from, 32)),
		slog.String("payload", logger.SanitizeLimit(body, 120)),
	)

	if err := s.engine.Handle(ctx, from, body); err != nil {
		logger.HTTP.LogAttrs(ctx, slog.LevelWarn, "turn rejected",
			slog.String("event", "webhook.turn"),
			slog.String("status", "fail"),
			slog.String("wa_id", logger.SanitizeLimit(from, 32)),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	waID := chi.URLParam(r, "waID")
	ctx := logger.WithHandler(r.Context(), "conversations")

	entries, err := s.reader.ConversationsByUser(ctx, waID)
	if err != nil {
		logger.HTTP.LogAttrs(ctx, slog.LevelError, "transcript read failed",
			slog.String("event", "conversations.read"),
			slog.String("status", "fail"),
			slog.String("wa_id", logger.SanitizeLimit(waID, 32)),
			slog.String("err", err.Error()),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		logger.HTTP.LogAttrs(ctx, slog.LevelWarn, "transcript encode failed",
			slog.String("event", "conversations.read"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
