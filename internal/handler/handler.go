package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/questions"
	"github.com/pavelanni/interviewer/internal/store"
	"github.com/pavelanni/interviewer/internal/tts"
	"github.com/pavelanni/interviewer/internal/upstream"
	"github.com/pavelanni/interviewer/internal/voice"
)

const maxJSONBody = 1 << 20

// Grader grades answers and writes questions with a language model.
type Grader interface {
	Evaluate(ctx context.Context, req llm.EvaluateRequest) (*model.Evaluation, error)
	GenerateFromDocument(ctx context.Context, req llm.DocumentRequest) (*llm.GeneratedQuestions, error)
}

// Speaker synthesizes speech.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) (*tts.Result, error)
}

// Deps are the collaborators of Handler.
type Deps struct {
	Store       *store.Store
	Bank        *questions.Bank
	Grader      Grader
	Speaker     Speaker
	Transcriber voice.Transcriber
	Recorder    *voice.Manager
	AdminHash   []byte // bcrypt hash; admin routes are disabled when empty
	Config      model.ServerConfig
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	bank        *questions.Bank
	grader      Grader
	speaker     Speaker
	transcriber voice.Transcriber
	recorder    *voice.Manager
	adminHash   []byte
	config      model.ServerConfig
}

// New creates a new Handler.
func New(d Deps) *Handler {
	cfg := d.Config
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = 8
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = tts.DefaultVoice
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = 10 << 20
	}
	return &Handler{
		store:       d.Store,
		bank:        d.Bank,
		grader:      d.Grader,
		speaker:     d.Speaker,
		transcriber: d.Transcriber,
		recorder:    d.Recorder,
		adminHash:   d.AdminHash,
		config:      cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(h.corsMiddleware())
		api.Options("/*", h.handlePreflight)

		api.Get("/roles", h.handleRoles)
		api.Post("/questions", h.handleQuestions)
		api.Post("/evaluate-answer", h.handleEvaluateAnswer)
		api.Post("/generate-questions", h.handleGenerateQuestions)
		api.Post("/text-to-speech", h.handleTextToSpeech)
		api.Post("/speech-to-text", h.handleSpeechToText)

		api.Post("/recordings", h.handleStartRecording)
		api.Get("/recordings/{id}", h.handleGetRecording)
		api.Post("/recordings/{id}/chunks", h.handleAppendRecording)
		api.Post("/recordings/{id}/stop", h.handleStopRecording)
		api.Delete("/recordings/{id}", h.handleCancelRecording)

		api.Post("/profiles", h.handleCreateProfile)

		api.Group(func(auth chi.Router) {
			auth.Use(h.requireAuth)
			auth.Post("/sessions", h.handleCreateSession)
			auth.Get("/sessions", h.handleListSessions)
			auth.Get("/sessions/{id}", h.handleGetSession)
			auth.Get("/sessions/{id}/feedback", h.handleSessionFeedback)
			auth.Post("/sessions/{id}/feedback-audio", h.handleFeedbackAudio)
			auth.Get("/progress", h.handleProgress)
		})

		api.With(h.requireAdmin).Get("/admin/export", h.handleExport)
	})
}

func (h *Handler) corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: h.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
		MaxAge:         300,
	})
}

// handlePreflight answers OPTIONS requests the CORS middleware let through.
func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON request body. It writes the error response itself
// and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeJSONLimit(w, r, v, maxJSONBody)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrInvalidRequest"))
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for bodies that may be empty. An empty
// body leaves v untouched, whatever the Content-Length says.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrInvalidRequest"))
		return false
	}
	return true
}

// service names the localized messages used for one upstream.
type service struct {
	name     string
	statusID string // message with the upstream status code
	failedID string // message without one
}

var (
	evaluationService    = service{"llm", "ErrEvaluationStatus", "ErrEvaluationFailed"}
	generationService    = service{"llm", "ErrGenerationStatus", "ErrGenerationFailed"}
	speechService        = service{"tts", "ErrSpeechStatus", "ErrSpeechFailed"}
	transcriptionService = service{"stt", "ErrTranscriptionStatus", "ErrTranscriptionFailed"}
)

// writeUpstreamError reports a failed upstream call as a 500 with a
// user-facing message.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, r *http.Request, svc service, err error) {
	slog.Error("upstream request failed", "service", svc.name, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, h.upstreamMessage(r.Context(), svc, err))
}

func (h *Handler) upstreamMessage(ctx context.Context, svc service, err error) string {
	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		key := h.config.LLMKeyName
		if svc.name == "tts" {
			key = h.config.TTSKeyName
		}
		return appI18n.Td(ctx, "ErrNotConfigured", map[string]any{"Key": key})
	case errors.Is(err, upstream.ErrRateLimited):
		return appI18n.T(ctx, "ErrRateLimited")
	case errors.Is(err, upstream.ErrQuotaExhausted):
		return appI18n.T(ctx, "ErrQuotaExhausted")
	}
	if status := upstream.Status(err); status != 0 {
		return appI18n.Td(ctx, svc.statusID, map[string]any{"Status": status})
	}
	return appI18n.T(ctx, svc.failedID)
}
