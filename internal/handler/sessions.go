package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/scoring"
	"github.com/pavelanni/interviewer/internal/store"
)

const feedbackLimit = 5

type createSessionRequest struct {
	Role       string                   `json:"role"`
	Difficulty string                   `json:"difficulty"`
	Mode       string                   `json:"mode"`
	Responses  []model.QuestionResponse `json:"responses"`
}

// handleCreateSession scores a finished interview and saves it for the
// authenticated user. Each call stores a new row.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req createSessionRequest
	if !decodeJSONLimit(w, r, &req, 4*maxJSONBody) {
		return
	}
	if len(req.Responses) == 0 {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrResponsesRequired"))
		return
	}

	sum := scoring.Aggregate(req.Responses)
	sess := &model.InterviewSession{
		UserID:          user.ID,
		Role:            req.Role,
		Difficulty:      req.Difficulty,
		Mode:            req.Mode,
		ConfidenceScore: sum.Confidence,
		GrammarScore:    sum.Grammar,
		RelevanceScore:  sum.Relevance,
		ClarityScore:    sum.Clarity,
		OverallScore:    sum.Overall,
		Responses:       req.Responses,
	}
	if err := h.store.CreateInterviewSession(sess); err != nil {
		slog.Error("failed to save interview session", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}
	metrics.SessionsSaved.Inc()
	slog.Info("interview session saved", "id", sess.ID, "user_id", user.ID, "overall", sess.OverallScore)

	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessions, err := h.store.ListInterviewSessions(user.ID)
	if err != nil {
		slog.Error("failed to list interview sessions", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}
	if sessions == nil {
		sessions = []model.InterviewSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ownSession loads the session named in the URL. Sessions of other users
// are reported as missing.
func (h *Handler) ownSession(w http.ResponseWriter, r *http.Request) (*model.InterviewSession, bool) {
	user := model.UserFromContext(r.Context())
	sess, err := h.store.GetInterviewSession(chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("failed to get interview session", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return nil, false
	}
	if sess == nil || sess.UserID != user.ID {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "ErrSessionNotFound"))
		return nil, false
	}
	return sess, true
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type feedbackResponse struct {
	Narration    string   `json:"narration"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	AudioContent string   `json:"audioContent,omitempty"`
	Format       string   `json:"format,omitempty"`
}

// feedback builds the spoken summary of a session and its combined
// strengths and improvements.
func feedback(ctx context.Context, sess *model.InterviewSession) feedbackResponse {
	narration := appI18n.Td(ctx, "FeedbackNarration", map[string]any{
		"Overall":    sess.OverallScore,
		"Confidence": sess.ConfidenceScore,
		"Grammar":    sess.GrammarScore,
		"Relevance":  sess.RelevanceScore,
		"Clarity":    sess.ClarityScore,
	})
	if len(sess.Responses) > 0 && sess.Responses[0].Evaluation != nil && sess.Responses[0].Evaluation.Feedback != "" {
		narration += " " + sess.Responses[0].Evaluation.Feedback
	}

	strengths, improvements := scoring.CollectFeedback(sess.Responses, feedbackLimit)
	if len(strengths) == 0 {
		strengths = []string{appI18n.T(ctx, "FeedbackPlaceholder")}
	}
	if len(improvements) == 0 {
		improvements = []string{appI18n.T(ctx, "FeedbackPlaceholder")}
	}
	return feedbackResponse{Narration: narration, Strengths: strengths, Improvements: improvements}
}

func (h *Handler) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, feedback(r.Context(), sess))
}

// handleFeedbackAudio narrates the session feedback through the speech
// provider.
func (h *Handler) handleFeedbackAudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	var req speechRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	if req.Voice == "" {
		req.Voice = h.config.DefaultVoice
	}

	resp := feedback(r.Context(), sess)
	audio, err := h.speaker.Speak(r.Context(), resp.Narration, req.Voice)
	if err != nil {
		h.writeUpstreamError(w, r, speechService, err)
		return
	}
	resp.AudioContent = audio.AudioContent
	resp.Format = audio.Format
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	p, err := h.store.Progress(user.ID)
	if err != nil {
		slog.Error("failed to compute progress", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}
