package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/tts"
	"github.com/pavelanni/interviewer/internal/voice"
)

const (
	uploadFilename = "recording.webm"
	maxAwait       = 30 * time.Second
)

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (h *Handler) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrTextRequired"))
		return
	}
	if req.Voice == "" {
		req.Voice = h.config.DefaultVoice
	}

	res, err := h.speaker.Speak(r.Context(), req.Text, req.Voice)
	if err != nil {
		if errors.Is(err, tts.ErrEmptyText) {
			writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrTextRequired"))
			return
		}
		h.writeUpstreamError(w, r, speechService, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type transcribeRequest struct {
	Audio string `json:"audio"`
}

type transcribeResponse struct {
	Text    string `json:"text"`
	Words   int    `json:"words"`
	Message string `json:"message"`
}

// handleSpeechToText transcribes a complete base64 recording in one call.
func (h *Handler) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if !decodeJSONLimit(w, r, &req, int64(base64.StdEncoding.EncodedLen(int(h.config.MaxAudioBytes)))+maxJSONBody) {
		return
	}
	if req.Audio == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrAudioRequired"))
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrInvalidRequest"))
		return
	}
	if int64(len(audio)) > h.config.MaxAudioBytes {
		writeError(w, http.StatusRequestEntityTooLarge, appI18n.T(r.Context(), "ErrRecordingTooLarge"))
		return
	}

	text, err := voice.TranscribeOnce(r.Context(), h.transcriber, audio, uploadFilename)
	if err != nil {
		if errors.Is(err, voice.ErrNoSpeech) {
			writeError(w, http.StatusUnprocessableEntity, appI18n.T(r.Context(), "ErrNoSpeech"))
			return
		}
		h.writeUpstreamError(w, r, transcriptionService, err)
		return
	}

	words := len(strings.Fields(text))
	writeJSON(w, http.StatusOK, transcribeResponse{
		Text:    text,
		Words:   words,
		Message: appI18n.Tp(r.Context(), "TranscribedWords", words),
	})
}

type recordingResponse struct {
	voice.Status
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) recordingView(ctx context.Context, st voice.Status) recordingResponse {
	resp := recordingResponse{Status: st}
	switch st.State {
	case voice.StateDone:
		resp.Message = appI18n.Tp(ctx, "TranscribedWords", st.Words)
	case voice.StateFailed:
		if errors.Is(st.Err, voice.ErrNoSpeech) {
			resp.Error = appI18n.T(ctx, "ErrNoSpeech")
		} else {
			resp.Error = h.upstreamMessage(ctx, transcriptionService, st.Err)
		}
	}
	return resp
}

// writeRecordingError maps recorder errors to responses.
func writeRecordingError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, voice.ErrNotFound):
		writeError(w, http.StatusNotFound, appI18n.T(ctx, "ErrRecordingNotFound"))
	case errors.Is(err, voice.ErrNotRecording):
		writeError(w, http.StatusConflict, appI18n.T(ctx, "ErrNotRecording"))
	case errors.Is(err, voice.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, appI18n.T(ctx, "ErrRecordingTooLarge"))
	case errors.Is(err, voice.ErrTooManyRecordings):
		slog.Warn("recording refused", "error", err)
		writeError(w, http.StatusTooManyRequests, appI18n.T(ctx, "ErrTooManyRecordings"))
	default:
		slog.Error("recording request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(ctx, "ErrInternal"))
	}
}

func (h *Handler) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	id, err := h.recorder.Start()
	if err != nil {
		writeRecordingError(w, r, err)
		return
	}
	st, err := h.recorder.Get(id)
	if err != nil {
		writeRecordingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.recordingView(r.Context(), st))
}

// handleAppendRecording adds the raw request body to the recording.
func (h *Handler) handleAppendRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxAudioBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeRecordingError(w, r, voice.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrInvalidRequest"))
		return
	}
	if len(chunk) == 0 {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrAudioRequired"))
		return
	}

	if _, err := h.recorder.Append(id, chunk); err != nil {
		writeRecordingError(w, r, err)
		return
	}
	st, err := h.recorder.Get(id)
	if err != nil {
		writeRecordingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordingView(r.Context(), st))
}

// handleStopRecording ends capture. Transcription continues in the
// background; the client polls the recording for the result.
func (h *Handler) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	st, err := h.recorder.Stop(chi.URLParam(r, "id"))
	if err != nil {
		writeRecordingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.recordingView(r.Context(), st))
}

// handleGetRecording returns the recording state. With ?wait=true it blocks
// until transcription finishes, bounded by maxAwait.
func (h *Handler) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		st  voice.Status
		err error
	)
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), maxAwait)
		defer cancel()
		st, err = h.recorder.Await(ctx, id)
		if errors.Is(err, context.DeadlineExceeded) {
			st, err = h.recorder.Get(id)
		}
	} else {
		st, err = h.recorder.Get(id)
	}
	if err != nil {
		writeRecordingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.recordingView(r.Context(), st))
}

func (h *Handler) handleCancelRecording(w http.ResponseWriter, r *http.Request) {
	if err := h.recorder.Cancel(chi.URLParam(r, "id")); err != nil {
		writeRecordingError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
