package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/questions"
	"github.com/pavelanni/interviewer/internal/store"
	"github.com/pavelanni/interviewer/internal/tts"
	"github.com/pavelanni/interviewer/internal/upstream"
	"github.com/pavelanni/interviewer/internal/voice"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeGrader struct {
	mu      sync.Mutex
	eval    *model.Evaluation
	err     error
	gen     *llm.GeneratedQuestions
	genErr  error
	lastReq llm.EvaluateRequest
}

func (f *fakeGrader) Evaluate(_ context.Context, req llm.EvaluateRequest) (*model.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.eval, f.err
}

func (f *fakeGrader) GenerateFromDocument(_ context.Context, _ llm.DocumentRequest) (*llm.GeneratedQuestions, error) {
	return f.gen, f.genErr
}

type fakeSpeaker struct {
	mu        sync.Mutex
	err       error
	lastText  string
	lastVoice string
}

func (f *fakeSpeaker) Speak(_ context.Context, text, voice string) (*tts.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText, f.lastVoice = text, voice
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Result{AudioContent: base64.StdEncoding.EncodeToString([]byte("mp3")), Format: "mp3"}, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

const testMaxRecordings = 3

type testEnv struct {
	h       *Handler
	router  http.Handler
	store   *store.Store
	grader  *fakeGrader
	speaker *fakeSpeaker
	tr      *fakeTranscriber
}

func newTestEnv(t *testing.T, adminHash []byte) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	env := &testEnv{
		store:   s,
		grader:  &fakeGrader{},
		speaker: &fakeSpeaker{},
		tr:      &fakeTranscriber{text: "I built things"},
	}
	rec := voice.NewManager(env.tr, voice.Config{MaxActive: testMaxRecordings})
	t.Cleanup(rec.Close)

	env.h = New(Deps{
		Store:       s,
		Bank:        questions.Default(),
		Grader:      env.grader,
		Speaker:     env.speaker,
		Transcriber: env.tr,
		Recorder:    rec,
		AdminHash:   adminHash,
		Config: model.ServerConfig{
			LLMKeyName: "OPENAI_API_KEY",
			TTSKeyName: "ELEVENLABS_API_KEY",
		},
	})

	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	env.h.Routes(r)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Errorf("status = %q", got)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/evaluate-answer", nil)
		req.Header.Set("Origin", "https://example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type, authorization")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})

	t.Run("plain options", func(t *testing.T) {
		rec := env.do(t, http.MethodOptions, "/api/anything/at/all", nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", rec.Body.String())
		}
	})

	t.Run("actual request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
		req.Header.Set("Origin", "https://example.com")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})
}

func TestRoles(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/roles", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[rolesResponse](t, rec)
	if resp.Default != "software-dev" {
		t.Errorf("default = %q", resp.Default)
	}
	if len(resp.Roles) != 5 {
		t.Errorf("got %d roles, want 5", len(resp.Roles))
	}
	if len(resp.Difficulties) != 3 {
		t.Errorf("difficulties = %v", resp.Difficulties)
	}
}

func TestQuestions(t *testing.T) {
	env := newTestEnv(t, nil)
	bank := questions.Default()

	tests := []struct {
		name     string
		req      questionsRequest
		wantRole string
		wantN    int
	}{
		{"defaults", questionsRequest{}, "software-dev", 8},
		{"known role", questionsRequest{Role: "ux-design", Difficulty: "Expert", NumQuestions: 6}, "ux-design", 6},
		{"unknown role", questionsRequest{Role: "astronaut", NumQuestions: 5}, "software-dev", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/questions", tt.req, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			resp := decode[questionsResponse](t, rec)
			if resp.Role != tt.wantRole {
				t.Errorf("role = %q, want %q", resp.Role, tt.wantRole)
			}
			if len(resp.Questions) != tt.wantN {
				t.Errorf("got %d questions, want %d", len(resp.Questions), tt.wantN)
			}
			if !strings.Contains(resp.Intro, bank.Title(tt.wantRole)) {
				t.Errorf("intro %q does not name the role", resp.Intro)
			}
		})
	}
}

func TestEvaluateAnswer(t *testing.T) {
	ux := questions.Default().Roles["ux-design"].Questions[0]

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.grader.eval = llm.FallbackEvaluation(model.InputText)

		rec := env.do(t, http.MethodPost, "/api/evaluate-answer", evaluateRequest{
			Question:   ux.Text,
			Answer:     "I start with user interviews.",
			Role:       "ux-design",
			Difficulty: "beginner",
			InputMode:  "voice",
		}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		eval := decode[model.Evaluation](t, rec)
		if eval.Scores.Grammar != 8 {
			t.Errorf("grammar = %v", eval.Scores.Grammar)
		}

		got := env.grader.lastReq
		if got.Role != questions.Default().Title("ux-design") {
			t.Errorf("role sent to grader = %q", got.Role)
		}
		if got.InputMode != model.InputVoice {
			t.Errorf("input mode = %q", got.InputMode)
		}
		if got.Context != ux.Context || got.ReferenceAnswer != ux.GoodAnswer {
			t.Error("bank hints were not passed to the grader")
		}
	})

	tests := []struct {
		name       string
		req        evaluateRequest
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "missing answer",
			req:        evaluateRequest{Question: "Why?"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Question and answer are required",
		},
		{
			name:       "not configured",
			req:        evaluateRequest{Question: "Why?", Answer: "Because."},
			err:        upstream.ErrNotConfigured,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "OPENAI_API_KEY is not configured",
		},
		{
			name:       "rate limited",
			req:        evaluateRequest{Question: "Why?", Answer: "Because."},
			err:        upstream.FromStatus("llm", http.StatusTooManyRequests, ""),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Rate limit exceeded. Please try again in a moment.",
		},
		{
			name:       "quota",
			req:        evaluateRequest{Question: "Why?", Answer: "Because."},
			err:        upstream.FromStatus("llm", http.StatusPaymentRequired, ""),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "AI credits exhausted. Please add credits to continue.",
		},
		{
			name:       "other status",
			req:        evaluateRequest{Question: "Why?", Answer: "Because."},
			err:        upstream.FromStatus("llm", http.StatusServiceUnavailable, "down"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "AI evaluation error: 503",
		},
		{
			name:       "transport",
			req:        evaluateRequest{Question: "Why?", Answer: "Because."},
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to analyze your response. Please try again.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.grader.err = tt.err
			rec := env.do(t, http.MethodPost, "/api/evaluate-answer", tt.req, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if msg := errorMessage(t, rec); msg != tt.wantMsg {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/api/evaluate-answer", "{not json", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestGenerateQuestions(t *testing.T) {
	tests := []struct {
		name      string
		gen       *llm.GeneratedQuestions
		genErr    error
		wantFirst string
		wantCat   string
	}{
		{
			name: "full reply",
			gen: &llm.GeneratedQuestions{
				Questions:  []string{"Q1", "Q2", "Q3", "Q4", "Q5", "Q6", "Q7", "Q8", "Q9"},
				Categories: []string{"Technical", "Technical", "Behavioral", "Technical", "Technical", "Technical", "Technical", "Technical", "Technical"},
			},
			wantFirst: "Q1",
			wantCat:   "Technical",
		},
		{
			name:      "short reply",
			gen:       &llm.GeneratedQuestions{Questions: []string{"Q1", "Q2", "Q3"}},
			wantFirst: "Q1",
			wantCat:   fallbackCategory,
		},
		{
			name:    "malformed reply",
			genErr:  llm.ErrMalformedResponse,
			wantCat: fallbackCategory,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.grader.gen, env.grader.genErr = tt.gen, tt.genErr

			rec := env.do(t, http.MethodPost, "/api/generate-questions", generateRequest{
				DocumentContent: "Five years of Go.",
				Role:            "software-dev",
				FileName:        "resume.txt",
			}, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			resp := decode[llm.GeneratedQuestions](t, rec)
			if len(resp.Questions) != llm.DocumentQuestionCount || len(resp.Categories) != llm.DocumentQuestionCount {
				t.Fatalf("got %d questions and %d categories", len(resp.Questions), len(resp.Categories))
			}
			if tt.wantFirst != "" && resp.Questions[0] != tt.wantFirst {
				t.Errorf("first question = %q", resp.Questions[0])
			}
			if resp.Categories[len(resp.Categories)-1] != tt.wantCat {
				t.Errorf("last category = %q, want %q", resp.Categories[len(resp.Categories)-1], tt.wantCat)
			}
			seen := make(map[string]bool)
			for _, q := range resp.Questions {
				if seen[q] {
					t.Errorf("duplicate question %q", q)
				}
				seen[q] = true
			}
		})
	}

	t.Run("missing document", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/api/generate-questions", generateRequest{Role: "software-dev"}, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.grader.genErr = upstream.FromStatus("llm", http.StatusBadGateway, "")
		rec := env.do(t, http.MethodPost, "/api/generate-questions", generateRequest{DocumentContent: "x"}, "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", rec.Code)
		}
		if msg := errorMessage(t, rec); msg != "Question generation error: 502" {
			t.Errorf("error = %q", msg)
		}
	})
}

func TestTextToSpeech(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/text-to-speech", speechRequest{Text: "Hello"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decode[tts.Result](t, rec)
	if res.Format != "mp3" || res.AudioContent == "" {
		t.Errorf("result = %+v", res)
	}
	if env.speaker.lastVoice != tts.DefaultVoice {
		t.Errorf("voice = %q, want default", env.speaker.lastVoice)
	}

	rec = env.do(t, http.MethodPost, "/api/text-to-speech", speechRequest{Text: " "}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d", rec.Code)
	}

	env.speaker.err = upstream.ErrNotConfigured
	rec = env.do(t, http.MethodPost, "/api/text-to-speech", speechRequest{Text: "Hello"}, "")
	if msg := errorMessage(t, rec); msg != "ELEVENLABS_API_KEY is not configured" {
		t.Errorf("error = %q", msg)
	}

	env.speaker.err = upstream.FromStatus("tts", http.StatusInternalServerError, "")
	rec = env.do(t, http.MethodPost, "/api/text-to-speech", speechRequest{Text: "Hello"}, "")
	if msg := errorMessage(t, rec); msg != "Text-to-speech error: 500" {
		t.Errorf("error = %q", msg)
	}
}

func TestSpeechToText(t *testing.T) {
	env := newTestEnv(t, nil)
	audio := base64.StdEncoding.EncodeToString([]byte("webm-bytes"))

	rec := env.do(t, http.MethodPost, "/api/speech-to-text", transcribeRequest{Audio: audio}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decode[transcribeResponse](t, rec)
	if resp.Text != "I built things" || resp.Words != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Message != "Transcribed 3 words." {
		t.Errorf("message = %q", resp.Message)
	}

	tests := []struct {
		name       string
		req        transcribeRequest
		text       string
		wantStatus int
	}{
		{"missing audio", transcribeRequest{}, "x", http.StatusBadRequest},
		{"bad base64", transcribeRequest{Audio: "!!!"}, "x", http.StatusBadRequest},
		{"silence", transcribeRequest{Audio: audio}, "  ", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.tr.text = tt.text
			rec := env.do(t, http.MethodPost, "/api/speech-to-text", tt.req, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRecordingFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/recordings", nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d", rec.Code)
	}
	started := decode[recordingResponse](t, rec)
	if started.ID == "" || started.State != voice.StateRecording {
		t.Fatalf("started = %+v", started)
	}
	base := "/api/recordings/" + started.ID

	for _, chunk := range []string{"chunk-1", "chunk-2"} {
		rec = env.do(t, http.MethodPost, base+"/chunks", []byte(chunk), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("append status = %d", rec.Code)
		}
	}
	if got := decode[recordingResponse](t, rec).Bytes; got != 14 {
		t.Errorf("bytes = %d, want 14", got)
	}

	rec = env.do(t, http.MethodPost, base+"/stop", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, base+"?wait=true", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	done := decode[recordingResponse](t, rec)
	if done.State != voice.StateDone || done.Transcript != "I built things" {
		t.Errorf("done = %+v", done)
	}
	if done.Message != "Transcribed 3 words." {
		t.Errorf("message = %q", done.Message)
	}

	rec = env.do(t, http.MethodPost, base+"/chunks", []byte("late"), "")
	if rec.Code != http.StatusConflict {
		t.Errorf("append after stop status = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, base, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, base, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestRecordingLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	var ids []string
	for range testMaxRecordings {
		rec := env.do(t, http.MethodPost, "/api/recordings", nil, "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("start status = %d", rec.Code)
		}
		ids = append(ids, decode[recordingResponse](t, rec).ID)
	}

	rec := env.do(t, http.MethodPost, "/api/recordings", nil, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("start over limit status = %d, want 429", rec.Code)
	}
	if got := errorMessage(t, rec); got != "Too many recordings in progress. Please try again shortly." {
		t.Errorf("error = %q", got)
	}

	rec = env.do(t, http.MethodDelete, "/api/recordings/"+ids[0], nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/recordings", nil, "")
	if rec.Code != http.StatusCreated {
		t.Errorf("start after delete status = %d", rec.Code)
	}
}

func TestRecordingWithoutSpeech(t *testing.T) {
	env := newTestEnv(t, nil)

	id := decode[recordingResponse](t, env.do(t, http.MethodPost, "/api/recordings", nil, "")).ID
	rec := env.do(t, http.MethodPost, "/api/recordings/"+id+"/stop", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d", rec.Code)
	}
	st := decode[recordingResponse](t, rec)
	if st.State != voice.StateFailed {
		t.Errorf("state = %q, want failed", st.State)
	}
	if st.Error != "No transcription received. Please speak more clearly." {
		t.Errorf("error = %q", st.Error)
	}
}

func createProfile(t *testing.T, env *testEnv, alias string) profileResponse {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/profiles", profileRequest{Alias: alias}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile status = %d: %s", rec.Code, rec.Body)
	}
	return decode[profileResponse](t, rec)
}

func sampleResponses() []model.QuestionResponse {
	return []model.QuestionResponse{{
		Question:       "Tell me about yourself.",
		Transcript:     "I build backend services.",
		QuestionNumber: 1,
		Evaluation: &model.Evaluation{
			Scores:       model.Scores{Clarity: 7, Confidence: 7, Relevance: 7, Grammar: 8},
			Strengths:    []string{"Concise"},
			Improvements: []string{"Add metrics"},
			Feedback:     "Solid opening.",
		},
	}}
}

func TestProfiles(t *testing.T) {
	env := newTestEnv(t, nil)

	p := createProfile(t, env, "  sam  ")
	if p.UserID == "" || p.Token == "" || p.Alias != "sam" {
		t.Errorf("profile = %+v", p)
	}

	rec := env.do(t, http.MethodPost, "/api/profiles", profileRequest{Alias: " "}, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank alias status = %d", rec.Code)
	}
}

func TestSessionsRequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/api/sessions", "/api/progress"} {
		rec := env.do(t, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d", path, rec.Code)
		}
		rec = env.do(t, http.MethodGet, path, nil, "bogus")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad token = %d", path, rec.Code)
		}
	}
}

func TestSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	p := createProfile(t, env, "kim")

	rec := env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{Role: "software-dev"}, p.Token)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty responses status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{
		Role:       "software-dev",
		Difficulty: "intermediate",
		Mode:       "text",
		Responses:  sampleResponses(),
	}, p.Token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	saved := decode[model.InterviewSession](t, rec)
	if saved.UserID != p.UserID {
		t.Errorf("user = %q, want %q", saved.UserID, p.UserID)
	}
	if saved.ConfidenceScore != 70 || saved.GrammarScore != 80 || saved.OverallScore != 73 {
		t.Errorf("scores = %d/%d/%d", saved.ConfidenceScore, saved.GrammarScore, saved.OverallScore)
	}

	rec = env.do(t, http.MethodGet, "/api/sessions", nil, p.Token)
	list := decode[map[string][]model.InterviewSession](t, rec)["sessions"]
	if len(list) != 1 || list[0].ID != saved.ID {
		t.Errorf("list = %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/sessions/"+saved.ID, nil, p.Token)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	other := createProfile(t, env, "intruder")
	rec = env.do(t, http.MethodGet, "/api/sessions/"+saved.ID, nil, other.Token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other user's session status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/sessions/missing", nil, p.Token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/progress", nil, p.Token)
	progress := decode[model.Progress](t, rec)
	if progress.TotalSessions != 1 || progress.BestScore != 73 || progress.SessionsByRole["software-dev"] != 1 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestSessionFeedback(t *testing.T) {
	env := newTestEnv(t, nil)
	p := createProfile(t, env, "lee")

	rec := env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{Responses: sampleResponses()}, p.Token)
	id := decode[model.InterviewSession](t, rec).ID

	rec = env.do(t, http.MethodGet, "/api/sessions/"+id+"/feedback", nil, p.Token)
	fb := decode[feedbackResponse](t, rec)
	if !strings.Contains(fb.Narration, "73 percent") || !strings.HasSuffix(fb.Narration, " Solid opening.") {
		t.Errorf("narration = %q", fb.Narration)
	}
	if len(fb.Strengths) != 1 || fb.Strengths[0] != "Concise" {
		t.Errorf("strengths = %v", fb.Strengths)
	}

	rec = env.do(t, http.MethodPost, "/api/sessions/"+id+"/feedback-audio", speechRequest{Voice: "onyx"}, p.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("feedback-audio status = %d: %s", rec.Code, rec.Body)
	}
	withAudio := decode[feedbackResponse](t, rec)
	if withAudio.AudioContent == "" || withAudio.Format != "mp3" {
		t.Errorf("audio missing: %+v", withAudio)
	}
	if env.speaker.lastText != fb.Narration || env.speaker.lastVoice != "onyx" {
		t.Errorf("speaker got %q / %q", env.speaker.lastText, env.speaker.lastVoice)
	}

	tests := []struct {
		name          string
		body          string
		contentLength int64
		wantStatus    int
	}{
		{"no body", "", 0, http.StatusOK},
		{"chunked empty body", "", -1, http.StatusOK},
		{"chunked whitespace", " \n", -1, http.StatusOK},
		{"malformed body", "{", -1, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.speaker.lastVoice = ""
			req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/feedback-audio", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			req.Header.Set("Authorization", "Bearer "+p.Token)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantStatus == http.StatusOK && env.speaker.lastVoice != tts.DefaultVoice {
				t.Errorf("voice = %q, want default %q", env.speaker.lastVoice, tts.DefaultVoice)
			}
		})
	}
}

func TestFeedbackPlaceholder(t *testing.T) {
	sess := &model.InterviewSession{Responses: []model.QuestionResponse{{Question: "q"}}}
	fb := feedback(context.Background(), sess)
	if len(fb.Strengths) != 1 || fb.Strengths[0] != "Complete an interview to see feedback" {
		t.Errorf("strengths = %v", fb.Strengths)
	}
	if len(fb.Improvements) != 1 {
		t.Errorf("improvements = %v", fb.Improvements)
	}
}

func TestAdminExport(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	exportReq := func(user, pass string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/export", nil)
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		return req
	}

	t.Run("disabled without hash", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, exportReq("admin", ""))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})

	env := newTestEnv(t, hash)
	p := createProfile(t, env, "ann")
	for i := 0; i < 2; i++ {
		env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{Responses: sampleResponses()}, p.Token)
	}

	tests := []struct {
		name       string
		user, pass string
		wantStatus int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "root", "s3cret", http.StatusUnauthorized},
		{"ok", "admin", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, exportReq(tt.user, tt.pass))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			exp := decode[model.SessionExport](t, rec)
			if exp.TotalSessions != 2 || exp.Results[1].SessionNumber != 2 || exp.Results[0].Alias != "ann" {
				t.Errorf("export = %+v", exp)
			}
			if time.Since(exp.ExportedAt) > time.Minute {
				t.Errorf("exported_at = %v", exp.ExportedAt)
			}
		})
	}
}
