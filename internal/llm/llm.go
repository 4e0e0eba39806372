package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/metrics"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/scoring"
	"github.com/pavelanni/interviewer/internal/upstream"
)

// DocumentQuestionCount is the number of questions generated from a document.
const DocumentQuestionCount = 8

const (
	defaultRole       = "General"
	defaultDifficulty = "Intermediate"
	maxListItems      = 3
	maxFillerWords    = 1000
)

var (
	// ErrInvalidRequest means the question or the answer is missing.
	ErrInvalidRequest = errors.New("question and answer are required")
	// ErrMalformedResponse means the model reply could not be used.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Config configures the OpenAI-compatible endpoint.
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	TranscriptionModel string
	Timeout            time.Duration
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	cfg     Config
	prompts *prompts.Set
}

// New creates a new LLM client. A missing API key is not an error here;
// every call reports upstream.ErrNotConfigured instead.
func New(cfg Config, set *prompts.Set) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = openai.Whisper1
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		cfg:     cfg,
		prompts: set,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// EvaluateRequest is one answer to grade.
type EvaluateRequest struct {
	Question        string
	Answer          string
	Role            string
	Difficulty      string
	QuestionNumber  int
	TotalQuestions  int
	InputMode       model.InputMode
	Context         string
	ReferenceAnswer string
}

// Evaluate grades a single answer. A reply that is not the expected JSON is
// replaced by FallbackEvaluation and does not produce an error.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (*model.Evaluation, error) {
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		return nil, ErrInvalidRequest
	}
	if !c.Configured() {
		return nil, upstream.ErrNotConfigured
	}
	if req.Role == "" {
		req.Role = defaultRole
	}
	if req.Difficulty == "" {
		req.Difficulty = defaultDifficulty
	}

	system, err := c.prompts.EvalSystem(req.InputMode)
	if err != nil {
		return nil, err
	}
	user, err := c.prompts.EvalUser(prompts.EvalData{
		Role:            req.Role,
		Difficulty:      req.Difficulty,
		Question:        req.Question,
		Context:         req.Context,
		ReferenceAnswer: req.ReferenceAnswer,
		Answer:          req.Answer,
		QuestionNumber:  req.QuestionNumber,
		TotalQuestions:  req.TotalQuestions,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.complete(ctx, system, user, 0.7)
	if err != nil {
		return nil, fmt.Errorf("evaluate answer: %w", err)
	}

	eval, err := ParseEvaluation(raw, req.InputMode)
	if err != nil {
		slog.Warn("unusable evaluation reply, using fallback", "error", err, "raw", raw)
		metrics.FallbackEvaluations.Inc()
		return FallbackEvaluation(req.InputMode), nil
	}
	return eval, nil
}

// DocumentRequest asks for questions tailored to an uploaded document.
type DocumentRequest struct {
	Content    string
	Role       string
	Difficulty string
	FileName   string
}

// GeneratedQuestions holds questions and their categories, index-aligned.
type GeneratedQuestions struct {
	Questions  []string `json:"questions"`
	Categories []string `json:"categories"`
}

// GenerateFromDocument asks the model for DocumentQuestionCount questions
// based on the document. ErrMalformedResponse is returned if the reply has
// no usable questions; callers fall back to the static banks.
func (c *Client) GenerateFromDocument(ctx context.Context, req DocumentRequest) (*GeneratedQuestions, error) {
	if !c.Configured() {
		return nil, upstream.ErrNotConfigured
	}
	if req.Role == "" {
		req.Role = defaultRole
	}
	if req.Difficulty == "" {
		req.Difficulty = defaultDifficulty
	}

	data := prompts.DocumentData{
		Role:       req.Role,
		Difficulty: req.Difficulty,
		FileName:   req.FileName,
		Content:    req.Content,
		Count:      DocumentQuestionCount,
	}
	system, err := c.prompts.DocumentSystem(data)
	if err != nil {
		return nil, err
	}
	user, err := c.prompts.DocumentUser(data)
	if err != nil {
		return nil, err
	}

	raw, err := c.complete(ctx, system, user, 0.7)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	var out GeneratedQuestions
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var qs, cats []string
	for i, q := range out.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		cat := ""
		if i < len(out.Categories) {
			cat = strings.TrimSpace(out.Categories[i])
		}
		qs = append(qs, q)
		cats = append(cats, cat)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrMalformedResponse)
	}
	return &GeneratedQuestions{Questions: qs, Categories: cats}, nil
}

// Transcribe converts recorded audio to text with the transcription model.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !c.Configured() {
		return "", upstream.ErrNotConfigured
	}
	if filename == "" {
		filename = "recording.webm"
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	err = classify("stt", err)
	metrics.ObserveUpstream("stt", start, err)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	err = classify("llm", err)
	metrics.ObserveUpstream("llm", start, err)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "{}", nil
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// classify turns an HTTP status carried by a go-openai error into a
// *upstream.StatusError.
func classify(service string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return upstream.FromStatus(service, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return upstream.FromStatus(service, reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	return err
}

var codeFenceRegex = regexp.MustCompile("(?i)```(json)?\n?")

// StripCodeFences removes markdown code fences around a model reply.
func StripCodeFences(s string) string {
	return strings.TrimSpace(codeFenceRegex.ReplaceAllString(s, ""))
}

type rawScores struct {
	Clarity       *float64 `json:"clarity"`
	Confidence    *float64 `json:"confidence"`
	Relevance     *float64 `json:"relevance"`
	Grammar       *float64 `json:"grammar"`
	Pronunciation *float64 `json:"pronunciation"`
}

type rawEvaluation struct {
	Scores              *rawScores `json:"scores"`
	Strengths           []string   `json:"strengths"`
	Improvements        []string   `json:"improvements"`
	Feedback            string     `json:"feedback"`
	FillerWordsCount    *float64   `json:"fillerWordsCount"`
	FillerWordsAnalysis string     `json:"fillerWordsAnalysis"`
}

// ParseEvaluation decodes a grading reply. The four shared scores are
// required; they are clamped to 0-10 and the lists are cut to three items.
// Voice-only fields are dropped for text answers.
func ParseEvaluation(raw string, mode model.InputMode) (*model.Evaluation, error) {
	var r rawEvaluation
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if r.Scores == nil {
		return nil, fmt.Errorf("%w: missing scores", ErrMalformedResponse)
	}
	s := r.Scores
	if s.Clarity == nil || s.Confidence == nil || s.Relevance == nil || s.Grammar == nil {
		return nil, fmt.Errorf("%w: incomplete scores", ErrMalformedResponse)
	}

	eval := &model.Evaluation{
		Scores: model.Scores{
			Clarity:    scoring.Clamp(*s.Clarity, 0, 10),
			Confidence: scoring.Clamp(*s.Confidence, 0, 10),
			Relevance:  scoring.Clamp(*s.Relevance, 0, 10),
			Grammar:    scoring.Clamp(*s.Grammar, 0, 10),
		},
		Strengths:    firstN(r.Strengths, maxListItems),
		Improvements: firstN(r.Improvements, maxListItems),
		Feedback:     strings.TrimSpace(r.Feedback),
	}

	if mode == model.InputVoice {
		if s.Pronunciation != nil {
			p := scoring.Clamp(*s.Pronunciation, 0, 10)
			eval.Scores.Pronunciation = &p
		}
		if r.FillerWordsCount != nil {
			n := int(scoring.Clamp(math.Round(*r.FillerWordsCount), 0, maxFillerWords))
			eval.FillerWordsCount = &n
		}
		eval.FillerWordsAnalysis = strings.TrimSpace(r.FillerWordsAnalysis)
	}
	return eval, nil
}

// FallbackEvaluation is returned when the model reply cannot be parsed.
func FallbackEvaluation(mode model.InputMode) *model.Evaluation {
	eval := &model.Evaluation{
		Scores: model.Scores{
			Clarity:    7,
			Confidence: 7,
			Relevance:  7,
			Grammar:    8,
		},
		Strengths: []string{
			"Good attempt at answering the question",
			"Demonstrated understanding of the topic",
			"Clear communication style",
		},
		Improvements: []string{
			"Could provide more specific examples",
			"Consider structuring the answer better",
			"Add more depth to key points",
		},
		Feedback: "Your response shows good understanding of the topic. To improve, focus on providing more specific examples and structuring your answer with clear introduction, body, and conclusion.",
	}
	if mode == model.InputVoice {
		p := 7.0
		n := 0
		eval.Scores.Pronunciation = &p
		eval.FillerWordsCount = &n
	}
	return eval
}

func firstN(items []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}
