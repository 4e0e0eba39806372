package handler

import (
	"errors"
	"net/http"
	"strings"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/questions"
)

const fallbackCategory = "General"

var difficulties = []string{"beginner", "intermediate", "expert"}

type rolesResponse struct {
	Roles        []questions.RoleInfo `json:"roles"`
	Default      string               `json:"default"`
	Difficulties []string             `json:"difficulties"`
}

func (h *Handler) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rolesResponse{
		Roles:        h.bank.RoleList(),
		Default:      h.bank.DefaultRole,
		Difficulties: difficulties,
	})
}

type questionsRequest struct {
	Role         string `json:"role"`
	Difficulty   string `json:"difficulty"`
	NumQuestions int    `json:"numQuestions"`
}

type questionsResponse struct {
	Role       string   `json:"role"`
	Difficulty string   `json:"difficulty"`
	Intro      string   `json:"intro"`
	Questions  []string `json:"questions"`
}

// handleQuestions starts an interview: it picks the questions and the
// interviewer's spoken introduction.
func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role := req.Role
	if !h.bank.HasRole(role) {
		role = h.bank.DefaultRole
	}
	difficulty := strings.ToLower(strings.TrimSpace(req.Difficulty))
	if difficulty == "" {
		difficulty = "intermediate"
	}
	n := req.NumQuestions
	if n <= 0 {
		n = h.config.NumQuestions
	}

	intro := appI18n.Td(r.Context(), "InterviewIntro", map[string]any{
		"Difficulty": difficulty,
		"Role":       h.bank.Title(role),
	})
	writeJSON(w, http.StatusOK, questionsResponse{
		Role:       role,
		Difficulty: difficulty,
		Intro:      intro,
		Questions:  h.bank.Generate(role, difficulty, n),
	})
}

type evaluateRequest struct {
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	Role           string `json:"role"`
	Difficulty     string `json:"difficulty"`
	QuestionNumber int    `json:"questionNumber"`
	TotalQuestions int    `json:"totalQuestions"`
	InputMode      string `json:"inputMode"`
}

func (h *Handler) handleEvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrQuestionAnswerRequired"))
		return
	}

	evalReq := llm.EvaluateRequest{
		Question:       req.Question,
		Answer:         req.Answer,
		Role:           req.Role,
		Difficulty:     req.Difficulty,
		QuestionNumber: req.QuestionNumber,
		TotalQuestions: req.TotalQuestions,
		InputMode:      model.ParseInputMode(req.InputMode),
	}
	if h.bank.HasRole(req.Role) {
		evalReq.Role = h.bank.Title(req.Role)
	}
	if entry, ok := h.bank.Lookup(req.Question); ok {
		evalReq.Context = entry.Context
		evalReq.ReferenceAnswer = entry.GoodAnswer
	}

	eval, err := h.grader.Evaluate(r.Context(), evalReq)
	if err != nil {
		if errors.Is(err, llm.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrQuestionAnswerRequired"))
			return
		}
		h.writeUpstreamError(w, r, evaluationService, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

type generateRequest struct {
	DocumentContent string `json:"documentContent"`
	Role            string `json:"role"`
	Difficulty      string `json:"difficulty"`
	FileName        string `json:"fileName"`
}

// handleGenerateQuestions writes questions tailored to an uploaded document.
// An unusable model reply is replaced by bank questions; upstream errors are
// reported.
func (h *Handler) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DocumentContent) == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "ErrDocumentRequired"))
		return
	}

	role := req.Role
	if h.bank.HasRole(role) {
		role = h.bank.Title(role)
	}
	gen, err := h.grader.GenerateFromDocument(r.Context(), llm.DocumentRequest{
		Content:    req.DocumentContent,
		Role:       role,
		Difficulty: req.Difficulty,
		FileName:   req.FileName,
	})
	switch {
	case errors.Is(err, llm.ErrMalformedResponse):
		gen = &llm.GeneratedQuestions{}
	case err != nil:
		h.writeUpstreamError(w, r, generationService, err)
		return
	}

	writeJSON(w, http.StatusOK, h.fillQuestions(gen, req.Role, req.Difficulty, llm.DocumentQuestionCount))
}

// fillQuestions trims gen to n questions, pads it from the role bank when
// short, and gives every question a category.
func (h *Handler) fillQuestions(gen *llm.GeneratedQuestions, role, difficulty string, n int) *llm.GeneratedQuestions {
	out := &llm.GeneratedQuestions{
		Questions:  make([]string, 0, n),
		Categories: make([]string, 0, n),
	}
	seen := make(map[string]bool)
	add := func(q, category string) {
		if len(out.Questions) >= n || seen[q] {
			return
		}
		if category == "" {
			category = fallbackCategory
		}
		seen[q] = true
		out.Questions = append(out.Questions, q)
		out.Categories = append(out.Categories, category)
	}

	for i, q := range gen.Questions {
		category := ""
		if i < len(gen.Categories) {
			category = strings.TrimSpace(gen.Categories[i])
		}
		add(q, category)
	}
	if len(out.Questions) < n {
		for _, q := range h.bank.Generate(role, difficulty, n) {
			add(q, fallbackCategory)
		}
	}
	if len(out.Questions) < n {
		for _, q := range h.bank.General {
			add(q, fallbackCategory)
		}
	}
	return out
}
