package model

import (
	"context"
	"time"
)

// User is an interview candidate profile. Profiles are anonymous: an alias
// is all the service knows about a person.
type User struct {
	ID        string    `json:"id"`
	Alias     string    `json:"alias"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthSession represents a bearer token issued to a profile.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// InputMode is how a candidate delivered an answer.
type InputMode string

const (
	InputText  InputMode = "text"
	InputVoice InputMode = "voice"
)

// ParseInputMode maps free-form input to a known mode. Anything that is not
// "voice" is graded as text.
func ParseInputMode(s string) InputMode {
	if InputMode(s) == InputVoice {
		return InputVoice
	}
	return InputText
}

// Scores holds the per-answer rubric, each on a 0-10 scale. Pronunciation is
// only reported for voice answers.
type Scores struct {
	Clarity       float64  `json:"clarity"`
	Confidence    float64  `json:"confidence"`
	Relevance     float64  `json:"relevance"`
	Grammar       float64  `json:"grammar"`
	Pronunciation *float64 `json:"pronunciation,omitempty"`
}

// Evaluation is the graded result for one answer.
type Evaluation struct {
	Scores              Scores   `json:"scores"`
	Strengths           []string `json:"strengths"`
	Improvements        []string `json:"improvements"`
	Feedback            string   `json:"feedback"`
	FillerWordsCount    *int     `json:"fillerWordsCount,omitempty"`
	FillerWordsAnalysis string   `json:"fillerWordsAnalysis,omitempty"`
}

// QuestionResponse is one submitted answer together with its evaluation.
type QuestionResponse struct {
	Question       string      `json:"question"`
	Transcript     string      `json:"transcript"`
	Evaluation     *Evaluation `json:"evaluation,omitempty"`
	QuestionNumber int         `json:"questionNumber"`
}

// InterviewSession is the persisted summary of a finished interview.
type InterviewSession struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	Role            string             `json:"role"`
	Difficulty      string             `json:"difficulty"`
	Mode            string             `json:"mode"`
	ConfidenceScore int                `json:"confidence_score"`
	GrammarScore    int                `json:"grammar_score"`
	RelevanceScore  int                `json:"relevance_score"`
	ClarityScore    int                `json:"clarity_score"`
	OverallScore    int                `json:"overall_score"`
	Responses       []QuestionResponse `json:"responses"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Progress summarizes a user's interview history.
type Progress struct {
	TotalSessions  int            `json:"total_sessions"`
	AverageScore   int            `json:"average_score"`
	BestScore      int            `json:"best_score"`
	SessionsByRole map[string]int `json:"sessions_by_role"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	NumQuestions  int      // questions per generated interview
	CORSOrigins   []string // allowed origins, "*" for any
	LLMKeyName    string   // env var reported when the LLM key is missing
	TTSKeyName    string   // env var reported when the TTS key is missing
	DefaultVoice  string
	MaxAudioBytes int64
}
