package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/interviewer/internal/model"
)

//go:embed templates/*.txt
var templatesFS embed.FS

const (
	maxAnswerRunes   = 10000
	maxDocumentRunes = 15000
)

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
	documentRegex           = regexp.MustCompile(`(?i)</?\s*document\b[^>]*>`)
)

// Set is a parsed collection of prompt templates.
type Set struct {
	evalText  *template.Template
	evalVoice *template.Template
	evalUser  *template.Template
	docSystem *template.Template
	docUser   *template.Template
}

// EvalData holds template data for answer evaluation prompts.
type EvalData struct {
	Role            string
	Difficulty      string
	Question        string
	Context         string
	ReferenceAnswer string
	Answer          string
	QuestionNumber  int
	TotalQuestions  int
}

// DocumentData holds template data for document question generation.
type DocumentData struct {
	Role       string
	Difficulty string
	FileName   string
	Content    string
	Count      int
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default returns the templates embedded in the binary.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(templatesFS)
	})
	return defaultSet, defaultErr
}

// Load parses the prompt templates from fsys, which must contain a
// templates/ directory.
func Load(fsys fs.FS) (*Set, error) {
	var s Set
	files := []struct {
		name string
		dst  **template.Template
	}{
		{"eval_text.txt", &s.evalText},
		{"eval_voice.txt", &s.evalVoice},
		{"eval_user.txt", &s.evalUser},
		{"document_system.txt", &s.docSystem},
		{"document_user.txt", &s.docUser},
	}
	for _, f := range files {
		path := "templates/" + f.name
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		tmpl, err := template.New(f.name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", path, err)
		}
		*f.dst = tmpl
	}
	return &s, nil
}

// EvalSystem returns the grading instructions for the given input mode.
// Voice answers are additionally graded on pronunciation and filler words.
func (s *Set) EvalSystem(mode model.InputMode) (string, error) {
	if mode == model.InputVoice {
		return execute(s.evalVoice, nil)
	}
	return execute(s.evalText, nil)
}

// EvalUser renders the per-answer prompt. The answer is sanitized first.
func (s *Set) EvalUser(d EvalData) (string, error) {
	d.Answer = sanitizeAnswer(d.Answer)
	return execute(s.evalUser, d)
}

// DocumentSystem renders the question generation instructions.
func (s *Set) DocumentSystem(d DocumentData) (string, error) {
	return execute(s.docSystem, d)
}

// DocumentUser renders the document prompt. The content is sanitized and
// truncated first.
func (s *Set) DocumentUser(d DocumentData) (string, error) {
	d.Content = sanitizeDocument(d.Content)
	return execute(s.docUser, d)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}
	return truncate(answer, maxAnswerRunes, "\n\n[Answer truncated due to length]")
}

func sanitizeDocument(content string) string {
	content = documentRegex.ReplaceAllString(content, "")
	content = systemInstructionsRegex.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)
	return truncate(content, maxDocumentRunes, "\n\n[Document truncated due to length]")
}

func truncate(s string, limit int, marker string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + marker
}
