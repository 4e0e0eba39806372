// Package questions holds the static interview question banks and selects
// questions for a session.
package questions

import (
	"embed"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed banks/default.yaml
var banksFS embed.FS

// Entry is a single role-specific question. Context and GoodAnswer are
// optional grading hints.
type Entry struct {
	Text       string `yaml:"text" json:"text"`
	Context    string `yaml:"context,omitempty" json:"context,omitempty"`
	GoodAnswer string `yaml:"good_answer,omitempty" json:"good_answer,omitempty"`
}

// Role is a role bank: a title and its questions.
type Role struct {
	Title     string  `yaml:"title" json:"title"`
	Questions []Entry `yaml:"questions" json:"questions"`
}

// RoleInfo describes a role bank for listing.
type RoleInfo struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Questions int    `json:"questions"`
}

// Bank is a complete set of question banks.
type Bank struct {
	DefaultRole string          `yaml:"default_role"`
	WarmUp      []string        `yaml:"warm_up"`
	General     []string        `yaml:"general"`
	Roles       map[string]Role `yaml:"roles"`
}

var (
	defaultOnce sync.Once
	defaultBank *Bank
)

// Default returns the built-in banks. The returned bank is shared; use
// Clone before merging into it.
func Default() *Bank {
	defaultOnce.Do(func() {
		data, err := banksFS.ReadFile("banks/default.yaml")
		if err != nil {
			panic(fmt.Sprintf("read embedded banks: %v", err))
		}
		b, err := Parse(data)
		if err != nil {
			panic(fmt.Sprintf("parse embedded banks: %v", err))
		}
		defaultBank = b
	})
	return defaultBank
}

// Parse decodes and validates a YAML bank.
func Parse(data []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile reads a YAML bank file. Extra bank files may omit warm-up and
// general questions; they only need at least one role.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(b.Roles) == 0 && len(b.WarmUp) == 0 && len(b.General) == 0 {
		return nil, fmt.Errorf("%s: no questions", path)
	}
	for key, r := range b.Roles {
		if len(r.Questions) == 0 {
			return nil, fmt.Errorf("%s: role %q has no questions", path, key)
		}
	}
	return &b, nil
}

func (b *Bank) validate() error {
	if len(b.WarmUp) == 0 {
		return fmt.Errorf("warm_up must not be empty")
	}
	if len(b.General) < 2 {
		return fmt.Errorf("general needs at least 2 questions, got %d", len(b.General))
	}
	if b.DefaultRole == "" {
		return fmt.Errorf("default_role is required")
	}
	def, ok := b.Roles[b.DefaultRole]
	if !ok {
		return fmt.Errorf("default_role %q has no bank", b.DefaultRole)
	}
	if len(def.Questions) == 0 {
		return fmt.Errorf("default role %q has no questions", b.DefaultRole)
	}
	return nil
}

// Clone returns a deep copy of b.
func (b *Bank) Clone() *Bank {
	c := &Bank{
		DefaultRole: b.DefaultRole,
		WarmUp:      append([]string(nil), b.WarmUp...),
		General:     append([]string(nil), b.General...),
		Roles:       make(map[string]Role, len(b.Roles)),
	}
	for k, r := range b.Roles {
		c.Roles[k] = Role{Title: r.Title, Questions: append([]Entry(nil), r.Questions...)}
	}
	return c
}

// Merge overlays other onto b. Non-empty warm-up and general lists replace
// b's, and roles replace roles with the same key.
func (b *Bank) Merge(other *Bank) error {
	if len(other.WarmUp) > 0 {
		b.WarmUp = append([]string(nil), other.WarmUp...)
	}
	if len(other.General) > 0 {
		b.General = append([]string(nil), other.General...)
	}
	if b.Roles == nil {
		b.Roles = make(map[string]Role)
	}
	for k, r := range other.Roles {
		b.Roles[k] = r
	}
	if other.DefaultRole != "" {
		b.DefaultRole = other.DefaultRole
	}
	return b.validate()
}

// RoleList lists the role banks sorted by key.
func (b *Bank) RoleList() []RoleInfo {
	keys := make([]string, 0, len(b.Roles))
	for k := range b.Roles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]RoleInfo, 0, len(keys))
	for _, k := range keys {
		r := b.Roles[k]
		out = append(out, RoleInfo{Key: k, Title: r.Title, Questions: len(r.Questions)})
	}
	return out
}

// HasRole reports whether role has its own bank.
func (b *Bank) HasRole(role string) bool {
	_, ok := b.Roles[role]
	return ok
}

// Title returns the display title for role, falling back to the key itself.
func (b *Bank) Title(role string) string {
	if r, ok := b.Roles[role]; ok && r.Title != "" {
		return r.Title
	}
	return role
}

// Lookup finds the role entry whose text is question, searching every role.
func (b *Bank) Lookup(question string) (Entry, bool) {
	for _, r := range b.Roles {
		for _, e := range r.Questions {
			if e.Text == question {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// RoleQuestions returns the question texts for role, or the default role's
// questions if role is unknown.
func (b *Bank) RoleQuestions(role string) []string {
	r, ok := b.Roles[role]
	if !ok {
		r = b.Roles[b.DefaultRole]
	}
	out := make([]string, len(r.Questions))
	for i, e := range r.Questions {
		out[i] = e.Text
	}
	return out
}

// Generate returns an interview: one random warm-up question, then
// max(1, n-3) shuffled questions from the role bank, then two shuffled
// general questions. For n <= 3 this returns more than n questions, and a
// role bank smaller than n-3 yields fewer. Difficulty does not affect
// selection.
func (b *Bank) Generate(role, difficulty string, n int) []string {
	_ = difficulty

	warmUp := b.WarmUp[rand.IntN(len(b.WarmUp))]

	numRole := max(1, n-3)
	roleQs := shuffle(b.RoleQuestions(role))
	if numRole > len(roleQs) {
		numRole = len(roleQs)
	}

	general := shuffle(b.General)
	numGeneral := min(2, len(general))

	out := make([]string, 0, 1+numRole+numGeneral)
	out = append(out, warmUp)
	out = append(out, roleQs[:numRole]...)
	out = append(out, general[:numGeneral]...)
	return out
}

func shuffle(in []string) []string {
	out := append([]string(nil), in...)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
