package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/model"
)

const sessionColumns = `id, user_id, role, difficulty, mode,
	confidence_score, grammar_score, relevance_score, clarity_score, overall_score,
	responses, created_at`

// CreateInterviewSession stores a finished interview. ID and CreatedAt are
// assigned here. Every call inserts a new row.
func (s *Store) CreateInterviewSession(sess *model.InterviewSession) error {
	responses, err := json.Marshal(sess.Responses)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}
	if sess.Role == "" {
		sess.Role = "unknown"
	}
	if sess.Difficulty == "" {
		sess.Difficulty = "unknown"
	}
	if sess.Mode == "" {
		sess.Mode = "practice"
	}
	sess.ID = uuid.NewString()
	sess.CreatedAt = time.Now().UTC()

	_, err = s.db.Exec(
		`INSERT INTO interview_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Role, sess.Difficulty, sess.Mode,
		sess.ConfidenceScore, sess.GrammarScore, sess.RelevanceScore, sess.ClarityScore, sess.OverallScore,
		string(responses), sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interview session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.InterviewSession, error) {
	var sess model.InterviewSession
	var responses string
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Role, &sess.Difficulty, &sess.Mode,
		&sess.ConfidenceScore, &sess.GrammarScore, &sess.RelevanceScore, &sess.ClarityScore, &sess.OverallScore,
		&responses, &sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(responses), &sess.Responses); err != nil {
		return nil, fmt.Errorf("decode responses of session %s: %w", sess.ID, err)
	}
	return &sess, nil
}

// GetInterviewSession returns a session by ID, or ErrNotFound.
func (s *Store) GetInterviewSession(id string) (*model.InterviewSession, error) {
	sess, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// ListInterviewSessions returns a user's sessions, newest first.
func (s *Store) ListInterviewSessions(userID string) ([]model.InterviewSession, error) {
	return s.querySessions(
		`SELECT `+sessionColumns+` FROM interview_sessions
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID,
	)
}

// ListAllInterviewSessions returns every session, oldest first.
func (s *Store) ListAllInterviewSessions() ([]model.InterviewSession, error) {
	return s.querySessions(
		`SELECT ` + sessionColumns + ` FROM interview_sessions ORDER BY created_at, rowid`,
	)
}

func (s *Store) querySessions(query string, args ...any) ([]model.InterviewSession, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.InterviewSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Progress summarizes a user's sessions.
func (s *Store) Progress(userID string) (model.Progress, error) {
	p := model.Progress{SessionsByRole: make(map[string]int)}

	var avg sql.NullFloat64
	var best sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COUNT(*), AVG(overall_score), MAX(overall_score)
		 FROM interview_sessions WHERE user_id = ?`, userID,
	).Scan(&p.TotalSessions, &avg, &best)
	if err != nil {
		return p, fmt.Errorf("session totals: %w", err)
	}
	if avg.Valid {
		p.AverageScore = int(math.Round(avg.Float64))
	}
	if best.Valid {
		p.BestScore = int(best.Int64)
	}

	rows, err := s.db.Query(
		`SELECT role, COUNT(*) FROM interview_sessions WHERE user_id = ? GROUP BY role`, userID,
	)
	if err != nil {
		return p, fmt.Errorf("sessions by role: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return p, err
		}
		p.SessionsByRole[role] = n
	}
	return p, rows.Err()
}
