package store

import (
	"fmt"

	"github.com/pavelanni/interviewer/internal/model"
)

// ExportAllSessions builds export-ready results from all sessions, oldest
// first, numbering each profile's sessions from 1.
func (s *Store) ExportAllSessions() ([]model.ProfileResult, error) {
	sessions, err := s.ListAllInterviewSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessionCount := make(map[string]int)
	aliases := make(map[string]string)

	results := make([]model.ProfileResult, 0, len(sessions))
	for _, sess := range sessions {
		sessionCount[sess.UserID]++

		alias, ok := aliases[sess.UserID]
		if !ok {
			user, err := s.GetUserByID(sess.UserID)
			if err != nil {
				return nil, fmt.Errorf("get user %s: %w", sess.UserID, err)
			}
			if user != nil {
				alias = user.Alias
			}
			aliases[sess.UserID] = alias
		}

		results = append(results, model.ProfileResult{
			UserID:        sess.UserID,
			Alias:         alias,
			SessionNumber: sessionCount[sess.UserID],
			Session:       sess,
		})
	}
	return results, nil
}
