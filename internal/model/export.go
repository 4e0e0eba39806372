package model

import "time"

// SessionExport is the top-level JSON structure for interview result export.
type SessionExport struct {
	ExportedAt    time.Time       `json:"exported_at"`
	TotalSessions int             `json:"total_sessions"`
	Results       []ProfileResult `json:"results"`
}

// ProfileResult holds one interview session together with its owner.
type ProfileResult struct {
	UserID        string           `json:"user_id"`
	Alias         string           `json:"alias"`
	SessionNumber int              `json:"session_number"`
	Session       InterviewSession `json:"session"`
}
