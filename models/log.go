package models

import "time"

// Audit event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogEntry is one audit log record.
type LogEntry struct {
	ID          int       `json:"id"`
	UserID      *int      `json:"user_id"`
	EventType   string    `json:"event_type"`
	Description string    `json:"event_description"`
	Timestamp   time.Time `json:"timestamp"`
}

// LogFilter narrows a log listing.
type LogFilter struct {
	UserID    *int
	EventType string
	Limit     int
}
