package domain

import (
	"errors"
	"time"
)

// Log levels accepted from clients.
const (
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"
)

// LogEntry is one application log record pushed by a user's services.
// Entries are append-only; only the retention sweeper removes them.
type LogEntry struct {
	ID        string         `json:"id"`
	Service   string         `json:"service"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId"`
}

// LogDayCount is one day's entry count in a metrics series.
type LogDayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// LogMetrics summarises a user's log volume over a trailing window.
type LogMetrics struct {
	Total   int            `json:"total"`
	ByLevel map[string]int `json:"byLevel"`
	ByDay   []LogDayCount  `json:"byDay"`
}

func ValidLogLevel(l string) bool {
	switch l {
	case LevelError, LevelWarn, LevelInfo, LevelDebug:
		return true
	}
	return false
}

// Validate checks the invariants required before persisting a log entry.
func (l LogEntry) Validate() error {
	if l.Service == "" {
		return errors.New("service is required")
	}
	if l.Message == "" {
		return errors.New("message is required")
	}
	if !ValidLogLevel(l.Level) {
		return errors.New("invalid level")
	}
	return nil
}
