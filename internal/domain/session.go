package domain

import (
	"fmt"
	"regexp"
	"time"
)

// sessionIDPattern matches identifiers safe to embed in a file name. Anything
// containing path separators or traversal sequences fails the match.
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)

// SessionEvent is a single recorded tool-use decision. Events are append-only
// and immutable once recorded.
type SessionEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	ToolName  string    `json:"toolName,omitempty"`
	Decision  string    `json:"decision"`
	Score     int       `json:"score,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	Category  Category  `json:"category,omitempty"`
}

// SessionRecord is the bounded, ordered event history for one session id.
// History is FIFO-bounded: the oldest entries are evicted first once the
// configured maximum length is exceeded.
type SessionRecord struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	History      []SessionEvent `json:"history"`
}

// Trim drops the oldest events until the history is at most max entries long.
func (r *SessionRecord) Trim(max int) {
	if max <= 0 || len(r.History) <= max {
		return
	}
	r.History = append([]SessionEvent(nil), r.History[len(r.History)-max:]...)
}

// ValidateSessionID rejects identifiers that could escape the storage root or
// break file naming. Violations fail closed before any filesystem access.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("session id exceeds %d characters", MaxSessionIDLength)
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("session id contains characters outside [a-zA-Z0-9-_]")
	}
	return nil
}
