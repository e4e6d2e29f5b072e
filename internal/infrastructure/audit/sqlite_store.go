// Package audit persists gate decisions to a local SQLite database.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	query_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	provider TEXT NOT NULL,
	score INTEGER NOT NULL,
	category TEXT NOT NULL,
	decision TEXT NOT NULL,
	reasoning TEXT NOT NULL,
	elapsed_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
`

// SQLiteStore is the ports.AuditStore implementation over a local database
// file. A single connection avoids writer contention on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.AuditStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record implements ports.AuditStore.
func (s *SQLiteStore) Record(entry ports.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO decisions
		 (timestamp, query_id, session_id, tool_name, provider, score, category, decision, reasoning, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(domain.TimestampFormat),
		entry.QueryID,
		entry.SessionID,
		entry.ToolName,
		entry.Provider,
		entry.Score,
		entry.Category,
		entry.Decision,
		entry.Reasoning,
		entry.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Recent implements ports.AuditStore. Entries come back newest first. When
// search is non-empty it filters on session id, tool name and decision.
func (s *SQLiteStore) Recent(limit int, search string) ([]ports.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT timestamp, query_id, session_id, tool_name, provider, score, category, decision, reasoning, elapsed_ms
	          FROM decisions`
	args := []interface{}{}
	if search != "" {
		query += ` WHERE session_id LIKE ? OR tool_name LIKE ? OR decision = ?`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, search)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var entries []ports.AuditEntry
	for rows.Next() {
		var entry ports.AuditEntry
		var ts string
		if err := rows.Scan(&ts, &entry.QueryID, &entry.SessionID, &entry.ToolName,
			&entry.Provider, &entry.Score, &entry.Category, &entry.Decision,
			&entry.Reasoning, &entry.ElapsedMS); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if parsed, err := time.Parse(domain.TimestampFormat, ts); err == nil {
			entry.Timestamp = parsed
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ExportJSON writes the newest limit entries as a JSON array.
func (s *SQLiteStore) ExportJSON(limit int) ([]byte, error) {
	entries, err := s.Recent(limit, "")
	if err != nil {
		return nil, err
	}
	type exported struct {
		Timestamp string `json:"timestamp"`
		QueryID   string `json:"queryId"`
		SessionID string `json:"sessionId"`
		ToolName  string `json:"toolName"`
		Provider  string `json:"provider"`
		Score     int    `json:"score"`
		Category  string `json:"category"`
		Decision  string `json:"decision"`
		Reasoning string `json:"reasoning"`
		ElapsedMS int64  `json:"elapsedMs"`
	}
	out := make([]exported, 0, len(entries))
	for _, e := range entries {
		out = append(out, exported{
			Timestamp: e.Timestamp.Format(domain.TimestampFormat),
			QueryID:   e.QueryID,
			SessionID: e.SessionID,
			ToolName:  e.ToolName,
			Provider:  e.Provider,
			Score:     e.Score,
			Category:  e.Category,
			Decision:  e.Decision,
			Reasoning: e.Reasoning,
			ElapsedMS: e.ElapsedMS,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// Clear implements ports.AuditStore.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM decisions`); err != nil {
		return fmt.Errorf("clear decisions: %w", err)
	}
	return nil
}

// Close implements ports.AuditStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// NopStore discards every entry. Used when auditing is disabled.
type NopStore struct{}

var _ ports.AuditStore = NopStore{}

func (NopStore) Record(ports.AuditEntry) error { return nil }

func (NopStore) Recent(int, string) ([]ports.AuditEntry, error) { return nil, nil }

func (NopStore) Clear() error { return nil }

func (NopStore) Close() error { return nil }
