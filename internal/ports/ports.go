// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the application core and external
// adapters (infrastructure). Following the Ports and Adapters (Hexagonal) pattern,
// these interfaces allow the application to remain independent of specific
// implementations like subprocess runners, HTTP clients, or storage engines.
package ports

import (
	"context"
	"time"

	"github.com/doeshing/toolgate/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// It is re-read on every query so configuration edits take effect without a
// restart (hot-reload semantics).
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// Backend is the single capability every judge implementation exposes.
// Query never returns an error for ordinary operational failures; the returned
// SafetyResult carries success/reasoning instead. Close releases any resident
// resources (a persistent subprocess in particular) and is safe to call twice.
type Backend interface {
	Name() string
	Query(ctx context.Context, prompt string) domain.SafetyResult
	Close() error
}

// BackendFactory constructs a backend for a provider configuration.
// Construction failures (missing credential, unsupported kind) are returned as
// errors here and converted to failure results by the registry.
type BackendFactory interface {
	ForProvider(cfg domain.ProviderConfig) (Backend, error)
}

// SessionStore maps session identifiers to bounded, ordered event histories.
// All methods are safe for concurrent use from arbitrary goroutines.
type SessionStore interface {
	// GetOrCreate returns the session record for id, loading it from disk or
	// creating (and immediately persisting) an empty one on first access.
	GetOrCreate(id string) (*domain.SessionRecord, error)

	// Append records an event, trims history to the configured bound and
	// persists the whole record.
	Append(id string, event domain.SessionEvent) error

	// BuildContext renders the last maxEvents events as prompt context.
	BuildContext(id string, maxEvents int) (string, error)

	// ClearAll wipes every stored session.
	ClearAll() error
}

// AuditStore records every decision for later inspection.
type AuditStore interface {
	Record(entry AuditEntry) error
	Recent(limit int, search string) ([]AuditEntry, error)
	Clear() error
	Close() error
}

// AuditEntry is one row of the decision audit log.
type AuditEntry struct {
	Timestamp time.Time
	QueryID   string
	SessionID string
	ToolName  string
	Provider  string
	Score     int
	Category  string
	Decision  string
	Reasoning string
	ElapsedMS int64
}

// ProcessRunner executes one external process with bounded output capture.
type ProcessRunner interface {
	Run(ctx context.Context, spec ProcessSpec) (ProcessResult, error)
}

// ProcessSpec describes a single subprocess invocation. Heartbeat sets the
// interval between liveness log lines while the process runs; zero picks the
// default interval.
type ProcessSpec struct {
	Command   string
	Args      []string
	Env       []string
	Dir       string
	Stdin     string
	Timeout   time.Duration
	Heartbeat time.Duration
}

// ProcessResult captures the outcome of a completed subprocess.
type ProcessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stderr, files, test buffers).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
