package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Timeout and retry constants
const (
	// DefaultQueryTimeout applies when the config omits a timeout
	DefaultQueryTimeout = 30 * time.Second
	// MinQueryTimeout is the lower clamp for configured timeouts
	MinQueryTimeout = time.Second
	// MaxQueryTimeout is the upper clamp for configured timeouts
	MaxQueryTimeout = 5 * time.Minute
	// MaxQueryAttempts bounds retries for transient failures
	MaxQueryAttempts = 3
	// RetryDelay is the fixed pause between one-shot retry attempts
	RetryDelay = 500 * time.Millisecond
	// KillGraceDelay is how long process teardown may take after a kill
	KillGraceDelay = 5 * time.Second
	// HeartbeatInterval is the progress-log cadence for long-running queries
	HeartbeatInterval = 10 * time.Second
)

// Output and input bounds
const (
	// MaxCaptureBytes caps captured subprocess output per stream (1 MiB)
	MaxCaptureBytes = 1 << 20
	// MaxHookInputBytes caps the raw hook event payload (1 MB)
	MaxHookInputBytes = 1_000_000
	// MaxSessionIDLength bounds session identifiers
	MaxSessionIDLength = 128
	// MaxToolNameLength bounds tool names in hook events
	MaxToolNameLength = 256
	// MaxReasoningLength truncates reasoning text in rendered decisions
	MaxReasoningLength = 1000
)

// Session store constants
const (
	// DefaultMaxHistory bounds per-session event history
	DefaultMaxHistory = 50
	// DefaultSessionCacheSize bounds the in-memory session cache
	DefaultSessionCacheSize = 256
	// DefaultContextEvents is how many recent events feed the prompt context
	DefaultContextEvents = 10
	// LockReleaseDelay defers per-session lock disposal after cache eviction
	LockReleaseDelay = 2 * time.Second
)

// Decision constants
const (
	// DefaultScoreThreshold is the minimum score auto-approved
	DefaultScoreThreshold = 85
	// DenyScoreFloor is the score below which tools are denied outright
	DenyScoreFloor = 30
)

// Persistent backend constants
const (
	// PersistentFailureThreshold is how many consecutive failures force a restart
	PersistentFailureThreshold = 3
)

// Defaults
const (
	// DefaultJudgeCommand is the judge CLI used when none is configured
	DefaultJudgeCommand = "claude"
	// DefaultRestResponsePath extracts the answer from chat-completion replies
	DefaultRestResponsePath = "choices[0].message.content"
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
