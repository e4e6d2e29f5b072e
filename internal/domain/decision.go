package domain

import (
	"encoding/json"
	"fmt"
)

// Decision is the caller-facing outcome derived from a safety score. The
// engine itself is mode-agnostic: it always performs the query and leaves
// enforcement to the caller.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionAsk   Decision = "ask"
	DecisionDeny  Decision = "deny"
)

// Decide maps a clamped safety score onto a decision. Scores at or above the
// threshold allow, scores below the hard floor deny, everything between asks.
func Decide(score int, threshold int) Decision {
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	score = ClampScore(score)
	switch {
	case score >= threshold:
		return DecisionAllow
	case score < DenyScoreFloor:
		return DecisionDeny
	default:
		return DecisionAsk
	}
}

// HookEvent is the tool-invocation event submitted by an agent hook. The
// ToolInput payload is kept raw so the engine never interprets tool arguments
// beyond rendering them into the judge prompt.
type HookEvent struct {
	SessionID     string          `json:"session_id,omitempty"`
	HookEventName string          `json:"hookEventName,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	ToolInput     json.RawMessage `json:"tool_input,omitempty"`
	Prompt        string          `json:"prompt,omitempty"`
	WorkingDir    string          `json:"cwd,omitempty"`
}

// Validate enforces the input caps applied before any processing.
func (e HookEvent) Validate() error {
	if e.SessionID != "" {
		if err := ValidateSessionID(e.SessionID); err != nil {
			return fmt.Errorf("invalid session_id: %w", err)
		}
	}
	if len(e.ToolName) > MaxToolNameLength {
		return fmt.Errorf("tool_name exceeds %d characters", MaxToolNameLength)
	}
	if len(e.ToolInput) > MaxHookInputBytes {
		return fmt.Errorf("tool_input exceeds %d bytes", MaxHookInputBytes)
	}
	return nil
}

// Assessment pairs the backend verdict with the decision derived from it.
type Assessment struct {
	Result    SafetyResult `json:"result"`
	Decision  Decision     `json:"decision"`
	Threshold int          `json:"threshold"`
	QueryID   string       `json:"queryId"`
}
