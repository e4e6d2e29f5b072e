package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/pkg/metrics"
	"github.com/doeshing/toolgate/internal/ports"
)

// BackendRegistry is the slice of the judge registry the gate needs: keep
// the backend aligned with configuration and dispatch queries to it.
type BackendRegistry interface {
	Configure(cfg domain.ProviderConfig)
	Query(ctx context.Context, prompt string) domain.SafetyResult
	ActiveName() string
}

// GateService orchestrates one safety assessment end-to-end: validate the
// hook event, gather session context, query the judge, derive a decision,
// then record it in session history and the audit log.
type GateService struct {
	ConfigProvider ports.ConfigProvider
	Registry       BackendRegistry
	Sessions       ports.SessionStore
	Audit          ports.AuditStore
	Logger         ports.Logger
	Metrics        *metrics.Metrics
}

// Assess processes a single hook event. Infrastructure failures never
// surface as errors: the judge verdict degrades to a score-zero failure
// result and the decision ladder turns that into a deny. The returned error
// is reserved for invalid input and storage faults the caller must see.
func (s *GateService) Assess(ctx context.Context, event domain.HookEvent) (domain.Assessment, error) {
	if s.ConfigProvider == nil || s.Registry == nil || s.Sessions == nil || s.Logger == nil {
		return domain.Assessment{}, errors.New("services.GateService dependencies not satisfied")
	}

	if err := event.Validate(); err != nil {
		return domain.Assessment{}, err
	}

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("load config: %w", err)
	}
	s.Registry.Configure(cfg.Provider)

	queryID := uuid.NewString()
	threshold := cfg.Analysis.GetScoreThreshold()

	sessionContext := ""
	if event.SessionID != "" {
		sessionContext, err = s.Sessions.BuildContext(event.SessionID, cfg.Sessions.GetContextEvents())
		if err != nil {
			return domain.Assessment{}, fmt.Errorf("build session context: %w", err)
		}
	}

	prompt := composePrompt(event, sessionContext)

	start := time.Now()
	result := s.Registry.Query(ctx, prompt).Normalize()

	decision := domain.Decide(result.Score, threshold)
	assessment := domain.Assessment{
		Result:    result,
		Decision:  decision,
		Threshold: threshold,
		QueryID:   queryID,
	}

	s.observe(result, decision, time.Since(start))
	s.Logger.Info("tool call assessed", map[string]interface{}{
		"query_id": queryID,
		"session":  event.SessionID,
		"tool":     event.ToolName,
		"score":    result.Score,
		"decision": string(decision),
	})

	if event.SessionID != "" {
		if err := s.appendHistory(event, assessment); err != nil {
			return assessment, fmt.Errorf("record session event: %w", err)
		}
	}
	s.recordAudit(event, assessment)

	return assessment, nil
}

// ClearSessions wipes stored session history.
func (s *GateService) ClearSessions() error {
	return s.Sessions.ClearAll()
}

func (s *GateService) appendHistory(event domain.HookEvent, assessment domain.Assessment) error {
	return s.Sessions.Append(event.SessionID, domain.SessionEvent{
		ID:        assessment.QueryID,
		Timestamp: time.Now().UTC(),
		Type:      "tool_decision",
		ToolName:  event.ToolName,
		Decision:  string(assessment.Decision),
		Score:     assessment.Result.Score,
		Reasoning: assessment.Result.Reasoning,
		Category:  assessment.Result.Category,
	})
}

func (s *GateService) recordAudit(event domain.HookEvent, assessment domain.Assessment) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Record(ports.AuditEntry{
		Timestamp: time.Now().UTC(),
		QueryID:   assessment.QueryID,
		SessionID: event.SessionID,
		ToolName:  event.ToolName,
		Provider:  s.Registry.ActiveName(),
		Score:     assessment.Result.Score,
		Category:  string(assessment.Result.Category),
		Decision:  string(assessment.Decision),
		Reasoning: assessment.Result.Reasoning,
		ElapsedMS: assessment.Result.ElapsedMillis,
	})
	if err != nil {
		// Auditing is best-effort, the decision has already been made.
		s.Logger.Warn("audit record failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *GateService) observe(result domain.SafetyResult, decision domain.Decision, elapsed time.Duration) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	s.Metrics.ObserveQuery(s.Registry.ActiveName(), outcome, elapsed.Seconds())
	s.Metrics.CountDecision(string(decision))
	if !result.Success {
		s.Metrics.CountProviderFailure(s.Registry.ActiveName())
	}
}

// composePrompt renders the hook event and recent session activity as the
// judge's user prompt. Instructions live in the configured system prompt.
func composePrompt(event domain.HookEvent, sessionContext string) string {
	var b strings.Builder

	if event.ToolName != "" {
		fmt.Fprintf(&b, "Tool: %s\n", event.ToolName)
	}
	if len(event.ToolInput) > 0 {
		fmt.Fprintf(&b, "Tool input:\n%s\n", string(event.ToolInput))
	}
	if event.Prompt != "" {
		fmt.Fprintf(&b, "User prompt:\n%s\n", event.Prompt)
	}
	if event.WorkingDir != "" {
		fmt.Fprintf(&b, "Working directory: %s\n", event.WorkingDir)
	}
	if sessionContext != "" {
		fmt.Fprintf(&b, "\nRecent session activity:\n%s", sessionContext)
	}

	b.WriteString("\nAssess the safety of executing this tool call.")
	return b.String()
}
