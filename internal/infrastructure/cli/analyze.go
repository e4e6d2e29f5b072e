package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doeshing/toolgate/internal/app"
	"github.com/doeshing/toolgate/internal/domain"
)

// hookOutput is the agent-facing response shape for PreToolUse hooks.
type hookOutput struct {
	HookSpecificOutput hookDecision `json:"hookSpecificOutput"`
}

type hookDecision struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

func newAnalyzeCommand(container *app.Container) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Assess a tool call read as hook JSON on stdin",
		Long: "Reads a PreToolUse hook event from stdin, queries the configured judge\n" +
			"and writes the permission decision to stdout. Intended to be invoked by\n" +
			"the agent's hook configuration, not interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := readHookEvent(cmd.InOrStdin())
			if err != nil {
				// Malformed input fails closed but must not break the
				// agent's hook pipeline, so the denial goes to stdout.
				return writeDecision(cmd.OutOrStdout(), raw, domain.Assessment{
					Result:   domain.FailureResult(err.Error(), 0),
					Decision: domain.DecisionDeny,
				}, "")
			}

			assessment, err := container.GateService.Assess(cmd.Context(), event)
			if err != nil {
				return writeDecision(cmd.OutOrStdout(), raw, domain.Assessment{
					Result:   domain.FailureResult(err.Error(), 0),
					Decision: domain.DecisionDeny,
				}, event.HookEventName)
			}
			return writeDecision(cmd.OutOrStdout(), raw, assessment, event.HookEventName)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the full assessment instead of the hook response")
	return cmd
}

func readHookEvent(in io.Reader) (domain.HookEvent, error) {
	// One byte past the cap distinguishes "at the limit" from "over it".
	payload, err := io.ReadAll(io.LimitReader(in, domain.MaxHookInputBytes+1))
	if err != nil {
		return domain.HookEvent{}, fmt.Errorf("read hook input: %w", err)
	}
	if len(payload) > domain.MaxHookInputBytes {
		return domain.HookEvent{}, fmt.Errorf("hook input exceeds %d bytes", domain.MaxHookInputBytes)
	}
	if len(payload) == 0 {
		return domain.HookEvent{}, fmt.Errorf("empty hook input")
	}

	var event domain.HookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.HookEvent{}, fmt.Errorf("decode hook input: %w", err)
	}
	return event, nil
}

func writeDecision(out io.Writer, raw bool, assessment domain.Assessment, hookEventName string) error {
	encoder := json.NewEncoder(out)
	if raw {
		return encoder.Encode(assessment)
	}

	if hookEventName == "" {
		hookEventName = "PreToolUse"
	}
	reason := assessment.Result.Reasoning
	if reason == "" {
		reason = assessment.Result.ErrorMessage
	}
	return encoder.Encode(hookOutput{
		HookSpecificOutput: hookDecision{
			HookEventName:            hookEventName,
			PermissionDecision:       string(assessment.Decision),
			PermissionDecisionReason: fmt.Sprintf("safety score %d: %s", assessment.Result.Score, reason),
		},
	})
}
