package judge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/infrastructure/procrun"
	"github.com/doeshing/toolgate/internal/pkg/logger"
	"github.com/doeshing/toolgate/internal/ports"
)

// fakeRunner replays queued outcomes, one per Run call.
type fakeRunner struct {
	results []ports.ProcessResult
	errs    []error
	calls   int
	specs   []ports.ProcessSpec
}

func (f *fakeRunner) Run(_ context.Context, spec ports.ProcessSpec) (ports.ProcessResult, error) {
	i := f.calls
	f.calls++
	f.specs = append(f.specs, spec)
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], f.errs[i]
}

func oneShotConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		Kind:           domain.ProviderOneShotCLI,
		Command:        "judge",
		HeuristicParse: true,
	}
}

func TestOneShotSuccessFirstAttempt(t *testing.T) {
	runner := &fakeRunner{
		results: []ports.ProcessResult{{Stdout: `{"safetyScore": 95, "category": "safe", "reasoning": "ok"}`}},
		errs:    []error{nil},
	}
	b := NewOneShotBackend(oneShotConfig(), runner, logger.Nop{})

	res := b.Query(context.Background(), "prompt")
	assert.True(t, res.Success)
	assert.Equal(t, 95, res.Score)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "prompt", runner.specs[0].Stdin)
}

func TestOneShotRetriesTransientFailure(t *testing.T) {
	runner := &fakeRunner{
		results: []ports.ProcessResult{
			{},
			{Stdout: `{"safetyScore": 40, "category": "risky"}`},
		},
		errs: []error{procrun.ErrTimeout, nil},
	}
	b := NewOneShotBackend(oneShotConfig(), runner, logger.Nop{})

	res := b.Query(context.Background(), "prompt")
	assert.True(t, res.Success)
	assert.Equal(t, 40, res.Score)
	assert.Equal(t, 2, runner.calls)
}

func TestOneShotExhaustsAttempts(t *testing.T) {
	runner := &fakeRunner{
		results: []ports.ProcessResult{{}},
		errs:    []error{procrun.ErrTimeout},
	}
	b := NewOneShotBackend(oneShotConfig(), runner, logger.Nop{})

	res := b.Query(context.Background(), "prompt")
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, domain.CategoryError, res.Category)
	assert.Equal(t, domain.MaxQueryAttempts, runner.calls)
	assert.Contains(t, res.Reasoning, "after 3 attempts")
}

func TestOneShotDoesNotRetryStartFailure(t *testing.T) {
	runner := &fakeRunner{
		results: []ports.ProcessResult{{}},
		errs:    []error{procrun.ErrStartFailure},
	}
	b := NewOneShotBackend(oneShotConfig(), runner, logger.Nop{})

	res := b.Query(context.Background(), "prompt")
	assert.False(t, res.Success)
	assert.Equal(t, 1, runner.calls)
}

func TestOneShotDoesNotRetryCancellation(t *testing.T) {
	runner := &fakeRunner{
		results: []ports.ProcessResult{{}},
		errs:    []error{procrun.ErrCancelled},
	}
	b := NewOneShotBackend(oneShotConfig(), runner, logger.Nop{})

	res := b.Query(context.Background(), "prompt")
	assert.False(t, res.Success)
	assert.Equal(t, "cancelled", res.ErrorMessage)
	assert.Equal(t, 1, runner.calls)
}

func TestOneShotRetriesNonZeroExit(t *testing.T) {
	runner := &fakeRunner{
		results: []ports.ProcessResult{
			{ExitCode: 1, Stderr: "rate limited\nmore detail"},
			{Stdout: `{"safetyScore": 80, "category": "cautious"}`},
		},
		errs: []error{nil, nil},
	}
	b := NewOneShotBackend(oneShotConfig(), runner, logger.Nop{})

	res := b.Query(context.Background(), "prompt")
	assert.True(t, res.Success)
	assert.Equal(t, 2, runner.calls)
}

func TestOneShotStripsAgentEnv(t *testing.T) {
	t.Setenv("CLAUDECODE", "1")
	t.Setenv("CLAUDE_CODE_ENTRYPOINT", "cli")
	runner := &fakeRunner{
		results: []ports.ProcessResult{{Stdout: `{"safetyScore": 90, "category": "safe"}`}},
		errs:    []error{nil},
	}
	b := NewOneShotBackend(oneShotConfig(), runner, logger.Nop{})

	b.Query(context.Background(), "prompt")
	for _, kv := range runner.specs[0].Env {
		assert.False(t, hasAgentMarker(kv), "leaked agent marker: %s", kv)
	}
}

func TestCLIArgsAppendsModel(t *testing.T) {
	assert.Equal(t, []string{"-p", "--model", "m1"}, cliArgs([]string{"-p"}, "m1"))
	assert.Equal(t, []string{"-p"}, cliArgs([]string{"-p"}, ""))
}

func TestOneShotArgsAddsOutputFormat(t *testing.T) {
	cfg := oneShotConfig()
	cfg.Args = []string{"-p"}
	assert.Equal(t, []string{"-p", "--output-format", "json"}, oneShotArgs(cfg))

	cfg.Args = []string{"-p", "--output-format", "text"}
	assert.Equal(t, []string{"-p", "--output-format", "text"}, oneShotArgs(cfg), "configured format must win")
}

func TestPersistentArgsAddStreamFlags(t *testing.T) {
	args := persistentArgs(persistentConfig())
	assert.Contains(t, args, "--input-format")
	assert.Contains(t, args, "--output-format")
}

func TestJudgeEnvIsolatesConfigDir(t *testing.T) {
	var found bool
	for _, kv := range judgeEnv(oneShotConfig()) {
		if strings.HasPrefix(kv, "CLAUDE_CONFIG_DIR=") {
			found = true
		}
	}
	assert.True(t, found, "judge must not inherit the agent's config directory")
}

func TestJudgeEnvInjectsCredential(t *testing.T) {
	t.Setenv("JUDGE_API_KEY", "secret")
	cfg := oneShotConfig()
	cfg.AuthEnvVar = "JUDGE_API_KEY"
	assert.Contains(t, judgeEnv(cfg), "JUDGE_API_KEY=secret")
}
