package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/infrastructure/procrun"
	"github.com/doeshing/toolgate/internal/ports"
)

// OneShotBackend spawns the judge command once per query, feeding the
// prompt on stdin and parsing whatever comes back on stdout. Transient
// failures are retried up to domain.MaxQueryAttempts times with a fixed
// delay between attempts.
type OneShotBackend struct {
	cfg    domain.ProviderConfig
	runner ports.ProcessRunner
	parser *Parser
	log    ports.Logger
}

var _ ports.Backend = (*OneShotBackend)(nil)

// NewOneShotBackend builds a OneShotBackend.
func NewOneShotBackend(cfg domain.ProviderConfig, runner ports.ProcessRunner, log ports.Logger) *OneShotBackend {
	return &OneShotBackend{
		cfg:    cfg,
		runner: runner,
		parser: NewParser(cfg.HeuristicParse),
		log:    log,
	}
}

func (b *OneShotBackend) Name() string {
	return string(domain.ProviderOneShotCLI)
}

// Query implements ports.Backend. It never returns operational errors to the
// caller; failures surface as score-zero results.
func (b *OneShotBackend) Query(ctx context.Context, prompt string) domain.SafetyResult {
	start := time.Now()
	var lastReason string

	for attempt := 1; attempt <= domain.MaxQueryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return domain.CancelledResult(time.Since(start).Milliseconds())
			case <-time.After(domain.RetryDelay):
			}
		}

		result, retry := b.attempt(ctx, prompt, start)
		if !retry {
			return result
		}
		lastReason = result.ErrorMessage
		b.log.Warn("judge attempt failed", map[string]interface{}{
			"attempt": attempt,
			"reason":  lastReason,
		})
	}

	reason := fmt.Sprintf("judge failed after %d attempts: %s", domain.MaxQueryAttempts, lastReason)
	return domain.FailureResult(reason, time.Since(start).Milliseconds())
}

// attempt runs the judge once. The second return value reports whether the
// failure is transient and worth retrying.
func (b *OneShotBackend) attempt(ctx context.Context, prompt string, start time.Time) (domain.SafetyResult, bool) {
	res, err := b.runner.Run(ctx, ports.ProcessSpec{
		Command: b.cfg.GetCommand(),
		Args:    oneShotArgs(b.cfg),
		Env:     judgeEnv(b.cfg),
		Stdin:   joinSystem(b.cfg.SystemPrompt, prompt),
		Timeout: b.cfg.GetTimeout(),
	})
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err == nil:
	case errors.Is(err, procrun.ErrCancelled):
		return domain.CancelledResult(elapsed), false
	case errors.Is(err, procrun.ErrStartFailure):
		// Misconfigured command, retrying will not help.
		return domain.FailureResult(err.Error(), elapsed), false
	case errors.Is(err, procrun.ErrTimeout):
		return domain.FailureResult("judge timed out", elapsed), true
	default:
		return domain.FailureResult(err.Error(), elapsed), true
	}

	if res.ExitCode != 0 {
		reason := fmt.Sprintf("judge exited with code %d", res.ExitCode)
		if res.Stderr != "" {
			reason = fmt.Sprintf("%s: %s", reason, firstLine(res.Stderr))
		}
		return domain.FailureResult(reason, elapsed), true
	}

	parsed := b.parser.Parse(res.Stdout, elapsed)
	return parsed, !parsed.Success
}

// Close implements ports.Backend. One-shot backends hold no resources.
func (b *OneShotBackend) Close() error {
	return nil
}
