package judge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/ports"
)

// PersistentBackend keeps one resident judge subprocess alive and speaks
// line-delimited JSON with it over stdin/stdout. A provider-wide mutex
// serializes queries. After domain.PersistentFailureThreshold consecutive
// failures the subprocess is restarted, and a query that cannot reach a
// healthy subprocess at all falls back to a one-shot invocation.
type PersistentBackend struct {
	cfg      domain.ProviderConfig
	parser   *Parser
	log      ports.Logger
	fallback *OneShotBackend

	mu       sync.Mutex
	proc     lineProcess
	failures int

	startProc func() (lineProcess, error)
	onRestart func()
}

var _ ports.Backend = (*PersistentBackend)(nil)

// NewPersistentBackend builds a PersistentBackend. onRestart may be nil; it
// is invoked once per subprocess restart.
func NewPersistentBackend(cfg domain.ProviderConfig, runner ports.ProcessRunner, log ports.Logger, onRestart func()) *PersistentBackend {
	b := &PersistentBackend{
		cfg:       cfg,
		parser:    NewParser(cfg.HeuristicParse),
		log:       log,
		fallback:  NewOneShotBackend(cfg, runner, log),
		onRestart: onRestart,
	}
	b.startProc = func() (lineProcess, error) {
		return startExecProcess(cfg)
	}
	return b
}

func (b *PersistentBackend) Name() string {
	return string(domain.ProviderPersistentCLI)
}

// userMessage is the single request line sent to a resident judge.
type userMessage struct {
	Type    string      `json:"type"`
	Message messageBody `json:"message"`
}

type messageBody struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// streamLine is the permissive envelope for every line the judge emits.
// Type selects which fields carry data.
type streamLine struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// Query implements ports.Backend.
func (b *PersistentBackend) Query(ctx context.Context, prompt string) domain.SafetyResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()

	proc, err := b.ensureProcess()
	if err != nil {
		b.log.Warn("persistent judge unavailable, falling back to one-shot", map[string]interface{}{
			"error": err.Error(),
		})
		return b.fallback.Query(ctx, prompt)
	}

	result, procErr := b.exchange(ctx, proc, prompt, start)
	if procErr == nil {
		b.failures = 0
		return result
	}

	if errors.Is(procErr, context.Canceled) {
		return domain.CancelledResult(time.Since(start).Milliseconds())
	}

	b.noteFailure(procErr)

	// The caller must never see the broken channel; the one-shot answer is
	// reported as if it had handled the query from the start.
	b.log.Warn("persistent exchange failed, falling back to one-shot", map[string]interface{}{
		"error": procErr.Error(),
	})
	return b.fallback.Query(ctx, prompt)
}

// exchange sends one user-message line and reads response lines until a
// result event arrives, tracking the latest assistant text along the way.
// The protocol carries no request ids, so the caller must hold b.mu.
func (b *PersistentBackend) exchange(ctx context.Context, proc lineProcess, prompt string, start time.Time) (domain.SafetyResult, error) {
	request, err := json.Marshal(userMessage{
		Type: "user",
		Message: messageBody{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: joinSystem(b.cfg.SystemPrompt, prompt)}},
		},
	})
	if err != nil {
		return domain.SafetyResult{}, fmt.Errorf("encode request: %w", err)
	}
	if err := proc.send(string(request)); err != nil {
		return domain.SafetyResult{}, fmt.Errorf("write to judge: %w", err)
	}

	deadline := time.Now().Add(b.cfg.GetTimeout())
	var lastAssistant string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return domain.SafetyResult{}, errors.New("judge response timed out")
		}
		line, err := proc.recv(ctx, remaining)
		if err != nil {
			return domain.SafetyResult{}, err
		}

		var event streamLine
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			// Junk interleaved with valid events is skipped; the exchange
			// fails only if no result arrives before the deadline.
			continue
		}
		switch event.Type {
		case "assistant":
			if text := assistantText(event.Message); text != "" {
				lastAssistant = text
			}
		case "result":
			if event.IsError {
				return domain.SafetyResult{}, errors.New("judge reported an error result")
			}
			text := event.Result
			if text == "" {
				text = lastAssistant
			}
			if text == "" {
				return domain.SafetyResult{}, errors.New("judge result carried no text")
			}
			parsed := b.parser.Parse(text, time.Since(start).Milliseconds())
			if !parsed.Success {
				return domain.SafetyResult{}, fmt.Errorf("unparseable judge response: %s", parsed.ErrorMessage)
			}
			return parsed, nil
		}
	}
}

// assistantText extracts the concatenated text blocks from an assistant
// message, accepting either the structured content-block form or a plain
// string.
func assistantText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var structured struct {
		Content []contentBlock `json:"content"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil {
		var parts []string
		for _, block := range structured.Content {
			if block.Type == "text" && block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return ""
}

func (b *PersistentBackend) ensureProcess() (lineProcess, error) {
	if b.proc != nil && b.proc.alive() {
		return b.proc, nil
	}
	proc, err := b.startProc()
	if err != nil {
		return nil, err
	}
	b.proc = proc
	b.failures = 0
	return proc, nil
}

// noteFailure counts a consecutive failure and restarts the subprocess once
// the threshold is reached.
func (b *PersistentBackend) noteFailure(cause error) {
	b.failures++
	b.log.Warn("persistent judge failure", map[string]interface{}{
		"failures": b.failures,
		"error":    cause.Error(),
	})
	if b.failures < domain.PersistentFailureThreshold {
		return
	}

	b.log.Info("restarting persistent judge", map[string]interface{}{
		"after_failures": b.failures,
	})
	if b.proc != nil {
		b.proc.stop()
		b.proc = nil
	}
	b.failures = 0
	if b.onRestart != nil {
		b.onRestart()
	}
}

// Close implements ports.Backend. It terminates the resident subprocess.
func (b *PersistentBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc != nil {
		b.proc.stop()
		b.proc = nil
	}
	return b.fallback.Close()
}

// lineProcess is the wire to a resident judge subprocess.
type lineProcess interface {
	send(line string) error
	recv(ctx context.Context, timeout time.Duration) (string, error)
	alive() bool
	stop()
}

// execProcess wraps a live subprocess. A reader goroutine pumps stdout
// lines into a channel so recv can race a timeout without losing data.
type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}
}

func startExecProcess(cfg domain.ProviderConfig) (*execProcess, error) {
	cmd := exec.Command(cfg.GetCommand(), persistentArgs(cfg)...)
	cmd.Env = judgeEnv(cfg)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start persistent judge: %w", err)
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 4),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), domain.MaxCaptureBytes)
		for scanner.Scan() {
			select {
			case p.lines <- scanner.Text():
			case <-p.done:
				return
			}
		}
	}()
	go func() {
		_ = cmd.Wait()
	}()

	return p, nil
}

func (p *execProcess) send(line string) error {
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

func (p *execProcess) recv(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", errors.New("judge closed its stdout")
		}
		return line, nil
	case <-timer.C:
		return "", errors.New("judge response timed out")
	case <-ctx.Done():
		return "", context.Canceled
	}
}

func (p *execProcess) alive() bool {
	if p.cmd.Process == nil {
		return false
	}
	return p.cmd.ProcessState == nil
}

func (p *execProcess) stop() {
	select {
	case <-p.done:
		return
	default:
		close(p.done)
	}
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
		time.AfterFunc(domain.KillGraceDelay, func() {
			_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
		})
	}
}
