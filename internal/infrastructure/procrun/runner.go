// Package procrun runs judge subprocesses with bounded capture and
// process-group cleanup.
package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/ports"
)

var (
	// ErrTimeout reports that the process exceeded its deadline and was killed.
	ErrTimeout = errors.New("process timed out")
	// ErrCancelled reports that the caller's context was cancelled.
	ErrCancelled = errors.New("process cancelled")
	// ErrStartFailure reports that the process never started.
	ErrStartFailure = errors.New("process failed to start")
	// ErrKillFailed reports that the process group could not be killed.
	ErrKillFailed = errors.New("process kill failed")
)

// Runner executes commands in their own process group so that child
// processes die with the parent. Output is captured up to
// domain.MaxCaptureBytes per stream.
type Runner struct {
	log ports.Logger
}

// NewRunner builds a Runner.
func NewRunner(log ports.Logger) *Runner {
	return &Runner{log: log}
}

var _ ports.ProcessRunner = (*Runner)(nil)

// Run implements ports.ProcessRunner.
func (r *Runner) Run(ctx context.Context, spec ports.ProcessSpec) (ports.ProcessResult, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultQueryTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	// New process group so the whole tree can be signalled at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return ports.ProcessResult{}, fmt.Errorf("%w: %v", ErrStartFailure, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return ports.ProcessResult{}, fmt.Errorf("%w: %v", ErrStartFailure, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ports.ProcessResult{}, fmt.Errorf("%w: %v", ErrStartFailure, err)
	}

	var stdout, stderr boundedBuffer
	stdout.limit = domain.MaxCaptureBytes
	stderr.limit = domain.MaxCaptureBytes

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stdout, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})

	heartbeat := spec.Heartbeat
	if heartbeat <= 0 {
		heartbeat = domain.HeartbeatInterval
	}
	hbDone := make(chan struct{})
	go r.heartbeat(hbDone, spec.Command, start, heartbeat)

	waitErr := make(chan error, 1)
	go func() {
		drainErr := g.Wait()
		err := cmd.Wait()
		if err == nil {
			err = drainErr
		}
		waitErr <- err
	}()

	var runErr error
	select {
	case err := <-waitErr:
		runErr = err
	case <-runCtx.Done():
		if killErr := r.killGroup(cmd); killErr != nil {
			// The group survived SIGKILL, so cmd.Wait may never return.
			// Bound the drain and surface the escalation.
			awaitExit(waitErr, domain.KillGraceDelay)
			runErr = killErr
		} else {
			<-waitErr
			if ctx.Err() != nil {
				// Caller cancellation, not our own deadline.
				runErr = ErrCancelled
			} else {
				runErr = ErrTimeout
			}
		}
	}
	close(hbDone)

	result := ports.ProcessResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	} else {
		result.ExitCode = -1
	}

	switch {
	case runErr == nil:
		return result, nil
	case errors.Is(runErr, ErrTimeout), errors.Is(runErr, ErrCancelled), errors.Is(runErr, ErrKillFailed):
		return result, runErr
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, runErr
	}
}

// awaitExit drains the wait channel, giving up after bound so an unkillable
// process cannot hang the caller.
func awaitExit(waitErr <-chan error, bound time.Duration) {
	select {
	case <-waitErr:
	case <-time.After(bound):
	}
}

// killGroup signals the whole process group, SIGTERM first and SIGKILL after
// a grace period if anything is still alive.
func (r *Runner) killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.log.Warn("sigterm failed, escalating", map[string]interface{}{"pid": cmd.Process.Pid, "error": err.Error()})
	}
	timer := time.AfterFunc(domain.KillGraceDelay, func() {
		_ = syscall.Kill(pgid, syscall.SIGKILL)
	})
	defer timer.Stop()

	// Wait for the group leader to exit. cmd.Wait runs in the caller's
	// goroutine, so just poll the process here.
	deadline := time.Now().Add(domain.KillGraceDelay + time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pgid, 0); errors.Is(err, syscall.ESRCH) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("%w: %v", ErrKillFailed, err)
	}
	return nil
}

func (r *Runner) heartbeat(done <-chan struct{}, command string, start time.Time, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.log.Debug("judge process still running", map[string]interface{}{
				"command": command,
				"elapsed": time.Since(start).Round(time.Second).String(),
			})
		}
	}
}

// boundedBuffer keeps at most limit bytes and silently drops the rest. It
// never returns a write error so io.Copy drains the pipe to EOF.
type boundedBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if remaining := b.limit - len(b.buf); remaining > 0 {
		if len(p) <= remaining {
			b.buf = append(b.buf, p...)
		} else {
			b.buf = append(b.buf, p[:remaining]...)
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string { return string(b.buf) }
