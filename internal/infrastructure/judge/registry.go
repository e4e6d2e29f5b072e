package judge

import (
	"context"
	"sync"
	"time"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/pkg/metrics"
	"github.com/doeshing/toolgate/internal/ports"
)

// Factory constructs backends from provider configuration.
type Factory struct {
	runner ports.ProcessRunner
	log    ports.Logger
	met    *metrics.Metrics
}

var _ ports.BackendFactory = (*Factory)(nil)

// NewFactory builds a Factory. met may be nil.
func NewFactory(runner ports.ProcessRunner, log ports.Logger, met *metrics.Metrics) *Factory {
	return &Factory{runner: runner, log: log, met: met}
}

// ForProvider implements ports.BackendFactory. An unrecognized kind falls
// back to the default one-shot CLI backend rather than failing.
func (f *Factory) ForProvider(cfg domain.ProviderConfig) (ports.Backend, error) {
	switch cfg.GetKind() {
	case domain.ProviderPersistentCLI:
		return NewPersistentBackend(cfg, f.runner, f.log, f.met.CountRestart), nil
	case domain.ProviderHTTPRest:
		return NewHTTPBackend(cfg, f.log)
	case domain.ProviderOneShotCLI:
		return NewOneShotBackend(cfg, f.runner, f.log), nil
	default:
		f.log.Warn("unknown provider kind, using one-shot CLI", map[string]interface{}{
			"kind": string(cfg.Kind),
		})
		return NewOneShotBackend(cfg, f.runner, f.log), nil
	}
}

// Registry holds the active backend and swaps it when the provider
// configuration changes. Queries against a registry whose backend failed to
// construct return the construction error as a failure verdict instead of
// panicking or blocking.
type Registry struct {
	factory ports.BackendFactory
	log     ports.Logger

	mu          sync.RWMutex
	backend     ports.Backend
	fingerprint string
	buildErr    error
}

// NewRegistry builds a Registry with no active backend. Call Configure
// before the first Query.
func NewRegistry(factory ports.BackendFactory, log ports.Logger) *Registry {
	return &Registry{factory: factory, log: log}
}

// Configure installs the backend for cfg. When the effective configuration
// is unchanged the current backend is kept, otherwise the old backend is
// disposed before the new one is constructed so resident judge processes
// never overlap.
func (r *Registry) Configure(cfg domain.ProviderConfig) {
	fingerprint := cfg.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.backend != nil && r.fingerprint == fingerprint {
		return
	}

	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			r.log.Warn("closing previous backend failed", map[string]interface{}{
				"backend": r.backend.Name(),
				"error":   err.Error(),
			})
		}
		r.backend = nil
	}

	backend, err := r.factory.ForProvider(cfg)
	if err != nil {
		r.log.Error("backend construction failed", err, map[string]interface{}{
			"kind": string(cfg.GetKind()),
		})
		r.fingerprint = fingerprint
		r.buildErr = err
		return
	}

	r.backend = backend
	r.fingerprint = fingerprint
	r.buildErr = nil
	r.log.Info("judge backend configured", map[string]interface{}{
		"backend": backend.Name(),
	})
}

// Query dispatches to the active backend.
func (r *Registry) Query(ctx context.Context, prompt string) domain.SafetyResult {
	start := time.Now()
	r.mu.RLock()
	backend := r.backend
	buildErr := r.buildErr
	r.mu.RUnlock()

	if backend == nil {
		reason := "no judge backend configured"
		if buildErr != nil {
			reason = "judge backend unavailable: " + buildErr.Error()
		}
		return domain.FailureResult(reason, time.Since(start).Milliseconds())
	}
	return backend.Query(ctx, prompt)
}

// ActiveName reports the active backend's name, or "" when none is live.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.backend == nil {
		return ""
	}
	return r.backend.Name()
}

// Close disposes the active backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backend == nil {
		return nil
	}
	err := r.backend.Close()
	r.backend = nil
	return err
}
