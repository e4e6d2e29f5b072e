package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/pkg/logger"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ProviderOneShotCLI, cfg.Provider.GetKind())
	assert.Equal(t, "claude", cfg.Provider.GetCommand())
	assert.Equal(t, domain.DefaultScoreThreshold, cfg.Analysis.GetScoreThreshold())
	assert.NotEmpty(t, cfg.Provider.SystemPrompt)
	assert.NotEmpty(t, cfg.Sessions.Dir)
	assert.NotEmpty(t, cfg.Audit.Path)

	// The defaults must now exist on disk with tight permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadParsesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
provider:
  kind: http-rest
  rest_url: http://localhost:8080/v1/chat/completions
  timeout_millis: 5000
analysis:
  score_threshold: 70
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderHTTPRest, cfg.Provider.GetKind())
	assert.Equal(t, 5*time.Second, cfg.Provider.GetTimeout())
	assert.Equal(t, 70, cfg.Analysis.GetScoreThreshold())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0o600))

	_, err := NewFileLoader(path).Load(context.Background())
	assert.Error(t, err)
}

func TestPathEnvOverride(t *testing.T) {
	t.Setenv("TOOLGATE_CONFIG", "/tmp/custom-toolgate.yaml")
	loader := NewFileLoader("")
	assert.Equal(t, "/tmp/custom-toolgate.yaml", loader.Path())

	// Explicit path beats the environment.
	loader = NewFileLoader("/etc/toolgate.yaml")
	assert.Equal(t, "/etc/toolgate.yaml", loader.Path())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	loader := NewFileLoader(path)

	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(loader, logger.Nop{})
	require.NoError(t, err)
	defer w.Close()

	var reloads atomic.Int32
	threshold := make(chan int, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(cfg domain.Config) {
		reloads.Add(1)
		select {
		case threshold <- cfg.Analysis.GetScoreThreshold():
		default:
		}
	})

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  score_threshold: 42\n"), 0o600))

	select {
	case got := <-threshold:
		assert.Equal(t, 42, got)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reloaded")
	}
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestWatcherKeepsConfigOnBrokenWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	loader := NewFileLoader(path)
	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(loader, logger.Nop{})
	require.NoError(t, err)
	defer w.Close()

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(domain.Config) { reloads.Add(1) })

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("provider: [broken"), 0o600))
	time.Sleep(time.Second)

	assert.Equal(t, int32(0), reloads.Load(), "broken config must not reach the callback")
}
