package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/pkg/logger"
	"github.com/doeshing/toolgate/internal/ports"
)

// recordingBackend tracks lifecycle calls.
type recordingBackend struct {
	name    string
	queries int
	closed  bool
}

func (m *recordingBackend) Name() string { return m.name }

func (m *recordingBackend) Query(context.Context, string) domain.SafetyResult {
	m.queries++
	return domain.SafetyResult{Success: true, Score: 100, Category: domain.CategorySafe}
}

func (m *recordingBackend) Close() error {
	m.closed = true
	return nil
}

// recordingFactory returns one backend per call, in order.
type recordingFactory struct {
	backends []*recordingBackend
	errs     []error
	calls    int
	closedAt []bool
	previous *recordingBackend
}

func (f *recordingFactory) ForProvider(domain.ProviderConfig) (ports.Backend, error) {
	i := f.calls
	f.calls++
	// Record whether the previous backend was already closed, so the
	// dispose-before-construct ordering is observable.
	if f.previous != nil {
		f.closedAt = append(f.closedAt, f.previous.closed)
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	b := f.backends[i]
	f.previous = b
	return b, nil
}

func TestRegistryConfigureAndQuery(t *testing.T) {
	f := &recordingFactory{backends: []*recordingBackend{{name: "a"}}}
	r := NewRegistry(f, logger.Nop{})

	r.Configure(domain.ProviderConfig{Kind: domain.ProviderOneShotCLI})
	res := r.Query(context.Background(), "p")
	assert.True(t, res.Success)
	assert.Equal(t, "a", r.ActiveName())
}

func TestRegistryQueryWithoutBackend(t *testing.T) {
	r := NewRegistry(&recordingFactory{}, logger.Nop{})
	res := r.Query(context.Background(), "p")
	assert.False(t, res.Success)
	assert.Equal(t, domain.CategoryError, res.Category)
}

func TestRegistryKeepsBackendWhenConfigUnchanged(t *testing.T) {
	f := &recordingFactory{backends: []*recordingBackend{{name: "a"}, {name: "b"}}}
	r := NewRegistry(f, logger.Nop{})
	cfg := domain.ProviderConfig{Kind: domain.ProviderOneShotCLI, Command: "judge"}

	r.Configure(cfg)
	r.Configure(cfg)

	assert.Equal(t, 1, f.calls)
	assert.False(t, f.backends[0].closed)
}

func TestRegistrySwapDisposesBeforeConstruct(t *testing.T) {
	f := &recordingFactory{backends: []*recordingBackend{{name: "a"}, {name: "b"}}}
	r := NewRegistry(f, logger.Nop{})

	r.Configure(domain.ProviderConfig{Kind: domain.ProviderOneShotCLI, Command: "judge-a"})
	r.Configure(domain.ProviderConfig{Kind: domain.ProviderOneShotCLI, Command: "judge-b"})

	assert.Equal(t, 2, f.calls)
	assert.True(t, f.backends[0].closed)
	require.Len(t, f.closedAt, 1)
	assert.True(t, f.closedAt[0], "old backend must be closed before the new one is built")
	assert.Equal(t, "b", r.ActiveName())
}

func TestRegistryConstructionErrorSurfacesInQuery(t *testing.T) {
	f := &recordingFactory{errs: []error{errors.New("bad template")}}
	r := NewRegistry(f, logger.Nop{})

	r.Configure(domain.ProviderConfig{Kind: domain.ProviderHTTPRest})
	res := r.Query(context.Background(), "p")
	assert.False(t, res.Success)
	assert.Contains(t, res.Reasoning, "bad template")
	assert.Equal(t, "", r.ActiveName())
}

func TestRegistryRecoversAfterConstructionError(t *testing.T) {
	f := &recordingFactory{
		backends: []*recordingBackend{nil, {name: "b"}},
		errs:     []error{errors.New("boom"), nil},
	}
	r := NewRegistry(f, logger.Nop{})

	r.Configure(domain.ProviderConfig{Kind: domain.ProviderHTTPRest})
	r.Configure(domain.ProviderConfig{Kind: domain.ProviderOneShotCLI, Command: "judge"})

	res := r.Query(context.Background(), "p")
	assert.True(t, res.Success)
	assert.Equal(t, "b", r.ActiveName())
}

func TestRegistryClose(t *testing.T) {
	f := &recordingFactory{backends: []*recordingBackend{{name: "a"}}}
	r := NewRegistry(f, logger.Nop{})
	r.Configure(domain.ProviderConfig{Kind: domain.ProviderOneShotCLI})

	require.NoError(t, r.Close())
	assert.True(t, f.backends[0].closed)
	assert.Equal(t, "", r.ActiveName())
}

func TestFactoryKindDispatch(t *testing.T) {
	f := NewFactory(&fakeRunner{results: []ports.ProcessResult{{}}, errs: []error{nil}}, logger.Nop{}, nil)

	b, err := f.ForProvider(domain.ProviderConfig{Kind: domain.ProviderOneShotCLI})
	require.NoError(t, err)
	assert.IsType(t, (*OneShotBackend)(nil), b)

	b, err = f.ForProvider(domain.ProviderConfig{Kind: domain.ProviderPersistentCLI})
	require.NoError(t, err)
	assert.IsType(t, (*PersistentBackend)(nil), b)

	b, err = f.ForProvider(domain.ProviderConfig{Kind: domain.ProviderHTTPRest, RestURL: "http://localhost:9"})
	require.NoError(t, err)
	assert.IsType(t, (*HTTPBackend)(nil), b)

	b, err = f.ForProvider(domain.ProviderConfig{Kind: "mystery"})
	require.NoError(t, err)
	assert.IsType(t, (*OneShotBackend)(nil), b)
}
