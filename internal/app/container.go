// Package app wires infrastructure adapters into the application services.
package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/doeshing/toolgate/internal/infrastructure/audit"
	"github.com/doeshing/toolgate/internal/infrastructure/config"
	"github.com/doeshing/toolgate/internal/infrastructure/judge"
	"github.com/doeshing/toolgate/internal/infrastructure/procrun"
	"github.com/doeshing/toolgate/internal/infrastructure/session"
	"github.com/doeshing/toolgate/internal/pkg/logger"
	"github.com/doeshing/toolgate/internal/pkg/metrics"
	"github.com/doeshing/toolgate/internal/ports"
	"github.com/doeshing/toolgate/internal/services"
)

// Container wires up application services with infrastructure adapters.
type Container struct {
	GateService   *services.GateService
	DoctorService *services.DoctorService
	ConfigLoader  *config.FileLoader
	Registry      *judge.Registry
	Sessions      ports.SessionStore
	Audit         ports.AuditStore
	Logger        ports.Logger
	Metrics       *metrics.Metrics
}

// BuildContainer constructs the dependency graph. configPath overrides the
// default config resolution when non-empty.
func BuildContainer(ctx context.Context, configPath string, verbose bool) (*Container, error) {
	cfgLoader := config.NewFileLoader(configPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New(verbose || cfg.Analysis.Verbose)
	met := metrics.New(prometheus.NewRegistry())

	runner := procrun.NewRunner(log)
	registry := judge.NewRegistry(judge.NewFactory(runner, log, met), log)
	registry.Configure(cfg.Provider)

	sessions, err := session.NewStore(cfg.Sessions.Dir, cfg.Sessions, log)
	if err != nil {
		return nil, err
	}

	var auditStore ports.AuditStore = audit.NopStore{}
	if cfg.Audit.Enabled {
		store, err := audit.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			// A broken audit db must not block safety decisions.
			log.Warn("audit store unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			auditStore = store
		}
	}

	gate := &services.GateService{
		ConfigProvider: cfgLoader,
		Registry:       registry,
		Sessions:       sessions,
		Audit:          auditStore,
		Logger:         log,
		Metrics:        met,
	}

	doctor := &services.DoctorService{
		ConfigProvider: cfgLoader,
	}

	return &Container{
		GateService:   gate,
		DoctorService: doctor,
		ConfigLoader:  cfgLoader,
		Registry:      registry,
		Sessions:      sessions,
		Audit:         auditStore,
		Logger:        log,
		Metrics:       met,
	}, nil
}

// Close releases backend and storage resources.
func (c *Container) Close() error {
	err := c.Registry.Close()
	if auditErr := c.Audit.Close(); err == nil {
		err = auditErr
	}
	return err
}
