package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/ports"
)

// DoctorService runs environment diagnostics.
type DoctorService struct {
	ConfigProvider ports.ConfigProvider
	LookPath       func(string) (string, error)
}

// Run executes checks and returns a report.
func (s *DoctorService) Run(ctx context.Context) (domain.HealthReport, error) {
	lookPath := s.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	checks = append(checks, ok("Config file", fmt.Sprintf("version %s", cfg.ConfigFormatVersion)))

	checks = append(checks, providerCheck(cfg.Provider, lookPath))
	checks = append(checks, sessionDirCheck(cfg.Sessions.Dir))
	checks = append(checks, auditCheck(cfg.Audit))

	return domain.HealthReport{Checks: checks}, nil
}

func providerCheck(cfg domain.ProviderConfig, lookPath func(string) (string, error)) domain.HealthCheck {
	switch cfg.GetKind() {
	case domain.ProviderHTTPRest:
		if cfg.RestURL == "" {
			return fail("Judge provider", "http-rest configured without rest_url")
		}
		if cfg.AuthEnvVar != "" && os.Getenv(cfg.AuthEnvVar) == "" {
			return warn("Judge provider", fmt.Sprintf("%s not set in environment", cfg.AuthEnvVar))
		}
		return ok("Judge provider", fmt.Sprintf("http-rest endpoint %s", cfg.RestURL))

	default:
		command := cfg.GetCommand()
		path, err := lookPath(command)
		if err != nil {
			return fail("Judge provider", fmt.Sprintf("command %q not found on PATH", command))
		}
		return ok("Judge provider", fmt.Sprintf("%s (%s)", cfg.GetKind(), path))
	}
}

func sessionDirCheck(dir string) domain.HealthCheck {
	if dir == "" {
		return warn("Session store", "sessions.dir not resolved")
	}
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return fail("Session store", fmt.Sprintf("cannot create %s: %v", dir, err))
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), domain.SecureFilePermissions); err != nil {
		return fail("Session store", fmt.Sprintf("%s not writable: %v", dir, err))
	}
	os.Remove(probe)
	return ok("Session store", dir)
}

func auditCheck(cfg domain.AuditSettings) domain.HealthCheck {
	if !cfg.Enabled {
		return warn("Audit log", "disabled in configuration")
	}
	if cfg.Path == "" {
		return warn("Audit log", "audit.path not resolved")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), domain.DirectoryPermissions); err != nil {
		return fail("Audit log", fmt.Sprintf("cannot create %s: %v", filepath.Dir(cfg.Path), err))
	}
	return ok("Audit log", cfg.Path)
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
