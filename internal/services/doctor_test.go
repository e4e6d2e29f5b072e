package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/toolgate/internal/domain"
)

func checkByName(t *testing.T, report domain.HealthReport, name string) domain.HealthCheck {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing from report", name)
	return domain.HealthCheck{}
}

func TestDoctorHealthyEnvironment(t *testing.T) {
	dir := t.TempDir()
	doctor := &DoctorService{
		ConfigProvider: stubConfig{cfg: domain.Config{
			ConfigFormatVersion: "1.0",
			Provider:            domain.ProviderConfig{Kind: domain.ProviderOneShotCLI, Command: "judge"},
			Sessions:            domain.SessionSettings{Dir: filepath.Join(dir, "sessions")},
			Audit:               domain.AuditSettings{Enabled: true, Path: filepath.Join(dir, "audit.db")},
		}},
		LookPath: func(string) (string, error) { return "/usr/bin/judge", nil },
	}

	report, err := doctor.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, domain.HealthOK, checkByName(t, report, "Judge provider").Status)
	assert.Equal(t, domain.HealthOK, checkByName(t, report, "Session store").Status)
	assert.Equal(t, domain.HealthOK, checkByName(t, report, "Audit log").Status)
}

func TestDoctorMissingJudgeCommand(t *testing.T) {
	doctor := &DoctorService{
		ConfigProvider: stubConfig{cfg: domain.Config{
			Sessions: domain.SessionSettings{Dir: t.TempDir()},
		}},
		LookPath: func(string) (string, error) { return "", errors.New("not found") },
	}

	report, err := doctor.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	check := checkByName(t, report, "Judge provider")
	assert.Equal(t, domain.HealthError, check.Status)
	assert.Contains(t, check.Details, "claude")
}

func TestDoctorHTTPProviderChecks(t *testing.T) {
	doctor := &DoctorService{
		ConfigProvider: stubConfig{cfg: domain.Config{
			Provider: domain.ProviderConfig{Kind: domain.ProviderHTTPRest},
			Sessions: domain.SessionSettings{Dir: t.TempDir()},
		}},
	}

	report, err := doctor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthError, checkByName(t, report, "Judge provider").Status)
}

func TestDoctorMissingAuthEnvWarns(t *testing.T) {
	doctor := &DoctorService{
		ConfigProvider: stubConfig{cfg: domain.Config{
			Provider: domain.ProviderConfig{
				Kind:       domain.ProviderHTTPRest,
				RestURL:    "http://localhost:8080",
				AuthEnvVar: "TOOLGATE_DOCTOR_TEST_KEY",
			},
			Sessions: domain.SessionSettings{Dir: t.TempDir()},
		}},
	}

	report, err := doctor.Run(context.Background())
	require.NoError(t, err)
	check := checkByName(t, report, "Judge provider")
	assert.Equal(t, domain.HealthWarn, check.Status)
	assert.Contains(t, check.Details, "TOOLGATE_DOCTOR_TEST_KEY")
}

func TestDoctorConfigLoadFailure(t *testing.T) {
	doctor := &DoctorService{
		ConfigProvider: stubConfig{err: errors.New("yaml broken")},
	}

	report, err := doctor.Run(context.Background())
	require.Error(t, err)
	assert.False(t, report.Healthy())
}

func TestDoctorAuditDisabledWarns(t *testing.T) {
	doctor := &DoctorService{
		ConfigProvider: stubConfig{cfg: domain.Config{
			Sessions: domain.SessionSettings{Dir: t.TempDir()},
		}},
		LookPath: func(string) (string, error) { return "/usr/bin/claude", nil },
	}

	report, err := doctor.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthWarn, checkByName(t, report, "Audit log").Status)
}
