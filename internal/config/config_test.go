package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JOBIFY_JWT_SECRET", "secret")
	t.Setenv("JOBIFY_SANDBOX_URL", "http://judge0:2358")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, SandboxDriverJudge0, cfg.SandboxDriver)
	require.Equal(t, 20*time.Second, cfg.SandboxTimeout)
	require.Equal(t, 2*time.Minute, cfg.SubmitTimeout)
	require.Equal(t, 4, cfg.GradingWorkers)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.False(t, cfg.CloudinaryEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JOBIFY_JWT_SECRET", "secret")
	t.Setenv("JOBIFY_SANDBOX_DRIVER", "Docker")
	t.Setenv("JOBIFY_SUBMIT_TIMEOUT", "45s")
	t.Setenv("JOBIFY_GRADING_WORKERS", "8")
	t.Setenv("JOBIFY_APP_PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, SandboxDriverDocker, cfg.SandboxDriver)
	require.Equal(t, 45*time.Second, cfg.SubmitTimeout)
	require.Equal(t, 8, cfg.GradingWorkers)
	require.Equal(t, ":9090", cfg.HTTPAddress())
}

func TestLoadValidation(t *testing.T) {
	t.Run("missing jwt secret", func(t *testing.T) {
		t.Setenv("JOBIFY_JWT_SECRET", "")
		t.Setenv("JOBIFY_SANDBOX_URL", "http://judge0")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("judge0 without url", func(t *testing.T) {
		t.Setenv("JOBIFY_JWT_SECRET", "secret")
		t.Setenv("JOBIFY_SANDBOX_URL", "")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("JOBIFY_JWT_SECRET", "secret")
		t.Setenv("JOBIFY_SANDBOX_DRIVER", "lambda")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad timeout", func(t *testing.T) {
		t.Setenv("JOBIFY_JWT_SECRET", "secret")
		t.Setenv("JOBIFY_SANDBOX_URL", "http://judge0")
		t.Setenv("JOBIFY_SUBMIT_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
	})
}
