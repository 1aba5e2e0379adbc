package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SEQUENCE_BACKEND", "postgres")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 10*time.Minute, cfg.FXRateCacheTTL)
	require.Equal(t, "5 0 1 * *", cfg.ForexRevaluationCron)
	require.Equal(t, int64(1), cfg.SystemUserID)
	require.True(t, cfg.ForexEnabled)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownSequenceBackend(t *testing.T) {
	t.Setenv("SEQUENCE_BACKEND", "etcd")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "SEQUENCE_BACKEND")
}

func TestLoadConfigRejectsSystemUser(t *testing.T) {
	t.Setenv("SEQUENCE_BACKEND", "memory")
	t.Setenv("SYSTEM_USER_ID", "0")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "SYSTEM_USER_ID")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel(" warning "))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestTestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(TestModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
