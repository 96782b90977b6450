package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SOURCES", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_CONNECTION_STRING", "")
	t.Setenv("SOURCES_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, defaultSources, cfg.Sources)
	require.Equal(t, DriverSQLite, cfg.DBDriver)
	require.Equal(t, "zhodnoceni_procesu", cfg.StorageBucket)
}

func TestLoadPostgresDriverFromHost(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_CONNECTION_STRING", "")
	t.Setenv("DB_HOST", "db.example.test")
	t.Setenv("DB_PASSWORD", "p@ss word")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SOURCES_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.DBDriver)

	conn, err := cfg.PostgresConnString()
	require.NoError(t, err)
	require.Contains(t, conn, "db.example.test:6543")
	require.Contains(t, conn, "sslmode=require")
	require.NotContains(t, conn, "p@ss word")
}

func TestPostgresConnStringRequiresHost(t *testing.T) {
	cfg := Config{}
	_, err := cfg.PostgresConnString()
	require.ErrorContains(t, err, "DB_HOST")
}

func TestSourcesList(t *testing.T) {
	t.Setenv("SOURCES", " CI , ,OPZ")
	t.Setenv("SOURCES_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"CI", "OPZ"}, cfg.Sources)
}

func TestManifestOverridesSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bucket: other\nsources:\n  - OPZ\n  - \" \"\n  - UVV\n"), 0o644))
	t.Setenv("SOURCES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "other", cfg.StorageBucket)
	require.Equal(t, []string{"OPZ", "UVV"}, cfg.Sources)
}

func TestManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestWatchSettings(t *testing.T) {
	t.Setenv("SOURCES_FILE", "")
	t.Setenv("WATCH_INTERVAL_SEC", "60")
	t.Setenv("WATCH_PUSH", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 60, cfg.WatchIntervalSec)
	require.True(t, cfg.WatchPush)

	t.Setenv("WATCH_PUSH", "maybe")
	t.Setenv("WATCH_INTERVAL_SEC", "soon")
	cfg, err = Load()
	require.NoError(t, err)
	require.False(t, cfg.WatchPush)
	require.Equal(t, 900, cfg.WatchIntervalSec)
}
