package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMemFs(t *testing.T) afero.Fs {
	t.Helper()
	prev := AppFs
	AppFs = afero.NewMemMapFs()
	t.Cleanup(func() { AppFs = prev })
	return AppFs
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	fs := withMemFs(t)
	require.NoError(t, afero.WriteFile(fs, "/etc/liteorm.yaml", []byte("database: from-file.db\nmigrations_dir: db/migrations\ncache_size: 8\nbusy_timeout: 2s\n"), 0o644))

	cfg, err := Load("/etc/liteorm.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Database:      "from-file.db",
		MigrationsDir: "db/migrations",
		CacheSize:     8,
		BusyTimeout:   2 * time.Second,
	}, cfg)

	t.Setenv("LITEORM_DATABASE", "from-env.db")
	cfg, err = Load("/etc/liteorm.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.Bool("debug", false, "")
	require.NoError(t, flags.Parse([]string{"--db", "from-flag.db", "--debug"}))

	cfg, err = Load("/etc/liteorm.yaml", flags)
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.Database)
	assert.True(t, cfg.Debug)
}

func TestLoad_Defaults(t *testing.T) {
	withMemFs(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "liteorm.db", cfg.Database)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	withMemFs(t)
	_, err := Load("/nope.yaml", nil)
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	fs := withMemFs(t)
	cfg := &Config{Database: "app.db", MigrationsDir: "m", BusyTimeout: time.Second}
	require.NoError(t, Save(cfg, "/home/me/.config/liteorm/.liteorm.yaml"))

	ok, err := afero.Exists(fs, "/home/me/.config/liteorm/.liteorm.yaml")
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := Load("/home/me/.config/liteorm/.liteorm.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
