package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AppFs is the filesystem configuration and migrations are read from.
var AppFs = afero.NewOsFs()

const (
	// EnvPrefix prefixes environment overrides, e.g. LITEORM_DATABASE.
	EnvPrefix = "LITEORM"
	// FileName is the config file name without extension.
	FileName = ".liteorm"
)

// Config holds the CLI configuration
type Config struct {
	Database      string
	MigrationsDir string
	Debug         bool
	CacheSize     int
	BusyTimeout   time.Duration
}

// Load reads configuration from, in increasing priority: defaults, the
// config file, .env and .env.local, LITEORM_* environment variables and
// flags. An explicit file must exist; the default locations are optional.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetFs(AppFs)

	v.SetDefault("database", "liteorm.db")
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("debug", false)
	v.SetDefault("cache_size", 0)
	v.SetDefault("busy_timeout", 5*time.Second)

	loadDotEnv()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "liteorm"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	if flags != nil {
		for key, flag := range map[string]string{"database": "db", "debug": "debug", "migrations_dir": "dir"} {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	return &Config{
		Database:      v.GetString("database"),
		MigrationsDir: v.GetString("migrations_dir"),
		Debug:         v.GetBool("debug"),
		CacheSize:     v.GetInt("cache_size"),
		BusyTimeout:   v.GetDuration("busy_timeout"),
	}, nil
}

// loadDotEnv loads .env and then .env.local, which wins.
func loadDotEnv() {
	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("database", cfg.Database)
	v.Set("migrations_dir", cfg.MigrationsDir)
	v.Set("debug", cfg.Debug)
	v.Set("cache_size", cfg.CacheSize)
	v.Set("busy_timeout", cfg.BusyTimeout.String())

	if err := AppFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}
