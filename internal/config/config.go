// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Learner    LearnerConfig    `mapstructure:"learner"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Curriculum CurriculumConfig `mapstructure:"curriculum"`
	Database   DatabaseConfig   `mapstructure:"database"`
	API        APIConfig        `mapstructure:"api"`
}

// ServerConfig points at the server of record.
type ServerConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
}

type LearnerConfig struct {
	ID string `mapstructure:"id"`
}

// OutboxConfig selects and locates the durable outbox backend.
type OutboxConfig struct {
	Driver     string `mapstructure:"driver" validate:"oneof=file sqlite"`
	Path       string `mapstructure:"path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type CurriculumConfig struct {
	File string `mapstructure:"file" validate:"required"`
}

// DatabaseConfig configures the dev server's MySQL storage. Unused by the
// client engine.
type DatabaseConfig struct {
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	Database        string            `mapstructure:"database"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime"`
}

// APIConfig carries secrets bound to environment variables only.
type APIConfig struct {
	Token string `mapstructure:"token"`
}

func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ventilearn")
	}

	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.timeout_seconds", 10)
	v.SetDefault("outbox.driver", "file")
	v.SetDefault("outbox.path", filepath.Join("outbox", "outbox.yml"))
	v.SetDefault("outbox.sqlite_path", filepath.Join("outbox", "outbox.db"))
	v.SetDefault("curriculum.file", "curriculum.yml")
	v.SetDefault("database.port", 3306)

	// Secrets come from the environment only, never from the config file
	if err := v.BindEnv("api.token", "VENTILEARN_API_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind VENTILEARN_API_TOKEN environment variable: %w", err)
	}
	if err := v.BindEnv("learner.id", "VENTILEARN_LEARNER_ID"); err != nil {
		return nil, fmt.Errorf("failed to bind VENTILEARN_LEARNER_ID environment variable: %w", err)
	}
	if err := v.BindEnv("database.password", "VENTILEARN_DB_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind VENTILEARN_DB_PASSWORD environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validateConfig() > %w", err)
	}

	return &cfg, nil
}
