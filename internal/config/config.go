/*-------------------------------------------------------------------------
 *
 * config.go
 *    Configuration for NeuronHive
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/config/config.go
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Beekeeper BeekeeperConfig `yaml:"beekeeper"`
	Meadows   MeadowsConfig   `yaml:"meadows"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type BeekeeperConfig struct {
	SleepMinutes     float64 `yaml:"sleep_minutes"`
	SubmitWorkersMax int     `yaml:"submit_workers_max"`
	SyncEveryNRounds int     `yaml:"sync_every_n_rounds"`
	HTTPAddr         string  `yaml:"http_addr"`
	WorkerLogBaseDir string  `yaml:"worker_log_base_dir"`
}

type MeadowsConfig struct {
	Default string            `yaml:"default"`
	Local   LocalMeadowConfig `yaml:"local"`
	LSF     LSFMeadowConfig   `yaml:"lsf"`
}

type LocalMeadowConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WorkerCmd  string `yaml:"worker_cmd"`
	MaxWorkers int    `yaml:"max_workers"`
}

type LSFMeadowConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Queue     string `yaml:"queue"`
	WorkerCmd string `yaml:"worker_cmd"`
	MaxJobs   int    `yaml:"max_jobs"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Beekeeper: BeekeeperConfig{
			SleepMinutes:     1,
			SubmitWorkersMax: 50,
			SyncEveryNRounds: 5,
			HTTPAddr:         "127.0.0.1:8151",
		},
		Meadows: MeadowsConfig{
			Default: "LOCAL",
			Local: LocalMeadowConfig{
				Enabled:    true,
				WorkerCmd:  "hive-worker",
				MaxWorkers: 2,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

/* LoadFromEnv overrides config fields from environment variables */
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("HIVE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("HIVE_SUBMIT_WORKERS_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Beekeeper.SubmitWorkersMax = n
		}
	}
	if v := os.Getenv("HIVE_SLEEP_MINUTES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Beekeeper.SleepMinutes = f
		}
	}
	if v := os.Getenv("HIVE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HIVE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
