package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config controls the load run. Values come from the optional yaml file
// named by CONFIG, with environment variables taking precedence.
type Config struct {
	Backend          string `yaml:"backend"` // memory | sqlite
	Path             string `yaml:"path"`    // sqlite file
	Accounts         int    `yaml:"accounts"`
	DepositsPerAcct  int    `yaml:"deposits_per_account"`
	SnapshotEvery    int    `yaml:"snapshot_every"`
	SequencingShards int    `yaml:"sequencing_shards"`
	Metrics          bool   `yaml:"metrics"`
	LargeDeposit     int64  `yaml:"large_deposit"` // saga threshold
}

func defaultConfig() Config {
	return Config{
		Backend:          "memory",
		Path:             "loadtest.db",
		Accounts:         100,
		DepositsPerAcct:  500,
		SnapshotEvery:    100,
		SequencingShards: 16,
		Metrics:          true,
		LargeDeposit:     1_000,
	}
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := getEnv("CONFIG", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.Backend = getEnv("BACKEND", cfg.Backend)
	cfg.Path = getEnv("DB_PATH", cfg.Path)
	cfg.Accounts = getEnvInt("ACCOUNTS", cfg.Accounts)
	cfg.DepositsPerAcct = getEnvInt("DEPOSITS", cfg.DepositsPerAcct)
	cfg.SnapshotEvery = getEnvInt("SNAPSHOT_EVERY", cfg.SnapshotEvery)
	cfg.SequencingShards = getEnvInt("SHARDS", cfg.SequencingShards)
	cfg.Metrics = getEnvBool("METRICS", cfg.Metrics)
	return cfg, nil
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
