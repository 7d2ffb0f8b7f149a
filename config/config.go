package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string    `toml:"DataDir"`
	NetworkName string    `toml:"NetworkName"`
	LogEnv      string    `toml:"LogEnv"`
	LogLevel    string    `toml:"LogLevel"`
	Dominator   Dominator `toml:"Dominator"`
	Rewards     Rewards   `toml:"Rewards"`
}

// Load loads the configuration from the given path. A default file is written
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "clob-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./settle-data"
	}
	if cfg.Dominator.ToleranceOverrides == nil {
		cfg.Dominator.ToleranceOverrides = []TokenTolerance{}
	}
	return cfg, nil
}

// Default returns the configuration written by createDefault.
func Default() *Config {
	return &Config{
		DataDir:     "./settle-data",
		NetworkName: "clob-local",
		LogEnv:      "",
		LogLevel:    "info",
		Dominator: Dominator{
			RegisterGracePeriod:  10,
			SeasonDuration:       100_800,
			OnlineThreshold:      "10000",
			MinimalStakingAmount: "10",
			AuthorizeTolerance:   "1000",
			ToleranceOverrides:   []TokenTolerance{},
			MaxSeasonsPerClaim:   64,
			UnstakeDelay:         14_400,
			MaxFeeRate:           10_000,
		},
		Rewards: Rewards{EraLength: 14_400},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *Config) error {
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
