package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"farmchain/native/farming"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	LogFile       string `toml:"LogFile"`
	Environment   string `toml:"Environment"`

	// OwnerAccount administers farms, the CD strategy table and sweeps.
	OwnerAccount string `toml:"OwnerAccount"`
	// OperatorToken authorises the admin HTTP endpoints when set.
	OperatorToken string `toml:"OperatorToken"`

	MaxFarms        uint32 `toml:"MaxFarms"`
	MaxCDStrategies uint32 `toml:"MaxCDStrategies"`
	MaxCDAccounts   uint32 `toml:"MaxCDAccounts"`
	// Amounts are decimal strings so 24-decimal token units survive TOML.
	MinStorageBalance string `toml:"MinStorageBalance"`
	DefaultMinDeposit string `toml:"DefaultMinDeposit"`

	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./farm-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:      ":8080",
		DataDir:            "./farm-data",
		Environment:        "local",
		OwnerAccount:       "owner",
		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
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

// Limits converts the configured capacities into engine limits. Empty amount
// strings fall back to the engine defaults.
func (c *Config) Limits() (farming.Limits, error) {
	limits := farming.Limits{
		MaxFarms:        c.MaxFarms,
		MaxCDStrategies: c.MaxCDStrategies,
		MaxCDAccounts:   c.MaxCDAccounts,
	}
	minStorage, err := parseAmount(c.MinStorageBalance)
	if err != nil {
		return limits, fmt.Errorf("invalid MinStorageBalance: %w", err)
	}
	limits.MinStorageBalance = minStorage
	minDeposit, err := parseAmount(c.DefaultMinDeposit)
	if err != nil {
		return limits, fmt.Errorf("invalid DefaultMinDeposit: %w", err)
	}
	limits.DefaultMinDeposit = minDeposit
	return limits, nil
}

func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", raw)
	}
	return amount, nil
}
