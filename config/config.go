package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"findprotocol/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress          string `toml:"RPCAddress"`
	DataDir             string `toml:"DataDir"`
	OperatorKeystore    string `toml:"OperatorKeystore"`
	RPCAuthToken        string `toml:"RPCAuthToken"`
	RPCRateLimit        int    `toml:"RPCRateLimit"`
	RPCBurst            int    `toml:"RPCBurst"`
	FeeBps              uint64 `toml:"FeeBps"`
	FeeSink             string `toml:"FeeSink"`
	LaunchAuthorizer    string `toml:"LaunchAuthorizer"`
	PoolFeePpm          uint32 `toml:"PoolFeePpm"`
	BaseTokenSymbol     string `toml:"BaseTokenSymbol"`
	BaseTokenName       string `toml:"BaseTokenName"`
	Environment         string `toml:"Environment"`
	MaxRequestBodyBytes int64  `toml:"MaxRequestBodyBytes"`
}

// Load loads the configuration from the given path, creating a default file
// (and an operator keystore) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./find-data"
	}
	if cfg.RPCRateLimit <= 0 {
		cfg.RPCRateLimit = 50
	}
	if cfg.RPCBurst <= 0 {
		cfg.RPCBurst = cfg.RPCRateLimit
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = 5_000
	}
	if cfg.PoolFeePpm == 0 {
		cfg.PoolFeePpm = 10_000
	}
	if strings.TrimSpace(cfg.BaseTokenSymbol) == "" {
		cfg.BaseTokenSymbol = "FIND"
	}
	if strings.TrimSpace(cfg.BaseTokenName) == "" {
		cfg.BaseTokenName = "Find"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = 1 << 20
	}
}

func validate(cfg *Config) error {
	if cfg.FeeBps > 10_000 {
		return fmt.Errorf("config: FeeBps %d exceeds 10000", cfg.FeeBps)
	}
	if cfg.PoolFeePpm >= 1_000_000 {
		return fmt.Errorf("config: PoolFeePpm %d exceeds 1000000", cfg.PoolFeePpm)
	}
	if addr := strings.TrimSpace(cfg.FeeSink); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid FeeSink: %w", err)
		}
	}
	if addr := strings.TrimSpace(cfg.LaunchAuthorizer); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid LaunchAuthorizer: %w", err)
		}
	}
	return nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystore
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.WriteKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystore != keystorePath {
		cfg.OperatorKeystore = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.WriteKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:       ":8080",
		DataDir:          "./find-data",
		OperatorKeystore: keystorePath,
	}
	applyDefaults(cfg)

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

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
