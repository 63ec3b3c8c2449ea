package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Config is the daemon configuration, loaded from TOML. A missing file is
// replaced with a persisted default so first runs work out of the box.
type Config struct {
	RPCAddress      string  `toml:"RPCAddress"`
	MetricsAddress  string  `toml:"MetricsAddress"`
	DataDir         string  `toml:"DataDir"`
	AuditDatabase   string  `toml:"AuditDatabase"`
	FeedManifest    string  `toml:"FeedManifest"`
	AdminTokenEnv   string  `toml:"AdminTokenEnv"`
	SaleAccount     string  `toml:"SaleAccount"`
	RateLimitPerSec float64 `toml:"RateLimitPerSec"`
	RateLimitBurst  int     `toml:"RateLimitBurst"`
}

// Load reads the configuration at path, creating and persisting a default
// file when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./sale-data"
	}
	if strings.TrimSpace(c.AuditDatabase) == "" {
		c.AuditDatabase = filepath.Join(c.DataDir, "audit.db")
	}
	if strings.TrimSpace(c.AdminTokenEnv) == "" {
		c.AdminTokenEnv = "SALE_ADMIN_TOKEN"
	}
	if c.RateLimitPerSec <= 0 {
		c.RateLimitPerSec = 50
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 100
	}
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if trimmed := strings.TrimSpace(c.SaleAccount); trimmed != "" {
		if !ethcommon.IsHexAddress(trimmed) {
			return fmt.Errorf("config: SaleAccount %q is not a valid address", c.SaleAccount)
		}
	}
	return nil
}

// SaleAccountAddress decodes the configured sale account. The zero address is
// returned when the field is unset.
func (c *Config) SaleAccountAddress() [20]byte {
	var addr [20]byte
	trimmed := strings.TrimSpace(c.SaleAccount)
	if trimmed == "" {
		return addr
	}
	copy(addr[:], ethcommon.HexToAddress(trimmed).Bytes())
	return addr
}

// AdminToken resolves the admin bearer token from the configured environment
// variable. An empty token disables the admin surface.
func (c *Config) AdminToken() string {
	return strings.TrimSpace(os.Getenv(c.AdminTokenEnv))
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return toml.NewEncoder(f).Encode(cfg)
}
