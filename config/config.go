package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"staychain/core/types"
)

// Config carries the daemon's runtime settings. Addresses are 20-byte hex
// strings; royalty rates are basis points of the sale price.
type Config struct {
	Environment   string `toml:"Environment"`
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	LogFile       string `toml:"LogFile"`
	AuthToken     string `toml:"AuthToken"`
	RateLimit     int    `toml:"RateLimit"`
	RateBurst     int    `toml:"RateBurst"`

	Operator  string `toml:"Operator"`
	Authority string `toml:"Authority"`
	Admin     string `toml:"Admin"`
	Treasury  string `toml:"Treasury"`

	TreasuryBps   uint64 `toml:"TreasuryBps"`
	PropertyBps   uint64 `toml:"PropertyBps"`
	FirstOwnerBps uint64 `toml:"FirstOwnerBps"`
}

const defaultConfig = `Environment = "dev"
ListenAddress = ":8645"
DataDir = "./stay-data"
LogFile = ""
AuthToken = ""
RateLimit = 50
RateBurst = 100

Operator = "0x0000000000000000000000000000000000000001"
Authority = "0x0000000000000000000000000000000000000002"
Admin = "0x0000000000000000000000000000000000000003"
Treasury = "0x0000000000000000000000000000000000000004"

TreasuryBps = 200
PropertyBps = 200
FirstOwnerBps = 200
`

// Load reads the configuration file at path, creating a commented default
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultConfig), 0o644)
}

// Validate checks address formats, rate settings and royalty rates.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("config: RateLimit and RateBurst must be positive")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Operator", c.Operator},
		{"Authority", c.Authority},
		{"Admin", c.Admin},
		{"Treasury", c.Treasury},
	} {
		addr, err := types.ParseAddress(field.value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
		if addr.IsZero() {
			return fmt.Errorf("config: %s must not be the zero address", field.name)
		}
	}
	// Each rate is checked on its own first so a wrapped sum cannot pass.
	for _, rate := range []struct {
		name string
		bps  uint64
	}{
		{"TreasuryBps", c.TreasuryBps},
		{"PropertyBps", c.PropertyBps},
		{"FirstOwnerBps", c.FirstOwnerBps},
	} {
		if rate.bps > 10000 {
			return fmt.Errorf("config: %s exceeds 10000", rate.name)
		}
	}
	if c.TreasuryBps+c.PropertyBps+c.FirstOwnerBps > 10000 {
		return fmt.Errorf("config: royalty basis points exceed 10000")
	}
	return nil
}

// OperatorAddress returns the parsed marketplace operator address.
func (c *Config) OperatorAddress() types.Address { return mustAddress(c.Operator) }

// AuthorityAddress returns the parsed booking authority address.
func (c *Config) AuthorityAddress() types.Address { return mustAddress(c.Authority) }

// AdminAddress returns the parsed administrative address.
func (c *Config) AdminAddress() types.Address { return mustAddress(c.Admin) }

// TreasuryAddress returns the parsed treasury payout address.
func (c *Config) TreasuryAddress() types.Address { return mustAddress(c.Treasury) }

func mustAddress(s string) types.Address {
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}
	}
	return addr
}
