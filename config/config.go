package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon configuration loaded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`

	// AuthorityAddress, when set, is claimed as the settlement authority
	// on first boot. Claiming is first-write-wins, so a later change here
	// has no effect once an authority exists.
	AuthorityAddress string `toml:"AuthorityAddress"`

	// AdminJWTSecretEnv names the environment variable holding the HS256
	// secret protecting the admin routes. The secret itself never lives in
	// the config file.
	AdminJWTSecretEnv string `toml:"AdminJWTSecretEnv"`

	// RateLimitPerSecond bounds requests per client on the public surface;
	// zero disables limiting.
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

const defaultAdminSecretEnv = "MATCHPAY_ADMIN_JWT_SECRET"

func defaultConfig() *Config {
	return &Config{
		ListenAddress:      ":8645",
		DataDir:            "./matchpay-data",
		AdminJWTSecretEnv:  defaultAdminSecretEnv,
		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
	}
}

// Load loads the configuration from the given path, creating a default
// file when none exists.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises and checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if strings.TrimSpace(c.AdminJWTSecretEnv) == "" {
		c.AdminJWTSecretEnv = defaultAdminSecretEnv
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("config: RateLimitPerSecond must not be negative")
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("config: RateLimitBurst must not be negative")
	}
	return nil
}

// AdminJWTSecret resolves the admin secret from the configured
// environment variable. An empty secret disables the admin surface.
func (c *Config) AdminJWTSecret() string {
	return strings.TrimSpace(os.Getenv(c.AdminJWTSecretEnv))
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default config: %w", err)
	}
	return cfg, nil
}
