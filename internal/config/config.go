package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// SAP HANA connection
	Host           string `mapstructure:"host"`
	DomainName     string `mapstructure:"domain-name"`
	InstanceNumber string `mapstructure:"instance-number"`
	PortSuffix     string `mapstructure:"port-suffix"`
	Database       string `mapstructure:"database"`
	DatabaseUser   string `mapstructure:"database-user"`
	DatabasePass   string `mapstructure:"database-password"`

	// Operating system user on the HANA host(s)
	OSUser string `mapstructure:"os-user"`
	OSPass string `mapstructure:"os-password"`

	// FlashArray connection
	ArrayEndpoint string `mapstructure:"array-endpoint"`
	ArrayUser     string `mapstructure:"array-user"`
	ArrayPass     string `mapstructure:"array-password"`
	ArrayInsecure bool   `mapstructure:"array-insecure"`

	// Naming
	GroupPrefix  string `mapstructure:"group-prefix"`
	SuffixPrefix string `mapstructure:"suffix-prefix"`

	// Local state
	CatalogPath string `mapstructure:"catalog-path"`
	FSMDBPath   string `mapstructure:"fsm-db-path"`

	// Timeouts (seconds)
	SSHTimeoutSeconds int `mapstructure:"ssh-timeout"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("instance-number", "00")
	viper.SetDefault("port-suffix", "15")
	viper.SetDefault("group-prefix", "SAPHANA")
	viper.SetDefault("suffix-prefix", "SAPHANA")
	viper.SetDefault("catalog-path", ".artifacts/runs.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("ssh-timeout", 120)

	// Environment variables (will be HANASNAP_HOST, etc.)
	viper.SetEnvPrefix("HANASNAP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.hanasnap")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	if c.DatabaseUser == "" {
		return fmt.Errorf("database-user cannot be empty")
	}
	if c.OSUser == "" {
		return fmt.Errorf("os-user cannot be empty")
	}
	if c.ArrayEndpoint == "" {
		return fmt.Errorf("array-endpoint cannot be empty")
	}
	if c.ArrayUser == "" {
		return fmt.Errorf("array-user cannot be empty")
	}
	if len(c.InstanceNumber) != 2 {
		return fmt.Errorf("instance-number must be two digits, got %q", c.InstanceNumber)
	}
	if len(c.PortSuffix) != 2 {
		return fmt.Errorf("port-suffix must be two digits, got %q", c.PortSuffix)
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("catalog-path cannot be empty")
	}
	if c.SSHTimeoutSeconds <= 0 {
		return fmt.Errorf("ssh-timeout must be positive")
	}
	return nil
}

// QualifiedHost appends the configured domain name to a bare hostname, the
// way HANA catalog views report hosts without their DNS suffix.
func (c *Config) QualifiedHost(host string) string {
	if c.DomainName == "" || strings.Contains(host, ".") {
		return host
	}
	return host + "." + c.DomainName
}
