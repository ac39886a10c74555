// Package config loads the gateway's configuration: a YAML file in the
// state directory, overridden by MCPGATE_* environment variables,
// overridden by CLI flags bound into the same viper instance by
// cmd/mcpgatewayd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the gateway's resolved runtime configuration.
type Config struct {
	ListenAddr        string            `mapstructure:"listen_addr"`
	StateDir          string            `mapstructure:"state_dir"`
	DBPath            string            `mapstructure:"db_path"`
	CatalogPath       string            `mapstructure:"catalog_path"`
	PolicyPath        string            `mapstructure:"policy_path"`
	SandboxProfileDir string            `mapstructure:"sandbox_profile_dir"`
	Debug             bool              `mapstructure:"debug"`
	LLMProviders      map[string]string `mapstructure:"llm_providers"`
}

const (
	defaultListenAddr = "127.0.0.1:54587"
	envPrefix         = "MCPGATE"
)

// NewViper builds the viper instance with defaults and env binding.
// cmd/mcpgatewayd binds its flags into this same instance before Load runs.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("listen_addr", defaultListenAddr)
	v.SetDefault("state_dir", defaultStateDir())
	v.SetDefault("sandbox_profile_dir", "./sandbox-exec-profiles")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file out of the state directory and
// resolves the final Config. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	stateDir := v.GetString("state_dir")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(stateDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.StateDir, "mcpgate.db")
	}
	return &cfg, nil
}

// EnsureStateDir creates the state directory if it does not exist.
func (c *Config) EnsureStateDir() error {
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return fmt.Errorf("config: creating state dir %s: %w", c.StateDir, err)
	}
	return nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcpgate"
	}
	return filepath.Join(home, ".mcpgate")
}
