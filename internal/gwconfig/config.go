// Package gwconfig is the gateway's own configuration surface: listen
// address, data directory, node identity, and logging. It is grounded
// on the teacher's internal/config/loader.go viper setup (env prefix,
// defaults, config-file merge) but drops the upstream-server
// definitions, OAuth, and registry fields that package carried for a
// client-facing proxy, since nothing in the gateway reads them.
//
// Logging configuration is internal/logs.LogConfig, used directly by
// internal/logs.SetupLogger.
package gwconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"mcpgateway/internal/logs"
)

const (
	envPrefix      = "MCPGW"
	defaultDataDir = ".mcpgateway"
	configFileName = "gateway_config.json"
)

// Config is the gateway's top-level configuration.
type Config struct {
	Listen  string          `json:"listen" mapstructure:"listen"`
	DataDir string          `json:"data_dir" mapstructure:"data-dir"`
	NodeID  string          `json:"node_id" mapstructure:"node-id"`
	Logging *logs.LogConfig `json:"logging,omitempty" mapstructure:"logging"`

	// CredentialCacheSize bounds the in-process credential LRU.
	CredentialCacheSize int    `json:"credential_cache_size" mapstructure:"credential-cache-size"`
	SkillDataDir        string `json:"skill_data_dir,omitempty" mapstructure:"skill-data-dir"`
}

// DefaultConfig mirrors the teacher's conservative localhost-only
// default bind.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		CredentialCacheSize: 10000,
	}
}

func setupViper() {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	viper.SetDefault("listen", "127.0.0.1:8080")
	viper.SetDefault("data-dir", "")
	viper.SetDefault("credential-cache-size", 10000)
}

// GetConfigPath mirrors the teacher's config path layout for the
// gateway's own config file name.
func GetConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// LoadFromFile loads configuration from an explicit path (or defaults
// if empty), applying viper env overrides and filling in DataDir.
func LoadFromFile(configPath string) (*Config, error) {
	setupViper()
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("gwconfig: read %s: %w", configPath, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("gwconfig: parse %s: %w", configPath, err)
		}
	}

	// Env var overrides win over the file value, mirroring loader.go.
	if os.Getenv(envPrefix+"_LISTEN") != "" {
		cfg.Listen = viper.GetString("listen")
	}
	if os.Getenv(envPrefix+"_DATA_DIR") != "" {
		cfg.DataDir = viper.GetString("data-dir")
	}

	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("gwconfig: resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, defaultDataDir)
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("gwconfig: create data dir %s: %w", cfg.DataDir, err)
	}

	if cfg.SkillDataDir == "" {
		cfg.SkillDataDir = cfg.DataDir
	}

	return cfg, nil
}
