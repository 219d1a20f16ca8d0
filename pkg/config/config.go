// Package config provides a reusable loader for chaincore node configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/meridian-chain/chaincore/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a chaincore node.
type Config struct {
	Chain struct {
		ID                  string `mapstructure:"id" json:"id"`
		InitialDifficulty   uint64 `mapstructure:"initial_difficulty" json:"initial_difficulty"`
		RetargetWindow      int    `mapstructure:"retarget_window" json:"retarget_window"`
		TargetBlockIntervalS int   `mapstructure:"target_block_interval_seconds" json:"target_block_interval_seconds"`
		MaxTimestampSkewS   int    `mapstructure:"max_timestamp_skew_seconds" json:"max_timestamp_skew_seconds"`
	} `mapstructure:"chain" json:"chain"`

	Store struct {
		Driver            string `mapstructure:"driver" json:"driver"` // "memory" or "file"
		Path              string `mapstructure:"path" json:"path"`
		SnapshotIntervalS int    `mapstructure:"snapshot_interval_seconds" json:"snapshot_interval_seconds"`
		PruneAfter        int    `mapstructure:"prune_after_snapshots" json:"prune_after_snapshots"`
	} `mapstructure:"store" json:"store"`

	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		P2PPort        int      `mapstructure:"p2p_port" json:"p2p_port"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		EnableNAT      bool     `mapstructure:"enable_nat" json:"enable_nat"`
	} `mapstructure:"network" json:"network"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Addr    string `mapstructure:"addr" json:"addr"`
	} `mapstructure:"metrics" json:"metrics"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CHAINCORE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CHAINCORE_ENV", ""))
}
