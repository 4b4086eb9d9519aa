package config

// Package config provides a reusable loader for Brontes configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"brontes/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// DexPricingMode selects how CEX/DEX and DEX-pricing paths source prices
// (spec §6 "dex_pricing mode").
type DexPricingMode string

const (
	DexPricingUseDB        DexPricingMode = "use_db"
	DexPricingForceCompute DexPricingMode = "force_compute"
	DexPricingDisabled     DexPricingMode = "disabled"
)

// Config represents the unified configuration for a Brontes run. It mirrors
// the YAML files Load reads (default and <env>, looked up under cmd/config
// or config; the repository ships none) and the §6 CLI surface.
type Config struct {
	Pipeline struct {
		StartBlock         uint64         `mapstructure:"start_block" json:"start_block"`
		EndBlock           uint64         `mapstructure:"end_block" json:"end_block"`
		MaxTasks           int            `mapstructure:"max_tasks" json:"max_tasks"`
		MinBatchSize       int            `mapstructure:"min_batch_size" json:"min_batch_size"`
		QuoteAsset         string         `mapstructure:"quote_asset" json:"quote_asset"`
		EnabledInspectors  []string       `mapstructure:"enabled_inspectors" json:"enabled_inspectors"`
		DexPricing         DexPricingMode `mapstructure:"dex_pricing" json:"dex_pricing"`
		TWBeforeSeconds    float64        `mapstructure:"tw_before" json:"tw_before"`
		TWAfterSeconds     float64        `mapstructure:"tw_after" json:"tw_after"`
		CexExchanges       []string       `mapstructure:"cex_exchanges" json:"cex_exchanges"`
		BehindTip          uint64         `mapstructure:"behind_tip" json:"behind_tip"`
		ShutdownDeadlineMS int            `mapstructure:"shutdown_deadline_ms" json:"shutdown_deadline_ms"`
		UpstreamTimeoutMS  int            `mapstructure:"upstream_timeout_ms" json:"upstream_timeout_ms"`
		UpstreamMaxRetries int            `mapstructure:"upstream_max_retries" json:"upstream_max_retries"`
	} `mapstructure:"pipeline" json:"pipeline"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Default populates a Config with the spec's stated defaults (§4.10, §5)
// before Load merges any file/env overrides on top.
func Default() Config {
	var c Config
	c.Pipeline.MaxTasks = 8
	c.Pipeline.MinBatchSize = 1
	c.Pipeline.QuoteAsset = "USDC"
	c.Pipeline.DexPricing = DexPricingUseDB
	c.Pipeline.TWBeforeSeconds = 2
	c.Pipeline.TWAfterSeconds = 2
	c.Pipeline.BehindTip = 5
	c.Pipeline.ShutdownDeadlineMS = 30_000
	c.Pipeline.UpstreamTimeoutMS = 60_000
	c.Pipeline.UpstreamMaxRetries = 5
	c.Storage.DBPath = "brontes-data"
	c.Logging.Level = "info"
	return c
}

// Load reads configuration files and merges any environment specific
// overrides on top of Default(). The resulting configuration is stored in
// AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded. A
// missing default config file is not an error — Default()'s values stand
// on their own for a zero-config run.
func Load(env string) (*Config, error) {
	AppConfig = Default()

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up matching process environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the BRONTES_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("BRONTES_ENV", ""))
}
