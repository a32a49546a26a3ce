// Package config loads the enumerated settings from spec.md §6 via
// viper, mirroring the original's os.environ.get(...) lookups but in
// the 12-factor, env+file idiom the broader example pack uses for Go
// services.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"github.com/dmrproject/dmr/pkg/retriever"
)

// Config is every item spec.md §6 enumerates, plus the process-level
// settings (listen address, log level) needed to run them as a
// service.
type Config struct {
	Threshold       float64 `mapstructure:"threshold"`
	KFinal          int     `mapstructure:"k_final"`
	MaxChars        int     `mapstructure:"max_chars"`
	KHotCandidates  int     `mapstructure:"k_hot_candidates"`
	KColdCandidates int     `mapstructure:"k_cold_candidates"`
	BudgetMsHot     float64 `mapstructure:"budget_ms_hot"`
	BudgetMsCold    float64 `mapstructure:"budget_ms_cold"`
	VectorDim       int     `mapstructure:"vector_dim"`

	HotIndexDir    string `mapstructure:"hot_index_dir"`
	ColdStorePath  string `mapstructure:"cold_store_path"`
	HotStoreURL    string `mapstructure:"hot_store_url"`
	HotStorePrefix string `mapstructure:"hot_store_prefix"`

	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
}

// Load reads defaults, then an optional YAML file at path (if
// non-empty and present), then DMR_-prefixed environment variables,
// in ascending precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("threshold", 0.60)
	v.SetDefault("k_final", 5)
	v.SetDefault("max_chars", 800)
	v.SetDefault("k_hot_candidates", 30)
	v.SetDefault("k_cold_candidates", 30)
	v.SetDefault("budget_ms_hot", 50.0)
	v.SetDefault("budget_ms_cold", 50.0)
	v.SetDefault("vector_dim", 20)
	v.SetDefault("hot_index_dir", "./data/hot")
	v.SetDefault("cold_store_path", "./data/cold.db")
	v.SetDefault("hot_store_url", "")
	v.SetDefault("hot_store_prefix", "dmr")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// RetrieverPolicy projects the retrieval-relevant fields into a
// retriever.Policy.
func (c Config) RetrieverPolicy() retriever.Policy {
	return retriever.Policy{
		Threshold:       c.Threshold,
		KFinal:          c.KFinal,
		MaxChars:        c.MaxChars,
		KHotCandidates:  c.KHotCandidates,
		KColdCandidates: c.KColdCandidates,
		BudgetMsHot:     c.BudgetMsHot,
		BudgetMsCold:    c.BudgetMsCold,
	}
}
