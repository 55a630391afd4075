package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Aggregate    AggregateConfig    `yaml:"aggregate" mapstructure:"aggregate"`
	Runlog       RunlogConfig       `yaml:"runlog" mapstructure:"runlog"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// OrchestratorConfig configures the workflow orchestration engine.
type OrchestratorConfig struct {
	MaxConcurrentTasks     int            `yaml:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks"`
	DefaultCapabilityLimit int            `yaml:"default_capability_limit" mapstructure:"default_capability_limit"`
	CapabilityLimits       map[string]int `yaml:"capability_limits" mapstructure:"capability_limits"`
	PollIntervalMs         int            `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	EventBuffer            int            `yaml:"event_buffer" mapstructure:"event_buffer"`
	// CapabilityRatePerSec caps dispatches per second per capability.
	// Zero disables rate limiting.
	CapabilityRatePerSec float64 `yaml:"capability_rate_per_sec" mapstructure:"capability_rate_per_sec"`
	// CircuitFailureThreshold is the consecutive-failure count that opens a
	// capability's circuit breaker. Zero disables the breaker.
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// AggregateConfig configures the result aggregation pipeline.
type AggregateConfig struct {
	NameSimilarityThreshold float64            `yaml:"name_similarity_threshold" mapstructure:"name_similarity_threshold"`
	LinkThreshold           float64            `yaml:"link_threshold" mapstructure:"link_threshold"`
	DefaultSourceWeight     float64            `yaml:"default_source_weight" mapstructure:"default_source_weight"`
	SourceWeights           map[string]float64 `yaml:"source_weights" mapstructure:"source_weights"`
	DefaultRegion           string             `yaml:"default_region" mapstructure:"default_region"`
}

// RunlogConfig configures the workflow run history store.
type RunlogConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("orchestrator.max_concurrent_tasks", 50)
	v.SetDefault("orchestrator.default_capability_limit", 10)
	v.SetDefault("orchestrator.poll_interval_ms", 100)
	v.SetDefault("orchestrator.event_buffer", 64)
	v.SetDefault("orchestrator.capability_rate_per_sec", 0)
	v.SetDefault("orchestrator.circuit_failure_threshold", 0)
	v.SetDefault("orchestrator.circuit_reset_secs", 30)
	v.SetDefault("aggregate.name_similarity_threshold", 0.85)
	v.SetDefault("aggregate.link_threshold", 0.5)
	v.SetDefault("aggregate.default_source_weight", 0.3)
	v.SetDefault("aggregate.default_region", "US")
	v.SetDefault("runlog.enabled", false)
	v.SetDefault("runlog.path", "intel-runs.db")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
