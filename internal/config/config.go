// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Jobs      JobsConfig      `yaml:"jobs" mapstructure:"jobs"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings. An empty key disables the
// agent extraction path entirely; runs then use heuristics only.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina search API settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// RenderConfig configures headless page rendering.
type RenderConfig struct {
	TimeoutSecs  int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTextBytes int `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`
}

// ExtractConfig configures the per-URL extraction engine.
type ExtractConfig struct {
	MaxAgentTurns int `yaml:"max_agent_turns" mapstructure:"max_agent_turns"`
	WindowLimit   int `yaml:"window_limit" mapstructure:"window_limit"`
	ProbeLimit    int `yaml:"probe_limit" mapstructure:"probe_limit"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	PerQuery       int `yaml:"per_query" mapstructure:"per_query"`
	MaxURLs        int `yaml:"max_urls" mapstructure:"max_urls"`
	QueryDelaySecs int `yaml:"query_delay_secs" mapstructure:"query_delay_secs"`
	SearchRetries  int `yaml:"search_retries" mapstructure:"search_retries"`
}

// JobsConfig configures the job lifecycle manager.
type JobsConfig struct {
	MaxConcurrentRuns int64 `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	RunTimeoutSecs    int   `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// ServerConfig configures the job HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// OutputConfig configures artifact output.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
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
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("render.timeout_secs", 30)
	v.SetDefault("render.max_text_bytes", 256*1024)
	v.SetDefault("extract.max_agent_turns", 8)
	v.SetDefault("extract.window_limit", 20)
	v.SetDefault("extract.probe_limit", 3)
	v.SetDefault("pipeline.per_query", 5)
	v.SetDefault("pipeline.max_urls", 10)
	v.SetDefault("pipeline.query_delay_secs", 2)
	v.SetDefault("pipeline.search_retries", 3)
	v.SetDefault("jobs.max_concurrent_runs", 2)
	v.SetDefault("jobs.run_timeout_secs", 1800)
	v.SetDefault("store.path", "scout.db")
	v.SetDefault("output.dir", "output")

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
