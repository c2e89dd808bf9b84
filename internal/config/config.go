package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Curator    CuratorConfig    `yaml:"curator" mapstructure:"curator"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AnthropicConfig holds Claude API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// JinaConfig holds Jina Reader and Embeddings settings.
type JinaConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	EmbedURL  string  `yaml:"embed_url" mapstructure:"embed_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
}

// GeminiConfig holds Gemini API credentials.
type GeminiConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // jina or gemini
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// CuratorConfig tunes sessions, matching and commit attribution.
type CuratorConfig struct {
	TokenLimit         int    `yaml:"token_limit" mapstructure:"token_limit"`
	SessionTTLHours    int    `yaml:"session_ttl_hours" mapstructure:"session_ttl_hours"`
	MatcherConcurrency int    `yaml:"matcher_concurrency" mapstructure:"matcher_concurrency"`
	VocabularyFile     string `yaml:"vocabulary_file" mapstructure:"vocabulary_file"`
	ChangedBy          string `yaml:"changed_by" mapstructure:"changed_by"`
}

// SessionTTL returns the session lifetime.
func (c CuratorConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key is registered so AutomaticEnv can override it.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.embed_url", "https://api.jina.ai/v1/embeddings")
	v.SetDefault("jina.rate_limit", 5.0)
	v.SetDefault("gemini.key", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("curator.token_limit", 100000)
	v.SetDefault("curator.session_ttl_hours", 24)
	v.SetDefault("curator.matcher_concurrency", 4)
	v.SetDefault("curator.vocabulary_file", "")
	v.SetDefault("curator.changed_by", "curator")

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

// Validate checks the settings a command needs before it starts. Mode is one
// of serve, mcp, extract or migrate.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve", "mcp", "extract":
		problems = append(problems, c.validateStore()...)
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Anthropic.MaxTokens <= 0 {
			problems = append(problems, "anthropic.max_tokens must be > 0")
		}
		problems = append(problems, c.validateEmbedding()...)
		problems = append(problems, c.validateCurator()...)
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "migrate":
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}

func (c *Config) validateEmbedding() []string {
	switch c.Embedding.Provider {
	case "jina":
		if c.Jina.Key == "" {
			return []string{"jina.key is required for embedding.provider=jina"}
		}
	case "gemini":
		if c.Gemini.Key == "" {
			return []string{"gemini.key is required for embedding.provider=gemini"}
		}
	default:
		return []string{"embedding.provider must be jina or gemini"}
	}
	return nil
}

func (c *Config) validateCurator() []string {
	var problems []string
	if c.Curator.TokenLimit <= 0 {
		problems = append(problems, "curator.token_limit must be > 0")
	}
	if c.Curator.SessionTTLHours <= 0 {
		problems = append(problems, "curator.session_ttl_hours must be > 0")
	}
	if c.Curator.MatcherConcurrency < 1 || c.Curator.MatcherConcurrency > 32 {
		problems = append(problems, "curator.matcher_concurrency must be between 1 and 32")
	}
	return problems
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
