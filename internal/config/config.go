package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Supabase      SupabaseConfig      `yaml:"supabase" mapstructure:"supabase"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Anthropic     AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	Bedrock       BedrockConfig       `yaml:"bedrock" mapstructure:"bedrock"`
	Qualification QualificationConfig `yaml:"qualification" mapstructure:"qualification"`
	Google        GoogleConfig        `yaml:"google" mapstructure:"google"`
	Scrape        ScrapeConfig        `yaml:"scrape" mapstructure:"scrape"`
	Search        SearchConfig        `yaml:"search" mapstructure:"search"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SupabaseConfig holds the REST endpoint used by the supabase driver.
type SupabaseConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	ServiceRoleKey string `yaml:"service_role_key" mapstructure:"service_role_key"`
}

// LLMConfig selects the completion backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxTokens  int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
}

// BedrockConfig holds AWS Bedrock settings. Credentials come from the
// default AWS chain.
type BedrockConfig struct {
	Region  string `yaml:"region" mapstructure:"region"`
	ModelID string `yaml:"model_id" mapstructure:"model_id"`
}

// QualificationConfig holds the deterministic scoring policy.
type QualificationConfig struct {
	Threshold int `yaml:"threshold" mapstructure:"threshold"`
}

// GoogleConfig holds Custom Search JSON API credentials. Search is disabled,
// not fatal, when either is missing.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	CX        string  `yaml:"cx" mapstructure:"cx"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ScrapeConfig configures the page renderers.
type ScrapeConfig struct {
	BrowserEnabled     bool `yaml:"browser_enabled" mapstructure:"browser_enabled"`
	BrowserTimeoutMS   int  `yaml:"browser_timeout_ms" mapstructure:"browser_timeout_ms"`
	SettleMS           int  `yaml:"settle_ms" mapstructure:"settle_ms"`
	RequestTimeoutSecs int  `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	MaxTextChars       int  `yaml:"max_text_chars" mapstructure:"max_text_chars"`
}

// SearchConfig configures evidence search.
type SearchConfig struct {
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// CacheConfig configures the optional Redis search cache.
type CacheConfig struct {
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SearchEnabled reports whether Custom Search credentials are present.
func (c *Config) SearchEnabled() bool {
	return c.Google.Key != "" && c.Google.CX != ""
}

// envAliases lets the unprefixed variable names used by existing
// deployments populate the same keys.
var envAliases = map[string]string{
	"google.key":                "GOOGLE_SEARCH_API_KEY",
	"google.cx":                 "GOOGLE_SEARCH_CX",
	"anthropic.key":             "ANTHROPIC_API_KEY",
	"supabase.url":              "SUPABASE_URL",
	"supabase.service_role_key": "SUPABASE_SERVICE_ROLE_KEY",
	"store.database_url":        "DATABASE_URL",
	"cache.redis_url":           "REDIS_URL",
	"bedrock.region":            "AWS_REGION",
}

// Load reads configuration from .env, config.yaml, and the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		envKey := "PQL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", alias)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pql.db")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-5-haiku-20241022-v1:0")
	v.SetDefault("qualification.threshold", 7)
	v.SetDefault("google.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("google.rate_limit", 0)
	v.SetDefault("scrape.browser_enabled", true)
	v.SetDefault("scrape.browser_timeout_ms", 10000)
	v.SetDefault("scrape.settle_ms", 400)
	v.SetDefault("scrape.request_timeout_secs", 8)
	v.SetDefault("scrape.max_text_chars", 700)
	v.SetDefault("search.limit", 5)
	v.SetDefault("cache.ttl_minutes", 1440)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:8080", "http://127.0.0.1:8080"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command needs. mode is "serve", "qualify",
// "migrate", or "navigate".
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	needsStore := mode == "serve" || mode == "qualify" || mode == "migrate"
	needsLLM := mode == "serve" || mode == "qualify"

	if needsStore {
		switch c.Store.Driver {
		case "sqlite", "postgres":
			require(c.Store.DatabaseURL != "", "store.database_url is required")
		case "supabase":
			require(c.Supabase.URL != "", "supabase.url is required")
			require(c.Supabase.ServiceRoleKey != "", "supabase.service_role_key is required")
		default:
			problems = append(problems, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, supabase", c.Store.Driver))
		}
	}

	if needsLLM {
		switch c.LLM.Provider {
		case "anthropic":
			require(c.Anthropic.Key != "", "anthropic.key is required")
		case "bedrock":
			require(c.Bedrock.Region != "", "bedrock.region is required")
			require(c.Bedrock.ModelID != "", "bedrock.model_id is required")
		default:
			problems = append(problems, fmt.Sprintf("llm.provider %q is not one of anthropic, bedrock", c.LLM.Provider))
		}
	}

	if c.Qualification.Threshold < 1 || c.Qualification.Threshold > 10 {
		problems = append(problems, "qualification.threshold must be between 1 and 10")
	}
	if mode == "serve" {
		require(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
	}
	if mode != "migrate" {
		require(c.Scrape.RequestTimeoutSecs > 0, "scrape.request_timeout_secs must be positive")
		if c.Scrape.BrowserEnabled {
			require(c.Scrape.BrowserTimeoutMS > 0, "scrape.browser_timeout_ms must be positive")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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
