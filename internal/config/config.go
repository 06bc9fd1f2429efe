// Package config holds the application configuration loaded through viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Breaker   BreakerConfig   `mapstructure:"breaker" yaml:"breaker"`
	Guardrail GuardrailConfig `mapstructure:"guardrail" yaml:"guardrail"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Trust     TrustConfig     `mapstructure:"trust" yaml:"trust"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot" yaml:"snapshot"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	FailureThreshold        int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	SuccessThresholdToClose int           `mapstructure:"success_threshold_to_close" yaml:"success_threshold_to_close"`
	OpenDuration            time.Duration `mapstructure:"open_duration" yaml:"open_duration"`
	HalfOpenMaxAttempts     int           `mapstructure:"half_open_max_attempts" yaml:"half_open_max_attempts"`
	// DailyCostLimitUSD of 0 disables cost-triggered opening entirely.
	DailyCostLimitUSD float64 `mapstructure:"daily_cost_limit_usd" yaml:"daily_cost_limit_usd"`
}

// GuardrailConfig tunes the deterministic safety checks.
type GuardrailConfig struct {
	MinConfidence        float64  `mapstructure:"min_confidence" yaml:"min_confidence"`
	ForbiddenKeywords    []string `mapstructure:"forbidden_keywords" yaml:"forbidden_keywords"`
	ForbiddenURLPatterns []string `mapstructure:"forbidden_url_patterns" yaml:"forbidden_url_patterns"`
	MaxHealsPerScenario  int      `mapstructure:"max_heals_per_scenario" yaml:"max_heals_per_scenario"`
}

// CacheConfig tunes the heal cache.
type CacheConfig struct {
	MaxSize              int           `mapstructure:"max_size" yaml:"max_size"`
	TTL                  time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MinConfidenceToCache float64       `mapstructure:"min_confidence_to_cache" yaml:"min_confidence_to_cache"`
	// MaxFailures is the per-entry failure count at which a cached heal is
	// considered dead and evicted on the next lookup.
	MaxFailures int `mapstructure:"max_failures" yaml:"max_failures"`
}

// TrustConfig tunes the trust-level state machine. Levels are 0 (shadow)
// through 4 (silent).
type TrustConfig struct {
	InitialLevel       int           `mapstructure:"initial_level" yaml:"initial_level"`
	MinLevel           int           `mapstructure:"min_level" yaml:"min_level"`
	MaxLevel           int           `mapstructure:"max_level" yaml:"max_level"`
	SuccessesToPromote int           `mapstructure:"successes_to_promote" yaml:"successes_to_promote"`
	FailuresToDemote   int           `mapstructure:"failures_to_demote" yaml:"failures_to_demote"`
	FailureWindow      time.Duration `mapstructure:"failure_window" yaml:"failure_window"`
}

// LLMProvider names a supported provider implementation.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
	ProviderOllama LLMProvider = "ollama"
)

// PricingConfig converts token usage into USD for the breaker's daily budget.
type PricingConfig struct {
	PromptPer1K     float64 `mapstructure:"prompt_per_1k" yaml:"prompt_per_1k"`
	CompletionPer1K float64 `mapstructure:"completion_per_1k" yaml:"completion_per_1k"`
}

// LLMConfig configures the provider client and the orchestrator.
type LLMConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP              float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK              int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxElements       int           `mapstructure:"max_elements" yaml:"max_elements"`
	Pricing           PricingConfig `mapstructure:"pricing" yaml:"pricing"`
}

// SnapshotConfig tunes the chromedp snapshot provider.
type SnapshotConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	CaptureScreenshot bool          `mapstructure:"capture_screenshot" yaml:"capture_screenshot"`
	CaptureDOM        bool          `mapstructure:"capture_dom" yaml:"capture_dom"`
	MaxElements       int           `mapstructure:"max_elements" yaml:"max_elements"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "intent-healer")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Breaker --
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold_to_close", 2)
	v.SetDefault("breaker.open_duration", "5m")
	v.SetDefault("breaker.half_open_max_attempts", 3)
	v.SetDefault("breaker.daily_cost_limit_usd", 10.0)

	// -- Guardrail --
	v.SetDefault("guardrail.min_confidence", 0.75)
	v.SetDefault("guardrail.forbidden_keywords", []string{"delete", "remove", "purge", "destroy", "drop", "wipe"})
	v.SetDefault("guardrail.forbidden_url_patterns", []string{`/admin(/|$)`, `/internal(/|$)`})
	v.SetDefault("guardrail.max_heals_per_scenario", 5)

	// -- Cache --
	v.SetDefault("cache.max_size", 500)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.min_confidence_to_cache", 0.8)
	v.SetDefault("cache.max_failures", 3)

	// -- Trust --
	v.SetDefault("trust.initial_level", 1)
	v.SetDefault("trust.min_level", 0)
	v.SetDefault("trust.max_level", 3)
	v.SetDefault("trust.successes_to_promote", 10)
	v.SetDefault("trust.failures_to_demote", 3)
	v.SetDefault("trust.failure_window", "1h")

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_second", 1.0)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_elements", 50)
	v.SetDefault("llm.pricing.prompt_per_1k", 0.000125)
	v.SetDefault("llm.pricing.completion_per_1k", 0.000375)

	// -- Snapshot --
	v.SetDefault("snapshot.headless", true)
	v.SetDefault("snapshot.capture_screenshot", false)
	v.SetDefault("snapshot.capture_dom", false)
	v.SetDefault("snapshot.max_elements", 100)
	v.SetDefault("snapshot.navigation_timeout", "90s")
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a configuration from a viper
// instance that has already read its sources.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// API keys come from the environment only; they never belong in a file.
	_ = v.BindEnv("llm.api_key", "HEALER_LLM_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker configuration invalid: %w", err)
	}
	if err := c.Guardrail.Validate(); err != nil {
		return fmt.Errorf("guardrail configuration invalid: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration invalid: %w", err)
	}
	if err := c.Trust.Validate(); err != nil {
		return fmt.Errorf("trust configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the breaker settings.
func (b *BreakerConfig) Validate() error {
	if b.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be a positive integer")
	}
	if b.SuccessThresholdToClose <= 0 {
		return fmt.Errorf("success_threshold_to_close must be a positive integer")
	}
	if b.OpenDuration <= 0 {
		return fmt.Errorf("open_duration must be a positive duration")
	}
	if b.HalfOpenMaxAttempts <= 0 {
		return fmt.Errorf("half_open_max_attempts must be a positive integer")
	}
	if b.DailyCostLimitUSD < 0 {
		return fmt.Errorf("daily_cost_limit_usd must not be negative")
	}
	return nil
}

// Validate checks the guardrail settings.
func (g *GuardrailConfig) Validate() error {
	if g.MinConfidence < 0.0 || g.MinConfidence > 1.0 {
		return fmt.Errorf("min_confidence must be between 0.0 and 1.0")
	}
	if g.MaxHealsPerScenario <= 0 {
		return fmt.Errorf("max_heals_per_scenario must be a positive integer")
	}
	return nil
}

// Validate checks the cache settings.
func (c *CacheConfig) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("max_size must be a positive integer")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be a positive duration")
	}
	if c.MinConfidenceToCache < 0.0 || c.MinConfidenceToCache > 1.0 {
		return fmt.Errorf("min_confidence_to_cache must be between 0.0 and 1.0")
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("max_failures must be a positive integer")
	}
	return nil
}

// Validate checks the trust settings.
func (t *TrustConfig) Validate() error {
	if t.MinLevel < 0 || t.MaxLevel > 4 || t.MinLevel > t.MaxLevel {
		return fmt.Errorf("trust levels must satisfy 0 <= min_level <= max_level <= 4")
	}
	if t.InitialLevel < t.MinLevel || t.InitialLevel > t.MaxLevel {
		return fmt.Errorf("initial_level must be within [min_level, max_level]")
	}
	if t.SuccessesToPromote <= 0 {
		return fmt.Errorf("successes_to_promote must be a positive integer")
	}
	if t.FailuresToDemote <= 0 {
		return fmt.Errorf("failures_to_demote must be a positive integer")
	}
	if t.FailureWindow <= 0 {
		return fmt.Errorf("failure_window must be a positive duration")
	}
	return nil
}

// Validate checks the LLM settings.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be a positive duration")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if l.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative")
	}
	return nil
}
