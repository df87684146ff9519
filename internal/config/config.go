package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/pantry/internal/common"
	"github.com/Veraticus/pantry/internal/engine"
	"github.com/Veraticus/pantry/internal/llm"
)

// DefaultDatabasePath is where the catalog lives unless database.path says otherwise.
const DefaultDatabasePath = "~/.local/share/pantry/pantry.db"

// SetDefaults registers the default value of every known key.
func SetDefaults() {
	resolution := engine.DefaultConfig()

	viper.SetDefault("database.path", DefaultDatabasePath)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.retry_delay", time.Second)
	viper.SetDefault("llm.cache_ttl", 24*time.Hour)
	viper.SetDefault("llm.rate_limit", 60)
	viper.SetDefault("llm.timeout", 60*time.Second)

	viper.SetDefault("resolution.confidence_floor", resolution.ConfidenceFloor)
	viper.SetDefault("resolution.ai_confidence", resolution.AIConfidence)
	viper.SetDefault("resolution.max_candidates", resolution.MaxCandidates)
	viper.SetDefault("resolution.workers", resolution.Workers)
	viper.SetDefault("resolution.auto_apply_unconfirmed", resolution.AutoApplyUnconfirmed)
}

// DatabasePath returns the expanded SQLite path.
func DatabasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = DefaultDatabasePath
	}
	if path == ":memory:" {
		return path
	}
	return ExpandPath(path)
}

// LoadLLMConfig builds the oracle configuration from viper. API keys fall
// back to the provider's conventional environment variable.
func LoadLLMConfig() (llm.Config, error) {
	cfg := llm.Config{
		Provider:    strings.ToLower(viper.GetString("llm.provider")),
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
		CacheTTL:    viper.GetDuration("llm.cache_ttl"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		Timeout:     viper.GetDuration("llm.timeout"),
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}

	var keyName, envName string
	switch cfg.Provider {
	case "openai":
		keyName, envName = "llm.openai_api_key", "OPENAI_API_KEY"
	case "anthropic":
		keyName, envName = "llm.anthropic_api_key", "ANTHROPIC_API_KEY"
	case "gemini":
		keyName, envName = "llm.gemini_api_key", "GEMINI_API_KEY"
	default:
		return cfg, fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, cfg.Provider)
	}

	cfg.APIKey = viper.GetString(keyName)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(envName)
	}
	if cfg.APIKey == "" {
		return cfg, common.NewUserError(
			fmt.Sprintf("%s API key not found; set %s or %s", cfg.Provider, keyName, envName),
			common.ErrMissingConfig,
		)
	}
	return cfg, nil
}

// LoadResolutionConfig reads the resolver tuning knobs. Out of range values
// are rejected rather than silently clamped.
func LoadResolutionConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if viper.IsSet("resolution.confidence_floor") {
		cfg.ConfidenceFloor = viper.GetFloat64("resolution.confidence_floor")
	}
	if viper.IsSet("resolution.ai_confidence") {
		cfg.AIConfidence = viper.GetFloat64("resolution.ai_confidence")
	}
	if viper.IsSet("resolution.max_candidates") {
		cfg.MaxCandidates = viper.GetInt("resolution.max_candidates")
	}
	if viper.IsSet("resolution.workers") {
		cfg.Workers = viper.GetInt("resolution.workers")
	}
	if viper.IsSet("resolution.auto_apply_unconfirmed") {
		cfg.AutoApplyUnconfirmed = viper.GetBool("resolution.auto_apply_unconfirmed")
	}

	switch {
	case cfg.ConfidenceFloor < 0 || cfg.ConfidenceFloor > 1:
		return cfg, fmt.Errorf("%w: resolution.confidence_floor must be within [0, 1]", common.ErrInvalidConfig)
	case cfg.AIConfidence < 0 || cfg.AIConfidence > 1:
		return cfg, fmt.Errorf("%w: resolution.ai_confidence must be within [0, 1]", common.ErrInvalidConfig)
	case cfg.MaxCandidates < 1:
		return cfg, fmt.Errorf("%w: resolution.max_candidates must be positive", common.ErrInvalidConfig)
	case cfg.Workers < 1:
		return cfg, fmt.Errorf("%w: resolution.workers must be positive", common.ErrInvalidConfig)
	}
	return cfg, nil
}
