package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// ModeAuto selects fallback across every configured backend.
const ModeAuto = "auto"

// Backends lists the supported LLM backends in default fallback order.
var Backends = []string{"groq", "openrouter", "gemini", "claude"}

type Config struct {
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	LLM      LLMConfig      `toml:"llm"`
	Passage  PassageConfig  `toml:"passage"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or text
}

type DatabaseConfig struct {
	Path        string `toml:"path"`
	MetricsPath string `toml:"metrics_path"`
}

type CacheConfig struct {
	Backend  string `toml:"backend"` // sqlite or redis
	RedisURL string `toml:"redis_url"`
	TTLHours int    `toml:"ttl_hours"`
}

type LLMConfig struct {
	Provider          string            `toml:"provider"` // "auto" or a backend name
	Order             []string          `toml:"order"`
	AttemptTimeoutSec int               `toml:"attempt_timeout_sec"`
	Aliases           map[string]string `toml:"aliases"`

	Groq       BackendConfig `toml:"groq"`
	OpenRouter BackendConfig `toml:"openrouter"`
	Gemini     BackendConfig `toml:"gemini"`
	Claude     BackendConfig `toml:"claude"`
}

// BackendConfig holds the per-backend credentials and overrides. Empty
// fields fall back to the backend defaults.
type BackendConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
}

// Backend returns the section for a backend name.
func (c LLMConfig) Backend(name string) (BackendConfig, bool) {
	switch name {
	case "groq":
		return c.Groq, true
	case "openrouter":
		return c.OpenRouter, true
	case "gemini":
		return c.Gemini, true
	case "claude":
		return c.Claude, true
	}
	return BackendConfig{}, false
}

type PassageConfig struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	IncludeHeadings bool   `toml:"include_headings"`
	TimeoutSec      int    `toml:"timeout_sec"`
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			Path:        "data/scribby.db",
			MetricsPath: "data/metrics.db",
		},
		Cache: CacheConfig{
			Backend:  "sqlite",
			TTLHours: 24 * 30,
		},
		LLM: LLMConfig{
			Provider:          ModeAuto,
			Order:             slices.Clone(Backends),
			AttemptTimeoutSec: 120,
			Aliases: map[string]string{
				"anthropic": "claude",
				"google":    "gemini",
				"llama":     "groq",
			},
		},
		Passage: PassageConfig{
			BaseURL:    "https://api.esv.org/v3/passage/text/",
			TimeoutSec: 30,
		},
	}
}

// Load reads the TOML file at path over the defaults, then overlays the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv loads KEY=value pairs from a .env file into the process
// environment without overriding variables already set.
func LoadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("GROQ_API_KEY", &c.LLM.Groq.APIKey)
	str("OPENROUTER_API_KEY", &c.LLM.OpenRouter.APIKey)
	str("GOOGLE_API_KEY", &c.LLM.Gemini.APIKey)
	str("ANTHROPIC_API_KEY", &c.LLM.Claude.APIKey)
	str("ESV_API_KEY", &c.Passage.APIKey)
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("SCRIBBY_DB_PATH", &c.Database.Path)
	str("SCRIBBY_METRICS_PATH", &c.Database.MetricsPath)
	str("SCRIBBY_CACHE_BACKEND", &c.Cache.Backend)
	str("REDIS_URL", &c.Cache.RedisURL)
	str("SCRIBBY_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("SCRIBBY_ATTEMPT_TIMEOUT_SEC"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: SCRIBBY_ATTEMPT_TIMEOUT_SEC %q is not an integer", ErrInvalidConfig, v)
		}
		c.LLM.AttemptTimeoutSec = n
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	return nil
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	mode := c.LLM.Provider
	if mode != ModeAuto && !slices.Contains(Backends, mode) {
		if _, ok := c.LLM.Aliases[mode]; !ok {
			return fmt.Errorf("%w: unknown llm.provider %q", ErrInvalidConfig, mode)
		}
	}
	for _, name := range c.LLM.Order {
		if !slices.Contains(Backends, name) {
			return fmt.Errorf("%w: unknown backend %q in llm.order", ErrInvalidConfig, name)
		}
	}
	for alias, target := range c.LLM.Aliases {
		if !slices.Contains(Backends, target) {
			return fmt.Errorf("%w: alias %q points to unknown backend %q", ErrInvalidConfig, alias, target)
		}
	}
	if c.LLM.AttemptTimeoutSec <= 0 {
		return fmt.Errorf("%w: llm.attempt_timeout_sec must be positive", ErrInvalidConfig)
	}
	switch c.Cache.Backend {
	case "sqlite":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: cache.backend redis needs cache.redis_url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache.backend %q", ErrInvalidConfig, c.Cache.Backend)
	}
	if c.Passage.TimeoutSec <= 0 {
		return fmt.Errorf("%w: passage.timeout_sec must be positive", ErrInvalidConfig)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
