package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"groupchat/model"
)

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
}

type StorageConfig struct {
	// Driver is one of "memory", "sqlite" or "redis".
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
	RedisURL   string `toml:"redis_url"`
}

type ProviderConfig struct {
	// Type is one of "gemini", "ollama", "openai", "openrouter", "anthropic"
	// or "none".
	Type    string `toml:"type"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type GenerationConfig struct {
	// Mode is "direct" (call the provider inline) or "queued" (write a
	// request document and poll for the worker's result).
	Mode         string        `toml:"mode"`
	Timeout      time.Duration `toml:"timeout"`
	PollInterval time.Duration `toml:"poll_interval"`
	PollTicks    int           `toml:"poll_ticks"`
	Stagger      time.Duration `toml:"stagger"`
	HistoryLimit int           `toml:"history_limit"`
}

type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend  string        `toml:"backend"`
	Requests int           `toml:"requests"`
	Window   time.Duration `toml:"window"`
}

type WorkerConfig struct {
	Enabled      bool          `toml:"enabled"`
	Concurrency  int           `toml:"concurrency"`
	PollInterval time.Duration `toml:"poll_interval"`
}

type InterventionConfig struct {
	ProactiveChance float64               `toml:"proactive_chance"`
	Participants    []model.AIParticipant `toml:"participants"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full runtime configuration.
type Config struct {
	Env          string             `toml:"env"`
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Provider     ProviderConfig     `toml:"provider"`
	Generation   GenerationConfig   `toml:"generation"`
	RateLimit    RateLimitConfig    `toml:"ratelimit"`
	Worker       WorkerConfig       `toml:"worker"`
	Intervention InterventionConfig `toml:"intervention"`
	Log          LogConfig          `toml:"log"`
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

// Load layers defaults, the settings file at path (or the default location
// when path is empty), a .env file and environment variables, in that order.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = GetSettingsFilePath()
	}
	if FileExists(path) {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Env = getEnv("GROUPCHAT_ENV", c.Env)
	c.Server.Addr = getEnv("GROUPCHAT_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}

	c.Storage.Driver = getEnv("GROUPCHAT_STORAGE", c.Storage.Driver)
	c.Storage.SQLitePath = getEnv("GROUPCHAT_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.RedisURL = getEnv("REDIS_URL", c.Storage.RedisURL)

	c.Provider.Type = getEnv("GROUPCHAT_PROVIDER", c.Provider.Type)
	c.Provider.BaseURL = getEnv("GROUPCHAT_PROVIDER_URL", c.Provider.BaseURL)
	c.Provider.Model = getEnv("GROUPCHAT_MODEL", c.Provider.Model)
	if c.Provider.APIKey == "" {
		c.Provider.APIKey = providerKeyFromEnv(c.Provider.Type)
	}
	c.Provider.APIKey = getEnv("GROUPCHAT_API_KEY", c.Provider.APIKey)

	c.Generation.Mode = getEnv("GROUPCHAT_GENERATION_MODE", c.Generation.Mode)
	c.RateLimit.Backend = getEnv("GROUPCHAT_RATELIMIT_BACKEND", c.RateLimit.Backend)
	if n, err := strconv.Atoi(os.Getenv("GROUPCHAT_RATELIMIT_REQUESTS")); err == nil && n > 0 {
		c.RateLimit.Requests = n
	}
	if v := os.Getenv("GROUPCHAT_WORKER"); v != "" {
		c.Worker.Enabled = v == "true" || v == "1"
	}

	c.Log.Level = getEnv("GROUPCHAT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("GROUPCHAT_LOG_FORMAT", c.Log.Format)
}

// providerKeyFromEnv reads the vendor's conventional API key variable.
func providerKeyFromEnv(providerType string) string {
	switch providerType {
	case "gemini":
		return getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

// Validate rejects unknown drivers and modes and fills zero values that
// would make the service misbehave.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Storage.RedisURL == "" {
		return fmt.Errorf("storage driver redis requires redis_url")
	}

	switch c.Generation.Mode {
	case "direct", "queued":
	default:
		return fmt.Errorf("unknown generation mode: %s", c.Generation.Mode)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("rate limit backend redis requires redis_url")
		}
	default:
		return fmt.Errorf("unknown rate limit backend: %s", c.RateLimit.Backend)
	}

	if c.Intervention.ProactiveChance < 0 || c.Intervention.ProactiveChance > 1 {
		return fmt.Errorf("proactive_chance must be between 0 and 1, got %v", c.Intervention.ProactiveChance)
	}

	defaults := Default()
	if c.Generation.PollTicks <= 0 {
		c.Generation.PollTicks = defaults.Generation.PollTicks
	}
	if c.Generation.PollInterval <= 0 {
		c.Generation.PollInterval = defaults.Generation.PollInterval
	}
	if c.Generation.Timeout <= 0 {
		c.Generation.Timeout = defaults.Generation.Timeout
	}
	if c.Generation.HistoryLimit <= 0 {
		c.Generation.HistoryLimit = defaults.Generation.HistoryLimit
	}
	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = defaults.RateLimit.Requests
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = defaults.RateLimit.Window
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = defaults.Worker.Concurrency
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = defaults.Worker.PollInterval
	}

	for i, p := range c.Intervention.Participants {
		c.Intervention.Participants[i] = p.Normalize()
	}
	return nil
}

// SQLiteFile returns the expanded sqlite path.
func (c *Config) SQLiteFile() string {
	return ExpandPath(c.Storage.SQLitePath)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
