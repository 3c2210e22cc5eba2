package config

import (
	"path/filepath"
	"time"

	"groupchat/model"
)

func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Storage: StorageConfig{
			Driver:     "memory",
			SQLitePath: filepath.Join(GetDefaultDataDir(), "groupchat.db"),
		},
		Provider: ProviderConfig{
			Type:  "gemini",
			Model: "gemini-2.0-flash",
		},
		Generation: GenerationConfig{
			Mode:         "direct",
			Timeout:      30 * time.Second,
			PollInterval: time.Second,
			PollTicks:    30,
			Stagger:      time.Second,
			HistoryLimit: 10,
		},
		RateLimit: RateLimitConfig{
			Backend:  "memory",
			Requests: 30,
			Window:   time.Hour,
		},
		Worker: WorkerConfig{
			Enabled:      true,
			Concurrency:  10,
			PollInterval: 500 * time.Millisecond,
		},
		Intervention: InterventionConfig{
			ProactiveChance: 0.3,
			Participants: []model.AIParticipant{
				{Role: model.RoleModerator, Sensitivity: model.SensitivityConservative},
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func GenerateConfigTemplate() string {
	return `# groupchat configuration
# Location: ~/.config/groupchat/settings.toml
# This file uses TOML format: https://toml.io
# Every value can also be set through GROUPCHAT_* environment variables
# or a .env file in the working directory.

# "development" logs to the console, anything else logs JSON
env = "development"

[server]
addr = ":8080"
read_timeout = "15s"
shutdown_timeout = "30s"
allowed_origins = ["*"]

[storage]
# memory, sqlite or redis
driver = "memory"
sqlite_path = "~/.local/share/groupchat/groupchat.db"
# redis_url = "redis://localhost:6379/0"

[provider]
# gemini, ollama, openai, openrouter, anthropic or none
type = "gemini"
model = "gemini-2.0-flash"
# base_url = ""
# Prefer GEMINI_API_KEY / OPENAI_API_KEY / ANTHROPIC_API_KEY / OPENROUTER_API_KEY
# api_key = ""

[generation]
# direct calls the provider inline; queued writes a request and polls for
# the worker's answer
mode = "direct"
timeout = "30s"
poll_interval = "1s"
poll_ticks = 30
# delay between starting each AI participant for one message
stagger = "1s"
# number of recent messages given to the decision engine and the generator
history_limit = 10

[ratelimit]
# memory or redis
backend = "memory"
requests = 30
window = "1h"

[worker]
# process queued generation requests inside the server
enabled = true
concurrency = 10
poll_interval = "500ms"

[intervention]
# chance that a proactive moderator joins in without another trigger
proactive_chance = 0.3

# Default AI participants for new conversations.
# sensitivity: silent, conservative, balanced or proactive
[[intervention.participants]]
role = "moderator"
sensitivity = "conservative"

# [[intervention.participants]]
# role = "planner"
# custom_mention = "plan"
# sensitivity = "balanced"

[log]
# debug, info, warn or error
level = "info"
# console or json
format = "console"
`
}
