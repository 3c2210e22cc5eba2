package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in config %s: %v", path, undecoded)
	}
	return nil
}

// Save writes cfg as TOML to path.
func Save(cfg *Config, path string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: may contain API keys
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// CreateDefault writes the commented template to path unless a file is
// already there. It reports whether a file was written.
func CreateDefault(path string) (bool, error) {
	if path == "" {
		path = GetSettingsFilePath()
	}
	if FileExists(path) {
		return false, nil
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateConfigTemplate()), 0600); err != nil {
		return false, fmt.Errorf("failed to write config: %w", err)
	}
	return true, nil
}

// CreateFromEnv writes the defaults with .env and environment overrides
// applied to path, unless a file is already there. It reports whether a file
// was written.
func CreateFromEnv(path string) (bool, error) {
	if path == "" {
		path = GetSettingsFilePath()
	}
	if FileExists(path) {
		return false, nil
	}

	_ = godotenv.Load()
	cfg := Default()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	if err := Save(cfg, path); err != nil {
		return false, err
	}
	return true, nil
}
