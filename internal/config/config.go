// Package config loads service configuration from an optional YAML file
// overlaid with HIREDRAFT_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	LLM     LLMConfig     `koanf:"llm"`
	Search  SearchConfig  `koanf:"search"`
	Storage StorageConfig `koanf:"storage"`
	Flow    FlowConfig    `koanf:"flow"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	BearerToken    string `koanf:"bearer_token"`
	RequestTimeout string `koanf:"request_timeout"`
}

type LLMConfig struct {
	APIKey             string `koanf:"api_key"`
	BaseURL            string `koanf:"base_url"`
	Model              string `koanf:"model"`
	HistoryTokenBudget int    `koanf:"history_token_budget"`
}

// SearchConfig configures the hosted search API used by the compose
// branch. Leaving it empty disables research grounding.
type SearchConfig struct {
	BaseURL     string `koanf:"base_url"`
	Token       string `koanf:"token"`
	MinSnippets int    `koanf:"min_snippets"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type FlowConfig struct {
	// ResetPolicy is "posting" (keep slots on restart) or "full".
	ResetPolicy string `koanf:"reset_policy"`
	JobTimeout  string `koanf:"job_timeout"`
}

// Load reads configuration from the YAML file at path (skipped when absent)
// and from HIREDRAFT_ environment variables, where a double underscore
// separates nesting levels (HIREDRAFT_LLM__API_KEY -> llm.api_key).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("HIREDRAFT_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "HIREDRAFT_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":              8080,
		"server.request_timeout":   "30s",
		"llm.base_url":             "https://api.openai.com/v1",
		"llm.model":                "gpt-4.1-mini",
		"llm.history_token_budget": 6000,
		"search.min_snippets":      5,
		"storage.path":             "./data/hiredraft.db",
		"flow.reset_policy":        "posting",
		"flow.job_timeout":         "5m",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// Validate fails fast on missing required settings. The LLM credential is
// required before any network call; there is no retry and no defaulting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("config: llm.api_key is not set (HIREDRAFT_LLM__API_KEY)")
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("config: llm.base_url is not set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if (c.Search.BaseURL == "") != (c.Search.Token == "") {
		return errors.New("config: search.base_url and search.token must be set together")
	}
	if _, err := time.ParseDuration(c.Server.RequestTimeout); err != nil {
		return fmt.Errorf("config: invalid server.request_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Flow.JobTimeout); err != nil {
		return fmt.Errorf("config: invalid flow.job_timeout: %w", err)
	}
	switch c.Flow.ResetPolicy {
	case "posting", "full":
	default:
		return fmt.Errorf("config: invalid flow.reset_policy %q", c.Flow.ResetPolicy)
	}
	return nil
}

// RequestTimeout returns the parsed server request timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.RequestTimeout)
	return d
}

// JobTimeout returns the parsed worker deadline.
func (c *Config) JobTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Flow.JobTimeout)
	return d
}

// SearchEnabled reports whether research grounding is configured.
func (c *Config) SearchEnabled() bool {
	return c.Search.BaseURL != "" && c.Search.Token != ""
}
