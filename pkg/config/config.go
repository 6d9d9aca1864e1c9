package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Secret file keys.
const (
	KeyAPIKey   = "api_key"
	KeyModel    = "model"
	KeyChatURL  = "url_chat"
	KeyUsageURL = "url_usage"
)

// DefaultSecretFile is where the secret file is looked up when -config is not given.
const DefaultSecretFile = "res/secret.json"

// Config holds all runtime configuration for the client.
type Config struct {
	SecretFile  string
	Verbose     bool
	LogLevel    string
	Timeout     time.Duration
	Markdown    bool
	NoColor     bool
	HistoryDB   string
	HistoryFile string

	APIKey   string
	Model    string
	ChatURL  string
	UsageURL string
}

// MissingKeyError reports a required key that no source provided.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("config key %q is not set", e.Key)
}

// DefaultConfig returns a baseline configuration without side effects.
func DefaultConfig() Config {
	return Config{
		SecretFile: DefaultSecretFile,
		LogLevel:   "info",
	}
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	cfg.SecretFile = strings.TrimSpace(cfg.SecretFile)
	cfg.LogLevel = strings.TrimSpace(cfg.LogLevel)
	cfg.HistoryDB = strings.TrimSpace(cfg.HistoryDB)
	cfg.HistoryFile = strings.TrimSpace(cfg.HistoryFile)
	cfg.APIKey = strings.Trim(strings.TrimSpace(cfg.APIKey), `"`)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.ChatURL = strings.TrimSpace(cfg.ChatURL)
	cfg.UsageURL = strings.TrimSpace(cfg.UsageURL)
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

// Validate returns a *MissingKeyError for the first required key left empty.
func Validate(cfg Config) error {
	required := []struct {
		key   string
		value string
	}{
		{KeyAPIKey, cfg.APIKey},
		{KeyModel, cfg.Model},
		{KeyChatURL, cfg.ChatURL},
		{KeyUsageURL, cfg.UsageURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &MissingKeyError{Key: r.key}
		}
	}
	return nil
}

// Secrets is the key/value content of a secret file.
type Secrets map[string]string

// ParseSecrets decodes a YAML or JSON document of string values.
// Keys are matched case-insensitively, so API_KEY and api_key are the same key.
func ParseSecrets(data []byte) (Secrets, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	out := make(Secrets, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out, nil
}

// LoadSecretFile reads and parses the secret file at path.
func LoadSecretFile(path string) (Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	return ParseSecrets(data)
}

// ApplySecrets copies known keys from s into cfg. Empty values are ignored.
func ApplySecrets(cfg Config, s Secrets) Config {
	set := func(dst *string, key string) {
		if v := s[key]; v != "" {
			*dst = v
		}
	}
	set(&cfg.APIKey, KeyAPIKey)
	set(&cfg.Model, KeyModel)
	set(&cfg.ChatURL, KeyChatURL)
	set(&cfg.UsageURL, KeyUsageURL)
	return cfg
}

// ApplyEnv overrides cfg with IO_* variables resolved through lookup.
func ApplyEnv(cfg Config, lookup func(string) string) Config {
	if lookup == nil {
		return cfg
	}
	set := func(dst *string, name string) {
		if v := strings.TrimSpace(lookup(name)); v != "" {
			*dst = v
		}
	}
	set(&cfg.APIKey, "IO_API_KEY")
	set(&cfg.Model, "IO_MODEL")
	set(&cfg.ChatURL, "IO_CHAT_URL")
	set(&cfg.UsageURL, "IO_USAGE_URL")
	return cfg
}

// IsMissingKey reports whether err is a *MissingKeyError and returns the key.
func IsMissingKey(err error) (string, bool) {
	var missing *MissingKeyError
	if errors.As(err, &missing) {
		return missing.Key, true
	}
	return "", false
}
