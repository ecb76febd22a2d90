package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "crowdedhouse.yaml"

const (
	DefaultDirective = "you are narrating a story which involves multiple 1st person perspectives. always use the third person."
	DefaultRules     = "You are the narrator of a collaborative story. Continue the story from where it left off, " +
		"building on what has already happened. Never contradict established events or character details."
	DefaultTurnNote = "Each user message is one player's turn, written from their own perspective. " +
		"The name attached to the message identifies which character is acting."
	DefaultContinuePrompt = "continue"
)

type ProjectConfig struct {
	Version    int              `yaml:"version"`
	Database   DatabaseConfig   `yaml:"database"`
	Completion CompletionConfig `yaml:"completion"`
	Narration  NarrationConfig  `yaml:"narration"`
	Transport  TransportConfig  `yaml:"transport"`
	Logging    LoggingConfig    `yaml:"logging"`
	Seed       SeedConfig       `yaml:"seed"`

	// Secrets never come from the project file.
	Secrets Secrets `yaml:"-"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"CROWDEDHOUSE_DATABASE_URL"`
}

type CompletionConfig struct {
	Provider    string        `yaml:"provider" env:"CROWDEDHOUSE_COMPLETION_PROVIDER"`
	Model       string        `yaml:"model" env:"CROWDEDHOUSE_COMPLETION_MODEL"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	BaseURL     string        `yaml:"base_url" env:"CROWDEDHOUSE_COMPLETION_BASE_URL"`
}

type NarrationConfig struct {
	Rules            string `yaml:"rules"`
	DefaultDirective string `yaml:"default_directive"`
	TurnNote         string `yaml:"turn_note"`
	ContinuePrompt   string `yaml:"continue_prompt"`
	// HistoryLimit caps how many recent memories are replayed. Zero replays
	// the whole story.
	HistoryLimit int `yaml:"history_limit"`
}

type TransportConfig struct {
	Kind         string        `yaml:"kind" env:"CROWDEDHOUSE_TRANSPORT"`
	MessageLimit int           `yaml:"message_limit"`
	// Retry is the number of extra delivery attempts per fragment.
	Retry        int           `yaml:"retry"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	Discord      DiscordConfig `yaml:"discord"`
}

type DiscordConfig struct {
	BaseURL string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"CROWDEDHOUSE_LOG_LEVEL"`
	Development bool   `yaml:"development"`
}

// SeedConfig lists where story sheets are read from by the seed command.
type SeedConfig struct {
	Paths   []string `yaml:"paths"`
	Exclude []string `yaml:"exclude"`
}

type Secrets struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	DiscordToken    string `env:"DISCORD_TOKEN"`
	DiscordAppID    string `env:"DISCORD_APP_ID"`
}

const (
	TransportStdout  = "stdout"
	TransportDiscord = "discord"
)

func Default() *ProjectConfig {
	return &ProjectConfig{
		Version:  1,
		Database: DatabaseConfig{DSN: "sqlite://crowdedhouse.db"},
		Completion: CompletionConfig{
			Provider:    "openai",
			Model:       "gpt-3.5-turbo-16k",
			Temperature: 1,
			Timeout:     60 * time.Second,
		},
		Narration: NarrationConfig{
			Rules:            DefaultRules,
			DefaultDirective: DefaultDirective,
			TurnNote:         DefaultTurnNote,
			ContinuePrompt:   DefaultContinuePrompt,
		},
		Transport: TransportConfig{
			Kind:         TransportStdout,
			MessageLimit: 2000,
			Retry:        0,
			RetryDelay:   time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadProjectConfig reads path over Default and applies environment
// overrides.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := validateProjectConfig(cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return cfg, nil
}

// Load is LoadProjectConfig, except that a missing file at path yields
// Default with environment overrides.
func Load(path string) (*ProjectConfig, error) {
	cfg, err := LoadProjectConfig(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	cfg = Default()
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment config: %w", err)
	}
	if err := validateProjectConfig(cfg); err != nil {
		return nil, fmt.Errorf("loading environment config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *ProjectConfig) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}

	switch strings.ToLower(cfg.Completion.Provider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported completion provider: %q", cfg.Completion.Provider)
	}
	if strings.TrimSpace(cfg.Completion.Model) == "" {
		return fmt.Errorf("completion model is required")
	}
	if cfg.Completion.Temperature < 0 || cfg.Completion.Temperature > 2 {
		return fmt.Errorf("completion temperature must be between 0 and 2, got %v", cfg.Completion.Temperature)
	}
	if cfg.Completion.MaxTokens < 0 {
		return fmt.Errorf("completion max_tokens must not be negative")
	}
	if cfg.Completion.Timeout < 0 {
		return fmt.Errorf("completion timeout must not be negative")
	}

	if strings.TrimSpace(cfg.Narration.DefaultDirective) == "" {
		return fmt.Errorf("narration default_directive is required")
	}
	if strings.TrimSpace(cfg.Narration.ContinuePrompt) == "" {
		return fmt.Errorf("narration continue_prompt is required")
	}
	if cfg.Narration.HistoryLimit < 0 {
		return fmt.Errorf("narration history_limit must not be negative")
	}

	switch cfg.Transport.Kind {
	case TransportStdout, TransportDiscord:
	default:
		return fmt.Errorf("unsupported transport kind: %q", cfg.Transport.Kind)
	}
	if cfg.Transport.MessageLimit <= 0 {
		return fmt.Errorf("transport message_limit must be positive")
	}
	if cfg.Transport.Retry < 0 {
		return fmt.Errorf("transport retry must not be negative")
	}

	return nil
}

// APIKey returns the credential for the configured completion provider.
func (c *ProjectConfig) APIKey() string {
	if strings.EqualFold(c.Completion.Provider, "anthropic") {
		return c.Secrets.AnthropicAPIKey
	}
	return c.Secrets.OpenAIAPIKey
}
