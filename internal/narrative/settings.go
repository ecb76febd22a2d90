package narrative

import (
	"crowdedhouse/internal/config"
	"crowdedhouse/internal/fragment"
)

// Settings are the prompt texts and generation parameters an Engine runs
// with.
type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int

	Rules            string
	DefaultDirective string
	TurnNote         string
	ContinuePrompt   string
	HistoryLimit     int

	MessageLimit int
}

func SettingsFromConfig(cfg *config.ProjectConfig) Settings {
	return Settings{
		Model:            cfg.Completion.Model,
		Temperature:      cfg.Completion.Temperature,
		MaxTokens:        cfg.Completion.MaxTokens,
		Rules:            cfg.Narration.Rules,
		DefaultDirective: cfg.Narration.DefaultDirective,
		TurnNote:         cfg.Narration.TurnNote,
		ContinuePrompt:   cfg.Narration.ContinuePrompt,
		HistoryLimit:     cfg.Narration.HistoryLimit,
		MessageLimit:     cfg.Transport.MessageLimit,
	}
}

func (s Settings) withDefaults() Settings {
	if s.DefaultDirective == "" {
		s.DefaultDirective = config.DefaultDirective
	}
	if s.ContinuePrompt == "" {
		s.ContinuePrompt = config.DefaultContinuePrompt
	}
	if s.MessageLimit <= 0 {
		s.MessageLimit = fragment.DefaultLimit
	}
	return s
}
