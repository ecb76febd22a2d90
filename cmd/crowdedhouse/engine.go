package main

import (
	"context"
	"fmt"
	"io"

	"crowdedhouse/internal/completion"
	"crowdedhouse/internal/config"
	"crowdedhouse/internal/narrative"
	"crowdedhouse/internal/store"
	"crowdedhouse/internal/transport"
	"crowdedhouse/internal/transport/discord"
)

// openEngine opens the store, makes sure its schema exists and builds an
// engine delivering through sender. The returned store must be closed.
func openEngine(ctx context.Context, cfg *config.ProjectConfig, sender transport.Sender) (*narrative.Engine, store.Store, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close(ctx)
		return nil, nil, err
	}

	llm, err := completion.New(completion.Config{
		Provider:  cfg.Completion.Provider,
		APIKey:    cfg.APIKey(),
		BaseURL:   cfg.Completion.BaseURL,
		Timeout:   cfg.Completion.Timeout,
		MaxTokens: cfg.Completion.MaxTokens,
	})
	if err != nil {
		db.Close(ctx)
		return nil, nil, err
	}

	engine := narrative.New(db, llm, sender, narrative.SettingsFromConfig(cfg), logger)
	return engine, db, nil
}

// newSender builds the configured transport. Story text goes to out when
// the transport is stdout.
func newSender(cfg *config.ProjectConfig, out io.Writer) (transport.Sender, error) {
	var sender transport.Sender
	switch cfg.Transport.Kind {
	case config.TransportDiscord:
		if cfg.Secrets.DiscordToken == "" {
			return nil, fmt.Errorf("DISCORD_TOKEN is required for the discord transport")
		}
		client := discord.New(discord.Config{
			Token:   cfg.Secrets.DiscordToken,
			AppID:   cfg.Secrets.DiscordAppID,
			BaseURL: cfg.Transport.Discord.BaseURL,
		})
		sender = client.ChannelSender()
	default:
		sender = transport.NewWriter(out)
	}
	return transport.WithRetry(sender, cfg.Transport.Retry+1, cfg.Transport.RetryDelay), nil
}

// explain prefixes an engine error with the message players would see.
func explain(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", narrative.Describe(err), err)
}
