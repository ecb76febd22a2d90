package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadProjectConfig(t *testing.T) {
	t.Run("valid config loads", func(t *testing.T) {
		cfg, err := LoadProjectConfig(filepath.Join("testdata", "valid_config.yaml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Completion.Provider != "anthropic" {
			t.Fatalf("expected provider anthropic, got %q", cfg.Completion.Provider)
		}
		if cfg.Completion.Timeout != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", cfg.Completion.Timeout)
		}
		if cfg.Transport.RetryDelay != 500*time.Millisecond {
			t.Fatalf("expected 500ms retry delay, got %v", cfg.Transport.RetryDelay)
		}
		if cfg.Narration.DefaultDirective != "write like a ship's log" {
			t.Fatalf("unexpected directive %q", cfg.Narration.DefaultDirective)
		}
		if len(cfg.Seed.Paths) != 1 || cfg.Seed.Paths[0] != "./sheets" {
			t.Fatalf("unexpected seed paths %v", cfg.Seed.Paths)
		}
		if len(cfg.Seed.Exclude) != 1 {
			t.Fatalf("unexpected seed excludes %v", cfg.Seed.Exclude)
		}
	})

	t.Run("unset fields keep defaults", func(t *testing.T) {
		cfg, err := LoadProjectConfig(filepath.Join("testdata", "valid_config.yaml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Narration.ContinuePrompt != DefaultContinuePrompt {
			t.Fatalf("expected default continue prompt, got %q", cfg.Narration.ContinuePrompt)
		}
		if cfg.Transport.MessageLimit != 2000 {
			t.Fatalf("expected default message limit, got %d", cfg.Transport.MessageLimit)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("CROWDEDHOUSE_DATABASE_URL", "postgres://localhost/story")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
		t.Setenv("DISCORD_TOKEN", "bot-token")

		cfg, err := LoadProjectConfig(filepath.Join("testdata", "valid_config.yaml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Database.DSN != "postgres://localhost/story" {
			t.Fatalf("expected env dsn, got %q", cfg.Database.DSN)
		}
		if cfg.APIKey() != "sk-ant" {
			t.Fatalf("expected anthropic key, got %q", cfg.APIKey())
		}
		if cfg.Secrets.DiscordToken != "bot-token" {
			t.Fatalf("expected discord token, got %q", cfg.Secrets.DiscordToken)
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		path := writeTempConfig(t, "version: 2\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		path := writeTempConfig(t, "version: 1\ncompletion:\n  provider: palm\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown transport", func(t *testing.T) {
		path := writeTempConfig(t, "version: 1\ntransport:\n  kind: carrier-pigeon\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("temperature out of range", func(t *testing.T) {
		path := writeTempConfig(t, "version: 1\ncompletion:\n  temperature: 3\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("empty dsn", func(t *testing.T) {
		path := writeTempConfig(t, "version: 1\ndatabase:\n  dsn: \"\"\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("negative history limit", func(t *testing.T) {
		path := writeTempConfig(t, "version: 1\nnarration:\n  history_limit: -1\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := LoadProjectConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeTempConfig(t, "version: [\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Completion.Model != "gpt-3.5-turbo-16k" {
		t.Fatalf("expected default model, got %q", cfg.Completion.Model)
	}
	if cfg.APIKey() != "sk-test" {
		t.Fatalf("expected openai key, got %q", cfg.APIKey())
	}

	bad := writeTempConfig(t, "version: [\n")
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected parse error to surface")
	}
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}
