package sqlite

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS characters (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		name            TEXT NOT NULL,
		name_normalized TEXT NOT NULL,
		channel_id      TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		state           TEXT NOT NULL DEFAULT '{}',
		is_npc          INTEGER NOT NULL DEFAULT 0,
		CONSTRAINT uq_character_channel_name UNIQUE (channel_id, name_normalized)
	);

	CREATE TABLE IF NOT EXISTS memories (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id   TEXT NOT NULL,
		text         TEXT NOT NULL,
		related_id   INTEGER NULL,
		spoken_by_id INTEGER NULL,
		created_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS directives (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		text       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timelines (
		id         TEXT NOT NULL PRIMARY KEY,
		parent_id  TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_characters_channel ON characters (channel_id);
	CREATE INDEX IF NOT EXISTS idx_memories_channel_created ON memories (channel_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_memories_related ON memories (related_id) WHERE related_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_memories_spoken_by ON memories (spoken_by_id) WHERE spoken_by_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_directives_channel ON directives (channel_id);
	CREATE INDEX IF NOT EXISTS idx_timelines_parent ON timelines (parent_id);
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	statements := splitStatements(ddl)
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}
