package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	// All statements run in one implicit transaction; IF NOT EXISTS keeps
	// repeated runs idempotent.
	ddl := `
CREATE TABLE IF NOT EXISTS characters (
    id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    name            TEXT NOT NULL,
    name_normalized TEXT NOT NULL,
    channel_id      TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    state           JSONB NOT NULL DEFAULT '{}',
    is_npc          BOOLEAN NOT NULL DEFAULT FALSE,
    CONSTRAINT uq_character_channel_name UNIQUE (channel_id, name_normalized)
);

CREATE TABLE IF NOT EXISTS memories (
    id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    channel_id   TEXT NOT NULL,
    text         TEXT NOT NULL,
    related_id   BIGINT NULL,
    spoken_by_id BIGINT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS directives (
    id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    channel_id TEXT NOT NULL,
    text       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS timelines (
    id         TEXT NOT NULL PRIMARY KEY,
    parent_id  TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_characters_channel ON characters (channel_id);
CREATE INDEX IF NOT EXISTS idx_memories_channel_created ON memories (channel_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_related ON memories (related_id) WHERE related_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_memories_spoken_by ON memories (spoken_by_id) WHERE spoken_by_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_directives_channel ON directives (channel_id);
CREATE INDEX IF NOT EXISTS idx_timelines_parent ON timelines (parent_id);
`
	_, err := c.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
