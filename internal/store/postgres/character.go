package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"crowdedhouse/internal/store"
)

const characterColumns = `id, name, channel_id, created_at, state, is_npc`

func (q *queries) CreateCharacter(ctx context.Context, in store.CharacterInput) (store.Character, error) {
	stateJSON, err := store.EncodeState(in.State)
	if err != nil {
		return store.Character{}, err
	}

	query := `
INSERT INTO characters (name, name_normalized, channel_id, state, is_npc)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + characterColumns

	rows, err := q.db.Query(ctx, query, strings.TrimSpace(in.Name), store.NormalizeName(in.Name), in.ChannelID, stateJSON, in.IsNPC)
	if err != nil {
		return store.Character{}, fmt.Errorf("creating character: %w", err)
	}
	// unique violations surface while reading the RETURNING row
	c, err := collectOneCharacter(rows, in.Name)
	if isUniqueViolation(err) {
		return store.Character{}, fmt.Errorf("creating character %q: %w", in.Name, store.ErrConflict)
	}
	if err != nil {
		return store.Character{}, fmt.Errorf("creating character: %w", err)
	}
	return c, nil
}

func (q *queries) EnsureCharacter(ctx context.Context, in store.CharacterInput) (store.Character, bool, error) {
	stateJSON, err := store.EncodeState(in.State)
	if err != nil {
		return store.Character{}, false, err
	}

	query := `
INSERT INTO characters (name, name_normalized, channel_id, state, is_npc)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (channel_id, name_normalized) DO NOTHING
RETURNING ` + characterColumns

	rows, err := q.db.Query(ctx, query, strings.TrimSpace(in.Name), store.NormalizeName(in.Name), in.ChannelID, stateJSON, in.IsNPC)
	if err != nil {
		return store.Character{}, false, fmt.Errorf("ensuring character: %w", err)
	}
	c, err := collectOneCharacter(rows, in.Name)
	switch {
	case err == nil:
		return c, true, nil
	case errors.Is(err, store.ErrNotFound):
		existing, err := q.GetCharacterByName(ctx, in.Name, in.ChannelID)
		if err != nil {
			return store.Character{}, false, fmt.Errorf("ensuring character: %w", err)
		}
		return existing, false, nil
	default:
		return store.Character{}, false, fmt.Errorf("ensuring character: %w", err)
	}
}

func (q *queries) GetCharacter(ctx context.Context, id int64) (store.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE id = $1`

	rows, err := q.db.Query(ctx, query, id)
	if err != nil {
		return store.Character{}, fmt.Errorf("getting character: %w", err)
	}
	c, err := collectOneCharacter(rows, fmt.Sprintf("#%d", id))
	if err != nil {
		return store.Character{}, fmt.Errorf("getting character %d: %w", id, err)
	}
	return c, nil
}

func (q *queries) GetCharacterByName(ctx context.Context, name, channelID string) (store.Character, error) {
	query := `
SELECT ` + characterColumns + `
FROM characters
WHERE name_normalized = $1
  AND channel_id = $2
`

	rows, err := q.db.Query(ctx, query, store.NormalizeName(name), channelID)
	if err != nil {
		return store.Character{}, fmt.Errorf("getting character by name: %w", err)
	}
	c, err := collectOneCharacter(rows, name)
	if err != nil {
		return store.Character{}, fmt.Errorf("getting character %q: %w", name, err)
	}
	return c, nil
}

func (q *queries) ListCharacters(ctx context.Context, channelIDs []string) ([]store.Character, error) {
	if len(channelIDs) == 0 {
		return []store.Character{}, nil
	}

	query := `
SELECT ` + characterColumns + `
FROM characters
WHERE channel_id = ANY($1)
ORDER BY id
`

	rows, err := q.db.Query(ctx, query, channelIDs)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	characters, err := collectCharacters(rows)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	return characters, nil
}

func (q *queries) AppendCharacterState(ctx context.Context, id int64, key string, value any) error {
	if err := store.ValidateStateKey(key); err != nil {
		return err
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling state value: %w", err)
	}

	query := `
UPDATE characters
SET state = jsonb_set(state, ARRAY[$1::text], $2::jsonb, true)
WHERE id = $3
`

	tag, err := q.db.Exec(ctx, query, key, string(valueJSON), id)
	if err != nil {
		return fmt.Errorf("appending character state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appending character state for %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func collectCharacters(rows pgx.Rows) ([]store.Character, error) {
	defer rows.Close()

	characters := []store.Character{}
	for rows.Next() {
		var c store.Character
		var stateBytes []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.ChannelID, &c.CreatedAt, &stateBytes, &c.IsNPC); err != nil {
			return nil, fmt.Errorf("scanning character: %w", err)
		}
		state, err := store.DecodeState(stateBytes)
		if err != nil {
			return nil, err
		}
		c.State = state
		characters = append(characters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return characters, nil
}

func collectOneCharacter(rows pgx.Rows, label string) (store.Character, error) {
	characters, err := collectCharacters(rows)
	if err != nil {
		return store.Character{}, err
	}
	if len(characters) == 0 {
		return store.Character{}, store.ErrNotFound
	}
	if len(characters) > 1 {
		return store.Character{}, fmt.Errorf("internal error: character uniqueness constraint violated (found %d rows for %q): %w", len(characters), label, store.ErrAmbiguous)
	}
	return characters[0], nil
}
