package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"crowdedhouse/internal/store"
)

const characterColumns = `id, name, channel_id, created_at, state, is_npc`

func (q *queries) CreateCharacter(ctx context.Context, in store.CharacterInput) (store.Character, error) {
	stateJSON, err := store.EncodeState(in.State)
	if err != nil {
		return store.Character{}, err
	}

	query := `
	INSERT INTO characters (name, name_normalized, channel_id, created_at, state, is_npc)
	VALUES (?, ?, ?, ?, ?, ?)
	RETURNING ` + characterColumns

	rows, err := q.db.QueryContext(ctx, query, strings.TrimSpace(in.Name), store.NormalizeName(in.Name), in.ChannelID, now(), string(stateJSON), in.IsNPC)
	if err == nil {
		var c store.Character
		c, err = collectOneCharacter(rows, in.Name)
		if err == nil {
			return c, nil
		}
	}
	if isUniqueViolation(err) {
		return store.Character{}, fmt.Errorf("creating character %q: %w", in.Name, store.ErrConflict)
	}
	return store.Character{}, fmt.Errorf("creating character: %w", err)
}

func (q *queries) EnsureCharacter(ctx context.Context, in store.CharacterInput) (store.Character, bool, error) {
	stateJSON, err := store.EncodeState(in.State)
	if err != nil {
		return store.Character{}, false, err
	}

	query := `
	INSERT INTO characters (name, name_normalized, channel_id, created_at, state, is_npc)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (channel_id, name_normalized) DO NOTHING
	RETURNING ` + characterColumns

	rows, err := q.db.QueryContext(ctx, query, strings.TrimSpace(in.Name), store.NormalizeName(in.Name), in.ChannelID, now(), string(stateJSON), in.IsNPC)
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
	rows, err := q.db.QueryContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
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
	WHERE name_normalized = ?
	  AND channel_id = ?
	`

	rows, err := q.db.QueryContext(ctx, query, store.NormalizeName(name), channelID)
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
	WHERE channel_id IN (` + placeholders(len(channelIDs)) + `)
	ORDER BY id
	`

	rows, err := q.db.QueryContext(ctx, query, stringArgs(channelIDs)...)
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
	SET state = json_set(state, ?, json(?))
	WHERE id = ?
	`

	res, err := q.db.ExecContext(ctx, query, `$."`+key+`"`, string(valueJSON), id)
	if err != nil {
		return fmt.Errorf("appending character state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("appending character state: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("appending character state for %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func collectCharacters(rows *sql.Rows) ([]store.Character, error) {
	defer rows.Close()

	characters := []store.Character{}
	for rows.Next() {
		var c store.Character
		var createdAt string
		var stateText string
		if err := rows.Scan(&c.ID, &c.Name, &c.ChannelID, &createdAt, &stateText, &c.IsNPC); err != nil {
			return nil, fmt.Errorf("scanning character: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = created
		state, err := store.DecodeState([]byte(stateText))
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

func collectOneCharacter(rows *sql.Rows, label string) (store.Character, error) {
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
