package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"crowdedhouse/internal/store"
)

const memoryColumns = `id, channel_id, text, created_at, related_id, spoken_by_id`

func (q *queries) CreateMemory(ctx context.Context, in store.MemoryInput) (int64, error) {
	query := `
INSERT INTO memories (channel_id, text, related_id, spoken_by_id)
VALUES ($1, $2, $3, $4)
RETURNING id
`

	var id int64
	err := q.db.QueryRow(ctx, query, in.ChannelID, in.Text, in.RelatedCharacterID, in.SpokenByCharacterID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating memory: %w", err)
	}
	return id, nil
}

func (q *queries) ListMemories(ctx context.Context, filter store.MemoryFilter) ([]store.Memory, error) {
	if len(filter.ChannelIDs) == 0 {
		return []store.Memory{}, nil
	}

	where := []string{"channel_id = ANY($1)"}
	args := []any{filter.ChannelIDs}

	if filter.RelatedCharacterID != nil {
		args = append(args, *filter.RelatedCharacterID)
		if filter.IncludeGeneral {
			where = append(where, fmt.Sprintf("(related_id = $%d OR related_id IS NULL)", len(args)))
		} else {
			where = append(where, fmt.Sprintf("related_id = $%d", len(args)))
		}
	}
	if filter.SpokenByCharacterID != nil {
		args = append(args, *filter.SpokenByCharacterID)
		where = append(where, fmt.Sprintf("spoken_by_id = $%d", len(args)))
	}

	query := `
SELECT ` + memoryColumns + `
FROM memories
WHERE ` + strings.Join(where, "\n  AND ") + `
ORDER BY created_at DESC, id DESC
`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("LIMIT $%d\n", len(args))
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	memories, err := collectMemories(rows)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	return memories, nil
}

func (q *queries) ListDanglingMemories(ctx context.Context) ([]store.Memory, error) {
	query := `
SELECT m.id, m.channel_id, m.text, m.created_at, m.related_id, m.spoken_by_id
FROM memories m
WHERE (m.related_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM characters c WHERE c.id = m.related_id))
   OR (m.spoken_by_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM characters c WHERE c.id = m.spoken_by_id))
ORDER BY m.id
`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing dangling memories: %w", err)
	}
	memories, err := collectMemories(rows)
	if err != nil {
		return nil, fmt.Errorf("listing dangling memories: %w", err)
	}
	return memories, nil
}

func collectMemories(rows pgx.Rows) ([]store.Memory, error) {
	defer rows.Close()

	memories := []store.Memory{}
	for rows.Next() {
		var m store.Memory
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Text, &m.CreatedAt, &m.RelatedCharacterID, &m.SpokenByCharacterID); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}
