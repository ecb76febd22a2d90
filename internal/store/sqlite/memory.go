package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crowdedhouse/internal/store"
)

const memoryColumns = `id, channel_id, text, created_at, related_id, spoken_by_id`

func (q *queries) CreateMemory(ctx context.Context, in store.MemoryInput) (int64, error) {
	query := `
	INSERT INTO memories (channel_id, text, related_id, spoken_by_id, created_at)
	VALUES (?, ?, ?, ?, ?)
	`

	res, err := q.db.ExecContext(ctx, query, in.ChannelID, in.Text, nullableID(in.RelatedCharacterID), nullableID(in.SpokenByCharacterID), now())
	if err != nil {
		return 0, fmt.Errorf("creating memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading memory id: %w", err)
	}
	return id, nil
}

func (q *queries) ListMemories(ctx context.Context, filter store.MemoryFilter) ([]store.Memory, error) {
	if len(filter.ChannelIDs) == 0 {
		return []store.Memory{}, nil
	}

	where := []string{"channel_id IN (" + placeholders(len(filter.ChannelIDs)) + ")"}
	args := stringArgs(filter.ChannelIDs)

	if filter.RelatedCharacterID != nil {
		if filter.IncludeGeneral {
			where = append(where, "(related_id = ? OR related_id IS NULL)")
		} else {
			where = append(where, "related_id = ?")
		}
		args = append(args, *filter.RelatedCharacterID)
	}
	if filter.SpokenByCharacterID != nil {
		where = append(where, "spoken_by_id = ?")
		args = append(args, *filter.SpokenByCharacterID)
	}

	query := `
	SELECT ` + memoryColumns + `
	FROM memories
	WHERE ` + strings.Join(where, "\n	  AND ") + `
	ORDER BY created_at DESC, id DESC
	`
	if filter.Limit > 0 {
		query += "LIMIT ?\n"
		args = append(args, filter.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
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

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing dangling memories: %w", err)
	}
	memories, err := collectMemories(rows)
	if err != nil {
		return nil, fmt.Errorf("listing dangling memories: %w", err)
	}
	return memories, nil
}

func collectMemories(rows *sql.Rows) ([]store.Memory, error) {
	defer rows.Close()

	memories := []store.Memory{}
	for rows.Next() {
		var m store.Memory
		var createdAt string
		var related, spokenBy sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Text, &createdAt, &related, &spokenBy); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		m.CreatedAt = created
		if related.Valid {
			m.RelatedCharacterID = &related.Int64
		}
		if spokenBy.Valid {
			m.SpokenByCharacterID = &spokenBy.Int64
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memories, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
