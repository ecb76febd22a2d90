package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crowdedhouse/internal/store"
)

func (q *queries) CreateTimeline(ctx context.Context, channelID, parentChannelID string) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO timelines (id, parent_id, created_at) VALUES (?, ?, ?)`, channelID, parentChannelID, now())
	if isUniqueViolation(err) {
		return fmt.Errorf("creating timeline %s: %w", channelID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating timeline: %w", err)
	}
	return nil
}

func (q *queries) GetParentChannel(ctx context.Context, channelID string) (string, error) {
	var parent string
	err := q.db.QueryRowContext(ctx, `SELECT parent_id FROM timelines WHERE id = ?`, channelID).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("parent of channel %s: %w", channelID, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting parent channel: %w", err)
	}
	return parent, nil
}

func (q *queries) ListTimelines(ctx context.Context) ([]store.Timeline, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, parent_id, created_at FROM timelines ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing timelines: %w", err)
	}
	defer rows.Close()

	timelines := []store.Timeline{}
	for rows.Next() {
		var t store.Timeline
		var createdAt string
		if err := rows.Scan(&t.ChannelID, &t.ParentChannelID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning timeline: %w", err)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		t.CreatedAt = created
		timelines = append(timelines, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timelines: %w", err)
	}
	return timelines, nil
}
