package postgres

import (
	"context"
	"fmt"

	"crowdedhouse/internal/store"
)

func (q *queries) CreateTimeline(ctx context.Context, channelID, parentChannelID string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO timelines (id, parent_id) VALUES ($1, $2)`, channelID, parentChannelID)
	if isUniqueViolation(err) {
		return fmt.Errorf("creating timeline %s: %w", channelID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating timeline: %w", err)
	}
	return nil
}

func (q *queries) GetParentChannel(ctx context.Context, channelID string) (string, error) {
	rows, err := q.db.Query(ctx, `SELECT parent_id FROM timelines WHERE id = $1`, channelID)
	if err != nil {
		return "", fmt.Errorf("getting parent channel: %w", err)
	}
	defer rows.Close()

	var parents []string
	for rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return "", fmt.Errorf("scanning timeline: %w", err)
		}
		parents = append(parents, parent)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating timelines: %w", err)
	}

	switch len(parents) {
	case 0:
		return "", fmt.Errorf("parent of channel %s: %w", channelID, store.ErrNotFound)
	case 1:
		return parents[0], nil
	default:
		return "", fmt.Errorf("parent of channel %s (found %d rows): %w", channelID, len(parents), store.ErrAmbiguous)
	}
}

func (q *queries) ListTimelines(ctx context.Context) ([]store.Timeline, error) {
	rows, err := q.db.Query(ctx, `SELECT id, parent_id, created_at FROM timelines ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing timelines: %w", err)
	}
	defer rows.Close()

	timelines := []store.Timeline{}
	for rows.Next() {
		var t store.Timeline
		if err := rows.Scan(&t.ChannelID, &t.ParentChannelID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning timeline: %w", err)
		}
		timelines = append(timelines, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timelines: %w", err)
	}
	return timelines, nil
}
