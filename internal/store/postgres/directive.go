package postgres

import (
	"context"
	"fmt"
	"strings"

	"crowdedhouse/internal/store"
)

func (q *queries) CreateDirective(ctx context.Context, channelID, text string) error {
	_, err := q.db.Exec(ctx, `INSERT INTO directives (channel_id, text) VALUES ($1, $2)`, channelID, text)
	if err != nil {
		return fmt.Errorf("creating directive: %w", err)
	}
	return nil
}

func (q *queries) GetDirective(ctx context.Context, channelID string) (string, error) {
	rows, err := q.db.Query(ctx, `SELECT text FROM directives WHERE channel_id = $1 ORDER BY id`, channelID)
	if err != nil {
		return "", fmt.Errorf("getting directive: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return "", fmt.Errorf("scanning directive: %w", err)
		}
		parts = append(parts, text)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating directives: %w", err)
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("directive for channel %s: %w", channelID, store.ErrNotFound)
	}
	return strings.Join(parts, "\n"), nil
}
