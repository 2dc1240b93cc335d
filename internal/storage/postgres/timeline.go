package postgres

import (
	"context"
	"encoding/json"

	"github.com/meshcompute/inference-marketplace/internal/domain"
)

func (s *Store) AppendTimelineEvent(ctx context.Context, ev domain.TimelineEvent) (domain.TimelineEvent, error) {
	metaJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		return domain.TimelineEvent{}, err
	}
	const q = `
		INSERT INTO subtask_timeline_events (id, subtask_id, event_type, message, metadata_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`
	row := s.Querier(ctx).QueryRowContext(ctx, q, ev.ID, ev.SubtaskID, ev.EventType, ev.Message, metaJSON, ev.CreatedAt)
	if err := row.Scan(&ev.CreatedAt); err != nil {
		return domain.TimelineEvent{}, mapErr(err)
	}
	return ev, nil
}

func (s *Store) ListTimelineEvents(ctx context.Context, subtaskID string) ([]domain.TimelineEvent, error) {
	const q = `
		SELECT id, subtask_id, event_type, message, metadata_json, created_at
		FROM subtask_timeline_events WHERE subtask_id = $1 ORDER BY created_at`
	rows, err := s.Querier(ctx).QueryContext(ctx, q, subtaskID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.TimelineEvent
	for rows.Next() {
		var ev domain.TimelineEvent
		var metaJSON []byte
		if err := rows.Scan(&ev.ID, &ev.SubtaskID, &ev.EventType, &ev.Message, &metaJSON, &ev.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, mapErr(rows.Err())
}
