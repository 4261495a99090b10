package store

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"postengine/internal/models"
)

// ActionStore appends audit actions. Rows are never updated.
type ActionStore struct {
	q Querier
}

// NewActionStore returns a new ActionStore.
func NewActionStore(q Querier) *ActionStore {
	return &ActionStore{q: q}
}

// AddActions records one event per resource id. ULID ids keep the log
// sortable by insertion time.
func (s *ActionStore) AddActions(ctx context.Context, event, resourceType string, ids []string, actor models.Actor) error {
	actor = actor.OrInternal()
	rows := make([][]any, len(ids))
	for i, id := range ids {
		rows[i] = []any{ulid.Make().String(), id, resourceType, actor.ID, actor.Type, event}
	}
	if _, err := BulkInsert(ctx, s.q, "actions",
		[]string{"id", "resource_id", "resource_type", "actor_id", "actor_type", "event"}, rows, false); err != nil {
		return fmt.Errorf("add %s actions: %w", event, err)
	}
	return nil
}

// ListForResource returns the actions recorded for a resource, oldest first.
func (s *ActionStore) ListForResource(ctx context.Context, resourceType, resourceID string) ([]models.Action, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, resource_id, resource_type, actor_id, actor_type, event, created_at
		FROM actions
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY id
	`, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var items []models.Action
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(&a.ID, &a.ResourceID, &a.ResourceType, &a.ActorID, &a.ActorType, &a.Event, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
