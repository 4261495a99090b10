package store

import (
	"context"
	"fmt"

	"postengine/internal/models"
)

// TierStore reads membership tiers (the products table).
type TierStore struct {
	q Querier
}

// NewTierStore returns a new TierStore.
func NewTierStore(q Querier) *TierStore {
	return &TierStore{q: q}
}

// List returns all tiers ordered by slug.
func (s *TierStore) List(ctx context.Context) ([]models.Tier, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, slug, active FROM products ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []models.Tier
	for rows.Next() {
		var t models.Tier
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Active); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// FindBySlugs returns the tiers with the given slugs, in the order the
// slugs were given. Unknown slugs are skipped.
func (s *TierStore) FindBySlugs(ctx context.Context, slugs []string) ([]models.Tier, error) {
	return s.findIn(ctx, "slug", slugs)
}

// FindByIDs returns the tiers with the given ids, in the order the ids were
// given. Unknown ids are skipped.
func (s *TierStore) FindByIDs(ctx context.Context, ids []string) ([]models.Tier, error) {
	return s.findIn(ctx, "id", ids)
}

func (s *TierStore) findIn(ctx context.Context, column string, values []string) ([]models.Tier, error) {
	if len(values) == 0 {
		return nil, nil
	}
	byKey := make(map[string]models.Tier, len(values))
	for _, chunk := range chunks(values) {
		query := rebind(fmt.Sprintf("SELECT id, name, slug, active FROM products WHERE %s IN (%s)",
			column, placeholders(len(chunk))))
		rows, err := s.q.QueryContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("find tiers by %s: %w", column, err)
		}
		for rows.Next() {
			var t models.Tier
			if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.Active); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan tier: %w", err)
			}
			if column == "slug" {
				byKey[t.Slug] = t
			} else {
				byKey[t.ID] = t
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("find tiers by %s: %w", column, err)
		}
	}

	tiers := make([]models.Tier, 0, len(byKey))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if t, ok := byKey[v]; ok && !seen[v] {
			seen[v] = true
			tiers = append(tiers, t)
		}
	}
	return tiers, nil
}
