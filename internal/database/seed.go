package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Seed populates the database with initial development data: a default
// author, a default newsletter, the free tier and the built-in collections.
// It is a no-op if any user exists already.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	inserts := []struct {
		what  string
		query string
		args  []any
	}{
		{"author", `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)`,
			[]any{uuid.NewString(), "Owner", "owner@postengine.local"}},
		{"newsletter", `INSERT INTO newsletters (id, name, slug) VALUES ($1, $2, $3)`,
			[]any{uuid.NewString(), "Default Newsletter", "default-newsletter"}},
		{"free tier", `INSERT INTO products (id, name, slug) VALUES ($1, $2, $3)`,
			[]any{uuid.NewString(), "Free", "free"}},
		{"featured collection", `INSERT INTO collections (id, title, slug, type, filter) VALUES ($1, $2, $3, $4, $5)`,
			[]any{uuid.NewString(), "Featured", "featured", "automatic", "featured:true"}},
		{"index collection", `INSERT INTO collections (id, title, slug, type) VALUES ($1, $2, $3, $4)`,
			[]any{uuid.NewString(), "Editor's picks", "editors-picks", "manual"}},
	}
	for _, ins := range inserts {
		if _, err := tx.Exec(ins.query, ins.args...); err != nil {
			return fmt.Errorf("seed insert %s: %w", ins.what, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with development data", "author", "owner@postengine.local")
	return nil
}
