package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/tablesplit/internal/tablesession"
)

var ErrUserNotFound = errors.New("user not found")

// LookupUser reads a cached profile from the users table.
func (db *DB) LookupUser(ctx context.Context, userID string) (tablesession.Profile, error) {
	var p tablesession.Profile
	err := db.pool.QueryRow(ctx,
		`SELECT name, avatar_url FROM users WHERE id = $1`,
		userID,
	).Scan(&p.DisplayName, &p.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, ErrUserNotFound
		}
		return p, err
	}
	return p, nil
}

// UpsertUser caches a profile resolved from the identity service.
func (db *DB) UpsertUser(ctx context.Context, userID string, p tablesession.Profile) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, name, avatar_url)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url`,
		userID, p.DisplayName, p.AvatarURL,
	)
	return err
}
