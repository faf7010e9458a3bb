package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/forge3d/assetvault/internal/store"
)

// SettingsRepo is a key-value store for application settings backed by
// the app_settings table.
type SettingsRepo struct {
	db *sql.DB
}

// NewSettingsRepo creates a settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get returns the value for a key, or ErrNotFound.
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM app_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", store.ConvertDBError(err)
	}
	return value.String, nil
}

// GetDefault returns the value for a key, or the fallback when unset.
func (r *SettingsRepo) GetDefault(ctx context.Context, key, fallback string) (string, error) {
	value, err := r.Get(ctx, key)
	if store.IsNotFound(err) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set upserts a key-value pair.
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO app_settings (key, value, updated_at)
		VALUES (?, ?, ?)`, key, value, time.Now())
	return store.ConvertDBError(err)
}

// Delete removes a key, reporting whether it existed.
func (r *SettingsRepo) Delete(ctx context.Context, key string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM app_settings WHERE key = ?", key)
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// All returns every setting as a map.
func (r *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT key, value FROM app_settings ORDER BY key")
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var (
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value.String
	}
	return out, rows.Err()
}
