package repository

import (
	"context"
	"sort"
	"time"

	"github.com/forge3d/assetvault/internal/store"
)

// ToggleFavorite flips the favorite flag on an asset and returns the
// new state.
func (r *AssetRepo) ToggleFavorite(ctx context.Context, uuid string) (bool, error) {
	a, err := r.ByUUID(ctx, uuid)
	if err != nil {
		return false, err
	}
	next := !a.IsFavorite
	if err := r.SetFavorite(ctx, uuid, next); err != nil {
		return false, err
	}
	return next, nil
}

// SetFavorite sets the favorite flag on an asset.
func (r *AssetRepo) SetFavorite(ctx context.Context, uuid string, favorite bool) error {
	return r.Update(ctx, uuid, map[string]any{"is_favorite": boolInt(favorite)})
}

// Favorites returns all favorite assets ordered by name.
func (r *AssetRepo) Favorites(ctx context.Context) ([]Asset, error) {
	return r.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE is_favorite = 1 ORDER BY name")
}

// UpdateLastViewed stamps an asset with the current time.
func (r *AssetRepo) UpdateLastViewed(ctx context.Context, uuid string) error {
	return r.Update(ctx, uuid, map[string]any{"last_viewed_date": time.Now()})
}

// Recent returns the most recently viewed assets.
func (r *AssetRepo) Recent(ctx context.Context, limit int) ([]Asset, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.queryAssets(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE last_viewed_date IS NOT NULL
		ORDER BY last_viewed_date DESC
		LIMIT ?`, limit)
}

// AllTags returns the distinct tag strings used across all assets.
func (r *AssetRepo) AllTags(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT tags FROM assets WHERE tags IS NOT NULL AND tags != '' AND tags != '[]'")
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		a := Asset{}
		if err := decodeTags(raw, &a); err != nil {
			continue
		}
		for _, tag := range a.Tags {
			if tag != "" {
				seen[tag] = struct{}{}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}
