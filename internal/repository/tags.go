package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/forge3d/assetvault/internal/store"
)

// Tag is a named label assets can carry.
type Tag struct {
	ID          int64
	Name        string
	Color       string
	CreatedDate time.Time
}

// TagRepo manages tags and their asset assignments.
type TagRepo struct {
	db  *sql.DB
	txm *store.TxManager
}

// NewTagRepo creates a tag repository.
func NewTagRepo(db *sql.DB) *TagRepo {
	return &TagRepo{db: db, txm: store.NewTxManager(db)}
}

// Create adds a tag, returning its ID. Creating a tag that already
// exists returns ErrUniqueViolation.
func (r *TagRepo) Create(ctx context.Context, name, color string) (int64, error) {
	if color == "" {
		color = "#607D8B"
	}
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO tags (name, color) VALUES (?, ?)", name, color)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return result.LastInsertId()
}

// ByName returns a tag by name.
func (r *TagRepo) ByName(ctx context.Context, name string) (*Tag, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, color, created_date FROM tags WHERE name = ?", name)
	return scanTag(row)
}

// All returns every tag ordered by name.
func (r *TagRepo) All(ctx context.Context) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, color, created_date FROM tags ORDER BY name")
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Delete removes a tag; its asset assignments cascade away.
func (r *TagRepo) Delete(ctx context.Context, tagID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", tagID)
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// Assign attaches a tag to an asset. Assigning twice is a no-op.
func (r *TagRepo) Assign(ctx context.Context, assetUUID string, tagID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO asset_tags (asset_uuid, tag_id)
		VALUES (?, ?)`, assetUUID, tagID)
	return store.ConvertDBError(err)
}

// Unassign detaches a tag from an asset, reporting whether it was
// attached.
func (r *TagRepo) Unassign(ctx context.Context, assetUUID string, tagID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM asset_tags WHERE asset_uuid = ? AND tag_id = ?", assetUUID, tagID)
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ForAsset returns the tags attached to an asset.
func (r *TagRepo) ForAsset(ctx context.Context, assetUUID string) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.color, t.created_date
		FROM tags t
		JOIN asset_tags at ON at.tag_id = t.id
		WHERE at.asset_uuid = ?
		ORDER BY t.name`, assetUUID)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// AssetUUIDs returns the assets carrying a tag.
func (r *TagRepo) AssetUUIDs(ctx context.Context, tagID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT asset_uuid FROM asset_tags WHERE tag_id = ?", tagID)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		out = append(out, uuid)
	}
	return out, rows.Err()
}

func scanTag(row rowScanner) (*Tag, error) {
	var (
		t       Tag
		color   sql.NullString
		created sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &color, &created); err != nil {
		return nil, store.ConvertDBError(err)
	}
	t.Color = color.String
	t.CreatedDate = created.Time
	return &t, nil
}
