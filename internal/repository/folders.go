package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/forge3d/assetvault/internal/store"
)

// Folder is an organizational node. Assets carry one primary folder and
// may additionally appear in any number of virtual folders through the
// asset_folders junction table.
type Folder struct {
	ID          int64
	Name        string
	ParentID    *int64
	Path        string
	Description string
	CreatedDate time.Time
}

// FolderRepo manages folders and virtual folder membership.
type FolderRepo struct {
	db  *sql.DB
	txm *store.TxManager
}

// NewFolderRepo creates a folder repository.
func NewFolderRepo(db *sql.DB) *FolderRepo {
	return &FolderRepo{db: db, txm: store.NewTxManager(db)}
}

// Root returns the root folder.
func (r *FolderRepo) Root(ctx context.Context) (*Folder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, parent_id, path, description, created_date
		FROM folders WHERE parent_id IS NULL LIMIT 1`)
	return scanFolder(row)
}

// ByID returns a folder by ID.
func (r *FolderRepo) ByID(ctx context.Context, id int64) (*Folder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, parent_id, path, description, created_date
		FROM folders WHERE id = ?`, id)
	return scanFolder(row)
}

// Create adds a folder under a parent, returning its ID. The path is
// the parent's path extended with the folder name.
func (r *FolderRepo) Create(ctx context.Context, name string, parentID int64) (int64, error) {
	parent, err := r.ByID(ctx, parentID)
	if err != nil {
		return 0, err
	}
	path := parent.Path + "/" + name

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO folders (name, parent_id, path) VALUES (?, ?, ?)",
		name, parentID, path)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return result.LastInsertId()
}

// Children returns the direct children of a folder, ordered by name.
func (r *FolderRepo) Children(ctx context.Context, parentID int64) ([]Folder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, parent_id, path, description, created_date
		FROM folders WHERE parent_id = ? ORDER BY name`, parentID)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Delete removes a folder. Children and asset memberships cascade.
func (r *FolderRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM folders WHERE id = ? AND parent_id IS NOT NULL", id)
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// AddAsset places an asset in a virtual folder. Membership is purely a
// database relation; no files move.
func (r *FolderRepo) AddAsset(ctx context.Context, assetUUID string, folderID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO asset_folders (asset_uuid, folder_id)
		VALUES (?, ?)`, assetUUID, folderID)
	return store.ConvertDBError(err)
}

// RemoveAsset removes an asset from a virtual folder, reporting
// whether it was a member.
func (r *FolderRepo) RemoveAsset(ctx context.Context, assetUUID string, folderID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM asset_folders WHERE asset_uuid = ? AND folder_id = ?",
		assetUUID, folderID)
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ForAsset returns the virtual folders an asset belongs to.
func (r *FolderRepo) ForAsset(ctx context.Context, assetUUID string) ([]Folder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.parent_id, f.path, f.description, f.created_date
		FROM folders f
		JOIN asset_folders af ON af.folder_id = f.id
		WHERE af.asset_uuid = ?
		ORDER BY f.name`, assetUUID)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// AssetUUIDs returns the assets in a virtual folder.
func (r *FolderRepo) AssetUUIDs(ctx context.Context, folderID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT asset_uuid FROM asset_folders WHERE folder_id = ?", folderID)
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

func scanFolder(row rowScanner) (*Folder, error) {
	var (
		f           Folder
		parentID    sql.NullInt64
		path        sql.NullString
		description sql.NullString
		created     sql.NullTime
	)
	if err := row.Scan(&f.ID, &f.Name, &parentID, &path, &description, &created); err != nil {
		return nil, store.ConvertDBError(err)
	}
	if parentID.Valid {
		f.ParentID = &parentID.Int64
	}
	f.Path = path.String
	f.Description = description.String
	f.CreatedDate = created.Time
	return &f, nil
}
