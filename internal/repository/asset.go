// Package repository provides data access for assets, versions,
// variants, representation designations, custom proxies, and
// application settings.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/store"
)

// Asset is one row of the assets table. Each row is a single version
// of a single variant; lineage is expressed through VersionGroupID and
// AssetID.
type Asset struct {
	ID          int64
	UUID        string
	Name        string
	Description string
	FolderID    int64
	AssetType   string

	USDFilePath     string
	BlendBackupPath string
	ThumbnailPath   string
	PreviewPath     string

	FileSizeMB        float64
	Tags              []string
	Author            string
	SourceApplication string

	Status             string
	RepresentationType string

	Version           int64
	VersionLabel      string
	VersionGroupID    string
	IsLatest          bool
	ParentVersionUUID string
	VersionNotes      string

	AssetID            string
	VariantName        string
	VariantSet         string
	VariantSourceUUID  string
	SourceAssetName    string
	SourceVersionLabel string

	IsLocked              bool
	IsImmutable           bool
	IsCold                bool
	ColdStoragePath       string
	OriginalUSDPath       string
	OriginalBlendPath     string
	OriginalThumbnailPath string

	IsRetired     bool
	RetiredDate   *time.Time
	RetiredBy     string
	PublishedDate *time.Time
	PublishedBy   string

	IsFavorite     bool
	LastViewedDate *time.Time
	CustomOrder    int64

	CreatedDate  time.Time
	ModifiedDate time.Time
}

// assetColumns is the select list scanAsset expects, in order.
const assetColumns = `id, uuid, name, description, folder_id, asset_type,
	usd_file_path, blend_backup_path, thumbnail_path, preview_path,
	file_size_mb, tags, author, source_application,
	status, representation_type,
	version, version_label, version_group_id, is_latest, parent_version_uuid, version_notes,
	asset_id, variant_name, variant_set, variant_source_uuid, source_asset_name, source_version_label,
	is_locked, is_immutable, is_cold, cold_storage_path, original_usd_path, original_blend_path, original_thumbnail_path,
	is_retired, retired_date, retired_by, published_date, published_by,
	is_favorite, last_viewed_date, custom_order, created_date, modified_date`

// AssetRepo is the repository for asset rows and their lineage.
type AssetRepo struct {
	db     *sql.DB
	txm    *store.TxManager
	logger *zap.Logger
}

// NewAssetRepo creates an asset repository.
func NewAssetRepo(db *sql.DB, logger *zap.Logger) *AssetRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetRepo{db: db, txm: store.NewTxManager(db), logger: logger}
}

// TxManager exposes the repository's transaction manager so services
// can group repository calls with their own statements.
func (r *AssetRepo) TxManager() *store.TxManager { return r.txm }

// ListFilter narrows All and Count queries.
type ListFilter struct {
	FolderID       *int64
	AssetType      string
	IncludeRetired bool
}

// Add inserts a new asset row, filling version and variant defaults:
// a row without a version group starts its own lineage, and a row
// without a family joins the lineage's family.
func (r *AssetRepo) Add(ctx context.Context, a *Asset) (int64, error) {
	applyInsertDefaults(a)

	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	a.CreatedDate = now
	a.ModifiedDate = now

	var id int64
	err = r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		// folder_id references folders(id); rows without an explicit
		// folder land in the root folder.
		if a.FolderID == 0 {
			if err := tx.QueryRowContext(ctx,
				"SELECT id FROM folders WHERE parent_id IS NULL LIMIT 1").Scan(&a.FolderID); err != nil {
				return fmt.Errorf("resolving root folder: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO assets (
				uuid, name, description, folder_id, asset_type,
				usd_file_path, blend_backup_path, thumbnail_path, preview_path,
				file_size_mb, tags, author, source_application,
				status, representation_type,
				version, version_label, version_group_id, is_latest, parent_version_uuid, version_notes,
				asset_id, variant_name, variant_set, variant_source_uuid,
				source_asset_name, source_version_label,
				created_date, modified_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.UUID, a.Name, a.Description, a.FolderID, a.AssetType,
			nullStr(a.USDFilePath), nullStr(a.BlendBackupPath), nullStr(a.ThumbnailPath), nullStr(a.PreviewPath),
			a.FileSizeMB, string(tags), a.Author, a.SourceApplication,
			a.Status, a.RepresentationType,
			a.Version, a.VersionLabel, a.VersionGroupID, boolInt(a.IsLatest), nullStr(a.ParentVersionUUID), nullStr(a.VersionNotes),
			a.AssetID, a.VariantName, nullStr(a.VariantSet), nullStr(a.VariantSourceUUID),
			nullStr(a.SourceAssetName), nullStr(a.SourceVersionLabel),
			now, now)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, store.ConvertDBError(err)
	}

	a.ID = id
	r.logger.Debug("asset added",
		zap.String("uuid", a.UUID),
		zap.String("name", a.Name),
		zap.String("version_label", a.VersionLabel),
		zap.String("variant", a.VariantName))
	return id, nil
}

// applyInsertDefaults fills lineage identifiers and labels the way the
// insert path expects them.
func applyInsertDefaults(a *Asset) {
	if a.VersionGroupID == "" {
		a.VersionGroupID = a.UUID
	}
	// A row starting its own lineage is that lineage's head.
	if a.VersionGroupID == a.UUID {
		a.IsLatest = true
	}
	if a.Version == 0 {
		a.Version = 1
	}
	if a.VersionLabel == "" {
		a.VersionLabel = fmt.Sprintf("v%03d", a.Version)
	}
	if a.AssetID == "" {
		a.AssetID = a.VersionGroupID
	}
	if a.VariantName == "" {
		a.VariantName = "Base"
	}
	if a.Status == "" {
		a.Status = "wip"
	}
	if a.RepresentationType == "" {
		a.RepresentationType = "none"
	}
	if a.SourceApplication == "" {
		a.SourceApplication = "Blender"
	}
}

// ByUUID returns the asset row for a UUID.
func (r *AssetRepo) ByUUID(ctx context.Context, uuid string) (*Asset, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE uuid = ?", uuid)
	a, err := scanAsset(row)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return a, nil
}

// NameExists reports whether an asset with the name exists, optionally
// scoped to a folder and excluding one UUID for rename checks.
func (r *AssetRepo) NameExists(ctx context.Context, name string, folderID *int64, excludeUUID string) (bool, error) {
	query := "SELECT 1 FROM assets WHERE name = ?"
	args := []any{name}
	if folderID != nil {
		query += " AND folder_id = ?"
		args = append(args, *folderID)
	}
	if excludeUUID != "" {
		query += " AND uuid != ?"
		args = append(args, excludeUUID)
	}
	query += " LIMIT 1"

	var one int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	return true, nil
}

// All returns assets matching the filter, ordered by name. Retired
// assets are hidden unless the filter includes them.
func (r *AssetRepo) All(ctx context.Context, filter ListFilter) ([]Asset, error) {
	query := "SELECT " + assetColumns + " FROM assets WHERE 1=1"
	var args []any
	if !filter.IncludeRetired {
		query += " AND (is_retired = 0 OR is_retired IS NULL)"
	}
	if filter.FolderID != nil {
		query += " AND folder_id = ?"
		args = append(args, *filter.FolderID)
	}
	if filter.AssetType != "" {
		query += " AND asset_type = ?"
		args = append(args, filter.AssetType)
	}
	query += " ORDER BY name"

	return r.queryAssets(ctx, query, args...)
}

// Update applies column updates to an asset and refreshes
// modified_date. Column names come from callers inside this module,
// never from user input.
func (r *AssetRepo) Update(ctx context.Context, uuid string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	setParts := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	for column, value := range updates {
		if tags, ok := value.([]string); ok {
			encoded, err := json.Marshal(tags)
			if err != nil {
				return err
			}
			value = string(encoded)
		}
		setParts = append(setParts, column+" = ?")
		args = append(args, value)
	}
	setParts = append(setParts, "modified_date = ?")
	args = append(args, time.Now(), uuid)

	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE assets SET "+strings.Join(setParts, ", ")+" WHERE uuid = ?", args...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	return store.ConvertDBError(err)
}

// Delete removes an asset row along with its junction rows and dynamic
// metadata.
func (r *AssetRepo) Delete(ctx context.Context, uuid string) error {
	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM asset_tags WHERE asset_uuid = ?", uuid); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM asset_folders WHERE asset_uuid = ?", uuid); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entity_metadata WHERE entity_uuid = ?", uuid); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			"DELETE FROM assets WHERE uuid = ?", uuid)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return store.ConvertDBError(err)
	}

	r.logger.Debug("asset deleted", zap.String("uuid", uuid))
	return nil
}

// Search returns assets whose name, description, or tags contain the
// query, ordered by name.
func (r *AssetRepo) Search(ctx context.Context, query string) ([]Asset, error) {
	pattern := "%" + query + "%"
	return r.queryAssets(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE name LIKE ? OR description LIKE ? OR tags LIKE ?
		ORDER BY name`, pattern, pattern, pattern)
}

// Count returns the number of assets matching the filter.
func (r *AssetRepo) Count(ctx context.Context, filter ListFilter) (int, error) {
	query := "SELECT COUNT(*) FROM assets WHERE 1=1"
	var args []any
	if filter.FolderID != nil {
		query += " AND folder_id = ?"
		args = append(args, *filter.FolderID)
	}
	if filter.AssetType != "" {
		query += " AND asset_type = ?"
		args = append(args, filter.AssetType)
	}

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return count, nil
}

// RetiredAssets returns retired assets, newest retirement first. With
// latestOnly set, only the head version of each lineage is returned.
func (r *AssetRepo) RetiredAssets(ctx context.Context, latestOnly bool) ([]Asset, error) {
	query := "SELECT " + assetColumns + " FROM assets WHERE is_retired = 1"
	if latestOnly {
		query += " AND is_latest = 1"
	}
	query += " ORDER BY retired_date DESC, name"
	return r.queryAssets(ctx, query)
}

// SetStatus updates an asset's lifecycle status.
func (r *AssetRepo) SetStatus(ctx context.Context, uuid, status string) error {
	return r.Update(ctx, uuid, map[string]any{"status": status})
}

// ByStatus returns assets with a lifecycle status.
func (r *AssetRepo) ByStatus(ctx context.Context, status string) ([]Asset, error) {
	return r.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE status = ? ORDER BY name", status)
}

// AllTypes returns the distinct asset types in use.
func (r *AssetRepo) AllTypes(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx,
		"SELECT DISTINCT asset_type FROM assets ORDER BY asset_type")
}

// AllStatuses returns the distinct lifecycle statuses in use.
func (r *AssetRepo) AllStatuses(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx,
		"SELECT DISTINCT status FROM assets WHERE status IS NOT NULL ORDER BY status")
}

func (r *AssetRepo) queryAssets(ctx context.Context, query string, args ...any) ([]Asset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AssetRepo) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*Asset, error) {
	var (
		a Asset

		description, usdPath, blendPath, thumbPath, previewPath  sql.NullString
		tags, author, sourceApp, status, repType                 sql.NullString
		versionLabel, versionGroupID, parentUUID, versionNotes   sql.NullString
		assetID, variantName, variantSet, variantSource          sql.NullString
		sourceAssetName, sourceVersionLabel                      sql.NullString
		coldPath, origUSD, origBlend, origThumb                  sql.NullString
		retiredBy, publishedBy                                   sql.NullString
		fileSize                                                 sql.NullFloat64
		version, customOrder                                     sql.NullInt64
		isLatest, isLocked, isImmutable, isCold                  sql.NullInt64
		isRetired, isFavorite                                    sql.NullInt64
		retiredDate, publishedDate, lastViewed, created, updated sql.NullTime
	)

	err := row.Scan(
		&a.ID, &a.UUID, &a.Name, &description, &a.FolderID, &a.AssetType,
		&usdPath, &blendPath, &thumbPath, &previewPath,
		&fileSize, &tags, &author, &sourceApp,
		&status, &repType,
		&version, &versionLabel, &versionGroupID, &isLatest, &parentUUID, &versionNotes,
		&assetID, &variantName, &variantSet, &variantSource, &sourceAssetName, &sourceVersionLabel,
		&isLocked, &isImmutable, &isCold, &coldPath, &origUSD, &origBlend, &origThumb,
		&isRetired, &retiredDate, &retiredBy, &publishedDate, &publishedBy,
		&isFavorite, &lastViewed, &customOrder, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	a.Description = description.String
	a.USDFilePath = usdPath.String
	a.BlendBackupPath = blendPath.String
	a.ThumbnailPath = thumbPath.String
	a.PreviewPath = previewPath.String
	a.FileSizeMB = fileSize.Float64
	a.Author = author.String
	a.SourceApplication = sourceApp.String
	a.Status = status.String
	a.RepresentationType = repType.String
	a.Version = version.Int64
	a.VersionLabel = versionLabel.String
	a.VersionGroupID = versionGroupID.String
	a.IsLatest = isLatest.Int64 != 0
	a.ParentVersionUUID = parentUUID.String
	a.VersionNotes = versionNotes.String
	a.AssetID = assetID.String
	a.VariantName = variantName.String
	a.VariantSet = variantSet.String
	a.VariantSourceUUID = variantSource.String
	a.SourceAssetName = sourceAssetName.String
	a.SourceVersionLabel = sourceVersionLabel.String
	a.IsLocked = isLocked.Int64 != 0
	a.IsImmutable = isImmutable.Int64 != 0
	a.IsCold = isCold.Int64 != 0
	a.ColdStoragePath = coldPath.String
	a.OriginalUSDPath = origUSD.String
	a.OriginalBlendPath = origBlend.String
	a.OriginalThumbnailPath = origThumb.String
	a.IsRetired = isRetired.Int64 != 0
	a.RetiredBy = retiredBy.String
	a.PublishedBy = publishedBy.String
	a.IsFavorite = isFavorite.Int64 != 0
	a.CustomOrder = customOrder.Int64

	if retiredDate.Valid {
		a.RetiredDate = &retiredDate.Time
	}
	if publishedDate.Valid {
		a.PublishedDate = &publishedDate.Time
	}
	if lastViewed.Valid {
		a.LastViewedDate = &lastViewed.Time
	}
	a.CreatedDate = created.Time
	a.ModifiedDate = updated.Time

	if tags.Valid && tags.String != "" {
		if err := decodeTags(tags.String, &a); err != nil {
			return nil, err
		}
	}

	return &a, nil
}

// decodeTags parses the tags column. Legacy rows stored a comma
// separated string instead of JSON.
func decodeTags(raw string, a *Asset) error {
	if err := json.Unmarshal([]byte(raw), &a.Tags); err != nil {
		a.Tags = strings.Split(raw, ",")
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
