package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/store"
)

// validRepresentationTypes are the accepted workflow representation
// stages for an asset version.
var validRepresentationTypes = map[string]bool{
	"model":   true,
	"lookdev": true,
	"rig":     true,
	"final":   true,
}

// Versions returns every version in a lineage, newest first.
func (r *AssetRepo) Versions(ctx context.Context, versionGroupID string) ([]Asset, error) {
	return r.queryAssets(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE version_group_id = ?
		ORDER BY version DESC`, versionGroupID)
}

// LatestVersion returns the head of a lineage.
func (r *AssetRepo) LatestVersion(ctx context.Context, versionGroupID string) (*Asset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE version_group_id = ? AND is_latest = 1
		LIMIT 1`, versionGroupID)
	a, err := scanAsset(row)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return a, nil
}

// CreateNewVersion appends a version to a lineage. The version number,
// duplicate-label guard, demotion of the old head, and the insert all
// run in one transaction so concurrent calls cannot mint the same
// label.
func (r *AssetRepo) CreateNewVersion(ctx context.Context, versionGroupID string, a *Asset) (int64, error) {
	var id int64
	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		var maxVersion sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(version) FROM assets WHERE version_group_id = ?",
			versionGroupID).Scan(&maxVersion); err != nil {
			return err
		}
		if maxVersion.Int64 == 0 {
			return fmt.Errorf("version group %s: %w", versionGroupID, store.ErrNotFound)
		}

		// New versions stay in the lineage's folder.
		if a.FolderID == 0 {
			if err := tx.QueryRowContext(ctx, `
				SELECT folder_id FROM assets
				WHERE version_group_id = ?
				ORDER BY version DESC LIMIT 1`,
				versionGroupID).Scan(&a.FolderID); err != nil {
				return err
			}
		}

		newVersion := maxVersion.Int64 + 1
		newLabel := fmt.Sprintf("v%03d", newVersion)

		var dup int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM assets
			WHERE version_group_id = ? AND version_label = ?`,
			versionGroupID, newLabel).Scan(&dup); err != nil {
			return err
		}
		if dup > 0 {
			return fmt.Errorf("version label %s already exists: %w", newLabel, store.ErrUniqueViolation)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE assets SET is_latest = 0 WHERE version_group_id = ?",
			versionGroupID); err != nil {
			return err
		}

		a.VersionGroupID = versionGroupID
		a.Version = newVersion
		a.VersionLabel = newLabel
		a.IsLatest = true
		applyInsertDefaults(a)

		now := time.Now()
		a.CreatedDate = now
		a.ModifiedDate = now

		result, err := tx.ExecContext(ctx, `
			INSERT INTO assets (
				uuid, name, description, folder_id, asset_type,
				usd_file_path, blend_backup_path, thumbnail_path, preview_path,
				file_size_mb, author, source_application,
				status, representation_type,
				version, version_label, version_group_id, is_latest, parent_version_uuid, version_notes,
				asset_id, variant_name, variant_set, variant_source_uuid,
				source_asset_name, source_version_label,
				created_date, modified_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.UUID, a.Name, a.Description, a.FolderID, a.AssetType,
			nullStr(a.USDFilePath), nullStr(a.BlendBackupPath), nullStr(a.ThumbnailPath), nullStr(a.PreviewPath),
			a.FileSizeMB, a.Author, a.SourceApplication,
			a.Status, a.RepresentationType,
			a.Version, a.VersionLabel, a.VersionGroupID, nullStr(a.ParentVersionUUID), nullStr(a.VersionNotes),
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
	r.logger.Info("new version created",
		zap.String("version_group_id", versionGroupID),
		zap.String("label", a.VersionLabel),
		zap.String("uuid", a.UUID))
	return id, nil
}

// PromoteToLatest makes the given version the head of its lineage. The
// old head is demoted and flagged cold, the target promoted and flagged
// active, both in one transaction.
func (r *AssetRepo) PromoteToLatest(ctx context.Context, uuid string) error {
	target, err := r.ByUUID(ctx, uuid)
	if err != nil {
		return err
	}
	if target.VersionGroupID == "" {
		return fmt.Errorf("asset %s has no version group", uuid)
	}
	if target.IsLatest {
		return nil
	}

	err = r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE assets SET is_latest = 0, is_cold = 1
			WHERE version_group_id = ? AND is_latest = 1`,
			target.VersionGroupID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			"UPDATE assets SET is_latest = 1, is_cold = 0 WHERE uuid = ?", uuid)
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

	r.logger.Info("version promoted to latest",
		zap.String("uuid", uuid),
		zap.String("label", target.VersionLabel))
	return nil
}

// DemoteFromLatest clears the latest flag on a version without
// promoting anything else. Used when a head moves to cold storage.
func (r *AssetRepo) DemoteFromLatest(ctx context.Context, uuid string) error {
	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE assets SET is_latest = 0 WHERE uuid = ?", uuid)
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

// PublishVersion marks a version approved, immutable, and stamped with
// who published it and when.
func (r *AssetRepo) PublishVersion(ctx context.Context, uuid, publishedBy string) error {
	return r.Update(ctx, uuid, map[string]any{
		"status":         "approved",
		"published_date": time.Now(),
		"published_by":   publishedBy,
		"is_immutable":   1,
	})
}

// LockVersion makes a version immutable.
func (r *AssetRepo) LockVersion(ctx context.Context, uuid string) error {
	return r.Update(ctx, uuid, map[string]any{"is_immutable": 1})
}

// UnlockVersion clears the immutable flag.
func (r *AssetRepo) UnlockVersion(ctx context.Context, uuid string) error {
	return r.Update(ctx, uuid, map[string]any{"is_immutable": 0})
}

// IsImmutable reports whether a version is frozen.
func (r *AssetRepo) IsImmutable(ctx context.Context, uuid string) (bool, error) {
	a, err := r.ByUUID(ctx, uuid)
	if err != nil {
		return false, err
	}
	return a.IsImmutable, nil
}

// PreviousLatest returns the highest-numbered version other than the
// given one, for rollback after a failed save.
func (r *AssetRepo) PreviousLatest(ctx context.Context, versionGroupID, currentUUID string) (*Asset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE version_group_id = ? AND uuid != ?
		ORDER BY version DESC
		LIMIT 1`, versionGroupID, currentUUID)
	a, err := scanAsset(row)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return a, nil
}

// SetRepresentationType sets the workflow stage of a version.
func (r *AssetRepo) SetRepresentationType(ctx context.Context, uuid, repType string) error {
	if !validRepresentationTypes[repType] {
		return fmt.Errorf("invalid representation type %q", repType)
	}
	return r.Update(ctx, uuid, map[string]any{"representation_type": repType})
}

// ByRepresentation returns assets in a workflow stage, optionally
// scoped to a folder.
func (r *AssetRepo) ByRepresentation(ctx context.Context, repType string, folderID *int64) ([]Asset, error) {
	query := "SELECT " + assetColumns + " FROM assets WHERE representation_type = ?"
	args := []any{repType}
	if folderID != nil {
		query += " AND folder_id = ?"
		args = append(args, *folderID)
	}
	query += " ORDER BY name"
	return r.queryAssets(ctx, query, args...)
}

// ColdAssets returns every version currently in cold storage.
func (r *AssetRepo) ColdAssets(ctx context.Context) ([]Asset, error) {
	return r.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE is_cold = 1 ORDER BY name")
}

// NonColdAssets returns every version not in cold storage.
func (r *AssetRepo) NonColdAssets(ctx context.Context) ([]Asset, error) {
	return r.queryAssets(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE is_cold = 0 OR is_cold IS NULL ORDER BY name")
}

// LatestNonColdAssets returns lineage heads with files still on warm
// storage.
func (r *AssetRepo) LatestNonColdAssets(ctx context.Context) ([]Asset, error) {
	return r.queryAssets(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE is_latest = 1 AND (is_cold = 0 OR is_cold IS NULL)
		ORDER BY name`)
}
