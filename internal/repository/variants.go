package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/store"
)

// VariantInfo summarizes one variant of an asset family.
type VariantInfo struct {
	VariantName    string
	VersionGroupID string
	MaxVersion     int64
	VersionCount   int64
}

// VariantCounts returns, per asset family, how many variants exist
// beyond the base one. Families with only a base variant are omitted.
func (r *AssetRepo) VariantCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_id, COUNT(DISTINCT variant_name) - 1 AS variant_count
		FROM assets
		WHERE asset_id IS NOT NULL
		GROUP BY asset_id
		HAVING COUNT(DISTINCT variant_name) > 1`)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			assetID string
			count   int64
		)
		if err := rows.Scan(&assetID, &count); err != nil {
			return nil, err
		}
		counts[assetID] = count
	}
	return counts, rows.Err()
}

// Variants returns the variants of an asset family with their lineage
// identifiers and version counts.
func (r *AssetRepo) Variants(ctx context.Context, assetID string) ([]VariantInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT variant_name, version_group_id,
		       MAX(version) AS max_version,
		       COUNT(*) AS version_count
		FROM assets
		WHERE asset_id = ?
		GROUP BY variant_name, version_group_id
		ORDER BY variant_name`, assetID)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []VariantInfo
	for rows.Next() {
		var v VariantInfo
		if err := rows.Scan(&v.VariantName, &v.VersionGroupID, &v.MaxVersion, &v.VersionCount); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VariantVersions returns every version of one variant, newest first.
func (r *AssetRepo) VariantVersions(ctx context.Context, assetID, variantName string) ([]Asset, error) {
	return r.queryAssets(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE asset_id = ? AND variant_name = ?
		ORDER BY version DESC`, assetID, variantName)
}

// LatestVariantVersion returns the head version of one variant.
func (r *AssetRepo) LatestVariantVersion(ctx context.Context, assetID, variantName string) (*Asset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE asset_id = ? AND variant_name = ? AND is_latest = 1
		LIMIT 1`, assetID, variantName)
	a, err := scanAsset(row)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return a, nil
}

// CreateNewVariant branches a new variant from an existing version.
// The new variant keeps the family's asset_id, starts its own lineage
// at v001, and records immutable provenance about where it came from.
func (r *AssetRepo) CreateNewVariant(ctx context.Context, sourceUUID, variantName string, a *Asset, variantSet string) (int64, error) {
	source, err := r.ByUUID(ctx, sourceUUID)
	if err != nil {
		return 0, err
	}

	assetID := source.AssetID
	if assetID == "" {
		assetID = source.VersionGroupID
	}
	if assetID == "" {
		return 0, fmt.Errorf("source %s has no asset family id", sourceUUID)
	}

	a.AssetID = assetID
	a.VariantName = variantName
	a.VariantSourceUUID = sourceUUID
	if a.FolderID == 0 {
		a.FolderID = source.FolderID
	}
	a.VersionGroupID = uuid.NewString()
	a.Version = 1
	a.VersionLabel = "v001"
	a.IsLatest = true

	a.SourceAssetName = source.Name
	a.SourceVersionLabel = source.VersionLabel
	if variantSet != "" {
		a.VariantSet = variantSet
	} else if a.VariantSet == "" {
		a.VariantSet = "Default"
	}

	id, err := r.Add(ctx, a)
	if err != nil {
		return 0, err
	}

	r.logger.Info("new variant created",
		zap.String("asset_id", assetID),
		zap.String("variant", variantName),
		zap.String("source_uuid", sourceUUID))
	return id, nil
}

// AllAssetIDs returns every distinct asset family identifier.
func (r *AssetRepo) AllAssetIDs(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, `
		SELECT DISTINCT asset_id FROM assets
		WHERE asset_id IS NOT NULL
		ORDER BY asset_id`)
}

// VariantSets returns the distinct variant set names used by the
// non-base variants of a family.
func (r *AssetRepo) VariantSets(ctx context.Context, assetID string) ([]string, error) {
	return r.queryStrings(ctx, `
		SELECT DISTINCT variant_set FROM assets
		WHERE asset_id = ?
		  AND variant_name != 'Base'
		  AND variant_set IS NOT NULL
		ORDER BY variant_set`, assetID)
}
