package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/store"
)

// CustomProxy is an artist-authored lightweight stand-in for an asset
// variant, versioned independently of the asset with p-labels.
type CustomProxy struct {
	ID             int64
	UUID           string
	VersionGroupID string
	VariantName    string
	AssetID        string
	AssetName      string
	AssetType      string
	ProxyVersion   int64
	ProxyLabel     string
	BlendPath      string
	ThumbnailPath  string
	PolygonCount   int64
	Notes          string
	CreatedDate    time.Time
}

// ProxyRepo manages custom proxy rows.
type ProxyRepo struct {
	db     *sql.DB
	txm    *store.TxManager
	logger *zap.Logger
}

// NewProxyRepo creates a custom proxy repository.
func NewProxyRepo(db *sql.DB, logger *zap.Logger) *ProxyRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyRepo{db: db, txm: store.NewTxManager(db), logger: logger}
}

const proxyColumns = `id, uuid, version_group_id, variant_name,
	asset_id, asset_name, asset_type,
	proxy_version, proxy_label,
	blend_path, thumbnail_path, polygon_count, notes, created_date`

// Proxies returns all custom proxies for a variant, oldest first.
func (r *ProxyRepo) Proxies(ctx context.Context, versionGroupID, variantName string) ([]CustomProxy, error) {
	if variantName == "" {
		variantName = "Base"
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+proxyColumns+` FROM custom_proxies
		WHERE version_group_id = ? AND variant_name = ?
		ORDER BY proxy_version ASC`, versionGroupID, variantName)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []CustomProxy
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ByUUID returns one custom proxy.
func (r *ProxyRepo) ByUUID(ctx context.Context, proxyUUID string) (*CustomProxy, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+proxyColumns+" FROM custom_proxies WHERE uuid = ?", proxyUUID)
	p, err := scanProxy(row)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return p, nil
}

// NextVersion returns the next proxy version number for a variant,
// starting at 1.
func (r *ProxyRepo) NextVersion(ctx context.Context, versionGroupID, variantName string) (int64, error) {
	if variantName == "" {
		variantName = "Base"
	}
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(proxy_version) FROM custom_proxies
		WHERE version_group_id = ? AND variant_name = ?`,
		versionGroupID, variantName).Scan(&max)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return max.Int64 + 1, nil
}

// Add inserts a custom proxy record.
func (r *ProxyRepo) Add(ctx context.Context, p *CustomProxy) error {
	if p.VariantName == "" {
		p.VariantName = "Base"
	}
	if p.AssetType == "" {
		p.AssetType = "mesh"
	}
	p.CreatedDate = time.Now()

	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO custom_proxies (
				uuid, version_group_id, variant_name,
				asset_id, asset_name, asset_type,
				proxy_version, proxy_label,
				blend_path, thumbnail_path,
				polygon_count, notes, created_date
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.UUID, p.VersionGroupID, p.VariantName,
			p.AssetID, p.AssetName, p.AssetType,
			p.ProxyVersion, p.ProxyLabel,
			nullStr(p.BlendPath), nullStr(p.ThumbnailPath),
			p.PolygonCount, p.Notes, p.CreatedDate)
		if err != nil {
			return err
		}
		p.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return store.ConvertDBError(err)
	}

	r.logger.Debug("custom proxy added",
		zap.String("uuid", p.UUID),
		zap.String("label", p.ProxyLabel),
		zap.String("variant", p.VariantName))
	return nil
}

// Delete removes a custom proxy record, reporting whether it existed.
func (r *ProxyRepo) Delete(ctx context.Context, proxyUUID string) (bool, error) {
	var deleted bool
	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM custom_proxies WHERE uuid = ?", proxyUUID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	return deleted, nil
}

// Count returns how many custom proxies a variant has.
func (r *ProxyRepo) Count(ctx context.Context, versionGroupID, variantName string) (int, error) {
	if variantName == "" {
		variantName = "Base"
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM custom_proxies
		WHERE version_group_id = ? AND variant_name = ?`,
		versionGroupID, variantName).Scan(&count)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return count, nil
}

func scanProxy(row rowScanner) (*CustomProxy, error) {
	var (
		p CustomProxy

		blendPath, thumbPath, notes sql.NullString
		polygons                    sql.NullInt64
		created                     sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UUID, &p.VersionGroupID, &p.VariantName,
		&p.AssetID, &p.AssetName, &p.AssetType,
		&p.ProxyVersion, &p.ProxyLabel,
		&blendPath, &thumbPath, &polygons, &notes, &created)
	if err != nil {
		return nil, err
	}

	p.BlendPath = blendPath.String
	p.ThumbnailPath = thumbPath.String
	p.PolygonCount = polygons.Int64
	p.Notes = notes.String
	p.CreatedDate = created.Time
	return &p, nil
}
