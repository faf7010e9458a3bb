package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/store"
)

// Designation records which version of a variant serves as its proxy
// and render representation. An empty UUID means the default applies:
// v001 for proxy, the lineage head for render.
type Designation struct {
	ID                 int64
	VersionGroupID     string
	VariantName        string
	ProxyVersionUUID   string
	RenderVersionUUID  string
	ProxyVersionLabel  string
	RenderVersionLabel string
	ProxyBlendPath     string
	RenderBlendPath    string
	ProxySource        string
	ProxyVariantName   string
	LastUpdated        time.Time
}

// DesignationRepo manages representation designation rows.
type DesignationRepo struct {
	db     *sql.DB
	txm    *store.TxManager
	logger *zap.Logger
}

// NewDesignationRepo creates a designation repository.
func NewDesignationRepo(db *sql.DB, logger *zap.Logger) *DesignationRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DesignationRepo{db: db, txm: store.NewTxManager(db), logger: logger}
}

const designationColumns = `id, version_group_id, variant_name,
	proxy_version_uuid, render_version_uuid,
	proxy_version_label, render_version_label,
	proxy_blend_path, render_blend_path,
	proxy_source, proxy_variant_name, last_updated`

// Get returns the designation for a variant, or ErrNotFound when none
// is set.
func (r *DesignationRepo) Get(ctx context.Context, versionGroupID, variantName string) (*Designation, error) {
	if variantName == "" {
		variantName = "Base"
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT `+designationColumns+` FROM representation_designations
		WHERE version_group_id = ? AND variant_name = ?`,
		versionGroupID, variantName)
	d, err := scanDesignation(row)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return d, nil
}

// Set upserts the designation for a variant. INSERT OR REPLACE drops
// any existing row for the variant, so callers that want to change
// only one side must read the current row and carry the other side
// through.
func (r *DesignationRepo) Set(ctx context.Context, d *Designation) error {
	if d.VariantName == "" {
		d.VariantName = "Base"
	}
	if d.ProxySource == "" {
		d.ProxySource = "version"
	}
	d.LastUpdated = time.Now()

	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO representation_designations (
				version_group_id, variant_name,
				proxy_version_uuid, render_version_uuid,
				proxy_version_label, render_version_label,
				proxy_blend_path, render_blend_path,
				proxy_source, proxy_variant_name, last_updated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.VersionGroupID, d.VariantName,
			nullStr(d.ProxyVersionUUID), nullStr(d.RenderVersionUUID),
			nullStr(d.ProxyVersionLabel), nullStr(d.RenderVersionLabel),
			nullStr(d.ProxyBlendPath), nullStr(d.RenderBlendPath),
			d.ProxySource, nullStr(d.ProxyVariantName), d.LastUpdated)
		return err
	})
	if err != nil {
		return store.ConvertDBError(err)
	}

	r.logger.Debug("designation set",
		zap.String("version_group_id", d.VersionGroupID),
		zap.String("variant", d.VariantName),
		zap.String("proxy_source", d.ProxySource))
	return nil
}

// Clear removes the designation for a variant, reporting whether one
// existed.
func (r *DesignationRepo) Clear(ctx context.Context, versionGroupID, variantName string) (bool, error) {
	if variantName == "" {
		variantName = "Base"
	}
	var cleared bool
	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM representation_designations
			WHERE version_group_id = ? AND variant_name = ?`,
			versionGroupID, variantName)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		cleared = n > 0
		return err
	})
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	return cleared, nil
}

// All returns designations, optionally filtered to one version group.
func (r *DesignationRepo) All(ctx context.Context, versionGroupID string) ([]Designation, error) {
	query := "SELECT " + designationColumns + " FROM representation_designations"
	var args []any
	if versionGroupID != "" {
		query += " WHERE version_group_id = ? ORDER BY variant_name"
		args = append(args, versionGroupID)
	} else {
		query += " ORDER BY version_group_id, variant_name"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []Designation
	for rows.Next() {
		d, err := scanDesignation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateRenderPath repoints just the render side of an existing
// designation, used when a new head version auto-updates the render
// alias.
func (r *DesignationRepo) UpdateRenderPath(ctx context.Context, versionGroupID, variantName, renderUUID, renderLabel, renderBlendPath string) (bool, error) {
	var updated bool
	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE representation_designations
			SET render_version_uuid = ?,
			    render_version_label = ?,
			    render_blend_path = ?,
			    last_updated = ?
			WHERE version_group_id = ? AND variant_name = ?`,
			renderUUID, renderLabel, renderBlendPath, time.Now(),
			versionGroupID, variantName)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		updated = n > 0
		return err
	})
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	return updated, nil
}

func scanDesignation(row rowScanner) (*Designation, error) {
	var (
		d Designation

		proxyUUID, renderUUID, proxyLabel, renderLabel sql.NullString
		proxyPath, renderPath, source, proxyVariant    sql.NullString
		updated                                        sql.NullTime
	)
	err := row.Scan(&d.ID, &d.VersionGroupID, &d.VariantName,
		&proxyUUID, &renderUUID, &proxyLabel, &renderLabel,
		&proxyPath, &renderPath, &source, &proxyVariant, &updated)
	if err != nil {
		return nil, err
	}

	d.ProxyVersionUUID = proxyUUID.String
	d.RenderVersionUUID = renderUUID.String
	d.ProxyVersionLabel = proxyLabel.String
	d.RenderVersionLabel = renderLabel.String
	d.ProxyBlendPath = proxyPath.String
	d.RenderBlendPath = renderPath.String
	d.ProxySource = source.String
	if d.ProxySource == "" {
		d.ProxySource = "version"
	}
	d.ProxyVariantName = proxyVariant.String
	d.LastUpdated = updated.Time
	return &d, nil
}
