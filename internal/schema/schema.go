// Package schema creates and migrates the library database schema.
// Migrations are additive only (add column, add table, never drop) and
// safe to re-run; a half-migrated store is never left behind because
// initialization runs in one transaction.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/store"
)

// Version is the current schema version. Stores below this version are
// migrated forward on Initialize.
const Version = 17

// column is one additive column migration.
type column struct {
	name string
	typ  string
}

// assetColumns lists every column the assets table gained after its
// initial shape. Ordered so migration runs are deterministic.
var assetColumns = []column{
	{"blend_backup_path", "TEXT"},
	{"preview_path", "TEXT"},
	{"last_viewed_date", "TIMESTAMP"},
	{"custom_order", "INTEGER"},
	{"is_locked", "INTEGER DEFAULT 0"},
	{"created_date", "TIMESTAMP"},
	{"modified_date", "TIMESTAMP"},
	{"status", "TEXT DEFAULT 'wip'"},
	{"version", "INTEGER DEFAULT 1"},
	{"version_label", "TEXT DEFAULT 'v001'"},
	{"version_group_id", "TEXT"},
	{"is_latest", "INTEGER DEFAULT 1"},
	{"parent_version_uuid", "TEXT"},
	{"representation_type", "TEXT DEFAULT 'none'"},
	{"is_cold", "INTEGER DEFAULT 0"},
	{"cold_storage_path", "TEXT"},
	{"original_usd_path", "TEXT"},
	{"original_blend_path", "TEXT"},
	{"original_thumbnail_path", "TEXT"},
	{"is_immutable", "INTEGER DEFAULT 0"},
	{"published_date", "TIMESTAMP"},
	{"published_by", "TEXT"},
	{"asset_id", "TEXT"},
	{"variant_name", "TEXT DEFAULT 'Base'"},
	{"variant_source_uuid", "TEXT"},
	{"source_asset_name", "TEXT"},
	{"source_version_label", "TEXT"},
	{"variant_set", "TEXT"},
	{"version_notes", "TEXT"},
	{"is_retired", "INTEGER DEFAULT 0"},
	{"retired_date", "TIMESTAMP"},
	{"retired_by", "TEXT"},
}

var folderColumns = []column{
	{"path", "TEXT"},
	{"description", "TEXT"},
	{"icon_name", "TEXT"},
	{"icon_color", "TEXT"},
}

// Store manages schema initialization and migrations for one database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a schema Store.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Initialize creates the schema on a new database or migrates an
// existing one forward, then seeds entity types and metadata fields.
// Any failure rolls back the whole transaction and is fatal: the caller
// cannot proceed with a half-migrated store.
func (s *Store) Initialize(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
	}

	current, err := currentVersionTx(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
	}

	if current == 0 {
		if err := s.createSchema(ctx, tx); err != nil {
			return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO schema_version (version) VALUES (?)", Version); err != nil {
			return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
		}
	} else {
		if err := s.runMigrations(ctx, tx); err != nil {
			return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
		}
		if current < Version {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO schema_version (version) VALUES (?)", Version); err != nil {
				return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
			}
		}
	}

	if err := s.ensureRootFolder(ctx, tx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrSchemaFault, err)
	}

	s.logger.Info("schema initialized", zap.Int("version", Version), zap.Int("previous", current))
	return nil
}

// createSchema creates the full schema on an empty database.
func (s *Store) createSchema(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			parent_id INTEGER,
			path TEXT UNIQUE,
			description TEXT,
			icon_name TEXT,
			icon_color TEXT,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			modified_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (parent_id) REFERENCES folders (id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			folder_id INTEGER NOT NULL,
			asset_type TEXT NOT NULL,
			usd_file_path TEXT,
			blend_backup_path TEXT,
			thumbnail_path TEXT,
			preview_path TEXT,
			file_size_mb REAL,
			tags TEXT,
			author TEXT,
			source_application TEXT,
			is_favorite INTEGER DEFAULT 0,
			last_viewed_date TIMESTAMP,
			custom_order INTEGER,
			is_locked INTEGER DEFAULT 0,
			status TEXT DEFAULT 'wip',
			version INTEGER DEFAULT 1,
			version_label TEXT DEFAULT 'v001',
			version_group_id TEXT,
			is_latest INTEGER DEFAULT 1,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			modified_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (folder_id) REFERENCES folders (id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_uuid ON assets(uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_folder ON assets(folder_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_type ON assets(asset_type)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_name ON assets(name)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_favorite ON assets(is_favorite)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// Bring the fresh schema up through every additive migration so new
	// and upgraded databases end in the same shape.
	return s.runMigrations(ctx, tx)
}

// runMigrations applies every additive migration that has not run yet.
func (s *Store) runMigrations(ctx context.Context, tx *sql.Tx) error {
	if err := s.addMissingColumns(ctx, tx, "folders", folderColumns); err != nil {
		return err
	}
	if err := s.addMissingColumns(ctx, tx, "assets", assetColumns); err != nil {
		return err
	}

	if err := s.createSupportingTables(ctx, tx); err != nil {
		return err
	}

	// proxy_source / proxy_variant_name arrived after the designations
	// table itself, so older stores need the columns added.
	if err := s.addMissingColumns(ctx, tx, "representation_designations", []column{
		{"proxy_source", "TEXT DEFAULT 'version'"},
		{"proxy_variant_name", "TEXT"},
	}); err != nil {
		return err
	}

	if err := s.createIndexes(ctx, tx); err != nil {
		return err
	}

	if err := s.migrateVariantData(ctx, tx); err != nil {
		return err
	}

	return s.seedEntityTypes(ctx, tx)
}

// addMissingColumns adds any column from the list that the table does
// not already have.
func (s *Store) addMissingColumns(ctx context.Context, tx *sql.Tx, table string, cols []column) error {
	existing, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}

	for _, col := range cols {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, col.typ)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", table, col.name, err)
		}
		s.logger.Debug("added column", zap.String("table", table), zap.String("column", col.name))
	}
	return nil
}

// createSupportingTables creates the junction and subsystem tables.
func (s *Store) createSupportingTables(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			color TEXT DEFAULT '#607D8B',
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name)`,
		`CREATE TABLE IF NOT EXISTS asset_tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_uuid TEXT NOT NULL,
			tag_id INTEGER NOT NULL,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE,
			UNIQUE(asset_uuid, tag_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_asset_tags_uuid ON asset_tags(asset_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_asset_tags_tag ON asset_tags(tag_id)`,
		`CREATE TABLE IF NOT EXISTS asset_folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_uuid TEXT NOT NULL,
			folder_id INTEGER NOT NULL,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (folder_id) REFERENCES folders(id) ON DELETE CASCADE,
			UNIQUE(asset_uuid, folder_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_asset_folders_uuid ON asset_folders(asset_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_asset_folders_folder ON asset_folders(folder_id)`,
		`CREATE TABLE IF NOT EXISTS entity_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			table_name TEXT NOT NULL,
			behaviors TEXT DEFAULT '[]',
			icon_name TEXT,
			icon_color TEXT,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_types_name ON entity_types(name)`,
		`CREATE TABLE IF NOT EXISTS metadata_fields (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type_id INTEGER NOT NULL,
			field_name TEXT NOT NULL,
			display_name TEXT NOT NULL,
			field_type TEXT NOT NULL,
			ui_widget TEXT DEFAULT 'text',
			category TEXT DEFAULT 'general',
			sort_order INTEGER DEFAULT 100,
			default_value TEXT,
			validation_rules TEXT,
			is_required INTEGER DEFAULT 0,
			is_searchable INTEGER DEFAULT 0,
			show_in_card INTEGER DEFAULT 0,
			show_in_details INTEGER DEFAULT 1,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (entity_type_id) REFERENCES entity_types(id) ON DELETE CASCADE,
			UNIQUE(entity_type_id, field_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_fields_type ON metadata_fields(entity_type_id)`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_fields_category ON metadata_fields(category)`,
		`CREATE TABLE IF NOT EXISTS entity_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			entity_uuid TEXT NOT NULL,
			field_id INTEGER NOT NULL,
			value_text TEXT,
			value_int INTEGER,
			value_real REAL,
			value_json TEXT,
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			modified_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (field_id) REFERENCES metadata_fields(id) ON DELETE CASCADE,
			UNIQUE(entity_uuid, field_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_metadata_uuid ON entity_metadata(entity_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_metadata_field ON entity_metadata(field_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_metadata_type ON entity_metadata(entity_type)`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS representation_designations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version_group_id TEXT NOT NULL,
			variant_name TEXT NOT NULL DEFAULT 'Base',
			proxy_version_uuid TEXT,
			render_version_uuid TEXT,
			proxy_version_label TEXT,
			render_version_label TEXT,
			proxy_blend_path TEXT,
			render_blend_path TEXT,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(version_group_id, variant_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rep_designations_vgroup ON representation_designations(version_group_id)`,
		`CREATE TABLE IF NOT EXISTS custom_proxies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT UNIQUE NOT NULL,
			version_group_id TEXT NOT NULL,
			variant_name TEXT NOT NULL DEFAULT 'Base',
			asset_id TEXT NOT NULL,
			asset_name TEXT NOT NULL,
			asset_type TEXT NOT NULL DEFAULT 'mesh',
			proxy_version INTEGER NOT NULL DEFAULT 1,
			proxy_label TEXT NOT NULL DEFAULT 'p001',
			blend_path TEXT,
			thumbnail_path TEXT,
			polygon_count INTEGER,
			notes TEXT DEFAULT '',
			created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(version_group_id, variant_name, proxy_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_custom_proxies_vgroup ON custom_proxies(version_group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_custom_proxies_uuid ON custom_proxies(uuid)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// createIndexes creates indexes for columns added by migrations.
func (s *Store) createIndexes(ctx context.Context, tx *sql.Tx) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(status)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_version_group ON assets(version_group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_is_cold ON assets(is_cold)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_is_latest ON assets(is_latest)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_asset_id ON assets(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_variant ON assets(variant_name)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_is_retired ON assets(is_retired)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_last_viewed ON assets(last_viewed_date)`,
	}
	for _, stmt := range indexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateVariantData backfills variant-system fields on rows created
// before the variant columns existed. Runs unconditionally so rows that
// slipped through an earlier migration get caught.
func (s *Store) migrateVariantData(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`UPDATE assets
		 SET asset_id = version_group_id
		 WHERE (asset_id IS NULL OR asset_id = '') AND version_group_id IS NOT NULL`,
		`UPDATE assets
		 SET variant_name = 'Base'
		 WHERE variant_name IS NULL OR variant_name = ''`,
		`UPDATE assets
		 SET source_asset_name = (
		     SELECT source.name FROM assets AS source
		     WHERE source.uuid = assets.variant_source_uuid
		 ),
		 source_version_label = (
		     SELECT source.version_label FROM assets AS source
		     WHERE source.uuid = assets.variant_source_uuid
		 )
		 WHERE variant_source_uuid IS NOT NULL
		   AND source_asset_name IS NULL`,
		`UPDATE assets
		 SET variant_set = 'Default'
		 WHERE variant_name != 'Base'
		   AND variant_set IS NULL`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ensureRootFolder makes sure a root folder row exists.
func (s *Store) ensureRootFolder(ctx context.Context, tx *sql.Tx) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM folders WHERE parent_id IS NULL LIMIT 1").Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO folders (name, parent_id, path) VALUES (?, NULL, '')", "Root")
	return err
}

// CurrentVersion returns the schema version recorded in the database,
// or 0 for a fresh store.
func (s *Store) CurrentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func currentVersionTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var version sql.NullInt64
	err := tx.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

// tableColumns returns the set of column names a table currently has.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}
