package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zap.NewNop())
}

func TestInitializeFreshDatabase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Initialize(ctx))

	version, err := s.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, version)

	tables := []string{
		"folders", "assets", "tags", "asset_tags", "asset_folders",
		"entity_types", "metadata_fields", "entity_metadata",
		"app_settings", "representation_designations", "custom_proxies",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))

	version, err := s.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, version)
}

func TestInitializeCreatesRootFolder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Initialize(ctx))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM folders WHERE parent_id IS NULL").Scan(&count))
	assert.Equal(t, 1, count)

	// A second run must not add another root.
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM folders WHERE parent_id IS NULL").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInitializeSeedsAssetEntityType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Initialize(ctx))

	var behaviors string
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT behaviors FROM entity_types WHERE name = 'asset'").Scan(&behaviors))
	assert.Contains(t, behaviors, "versionable")
	assert.Contains(t, behaviors, "variantable")

	var fieldCount int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metadata_fields mf
		 JOIN entity_types et ON et.id = mf.entity_type_id
		 WHERE et.name = 'asset'`).Scan(&fieldCount))
	assert.Equal(t, len(assetFields), fieldCount)
}

func TestEnsureMetadataFieldsBackfills(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Initialize(ctx))

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM metadata_fields WHERE field_name = 'polygon_count'")
	require.NoError(t, err)

	require.NoError(t, s.EnsureMetadataFields(ctx))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM metadata_fields WHERE field_name = 'polygon_count'").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigrationBackfillsVariantData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Initialize(ctx))

	var folderID int64
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT id FROM folders WHERE parent_id IS NULL").Scan(&folderID))

	// Simulate a row written before the variant columns existed.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (uuid, name, folder_id, asset_type, version_group_id, asset_id, variant_name)
		VALUES ('uuid-old', 'OldAsset', ?, 'mesh', 'group-1', NULL, NULL)`, folderID)
	require.NoError(t, err)

	require.NoError(t, s.Initialize(ctx))

	var assetID, variantName string
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT asset_id, variant_name FROM assets WHERE uuid = 'uuid-old'").Scan(&assetID, &variantName))
	assert.Equal(t, "group-1", assetID)
	assert.Equal(t, "Base", variantName)
}

func TestAssetsTableHasMigratedColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Initialize(ctx))

	tx, err := s.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	cols, err := tableColumns(ctx, tx, "assets")
	require.NoError(t, err)
	for _, want := range []string{
		"is_cold", "cold_storage_path", "original_blend_path",
		"variant_name", "variant_source_uuid", "source_asset_name",
		"is_retired", "published_date", "version_notes",
	} {
		assert.True(t, cols[want], "assets should have column %s", want)
	}

	repCols, err := tableColumns(ctx, tx, "representation_designations")
	require.NoError(t, err)
	assert.True(t, repCols["proxy_source"])
	assert.True(t, repCols["proxy_variant_name"])
}
