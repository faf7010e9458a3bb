package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/files"
	"github.com/forge3d/assetvault/internal/metadata"
	"github.com/forge3d/assetvault/internal/repository"
	"github.com/forge3d/assetvault/internal/schema"
	"github.com/forge3d/assetvault/internal/store"
)

func newMetaService(t *testing.T, db *sql.DB) *metadata.Service {
	t.Helper()
	return metadata.NewService(db, zap.NewNop())
}

type testEnv struct {
	db      *sql.DB
	layout  *files.Layout
	refs    *files.References
	tiers   *files.TierManager
	assets  *repository.AssetRepo
	library *Library
	reps    *RepresentationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	db, err := store.Open(filepath.Join(root, "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.New(db, zap.NewNop()).Initialize(context.Background()))

	layout := files.NewLayout(root)
	refs := files.NewReferences()
	tiers := files.NewTierManager(layout, refs, zap.NewNop())
	assets := repository.NewAssetRepo(db, zap.NewNop())
	designations := repository.NewDesignationRepo(db, zap.NewNop())
	proxies := repository.NewProxyRepo(db, zap.NewNop())
	meta := newMetaService(t, db)

	reps := NewRepresentationService(assets, designations, proxies, tiers, refs, zap.NewNop())
	library := NewLibrary(assets, meta, tiers, reps, zap.NewNop())

	return &testEnv{
		db:      db,
		layout:  layout,
		refs:    refs,
		tiers:   tiers,
		assets:  assets,
		library: library,
		reps:    reps,
	}
}

func writeBlend(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func saveAsset(t *testing.T, env *testEnv, name, content string) *SaveResult {
	t.Helper()
	src := writeBlend(t, t.TempDir(), "work.blend", content)
	result, err := env.library.SaveNewAsset(context.Background(), SaveInput{
		Name:        name,
		AssetType:   "mesh",
		BlendSource: src,
	})
	require.NoError(t, err)
	return result
}

func saveVersion(t *testing.T, env *testEnv, groupID, content string) *SaveResult {
	t.Helper()
	src := writeBlend(t, t.TempDir(), "work.blend", content)
	result, err := env.library.SaveNewVersion(context.Background(), groupID, SaveInput{
		BlendSource: src,
	})
	require.NoError(t, err)
	return result
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSaveNewAssetWritesBothTiers(t *testing.T) {
	env := newTestEnv(t)

	result := saveAsset(t, env, "Sword", "v1 geometry")
	a := result.Asset

	assert.Equal(t, "v001", a.VersionLabel)
	assert.True(t, a.IsLatest)

	libBlend, ok := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	require.True(t, ok)
	archBlend, ok := env.tiers.VersionBlendPath("Sword", "Base", "v001", "mesh")
	require.True(t, ok)
	assert.NotEqual(t, libBlend, archBlend)
	assert.Equal(t, "v1 geometry", readFile(t, libBlend))
	assert.Equal(t, "v1 geometry", readFile(t, archBlend))

	// Sidecars land next to both copies.
	assert.FileExists(t, filepath.Join(result.Paths.LibraryDir, "Sword.v001.json"))
	assert.FileExists(t, filepath.Join(result.Paths.ArchiveDir, "Sword.v001.json"))

	// A second asset with the same name is a collision.
	src := writeBlend(t, t.TempDir(), "other.blend", "x")
	_, err := env.library.SaveNewAsset(context.Background(), SaveInput{
		Name: "Sword", AssetType: "mesh", BlendSource: src,
	})
	assert.ErrorIs(t, err, store.ErrNameCollision)
}

func TestSaveNewVersionArchivesOutgoing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := saveAsset(t, env, "Sword", "v1 geometry")
	groupID := first.Asset.VersionGroupID

	second := saveVersion(t, env, groupID, "v2 geometry")
	assert.Equal(t, "v002", second.Asset.VersionLabel)

	libBlend, ok := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	require.True(t, ok)
	assert.Equal(t, "v2 geometry", readFile(t, libBlend))

	v1Blend, ok := env.tiers.VersionBlendPath("Sword", "Base", "v001", "mesh")
	require.True(t, ok)
	assert.Equal(t, "v1 geometry", readFile(t, v1Blend))

	latest, err := env.assets.LatestVersion(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, second.Asset.UUID, latest.UUID)

	versions, err := env.assets.Versions(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestDesignateDefaultsAndAutoUpdate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := saveAsset(t, env, "Sword", "v1 geometry")
	groupID := first.Asset.VersionGroupID
	saveVersion(t, env, groupID, "v2 geometry")

	// Defaults: proxy pins nothing (v001), render tracks latest.
	require.NoError(t, env.reps.Designate(ctx, groupID, "Base", "", ""))

	libBlend, _ := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	proxyAlias := files.ProxyAliasPath(libBlend)
	renderAlias := files.RenderAliasPath(libBlend)
	assert.Equal(t, "v1 geometry", readFile(t, proxyAlias))
	assert.Equal(t, "v2 geometry", readFile(t, renderAlias))

	eff, err := env.reps.Effective(ctx, groupID, "Base")
	require.NoError(t, err)
	assert.True(t, eff.ProxyIsDefault)
	assert.True(t, eff.RenderIsDefault)
	assert.Equal(t, "v001", eff.ProxyLabel)
	assert.Equal(t, "v002", eff.RenderLabel)
	assert.True(t, eff.HasProxyFile)
	assert.True(t, eff.HasRenderFile)

	// A new version refreshes the unpinned render but not the proxy.
	saveVersion(t, env, groupID, "v3 geometry")
	assert.Equal(t, "v1 geometry", readFile(t, proxyAlias))
	assert.Equal(t, "v3 geometry", readFile(t, renderAlias))
}

func TestPinnedRenderSurvivesNewVersion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := saveAsset(t, env, "Sword", "v1 geometry")
	groupID := first.Asset.VersionGroupID
	second := saveVersion(t, env, groupID, "v2 geometry")

	// Pin render to v002 explicitly.
	require.NoError(t, env.reps.Designate(ctx, groupID, "Base", "", second.Asset.UUID))

	libBlend, _ := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	renderAlias := files.RenderAliasPath(libBlend)
	assert.Equal(t, "v2 geometry", readFile(t, renderAlias))

	saveVersion(t, env, groupID, "v3 geometry")
	assert.Equal(t, "v2 geometry", readFile(t, renderAlias))

	eff, err := env.reps.Effective(ctx, groupID, "Base")
	require.NoError(t, err)
	assert.False(t, eff.RenderIsDefault)
	assert.Equal(t, "v002", eff.RenderLabel)
}

func TestDesignateRejectsNonMeshAssets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	src := writeBlend(t, t.TempDir(), "cam.blend", "camera data")
	result, err := env.library.SaveNewAsset(ctx, SaveInput{
		Name: "ShotCam", AssetType: "camera", BlendSource: src,
	})
	require.NoError(t, err)

	err = env.reps.Designate(ctx, result.Asset.VersionGroupID, "Base", "", "")
	assert.Error(t, err)
}

func TestCustomProxyPreservesRenderDesignation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := saveAsset(t, env, "Sword", "v1 geometry")
	groupID := first.Asset.VersionGroupID
	second := saveVersion(t, env, groupID, "v2 geometry")

	require.NoError(t, env.reps.Designate(ctx, groupID, "Base", "", second.Asset.UUID))

	proxies := repository.NewProxyRepo(env.db, zap.NewNop())
	proxyFile := writeBlend(t, t.TempDir(), "lowpoly.blend", "lowpoly geometry")
	proxy := &repository.CustomProxy{
		UUID:           "proxy-1",
		VersionGroupID: groupID,
		VariantName:    "Base",
		AssetName:      "Sword",
		AssetType:      "mesh",
		ProxyVersion:   1,
		ProxyLabel:     "p001",
		BlendPath:      proxyFile,
	}
	require.NoError(t, proxies.Add(ctx, proxy))

	require.NoError(t, env.reps.DesignateCustomProxy(ctx, groupID, "Base", "proxy-1"))

	libBlend, _ := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	assert.Equal(t, "lowpoly geometry", readFile(t, files.ProxyAliasPath(libBlend)))
	assert.Equal(t, "v2 geometry", readFile(t, files.RenderAliasPath(libBlend)))

	eff, err := env.reps.Effective(ctx, groupID, "Base")
	require.NoError(t, err)
	assert.Equal(t, "custom", eff.ProxySource)
	assert.Equal(t, "p001", eff.ProxyLabel)
	assert.Equal(t, "v002", eff.RenderLabel)
	assert.Equal(t, 1, eff.CustomProxies)
}

func TestClearDesignationsRemovesAliases(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := saveAsset(t, env, "Sword", "v1 geometry")
	groupID := first.Asset.VersionGroupID
	require.NoError(t, env.reps.Designate(ctx, groupID, "Base", "", ""))

	libBlend, _ := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	require.FileExists(t, files.ProxyAliasPath(libBlend))

	require.NoError(t, env.reps.ClearDesignations(ctx, groupID, "Base"))
	assert.NoFileExists(t, files.ProxyAliasPath(libBlend))
	assert.NoFileExists(t, files.RenderAliasPath(libBlend))

	eff, err := env.reps.Effective(ctx, groupID, "Base")
	require.NoError(t, err)
	assert.True(t, eff.ProxyIsDefault)
	assert.True(t, eff.RenderIsDefault)
}

func TestColdStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result := saveAsset(t, env, "Sword", "v1 geometry")
	uuid := result.Asset.UUID
	originalBlend := result.Asset.BlendBackupPath

	cold := NewColdStorageService(env.assets, env.layout, zap.NewNop())

	moved, err := cold.MoveToCold(ctx, uuid)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, moved, 1)

	a, err := env.assets.ByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.True(t, a.IsCold)
	assert.True(t, a.IsImmutable)
	assert.Equal(t, originalBlend, a.OriginalBlendPath)
	assert.NotEqual(t, originalBlend, a.BlendBackupPath)
	assert.FileExists(t, a.BlendBackupPath)
	assert.NoFileExists(t, originalBlend)

	// Moving again is rejected.
	_, err = cold.MoveToCold(ctx, uuid)
	assert.ErrorIs(t, err, store.ErrImmutable)

	restored, err := cold.RestoreFromCold(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, moved, restored)

	a, err = env.assets.ByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.False(t, a.IsCold)
	assert.False(t, a.IsImmutable)
	assert.Empty(t, a.OriginalBlendPath)
	assert.Empty(t, a.ColdStoragePath)
	assert.Equal(t, originalBlend, a.BlendBackupPath)
	assert.FileExists(t, originalBlend)

	// The emptied cold folder is cleaned up.
	assert.NoDirExists(t, env.layout.ColdDir(result.Asset.VersionGroupID, "v001"))
}

func TestColdStorageOrphanCleanup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	cold := NewColdStorageService(env.assets, env.layout, zap.NewNop())

	orphanDir := env.layout.ColdDir("no-such-group", "v001")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))
	writeBlend(t, orphanDir, "stray.blend", "stray")

	removed, err := cold.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{orphanDir}, removed)
	assert.NoDirExists(t, orphanDir)
}

func TestRenameMovesEveryTier(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result := saveAsset(t, env, "Sword", "v1 geometry")
	uuid := result.Asset.UUID

	folders := repository.NewFolderRepo(env.db)
	ops := NewFileOps(env.assets, folders, env.layout, zap.NewNop())

	newName, err := ops.Rename(ctx, uuid, "Blade")
	require.NoError(t, err)
	assert.Equal(t, "Blade", newName)

	a, err := env.assets.ByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "Blade", a.Name)
	assert.FileExists(t, a.BlendBackupPath)
	assert.Contains(t, a.BlendBackupPath, "Blade")

	// The old library folder is gone.
	assert.NoDirExists(t, env.layout.LibraryDir("Sword", "Base", "mesh"))

	libBlend, ok := env.tiers.LatestBlendPath("Blade", "Base", "mesh")
	require.True(t, ok)
	assert.Equal(t, "v1 geometry", readFile(t, libBlend))
}

func TestRenameRejectsCollision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	saveAsset(t, env, "Sword", "v1 geometry")
	other := saveAsset(t, env, "Shield", "shield geometry")

	folders := repository.NewFolderRepo(env.db)
	ops := NewFileOps(env.assets, folders, env.layout, zap.NewNop())

	_, err := ops.Rename(ctx, other.Asset.UUID, "Sword")
	assert.ErrorIs(t, err, store.ErrNameCollision)

	// Nothing moved.
	a, err := env.assets.ByUUID(ctx, other.Asset.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Shield", a.Name)
	assert.FileExists(t, a.BlendBackupPath)
}

func TestRenameRollsBackOnMidFlightFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result := saveAsset(t, env, "Sword", "v1 geometry")
	uuid := result.Asset.UUID

	// A directory squatting on the target file name makes the file
	// rename fail after the family folder has already moved.
	variantDir := env.layout.LibraryDir("Sword", "Base", "mesh")
	require.NoError(t, os.MkdirAll(filepath.Join(variantDir, "Blade.v001.blend"), 0o755))

	folders := repository.NewFolderRepo(env.db)
	ops := NewFileOps(env.assets, folders, env.layout, zap.NewNop())

	_, err := ops.Rename(ctx, uuid, "Blade")
	require.Error(t, err)

	// The undo log put the tree back.
	assert.NoDirExists(t, env.layout.LibraryDir("Blade", "Base", "mesh"))
	libBlend, ok := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	require.True(t, ok)
	assert.Equal(t, "v1 geometry", readFile(t, libBlend))

	// The row never changed.
	a, err := env.assets.ByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "Sword", a.Name)
	assert.FileExists(t, a.BlendBackupPath)
}

func TestColdStorageRollsBackWhenDatabaseUpdateFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result := saveAsset(t, env, "Sword", "v1 geometry")
	uuid := result.Asset.UUID
	originalBlend := result.Asset.BlendBackupPath

	// A trigger standing in for a database fault during the update.
	_, err := env.db.ExecContext(ctx, `
		CREATE TRIGGER cold_update_fault
		BEFORE UPDATE OF is_cold ON assets
		WHEN NEW.is_cold = 1
		BEGIN SELECT RAISE(ABORT, 'simulated fault'); END`)
	require.NoError(t, err)

	cold := NewColdStorageService(env.assets, env.layout, zap.NewNop())
	_, err = cold.MoveToCold(ctx, uuid)
	require.Error(t, err)

	// Files are back on warm storage and the row is untouched.
	a, err := env.assets.ByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.False(t, a.IsCold)
	assert.False(t, a.IsImmutable)
	assert.Empty(t, a.ColdStoragePath)
	assert.Equal(t, originalBlend, a.BlendBackupPath)
	assert.FileExists(t, originalBlend)
	assert.Equal(t, "v1 geometry", readFile(t, originalBlend))
}

func TestRetryableRenameErrors(t *testing.T) {
	busy := &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EBUSY}
	assert.True(t, isRetryableRenameError(busy))
	assert.True(t, isRetryableRenameError(os.ErrPermission))
	assert.True(t, isRetryableRenameError(syscall.ETXTBSY))
	assert.False(t, isRetryableRenameError(syscall.ENOENT))
	assert.False(t, isRetryableRenameError(os.ErrNotExist))
}

func TestMoveToFolderIsDatabaseOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	result := saveAsset(t, env, "Sword", "v1 geometry")
	uuid := result.Asset.UUID
	blendPath := result.Asset.BlendBackupPath
	second := saveVersion(t, env, result.Asset.VersionGroupID, "v2 geometry")

	folders := repository.NewFolderRepo(env.db)
	root, err := folders.Root(ctx)
	require.NoError(t, err)
	weaponsID, err := folders.Create(ctx, "Weapons", root.ID)
	require.NoError(t, err)

	ops := NewFileOps(env.assets, folders, env.layout, zap.NewNop())
	require.NoError(t, ops.MoveToFolder(ctx, uuid, weaponsID))

	membership, err := folders.ForAsset(ctx, uuid)
	require.NoError(t, err)
	require.Len(t, membership, 1)
	assert.Equal(t, "Weapons", membership[0].Name)

	// The folder column moves too, so folder-scoped listings see it,
	// and every version in the lineage moves with it.
	a, err := env.assets.ByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, weaponsID, a.FolderID)
	sibling, err := env.assets.ByUUID(ctx, second.Asset.UUID)
	require.NoError(t, err)
	assert.Equal(t, weaponsID, sibling.FolderID)

	scoped, err := env.assets.All(ctx, repository.ListFilter{FolderID: &weaponsID})
	require.NoError(t, err)
	require.Len(t, scoped, 2)

	// Files never move for a folder change.
	assert.FileExists(t, blendPath)

	// Moving to root clears membership and repoints the column.
	require.NoError(t, ops.MoveToFolder(ctx, uuid, 0))
	membership, err = folders.ForAsset(ctx, uuid)
	require.NoError(t, err)
	assert.Empty(t, membership)

	a, err = env.assets.ByUUID(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, root.ID, a.FolderID)
}

func TestRetireAndRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := saveAsset(t, env, "Sword", "v1 geometry")
	groupID := first.Asset.VersionGroupID
	saveVersion(t, env, groupID, "v2 geometry")

	retire := NewRetireService(env.assets, env.layout, "tester", zap.NewNop())

	retired, err := retire.Retire(ctx, first.Asset.UUID)
	require.NoError(t, err)
	assert.Equal(t, 2, retired)

	// Active trees are emptied.
	_, ok := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	assert.False(t, ok)

	listed, err := retire.RetiredAssets(ctx, false)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "tester", listed[0].RetiredBy)

	restored, err := retire.Restore(ctx, first.Asset.UUID)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	libBlend, ok := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	require.True(t, ok)
	assert.Equal(t, "v2 geometry", readFile(t, libBlend))

	a, err := env.assets.ByUUID(ctx, first.Asset.UUID)
	require.NoError(t, err)
	assert.False(t, a.IsRetired)
	assert.Nil(t, a.RetiredDate)
}

func TestDeleteGranularities(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := saveAsset(t, env, "Sword", "v1 geometry")
	groupID := first.Asset.VersionGroupID
	second := saveVersion(t, env, groupID, "v2 geometry")

	// Library-only keeps the archive and rows.
	require.NoError(t, env.library.Delete(ctx, second.Asset.UUID, DeleteLibraryOnly))
	_, ok := env.tiers.LatestBlendPath("Sword", "Base", "mesh")
	assert.False(t, ok)
	_, ok = env.tiers.VersionBlendPath("Sword", "Base", "v001", "mesh")
	assert.True(t, ok)
	_, err := env.assets.ByUUID(ctx, second.Asset.UUID)
	require.NoError(t, err)

	// One version removes its archive folder and row.
	require.NoError(t, env.library.Delete(ctx, first.Asset.UUID, DeleteVersion))
	_, ok = env.tiers.VersionBlendPath("Sword", "Base", "v001", "mesh")
	assert.False(t, ok)
	_, err = env.assets.ByUUID(ctx, first.Asset.UUID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// All versions clears everything left.
	require.NoError(t, env.library.Delete(ctx, second.Asset.UUID, DeleteAllVersions))
	_, err = env.assets.ByUUID(ctx, second.Asset.UUID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLibraryStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	saveAsset(t, env, "Sword", "v1")
	saveAsset(t, env, "Shield", "v1")
	src := writeBlend(t, t.TempDir(), "cam.blend", "camera data")
	_, err := env.library.SaveNewAsset(ctx, SaveInput{
		Name: "ShotCam", AssetType: "camera", BlendSource: src,
	})
	require.NoError(t, err)

	stats, err := env.library.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAssets)
	assert.Equal(t, 2, stats.ByType["mesh"])
	assert.Equal(t, 1, stats.ByType["camera"])
}
