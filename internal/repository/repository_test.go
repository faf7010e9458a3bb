package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/entity"
	"github.com/forge3d/assetvault/internal/metadata"
	"github.com/forge3d/assetvault/internal/schema"
	"github.com/forge3d/assetvault/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.New(db, zap.NewNop()).Initialize(context.Background()))
	return db
}

func rootFolderID(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	folder, err := NewFolderRepo(db).Root(context.Background())
	require.NoError(t, err)
	return folder.ID
}

func addAsset(t *testing.T, repo *AssetRepo, folderID int64, name string) *Asset {
	t.Helper()
	a := &Asset{
		UUID:      uuid.NewString(),
		Name:      name,
		FolderID:  folderID,
		AssetType: "mesh",
		IsLatest:  true,
	}
	_, err := repo.Add(context.Background(), a)
	require.NoError(t, err)
	return a
}

func TestAddFillsLineageDefaults(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())

	a := addAsset(t, repo, rootFolderID(t, db), "Hero")

	got, err := repo.ByUUID(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, a.UUID, got.VersionGroupID)
	assert.Equal(t, a.UUID, got.AssetID)
	assert.Equal(t, "Base", got.VariantName)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "v001", got.VersionLabel)
	assert.True(t, got.IsLatest)
	assert.Equal(t, "wip", got.Status)
	assert.Equal(t, "mesh", got.AssetType)

	_, err = repo.ByUUID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddResolvesRootFolderAndLatest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())
	rootID := rootFolderID(t, db)

	// No folder and no latest flag set: the row lands in the root
	// folder as the head of its new lineage.
	a := &Asset{UUID: uuid.NewString(), Name: "Hero", AssetType: "mesh"}
	_, err := repo.Add(ctx, a)
	require.NoError(t, err)

	got, err := repo.ByUUID(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, rootID, got.FolderID)
	assert.True(t, got.IsLatest)

	latest, err := repo.LatestVersion(ctx, got.VersionGroupID)
	require.NoError(t, err)
	assert.Equal(t, a.UUID, latest.UUID)

	// New versions and variants inherit the lineage's folder.
	v2 := &Asset{UUID: uuid.NewString(), Name: "Hero", AssetType: "mesh"}
	_, err = repo.CreateNewVersion(ctx, got.VersionGroupID, v2)
	require.NoError(t, err)
	assert.Equal(t, rootID, v2.FolderID)

	variant := &Asset{UUID: uuid.NewString(), Name: "Hero", AssetType: "mesh"}
	_, err = repo.CreateNewVariant(ctx, a.UUID, "Damaged", variant, "")
	require.NoError(t, err)

	gotVariant, err := repo.ByUUID(ctx, variant.UUID)
	require.NoError(t, err)
	assert.Equal(t, rootID, gotVariant.FolderID)
	assert.True(t, gotVariant.IsLatest)
}

func TestNameExists(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())
	folderID := rootFolderID(t, db)

	a := addAsset(t, repo, folderID, "Hero")

	exists, err := repo.NameExists(ctx, "Hero", nil, "")
	require.NoError(t, err)
	assert.True(t, exists)

	// Excluding the asset's own UUID is how rename checks avoid
	// matching themselves.
	exists, err = repo.NameExists(ctx, "Hero", nil, a.UUID)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.NameExists(ctx, "Villain", nil, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateNewVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())
	folderID := rootFolderID(t, db)

	v1 := addAsset(t, repo, folderID, "Hero")

	v2 := &Asset{
		UUID:      uuid.NewString(),
		Name:      "Hero",
		FolderID:  folderID,
		AssetType: "mesh",
	}
	_, err := repo.CreateNewVersion(ctx, v1.VersionGroupID, v2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.Version)
	assert.Equal(t, "v002", v2.VersionLabel)

	// The old head is demoted.
	old, err := repo.ByUUID(ctx, v1.UUID)
	require.NoError(t, err)
	assert.False(t, old.IsLatest)

	latest, err := repo.LatestVersion(ctx, v1.VersionGroupID)
	require.NoError(t, err)
	assert.Equal(t, v2.UUID, latest.UUID)

	versions, err := repo.Versions(ctx, v1.VersionGroupID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v002", versions[0].VersionLabel)
	assert.Equal(t, "v001", versions[1].VersionLabel)
}

func TestCreateNewVersionRequiresExistingLineage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())

	_, err := repo.CreateNewVersion(ctx, "no-such-group", &Asset{
		UUID:      uuid.NewString(),
		Name:      "Ghost",
		FolderID:  rootFolderID(t, db),
		AssetType: "mesh",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPromoteToLatest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())
	folderID := rootFolderID(t, db)

	v1 := addAsset(t, repo, folderID, "Hero")
	v2 := &Asset{UUID: uuid.NewString(), Name: "Hero", FolderID: folderID, AssetType: "mesh"}
	_, err := repo.CreateNewVersion(ctx, v1.VersionGroupID, v2)
	require.NoError(t, err)

	require.NoError(t, repo.PromoteToLatest(ctx, v1.UUID))

	promoted, err := repo.ByUUID(ctx, v1.UUID)
	require.NoError(t, err)
	assert.True(t, promoted.IsLatest)
	assert.False(t, promoted.IsCold)

	demoted, err := repo.ByUUID(ctx, v2.UUID)
	require.NoError(t, err)
	assert.False(t, demoted.IsLatest)
	assert.True(t, demoted.IsCold)

	// Promoting the current head is a no-op.
	require.NoError(t, repo.PromoteToLatest(ctx, v1.UUID))
}

func TestPublishAndLock(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())

	a := addAsset(t, repo, rootFolderID(t, db), "Hero")

	require.NoError(t, repo.PublishVersion(ctx, a.UUID, "alex"))
	got, err := repo.ByUUID(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, "approved", got.Status)
	assert.Equal(t, "alex", got.PublishedBy)
	assert.NotNil(t, got.PublishedDate)
	assert.True(t, got.IsImmutable)

	require.NoError(t, repo.UnlockVersion(ctx, a.UUID))
	immutable, err := repo.IsImmutable(ctx, a.UUID)
	require.NoError(t, err)
	assert.False(t, immutable)
}

func TestCreateNewVariant(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())
	folderID := rootFolderID(t, db)

	base := addAsset(t, repo, folderID, "Hero")

	variant := &Asset{
		UUID:      uuid.NewString(),
		Name:      "Hero",
		FolderID:  folderID,
		AssetType: "mesh",
	}
	_, err := repo.CreateNewVariant(ctx, base.UUID, "Heavy_Armor", variant, "Armor")
	require.NoError(t, err)

	got, err := repo.ByUUID(ctx, variant.UUID)
	require.NoError(t, err)
	assert.Equal(t, base.AssetID, got.AssetID)
	assert.NotEqual(t, base.VersionGroupID, got.VersionGroupID)
	assert.Equal(t, "Heavy_Armor", got.VariantName)
	assert.Equal(t, "Armor", got.VariantSet)
	assert.Equal(t, base.UUID, got.VariantSourceUUID)
	assert.Equal(t, "Hero", got.SourceAssetName)
	assert.Equal(t, "v001", got.SourceVersionLabel)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.IsLatest)

	variants, err := repo.Variants(ctx, base.AssetID)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "Base", variants[0].VariantName)
	assert.Equal(t, "Heavy_Armor", variants[1].VariantName)

	counts, err := repo.VariantCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[base.AssetID])

	sets, err := repo.VariantSets(ctx, base.AssetID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Armor"}, sets)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())

	a := addAsset(t, repo, rootFolderID(t, db), "Hero")

	require.NoError(t, repo.Update(ctx, a.UUID, map[string]any{
		"description": "a hero mesh",
		"tags":        []string{"character", "hero"},
	}))

	got, err := repo.ByUUID(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, "a hero mesh", got.Description)
	assert.Equal(t, []string{"character", "hero"}, got.Tags)

	assert.ErrorIs(t, repo.Update(ctx, "missing", map[string]any{"description": "x"}), store.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, a.UUID))
	_, err = repo.ByUUID(ctx, a.UUID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, a.UUID), store.ErrNotFound)
}

func TestSearchAndCount(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())
	folderID := rootFolderID(t, db)

	addAsset(t, repo, folderID, "Hero_Sword")
	addAsset(t, repo, folderID, "Villain_Axe")

	found, err := repo.Search(ctx, "Hero")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Hero_Sword", found[0].Name)

	count, err := repo.Count(ctx, ListFilter{AssetType: "mesh"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAllHidesRetired(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())
	folderID := rootFolderID(t, db)

	addAsset(t, repo, folderID, "Active")
	retired := addAsset(t, repo, folderID, "Old")
	require.NoError(t, repo.Update(ctx, retired.UUID, map[string]any{"is_retired": 1}))

	visible, err := repo.All(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "Active", visible[0].Name)

	all, err := repo.All(ctx, ListFilter{IncludeRetired: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFavoritesAndRecent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAssetRepo(db, zap.NewNop())

	a := addAsset(t, repo, rootFolderID(t, db), "Hero")

	fav, err := repo.ToggleFavorite(ctx, a.UUID)
	require.NoError(t, err)
	assert.True(t, fav)

	favorites, err := repo.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favorites, 1)

	require.NoError(t, repo.UpdateLastViewed(ctx, a.UUID))
	recent, err := repo.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, a.UUID, recent[0].UUID)
}

func TestDesignationSetReplacesRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewDesignationRepo(db, zap.NewNop())

	require.NoError(t, repo.Set(ctx, &Designation{
		VersionGroupID:     "group-1",
		ProxyVersionUUID:   "uuid-p",
		ProxyVersionLabel:  "v001",
		RenderVersionUUID:  "uuid-r",
		RenderVersionLabel: "v003",
	}))

	d, err := repo.Get(ctx, "group-1", "")
	require.NoError(t, err)
	assert.Equal(t, "version", d.ProxySource)
	assert.Equal(t, "uuid-r", d.RenderVersionUUID)

	// A full Set with only proxy fields wipes the render side. Callers
	// preserving render must carry it through explicitly.
	require.NoError(t, repo.Set(ctx, &Designation{
		VersionGroupID:    "group-1",
		ProxyVersionUUID:  "uuid-p2",
		ProxyVersionLabel: "v002",
	}))
	d, err = repo.Get(ctx, "group-1", "Base")
	require.NoError(t, err)
	assert.Equal(t, "uuid-p2", d.ProxyVersionUUID)
	assert.Empty(t, d.RenderVersionUUID)

	updated, err := repo.UpdateRenderPath(ctx, "group-1", "Base", "uuid-r2", "v004", "/x/y.render.blend")
	require.NoError(t, err)
	assert.True(t, updated)

	d, err = repo.Get(ctx, "group-1", "Base")
	require.NoError(t, err)
	assert.Equal(t, "uuid-r2", d.RenderVersionUUID)
	assert.Equal(t, "uuid-p2", d.ProxyVersionUUID)

	cleared, err := repo.Clear(ctx, "group-1", "Base")
	require.NoError(t, err)
	assert.True(t, cleared)
	_, err = repo.Get(ctx, "group-1", "Base")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCustomProxyVersioning(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewProxyRepo(db, zap.NewNop())

	next, err := repo.NextVersion(ctx, "group-1", "Base")
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	p := &CustomProxy{
		UUID:           uuid.NewString(),
		VersionGroupID: "group-1",
		AssetID:        "family-1",
		AssetName:      "Hero",
		ProxyVersion:   next,
		ProxyLabel:     "p001",
		BlendPath:      "/lib/hero.p001.blend",
	}
	require.NoError(t, repo.Add(ctx, p))

	next, err = repo.NextVersion(ctx, "group-1", "Base")
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	proxies, err := repo.Proxies(ctx, "group-1", "")
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	assert.Equal(t, "p001", proxies[0].ProxyLabel)

	count, err := repo.Count(ctx, "group-1", "Base")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err := repo.Delete(ctx, p.UUID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestGenericRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	folderID := rootFolderID(t, db)

	registry := entity.NewRegistry()
	require.NoError(t, registry.Register(entity.AssetDefinition()))
	meta := metadata.NewService(db, zap.NewNop())
	repo := NewGenericRepo(db, registry, meta, zap.NewNop())

	id := uuid.NewString()
	e, err := registry.New("asset", map[string]entity.Value{
		"uuid":       entity.String(id),
		"name":       entity.String("Hero"),
		"folder_id":  entity.Int(folderID),
		"asset_type": entity.String("mesh"),
		"version":    entity.Int(1),
		"is_latest":  entity.Bool(true),
	})
	require.NoError(t, err)
	e.Set("polygon_count", entity.Int(12000))
	e.Set("not_a_registered_field", entity.String("dropped"))

	ignored, err := repo.Save(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, []string{"not_a_registered_field"}, ignored)
	assert.False(t, e.IsDirty())

	got, err := repo.ByUUID(ctx, "asset", id)
	require.NoError(t, err)
	assert.Equal(t, "Hero", got.GetString("name", ""))
	assert.Equal(t, int64(12000), got.GetInt("polygon_count", 0))

	// Core and dynamic fields both route through FindByField.
	found, err := repo.FindByField(ctx, "asset", "name", entity.String("Hero"))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, found)
	found, err = repo.FindByField(ctx, "asset", "polygon_count", entity.Int(12000))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, found)

	// A second Save updates rather than duplicating.
	got.Set("name", entity.String("Hero_MK2"))
	_, err = repo.Save(ctx, got)
	require.NoError(t, err)
	all, err := repo.All(ctx, "asset")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Hero_MK2", all[0].GetString("name", ""))

	require.NoError(t, repo.Delete(ctx, "asset", id))
	_, err = repo.ByUUID(ctx, "asset", id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.ByUUID(ctx, "shader", id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppSettings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSettingsRepo(db)

	_, err := repo.Get(ctx, "library_root")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "library_root", "/vault"))
	require.NoError(t, repo.Set(ctx, "library_root", "/vault2"))

	value, err := repo.Get(ctx, "library_root")
	require.NoError(t, err)
	assert.Equal(t, "/vault2", value)

	value, err = repo.GetDefault(ctx, "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"library_root": "/vault2"}, all)
}

func TestTagsAndFolders(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	assets := NewAssetRepo(db, zap.NewNop())
	tags := NewTagRepo(db)
	folders := NewFolderRepo(db)
	rootID := rootFolderID(t, db)

	a := addAsset(t, assets, rootID, "Hero")

	tagID, err := tags.Create(ctx, "character", "")
	require.NoError(t, err)
	_, err = tags.Create(ctx, "character", "")
	assert.ErrorIs(t, err, store.ErrUniqueViolation)

	require.NoError(t, tags.Assign(ctx, a.UUID, tagID))
	require.NoError(t, tags.Assign(ctx, a.UUID, tagID))

	got, err := tags.ForAsset(ctx, a.UUID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "character", got[0].Name)
	assert.Equal(t, "#607D8B", got[0].Color)

	childID, err := folders.Create(ctx, "Characters", rootID)
	require.NoError(t, err)

	require.NoError(t, folders.AddAsset(ctx, a.UUID, childID))
	members, err := folders.AssetUUIDs(ctx, childID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.UUID}, members)

	inFolders, err := folders.ForAsset(ctx, a.UUID)
	require.NoError(t, err)
	require.Len(t, inFolders, 1)
	assert.Equal(t, "/Characters", inFolders[0].Path)

	removed, err := folders.RemoveAsset(ctx, a.UUID, childID)
	require.NoError(t, err)
	assert.True(t, removed)
}
