package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*TierManager, string) {
	t.Helper()
	root := t.TempDir()
	layout := NewLayout(root)
	return NewTierManager(layout, NewReferences(), zap.NewNop()), root
}

func writeTempBlend(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.blend")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSaveNewAsset(t *testing.T) {
	m, root := newTestManager(t)
	source := writeTempBlend(t, "blend-v001")

	paths, err := m.SaveNewAsset("fam-1", "Sword", "Base", "v001", source, "", "mesh")
	require.NoError(t, err)

	// Library and archive hold independent copies.
	assert.Equal(t, filepath.Join(root, "library", "meshes", "Sword", "Base", "Sword.v001.blend"), paths.BlendPath)
	assert.Equal(t, filepath.Join(root, "_archive", "meshes", "Sword", "Base", "v001", "Sword.v001.blend"), paths.ArchiveBlendPath)
	assert.FileExists(t, paths.BlendPath)
	assert.FileExists(t, paths.ArchiveBlendPath)

	// Stable current alias next to the library copy.
	assert.FileExists(t, filepath.Join(paths.LibraryDir, "Sword.current.blend"))

	// latest.txt points at the archive folder.
	marker, err := os.ReadFile(filepath.Join(paths.LibraryDir, "latest.txt"))
	require.NoError(t, err)
	assert.Equal(t, paths.ArchiveDir, string(marker))

	// meta.json snapshot in the archive folder.
	assert.FileExists(t, filepath.Join(paths.ArchiveDir, "meta.json"))
}

func TestSaveNewVersionArchivesPrevious(t *testing.T) {
	m, _ := newTestManager(t)

	v1 := writeTempBlend(t, "blend-v001")
	_, err := m.SaveNewAsset("fam-1", "Sword", "Base", "v001", v1, "", "mesh")
	require.NoError(t, err)

	v2 := writeTempBlend(t, "blend-v002")
	paths, err := m.SaveNewVersion("fam-1", "Sword", "Base", "v002", v2, "", "v001", "mesh")
	require.NoError(t, err)

	// v001 archive already existed so it must be untouched, v002 is new.
	v1Path, ok := m.VersionBlendPath("Sword", "Base", "v001", "mesh")
	require.True(t, ok)
	data, err := os.ReadFile(v1Path)
	require.NoError(t, err)
	assert.Equal(t, "blend-v001", string(data))

	v2Path, ok := m.VersionBlendPath("Sword", "Base", "v002", "mesh")
	require.True(t, ok)
	data, err = os.ReadFile(v2Path)
	require.NoError(t, err)
	assert.Equal(t, "blend-v002", string(data))

	// Latest library blend is now the v002 file, distinct from the v001 archive path.
	latest, ok := m.LatestBlendPath("Sword", "Base", "mesh")
	require.True(t, ok)
	assert.Equal(t, paths.BlendPath, latest)
	assert.NotEqual(t, v1Path, latest)
}

func TestArchiveSkipsAliasAndMarkerFiles(t *testing.T) {
	m, _ := newTestManager(t)

	v1 := writeTempBlend(t, "blend-v001")
	paths, err := m.SaveNewAsset("fam-1", "Sword", "Base", "v001", v1, "", "mesh")
	require.NoError(t, err)

	// Remove the archive so SaveNewVersion has to re-archive the library.
	require.NoError(t, os.RemoveAll(paths.ArchiveDir))

	v2 := writeTempBlend(t, "blend-v002")
	_, err = m.SaveNewVersion("fam-1", "Sword", "Base", "v002", v2, "", "v001", "mesh")
	require.NoError(t, err)

	archived, err := os.ReadDir(m.Layout().ArchiveDir("Sword", "Base", "v001", "mesh"))
	require.NoError(t, err)
	for _, entry := range archived {
		assert.NotEqual(t, "latest.txt", entry.Name())
		assert.NotContains(t, entry.Name(), ".current.blend")
		assert.NotContains(t, entry.Name(), ".proxy.blend")
		assert.NotContains(t, entry.Name(), ".render.blend")
	}
}

func TestAvailableVersions(t *testing.T) {
	m, _ := newTestManager(t)

	for i, label := range []string{"v001", "v002", "v003"} {
		src := writeTempBlend(t, "blend-"+label)
		prev := ""
		if i > 0 {
			prev = VersionLabel(i)
		}
		_, err := m.SaveNewVersion("fam-1", "Sword", "Base", label, src, "", prev, "mesh")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"v001", "v002", "v003"}, m.AvailableVersions("Sword", "Base", "mesh"))
	assert.Empty(t, m.AvailableVersions("NoSuch", "Base", "mesh"))
}

func TestDeleteGranularities(t *testing.T) {
	m, _ := newTestManager(t)

	v1 := writeTempBlend(t, "blend-v001")
	_, err := m.SaveNewAsset("fam-1", "Sword", "Base", "v001", v1, "", "mesh")
	require.NoError(t, err)
	v2 := writeTempBlend(t, "blend-v002")
	_, err = m.SaveNewVersion("fam-1", "Sword", "Base", "v002", v2, "", "v001", "mesh")
	require.NoError(t, err)

	// Library-only delete keeps the archive.
	require.NoError(t, m.DeleteLibraryFiles("Sword", "Base", "mesh"))
	_, ok := m.LatestBlendPath("Sword", "Base", "mesh")
	assert.False(t, ok)
	_, ok = m.VersionBlendPath("Sword", "Base", "v001", "mesh")
	assert.True(t, ok)

	// Single-version delete removes just that archive folder.
	require.NoError(t, m.DeleteVersionFiles("Sword", "Base", "v001", "mesh"))
	_, ok = m.VersionBlendPath("Sword", "Base", "v001", "mesh")
	assert.False(t, ok)
	_, ok = m.VersionBlendPath("Sword", "Base", "v002", "mesh")
	assert.True(t, ok)

	// Delete-all removes the whole variant subtree.
	require.NoError(t, m.DeleteAllVersionFiles("Sword", "Base", "mesh"))
	assert.Empty(t, m.AvailableVersions("Sword", "Base", "mesh"))
}

func TestReferences(t *testing.T) {
	refs := NewReferences()
	dir := t.TempDir()

	blend := filepath.Join(dir, "Sword.v001.blend")
	require.NoError(t, os.WriteFile(blend, []byte("v001"), 0o644))

	alias, err := refs.CreateCurrent(blend)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Sword.current.blend"), alias)
	assert.True(t, refs.HasCurrent(blend))

	// Representation copy from an arbitrary source.
	proxySource := filepath.Join(dir, "archived.blend")
	require.NoError(t, os.WriteFile(proxySource, []byte("proxy-content"), 0o644))
	proxyOut := ProxyAliasPath(blend)
	require.NoError(t, refs.CreateRepresentation(proxySource, proxyOut))
	assert.True(t, refs.HasProxy(blend))

	data, err := os.ReadFile(proxyOut)
	require.NoError(t, err)
	assert.Equal(t, "proxy-content", string(data))

	require.NoError(t, refs.DeleteRepresentations(blend))
	assert.False(t, refs.HasProxy(blend))
	assert.False(t, refs.HasRender(blend))

	// Missing source is an error.
	err = refs.CreateRepresentation(filepath.Join(dir, "missing.blend"), proxyOut)
	assert.Error(t, err)
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Sword.v001.json")

	sc := &Sidecar{
		UUID:           "uuid-1",
		Name:           "Sword",
		AssetType:      "mesh",
		VariantName:    "Base",
		AssetID:        "fam-1",
		Version:        1,
		VersionLabel:   "v001",
		VersionGroupID: "grp-1",
		IsLatest:       true,
		Extended:       map[string]any{"polygon_count": 1200},
	}
	require.NoError(t, WriteSidecar(path, sc))

	got, err := ReadSidecar(path)
	require.NoError(t, err)
	assert.Equal(t, "Sword", got.Name)
	assert.Equal(t, 1, got.MetadataVersion)
	assert.NotNil(t, got.Tags)

	require.NoError(t, UpdateSidecarName(path, "Blade"))
	got, err = ReadSidecar(path)
	require.NoError(t, err)
	assert.Equal(t, "Blade", got.Name)
	assert.Equal(t, "uuid-1", got.UUID)
	assert.NotEmpty(t, got.ModifiedDate)
}
