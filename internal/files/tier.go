package files

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SavedPaths reports where a save operation placed the asset's files.
type SavedPaths struct {
	LibraryDir       string
	ArchiveDir       string
	BlendPath        string
	ArchiveBlendPath string
	CurrentBlendPath string
	ThumbnailPath    string
	ArchiveThumbPath string
	JSONPath         string
	ArchiveJSONPath  string
}

// TierManager moves asset files between the library (hot), archive
// (immutable history), and reviews trees.
//
// Workflow:
//   - new asset: write to library/ AND _archive/v001/
//   - new version: archive the outgoing library files first, then write
//     the new version to library/ AND _archive/vXXX/
//   - import latest: read from library/
//   - import a specific version: read from _archive/
type TierManager struct {
	layout *Layout
	refs   *References
	logger *zap.Logger
}

// NewTierManager creates a TierManager over a storage layout.
func NewTierManager(layout *Layout, refs *References, logger *zap.Logger) *TierManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TierManager{layout: layout, refs: refs, logger: logger}
}

// Layout returns the storage layout this manager operates on.
func (m *TierManager) Layout() *Layout {
	return m.layout
}

// SaveNewAsset writes a new asset version into both the library and
// archive trees. The two copies are independent: library files will be
// overwritten by newer versions while the archive copy must stay
// immutable, so the archive is never a link into the library.
func (m *TierManager) SaveNewAsset(assetID, assetName, variantName, versionLabel, blendSource, thumbnailSource, assetType string) (*SavedPaths, error) {
	libraryDir := m.layout.LibraryDir(assetName, variantName, assetType)
	archiveDir := m.layout.ArchiveDir(assetName, variantName, versionLabel, assetType)

	for _, dir := range []string{libraryDir, archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	blendName := VersionedFileName(assetName, versionLabel, ".blend")
	jsonName := VersionedFileName(assetName, versionLabel, ".json")

	paths := &SavedPaths{
		LibraryDir:       libraryDir,
		ArchiveDir:       archiveDir,
		BlendPath:        filepath.Join(libraryDir, blendName),
		ArchiveBlendPath: filepath.Join(archiveDir, blendName),
	}

	if err := copyFile(blendSource, paths.ArchiveBlendPath); err != nil {
		return nil, fmt.Errorf("archiving blend file: %w", err)
	}
	if err := copyFile(blendSource, paths.BlendPath); err != nil {
		return nil, fmt.Errorf("copying blend file to library: %w", err)
	}

	if alias, err := m.refs.CreateCurrent(paths.BlendPath); err != nil {
		m.logger.Warn("could not create current reference", zap.Error(err))
	} else {
		paths.CurrentBlendPath = alias
	}

	if thumbnailSource != "" {
		if _, err := os.Stat(thumbnailSource); err == nil {
			paths.ThumbnailPath = filepath.Join(libraryDir, "thumbnail.png")
			paths.ArchiveThumbPath = filepath.Join(archiveDir, "thumbnail.png")
			if err := copyFile(thumbnailSource, paths.ArchiveThumbPath); err != nil {
				return nil, fmt.Errorf("archiving thumbnail: %w", err)
			}
			if err := copyFile(thumbnailSource, paths.ThumbnailPath); err != nil {
				return nil, fmt.Errorf("copying thumbnail to library: %w", err)
			}
		}
	}

	libraryJSON := filepath.Join(libraryDir, jsonName)
	if _, err := os.Stat(libraryJSON); err == nil {
		archiveJSON := filepath.Join(archiveDir, jsonName)
		if err := copyFile(libraryJSON, archiveJSON); err == nil {
			paths.JSONPath = libraryJSON
			paths.ArchiveJSONPath = archiveJSON
		}
	}

	if err := WriteArchiveMeta(archiveDir, &ArchiveMeta{
		AssetID:      assetID,
		AssetName:    assetName,
		VariantName:  variantName,
		VersionLabel: versionLabel,
	}); err != nil {
		m.logger.Debug("could not write archive metadata", zap.String("dir", archiveDir), zap.Error(err))
	}

	m.writeLatestMarker(libraryDir, archiveDir)

	return paths, nil
}

// SaveNewVersion archives the outgoing library files into the previous
// version's archive folder, then saves the new version. The ordering
// guarantees the outgoing version is archived before it is overwritten.
func (m *TierManager) SaveNewVersion(assetID, assetName, variantName, newVersionLabel, blendSource, thumbnailSource, previousVersionLabel, assetType string) (*SavedPaths, error) {
	libraryDir := m.layout.LibraryDir(assetName, variantName, assetType)

	if previousVersionLabel != "" {
		if _, err := os.Stat(libraryDir); err == nil {
			prevArchiveDir := m.layout.ArchiveDir(assetName, variantName, previousVersionLabel, assetType)
			if _, err := os.Stat(prevArchiveDir); err != nil {
				if err := m.archiveLibraryToVersion(libraryDir, prevArchiveDir); err != nil {
					return nil, fmt.Errorf("archiving previous version %s: %w", previousVersionLabel, err)
				}
			}
		}
	}

	return m.SaveNewAsset(assetID, assetName, variantName, newVersionLabel, blendSource, thumbnailSource, assetType)
}

// archiveLibraryToVersion copies the library folder contents into one
// archive version folder, skipping marker files and the stable aliases.
func (m *TierManager) archiveLibraryToVersion(libraryDir, archiveDir string) error {
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(libraryDir)
	if err != nil {
		return err
	}

	skipNames := map[string]bool{"latest": true, "latest.txt": true}
	skipSuffixes := []string{CurrentSuffix + ".blend", ProxySuffix + ".blend", RenderSuffix + ".blend"}

	for _, entry := range entries {
		if entry.IsDir() || skipNames[entry.Name()] {
			continue
		}
		skip := false
		for _, s := range skipSuffixes {
			if strings.HasSuffix(entry.Name(), s) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		src := filepath.Join(libraryDir, entry.Name())
		if err := copyFile(src, filepath.Join(archiveDir, entry.Name())); err != nil {
			return err
		}
	}

	return WriteArchiveMeta(archiveDir, &ArchiveMeta{ArchivedFrom: "library"})
}

// writeLatestMarker writes the latest.txt pointer in the library folder.
// A plain text file stands in for a symlink because symlink creation
// requires elevated privileges on at least one supported platform.
func (m *TierManager) writeLatestMarker(libraryDir, archiveDir string) {
	marker := filepath.Join(libraryDir, "latest.txt")
	if err := os.WriteFile(marker, []byte(archiveDir), 0o644); err != nil {
		m.logger.Debug("could not write latest marker", zap.String("path", marker), zap.Error(err))
	}
}

// LatestBlendPath locates the latest .blend file in a variant's library
// folder. Versioned filenames win; a legacy unversioned file or any
// non-alias .blend is the fallback.
func (m *TierManager) LatestBlendPath(assetName, variantName, assetType string) (string, bool) {
	libraryDir := m.layout.LibraryDir(assetName, variantName, assetType)
	safeName := SanitizeName(assetName)

	entries, err := os.ReadDir(libraryDir)
	if err != nil {
		return "", false
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(safeName) + `\.v(\d{3,})\.blend$`)
	highest := -1
	highestPath := ""
	for _, entry := range entries {
		if m := pattern.FindStringSubmatch(entry.Name()); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n > highest {
				highest = n
				highestPath = filepath.Join(libraryDir, entry.Name())
			}
		}
	}
	if highestPath != "" {
		return highestPath, true
	}

	legacy := filepath.Join(libraryDir, safeName+".blend")
	if _, err := os.Stat(legacy); err == nil {
		return legacy, true
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".blend") {
			continue
		}
		if isAliasFile(entry.Name()) {
			continue
		}
		return filepath.Join(libraryDir, entry.Name()), true
	}

	return "", false
}

// VersionBlendPath locates a specific version's .blend file in the
// archive tree.
func (m *TierManager) VersionBlendPath(assetName, variantName, versionLabel, assetType string) (string, bool) {
	archiveDir := m.layout.ArchiveDir(assetName, variantName, versionLabel, assetType)
	safeName := SanitizeName(assetName)

	versioned := filepath.Join(archiveDir, safeName+"."+versionLabel+".blend")
	if _, err := os.Stat(versioned); err == nil {
		return versioned, true
	}

	legacy := filepath.Join(archiveDir, safeName+".blend")
	if _, err := os.Stat(legacy); err == nil {
		return legacy, true
	}

	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".blend") {
			return filepath.Join(archiveDir, entry.Name()), true
		}
	}
	return "", false
}

// AvailableVersions lists the archived version labels for a variant,
// sorted ascending.
func (m *TierManager) AvailableVersions(assetName, variantName, assetType string) []string {
	base := m.layout.VariantArchiveDir(assetName, variantName, assetType)
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "v") {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)
	return versions
}

// DeleteLibraryFiles removes a variant's library folder, keeping its
// archive history.
func (m *TierManager) DeleteLibraryFiles(assetName, variantName, assetType string) error {
	libraryDir := m.layout.LibraryDir(assetName, variantName, assetType)
	if _, err := os.Stat(libraryDir); err != nil {
		return nil
	}
	return os.RemoveAll(libraryDir)
}

// DeleteVersionFiles removes one version's archive and reviews folders.
func (m *TierManager) DeleteVersionFiles(assetName, variantName, versionLabel, assetType string) error {
	for _, dir := range []string{
		m.layout.ArchiveDir(assetName, variantName, versionLabel, assetType),
		m.layout.ReviewsDir(assetName, variantName, versionLabel, assetType),
	} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllVersionFiles removes the entire variant subtree across the
// library, archive, and reviews trees.
func (m *TierManager) DeleteAllVersionFiles(assetName, variantName, assetType string) error {
	for _, dir := range []string{
		m.layout.LibraryDir(assetName, variantName, assetType),
		m.layout.VariantArchiveDir(assetName, variantName, assetType),
		filepath.Join(m.layout.ReviewsRoot(), TypeFolder(assetType), m.layout.FamilyFolder(assetName), variantName),
	} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}

func isAliasFile(name string) bool {
	for _, s := range []string{CurrentSuffix + ".blend", ProxySuffix + ".blend", RenderSuffix + ".blend"} {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
