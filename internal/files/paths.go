// Package files owns the on-disk storage convention for asset files:
// the library (hot), archive (full history), reviews, and cold storage
// trees, plus the versioned filename and stable-alias naming rules.
package files

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Storage tree folder names under the storage root.
const (
	LibraryFolder     = "library"
	ArchiveFolder     = "_archive"
	ReviewsFolder     = "reviews"
	ColdStorageFolder = "_cold_storage"
	RetiredFolder     = "_retired"
	MetaFolder        = ".meta"
)

// Stable alias suffixes for representation files. These names carry no
// version token so external scene links never break when content updates.
const (
	CurrentSuffix = ".current"
	ProxySuffix   = ".proxy"
	RenderSuffix  = ".render"
)

// DefaultVariantName is the variant every new asset starts with.
const DefaultVariantName = "Base"

// typeFolders maps asset types to their folder names under each tree.
var typeFolders = map[string]string{
	"mesh":          "meshes",
	"material":      "materials",
	"rig":           "rigs",
	"light":         "lights",
	"camera":        "cameras",
	"collection":    "collections",
	"grease_pencil": "grease_pencils",
	"curve":         "curves",
	"scene":         "scenes",
	"texture":       "textures",
	"other":         "other",
}

var (
	invalidChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	repeatedUnder = regexp.MustCompile(`_+`)
	versionInStem = regexp.MustCompile(`\.(v\d{3,})(?:\.|$)`)
	versionSuffix = regexp.MustCompile(`\.(v\d{3,}).*$`)
)

// TypeFolder returns the folder name for an asset type. Unknown types
// fall back to "other".
func TypeFolder(assetType string) string {
	if folder, ok := typeFolders[assetType]; ok {
		return folder
	}
	return "other"
}

// SanitizeName strips filesystem-illegal characters from an asset name,
// trims leading/trailing spaces and dots, and collapses repeated
// underscores. An empty result becomes "unnamed".
func SanitizeName(name string) string {
	safe := invalidChars.ReplaceAllString(name, "_")
	safe = strings.Trim(safe, " .")
	safe = repeatedUnder.ReplaceAllString(safe, "_")
	if safe == "" {
		return "unnamed"
	}
	return safe
}

// VersionLabel formats a version number as a zero-padded label ("v001").
func VersionLabel(version int) string {
	return fmt.Sprintf("v%03d", version)
}

// ProxyLabel formats a custom proxy version as a zero-padded label ("p001").
func ProxyLabel(version int) string {
	return fmt.Sprintf("p%03d", version)
}

// VersionedFileName builds the versioned filename for an asset file,
// e.g. "Sword.v002.blend". The version token keeps a 3D tool from
// conflating two links to the same base name.
func VersionedFileName(assetName, versionLabel, ext string) string {
	return SanitizeName(assetName) + "." + versionLabel + ext
}

// VersionFromStem extracts the version label from a versioned filename
// stem ("Sword.v002" -> "v002"). Returns "" when the stem carries no
// version token.
func VersionFromStem(stem string) string {
	m := versionInStem.FindStringSubmatch(stem)
	if m == nil {
		return ""
	}
	return m[1]
}

// BaseNameFromStem extracts the base asset name from a versioned or
// alias filename stem ("Sword.v002.current" -> "Sword").
func BaseNameFromStem(stem string) string {
	base := versionSuffix.ReplaceAllString(stem, "")
	for _, suffix := range []string{CurrentSuffix, ProxySuffix, RenderSuffix} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}

// Layout resolves paths inside one storage root. The three storage
// trees are exclusively owned by this package; nothing else writes
// into them directly.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at the given storage directory.
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the storage root directory.
func (l *Layout) Root() string {
	return l.root
}

// LibraryRoot returns the library tree root (hot storage, latest versions).
func (l *Layout) LibraryRoot() string {
	return filepath.Join(l.root, LibraryFolder)
}

// ArchiveRoot returns the archive tree root (every version, immutable).
func (l *Layout) ArchiveRoot() string {
	return filepath.Join(l.root, ArchiveFolder)
}

// ReviewsRoot returns the reviews tree root (review sidecar data).
func (l *Layout) ReviewsRoot() string {
	return filepath.Join(l.root, ReviewsFolder)
}

// ColdStorageRoot returns the cold storage tree root.
func (l *Layout) ColdStorageRoot() string {
	return filepath.Join(l.root, ColdStorageFolder)
}

// MetaDir returns the hidden .meta directory holding the database.
func (l *Layout) MetaDir() string {
	return filepath.Join(l.root, MetaFolder)
}

// DatabasePath returns the library database file path.
func (l *Layout) DatabasePath() string {
	return filepath.Join(l.MetaDir(), "database.db")
}

// FamilyFolder returns the folder name for an asset family. Folders are
// human-readable; UUIDs live only in the database.
func (l *Layout) FamilyFolder(assetName string) string {
	return SanitizeName(assetName)
}

// LibraryDir returns library/{type}/{family}/{variant}/ for the latest
// live files of a variant.
func (l *Layout) LibraryDir(assetName, variantName, assetType string) string {
	return filepath.Join(l.LibraryRoot(), TypeFolder(assetType), l.FamilyFolder(assetName), variantName)
}

// ArchiveDir returns _archive/{type}/{family}/{variant}/{version}/ for
// one immutable archived version.
func (l *Layout) ArchiveDir(assetName, variantName, versionLabel, assetType string) string {
	return filepath.Join(l.ArchiveRoot(), TypeFolder(assetType), l.FamilyFolder(assetName), variantName, versionLabel)
}

// VariantArchiveDir returns the archive folder holding all versions of
// one variant.
func (l *Layout) VariantArchiveDir(assetName, variantName, assetType string) string {
	return filepath.Join(l.ArchiveRoot(), TypeFolder(assetType), l.FamilyFolder(assetName), variantName)
}

// ReviewsDir returns reviews/{type}/{family}/{variant}/{version}/.
func (l *Layout) ReviewsDir(assetName, variantName, versionLabel, assetType string) string {
	return filepath.Join(l.ReviewsRoot(), TypeFolder(assetType), l.FamilyFolder(assetName), variantName, versionLabel)
}

// ColdDir returns _cold_storage/{version_group_id}/{version_label}/ for
// files migrated out of the hot trees.
func (l *Layout) ColdDir(versionGroupID, versionLabel string) string {
	return filepath.Join(l.ColdStorageRoot(), versionGroupID, versionLabel)
}

// RetiredDir returns _retired/{type}/{family}/{variant}/.
func (l *Layout) RetiredDir(assetName, variantName, assetType string) string {
	return filepath.Join(l.root, RetiredFolder, TypeFolder(assetType), l.FamilyFolder(assetName), variantName)
}

// CurrentAliasPath returns the {name}.current.blend path next to an
// asset blend file.
func CurrentAliasPath(blendPath string) string {
	return aliasPath(blendPath, CurrentSuffix)
}

// ProxyAliasPath returns the {name}.proxy.blend path next to an asset
// blend file.
func ProxyAliasPath(blendPath string) string {
	return aliasPath(blendPath, ProxySuffix)
}

// RenderAliasPath returns the {name}.render.blend path next to an asset
// blend file.
func RenderAliasPath(blendPath string) string {
	return aliasPath(blendPath, RenderSuffix)
}

func aliasPath(blendPath, suffix string) string {
	dir := filepath.Dir(blendPath)
	stem := strings.TrimSuffix(filepath.Base(blendPath), filepath.Ext(blendPath))
	base := BaseNameFromStem(stem)
	return filepath.Join(dir, base+suffix+".blend")
}
