package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/entity"
	"github.com/forge3d/assetvault/internal/files"
	"github.com/forge3d/assetvault/internal/metadata"
	"github.com/forge3d/assetvault/internal/repository"
	"github.com/forge3d/assetvault/internal/store"
)

// Library is the façade external tools talk to. It orchestrates the
// tier manager, the asset repository, the metadata service, and the
// representation service so each save keeps database rows, EAV rows,
// sidecar files, and the three storage trees consistent.
type Library struct {
	assets          *repository.AssetRepo
	meta            *metadata.Service
	tiers           *files.TierManager
	representations *RepresentationService
	logger          *zap.Logger
}

// NewLibrary creates the library façade.
func NewLibrary(
	assets *repository.AssetRepo,
	meta *metadata.Service,
	tiers *files.TierManager,
	representations *RepresentationService,
	logger *zap.Logger,
) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{
		assets:          assets,
		meta:            meta,
		tiers:           tiers,
		representations: representations,
		logger:          logger,
	}
}

// SaveInput describes a new asset, version, or variant to save.
type SaveInput struct {
	Name              string
	AssetType         string
	VariantName       string
	Description       string
	Author            string
	Tags              []string
	SourceApplication string

	BlendSource     string
	ThumbnailSource string

	VersionNotes string

	// Dynamic fields written to EAV storage. Unknown names are
	// skipped and reported back.
	Metadata map[string]entity.Value
}

// SaveResult reports what a save produced.
type SaveResult struct {
	Asset         *repository.Asset
	Paths         *files.SavedPaths
	IgnoredFields []string
}

// SaveNewAsset saves a brand new asset as v001 of a fresh version
// group. The file lands in both the library and archive trees, a
// sidecar is written next to each copy, and dynamic metadata goes to
// EAV storage.
func (l *Library) SaveNewAsset(ctx context.Context, in SaveInput) (*SaveResult, error) {
	name := files.SanitizeName(in.Name)
	variantName := in.VariantName
	if variantName == "" {
		variantName = "Base"
	}
	assetType := in.AssetType
	if assetType == "" {
		assetType = "mesh"
	}

	exists, err := l.assets.NameExists(ctx, name, nil, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("asset named %q already exists: %w", name, store.ErrNameCollision)
	}

	a := &repository.Asset{
		UUID:              uuid.NewString(),
		Name:              name,
		AssetType:         assetType,
		VariantName:       variantName,
		Description:       in.Description,
		Author:            in.Author,
		Tags:              in.Tags,
		SourceApplication: in.SourceApplication,
		VersionNotes:      in.VersionNotes,
	}

	paths, err := l.tiers.SaveNewAsset(a.UUID, name, variantName, "v001", in.BlendSource, in.ThumbnailSource, assetType)
	if err != nil {
		return nil, err
	}
	a.BlendBackupPath = paths.BlendPath
	a.ThumbnailPath = paths.ThumbnailPath

	if _, err := l.assets.Add(ctx, a); err != nil {
		return nil, err
	}

	l.writeSidecars(a, paths)

	ignored, err := l.writeMetadata(ctx, a.UUID, in.Metadata)
	if err != nil {
		return nil, err
	}

	l.logger.Info("saved new asset",
		zap.String("name", name),
		zap.String("uuid", a.UUID),
		zap.String("type", assetType))
	return &SaveResult{Asset: a, Paths: paths, IgnoredFields: ignored}, nil
}

// SaveNewVersion saves the next version of an existing lineage. The
// outgoing library files are archived first, the new version becomes
// the latest, and an unpinned render designation follows it.
func (l *Library) SaveNewVersion(ctx context.Context, versionGroupID string, in SaveInput) (*SaveResult, error) {
	previous, err := l.assets.LatestVersion(ctx, versionGroupID)
	if err != nil {
		return nil, err
	}

	name := previous.Name
	variantName := previous.VariantName
	if variantName == "" {
		variantName = "Base"
	}
	assetType := previous.AssetType
	assetID := previous.AssetID
	if assetID == "" {
		assetID = versionGroupID
	}

	newLabel := files.VersionLabel(int(previous.Version) + 1)
	paths, err := l.tiers.SaveNewVersion(assetID, name, variantName, newLabel,
		in.BlendSource, in.ThumbnailSource, previous.VersionLabel, assetType)
	if err != nil {
		return nil, err
	}

	a := &repository.Asset{
		UUID:              uuid.NewString(),
		Name:              name,
		AssetType:         assetType,
		VariantName:       variantName,
		Description:       in.Description,
		Author:            in.Author,
		Tags:              in.Tags,
		SourceApplication: in.SourceApplication,
		VersionNotes:      in.VersionNotes,
		ParentVersionUUID: previous.UUID,
		BlendBackupPath:   paths.BlendPath,
		ThumbnailPath:     paths.ThumbnailPath,
	}

	if _, err := l.assets.CreateNewVersion(ctx, versionGroupID, a); err != nil {
		return nil, err
	}

	l.writeSidecars(a, paths)

	ignored, err := l.writeMetadata(ctx, a.UUID, in.Metadata)
	if err != nil {
		return nil, err
	}

	if l.representations != nil {
		if err := l.representations.OnNewVersionCreated(ctx, versionGroupID, variantName, name, assetType); err != nil {
			l.logger.Warn("representation refresh failed", zap.Error(err))
		}
	}

	l.logger.Info("saved new version",
		zap.String("name", name),
		zap.String("label", a.VersionLabel),
		zap.String("group", versionGroupID))
	return &SaveResult{Asset: a, Paths: paths, IgnoredFields: ignored}, nil
}

// SaveNewVariant branches a named variant off an existing asset. The
// variant starts its own version group at v001 with provenance
// recorded from the source.
func (l *Library) SaveNewVariant(ctx context.Context, sourceUUID, variantName, variantSet string, in SaveInput) (*SaveResult, error) {
	source, err := l.assets.ByUUID(ctx, sourceUUID)
	if err != nil {
		return nil, err
	}
	if variantName == "" || variantName == "Base" {
		return nil, fmt.Errorf("variant name must be set and cannot be %q", "Base")
	}

	assetID := source.AssetID
	if assetID == "" {
		assetID = source.VersionGroupID
	}
	paths, err := l.tiers.SaveNewAsset(assetID, source.Name, variantName, "v001",
		in.BlendSource, in.ThumbnailSource, source.AssetType)
	if err != nil {
		return nil, err
	}

	a := &repository.Asset{
		UUID:              uuid.NewString(),
		Name:              source.Name,
		AssetType:         source.AssetType,
		Description:       in.Description,
		Author:            in.Author,
		Tags:              in.Tags,
		SourceApplication: in.SourceApplication,
		VersionNotes:      in.VersionNotes,
		BlendBackupPath:   paths.BlendPath,
		ThumbnailPath:     paths.ThumbnailPath,
	}

	if _, err := l.assets.CreateNewVariant(ctx, sourceUUID, variantName, a, variantSet); err != nil {
		return nil, err
	}

	l.writeSidecars(a, paths)

	ignored, err := l.writeMetadata(ctx, a.UUID, in.Metadata)
	if err != nil {
		return nil, err
	}

	l.logger.Info("saved new variant",
		zap.String("name", source.Name),
		zap.String("variant", variantName))
	return &SaveResult{Asset: a, Paths: paths, IgnoredFields: ignored}, nil
}

// DeleteGranularity selects how much of an asset a delete removes.
type DeleteGranularity int

const (
	// DeleteLibraryOnly removes the live library files but keeps the
	// archive history and the database rows.
	DeleteLibraryOnly DeleteGranularity = iota
	// DeleteVersion removes one version: its archive and reviews
	// folders plus its database row.
	DeleteVersion
	// DeleteAllVersions removes the whole variant subtree across
	// library, archive, and reviews, plus every version row.
	DeleteAllVersions
)

// Delete removes an asset at the requested granularity.
func (l *Library) Delete(ctx context.Context, assetUUID string, granularity DeleteGranularity) error {
	a, err := l.assets.ByUUID(ctx, assetUUID)
	if err != nil {
		return err
	}
	variantName := a.VariantName
	if variantName == "" {
		variantName = "Base"
	}

	switch granularity {
	case DeleteLibraryOnly:
		return l.tiers.DeleteLibraryFiles(a.Name, variantName, a.AssetType)

	case DeleteVersion:
		if err := l.tiers.DeleteVersionFiles(a.Name, variantName, a.VersionLabel, a.AssetType); err != nil {
			return err
		}
		return l.assets.Delete(ctx, assetUUID)

	case DeleteAllVersions:
		if err := l.tiers.DeleteAllVersionFiles(a.Name, variantName, a.AssetType); err != nil {
			return err
		}
		groupID := a.VersionGroupID
		if groupID == "" {
			return l.assets.Delete(ctx, assetUUID)
		}
		versions, err := l.assets.Versions(ctx, groupID)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if err := l.assets.Delete(ctx, v.UUID); err != nil && !store.IsNotFound(err) {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown delete granularity %d", granularity)
	}
}

// AvailableVersions lists the archived version labels for a variant.
func (l *Library) AvailableVersions(ctx context.Context, assetUUID string) ([]string, error) {
	a, err := l.assets.ByUUID(ctx, assetUUID)
	if err != nil {
		return nil, err
	}
	variantName := a.VariantName
	if variantName == "" {
		variantName = "Base"
	}
	return l.tiers.AvailableVersions(a.Name, variantName, a.AssetType), nil
}

// Search finds assets matching a name, description, or tag substring.
func (l *Library) Search(ctx context.Context, query string) ([]repository.Asset, error) {
	return l.assets.Search(ctx, query)
}

// Stats summarizes the library contents.
type Stats struct {
	TotalAssets int
	ByType      map[string]int
	ColdAssets  int
	Favorites   int
}

// Stats computes per-type counts and totals over non-retired assets.
func (l *Library) Stats(ctx context.Context) (*Stats, error) {
	all, err := l.assets.All(ctx, repository.ListFilter{})
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByType: make(map[string]int)}
	for _, a := range all {
		stats.TotalAssets++
		stats.ByType[a.AssetType]++
		if a.IsCold {
			stats.ColdAssets++
		}
		if a.IsFavorite {
			stats.Favorites++
		}
	}
	return stats, nil
}

func (l *Library) writeSidecars(a *repository.Asset, paths *files.SavedPaths) {
	sc := &files.Sidecar{
		UUID:               a.UUID,
		Name:               a.Name,
		AssetType:          a.AssetType,
		VariantName:        a.VariantName,
		AssetID:            a.AssetID,
		SourceAssetName:    a.SourceAssetName,
		Version:            int(a.Version),
		VersionLabel:       a.VersionLabel,
		VersionGroupID:     a.VersionGroupID,
		IsLatest:           a.IsLatest,
		RepresentationType: a.RepresentationType,
		Description:        a.Description,
		Author:             a.Author,
		Tags:               a.Tags,
		CreatedDate:        time.Now().UTC().Format(time.RFC3339),
		SourceApplication:  a.SourceApplication,
	}

	jsonName := files.VersionedFileName(a.Name, a.VersionLabel, ".json")
	for _, dir := range []string{paths.LibraryDir, paths.ArchiveDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, jsonName)
		if err := files.WriteSidecar(path, sc); err != nil {
			l.logger.Warn("could not write sidecar",
				zap.String("path", path), zap.Error(err))
		}
	}
}

func (l *Library) writeMetadata(ctx context.Context, assetUUID string, values map[string]entity.Value) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ignored, err := l.meta.SetEntityMetadata(ctx, assetUUID, "asset", values)
	if err != nil {
		return nil, err
	}
	if len(ignored) > 0 {
		l.logger.Warn("ignored unknown metadata fields",
			zap.String("uuid", assetUUID),
			zap.Strings("fields", ignored))
	}
	return ignored, nil
}
