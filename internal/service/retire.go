package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/files"
	"github.com/forge3d/assetvault/internal/repository"
	"github.com/forge3d/assetvault/internal/store"
)

// RetireService moves a variant and all its versions out of the active
// trees into the retired tree, and back. Retired files live under
// retired/{type}/{family}/{variant}/{library,archive/vXXX}/ so a
// restore can put everything back where it came from.
type RetireService struct {
	assets *repository.AssetRepo
	layout *files.Layout
	logger *zap.Logger

	retiredBy string
}

// NewRetireService creates a retire service. retiredBy is recorded on
// each retired row for the audit trail.
func NewRetireService(assets *repository.AssetRepo, layout *files.Layout, retiredBy string, logger *zap.Logger) *RetireService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetireService{assets: assets, layout: layout, retiredBy: retiredBy, logger: logger}
}

// Retire moves every version of the asset's variant into the retired
// tree and marks the rows retired. The file moves are rolled back if no
// row could be updated.
func (s *RetireService) Retire(ctx context.Context, uuid string) (int, error) {
	asset, err := s.assets.ByUUID(ctx, uuid)
	if err != nil {
		return 0, err
	}
	if asset.IsRetired {
		return 0, fmt.Errorf("asset %s is already retired", uuid)
	}

	variantName := asset.VariantName
	if variantName == "" {
		variantName = "Base"
	}
	groupID := asset.VersionGroupID
	if groupID == "" {
		groupID = uuid
	}

	versions, err := s.variantVersions(ctx, groupID, variantName)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		versions = []repository.Asset{*asset}
	}

	retiredBase := s.layout.RetiredDir(asset.Name, variantName, asset.AssetType)
	if err := os.MkdirAll(retiredBase, 0o755); err != nil {
		return 0, err
	}

	var moved []renameStep

	// Library folder contents go to retired/library/.
	libraryDir := s.layout.LibraryDir(asset.Name, variantName, asset.AssetType)
	steps, err := s.moveContents(libraryDir, filepath.Join(retiredBase, "library"))
	moved = append(moved, steps...)
	if err != nil {
		s.replayMoves(moved)
		return 0, err
	}

	// Each archive version folder goes to retired/archive/{label}/.
	archiveDir := s.layout.VariantArchiveDir(asset.Name, variantName, asset.AssetType)
	if entries, err := os.ReadDir(archiveDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			src := filepath.Join(archiveDir, e.Name())
			dst := filepath.Join(retiredBase, "archive", e.Name())
			steps, err := s.moveContents(src, dst)
			moved = append(moved, steps...)
			if err != nil {
				s.replayMoves(moved)
				return 0, err
			}
			os.Remove(src)
		}
		os.Remove(archiveDir)
	}
	os.Remove(libraryDir)

	now := time.Now()
	retired := 0
	for i := range versions {
		v := &versions[i]
		updates := s.relocatedPaths(v, retiredBase)
		updates["is_retired"] = 1
		updates["retired_date"] = now
		updates["retired_by"] = s.retiredBy
		if err := s.assets.Update(ctx, v.UUID, updates); err != nil {
			s.logger.Warn("could not mark version retired",
				zap.String("uuid", v.UUID), zap.Error(err))
			continue
		}
		retired++
	}
	if retired == 0 {
		s.replayMoves(moved)
		return 0, fmt.Errorf("no versions could be retired for %s", asset.Name)
	}

	s.logger.Info("retired asset",
		zap.String("name", asset.Name),
		zap.String("variant", variantName),
		zap.Int("versions", retired))
	return retired, nil
}

// Restore moves a retired variant's files back into the active trees
// and clears the retired flags on every version row.
func (s *RetireService) Restore(ctx context.Context, uuid string) (int, error) {
	asset, err := s.assets.ByUUID(ctx, uuid)
	if err != nil {
		return 0, err
	}
	if !asset.IsRetired {
		return 0, fmt.Errorf("asset %s is not retired", uuid)
	}

	variantName := asset.VariantName
	if variantName == "" {
		variantName = "Base"
	}
	groupID := asset.VersionGroupID
	if groupID == "" {
		groupID = uuid
	}

	retiredBase := s.layout.RetiredDir(asset.Name, variantName, asset.AssetType)
	if _, err := os.Stat(retiredBase); err != nil {
		return 0, fmt.Errorf("retired folder missing: %s: %w", retiredBase, store.ErrNotFound)
	}

	versions, err := s.variantVersions(ctx, groupID, variantName)
	if err != nil {
		return 0, err
	}
	var toRestore []repository.Asset
	for _, v := range versions {
		if v.IsRetired {
			toRestore = append(toRestore, v)
		}
	}
	if len(toRestore) == 0 {
		toRestore = []repository.Asset{*asset}
	}

	var moved []renameStep

	libraryDir := s.layout.LibraryDir(asset.Name, variantName, asset.AssetType)
	steps, err := s.moveContents(filepath.Join(retiredBase, "library"), libraryDir)
	moved = append(moved, steps...)
	if err != nil {
		s.replayMoves(moved)
		return 0, err
	}

	retiredArchive := filepath.Join(retiredBase, "archive")
	if entries, err := os.ReadDir(retiredArchive); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			src := filepath.Join(retiredArchive, e.Name())
			dst := s.layout.ArchiveDir(asset.Name, variantName, e.Name(), asset.AssetType)
			steps, err := s.moveContents(src, dst)
			moved = append(moved, steps...)
			if err != nil {
				s.replayMoves(moved)
				return 0, err
			}
			os.Remove(src)
		}
	}

	activeRoot := filepath.Dir(libraryDir)
	restored := 0
	for i := range toRestore {
		v := &toRestore[i]
		updates := s.relocatedPaths(v, activeRoot)
		// The archive tree holds the versioned copies; prefer them.
		archiveBase := s.layout.VariantArchiveDir(asset.Name, variantName, asset.AssetType)
		for key, path := range s.relocatedPaths(v, archiveBase) {
			updates[key] = path
		}
		updates["is_retired"] = 0
		updates["retired_date"] = nil
		updates["retired_by"] = nil
		if err := s.assets.Update(ctx, v.UUID, updates); err != nil {
			s.logger.Warn("could not clear retired flag",
				zap.String("uuid", v.UUID), zap.Error(err))
			continue
		}
		restored++
	}
	if restored == 0 {
		s.replayMoves(moved)
		return 0, fmt.Errorf("no versions could be restored for %s", asset.Name)
	}

	s.cleanupRetiredTree(retiredBase)

	s.logger.Info("restored retired asset",
		zap.String("name", asset.Name),
		zap.String("variant", variantName),
		zap.Int("versions", restored))
	return restored, nil
}

// RetiredAssets lists retired assets, head versions only unless
// includeAllVersions is set.
func (s *RetireService) RetiredAssets(ctx context.Context, includeAllVersions bool) ([]repository.Asset, error) {
	return s.assets.RetiredAssets(ctx, !includeAllVersions)
}

// IsRetired reports whether an asset row is retired.
func (s *RetireService) IsRetired(ctx context.Context, uuid string) (bool, error) {
	a, err := s.assets.ByUUID(ctx, uuid)
	if err != nil {
		return false, err
	}
	return a.IsRetired, nil
}

func (s *RetireService) variantVersions(ctx context.Context, groupID, variantName string) ([]repository.Asset, error) {
	all, err := s.assets.Versions(ctx, groupID)
	if err != nil && !store.IsNotFound(err) {
		return nil, err
	}
	var out []repository.Asset
	for _, v := range all {
		name := v.VariantName
		if name == "" {
			name = "Base"
		}
		if name == variantName {
			out = append(out, v)
		}
	}
	return out, nil
}

// moveContents moves every entry of src into dst, returning the
// completed moves so a failure can be rolled back.
func (s *RetireService) moveContents(src, dst string) ([]renameStep, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, err
	}

	var moved []renameStep
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		if err := os.RemoveAll(to); err != nil {
			return moved, err
		}
		if err := os.Rename(from, to); err != nil {
			return moved, fmt.Errorf("moving %s: %w", from, err)
		}
		moved = append(moved, renameStep{to: to, from: from})
	}
	return moved, nil
}

// relocatedPaths maps an asset's recorded file paths to their new
// locations by filename search under base.
func (s *RetireService) relocatedPaths(a *repository.Asset, base string) map[string]any {
	updates := make(map[string]any)
	find := func(name string) string {
		var found string
		filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil || found != "" {
				return nil
			}
			if !d.IsDir() && d.Name() == name {
				found = path
			}
			return nil
		})
		return found
	}

	for column, old := range map[string]string{
		"blend_backup_path": a.BlendBackupPath,
		"thumbnail_path":    a.ThumbnailPath,
		"usd_file_path":     a.USDFilePath,
		"preview_path":      a.PreviewPath,
	} {
		if old == "" {
			continue
		}
		if path := find(filepath.Base(old)); path != "" {
			updates[column] = path
		}
	}
	return updates
}

func (s *RetireService) replayMoves(moved []renameStep) {
	for i := len(moved) - 1; i >= 0; i-- {
		step := moved[i]
		if err := os.MkdirAll(filepath.Dir(step.from), 0o755); err != nil {
			continue
		}
		if err := os.Rename(step.to, step.from); err != nil {
			s.logger.Warn("retire rollback failed",
				zap.String("path", step.to), zap.Error(err))
		}
	}
}

// cleanupRetiredTree removes the emptied retired folders, walking up
// from the variant folder while each parent is empty.
func (s *RetireService) cleanupRetiredTree(retiredBase string) {
	archive := filepath.Join(retiredBase, "archive")
	if entries, err := os.ReadDir(archive); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				os.Remove(filepath.Join(archive, e.Name()))
			}
		}
	}
	os.Remove(archive)
	os.Remove(filepath.Join(retiredBase, "library"))

	dir := retiredBase
	for i := 0; i < 3; i++ {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
