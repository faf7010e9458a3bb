// Package service implements the higher level asset workflows: saving
// and versioning assets across the storage trees, cold storage moves,
// representation designation, and filesystem-coupled renames.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/files"
	"github.com/forge3d/assetvault/internal/repository"
	"github.com/forge3d/assetvault/internal/store"
)

// ColdStorageService moves superseded version files between warm
// storage and the cold tree. Files in cold storage are immutable until
// restored.
type ColdStorageService struct {
	assets *repository.AssetRepo
	layout *files.Layout
	logger *zap.Logger
}

// NewColdStorageService creates a cold storage service.
func NewColdStorageService(assets *repository.AssetRepo, layout *files.Layout, logger *zap.Logger) *ColdStorageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ColdStorageService{assets: assets, layout: layout, logger: logger}
}

// movedFile records one completed move so a failed operation can be
// undone.
type movedFile struct {
	kind string
	from string
	to   string
}

// MoveToCold moves a version's files into the cold tree and records
// their original locations for restore. If the database update fails
// the file moves are rolled back.
func (s *ColdStorageService) MoveToCold(ctx context.Context, uuid string) (int, error) {
	asset, err := s.assets.ByUUID(ctx, uuid)
	if err != nil {
		return 0, err
	}
	if asset.IsCold {
		return 0, fmt.Errorf("asset %s: already in cold storage: %w", uuid, store.ErrImmutable)
	}

	versionGroupID := asset.VersionGroupID
	if versionGroupID == "" {
		versionGroupID = uuid
	}
	versionLabel := asset.VersionLabel
	if versionLabel == "" {
		versionLabel = "v001"
	}

	candidates := []movedFile{
		{kind: "usd", from: asset.USDFilePath},
		{kind: "blend", from: asset.BlendBackupPath},
		{kind: "thumbnail", from: asset.ThumbnailPath},
	}

	coldDir := s.layout.ColdDir(versionGroupID, versionLabel)
	if err := os.MkdirAll(coldDir, 0o755); err != nil {
		return 0, err
	}

	var moved []movedFile
	for _, c := range candidates {
		if c.from == "" {
			continue
		}
		if _, err := os.Stat(c.from); err != nil {
			continue
		}
		c.to = filepath.Join(coldDir, filepath.Base(c.from))
		if err := os.Rename(c.from, c.to); err != nil {
			s.rollback(moved)
			return 0, fmt.Errorf("moving %s to cold storage: %w", c.kind, err)
		}
		moved = append(moved, c)
	}
	if len(moved) == 0 {
		return 0, fmt.Errorf("asset %s has no files to move: %w", uuid, store.ErrNotFound)
	}

	updates := map[string]any{
		"is_cold":           1,
		"cold_storage_path": coldDir,
		"is_immutable":      1,
	}
	for _, m := range moved {
		switch m.kind {
		case "usd":
			updates["usd_file_path"] = m.to
			updates["original_usd_path"] = m.from
		case "blend":
			updates["blend_backup_path"] = m.to
			updates["original_blend_path"] = m.from
		case "thumbnail":
			updates["thumbnail_path"] = m.to
			updates["original_thumbnail_path"] = m.from
		}
	}

	if err := s.assets.Update(ctx, uuid, updates); err != nil {
		s.rollback(moved)
		return 0, fmt.Errorf("recording cold storage move: %w", err)
	}

	s.logger.Info("moved to cold storage",
		zap.String("uuid", uuid),
		zap.String("label", versionLabel),
		zap.Int("files", len(moved)))
	return len(moved), nil
}

// RestoreFromCold moves a version's files back to their original
// locations, clears the shadow paths, and removes the emptied cold
// folder.
func (s *ColdStorageService) RestoreFromCold(ctx context.Context, uuid string) (int, error) {
	asset, err := s.assets.ByUUID(ctx, uuid)
	if err != nil {
		return 0, err
	}
	if !asset.IsCold {
		return 0, fmt.Errorf("asset %s is not in cold storage", uuid)
	}

	candidates := []movedFile{
		{kind: "usd", from: asset.USDFilePath, to: asset.OriginalUSDPath},
		{kind: "blend", from: asset.BlendBackupPath, to: asset.OriginalBlendPath},
		{kind: "thumbnail", from: asset.ThumbnailPath, to: asset.OriginalThumbnailPath},
	}

	var restored []movedFile
	for _, c := range candidates {
		if c.from == "" || c.to == "" {
			continue
		}
		if _, err := os.Stat(c.from); err != nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(c.to), 0o755); err != nil {
			return 0, err
		}
		if err := os.Rename(c.from, c.to); err != nil {
			return 0, fmt.Errorf("restoring %s from cold storage: %w", c.kind, err)
		}
		restored = append(restored, c)
	}
	if len(restored) == 0 {
		return 0, fmt.Errorf("asset %s has no files to restore: %w", uuid, store.ErrNotFound)
	}

	updates := map[string]any{
		"is_cold":                 0,
		"cold_storage_path":       nil,
		"is_immutable":            0,
		"original_usd_path":       nil,
		"original_blend_path":     nil,
		"original_thumbnail_path": nil,
	}
	for _, m := range restored {
		switch m.kind {
		case "usd":
			updates["usd_file_path"] = m.to
		case "blend":
			updates["blend_backup_path"] = m.to
		case "thumbnail":
			updates["thumbnail_path"] = m.to
		}
	}

	if err := s.assets.Update(ctx, uuid, updates); err != nil {
		return 0, fmt.Errorf("recording cold storage restore: %w", err)
	}

	s.cleanupEmptyColdDir(asset.ColdStoragePath)

	s.logger.Info("restored from cold storage",
		zap.String("uuid", uuid),
		zap.Int("files", len(restored)))
	return len(restored), nil
}

// ColdAssets returns every version currently in cold storage.
func (s *ColdStorageService) ColdAssets(ctx context.Context) ([]repository.Asset, error) {
	return s.assets.ColdAssets(ctx)
}

// ColdAssetCount returns how many versions are in cold storage.
func (s *ColdStorageService) ColdAssetCount(ctx context.Context) (int, error) {
	assets, err := s.assets.ColdAssets(ctx)
	if err != nil {
		return 0, err
	}
	return len(assets), nil
}

// CleanupOrphans removes cold storage folders with no matching
// database row and returns the removed paths.
func (s *ColdStorageService) CleanupOrphans(ctx context.Context) ([]string, error) {
	coldRoot := s.layout.ColdStorageRoot()
	if _, err := os.Stat(coldRoot); err != nil {
		return nil, nil
	}

	coldAssets, err := s.assets.ColdAssets(ctx)
	if err != nil {
		return nil, err
	}
	valid := make(map[string]bool, len(coldAssets))
	for _, a := range coldAssets {
		if a.ColdStoragePath != "" {
			valid[a.ColdStoragePath] = true
		}
	}

	var removed []string
	groups, err := os.ReadDir(coldRoot)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		if !group.IsDir() {
			continue
		}
		groupDir := filepath.Join(coldRoot, group.Name())
		versions, err := os.ReadDir(groupDir)
		if err != nil {
			continue
		}
		for _, version := range versions {
			if !version.IsDir() {
				continue
			}
			versionDir := filepath.Join(groupDir, version.Name())
			if valid[versionDir] {
				continue
			}
			if err := os.RemoveAll(versionDir); err != nil {
				s.logger.Warn("failed to remove orphaned cold folder",
					zap.String("path", versionDir), zap.Error(err))
				continue
			}
			removed = append(removed, versionDir)
		}
		// Best effort, fails while non-empty.
		os.Remove(groupDir)
	}
	return removed, nil
}

func (s *ColdStorageService) rollback(moved []movedFile) {
	for i := len(moved) - 1; i >= 0; i-- {
		m := moved[i]
		if _, err := os.Stat(m.to); err != nil {
			continue
		}
		if err := os.Rename(m.to, m.from); err != nil {
			s.logger.Error("cold storage rollback failed",
				zap.String("path", m.to), zap.Error(err))
		}
	}
}

func (s *ColdStorageService) cleanupEmptyColdDir(coldPath string) {
	if coldPath == "" {
		return
	}
	if err := os.Remove(coldPath); err != nil {
		return
	}
	os.Remove(filepath.Dir(coldPath))
}
