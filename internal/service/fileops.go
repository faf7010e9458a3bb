package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/files"
	"github.com/forge3d/assetvault/internal/repository"
	"github.com/forge3d/assetvault/internal/store"
)

// FileOps performs filesystem-coupled asset operations: renames that
// touch every tier plus folder moves. Renames follow a two phase
// pattern: filesystem first with an undo log, database second, and the
// undo log replays in reverse if either phase fails.
type FileOps struct {
	assets  *repository.AssetRepo
	folders *repository.FolderRepo
	layout  *files.Layout
	logger  *zap.Logger

	renameRetries int
	retryDelay    time.Duration
}

// NewFileOps creates a file operations service.
func NewFileOps(assets *repository.AssetRepo, folders *repository.FolderRepo, layout *files.Layout, logger *zap.Logger) *FileOps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileOps{
		assets:        assets,
		folders:       folders,
		layout:        layout,
		logger:        logger,
		renameRetries: 3,
		retryDelay:    200 * time.Millisecond,
	}
}

// renameStep records one completed rename as (new, old) so a failed
// operation can be replayed in reverse.
type renameStep struct {
	to   string
	from string
}

// Rename renames an asset across the filesystem and database. The new
// name is sanitized first; a collision with another asset fails before
// anything moves. The family folders in the library, archive, and
// reviews trees are all renamed, along with every versioned file and
// stable alias inside them, and every sibling version row is updated.
func (f *FileOps) Rename(ctx context.Context, uuid, newName string) (string, error) {
	asset, err := f.assets.ByUUID(ctx, uuid)
	if err != nil {
		return "", err
	}
	oldName := asset.Name
	if oldName == "" {
		return "", fmt.Errorf("asset %s has no name", uuid)
	}

	safeName := files.SanitizeName(newName)
	if safeName == oldName {
		return safeName, nil
	}

	exists, err := f.assets.NameExists(ctx, safeName, nil, uuid)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("asset named %q already exists: %w", safeName, store.ErrNameCollision)
	}

	oldSafe := files.SanitizeName(oldName)
	typeFolder := files.TypeFolder(asset.AssetType)

	type treeRename struct{ from, to string }
	var trees []treeRename
	for _, root := range []string{f.layout.LibraryRoot(), f.layout.ArchiveRoot(), f.layout.ReviewsRoot()} {
		from := filepath.Join(root, typeFolder, oldSafe)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		to := filepath.Join(root, typeFolder, safeName)
		if _, err := os.Stat(to); err == nil {
			return "", fmt.Errorf("target folder already exists: %s: %w", to, store.ErrNameCollision)
		}
		trees = append(trees, treeRename{from: from, to: to})
	}
	if len(trees) == 0 {
		return "", fmt.Errorf("no files found for asset %q: %w", oldName, store.ErrNotFound)
	}

	var undo []renameStep
	fail := func(err error) (string, error) {
		f.replay(undo)
		return "", err
	}

	// Phase 1: family folders, then every prefixed file inside them.
	// Versioned files and stable aliases all share the asset name
	// prefix: Sword.v001.blend, Sword.v001.json, Sword.proxy.blend.
	var renamedJSON []string
	for _, tree := range trees {
		if err := f.renameWithRetry(tree.from, tree.to); err != nil {
			return fail(fmt.Errorf("renaming family folder: %w", err))
		}
		undo = append(undo, renameStep{to: tree.to, from: tree.from})

		prefixed, err := filesWithPrefix(tree.to, oldSafe+".")
		if err != nil {
			return fail(err)
		}
		for _, oldFile := range prefixed {
			base := filepath.Base(oldFile)
			newFile := filepath.Join(filepath.Dir(oldFile),
				safeName+strings.TrimPrefix(base, oldSafe))
			if err := f.renameWithRetry(oldFile, newFile); err != nil {
				return fail(fmt.Errorf("renaming %s: %w", oldFile, err))
			}
			undo = append(undo, renameStep{to: newFile, from: oldFile})
			if filepath.Ext(newFile) == ".json" && filepath.Base(newFile) != "meta.json" {
				renamedJSON = append(renamedJSON, newFile)
			}
		}
	}

	// Phase 2: sidecar contents, only after every rename succeeded.
	for _, sidecar := range renamedJSON {
		if err := files.UpdateSidecarName(sidecar, safeName); err != nil {
			f.logger.Warn("could not update sidecar name",
				zap.String("path", sidecar), zap.Error(err))
		}
	}

	// Phase 3: database rows for this asset and every sibling version.
	newLibraryFamily := filepath.Join(f.layout.LibraryRoot(), typeFolder, safeName)
	if err := f.updateRowPaths(ctx, asset, safeName, newLibraryFamily); err != nil {
		return fail(fmt.Errorf("recording rename: %w", err))
	}
	if asset.VersionGroupID != "" {
		if err := f.updateSiblingPaths(ctx, asset.VersionGroupID, uuid, safeName, newLibraryFamily); err != nil {
			f.logger.Warn("could not update sibling version paths", zap.Error(err))
		}
	}

	f.logger.Info("renamed asset",
		zap.String("uuid", uuid),
		zap.String("from", oldName),
		zap.String("to", safeName))
	return safeName, nil
}

// MoveToFolder changes an asset's folder. Folders are virtual: the
// files stay where they are and only the database changes, both the
// asset_folders relation and the folder_id column that folder-scoped
// listings filter on. A zero folder ID places the asset at the root
// with no extra memberships. Every version row in the lineage moves
// together.
func (f *FileOps) MoveToFolder(ctx context.Context, assetUUID string, folderID int64) error {
	asset, err := f.assets.ByUUID(ctx, assetUUID)
	if err != nil {
		return err
	}

	current, err := f.folders.ForAsset(ctx, assetUUID)
	if err != nil {
		return err
	}
	for _, folder := range current {
		if _, err := f.folders.RemoveAsset(ctx, assetUUID, folder.ID); err != nil {
			return err
		}
	}

	targetID := folderID
	if folderID == 0 {
		root, err := f.folders.Root(ctx)
		if err != nil {
			return err
		}
		targetID = root.ID
	} else {
		if _, err := f.folders.ByID(ctx, folderID); err != nil {
			return fmt.Errorf("target folder %d: %w", folderID, err)
		}
		if err := f.folders.AddAsset(ctx, assetUUID, folderID); err != nil {
			return err
		}
	}

	if err := f.updateFolderColumn(ctx, asset, targetID); err != nil {
		return err
	}

	f.logger.Info("moved asset to folder",
		zap.String("uuid", assetUUID),
		zap.Int64("folder", targetID))
	return nil
}

// updateFolderColumn repoints assets.folder_id for the asset and every
// sibling version in its group.
func (f *FileOps) updateFolderColumn(ctx context.Context, asset *repository.Asset, folderID int64) error {
	if err := f.assets.Update(ctx, asset.UUID, map[string]any{"folder_id": folderID}); err != nil {
		return err
	}
	if asset.VersionGroupID == "" {
		return nil
	}
	versions, err := f.assets.Versions(ctx, asset.VersionGroupID)
	if err != nil {
		return err
	}
	for i := range versions {
		v := &versions[i]
		if v.UUID == asset.UUID {
			continue
		}
		if err := f.assets.Update(ctx, v.UUID, map[string]any{"folder_id": folderID}); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileOps) updateRowPaths(ctx context.Context, a *repository.Asset, newName, newFamilyDir string) error {
	variantName := a.VariantName
	if variantName == "" {
		variantName = "Base"
	}
	dir := filepath.Join(newFamilyDir, variantName)

	updates := map[string]any{"name": newName}
	blend := filepath.Join(dir, files.VersionedFileName(newName, a.VersionLabel, ".blend"))
	if _, err := os.Stat(blend); err == nil {
		updates["blend_backup_path"] = blend
	}
	thumb := filepath.Join(dir, "thumbnail.png")
	if _, err := os.Stat(thumb); err == nil {
		updates["thumbnail_path"] = thumb
	}
	if a.USDFilePath != "" {
		if ext := filepath.Ext(a.USDFilePath); ext != "" {
			usd := filepath.Join(dir, files.VersionedFileName(newName, a.VersionLabel, ext))
			if _, err := os.Stat(usd); err == nil {
				updates["usd_file_path"] = usd
			}
		}
	}
	return f.assets.Update(ctx, a.UUID, updates)
}

func (f *FileOps) updateSiblingPaths(ctx context.Context, versionGroupID, excludeUUID, newName, newFamilyDir string) error {
	versions, err := f.assets.Versions(ctx, versionGroupID)
	if err != nil {
		return err
	}
	var firstErr error
	for i := range versions {
		v := &versions[i]
		if v.UUID == excludeUUID {
			continue
		}
		if err := f.updateRowPaths(ctx, v, newName, newFamilyDir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// filesWithPrefix walks a family folder and returns every file whose
// name carries the given prefix.
func filesWithPrefix(root, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), prefix) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// renameWithRetry retries renames that fail because another process
// briefly holds the file.
func (f *FileOps) renameWithRetry(from, to string) error {
	var err error
	for attempt := 0; attempt < f.renameRetries; attempt++ {
		err = os.Rename(from, to)
		if err == nil {
			return nil
		}
		if !isRetryableRenameError(err) {
			return err
		}
		if attempt < f.renameRetries-1 {
			time.Sleep(f.retryDelay)
		}
	}
	return err
}

// Windows reports a file open in another program as a sharing or lock
// violation rather than a permission error.
const (
	winSharingViolation = 32
	winLockViolation    = 33
)

// isRetryableRenameError reports whether a rename failure looks like a
// transient lock held by another process.
func isRetryableRenameError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if errno == syscall.EBUSY || errno == syscall.ETXTBSY {
			return true
		}
		if runtime.GOOS == "windows" &&
			(uintptr(errno) == winSharingViolation || uintptr(errno) == winLockViolation) {
			return true
		}
	}
	return false
}

func (f *FileOps) replay(undo []renameStep) {
	for i := len(undo) - 1; i >= 0; i-- {
		step := undo[i]
		if err := os.Rename(step.to, step.from); err != nil {
			f.logger.Warn("rename rollback failed",
				zap.String("path", step.to), zap.Error(err))
		}
	}
}
