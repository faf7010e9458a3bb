package files

import (
	"fmt"
	"os"
	"path/filepath"
)

// References manages the stable-alias file copies (.current.blend,
// .proxy.blend, .render.blend) that sit next to an asset's live files.
// The aliases are plain copies, never symlinks: symlink creation needs
// elevated privileges on at least one supported platform.
type References struct{}

// NewReferences creates a References manager.
func NewReferences() *References {
	return &References{}
}

// CreateCurrent copies an asset blend file to its .current.blend alias.
// Returns the alias path.
func (r *References) CreateCurrent(blendPath string) (string, error) {
	if _, err := os.Stat(blendPath); err != nil {
		return "", fmt.Errorf("asset blend file not found: %s", blendPath)
	}
	alias := CurrentAliasPath(blendPath)
	if err := copyFile(blendPath, alias); err != nil {
		return "", fmt.Errorf("creating current reference: %w", err)
	}
	return alias, nil
}

// UpdateCurrent deletes the old .current.blend and re-copies it from a
// new target, e.g. after a rename.
func (r *References) UpdateCurrent(currentPath, newTarget string) (string, error) {
	if _, err := os.Stat(currentPath); err == nil {
		if err := os.Remove(currentPath); err != nil {
			return "", fmt.Errorf("removing old reference: %w", err)
		}
	}
	return r.CreateCurrent(newTarget)
}

// DeleteCurrent removes the .current.blend alias for an asset. A
// missing alias is not an error.
func (r *References) DeleteCurrent(blendPath string) error {
	alias := CurrentAliasPath(blendPath)
	if _, err := os.Stat(alias); err != nil {
		return nil
	}
	return os.Remove(alias)
}

// HasCurrent reports whether a .current.blend exists for an asset.
func (r *References) HasCurrent(blendPath string) bool {
	_, err := os.Stat(CurrentAliasPath(blendPath))
	return err == nil
}

// HasProxy reports whether a .proxy.blend exists for an asset.
func (r *References) HasProxy(blendPath string) bool {
	_, err := os.Stat(ProxyAliasPath(blendPath))
	return err == nil
}

// HasRender reports whether a .render.blend exists for an asset.
func (r *References) HasRender(blendPath string) bool {
	_, err := os.Stat(RenderAliasPath(blendPath))
	return err == nil
}

// CreateRepresentation copies a source blend (an archived version or a
// custom proxy) to a stable alias output path. Representation files are
// fixed snapshots of a specific version.
func (r *References) CreateRepresentation(sourcePath, outputPath string) error {
	if _, err := os.Stat(sourcePath); err != nil {
		return fmt.Errorf("target blend file not found: %s", sourcePath)
	}
	if err := copyFile(sourcePath, outputPath); err != nil {
		return fmt.Errorf("copying representation file: %w", err)
	}
	return nil
}

// DeleteRepresentations removes both the .proxy.blend and .render.blend
// aliases for an asset. Missing files are skipped.
func (r *References) DeleteRepresentations(blendPath string) error {
	for _, alias := range []string{ProxyAliasPath(blendPath), RenderAliasPath(blendPath)} {
		if _, err := os.Stat(alias); err != nil {
			continue
		}
		if err := os.Remove(alias); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies src to dst, creating parent directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
