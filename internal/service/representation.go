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

// RepresentationService manages proxy and render representation
// aliases for asset variants. It keeps the {name}.proxy.blend and
// {name}.render.blend files in the library folder in sync with the
// representation_designations table.
//
// Defaults when no designation is pinned: proxy resolves to v001 and
// render resolves to the latest version.
type RepresentationService struct {
	assets       *repository.AssetRepo
	designations *repository.DesignationRepo
	proxies      *repository.ProxyRepo
	tiers        *files.TierManager
	refs         *files.References
	logger       *zap.Logger
}

// NewRepresentationService creates a representation service.
func NewRepresentationService(
	assets *repository.AssetRepo,
	designations *repository.DesignationRepo,
	proxies *repository.ProxyRepo,
	tiers *files.TierManager,
	refs *files.References,
	logger *zap.Logger,
) *RepresentationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepresentationService{
		assets:       assets,
		designations: designations,
		proxies:      proxies,
		tiers:        tiers,
		refs:         refs,
		logger:       logger,
	}
}

// EffectiveDesignation is a designation with defaults resolved.
type EffectiveDesignation struct {
	ProxyLabel      string
	ProxyUUID       string
	ProxyIsDefault  bool
	ProxySource     string
	RenderLabel     string
	RenderUUID      string
	RenderIsDefault bool
	HasProxyFile    bool
	HasRenderFile   bool
	CustomProxies   int
}

// representable reports whether representation aliases apply to this
// asset type.
func representable(assetType string) bool {
	return assetType == "mesh" || assetType == "rig"
}

// Designate sets the proxy and render designations for a variant and
// writes the alias files. Empty UUIDs pin nothing: proxy falls back to
// v001 and render tracks the latest version.
func (s *RepresentationService) Designate(ctx context.Context, versionGroupID, variantName, proxyUUID, renderUUID string) error {
	if variantName == "" {
		variantName = "Base"
	}

	versions, err := s.assets.Versions(ctx, versionGroupID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("version group %s: %w", versionGroupID, store.ErrNotFound)
	}
	// Versions are ordered newest first.
	latest := &versions[0]
	first := &versions[len(versions)-1]

	if !representable(latest.AssetType) {
		return fmt.Errorf("representations require a mesh or rig asset, got %q", latest.AssetType)
	}

	proxyVersion := first
	if proxyUUID != "" {
		if proxyVersion, err = s.assets.ByUUID(ctx, proxyUUID); err != nil {
			return fmt.Errorf("resolving proxy version: %w", err)
		}
	}
	renderVersion := latest
	if renderUUID != "" {
		if renderVersion, err = s.assets.ByUUID(ctx, renderUUID); err != nil {
			return fmt.Errorf("resolving render version: %w", err)
		}
	}

	proxyBlend, ok := s.tiers.VersionBlendPath(latest.Name, variantName, proxyVersion.VersionLabel, latest.AssetType)
	if !ok {
		return fmt.Errorf("proxy version %s/%s has no archived file: %w",
			variantName, proxyVersion.VersionLabel, store.ErrNotFound)
	}
	renderBlend, ok := s.tiers.VersionBlendPath(latest.Name, variantName, renderVersion.VersionLabel, latest.AssetType)
	if !ok {
		return fmt.Errorf("render version %s/%s has no archived file: %w",
			variantName, renderVersion.VersionLabel, store.ErrNotFound)
	}

	libraryBlend, ok := s.tiers.LatestBlendPath(latest.Name, variantName, latest.AssetType)
	if !ok {
		return fmt.Errorf("library file for %s/%s: %w", latest.Name, variantName, store.ErrNotFound)
	}

	// Older assets may predate the current alias.
	if !s.refs.HasCurrent(libraryBlend) {
		if _, err := s.refs.CreateCurrent(libraryBlend); err != nil {
			s.logger.Warn("could not create current alias",
				zap.String("blend", libraryBlend), zap.Error(err))
		}
	}

	proxyOutput := files.ProxyAliasPath(libraryBlend)
	if err := s.refs.CreateRepresentation(proxyBlend, proxyOutput); err != nil {
		return fmt.Errorf("creating proxy alias: %w", err)
	}
	renderOutput := files.RenderAliasPath(libraryBlend)
	if err := s.refs.CreateRepresentation(renderBlend, renderOutput); err != nil {
		return fmt.Errorf("creating render alias: %w", err)
	}

	err = s.designations.Set(ctx, &repository.Designation{
		VersionGroupID:     versionGroupID,
		VariantName:        variantName,
		ProxyVersionUUID:   proxyUUID,
		RenderVersionUUID:  renderUUID,
		ProxyVersionLabel:  proxyVersion.VersionLabel,
		RenderVersionLabel: renderVersion.VersionLabel,
		ProxyBlendPath:     proxyOutput,
		RenderBlendPath:    renderOutput,
		ProxySource:        "version",
	})
	if err != nil {
		return err
	}

	s.logger.Info("designated representations",
		zap.String("asset", latest.Name),
		zap.String("variant", variantName),
		zap.String("proxy", proxyVersion.VersionLabel),
		zap.String("render", renderVersion.VersionLabel))
	return nil
}

// OnNewVersionCreated refreshes the render alias after a new version is
// saved. Only render designations left on the latest default track the
// new version; a pinned render and all proxy designations stay put.
func (s *RepresentationService) OnNewVersionCreated(ctx context.Context, versionGroupID, variantName, assetName, assetType string) error {
	if !representable(assetType) {
		return nil
	}
	if variantName == "" {
		variantName = "Base"
	}

	designation, err := s.designations.Get(ctx, versionGroupID, variantName)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if designation.RenderVersionUUID != "" {
		return nil
	}

	newLatest, err := s.assets.LatestVersion(ctx, versionGroupID)
	if err != nil {
		return err
	}
	if assetName == "" {
		assetName = newLatest.Name
		assetType = newLatest.AssetType
	}

	renderBlend, ok := s.tiers.VersionBlendPath(assetName, variantName, newLatest.VersionLabel, assetType)
	if !ok {
		s.logger.Warn("no archived file for new latest version",
			zap.String("asset", assetName),
			zap.String("label", newLatest.VersionLabel))
		return nil
	}
	libraryBlend, ok := s.tiers.LatestBlendPath(assetName, variantName, assetType)
	if !ok {
		return nil
	}

	renderOutput := files.RenderAliasPath(libraryBlend)
	if err := s.refs.CreateRepresentation(renderBlend, renderOutput); err != nil {
		s.logger.Warn("could not refresh render alias", zap.Error(err))
		return nil
	}

	if _, err := s.designations.UpdateRenderPath(ctx, versionGroupID, variantName,
		"", newLatest.VersionLabel, renderOutput); err != nil {
		return err
	}
	s.logger.Info("render alias follows new latest",
		zap.String("asset", assetName),
		zap.String("variant", variantName),
		zap.String("label", newLatest.VersionLabel))
	return nil
}

// Effective returns the designation for a variant with the v001 and
// latest defaults filled in.
func (s *RepresentationService) Effective(ctx context.Context, versionGroupID, variantName string) (*EffectiveDesignation, error) {
	if variantName == "" {
		variantName = "Base"
	}

	out := &EffectiveDesignation{
		ProxyIsDefault:  true,
		RenderIsDefault: true,
		ProxySource:     "version",
	}

	versions, err := s.assets.Versions(ctx, versionGroupID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return out, nil
	}
	latest := &versions[0]
	first := &versions[len(versions)-1]
	out.ProxyLabel = first.VersionLabel
	out.RenderLabel = latest.VersionLabel

	designation, err := s.designations.Get(ctx, versionGroupID, variantName)
	switch {
	case store.IsNotFound(err):
	case err != nil:
		return nil, err
	default:
		out.ProxyUUID = designation.ProxyVersionUUID
		out.RenderUUID = designation.RenderVersionUUID
		out.ProxyIsDefault = designation.ProxyVersionUUID == ""
		out.RenderIsDefault = designation.RenderVersionUUID == ""
		if designation.ProxyVersionLabel != "" {
			out.ProxyLabel = designation.ProxyVersionLabel
		}
		if designation.RenderVersionLabel != "" {
			out.RenderLabel = designation.RenderVersionLabel
		}
		if designation.ProxySource != "" {
			out.ProxySource = designation.ProxySource
		}
	}

	if libraryBlend, ok := s.tiers.LatestBlendPath(latest.Name, variantName, latest.AssetType); ok {
		out.HasProxyFile = s.refs.HasProxy(libraryBlend)
		out.HasRenderFile = s.refs.HasRender(libraryBlend)
	}

	count, err := s.proxies.Count(ctx, versionGroupID, variantName)
	if err != nil {
		return nil, err
	}
	out.CustomProxies = count
	return out, nil
}

// DesignateCustomProxy makes a custom proxy the active proxy
// representation while carrying the existing render designation
// through the row replacement.
func (s *RepresentationService) DesignateCustomProxy(ctx context.Context, versionGroupID, variantName, proxyUUID string) error {
	proxy, err := s.proxies.ByUUID(ctx, proxyUUID)
	if err != nil {
		return fmt.Errorf("custom proxy %s: %w", proxyUUID, err)
	}
	if proxy.BlendPath == "" {
		return fmt.Errorf("custom proxy %s has no file recorded", proxyUUID)
	}
	if variantName == "" {
		variantName = proxy.VariantName
	}

	proxyBlend := proxy.BlendPath
	if _, err := os.Stat(proxyBlend); err != nil {
		// Older records may predate versioned filenames.
		alt := filepath.Join(filepath.Dir(proxyBlend),
			files.VersionedFileName(proxy.AssetName, proxy.ProxyLabel, ".blend"))
		if _, err := os.Stat(alt); err != nil {
			return fmt.Errorf("custom proxy file missing: %s: %w", proxyBlend, store.ErrNotFound)
		}
		proxyBlend = alt
	}

	assetType := proxy.AssetType
	if assetType == "" {
		assetType = "mesh"
	}
	libraryBlend, ok := s.tiers.LatestBlendPath(proxy.AssetName, variantName, assetType)
	if !ok {
		return fmt.Errorf("library file for %s/%s: %w", proxy.AssetName, variantName, store.ErrNotFound)
	}
	if !s.refs.HasCurrent(libraryBlend) {
		if _, err := s.refs.CreateCurrent(libraryBlend); err != nil {
			s.logger.Warn("could not create current alias", zap.Error(err))
		}
	}

	proxyOutput := files.ProxyAliasPath(libraryBlend)
	if err := s.refs.CreateRepresentation(proxyBlend, proxyOutput); err != nil {
		return fmt.Errorf("creating proxy alias: %w", err)
	}

	// Set replaces the whole row, so the render side must be read and
	// written back.
	var renderUUID, renderLabel, renderPath string
	if existing, err := s.designations.Get(ctx, versionGroupID, variantName); err == nil {
		renderUUID = existing.RenderVersionUUID
		renderLabel = existing.RenderVersionLabel
		renderPath = existing.RenderBlendPath
	} else if !store.IsNotFound(err) {
		return err
	}

	renderOutput := files.RenderAliasPath(libraryBlend)
	if _, err := os.Stat(renderOutput); err != nil {
		if latest, err := s.assets.LatestVersion(ctx, versionGroupID); err == nil {
			if source, ok := s.tiers.VersionBlendPath(latest.Name, variantName, latest.VersionLabel, latest.AssetType); ok {
				if err := s.refs.CreateRepresentation(source, renderOutput); err == nil {
					renderPath = renderOutput
					if renderLabel == "" {
						renderLabel = latest.VersionLabel
					}
				}
			}
		}
	}

	err = s.designations.Set(ctx, &repository.Designation{
		VersionGroupID:     versionGroupID,
		VariantName:        variantName,
		ProxyVersionUUID:   proxyUUID,
		ProxyVersionLabel:  proxy.ProxyLabel,
		ProxyBlendPath:     proxyOutput,
		RenderVersionUUID:  renderUUID,
		RenderVersionLabel: renderLabel,
		RenderBlendPath:    renderPath,
		ProxySource:        "custom",
		ProxyVariantName:   proxy.VariantName,
	})
	if err != nil {
		return err
	}

	s.logger.Info("designated custom proxy",
		zap.String("asset", proxy.AssetName),
		zap.String("variant", variantName),
		zap.String("label", proxy.ProxyLabel))
	return nil
}

// ClearDesignations removes the designation row and deletes the proxy
// and render alias files.
func (s *RepresentationService) ClearDesignations(ctx context.Context, versionGroupID, variantName string) error {
	if variantName == "" {
		variantName = "Base"
	}

	latest, err := s.assets.LatestVersion(ctx, versionGroupID)
	if err == nil {
		if libraryBlend, ok := s.tiers.LatestBlendPath(latest.Name, variantName, latest.AssetType); ok {
			if err := s.refs.DeleteRepresentations(libraryBlend); err != nil {
				s.logger.Warn("could not delete representation aliases", zap.Error(err))
			}
		}
	} else if !store.IsNotFound(err) {
		return err
	}

	if _, err := s.designations.Clear(ctx, versionGroupID, variantName); err != nil {
		return err
	}
	return nil
}
