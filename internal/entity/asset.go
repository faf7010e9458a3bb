package entity

import "fmt"

// AssetDefinition describes the built-in asset entity type. Core fields
// live on the assets table; everything else goes through dynamic
// metadata.
func AssetDefinition() *Definition {
	return &Definition{
		Name:      "asset",
		TableName: "assets",
		Behaviors: []Behavior{
			BehaviorVersionable,
			BehaviorVariantable,
			BehaviorReviewable,
			BehaviorTaggable,
			BehaviorFolderable,
		},
		CoreFields: []string{
			"uuid", "name", "description", "folder_id", "asset_type",
			"usd_file_path", "blend_backup_path", "thumbnail_path", "preview_path",
			"cold_storage_path", "original_usd_path", "original_blend_path", "original_thumbnail_path",
			"version", "version_label", "version_group_id", "is_latest", "parent_version_uuid",
			"version_notes",
			"asset_id", "variant_name", "variant_set", "variant_source_uuid",
			"source_asset_name", "source_version_label",
			"status", "representation_type", "is_locked", "is_immutable", "is_cold",
			"is_retired", "retired_date", "retired_by",
			"published_date", "published_by",
			"file_size_mb", "tags", "author", "source_application",
			"is_favorite", "last_viewed_date", "custom_order",
			"created_date", "modified_date",
		},
	}
}

// Asset wraps an Entity with typed accessors for the asset type.
type Asset struct {
	*Entity
}

// NewAsset creates an asset entity from core row data.
func NewAsset(core map[string]Value) *Asset {
	return &Asset{Entity: New(AssetDefinition(), core)}
}

// Name returns the asset name.
func (a *Asset) Name() string { return a.GetString("name", "") }

// AssetType returns the asset type, defaulting to mesh.
func (a *Asset) AssetType() string { return a.GetString("asset_type", "mesh") }

// Status returns the lifecycle status, defaulting to wip.
func (a *Asset) Status() string { return a.GetString("status", "wip") }

// Version returns the version number.
func (a *Asset) Version() int64 { return a.GetInt("version", 1) }

// VersionLabel returns the version label.
func (a *Asset) VersionLabel() string { return a.GetString("version_label", "v001") }

// VersionGroupID returns the lineage identifier shared by every
// version of one variant.
func (a *Asset) VersionGroupID() string { return a.GetString("version_group_id", "") }

// IsLatest reports whether this row is the current head of its lineage.
func (a *Asset) IsLatest() bool { return a.GetBool("is_latest", true) }

// AssetID returns the family identifier shared across variants.
func (a *Asset) AssetID() string { return a.GetString("asset_id", "") }

// VariantName returns the variant name, defaulting to Base.
func (a *Asset) VariantName() string { return a.GetString("variant_name", "Base") }

// VariantSet returns the variant grouping label.
func (a *Asset) VariantSet() string { return a.GetString("variant_set", "") }

// VariantSourceUUID returns the version this variant branched from.
func (a *Asset) VariantSourceUUID() string { return a.GetString("variant_source_uuid", "") }

// IsBaseVariant reports whether this is the base variant.
func (a *Asset) IsBaseVariant() bool { return a.VariantName() == "Base" }

// IsLocked reports whether the asset is locked against edits.
func (a *Asset) IsLocked() bool { return a.GetBool("is_locked", false) }

// IsCold reports whether the version's files are in cold storage.
func (a *Asset) IsCold() bool { return a.GetBool("is_cold", false) }

// IsImmutable reports whether the version is published and frozen.
func (a *Asset) IsImmutable() bool { return a.GetBool("is_immutable", false) }

// IsRetired reports whether the asset has been retired.
func (a *Asset) IsRetired() bool { return a.GetBool("is_retired", false) }

// IsFavorite reports whether the asset is marked as a favorite.
func (a *Asset) IsFavorite() bool { return a.GetBool("is_favorite", false) }

// BlendPath returns the library blend file path.
func (a *Asset) BlendPath() string { return a.GetString("blend_backup_path", "") }

// USDPath returns the library USD file path.
func (a *Asset) USDPath() string { return a.GetString("usd_file_path", "") }

// ThumbnailPath returns the thumbnail image path.
func (a *Asset) ThumbnailPath() string { return a.GetString("thumbnail_path", "") }

// DisplayName returns the name with a variant suffix for non-base
// variants.
func (a *Asset) DisplayName() string {
	if a.IsBaseVariant() {
		return a.Name()
	}
	return fmt.Sprintf("%s [%s]", a.Name(), a.VariantName())
}
