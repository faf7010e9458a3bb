package schema

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"
)

// SeedField describes one metadata field to register for an entity type.
type SeedField struct {
	Name        string
	DisplayName string
	Type        string
	Widget      string
	Category    string
	SortOrder   int
}

// assetBehaviors are the behaviors the built-in asset entity type carries.
var assetBehaviors = []string{"versionable", "variantable", "reviewable", "taggable", "folderable"}

// assetFields are the built-in metadata fields for the asset entity
// type, grouped by category. Registration is idempotent so the list can
// grow between releases.
var assetFields = []SeedField{
	{"polygon_count", "Polygons", "integer", "number", "mesh", 10},
	{"material_count", "Materials", "integer", "number", "mesh", 20},
	{"has_materials", "Has Materials", "boolean", "checkbox", "mesh", 30},
	{"has_skeleton", "Has Skeleton", "boolean", "checkbox", "mesh", 40},
	{"has_animations", "Has Animations", "boolean", "checkbox", "mesh", 50},
	{"vertex_group_count", "Vertex Groups", "integer", "number", "mesh", 60},
	{"shape_key_count", "Shape Keys", "integer", "number", "mesh", 70},

	{"file_size_mb", "File Size (MB)", "real", "number", "file", 10},

	{"bone_count", "Bone Count", "integer", "number", "rig", 10},
	{"control_count", "Control Count", "integer", "number", "rig", 20},
	{"has_facial_rig", "Has Facial Rig", "boolean", "checkbox", "rig", 30},

	{"frame_start", "Frame Start", "integer", "number", "animation", 10},
	{"frame_end", "Frame End", "integer", "number", "animation", 20},
	{"frame_rate", "Frame Rate", "real", "number", "animation", 30},
	{"is_loop", "Is Looping", "boolean", "checkbox", "animation", 40},

	{"texture_maps", "Texture Maps", "json", "text", "material", 10},
	{"texture_resolution", "Texture Resolution", "string", "text", "material", 20},

	{"light_type", "Light Type", "string", "text", "light", 10},
	{"light_count", "Light Count", "integer", "number", "light", 20},
	{"light_power", "Power", "real", "number", "light", 30},
	{"light_color", "Color", "string", "text", "light", 40},
	{"light_shadow", "Shadow", "boolean", "checkbox", "light", 50},
	{"light_spot_size", "Spot Size", "real", "number", "light", 60},
	{"light_area_shape", "Area Shape", "string", "text", "light", 70},

	{"camera_type", "Camera Type", "string", "text", "camera", 10},
	{"focal_length", "Focal Length", "real", "number", "camera", 20},
	{"camera_sensor_width", "Sensor Width", "real", "number", "camera", 30},
	{"camera_clip_start", "Clip Start", "real", "number", "camera", 40},
	{"camera_clip_end", "Clip End", "real", "number", "camera", 50},
	{"camera_dof_enabled", "DOF Enabled", "boolean", "checkbox", "camera", 60},
	{"camera_ortho_scale", "Ortho Scale", "real", "number", "camera", 70},

	{"collection_name", "Collection Name", "string", "text", "collection", 10},
	{"mesh_count", "Mesh Count", "integer", "number", "collection", 20},
	{"camera_count", "Camera Count", "integer", "number", "collection", 30},
	{"armature_count", "Armature Count", "integer", "number", "collection", 40},
	{"has_nested_collections", "Has Nested Collections", "boolean", "checkbox", "collection", 50},
	{"nested_collection_count", "Nested Collection Count", "integer", "number", "collection", 60},

	{"layer_count", "Layers", "integer", "number", "grease_pencil", 10},
	{"stroke_count", "Strokes", "integer", "number", "grease_pencil", 20},
	{"frame_count", "Frames", "integer", "number", "grease_pencil", 30},

	{"curve_type", "Curve Type", "string", "text", "curve", 10},
	{"point_count", "Points", "integer", "number", "curve", 20},
	{"spline_count", "Splines", "integer", "number", "curve", 30},

	{"scene_name", "Scene Name", "string", "text", "scene", 10},
	{"object_count", "Objects", "integer", "number", "scene", 20},
	{"collection_count", "Collections", "integer", "number", "scene", 30},
	{"render_engine", "Render Engine", "string", "text", "scene", 40},
	{"resolution_x", "Resolution X", "integer", "number", "scene", 50},
	{"resolution_y", "Resolution Y", "integer", "number", "scene", 60},
	{"world_name", "World", "string", "text", "scene", 70},
}

// seedEntityTypes registers the built-in asset entity type and its
// metadata fields. Safe to call on every startup.
func (s *Store) seedEntityTypes(ctx context.Context, tx *sql.Tx) error {
	var entityTypeID int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM entity_types WHERE name = ?", "asset").Scan(&entityTypeID)
	if err == sql.ErrNoRows {
		behaviors, merr := json.Marshal(assetBehaviors)
		if merr != nil {
			return merr
		}
		result, ierr := tx.ExecContext(ctx, `
			INSERT INTO entity_types (name, table_name, behaviors, icon_name, icon_color)
			VALUES (?, ?, ?, ?, ?)`,
			"asset", "assets", string(behaviors), "mesh_data", "#4CAF50")
		if ierr != nil {
			return ierr
		}
		entityTypeID, err = result.LastInsertId()
	}
	if err != nil {
		return err
	}

	return registerFields(ctx, tx, entityTypeID, assetFields)
}

// EnsureMetadataFields registers any built-in metadata fields missing
// from an existing database. Called on upgraded stores so fields added
// after initial seeding still get registered.
func (s *Store) EnsureMetadataFields(ctx context.Context) error {
	var entityTypeID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM entity_types WHERE name = ?", "asset").Scan(&entityTypeID)
	if err == sql.ErrNoRows {
		s.logger.Warn("asset entity type missing, run full initialization first")
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := registerFields(ctx, tx, entityTypeID, assetFields); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("metadata fields ensured", zap.Int("count", len(assetFields)))
	return nil
}

func registerFields(ctx context.Context, tx *sql.Tx, entityTypeID int64, fields []SeedField) error {
	for _, f := range fields {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO metadata_fields
			(entity_type_id, field_name, display_name, field_type, ui_widget, category, sort_order, show_in_details)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			entityTypeID, f.Name, f.DisplayName, f.Type, f.Widget, f.Category, f.SortOrder); err != nil {
			return err
		}
	}
	return nil
}
