// Package metadata manages entity type registration, metadata field
// definitions, and dynamic per-entity metadata stored in the
// entity_metadata table.
package metadata

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/entity"
	"github.com/forge3d/assetvault/internal/store"
)

// EntityType is a registered entity type row.
type EntityType struct {
	ID        int64
	Name      string
	TableName string
	Behaviors []entity.Behavior
	IconName  string
	IconColor string
}

// Field is a metadata field definition.
type Field struct {
	ID              int64
	EntityTypeID    int64
	Name            string
	DisplayName     string
	Type            string
	Widget          string
	Category        string
	SortOrder       int
	DefaultValue    string
	ValidationRules json.RawMessage
	IsRequired      bool
	IsSearchable    bool
	ShowInCard      bool
	ShowInDetails   bool
}

// Kind returns the value kind this field stores.
func (f *Field) Kind() entity.Kind {
	return entity.KindOf(f.Type)
}

// FieldSpec describes a field to register. Zero values get the same
// defaults the schema applies.
type FieldSpec struct {
	EntityType      string
	Name            string
	DisplayName     string
	Type            string
	Widget          string
	Category        string
	SortOrder       int
	DefaultValue    string
	ValidationRules json.RawMessage
	IsRequired      bool
	IsSearchable    bool
	ShowInCard      bool
	ShowInDetails   bool
}

// Service manages entity types, field definitions, and dynamic
// metadata values.
type Service struct {
	db     *sql.DB
	txm    *store.TxManager
	logger *zap.Logger
}

// NewService creates a metadata service.
func NewService(db *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, txm: store.NewTxManager(db), logger: logger}
}

// querier is satisfied by *sql.DB and *sql.Tx so reads and writes can
// run standalone or inside a caller's transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RegisterEntityType registers or updates an entity type, returning
// its ID.
func (s *Service) RegisterEntityType(ctx context.Context, def *entity.Definition, iconName, iconColor string) (int64, error) {
	behaviors, err := json.Marshal(def.Behaviors)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_types (name, table_name, behaviors, icon_name, icon_color)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				table_name = excluded.table_name,
				behaviors = excluded.behaviors,
				icon_name = excluded.icon_name,
				icon_color = excluded.icon_color`,
			def.Name, def.TableName, string(behaviors), iconName, iconColor); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			"SELECT id FROM entity_types WHERE name = ?", def.Name).Scan(&id)
	})
	if err != nil {
		return 0, store.ConvertDBError(err)
	}

	s.logger.Debug("registered entity type", zap.String("name", def.Name), zap.Int64("id", id))
	return id, nil
}

// EntityType returns an entity type by name.
func (s *Service) EntityType(ctx context.Context, name string) (*EntityType, error) {
	var (
		et        EntityType
		behaviors string
		iconName  sql.NullString
		iconColor sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, table_name, behaviors, icon_name, icon_color
		FROM entity_types WHERE name = ?`, name).
		Scan(&et.ID, &et.Name, &et.TableName, &behaviors, &iconName, &iconColor)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	if err := json.Unmarshal([]byte(behaviors), &et.Behaviors); err != nil {
		return nil, err
	}
	et.IconName = iconName.String
	et.IconColor = iconColor.String
	return &et, nil
}

// EntityTypeID returns the ID of an entity type by name.
func (s *Service) EntityTypeID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM entity_types WHERE name = ?", name).Scan(&id)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return id, nil
}

// ListEntityTypes returns all registered entity types ordered by name.
func (s *Service) ListEntityTypes(ctx context.Context) ([]EntityType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, table_name, behaviors, icon_name, icon_color
		FROM entity_types ORDER BY name`)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []EntityType
	for rows.Next() {
		var (
			et        EntityType
			behaviors string
			iconName  sql.NullString
			iconColor sql.NullString
		)
		if err := rows.Scan(&et.ID, &et.Name, &et.TableName, &behaviors, &iconName, &iconColor); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(behaviors), &et.Behaviors); err != nil {
			return nil, err
		}
		et.IconName = iconName.String
		et.IconColor = iconColor.String
		out = append(out, et)
	}
	return out, rows.Err()
}

// RegisterField registers or updates a metadata field, returning its ID.
func (s *Service) RegisterField(ctx context.Context, spec FieldSpec) (int64, error) {
	if spec.Type == "" {
		spec.Type = "string"
	}
	if spec.Widget == "" {
		spec.Widget = "text"
	}
	if spec.Category == "" {
		spec.Category = "general"
	}
	if spec.SortOrder == 0 {
		spec.SortOrder = 100
	}

	entityTypeID, err := s.EntityTypeID(ctx, spec.EntityType)
	if err != nil {
		return 0, err
	}

	var rules any
	if len(spec.ValidationRules) > 0 {
		rules = string(spec.ValidationRules)
	}

	var id int64
	err = s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metadata_fields
			(entity_type_id, field_name, display_name, field_type,
			 ui_widget, category, sort_order, default_value,
			 validation_rules, is_required, is_searchable,
			 show_in_card, show_in_details)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_type_id, field_name) DO UPDATE SET
				display_name = excluded.display_name,
				field_type = excluded.field_type,
				ui_widget = excluded.ui_widget,
				category = excluded.category,
				sort_order = excluded.sort_order,
				default_value = excluded.default_value,
				validation_rules = excluded.validation_rules,
				is_required = excluded.is_required,
				is_searchable = excluded.is_searchable,
				show_in_card = excluded.show_in_card,
				show_in_details = excluded.show_in_details`,
			entityTypeID, spec.Name, spec.DisplayName, spec.Type,
			spec.Widget, spec.Category, spec.SortOrder, nullable(spec.DefaultValue),
			rules, boolInt(spec.IsRequired), boolInt(spec.IsSearchable),
			boolInt(spec.ShowInCard), boolInt(spec.ShowInDetails)); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT id FROM metadata_fields
			WHERE entity_type_id = ? AND field_name = ?`,
			entityTypeID, spec.Name).Scan(&id)
	})
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return id, nil
}

// FieldsForType returns field definitions for an entity type, filtered
// by category when category is non-empty.
func (s *Service) FieldsForType(ctx context.Context, entityType, category string) ([]Field, error) {
	query := `
		SELECT mf.id, mf.entity_type_id, mf.field_name, mf.display_name,
		       mf.field_type, mf.ui_widget, mf.category, mf.sort_order,
		       mf.default_value, mf.validation_rules, mf.is_required,
		       mf.is_searchable, mf.show_in_card, mf.show_in_details
		FROM metadata_fields mf
		JOIN entity_types et ON mf.entity_type_id = et.id
		WHERE et.name = ?`
	args := []any{entityType}
	if category != "" {
		query += " AND mf.category = ?"
		args = append(args, category)
	}
	query += " ORDER BY mf.sort_order, mf.display_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Field returns one field definition.
func (s *Service) Field(ctx context.Context, entityType, fieldName string) (*Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mf.id, mf.entity_type_id, mf.field_name, mf.display_name,
		       mf.field_type, mf.ui_widget, mf.category, mf.sort_order,
		       mf.default_value, mf.validation_rules, mf.is_required,
		       mf.is_searchable, mf.show_in_card, mf.show_in_details
		FROM metadata_fields mf
		JOIN entity_types et ON mf.entity_type_id = et.id
		WHERE et.name = ? AND mf.field_name = ?`, entityType, fieldName)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, store.ErrNotFound
	}
	f, err := scanField(rows)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FieldCategories returns the distinct categories used by an entity
// type's fields.
func (s *Service) FieldCategories(ctx context.Context, entityType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT mf.category FROM metadata_fields mf
		JOIN entity_types et ON mf.entity_type_id = et.id
		WHERE et.name = ?
		ORDER BY mf.category`, entityType)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		out = append(out, category)
	}
	return out, rows.Err()
}

// DeleteField removes a field definition. Stored values cascade with it.
func (s *Service) DeleteField(ctx context.Context, entityType, fieldName string) (bool, error) {
	var deleted bool
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM metadata_fields
			WHERE id IN (
				SELECT mf.id FROM metadata_fields mf
				JOIN entity_types et ON mf.entity_type_id = et.id
				WHERE et.name = ? AND mf.field_name = ?
			)`, entityType, fieldName)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, store.ConvertDBError(err)
	}
	return deleted, nil
}

func scanField(rows *sql.Rows) (Field, error) {
	var (
		f            Field
		defaultValue sql.NullString
		rules        sql.NullString
	)
	err := rows.Scan(&f.ID, &f.EntityTypeID, &f.Name, &f.DisplayName,
		&f.Type, &f.Widget, &f.Category, &f.SortOrder,
		&defaultValue, &rules, &f.IsRequired,
		&f.IsSearchable, &f.ShowInCard, &f.ShowInDetails)
	if err != nil {
		return Field{}, err
	}
	f.DefaultValue = defaultValue.String
	if rules.Valid {
		f.ValidationRules = json.RawMessage(rules.String)
	}
	return f, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
