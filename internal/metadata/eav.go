package metadata

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/entity"
	"github.com/forge3d/assetvault/internal/store"
)

// EntityMetadata returns all dynamic metadata stored for an entity as
// field name to typed value.
func (s *Service) EntityMetadata(ctx context.Context, entityUUID string) (map[string]entity.Value, error) {
	return entityMetadata(ctx, s.db, entityUUID)
}

// EntityMetadataTx is EntityMetadata running inside an existing
// transaction.
func (s *Service) EntityMetadataTx(ctx context.Context, tx *sql.Tx, entityUUID string) (map[string]entity.Value, error) {
	return entityMetadata(ctx, tx, entityUUID)
}

func entityMetadata(ctx context.Context, q querier, entityUUID string) (map[string]entity.Value, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT mf.field_name, mf.field_type,
		       em.value_text, em.value_int, em.value_real, em.value_json
		FROM entity_metadata em
		JOIN metadata_fields mf ON em.field_id = mf.id
		WHERE em.entity_uuid = ?`, entityUUID)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	result := make(map[string]entity.Value)
	for rows.Next() {
		var (
			fieldName string
			fieldType string
			text      sql.NullString
			num       sql.NullInt64
			real      sql.NullFloat64
			raw       sql.NullString
		)
		if err := rows.Scan(&fieldName, &fieldType, &text, &num, &real, &raw); err != nil {
			return nil, err
		}

		switch entity.KindOf(fieldType) {
		case entity.KindInt:
			if num.Valid {
				result[fieldName] = entity.Int(num.Int64)
			}
		case entity.KindReal:
			if real.Valid {
				result[fieldName] = entity.Real(real.Float64)
			}
		case entity.KindBool:
			if num.Valid {
				result[fieldName] = entity.Bool(num.Int64 != 0)
			}
		case entity.KindJSON:
			if raw.Valid {
				result[fieldName] = entity.JSON(json.RawMessage(raw.String))
			}
		default:
			if text.Valid {
				result[fieldName] = entity.String(text.String)
			}
		}
	}
	return result, rows.Err()
}

// SetEntityMetadata upserts dynamic metadata for an entity. Fields
// without a registered definition are skipped; their names come back so
// callers can surface what was dropped.
func (s *Service) SetEntityMetadata(ctx context.Context, entityUUID, entityType string, values map[string]entity.Value) ([]string, error) {
	var ignored []string
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		ignored, err = s.setEntityMetadata(ctx, tx, entityUUID, entityType, values)
		return err
	})
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return ignored, nil
}

// SetEntityMetadataTx is SetEntityMetadata running inside an existing
// transaction. The caller owns commit and rollback.
func (s *Service) SetEntityMetadataTx(ctx context.Context, tx *sql.Tx, entityUUID, entityType string, values map[string]entity.Value) ([]string, error) {
	ignored, err := s.setEntityMetadata(ctx, tx, entityUUID, entityType, values)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	return ignored, nil
}

func (s *Service) setEntityMetadata(ctx context.Context, tx *sql.Tx, entityUUID, entityType string, values map[string]entity.Value) ([]string, error) {
	var ignored []string
	for fieldName, value := range values {
		var (
			fieldID   int64
			fieldType string
		)
		err := tx.QueryRowContext(ctx, `
			SELECT mf.id, mf.field_type FROM metadata_fields mf
			JOIN entity_types et ON mf.entity_type_id = et.id
			WHERE et.name = ? AND mf.field_name = ?`,
			entityType, fieldName).Scan(&fieldID, &fieldType)
		if err == sql.ErrNoRows {
			ignored = append(ignored, fieldName)
			s.logger.Debug("skipping unregistered metadata field",
				zap.String("entity_type", entityType),
				zap.String("field", fieldName))
			continue
		}
		if err != nil {
			return nil, err
		}

		text, num, real, raw, err := routeValue(fieldType, value)
		if err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_metadata
			(entity_type, entity_uuid, field_id, value_text, value_int, value_real, value_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_uuid, field_id) DO UPDATE SET
				value_text = excluded.value_text,
				value_int = excluded.value_int,
				value_real = excluded.value_real,
				value_json = excluded.value_json,
				modified_date = CURRENT_TIMESTAMP`,
			entityType, entityUUID, fieldID, text, num, real, raw); err != nil {
			return nil, err
		}
	}
	return ignored, nil
}

// routeValue coerces a value to the field's declared type and picks the
// storage column for it. Booleans land in value_int as 0 or 1.
func routeValue(fieldType string, value entity.Value) (text, num, real, raw any, err error) {
	kind := entity.KindOf(fieldType)
	coerced, err := value.Coerce(kind)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	switch kind {
	case entity.KindInt:
		num = coerced.Int()
	case entity.KindReal:
		real = coerced.Real()
	case entity.KindBool:
		if coerced.Bool() {
			num = int64(1)
		} else {
			num = int64(0)
		}
	case entity.KindJSON:
		raw = string(coerced.Raw())
	default:
		text = coerced.Str()
	}
	return text, num, real, raw, nil
}

// DeleteEntityMetadata removes all metadata rows for an entity.
func (s *Service) DeleteEntityMetadata(ctx context.Context, entityUUID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM entity_metadata WHERE entity_uuid = ?", entityUUID)
	return store.ConvertDBError(err)
}

// EntitiesWithFieldValue returns the UUIDs of entities whose stored
// value for a field matches. The comparison runs against the column the
// field's type routes to.
func (s *Service) EntitiesWithFieldValue(ctx context.Context, entityType, fieldName string, value entity.Value) ([]string, error) {
	field, err := s.Field(ctx, entityType, fieldName)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	text, num, realV, raw, err := routeValue(field.Type, value)
	if err != nil {
		return nil, err
	}

	var (
		column string
		arg    any
	)
	switch field.Kind() {
	case entity.KindInt, entity.KindBool:
		column, arg = "value_int", num
	case entity.KindReal:
		column, arg = "value_real", realV
	case entity.KindJSON:
		column, arg = "value_json", raw
	default:
		column, arg = "value_text", text
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT em.entity_uuid FROM entity_metadata em
		JOIN metadata_fields mf ON em.field_id = mf.id
		JOIN entity_types et ON mf.entity_type_id = et.id
		WHERE et.name = ? AND mf.field_name = ? AND em.`+column+` = ?`,
		entityType, fieldName, arg)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		out = append(out, uuid)
	}
	return out, rows.Err()
}
