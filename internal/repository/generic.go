package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/entity"
	"github.com/forge3d/assetvault/internal/metadata"
	"github.com/forge3d/assetvault/internal/store"
)

// GenericRepo is an entity-type-agnostic repository. It combines core
// table CRUD with EAV metadata for any registered entity type, keeping
// both writes inside one transaction.
//
// The core table and the EAV table each stay owned by their own layer:
// this repo only sequences calls into both, it never reaches into
// either one's SQL directly for the other's rows.
type GenericRepo struct {
	db       *sql.DB
	txm      *store.TxManager
	registry *entity.Registry
	meta     *metadata.Service
	logger   *zap.Logger
}

// NewGenericRepo creates a generic repository over a registry of entity
// definitions.
func NewGenericRepo(db *sql.DB, registry *entity.Registry, meta *metadata.Service, logger *zap.Logger) *GenericRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenericRepo{
		db:       db,
		txm:      store.NewTxManager(db),
		registry: registry,
		meta:     meta,
		logger:   logger,
	}
}

// ByUUID loads an entity: the core row from the type's table plus its
// dynamic fields from EAV storage.
func (r *GenericRepo) ByUUID(ctx context.Context, entityType, uuid string) (*entity.Entity, error) {
	def, ok := r.registry.Definition(entityType)
	if !ok {
		return nil, fmt.Errorf("entity type %q not registered: %w", entityType, store.ErrNotFound)
	}

	columns := strings.Join(def.CoreFields, ", ")
	query := fmt.Sprintf("SELECT %s FROM %s WHERE uuid = ?", columns, def.TableName)

	rows, err := r.db.QueryContext(ctx, query, uuid)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, store.ConvertDBError(err)
		}
		return nil, fmt.Errorf("%s %s: %w", entityType, uuid, store.ErrNotFound)
	}

	core, err := scanCoreRow(rows, def.CoreFields)
	if err != nil {
		return nil, err
	}

	e := entity.New(def, core)
	dynamic, err := r.meta.EntityMetadata(ctx, uuid)
	if err != nil {
		return nil, err
	}
	e.LoadDynamic(dynamic)
	return e, nil
}

// All loads every entity of a type with its dynamic metadata.
func (r *GenericRepo) All(ctx context.Context, entityType string) ([]*entity.Entity, error) {
	def, ok := r.registry.Definition(entityType)
	if !ok {
		return nil, fmt.Errorf("entity type %q not registered: %w", entityType, store.ErrNotFound)
	}

	columns := strings.Join(def.CoreFields, ", ")
	query := fmt.Sprintf("SELECT %s FROM %s", columns, def.TableName)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []*entity.Entity
	for rows.Next() {
		core, err := scanCoreRow(rows, def.CoreFields)
		if err != nil {
			return nil, err
		}
		out = append(out, entity.New(def, core))
	}
	if err := rows.Err(); err != nil {
		return nil, store.ConvertDBError(err)
	}

	for _, e := range out {
		dynamic, err := r.meta.EntityMetadata(ctx, e.UUID())
		if err != nil {
			return nil, err
		}
		e.LoadDynamic(dynamic)
	}
	return out, nil
}

// Save upserts an entity's core row and writes its dynamic fields to
// EAV storage in one transaction, then clears the dirty set. Unknown
// dynamic field names are skipped and returned.
func (r *GenericRepo) Save(ctx context.Context, e *entity.Entity) ([]string, error) {
	def := e.Definition()
	uuid := e.UUID()
	if uuid == "" {
		return nil, fmt.Errorf("entity of type %s has no uuid", def.Name)
	}

	core := e.CoreData()
	var (
		columns      []string
		placeholders []string
		args         []any
	)
	for _, field := range def.CoreFields {
		value, ok := core[field]
		if !ok {
			continue
		}
		columns = append(columns, field)
		placeholders = append(placeholders, "?")
		args = append(args, coreArg(value))
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("entity %s has no core fields to save", uuid)
	}

	var assignments []string
	for _, col := range columns {
		if col == "uuid" {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(uuid) DO UPDATE SET %s",
		def.TableName,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(assignments, ", "))

	var ignored []string
	err := r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return store.ConvertDBError(err)
		}
		dynamic := e.DynamicData()
		if len(dynamic) == 0 {
			return nil
		}
		var err error
		ignored, err = r.meta.SetEntityMetadataTx(ctx, tx, uuid, def.Name, dynamic)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.MarkClean()
	r.logger.Debug("saved entity",
		zap.String("type", def.Name),
		zap.String("uuid", uuid),
		zap.Int("ignored_fields", len(ignored)))
	return ignored, nil
}

// Delete removes an entity's core row and its EAV rows in one
// transaction.
func (r *GenericRepo) Delete(ctx context.Context, entityType, uuid string) error {
	def, ok := r.registry.Definition(entityType)
	if !ok {
		return fmt.Errorf("entity type %q not registered: %w", entityType, store.ErrNotFound)
	}

	return r.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entity_metadata WHERE entity_uuid = ?", uuid); err != nil {
			return store.ConvertDBError(err)
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE uuid = ?", def.TableName)
		result, err := tx.ExecContext(ctx, query, uuid)
		if err != nil {
			return store.ConvertDBError(err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", entityType, uuid, store.ErrNotFound)
		}
		return nil
	})
}

// FindByField returns the UUIDs of entities whose field equals the
// given value, whether the field is a core column or a dynamic one.
func (r *GenericRepo) FindByField(ctx context.Context, entityType, field string, value entity.Value) ([]string, error) {
	def, ok := r.registry.Definition(entityType)
	if !ok {
		return nil, fmt.Errorf("entity type %q not registered: %w", entityType, store.ErrNotFound)
	}

	for _, core := range def.CoreFields {
		if core != field {
			continue
		}
		query := fmt.Sprintf("SELECT uuid FROM %s WHERE %s = ?", def.TableName, field)
		rows, err := r.db.QueryContext(ctx, query, coreArg(value))
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

	return r.meta.EntitiesWithFieldValue(ctx, entityType, field, value)
}

// scanCoreRow scans one row into a core-field value map, preserving the
// stored type where the driver reports one.
func scanCoreRow(rows *sql.Rows, fields []string) (map[string]entity.Value, error) {
	raw := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, store.ConvertDBError(err)
	}

	core := make(map[string]entity.Value, len(fields))
	for i, field := range fields {
		switch v := raw[i].(type) {
		case nil:
			continue
		case int64:
			core[field] = entity.Int(v)
		case float64:
			core[field] = entity.Real(v)
		case bool:
			core[field] = entity.Bool(v)
		case string:
			core[field] = entity.String(v)
		case []byte:
			core[field] = entity.String(string(v))
		default:
			value, err := entity.FromAny(v)
			if err != nil {
				return nil, err
			}
			core[field] = value
		}
	}
	return core, nil
}

// coreArg converts a Value to a database argument.
func coreArg(v entity.Value) any {
	switch v.Kind() {
	case entity.KindInt:
		return v.Int()
	case entity.KindReal:
		return v.Real()
	case entity.KindBool:
		if v.Bool() {
			return 1
		}
		return 0
	case entity.KindJSON:
		return string(v.Raw())
	default:
		return v.Str()
	}
}
