package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestConvertDBError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{"nil stays nil", nil, nil},
		{"no rows becomes not found", sql.ErrNoRows, ErrNotFound},
		{
			"unique constraint",
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			ErrUniqueViolation,
		},
		{
			"foreign key constraint",
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey},
			ErrForeignKeyViolation,
		},
		{
			"not null constraint",
			sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull},
			ErrNotNullViolation,
		},
		{
			"busy database is transient",
			sqlite3.Error{Code: sqlite3.ErrBusy},
			ErrTransientIO,
		},
		{
			"locked database is transient",
			sqlite3.Error{Code: sqlite3.ErrLocked},
			ErrTransientIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertDBError(tt.input)
			if tt.expected == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.expected)
		})
	}
}

func TestConvertDBErrorPassesThroughUnknown(t *testing.T) {
	unknown := errors.New("disk full")
	assert.Equal(t, unknown, ConvertDBError(unknown))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNameCollision(ErrNameCollision))
	assert.True(t, IsTransient(ErrTransientIO))
	assert.True(t, IsSchemaFault(ErrSchemaFault))
	assert.False(t, IsNotFound(ErrNameCollision))
}
