package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Common storage error types
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrNameCollision is returned when a target name or path already exists
	ErrNameCollision = errors.New("name already exists")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrTransientIO is returned when the database or a file is
	// temporarily locked by another process
	ErrTransientIO = errors.New("resource temporarily locked")

	// ErrImmutable is returned when a mutation targets a locked or
	// cold-stored version
	ErrImmutable = errors.New("version is immutable")

	// ErrSchemaFault is returned when schema initialization or migration
	// fails; the store cannot be used
	ErrSchemaFault = errors.New("schema initialization failed")
)

// ConvertDBError converts driver-specific errors to storage errors
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, sqliteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, sqliteErr.Error())
		case sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %s", ErrNotNullViolation, sqliteErr.Error())
		case sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %s", ErrCheckViolation, sqliteErr.Error())
		}
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", ErrTransientIO, sqliteErr.Error())
		}
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNameCollision returns true if the error is ErrNameCollision
func IsNameCollision(err error) bool {
	return errors.Is(err, ErrNameCollision)
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsTransient returns true if the error is ErrTransientIO
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// IsSchemaFault returns true if the error is ErrSchemaFault
func IsSchemaFault(err error) bool {
	return errors.Is(err, ErrSchemaFault)
}
