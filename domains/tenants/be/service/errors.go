package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a tenant id or domain has no registry row.
var ErrNotFound = errors.New("tenant not found")

// ValidationError reports a bad input field before any mutation happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateKeyError reports a uniqueness collision on a registry field,
// either detected by a validation probe or by the database constraint when
// two registrations race.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

// SchemaCreationError reports a failure to create the tenant schema.
type SchemaCreationError struct {
	SchemaName string
	Cause      error
}

func (e *SchemaCreationError) Error() string {
	return fmt.Sprintf("create schema %s: %v", e.SchemaName, e.Cause)
}

func (e *SchemaCreationError) Unwrap() error { return e.Cause }

// MigrationError identifies the first failing migration step; subsequent
// steps were not attempted.
type MigrationError struct {
	SchemaName string
	Step       int
	StepName   string
	Cause      error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration step %d (%s) failed for schema %s: %v", e.Step, e.StepName, e.SchemaName, e.Cause)
}

func (e *MigrationError) Unwrap() error { return e.Cause }

// StructuralValidationError reports required tables missing after migrations
// reported success (catches silent migration-authoring bugs).
type StructuralValidationError struct {
	SchemaName    string
	MissingTables []string
}

func (e *StructuralValidationError) Error() string {
	return fmt.Sprintf("schema %s is missing required tables: %s", e.SchemaName, strings.Join(e.MissingTables, ", "))
}

// TimeoutError reports a provisioning step that exceeded its bound. It is
// handled exactly like an operational failure of that step.
type TimeoutError struct {
	Step  string
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out", e.Step)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// RollbackError reports a cleanup failure after a primary failure. The
// primary cause stays visible through Unwrap; the rollback failure is carried
// alongside, never silently swallowed.
type RollbackError struct {
	Cause    error
	Rollback error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback also failed: %v)", e.Cause, e.Rollback)
}

func (e *RollbackError) Unwrap() error { return e.Cause }
