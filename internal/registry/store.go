package registry

import (
	"context"
	"fmt"
)

const (
	registryErrorTemplateConstant = "registry %s failed: %v"
)

// RegistryError reports a failed interaction with the project registry.
type RegistryError struct {
	Operation string
	Cause     error
}

// Error describes the failed registry operation.
func (failure RegistryError) Error() string {
	return fmt.Sprintf(registryErrorTemplateConstant, failure.Operation, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure RegistryError) Unwrap() error {
	return failure.Cause
}

// ProjectStore provides read access to projects and staged persistence of
// migration-region updates.
type ProjectStore interface {
	// ListUnmigratedProjects returns every project whose migration region is unset.
	ListUnmigratedProjects(executionContext context.Context) ([]Project, error)
	// ListMigratedProjects returns every project whose migration region is set.
	ListMigratedProjects(executionContext context.Context) ([]Project, error)
	// StageMigrationRegion records a pending region assignment for the project.
	// Staged assignments are not durable until Commit succeeds.
	StageMigrationRegion(executionContext context.Context, project Project, region string) error
	// Commit persists all staged assignments in one batch.
	Commit(executionContext context.Context) error
}
