package registry

import (
	"fmt"
	"strings"
)

const (
	repositoryKindMainStringConstant        = "main"
	repositoryKindDocumentationConstant     = "docs"
	repositoryKindTicketsStringConstant     = "tickets"
	repositoryKindRequestsStringConstant    = "requests"
	forkPathPrefixConstant                  = "forks"
	fullNameSeparatorConstant               = "/"
	storagePathSuffixConstant               = ".git"
	remoteRepositoryNameTemplateConstant    = "%s/%s"
)

// RepositoryKind identifies one of the repository roles a project may own.
type RepositoryKind string

// Repository kind enumerations.
const (
	RepositoryKindMain     RepositoryKind = RepositoryKind(repositoryKindMainStringConstant)
	RepositoryKindDocs     RepositoryKind = RepositoryKind(repositoryKindDocumentationConstant)
	RepositoryKindTickets  RepositoryKind = RepositoryKind(repositoryKindTicketsStringConstant)
	RepositoryKindRequests RepositoryKind = RepositoryKind(repositoryKindRequestsStringConstant)
)

// AllRepositoryKinds returns every repository kind in processing order.
func AllRepositoryKinds() []RepositoryKind {
	return []RepositoryKind{
		RepositoryKindMain,
		RepositoryKindDocs,
		RepositoryKindTickets,
		RepositoryKindRequests,
	}
}

// Project identifies one migratable unit owned by the registry.
type Project struct {
	Name            string
	Namespace       string
	ForkOwner       string
	MigrationRegion string
}

// IsFork reports whether the project is a user fork.
func (project Project) IsFork() bool {
	return len(strings.TrimSpace(project.ForkOwner)) > 0
}

// Migrated reports whether the project already lives in a distributed-service region.
func (project Project) Migrated() bool {
	return len(strings.TrimSpace(project.MigrationRegion)) > 0
}

// FullName returns the fully-qualified project name used for pattern matching
// and logging: forks are prefixed with forks/<owner>, namespaced projects with
// their namespace.
func (project Project) FullName() string {
	nameSegments := make([]string, 0, 4)
	if project.IsFork() {
		nameSegments = append(nameSegments, forkPathPrefixConstant, project.ForkOwner)
	}
	if len(project.Namespace) > 0 {
		nameSegments = append(nameSegments, project.Namespace)
	}
	nameSegments = append(nameSegments, project.Name)
	return strings.Join(nameSegments, fullNameSeparatorConstant)
}

// StoragePath returns the project's relative on-disk repository path.
func (project Project) StoragePath() string {
	return project.FullName() + storagePathSuffixConstant
}

// RemoteRepositoryName returns the identifier a project repository carries in
// the distributed repository service for the given kind.
func (project Project) RemoteRepositoryName(kind RepositoryKind) string {
	return fmt.Sprintf(remoteRepositoryNameTemplateConstant, kind, project.FullName())
}
