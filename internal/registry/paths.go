package registry

import (
	"os"
	"path/filepath"
)

// RepositoryPathResolver maps projects to on-disk repository directories for
// each repository kind. A project may own no repository of a given kind; the
// resolver reports presence so callers can skip absent kinds.
type RepositoryPathResolver struct {
	kindFolders map[RepositoryKind]string
}

// NewRepositoryPathResolver builds a resolver from per-kind base folders.
// Kinds without a configured folder are treated as absent everywhere.
func NewRepositoryPathResolver(kindFolders map[RepositoryKind]string) *RepositoryPathResolver {
	duplicatedFolders := make(map[RepositoryKind]string, len(kindFolders))
	for repositoryKind, baseFolder := range kindFolders {
		duplicatedFolders[repositoryKind] = baseFolder
	}
	return &RepositoryPathResolver{kindFolders: duplicatedFolders}
}

// Resolve returns the repository directory for the project and kind, and
// whether that directory exists on disk.
func (resolver *RepositoryPathResolver) Resolve(project Project, kind RepositoryKind) (string, bool) {
	baseFolder, folderConfigured := resolver.kindFolders[kind]
	if !folderConfigured || len(baseFolder) == 0 {
		return "", false
	}

	repositoryPath := filepath.Join(baseFolder, filepath.FromSlash(project.StoragePath()))
	pathInformation, statError := os.Stat(repositoryPath)
	if statError != nil || !pathInformation.IsDir() {
		return repositoryPath, false
	}

	return repositoryPath, true
}
