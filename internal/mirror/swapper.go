package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/forgeops/repomigrate/internal/bridge"
	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	stagingPathSuffixConstant               = ".staging"
	backupPathSuffixConstant                = ".old"
	cacheParentPermissionsConstant          = 0o755
	swapConflictErrorTemplateConstant       = "stale backup mirror %s exists; a previous swap did not complete"
	loggerMissingMessageConstant            = "logger not configured"
	transferMissingMessageConstant          = "repository transfer not configured"
	cacheParentCreateErrorTemplateConstant  = "unable to create mirror parent directory: %w"
	stagingCleanupErrorTemplateConstant     = "unable to remove stale staging mirror %s: %w"
	backupRenameErrorTemplateConstant       = "unable to move existing mirror aside: %w"
	installRenameErrorTemplateConstant      = "unable to install staged mirror: %w"
	backupRemoveErrorTemplateConstant       = "unable to remove backup mirror: %w"
	logMessageMirrorUpdateSkippedConstant   = "Mirror update failed; leaving mirror for later self-heal"
	logMessageMirrorInstalledConstant       = "Mirror installed"
	logFieldMirrorPathConstant              = "mirror_path"
	logFieldProjectConstant                 = "project"
	logFieldRepositoryKindConstant          = "repository_kind"
)

var (
	errLoggerMissing   = errors.New(loggerMissingMessageConstant)
	errTransferMissing = errors.New(transferMissingMessageConstant)
)

// SwapConflictError reports a pre-existing ".old" sibling, meaning an earlier
// swap crashed between installing the new mirror and removing the backup.
// Operator intervention is required; the swapper never overwrites the backup.
type SwapConflictError struct {
	BackupPath string
}

// Error describes the conflicting backup path.
func (failure SwapConflictError) Error() string {
	return fmt.Sprintf(swapConflictErrorTemplateConstant, failure.BackupPath)
}

// RepositoryTransfer performs the bridge operations the swapper depends on.
type RepositoryTransfer interface {
	Clone(executionContext context.Context, request bridge.CloneRequest) error
	Pull(executionContext context.Context, request bridge.MirrorRequest) error
	ConfigureMirror(executionContext context.Context, request bridge.MirrorRequest) error
}

// Swapper primes and refreshes mirror directories.
type Swapper struct {
	logger   *zap.Logger
	transfer RepositoryTransfer
}

// NewSwapper validates dependencies and constructs a Swapper.
func NewSwapper(logger *zap.Logger, transfer RepositoryTransfer) (*Swapper, error) {
	if logger == nil {
		return nil, errLoggerMissing
	}
	if transfer == nil {
		return nil, errTransferMissing
	}
	return &Swapper{logger: logger, transfer: transfer}, nil
}

// PrimeOrUpdate updates an existing mirror in place, or installs a fresh clone
// when no mirror exists yet. In-place update failures are tolerated: an empty
// or divergent mirror self-heals through later incremental updates.
func (swapper *Swapper) PrimeOrUpdate(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string, cacheDirectory string) error {
	if directoryExists(cacheDirectory) {
		pullError := swapper.transfer.Pull(executionContext, bridge.MirrorRequest{
			Project:        project,
			RepositoryKind: kind,
			Region:         region,
			MirrorPath:     cacheDirectory,
		})
		if pullError != nil {
			swapper.logger.Debug(
				logMessageMirrorUpdateSkippedConstant,
				zap.String(logFieldMirrorPathConstant, cacheDirectory),
				zap.String(logFieldProjectConstant, project.FullName()),
				zap.Error(pullError),
			)
		}
		return nil
	}

	return swapper.installFreshClone(executionContext, project, kind, region, cacheDirectory)
}

// Refresh always installs a fresh clone, replacing any existing mirror through
// the swap protocol. Used to re-prime mirrors of already-migrated projects.
func (swapper *Swapper) Refresh(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string, cacheDirectory string) error {
	return swapper.installFreshClone(executionContext, project, kind, region, cacheDirectory)
}

func (swapper *Swapper) installFreshClone(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string, cacheDirectory string) error {
	backupPath := cacheDirectory + backupPathSuffixConstant
	if directoryExists(backupPath) {
		return SwapConflictError{BackupPath: backupPath}
	}

	if createError := os.MkdirAll(filepath.Dir(cacheDirectory), cacheParentPermissionsConstant); createError != nil {
		return fmt.Errorf(cacheParentCreateErrorTemplateConstant, createError)
	}

	stagingPath := cacheDirectory + stagingPathSuffixConstant
	// A staging directory left behind by an interrupted run was never
	// installed and is disposable.
	if removeError := os.RemoveAll(stagingPath); removeError != nil {
		return fmt.Errorf(stagingCleanupErrorTemplateConstant, stagingPath, removeError)
	}

	cloneError := swapper.transfer.Clone(executionContext, bridge.CloneRequest{
		Project:         project,
		RepositoryKind:  kind,
		Region:          region,
		DestinationPath: stagingPath,
	})
	if cloneError != nil {
		return cloneError
	}

	configureError := swapper.transfer.ConfigureMirror(executionContext, bridge.MirrorRequest{
		Project:        project,
		RepositoryKind: kind,
		Region:         region,
		MirrorPath:     stagingPath,
	})
	if configureError != nil {
		return configureError
	}

	backupCreated := false
	if directoryExists(cacheDirectory) {
		if renameError := os.Rename(cacheDirectory, backupPath); renameError != nil {
			return fmt.Errorf(backupRenameErrorTemplateConstant, renameError)
		}
		backupCreated = true
	}

	if renameError := os.Rename(stagingPath, cacheDirectory); renameError != nil {
		return fmt.Errorf(installRenameErrorTemplateConstant, renameError)
	}

	if backupCreated {
		if removeError := os.RemoveAll(backupPath); removeError != nil {
			return fmt.Errorf(backupRemoveErrorTemplateConstant, removeError)
		}
	}

	swapper.logger.Info(
		logMessageMirrorInstalledConstant,
		zap.String(logFieldMirrorPathConstant, cacheDirectory),
		zap.String(logFieldProjectConstant, project.FullName()),
		zap.String(logFieldRepositoryKindConstant, string(kind)),
	)

	return nil
}

func directoryExists(path string) bool {
	_, statError := os.Stat(path)
	return statError == nil
}
