package migration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	anchoredPatternTemplateConstant             = "^(?:%s)"
	invalidPatternErrorTemplateConstant         = "invalid project name pattern %q: %w"
	runAbortedErrorTemplateConstant             = "run aborted after project %s: %v"
	runnerLoggerMissingMessageConstant          = "logger not configured"
	runnerStoreMissingMessageConstant           = "project store not configured"
	runnerPipelineMissingMessageConstant        = "project pipeline not configured"
	runnerMirrorsMissingMessageConstant         = "mirror maintainer not configured"
	runnerPathResolverMissingMessageConstant    = "repository path resolver not configured"
	logMessageProjectAlreadyMigratedConstant    = "Project already migrated, skipping"
	logMessageProjectFilteredConstant           = "Project does not match pattern, skipping"
	logMessageProjectFailedConstant             = "Project migration failed"
	logMessageRunCompletedConstant              = "Migration run completed"
	logMessageRefreshFailedConstant             = "Mirror refresh failed"
	logMessagePrimeRunCompletedConstant         = "Mirror priming run completed"
	logFieldProjectTotalConstant                = "projects_total"
	logFieldProjectMigratedConstant             = "projects_migrated"
	logFieldProjectFailedConstant               = "projects_failed"
	logFieldProjectSkippedConstant              = "projects_skipped"
	logFieldProjectRefreshedConstant            = "projects_refreshed"
	logFieldRunDurationConstant                 = "run_duration"
)

var (
	errRunnerLoggerMissing       = errors.New(runnerLoggerMissingMessageConstant)
	errRunnerStoreMissing        = errors.New(runnerStoreMissingMessageConstant)
	errRunnerPipelineMissing     = errors.New(runnerPipelineMissingMessageConstant)
	errRunnerMirrorsMissing      = errors.New(runnerMirrorsMissingMessageConstant)
	errRunnerPathResolverMissing = errors.New(runnerPathResolverMissingMessageConstant)
)

// RunAbortedError reports that fail-fast stopped the run after a project failure.
// Staged registry updates are discarded; nothing is committed.
type RunAbortedError struct {
	ProjectName string
	Cause       error
}

// Error describes the aborting failure.
func (failure RunAbortedError) Error() string {
	return fmt.Sprintf(runAbortedErrorTemplateConstant, failure.ProjectName, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure RunAbortedError) Unwrap() error {
	return failure.Cause
}

// ProjectPipeline migrates one project.
type ProjectPipeline interface {
	Execute(executionContext context.Context, project registry.Project, options PipelineOptions) (PipelineResult, error)
}

// RunnerDependencies describes required collaborators for the runner.
type RunnerDependencies struct {
	Logger       *zap.Logger
	Store        registry.ProjectStore
	Pipeline     ProjectPipeline
	Mirrors      MirrorMaintainer
	PathResolver RepositoryPathResolver
}

// RunOptions configures one migration run.
type RunOptions struct {
	Region             string
	NamePattern        string
	MirrorFolder       string
	CreateRepositories bool
	PrimeMirrors       bool
	Reconfigure        bool
	FailFast           bool
}

// PrimeCacheOptions configures one mirror priming run over migrated projects.
type PrimeCacheOptions struct {
	NamePattern  string
	MirrorFolder string
}

// Runner drives the migration pipeline across registry projects.
type Runner struct {
	logger       *zap.Logger
	store        registry.ProjectStore
	pipeline     ProjectPipeline
	mirrors      MirrorMaintainer
	pathResolver RepositoryPathResolver
}

// NewRunner validates dependencies and constructs a Runner.
func NewRunner(dependencies RunnerDependencies) (*Runner, error) {
	if dependencies.Logger == nil {
		return nil, errRunnerLoggerMissing
	}
	if dependencies.Store == nil {
		return nil, errRunnerStoreMissing
	}
	if dependencies.Pipeline == nil {
		return nil, errRunnerPipelineMissing
	}
	if dependencies.Mirrors == nil {
		return nil, errRunnerMirrorsMissing
	}
	if dependencies.PathResolver == nil {
		return nil, errRunnerPathResolverMissing
	}

	runner := &Runner{
		logger:       dependencies.Logger,
		store:        dependencies.Store,
		pipeline:     dependencies.Pipeline,
		mirrors:      dependencies.Mirrors,
		pathResolver: dependencies.PathResolver,
	}

	return runner, nil
}

// Run migrates every unmigrated project whose full name matches the pattern.
// Without fail-fast a project failure is logged and the run continues; with
// fail-fast the run aborts immediately and staged registry updates are never
// committed. The single batch commit happens only after the loop finishes.
func (runner *Runner) Run(executionContext context.Context, options RunOptions) error {
	nameMatcher, patternError := compileNamePattern(options.NamePattern)
	if patternError != nil {
		return patternError
	}

	projects, listError := runner.store.ListUnmigratedProjects(executionContext)
	if listError != nil {
		return listError
	}

	runStart := time.Now()
	migratedCount := 0
	failedCount := 0
	skippedCount := 0

	pipelineOptions := PipelineOptions{
		Region:             options.Region,
		MirrorFolder:       options.MirrorFolder,
		CreateRepositories: options.CreateRepositories,
		PrimeMirrors:       options.PrimeMirrors,
		Reconfigure:        options.Reconfigure,
	}

	for _, project := range projects {
		if project.Migrated() {
			runner.logger.Debug(
				logMessageProjectAlreadyMigratedConstant,
				zap.String(logFieldProjectConstant, project.FullName()),
			)
			skippedCount++
			continue
		}

		if !nameMatcher.MatchString(project.FullName()) {
			runner.logger.Debug(
				logMessageProjectFilteredConstant,
				zap.String(logFieldProjectConstant, project.FullName()),
			)
			skippedCount++
			continue
		}

		_, pipelineError := runner.pipeline.Execute(executionContext, project, pipelineOptions)
		if pipelineError != nil {
			failedCount++
			runner.logger.Error(
				logMessageProjectFailedConstant,
				zap.String(logFieldProjectConstant, project.FullName()),
				zap.Error(pipelineError),
			)
			if options.FailFast {
				return RunAbortedError{ProjectName: project.FullName(), Cause: pipelineError}
			}
			continue
		}

		migratedCount++
	}

	if commitError := runner.store.Commit(executionContext); commitError != nil {
		return commitError
	}

	runner.logger.Info(
		logMessageRunCompletedConstant,
		zap.Int(logFieldProjectTotalConstant, len(projects)),
		zap.Int(logFieldProjectMigratedConstant, migratedCount),
		zap.Int(logFieldProjectFailedConstant, failedCount),
		zap.Int(logFieldProjectSkippedConstant, skippedCount),
		zap.Duration(logFieldRunDurationConstant, time.Since(runStart)),
	)

	return nil
}

// PrimeCaches reinstalls fresh mirrors for every migrated project matching the
// pattern, using each project's recorded migration region. Failures are logged
// and never stop the run.
func (runner *Runner) PrimeCaches(executionContext context.Context, options PrimeCacheOptions) error {
	nameMatcher, patternError := compileNamePattern(options.NamePattern)
	if patternError != nil {
		return patternError
	}

	projects, listError := runner.store.ListMigratedProjects(executionContext)
	if listError != nil {
		return listError
	}

	runStart := time.Now()
	refreshedCount := 0

	for _, project := range projects {
		if !nameMatcher.MatchString(project.FullName()) {
			continue
		}

		for _, repositoryKind := range registry.AllRepositoryKinds() {
			_, repositoryPresent := runner.pathResolver.Resolve(project, repositoryKind)
			if !repositoryPresent {
				continue
			}

			cacheDirectory := MirrorCacheDirectory(options.MirrorFolder, repositoryKind, project)
			refreshError := runner.mirrors.Refresh(executionContext, project, repositoryKind, project.MigrationRegion, cacheDirectory)
			if refreshError != nil {
				runner.logger.Error(
					logMessageRefreshFailedConstant,
					zap.String(logFieldProjectConstant, project.FullName()),
					zap.String(logFieldRepositoryKindConstant, string(repositoryKind)),
					zap.Error(refreshError),
				)
			}
		}

		refreshedCount++
	}

	runner.logger.Info(
		logMessagePrimeRunCompletedConstant,
		zap.Int(logFieldProjectTotalConstant, len(projects)),
		zap.Int(logFieldProjectRefreshedConstant, refreshedCount),
		zap.Duration(logFieldRunDurationConstant, time.Since(runStart)),
	)

	return nil
}

// compileNamePattern anchors the operator-supplied pattern at the start of the
// project full name, so "web" matches "web-frontend" but not "old-web".
func compileNamePattern(pattern string) (*regexp.Regexp, error) {
	nameMatcher, compileError := regexp.Compile(fmt.Sprintf(anchoredPatternTemplateConstant, pattern))
	if compileError != nil {
		return nil, fmt.Errorf(invalidPatternErrorTemplateConstant, pattern, compileError)
	}
	return nameMatcher, nil
}
