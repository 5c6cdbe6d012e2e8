package migration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/forgeops/repomigrate/internal/bridge"
	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	stepErrorTemplateConstant                 = "step %s for project %s failed: %v"
	pipelineLoggerMissingMessageConstant      = "logger not configured"
	pathResolverMissingMessageConstant        = "repository path resolver not configured"
	repositoryCreatorMissingMessageConstant   = "repository creator not configured"
	repositoryTransferMissingMessageConstant  = "repository transfer not configured"
	mirrorMaintainerMissingMessageConstant    = "mirror maintainer not configured"
	regionStagerMissingMessageConstant        = "region stager not configured"
	logMessageHandlingProjectConstant         = "Handling project"
	logMessageRepositoryKindSkippedConstant   = "Repository kind not in use, skipping"
	logMessagePushingRepositoryKindConstant   = "Pushing repository kind"
	logMessageMirrorPrimingFailedConstant     = "Mirror priming failed; migration record is unaffected"
	logMessageProjectCompletedConstant        = "Project migration completed"
	logFieldProjectConstant                   = "project"
	logFieldRepositoryKindConstant            = "repository_kind"
	logFieldRegionConstant                    = "region"
	logFieldStepDurationsConstant             = "step_durations"
	logFieldTotalDurationConstant             = "total_duration"
	stepDurationSummaryTemplateConstant       = "%s: %s"
)

// StepName identifies one pipeline step.
type StepName string

// Pipeline step enumerations, in execution order.
const (
	StepCreate      StepName = "create"
	StepPush        StepName = "push"
	StepPrime       StepName = "prime"
	StepReconfigure StepName = "reconfigure"
)

// StepError reports a fatal failure of a named pipeline step.
type StepError struct {
	Step        StepName
	ProjectName string
	Cause       error
}

// Error describes the failed step.
func (failure StepError) Error() string {
	return fmt.Sprintf(stepErrorTemplateConstant, failure.Step, failure.ProjectName, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure StepError) Unwrap() error {
	return failure.Cause
}

// RepositoryCreator requests repository creation in the distributed service.
type RepositoryCreator interface {
	CreateRepositories(executionContext context.Context, project registry.Project, region string) error
}

// RepositoryTransfer performs the bridge operations the push step depends on.
type RepositoryTransfer interface {
	ListLocalReferences(executionContext context.Context, repositoryPath string) ([]string, error)
	Push(executionContext context.Context, request bridge.PushRequest) error
}

// MirrorMaintainer primes and refreshes local mirror directories.
type MirrorMaintainer interface {
	PrimeOrUpdate(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string, cacheDirectory string) error
	Refresh(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string, cacheDirectory string) error
}

// RegionStager stages migration-region assignments for batched persistence.
type RegionStager interface {
	StageMigrationRegion(executionContext context.Context, project registry.Project, region string) error
}

// RepositoryPathResolver locates a project's on-disk repository for a kind.
type RepositoryPathResolver interface {
	Resolve(project registry.Project, kind registry.RepositoryKind) (string, bool)
}

// PipelineDependencies describes required collaborators for the pipeline.
type PipelineDependencies struct {
	Logger       *zap.Logger
	PathResolver RepositoryPathResolver
	Creator      RepositoryCreator
	Transfer     RepositoryTransfer
	Mirrors      MirrorMaintainer
	Stager       RegionStager
}

// PipelineOptions configures one pipeline execution.
type PipelineOptions struct {
	Region             string
	MirrorFolder       string
	CreateRepositories bool
	PrimeMirrors       bool
	Reconfigure        bool
}

// StepTiming records the wall-clock duration of one executed step.
type StepTiming struct {
	Step     StepName
	Duration time.Duration
}

// PipelineResult captures the observable outcome of one project migration.
type PipelineResult struct {
	StepTimings   []StepTiming
	TotalDuration time.Duration
}

var (
	errPipelineLoggerMissing     = errors.New(pipelineLoggerMissingMessageConstant)
	errPathResolverMissing       = errors.New(pathResolverMissingMessageConstant)
	errRepositoryCreatorMissing  = errors.New(repositoryCreatorMissingMessageConstant)
	errRepositoryTransferMissing = errors.New(repositoryTransferMissingMessageConstant)
	errMirrorMaintainerMissing   = errors.New(mirrorMaintainerMissingMessageConstant)
	errRegionStagerMissing       = errors.New(regionStagerMissingMessageConstant)
)

// Pipeline executes the ordered per-project migration steps.
type Pipeline struct {
	logger       *zap.Logger
	pathResolver RepositoryPathResolver
	creator      RepositoryCreator
	transfer     RepositoryTransfer
	mirrors      MirrorMaintainer
	stager       RegionStager
}

// NewPipeline validates dependencies and constructs a Pipeline.
func NewPipeline(dependencies PipelineDependencies) (*Pipeline, error) {
	if dependencies.Logger == nil {
		return nil, errPipelineLoggerMissing
	}
	if dependencies.PathResolver == nil {
		return nil, errPathResolverMissing
	}
	if dependencies.Creator == nil {
		return nil, errRepositoryCreatorMissing
	}
	if dependencies.Transfer == nil {
		return nil, errRepositoryTransferMissing
	}
	if dependencies.Mirrors == nil {
		return nil, errMirrorMaintainerMissing
	}
	if dependencies.Stager == nil {
		return nil, errRegionStagerMissing
	}

	pipeline := &Pipeline{
		logger:       dependencies.Logger,
		pathResolver: dependencies.PathResolver,
		creator:      dependencies.Creator,
		transfer:     dependencies.Transfer,
		mirrors:      dependencies.Mirrors,
		stager:       dependencies.Stager,
	}

	return pipeline, nil
}

// Execute runs the enabled steps in order, recording per-step durations. Any
// fatal step failure stops the pipeline immediately and is reported with the
// failing step's name; mirror priming failures are surfaced but never fatal.
func (pipeline *Pipeline) Execute(executionContext context.Context, project registry.Project, options PipelineOptions) (PipelineResult, error) {
	pipeline.logger.Info(
		logMessageHandlingProjectConstant,
		zap.String(logFieldProjectConstant, project.FullName()),
		zap.String(logFieldRegionConstant, options.Region),
	)

	result := PipelineResult{}
	totalStart := time.Now()

	if options.CreateRepositories {
		if stepFailure := pipeline.runTimedStep(&result, StepCreate, func() error {
			return pipeline.creator.CreateRepositories(executionContext, project, options.Region)
		}); stepFailure != nil {
			return result, pipeline.wrapStepFailure(StepCreate, project, stepFailure)
		}
	}

	if stepFailure := pipeline.runTimedStep(&result, StepPush, func() error {
		return pipeline.pushRepositories(executionContext, project, options)
	}); stepFailure != nil {
		return result, pipeline.wrapStepFailure(StepPush, project, stepFailure)
	}

	if options.PrimeMirrors {
		if stepFailure := pipeline.runTimedStep(&result, StepPrime, func() error {
			pipeline.primeMirrors(executionContext, project, options)
			return nil
		}); stepFailure != nil {
			return result, pipeline.wrapStepFailure(StepPrime, project, stepFailure)
		}
	}

	if options.Reconfigure {
		if stepFailure := pipeline.runTimedStep(&result, StepReconfigure, func() error {
			return pipeline.stager.StageMigrationRegion(executionContext, project, options.Region)
		}); stepFailure != nil {
			return result, pipeline.wrapStepFailure(StepReconfigure, project, stepFailure)
		}
	}

	result.TotalDuration = time.Since(totalStart)

	pipeline.logger.Info(
		logMessageProjectCompletedConstant,
		zap.String(logFieldProjectConstant, project.FullName()),
		zap.Strings(logFieldStepDurationsConstant, summarizeStepTimings(result.StepTimings)),
		zap.Duration(logFieldTotalDurationConstant, result.TotalDuration),
	)

	return result, nil
}

// pushRepositories pushes every repository kind present on local disk, all
// local references in a single invocation per kind. Any push failure is fatal
// for the whole pipeline.
func (pipeline *Pipeline) pushRepositories(executionContext context.Context, project registry.Project, options PipelineOptions) error {
	for _, repositoryKind := range registry.AllRepositoryKinds() {
		repositoryPath, repositoryPresent := pipeline.pathResolver.Resolve(project, repositoryKind)
		if !repositoryPresent {
			pipeline.logger.Debug(
				logMessageRepositoryKindSkippedConstant,
				zap.String(logFieldProjectConstant, project.FullName()),
				zap.String(logFieldRepositoryKindConstant, string(repositoryKind)),
			)
			continue
		}

		pipeline.logger.Info(
			logMessagePushingRepositoryKindConstant,
			zap.String(logFieldProjectConstant, project.FullName()),
			zap.String(logFieldRepositoryKindConstant, string(repositoryKind)),
		)

		referenceNames, listError := pipeline.transfer.ListLocalReferences(executionContext, repositoryPath)
		if listError != nil {
			return listError
		}

		pushError := pipeline.transfer.Push(executionContext, bridge.PushRequest{
			Project:        project,
			RepositoryKind: repositoryKind,
			Region:         options.Region,
			RepositoryPath: repositoryPath,
			References:     referenceNames,
		})
		if pushError != nil {
			return pushError
		}
	}

	return nil
}

// primeMirrors refreshes the read cache for every present repository kind.
// Failures are logged distinctly from push failures and never abort the
// project: mirrors are a cache, not a source of truth.
func (pipeline *Pipeline) primeMirrors(executionContext context.Context, project registry.Project, options PipelineOptions) {
	for _, repositoryKind := range registry.AllRepositoryKinds() {
		_, repositoryPresent := pipeline.pathResolver.Resolve(project, repositoryKind)
		if !repositoryPresent {
			continue
		}

		cacheDirectory := MirrorCacheDirectory(options.MirrorFolder, repositoryKind, project)
		primeError := pipeline.mirrors.PrimeOrUpdate(executionContext, project, repositoryKind, options.Region, cacheDirectory)
		if primeError != nil {
			pipeline.logger.Warn(
				logMessageMirrorPrimingFailedConstant,
				zap.String(logFieldProjectConstant, project.FullName()),
				zap.String(logFieldRepositoryKindConstant, string(repositoryKind)),
				zap.Error(primeError),
			)
		}
	}
}

func (pipeline *Pipeline) runTimedStep(result *PipelineResult, step StepName, stepFunction func() error) error {
	stepStart := time.Now()
	stepError := stepFunction()
	result.StepTimings = append(result.StepTimings, StepTiming{Step: step, Duration: time.Since(stepStart)})
	return stepError
}

func (pipeline *Pipeline) wrapStepFailure(step StepName, project registry.Project, cause error) error {
	return StepError{Step: step, ProjectName: project.FullName(), Cause: cause}
}

// MirrorCacheDirectory returns the mirror path for a project repository:
// <mirror folder>/<kind>/<project storage path>.
func MirrorCacheDirectory(mirrorFolder string, kind registry.RepositoryKind, project registry.Project) string {
	return filepath.Join(mirrorFolder, string(kind), filepath.FromSlash(project.StoragePath()))
}

func summarizeStepTimings(stepTimings []StepTiming) []string {
	summaries := make([]string, 0, len(stepTimings))
	for _, stepTiming := range stepTimings {
		summaries = append(summaries, fmt.Sprintf(stepDurationSummaryTemplateConstant, stepTiming.Step, stepTiming.Duration))
	}
	return summaries
}
