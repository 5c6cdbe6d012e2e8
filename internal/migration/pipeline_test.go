package migration_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/forgeops/repomigrate/internal/bridge"
	"github.com/forgeops/repomigrate/internal/migration"
	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	testRegionNameConstant   = "us-east"
	testMirrorFolderConstant = "/srv/mirrors"
)

type stubCreator struct {
	creationError   error
	createdProjects []registry.Project
}

func (creator *stubCreator) CreateRepositories(executionContext context.Context, project registry.Project, region string) error {
	creator.createdProjects = append(creator.createdProjects, project)
	return creator.creationError
}

type stubTransfer struct {
	referenceNames []string
	listError      error
	pushError      error
	pushRequests   []bridge.PushRequest
}

func (transfer *stubTransfer) ListLocalReferences(executionContext context.Context, repositoryPath string) ([]string, error) {
	return transfer.referenceNames, transfer.listError
}

func (transfer *stubTransfer) Push(executionContext context.Context, request bridge.PushRequest) error {
	transfer.pushRequests = append(transfer.pushRequests, request)
	return transfer.pushError
}

type mirrorCall struct {
	project        registry.Project
	kind           registry.RepositoryKind
	region         string
	cacheDirectory string
}

type stubMirrors struct {
	primeError   error
	refreshError error
	primeCalls   []mirrorCall
	refreshCalls []mirrorCall
}

func (mirrors *stubMirrors) PrimeOrUpdate(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string, cacheDirectory string) error {
	mirrors.primeCalls = append(mirrors.primeCalls, mirrorCall{project: project, kind: kind, region: region, cacheDirectory: cacheDirectory})
	return mirrors.primeError
}

func (mirrors *stubMirrors) Refresh(executionContext context.Context, project registry.Project, kind registry.RepositoryKind, region string, cacheDirectory string) error {
	mirrors.refreshCalls = append(mirrors.refreshCalls, mirrorCall{project: project, kind: kind, region: region, cacheDirectory: cacheDirectory})
	return mirrors.refreshError
}

type stagedAssignment struct {
	project registry.Project
	region  string
}

type stubStager struct {
	stageError        error
	stagedAssignments []stagedAssignment
}

func (stager *stubStager) StageMigrationRegion(executionContext context.Context, project registry.Project, region string) error {
	stager.stagedAssignments = append(stager.stagedAssignments, stagedAssignment{project: project, region: region})
	return stager.stageError
}

type stubPathResolver struct {
	presentKinds map[registry.RepositoryKind]string
}

func (resolver *stubPathResolver) Resolve(project registry.Project, kind registry.RepositoryKind) (string, bool) {
	baseFolder, present := resolver.presentKinds[kind]
	if !present {
		return "", false
	}
	return filepath.Join(baseFolder, filepath.FromSlash(project.StoragePath())), true
}

type pipelineFixture struct {
	pipeline *migration.Pipeline
	creator  *stubCreator
	transfer *stubTransfer
	mirrors  *stubMirrors
	stager   *stubStager
}

func buildPipelineFixture(testInstance *testing.T, logger *zap.Logger, presentKinds map[registry.RepositoryKind]string) *pipelineFixture {
	fixture := &pipelineFixture{
		creator:  &stubCreator{},
		transfer: &stubTransfer{referenceNames: []string{"main", "v1.0"}},
		mirrors:  &stubMirrors{},
		stager:   &stubStager{},
	}

	pipeline, creationError := migration.NewPipeline(migration.PipelineDependencies{
		Logger:       logger,
		PathResolver: &stubPathResolver{presentKinds: presentKinds},
		Creator:      fixture.creator,
		Transfer:     fixture.transfer,
		Mirrors:      fixture.mirrors,
		Stager:       fixture.stager,
	})
	require.NoError(testInstance, creationError)

	fixture.pipeline = pipeline
	return fixture
}

func allStepsOptions() migration.PipelineOptions {
	return migration.PipelineOptions{
		Region:             testRegionNameConstant,
		MirrorFolder:       testMirrorFolderConstant,
		CreateRepositories: true,
		PrimeMirrors:       true,
		Reconfigure:        true,
	}
}

func recordedSteps(result migration.PipelineResult) []migration.StepName {
	stepNames := make([]migration.StepName, 0, len(result.StepTimings))
	for _, stepTiming := range result.StepTimings {
		stepNames = append(stepNames, stepTiming.Step)
	}
	return stepNames
}

func TestPipelineExecutesStepsInOrder(testInstance *testing.T) {
	presentKinds := map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
		registry.RepositoryKindDocs: "/srv/git/docs",
	}
	fixture := buildPipelineFixture(testInstance, zap.NewNop(), presentKinds)
	project := registry.Project{Name: "api", Namespace: "widgets"}

	result, executionError := fixture.pipeline.Execute(context.Background(), project, allStepsOptions())
	require.NoError(testInstance, executionError)

	require.Equal(
		testInstance,
		[]migration.StepName{migration.StepCreate, migration.StepPush, migration.StepPrime, migration.StepReconfigure},
		recordedSteps(result),
	)

	require.Len(testInstance, fixture.creator.createdProjects, 1)

	require.Len(testInstance, fixture.transfer.pushRequests, 2)
	require.Equal(testInstance, registry.RepositoryKindMain, fixture.transfer.pushRequests[0].RepositoryKind)
	require.Equal(testInstance, registry.RepositoryKindDocs, fixture.transfer.pushRequests[1].RepositoryKind)
	require.Equal(testInstance, []string{"main", "v1.0"}, fixture.transfer.pushRequests[0].References)

	require.Len(testInstance, fixture.mirrors.primeCalls, 2)
	expectedCacheDirectory := filepath.Join(testMirrorFolderConstant, "main", "widgets", "api.git")
	require.Equal(testInstance, expectedCacheDirectory, fixture.mirrors.primeCalls[0].cacheDirectory)
	require.Equal(testInstance, testRegionNameConstant, fixture.mirrors.primeCalls[0].region)

	require.Len(testInstance, fixture.stager.stagedAssignments, 1)
	require.Equal(testInstance, testRegionNameConstant, fixture.stager.stagedAssignments[0].region)
}

func TestPipelineSkipsAbsentRepositoryKinds(testInstance *testing.T) {
	presentKinds := map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	}
	fixture := buildPipelineFixture(testInstance, zap.NewNop(), presentKinds)

	_, executionError := fixture.pipeline.Execute(context.Background(), registry.Project{Name: "api"}, allStepsOptions())
	require.NoError(testInstance, executionError)

	require.Len(testInstance, fixture.transfer.pushRequests, 1)
	require.Len(testInstance, fixture.mirrors.primeCalls, 1)
}

func TestPipelinePushFailureStopsBeforeReconfigure(testInstance *testing.T) {
	presentKinds := map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	}
	fixture := buildPipelineFixture(testInstance, zap.NewNop(), presentKinds)
	fixture.transfer.pushError = errors.New("bridge transfer failed")

	_, executionError := fixture.pipeline.Execute(context.Background(), registry.Project{Name: "api"}, allStepsOptions())

	var stepFailure migration.StepError
	require.ErrorAs(testInstance, executionError, &stepFailure)
	require.Equal(testInstance, migration.StepPush, stepFailure.Step)

	require.Empty(testInstance, fixture.mirrors.primeCalls)
	require.Empty(testInstance, fixture.stager.stagedAssignments)
}

func TestPipelineCreateFailureStopsBeforePush(testInstance *testing.T) {
	fixture := buildPipelineFixture(testInstance, zap.NewNop(), map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	})
	fixture.creator.creationError = errors.New("service rejected creation")

	_, executionError := fixture.pipeline.Execute(context.Background(), registry.Project{Name: "api"}, allStepsOptions())

	var stepFailure migration.StepError
	require.ErrorAs(testInstance, executionError, &stepFailure)
	require.Equal(testInstance, migration.StepCreate, stepFailure.Step)
	require.Empty(testInstance, fixture.transfer.pushRequests)
}

func TestPipelinePrimeFailureIsNotFatal(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zap.DebugLevel)
	fixture := buildPipelineFixture(testInstance, zap.New(observerCore), map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	})
	fixture.mirrors.primeError = errors.New("mirror clone failed")

	_, executionError := fixture.pipeline.Execute(context.Background(), registry.Project{Name: "api"}, allStepsOptions())
	require.NoError(testInstance, executionError)

	require.Len(testInstance, fixture.stager.stagedAssignments, 1)
	require.Equal(testInstance, 1, observedLogs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestPipelineHonorsDisabledSteps(testInstance *testing.T) {
	fixture := buildPipelineFixture(testInstance, zap.NewNop(), map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	})

	options := migration.PipelineOptions{Region: testRegionNameConstant, MirrorFolder: testMirrorFolderConstant}
	result, executionError := fixture.pipeline.Execute(context.Background(), registry.Project{Name: "api"}, options)
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, []migration.StepName{migration.StepPush}, recordedSteps(result))
	require.Empty(testInstance, fixture.creator.createdProjects)
	require.Empty(testInstance, fixture.mirrors.primeCalls)
	require.Empty(testInstance, fixture.stager.stagedAssignments)
}
