package migration_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeops/repomigrate/internal/migration"
	"github.com/forgeops/repomigrate/internal/registry"
)

type stubProjectStore struct {
	unmigratedProjects []registry.Project
	migratedProjects   []registry.Project
	listError          error
	commitError        error
	commitCount        int
	stagedAssignments  []stagedAssignment
}

func (store *stubProjectStore) ListUnmigratedProjects(executionContext context.Context) ([]registry.Project, error) {
	return store.unmigratedProjects, store.listError
}

func (store *stubProjectStore) ListMigratedProjects(executionContext context.Context) ([]registry.Project, error) {
	return store.migratedProjects, store.listError
}

func (store *stubProjectStore) StageMigrationRegion(executionContext context.Context, project registry.Project, region string) error {
	store.stagedAssignments = append(store.stagedAssignments, stagedAssignment{project: project, region: region})
	return nil
}

func (store *stubProjectStore) Commit(executionContext context.Context) error {
	store.commitCount++
	return store.commitError
}

type scriptedPipeline struct {
	failingProjects  map[string]error
	executedProjects []string
}

func (pipeline *scriptedPipeline) Execute(executionContext context.Context, project registry.Project, options migration.PipelineOptions) (migration.PipelineResult, error) {
	pipeline.executedProjects = append(pipeline.executedProjects, project.FullName())
	if pipelineError, configured := pipeline.failingProjects[project.FullName()]; configured {
		return migration.PipelineResult{}, pipelineError
	}
	return migration.PipelineResult{}, nil
}

func buildTestRunner(testInstance *testing.T, store *stubProjectStore, pipeline *scriptedPipeline, mirrors *stubMirrors, presentKinds map[registry.RepositoryKind]string) *migration.Runner {
	runner, creationError := migration.NewRunner(migration.RunnerDependencies{
		Logger:       zap.NewNop(),
		Store:        store,
		Pipeline:     pipeline,
		Mirrors:      mirrors,
		PathResolver: &stubPathResolver{presentKinds: presentKinds},
	})
	require.NoError(testInstance, creationError)
	return runner
}

func defaultRunOptions() migration.RunOptions {
	return migration.RunOptions{
		Region:             testRegionNameConstant,
		NamePattern:        ".*",
		MirrorFolder:       testMirrorFolderConstant,
		CreateRepositories: true,
		PrimeMirrors:       true,
		Reconfigure:        true,
	}
}

func TestRunFiltersProjectsByAnchoredPattern(testInstance *testing.T) {
	store := &stubProjectStore{
		unmigratedProjects: []registry.Project{
			{Name: "web-frontend"},
			{Name: "old-web"},
			{Name: "webhooks"},
		},
	}
	pipeline := &scriptedPipeline{}
	runner := buildTestRunner(testInstance, store, pipeline, &stubMirrors{}, nil)

	options := defaultRunOptions()
	options.NamePattern = "web"

	require.NoError(testInstance, runner.Run(context.Background(), options))
	require.Equal(testInstance, []string{"web-frontend", "webhooks"}, pipeline.executedProjects)
	require.Equal(testInstance, 1, store.commitCount)
}

func TestRunSkipsAlreadyMigratedProjects(testInstance *testing.T) {
	store := &stubProjectStore{
		unmigratedProjects: []registry.Project{
			{Name: "api"},
			{Name: "stale", MigrationRegion: "eu-west"},
		},
	}
	pipeline := &scriptedPipeline{}
	runner := buildTestRunner(testInstance, store, pipeline, &stubMirrors{}, nil)

	require.NoError(testInstance, runner.Run(context.Background(), defaultRunOptions()))
	require.Equal(testInstance, []string{"api"}, pipeline.executedProjects)
}

func TestRunContinuesPastFailuresAndCommitsOnce(testInstance *testing.T) {
	store := &stubProjectStore{
		unmigratedProjects: []registry.Project{
			{Name: "alpha"},
			{Name: "beta"},
			{Name: "gamma"},
		},
	}
	pipeline := &scriptedPipeline{
		failingProjects: map[string]error{
			"beta": errors.New("push failed"),
		},
	}
	runner := buildTestRunner(testInstance, store, pipeline, &stubMirrors{}, nil)

	require.NoError(testInstance, runner.Run(context.Background(), defaultRunOptions()))
	require.Equal(testInstance, []string{"alpha", "beta", "gamma"}, pipeline.executedProjects)
	require.Equal(testInstance, 1, store.commitCount)
}

func TestRunFailFastAbortsWithoutCommit(testInstance *testing.T) {
	store := &stubProjectStore{
		unmigratedProjects: []registry.Project{
			{Name: "alpha"},
			{Name: "beta"},
			{Name: "gamma"},
		},
	}
	pipeline := &scriptedPipeline{
		failingProjects: map[string]error{
			"beta": errors.New("push failed"),
		},
	}
	runner := buildTestRunner(testInstance, store, pipeline, &stubMirrors{}, nil)

	options := defaultRunOptions()
	options.FailFast = true

	runError := runner.Run(context.Background(), options)

	var abortedFailure migration.RunAbortedError
	require.ErrorAs(testInstance, runError, &abortedFailure)
	require.Equal(testInstance, "beta", abortedFailure.ProjectName)

	require.Equal(testInstance, []string{"alpha", "beta"}, pipeline.executedProjects)
	require.Zero(testInstance, store.commitCount)
}

func TestRunRejectsInvalidPattern(testInstance *testing.T) {
	runner := buildTestRunner(testInstance, &stubProjectStore{}, &scriptedPipeline{}, &stubMirrors{}, nil)

	options := defaultRunOptions()
	options.NamePattern = "web[" // unterminated character class

	require.Error(testInstance, runner.Run(context.Background(), options))
}

func TestRunSurfacesCommitFailure(testInstance *testing.T) {
	store := &stubProjectStore{
		unmigratedProjects: []registry.Project{{Name: "api"}},
		commitError:        errors.New("transaction aborted"),
	}
	runner := buildTestRunner(testInstance, store, &scriptedPipeline{}, &stubMirrors{}, nil)

	require.Error(testInstance, runner.Run(context.Background(), defaultRunOptions()))
}

func TestPrimeCachesRefreshesMigratedProjectsFromRecordedRegion(testInstance *testing.T) {
	store := &stubProjectStore{
		migratedProjects: []registry.Project{
			{Name: "api", MigrationRegion: "us-east"},
			{Name: "web", MigrationRegion: "eu-west"},
		},
	}
	mirrors := &stubMirrors{}
	presentKinds := map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	}
	runner := buildTestRunner(testInstance, store, &scriptedPipeline{}, mirrors, presentKinds)

	primeError := runner.PrimeCaches(context.Background(), migration.PrimeCacheOptions{
		NamePattern:  ".*",
		MirrorFolder: testMirrorFolderConstant,
	})
	require.NoError(testInstance, primeError)

	require.Len(testInstance, mirrors.refreshCalls, 2)
	require.Equal(testInstance, "us-east", mirrors.refreshCalls[0].region)
	require.Equal(testInstance, "eu-west", mirrors.refreshCalls[1].region)
	require.Empty(testInstance, mirrors.primeCalls)
}

func TestPrimeCachesContinuesPastRefreshFailures(testInstance *testing.T) {
	store := &stubProjectStore{
		migratedProjects: []registry.Project{
			{Name: "api", MigrationRegion: "us-east"},
			{Name: "web", MigrationRegion: "us-east"},
		},
	}
	mirrors := &stubMirrors{refreshError: errors.New("swap conflict")}
	presentKinds := map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	}
	runner := buildTestRunner(testInstance, store, &scriptedPipeline{}, mirrors, presentKinds)

	primeError := runner.PrimeCaches(context.Background(), migration.PrimeCacheOptions{
		NamePattern:  ".*",
		MirrorFolder: testMirrorFolderConstant,
	})
	require.NoError(testInstance, primeError)
	require.Len(testInstance, mirrors.refreshCalls, 2)
}

func TestPrimeCachesFiltersByPattern(testInstance *testing.T) {
	store := &stubProjectStore{
		migratedProjects: []registry.Project{
			{Name: "api", MigrationRegion: "us-east"},
			{Name: "web", MigrationRegion: "us-east"},
		},
	}
	mirrors := &stubMirrors{}
	presentKinds := map[registry.RepositoryKind]string{
		registry.RepositoryKindMain: "/srv/git/repositories",
	}
	runner := buildTestRunner(testInstance, store, &scriptedPipeline{}, mirrors, presentKinds)

	primeError := runner.PrimeCaches(context.Background(), migration.PrimeCacheOptions{
		NamePattern:  "api",
		MirrorFolder: testMirrorFolderConstant,
	})
	require.NoError(testInstance, primeError)
	require.Len(testInstance, mirrors.refreshCalls, 1)
	require.Equal(testInstance, "api", mirrors.refreshCalls[0].project.Name)
}
