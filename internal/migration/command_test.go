package migration_test

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgeops/repomigrate/internal/execshell"
	"github.com/forgeops/repomigrate/internal/migration"
	"github.com/forgeops/repomigrate/internal/regions"
	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	testConfiguredRegionConstant = "us-east"
	testUnknownRegionConstant    = "ap-south"
	testMatchAllPatternConstant  = ".*"
)

type closableProjectStore struct {
	stubProjectStore
	closeCount int
}

func (store *closableProjectStore) Close() error {
	store.closeCount++
	return nil
}

type noopGitExecutor struct{}

func (executor *noopGitExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return execshell.ExecutionResult{}, nil
}

func testCommandConfiguration() migration.CommandConfiguration {
	return migration.CommandConfiguration{
		DatabaseURL:     "postgres://registry@db.internal/pagure",
		RegionsManifest: "/etc/repomigrate/regions.yaml",
		BridgeBinary:    "/usr/libexec/repobridge",
		MirrorFolder:    "/srv/mirrors",
		ServiceUser:     "git",
		ActingUsername:  "releng",
	}
}

func testManifestProvider() migration.ManifestProvider {
	return func(manifestPath string) (regions.Manifest, error) {
		return regions.Manifest{
			Regions: map[string]regions.RegionConfiguration{
				testConfiguredRegionConstant: {
					URL:               "https://spanner.us-east.example.com:8444",
					CACertificatePath: "/etc/pki/spanner/ca.crt",
					PushCertificates: map[string]regions.CertificatePair{
						"default": {CertificatePath: "/etc/pki/spanner/push.crt", KeyPath: "/etc/pki/spanner/push.key"},
					},
				},
			},
		}, nil
	}
}

func buildMigrateCommand(testInstance *testing.T, store *closableProjectStore) *cobra.Command {
	builder := migration.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return zap.NewNop()
		},
		ConfigurationProvider: testCommandConfiguration,
		GitExecutor:           &noopGitExecutor{},
		RegistryProvider: func(databaseURL string) (migration.ProjectRegistry, error) {
			return store, nil
		},
		ManifestProvider: testManifestProvider(),
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetContext(context.Background())
	return command
}

func TestMigrateCommandRejectsUnknownRegion(testInstance *testing.T) {
	store := &closableProjectStore{}
	command := buildMigrateCommand(testInstance, store)
	command.SetArgs([]string{testUnknownRegionConstant, testMatchAllPatternConstant})

	executionError := command.Execute()
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), testUnknownRegionConstant)
	require.Zero(testInstance, store.closeCount)
}

func TestMigrateCommandRunsAgainstConfiguredRegion(testInstance *testing.T) {
	store := &closableProjectStore{}
	command := buildMigrateCommand(testInstance, store)
	command.SetArgs([]string{testConfiguredRegionConstant, testMatchAllPatternConstant})

	require.NoError(testInstance, command.Execute())
	require.Equal(testInstance, 1, store.commitCount)
	require.Equal(testInstance, 1, store.closeCount)
}

func TestMigrateCommandRequiresRegionAndPattern(testInstance *testing.T) {
	command := buildMigrateCommand(testInstance, &closableProjectStore{})
	command.SetArgs([]string{testConfiguredRegionConstant})

	require.Error(testInstance, command.Execute())
}

func TestPrimeCacheCommandRefreshesMirrors(testInstance *testing.T) {
	store := &closableProjectStore{}
	store.migratedProjects = []registry.Project{{Name: "api", MigrationRegion: testConfiguredRegionConstant}}

	builder := migration.PrimeCacheCommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return zap.NewNop()
		},
		ConfigurationProvider: testCommandConfiguration,
		GitExecutor:           &noopGitExecutor{},
		RegistryProvider: func(databaseURL string) (migration.ProjectRegistry, error) {
			return store, nil
		},
		ManifestProvider: testManifestProvider(),
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetContext(context.Background())
	command.SetArgs([]string{testMatchAllPatternConstant})

	require.NoError(testInstance, command.Execute())
	require.Equal(testInstance, 1, store.closeCount)
	require.Zero(testInstance, store.commitCount)
}
