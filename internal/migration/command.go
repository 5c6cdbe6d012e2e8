package migration

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forgeops/repomigrate/internal/bridge"
	"github.com/forgeops/repomigrate/internal/execshell"
	"github.com/forgeops/repomigrate/internal/mirror"
	"github.com/forgeops/repomigrate/internal/regions"
	"github.com/forgeops/repomigrate/internal/registry"
	"github.com/forgeops/repomigrate/internal/spanner"
	"github.com/forgeops/repomigrate/internal/utils"
)

const (
	migrateCommandUseConstant                 = "migrate <region> <pattern>"
	migrateCommandShortDescriptionConstant    = "Migrate matching projects into a distributed repository service region"
	migrateCommandLongDescriptionConstant     = "migrate pushes every repository of matching unmigrated projects through the bridge helper into the requested region, primes local mirrors, and records the region assignment in one batch at the end of the run."
	primeCacheCommandUseConstant              = "prime-cache <pattern>"
	primeCacheCommandShortDescriptionConstant = "Reinstall fresh mirrors for already migrated projects"
	primeCacheCommandLongDescriptionConstant  = "prime-cache clones fresh mirrors for matching migrated projects from each project's recorded region and installs them with an atomic swap."
	migrateCommandArgumentCountConstant       = 2
	primeCacheCommandArgumentCountConstant    = 1
	regionArgumentIndexConstant               = 0
	patternArgumentIndexConstant              = 1
	primeCachePatternArgumentIndexConstant    = 0
	createFlagNameConstant                    = "create"
	createFlagUsageConstant                   = "Create repositories in the distributed service before pushing."
	primeFlagNameConstant                     = "prime"
	primeFlagUsageConstant                    = "Prime local mirrors after pushing."
	reconfigureFlagNameConstant               = "reconfigure"
	reconfigureFlagUsageConstant              = "Record the region assignment for migrated projects."
	failFastFlagNameConstant                  = "failfast"
	failFastFlagUsageConstant                 = "Abort the run on the first project failure without committing."
	unknownRegionErrorTemplateConstant        = "region %s is not configured in the regions manifest"
	migrateExecutionErrorTemplateConstant     = "migration run failed: %w"
	primeCacheExecutionErrorTemplateConstant  = "mirror priming run failed: %w"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ProjectRegistry combines project persistence with connection shutdown.
type ProjectRegistry interface {
	registry.ProjectStore
	Close() error
}

// RegistryProvider opens the project registry for the configured database URL.
type RegistryProvider func(databaseURL string) (ProjectRegistry, error)

// ManifestProvider loads the regions manifest from the configured path.
type ManifestProvider func(manifestPath string) (regions.Manifest, error)

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	GitExecutor                  bridge.GitExecutor
	RegistryProvider             RegistryProvider
	ManifestProvider             ManifestProvider
}

// PrimeCacheCommandBuilder assembles the prime-cache Cobra command.
type PrimeCacheCommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	GitExecutor                  bridge.GitExecutor
	RegistryProvider             RegistryProvider
	ManifestProvider             ManifestProvider
}

type migrateCommandOptions struct {
	configuration       CommandConfiguration
	region              string
	namePattern         string
	createRepositories  bool
	primeMirrors        bool
	reconfigure         bool
	failFast            bool
	debugLoggingEnabled bool
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           migrateCommandUseConstant,
		Short:         migrateCommandShortDescriptionConstant,
		Long:          migrateCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(migrateCommandArgumentCountConstant),
		RunE:          builder.runMigrate,
	}

	defaults := DefaultCommandConfiguration()
	command.Flags().Bool(createFlagNameConstant, defaults.CreateRepositories, createFlagUsageConstant)
	command.Flags().Bool(primeFlagNameConstant, defaults.PrimeMirrors, primeFlagUsageConstant)
	command.Flags().Bool(reconfigureFlagNameConstant, defaults.Reconfigure, reconfigureFlagUsageConstant)
	command.Flags().Bool(failFastFlagNameConstant, defaults.FailFast, failFastFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	options := builder.parseOptions(command, arguments)
	logger := resolveCommandLogger(builder.LoggerProvider, options.debugLoggingEnabled)

	manifest, manifestError := resolveManifest(builder.ManifestProvider, options.configuration.RegionsManifest)
	if manifestError != nil {
		return manifestError
	}

	credentialResolver := regions.NewCredentialResolver(manifest)
	if !credentialResolver.KnownRegion(options.region) {
		return fmt.Errorf(unknownRegionErrorTemplateConstant, options.region)
	}

	projectRegistry, registryError := resolveRegistry(builder.RegistryProvider, options.configuration.DatabaseURL)
	if registryError != nil {
		return registryError
	}
	defer projectRegistry.Close()

	runner, runnerError := assembleRunner(runnerAssembly{
		logger:               logger,
		configuration:        options.configuration,
		projectRegistry:      projectRegistry,
		credentialResolver:   credentialResolver,
		gitExecutor:          builder.GitExecutor,
		humanReadableLogging: humanReadableLoggingEnabled(builder.HumanReadableLoggingProvider),
	})
	if runnerError != nil {
		return runnerError
	}

	runError := runner.Run(command.Context(), RunOptions{
		Region:             options.region,
		NamePattern:        options.namePattern,
		MirrorFolder:       options.configuration.MirrorFolder,
		CreateRepositories: options.createRepositories,
		PrimeMirrors:       options.primeMirrors,
		Reconfigure:        options.reconfigure,
		FailFast:           options.failFast,
	})
	if runError != nil {
		return fmt.Errorf(migrateExecutionErrorTemplateConstant, runError)
	}

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, arguments []string) migrateCommandOptions {
	configuration := resolveCommandConfiguration(builder.ConfigurationProvider)

	options := migrateCommandOptions{
		configuration:       configuration,
		region:              strings.TrimSpace(arguments[regionArgumentIndexConstant]),
		namePattern:         arguments[patternArgumentIndexConstant],
		createRepositories:  configuration.CreateRepositories,
		primeMirrors:        configuration.PrimeMirrors,
		reconfigure:         configuration.Reconfigure,
		failFast:            configuration.FailFast,
		debugLoggingEnabled: debugLoggingEnabled(command, configuration),
	}

	if command != nil {
		flagSet := command.Flags()
		if flagSet.Changed(createFlagNameConstant) {
			options.createRepositories, _ = flagSet.GetBool(createFlagNameConstant)
		}
		if flagSet.Changed(primeFlagNameConstant) {
			options.primeMirrors, _ = flagSet.GetBool(primeFlagNameConstant)
		}
		if flagSet.Changed(reconfigureFlagNameConstant) {
			options.reconfigure, _ = flagSet.GetBool(reconfigureFlagNameConstant)
		}
		if flagSet.Changed(failFastFlagNameConstant) {
			options.failFast, _ = flagSet.GetBool(failFastFlagNameConstant)
		}
	}

	return options
}

// Build constructs the prime-cache command.
func (builder *PrimeCacheCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           primeCacheCommandUseConstant,
		Short:         primeCacheCommandShortDescriptionConstant,
		Long:          primeCacheCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(primeCacheCommandArgumentCountConstant),
		RunE:          builder.runPrimeCache,
	}

	return command, nil
}

func (builder *PrimeCacheCommandBuilder) runPrimeCache(command *cobra.Command, arguments []string) error {
	configuration := resolveCommandConfiguration(builder.ConfigurationProvider)
	logger := resolveCommandLogger(builder.LoggerProvider, debugLoggingEnabled(command, configuration))

	manifest, manifestError := resolveManifest(builder.ManifestProvider, configuration.RegionsManifest)
	if manifestError != nil {
		return manifestError
	}

	projectRegistry, registryError := resolveRegistry(builder.RegistryProvider, configuration.DatabaseURL)
	if registryError != nil {
		return registryError
	}
	defer projectRegistry.Close()

	runner, runnerError := assembleRunner(runnerAssembly{
		logger:               logger,
		configuration:        configuration,
		projectRegistry:      projectRegistry,
		credentialResolver:   regions.NewCredentialResolver(manifest),
		gitExecutor:          builder.GitExecutor,
		humanReadableLogging: humanReadableLoggingEnabled(builder.HumanReadableLoggingProvider),
	})
	if runnerError != nil {
		return runnerError
	}

	primeError := runner.PrimeCaches(command.Context(), PrimeCacheOptions{
		NamePattern:  arguments[primeCachePatternArgumentIndexConstant],
		MirrorFolder: configuration.MirrorFolder,
	})
	if primeError != nil {
		return fmt.Errorf(primeCacheExecutionErrorTemplateConstant, primeError)
	}

	return nil
}

type runnerAssembly struct {
	logger               *zap.Logger
	configuration        CommandConfiguration
	projectRegistry      ProjectRegistry
	credentialResolver   *regions.CredentialResolver
	gitExecutor          bridge.GitExecutor
	humanReadableLogging bool
}

// assembleRunner wires the bridge invoker, mirror swapper, creation client, and
// pipeline behind a runner, reusing an injected git executor when provided.
func assembleRunner(assembly runnerAssembly) (*Runner, error) {
	gitExecutor := assembly.gitExecutor
	if gitExecutor == nil {
		shellExecutor, executorError := execshell.NewShellExecutor(
			assembly.logger,
			execshell.NewOSCommandRunner(),
			assembly.humanReadableLogging,
		)
		if executorError != nil {
			return nil, executorError
		}
		gitExecutor = shellExecutor
	}

	invoker, invokerError := bridge.NewInvoker(bridge.InvokerDependencies{
		Logger:           assembly.logger,
		GitExecutor:      gitExecutor,
		CredentialSource: assembly.credentialResolver,
		HelperBinaryPath: assembly.configuration.BridgeBinary,
		ServiceUser:      assembly.configuration.ServiceUser,
		ActingUsername:   assembly.configuration.ActingUsername,
	})
	if invokerError != nil {
		return nil, invokerError
	}

	swapper, swapperError := mirror.NewSwapper(assembly.logger, invoker)
	if swapperError != nil {
		return nil, swapperError
	}

	creationClient, clientError := spanner.NewClient(assembly.logger, assembly.credentialResolver)
	if clientError != nil {
		return nil, clientError
	}

	pathResolver := registry.NewRepositoryPathResolver(repositoryKindFolders(assembly.configuration.RepositoryFolders))

	pipeline, pipelineError := NewPipeline(PipelineDependencies{
		Logger:       assembly.logger,
		PathResolver: pathResolver,
		Creator:      creationClient,
		Transfer:     invoker,
		Mirrors:      swapper,
		Stager:       assembly.projectRegistry,
	})
	if pipelineError != nil {
		return nil, pipelineError
	}

	return NewRunner(RunnerDependencies{
		Logger:       assembly.logger,
		Store:        assembly.projectRegistry,
		Pipeline:     pipeline,
		Mirrors:      swapper,
		PathResolver: pathResolver,
	})
}

func resolveCommandConfiguration(provider func() CommandConfiguration) CommandConfiguration {
	if provider != nil {
		return provider().Sanitize()
	}
	return DefaultCommandConfiguration().Sanitize()
}

func resolveCommandLogger(provider LoggerProvider, enableDebug bool) *zap.Logger {
	var logger *zap.Logger
	if provider != nil {
		logger = provider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enableDebug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.DebugLevel))
	}
	return logger
}

func resolveManifest(provider ManifestProvider, manifestPath string) (regions.Manifest, error) {
	if provider != nil {
		return provider(manifestPath)
	}
	return regions.LoadManifest(manifestPath)
}

func resolveRegistry(provider RegistryProvider, databaseURL string) (ProjectRegistry, error) {
	if provider != nil {
		return provider(databaseURL)
	}
	store, openError := registry.OpenSQLProjectStore(databaseURL)
	if openError != nil {
		return nil, openError
	}
	return store, nil
}

func humanReadableLoggingEnabled(provider func() bool) bool {
	if provider != nil {
		return provider()
	}
	return false
}

func debugLoggingEnabled(command *cobra.Command, configuration CommandConfiguration) bool {
	debugEnabled := configuration.EnableDebugLogging
	if command != nil {
		contextAccessor := utils.NewCommandContextAccessor()
		if logLevel, available := contextAccessor.LogLevel(command.Context()); available {
			if strings.EqualFold(logLevel, string(utils.LogLevelDebug)) {
				debugEnabled = true
			}
		}
	}
	return debugEnabled
}

func repositoryKindFolders(configuredFolders map[string]string) map[registry.RepositoryKind]string {
	kindFolders := make(map[registry.RepositoryKind]string, len(configuredFolders))
	for folderKind, folderPath := range configuredFolders {
		kindFolders[registry.RepositoryKind(folderKind)] = folderPath
	}
	return kindFolders
}
