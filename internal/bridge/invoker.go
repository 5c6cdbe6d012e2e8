package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/forgeops/repomigrate/internal/execshell"
	"github.com/forgeops/repomigrate/internal/regions"
	"github.com/forgeops/repomigrate/internal/registry"
)

const (
	bridgeConfigEnvironmentKeyConstant     = "REPOBRIDGE_CONFIG"
	bridgeBaseURLEnvironmentKeyConstant    = "REPOBRIDGE_BASEURL"
	bridgeCAEnvironmentKeyConstant         = "REPOBRIDGE_CA"
	bridgeCertEnvironmentKeyConstant       = "REPOBRIDGE_CERT"
	bridgeKeyEnvironmentKeyConstant        = "REPOBRIDGE_KEY"
	serviceUserEnvironmentKeyConstant      = "USER"
	bridgeEnvironmentConfigValueConstant   = ":environment:"
	protocolExtAllowOptionConstant         = "protocol.ext.allow=always"
	gitConfigOptionFlagConstant            = "-c"
	gitPushSubcommandConstant              = "push"
	gitCloneSubcommandConstant             = "clone"
	gitPullSubcommandConstant              = "pull"
	gitConfigSubcommandConstant            = "config"
	gitForEachRefSubcommandConstant        = "for-each-ref"
	gitForEachRefFormatFlagConstant        = "--format=%(refname:short)"
	extraMetadataFlagConstant              = "--extra"
	extraUsernameKeyConstant               = "username"
	extraRepositoryKindKeyConstant         = "repotype"
	extraProjectNameKeyConstant            = "project_name"
	extraProjectUserKeyConstant            = "project_user"
	extraProjectNamespaceKeyConstant       = "project_namespace"
	pushTransportTemplateConstant          = "ext::%s %s %s"
	cloneTransportTemplateConstant         = "ext::%s %s"
	transportArgumentSeparatorConstant     = " "
	transferErrorTemplateConstant          = "%s of %s repository for %s failed: %v"
	destinationExistsMessageConstant       = "clone destination already exists"
	loggerMissingMessageConstant           = "logger not configured"
	gitExecutorMissingMessageConstant      = "git executor not configured"
	credentialSourceMissingMessageConstant = "credential source not configured"
	helperBinaryMissingMessageConstant     = "bridge helper binary not configured"
	pushOperationNameConstant              = "push"
	cloneOperationNameConstant             = "clone"
	pullOperationNameConstant              = "pull"
	configureOperationNameConstant         = "configure"
	mirrorURLConfigKeyConstant             = "repospanner.url"
	mirrorCertConfigKeyConstant            = "repospanner.cert"
	mirrorKeyConfigKeyConstant             = "repospanner.key"
	mirrorCAConfigKeyConstant              = "repospanner.cacert"
	mirrorEnabledConfigKeyConstant         = "repospanner.enabled"
	mirrorEnabledConfigValueConstant       = "true"
	logFieldProjectConstant                = "project"
	logFieldRepositoryKindConstant         = "repository_kind"
	logFieldRegionConstant                 = "region"
	logFieldReferenceCountConstant         = "reference_count"
)

var (
	errLoggerMissing           = errors.New(loggerMissingMessageConstant)
	errGitExecutorMissing      = errors.New(gitExecutorMissingMessageConstant)
	errCredentialSourceMissing = errors.New(credentialSourceMissingMessageConstant)
	errHelperBinaryMissing     = errors.New(helperBinaryMissingMessageConstant)
	errDestinationExists       = errors.New(destinationExistsMessageConstant)
)

// TransferError reports a failed bridge transfer operation.
type TransferError struct {
	Operation      string
	ProjectName    string
	RepositoryKind registry.RepositoryKind
	Cause          error
}

// Error describes the failed transfer.
func (failure TransferError) Error() string {
	return fmt.Sprintf(transferErrorTemplateConstant, failure.Operation, failure.RepositoryKind, failure.ProjectName, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure TransferError) Unwrap() error {
	return failure.Cause
}

// GitExecutor runs git commands on behalf of the invoker.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// CredentialSource resolves per-operation repository URLs and TLS material.
type CredentialSource interface {
	Resolve(project registry.Project, kind registry.RepositoryKind, region string) (string, regions.RegionInfo, error)
}

// InvokerDependencies describes required collaborators for the invoker.
type InvokerDependencies struct {
	Logger           *zap.Logger
	GitExecutor      GitExecutor
	CredentialSource CredentialSource
	HelperBinaryPath string
	ServiceUser      string
	ActingUsername   string
}

// PushRequest describes one push of a local repository through the bridge.
type PushRequest struct {
	Project        registry.Project
	RepositoryKind registry.RepositoryKind
	Region         string
	RepositoryPath string
	References     []string
}

// CloneRequest describes one clone of a remote repository through the bridge.
type CloneRequest struct {
	Project         registry.Project
	RepositoryKind  registry.RepositoryKind
	Region          string
	DestinationPath string
}

// MirrorRequest describes an operation against an existing local mirror.
type MirrorRequest struct {
	Project        registry.Project
	RepositoryKind registry.RepositoryKind
	Region         string
	MirrorPath     string
}

// Invoker constructs and runs bridge transfer commands. Credentials are
// resolved fresh for every operation and injected through the child
// environment; the invoker never retries on its own.
type Invoker struct {
	logger           *zap.Logger
	gitExecutor      GitExecutor
	credentialSource CredentialSource
	helperBinaryPath string
	serviceUser      string
	actingUsername   string
}

// NewInvoker validates dependencies and constructs an Invoker.
func NewInvoker(dependencies InvokerDependencies) (*Invoker, error) {
	if dependencies.Logger == nil {
		return nil, errLoggerMissing
	}
	if dependencies.GitExecutor == nil {
		return nil, errGitExecutorMissing
	}
	if dependencies.CredentialSource == nil {
		return nil, errCredentialSourceMissing
	}
	if len(strings.TrimSpace(dependencies.HelperBinaryPath)) == 0 {
		return nil, errHelperBinaryMissing
	}

	invoker := &Invoker{
		logger:           dependencies.Logger,
		gitExecutor:      dependencies.GitExecutor,
		credentialSource: dependencies.CredentialSource,
		helperBinaryPath: dependencies.HelperBinaryPath,
		serviceUser:      dependencies.ServiceUser,
		actingUsername:   dependencies.ActingUsername,
	}

	return invoker, nil
}

// Push transfers every listed local reference through the bridge helper in one
// git invocation.
func (invoker *Invoker) Push(executionContext context.Context, request PushRequest) error {
	_, regionInfo, resolveError := invoker.credentialSource.Resolve(request.Project, request.RepositoryKind, request.Region)
	if resolveError != nil {
		return resolveError
	}

	invoker.logger.Info(
		"Pushing repository through bridge",
		zap.String(logFieldProjectConstant, request.Project.FullName()),
		zap.String(logFieldRepositoryKindConstant, string(request.RepositoryKind)),
		zap.String(logFieldRegionConstant, request.Region),
		zap.Int(logFieldReferenceCountConstant, len(request.References)),
	)

	transport := fmt.Sprintf(
		pushTransportTemplateConstant,
		invoker.helperBinaryPath,
		strings.Join(invoker.metadataArguments(request.Project, request.RepositoryKind), transportArgumentSeparatorConstant),
		request.Project.RemoteRepositoryName(request.RepositoryKind),
	)

	pushArguments := []string{gitConfigOptionFlagConstant, protocolExtAllowOptionConstant, gitPushSubcommandConstant, transport}
	pushArguments = append(pushArguments, request.References...)

	_, executionError := invoker.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            pushArguments,
		WorkingDirectory:     request.RepositoryPath,
		EnvironmentVariables: invoker.bridgeEnvironment(regionInfo),
	})
	if executionError != nil {
		return TransferError{
			Operation:      pushOperationNameConstant,
			ProjectName:    request.Project.FullName(),
			RepositoryKind: request.RepositoryKind,
			Cause:          executionError,
		}
	}

	return nil
}

// Clone creates a complete working clone of the remote repository at the
// destination path, which must not already exist.
func (invoker *Invoker) Clone(executionContext context.Context, request CloneRequest) error {
	if _, statError := os.Stat(request.DestinationPath); statError == nil {
		return TransferError{
			Operation:      cloneOperationNameConstant,
			ProjectName:    request.Project.FullName(),
			RepositoryKind: request.RepositoryKind,
			Cause:          errDestinationExists,
		}
	}

	_, regionInfo, resolveError := invoker.credentialSource.Resolve(request.Project, request.RepositoryKind, request.Region)
	if resolveError != nil {
		return resolveError
	}

	transport := fmt.Sprintf(
		cloneTransportTemplateConstant,
		invoker.helperBinaryPath,
		request.Project.RemoteRepositoryName(request.RepositoryKind),
	)

	_, executionError := invoker.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{gitConfigOptionFlagConstant, protocolExtAllowOptionConstant, gitCloneSubcommandConstant, transport, request.DestinationPath},
		EnvironmentVariables: invoker.bridgeEnvironment(regionInfo),
	})
	if executionError != nil {
		return TransferError{
			Operation:      cloneOperationNameConstant,
			ProjectName:    request.Project.FullName(),
			RepositoryKind: request.RepositoryKind,
			Cause:          executionError,
		}
	}

	return nil
}

// Pull performs an incremental update of an existing mirror.
func (invoker *Invoker) Pull(executionContext context.Context, request MirrorRequest) error {
	_, regionInfo, resolveError := invoker.credentialSource.Resolve(request.Project, request.RepositoryKind, request.Region)
	if resolveError != nil {
		return resolveError
	}

	_, executionError := invoker.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{gitPullSubcommandConstant},
		WorkingDirectory:     request.MirrorPath,
		EnvironmentVariables: invoker.bridgeEnvironment(regionInfo),
	})
	if executionError != nil {
		return TransferError{
			Operation:      pullOperationNameConstant,
			ProjectName:    request.Project.FullName(),
			RepositoryKind: request.RepositoryKind,
			Cause:          executionError,
		}
	}

	return nil
}

// ConfigureMirror writes the distributed-service connection settings into the
// mirror's git configuration so readers can reach the service directly.
func (invoker *Invoker) ConfigureMirror(executionContext context.Context, request MirrorRequest) error {
	repositoryURL, regionInfo, resolveError := invoker.credentialSource.Resolve(request.Project, request.RepositoryKind, request.Region)
	if resolveError != nil {
		return resolveError
	}

	configurationEntries := [][2]string{
		{mirrorURLConfigKeyConstant, repositoryURL},
		{mirrorCertConfigKeyConstant, regionInfo.PushCertificatePath},
		{mirrorKeyConfigKeyConstant, regionInfo.PushKeyPath},
		{mirrorCAConfigKeyConstant, regionInfo.CACertificatePath},
		{mirrorEnabledConfigKeyConstant, mirrorEnabledConfigValueConstant},
	}

	for _, configurationEntry := range configurationEntries {
		_, executionError := invoker.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:        []string{gitConfigSubcommandConstant, configurationEntry[0], configurationEntry[1]},
			WorkingDirectory: request.MirrorPath,
		})
		if executionError != nil {
			return TransferError{
				Operation:      configureOperationNameConstant,
				ProjectName:    request.Project.FullName(),
				RepositoryKind: request.RepositoryKind,
				Cause:          executionError,
			}
		}
	}

	return nil
}

// ListLocalReferences returns the short names of every reference in the local
// repository, in git's listing order.
func (invoker *Invoker) ListLocalReferences(executionContext context.Context, repositoryPath string) ([]string, error) {
	executionResult, executionError := invoker.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitForEachRefSubcommandConstant, gitForEachRefFormatFlagConstant},
		WorkingDirectory: repositoryPath,
	})
	if executionError != nil {
		return nil, executionError
	}

	referenceNames := []string{}
	for _, outputLine := range strings.Split(executionResult.StandardOutput, "\n") {
		trimmedLine := strings.TrimSpace(outputLine)
		if len(trimmedLine) == 0 {
			continue
		}
		referenceNames = append(referenceNames, trimmedLine)
	}

	return referenceNames, nil
}

// metadataArguments builds the repeated --extra key/value pairs the helper
// expects. Fork owner and namespace are always present, empty when unset.
func (invoker *Invoker) metadataArguments(project registry.Project, kind registry.RepositoryKind) []string {
	return []string{
		extraMetadataFlagConstant, extraUsernameKeyConstant, invoker.actingUsername,
		extraMetadataFlagConstant, extraRepositoryKindKeyConstant, string(kind),
		extraMetadataFlagConstant, extraProjectNameKeyConstant, project.Name,
		extraMetadataFlagConstant, extraProjectUserKeyConstant, project.ForkOwner,
		extraMetadataFlagConstant, extraProjectNamespaceKeyConstant, project.Namespace,
	}
}

func (invoker *Invoker) bridgeEnvironment(regionInfo regions.RegionInfo) map[string]string {
	return map[string]string{
		serviceUserEnvironmentKeyConstant:    invoker.serviceUser,
		bridgeConfigEnvironmentKeyConstant:   bridgeEnvironmentConfigValueConstant,
		bridgeBaseURLEnvironmentKeyConstant:  regionInfo.BaseURL,
		bridgeCAEnvironmentKeyConstant:       regionInfo.CACertificatePath,
		bridgeCertEnvironmentKeyConstant:     regionInfo.PushCertificatePath,
		bridgeKeyEnvironmentKeyConstant:      regionInfo.PushKeyPath,
	}
}
