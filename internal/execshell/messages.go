package execshell

import (
	"fmt"
	"strings"
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
)

const (
	gitConfigOptionFlagConstant          = "-c"
	gitPushSubcommandNameConstant        = "push"
	gitCloneSubcommandNameConstant       = "clone"
	gitPullSubcommandNameConstant        = "pull"
	gitForEachRefSubcommandNameConstant  = "for-each-ref"
	gitConfigSubcommandNameConstant      = "config"
	bridgeTransportPrefixConstant        = "ext::"
	bridgeTransportLabelConstant         = "the bridge transport"
	referenceCountSingularLabelConstant  = "%d reference"
	referenceCountPluralLabelConstant    = "%d references"
	gitPushStartTemplateConstant         = "Pushing %s through %s from %s"
	gitPushSuccessTemplateConstant       = "Pushed %s through %s from %s"
	gitPushFailureTemplateConstant       = "Failed to push %s through %s from %s (exit code %d%s)"
	gitCloneStartTemplateConstant        = "Cloning through %s into %s"
	gitCloneSuccessTemplateConstant      = "Cloned through %s into %s"
	gitCloneFailureTemplateConstant      = "Failed to clone through %s into %s (exit code %d%s)"
	gitPullStartTemplateConstant         = "Updating mirror in %s"
	gitPullSuccessTemplateConstant       = "Updated mirror in %s"
	gitPullFailureTemplateConstant       = "Failed to update mirror in %s (exit code %d%s)"
	gitForEachRefStartTemplateConstant   = "Listing references in %s"
	gitForEachRefSuccessTemplateConstant = "Listed references in %s"
	gitForEachRefFailureTemplateConstant = "Failed to list references in %s (exit code %d%s)"
	gitConfigStartTemplateConstant       = "Setting %s in %s"
	gitConfigSuccessTemplateConstant     = "Set %s in %s"
	gitConfigFailureTemplateConstant     = "Failed to set %s in %s (exit code %d%s)"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

// CommandMessageFormatter renders human-oriented lifecycle messages for shell commands.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command that is about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.describe(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildCompletedMessage describes a command that finished successfully.
func (formatter CommandMessageFormatter) BuildCompletedMessage(command ShellCommand) string {
	return formatter.describe(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage describes a command that exited non-zero.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.describe(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage describes a command that could not be executed.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.describe(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) describe(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	subcommand, remainingArguments := splitGitSubcommand(command.Details.Arguments)
	switch subcommand {
	case gitPushSubcommandNameConstant:
		return formatter.describeGitPushMessage(command, remainingArguments, result, failure, stage)
	case gitCloneSubcommandNameConstant:
		return formatter.describeGitCloneMessage(command, remainingArguments, result, failure, stage)
	case gitPullSubcommandNameConstant:
		return formatter.describeSimpleWorkingDirectoryMessage(command, result, failure, stage, gitPullStartTemplateConstant, gitPullSuccessTemplateConstant, gitPullFailureTemplateConstant)
	case gitForEachRefSubcommandNameConstant:
		return formatter.describeSimpleWorkingDirectoryMessage(command, result, failure, stage, gitForEachRefStartTemplateConstant, gitForEachRefSuccessTemplateConstant, gitForEachRefFailureTemplateConstant)
	case gitConfigSubcommandNameConstant:
		return formatter.describeGitConfigMessage(command, remainingArguments, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitPushMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	transportLabel := describeTransport(arguments)
	referenceLabel := describeReferenceCount(countReferenceArguments(arguments))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitPushStartTemplateConstant, referenceLabel, transportLabel, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitPushSuccessTemplateConstant, referenceLabel, transportLabel, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitPushFailureTemplateConstant, referenceLabel, transportLabel, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitCloneMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	transportLabel := describeTransport(arguments)
	destination := formatter.ensureValue(lastNonFlagArgument(arguments))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitCloneStartTemplateConstant, transportLabel, destination)
	case messageStageSuccess:
		return fmt.Sprintf(gitCloneSuccessTemplateConstant, transportLabel, destination)
	case messageStageFailure:
		return fmt.Sprintf(gitCloneFailureTemplateConstant, transportLabel, destination, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitConfigMessage(command ShellCommand, arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	configurationKey := formatter.ensureValue(firstNonFlagArgument(arguments))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitConfigStartTemplateConstant, configurationKey, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitConfigSuccessTemplateConstant, configurationKey, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitConfigFailureTemplateConstant, configurationKey, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeSimpleWorkingDirectoryMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage, startTemplate string, successTemplate string, failureTemplate string) string {
	workingDirectory := formatter.describeWorkingDirectory(command)

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(startTemplate, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(successTemplate, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(failureTemplate, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = fmt.Sprintf("%s %s", commandLabel, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	workingDirectorySuffix := formatter.formatWorkingDirectorySuffix(command)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, workingDirectorySuffix)
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

// splitGitSubcommand locates the git subcommand, skipping any leading
// "-c key=value" configuration pairs, and returns the arguments that follow it.
func splitGitSubcommand(arguments []string) (string, []string) {
	for index := 0; index < len(arguments); index++ {
		argument := strings.TrimSpace(arguments[index])
		if argument == gitConfigOptionFlagConstant {
			index++
			continue
		}
		if strings.HasPrefix(argument, "-") {
			continue
		}
		return argument, arguments[index+1:]
	}
	return emptyStringConstant, nil
}

func describeTransport(arguments []string) string {
	for _, argument := range arguments {
		if strings.HasPrefix(strings.TrimSpace(argument), bridgeTransportPrefixConstant) {
			return bridgeTransportLabelConstant
		}
	}
	return formatRemoteLabel(firstNonFlagArgument(arguments))
}

func formatRemoteLabel(remote string) string {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmedRemote
}

func countReferenceArguments(arguments []string) int {
	referenceCount := 0
	remoteSeen := false
	for _, argument := range arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, "-") {
			continue
		}
		if !remoteSeen {
			remoteSeen = true
			continue
		}
		referenceCount++
	}
	return referenceCount
}

func describeReferenceCount(referenceCount int) string {
	if referenceCount == 1 {
		return fmt.Sprintf(referenceCountSingularLabelConstant, referenceCount)
	}
	return fmt.Sprintf(referenceCountPluralLabelConstant, referenceCount)
}

func firstNonFlagArgument(arguments []string) string {
	for _, argument := range arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, "-") {
			continue
		}
		return trimmed
	}
	return emptyStringConstant
}

func lastNonFlagArgument(arguments []string) string {
	for index := len(arguments) - 1; index >= 0; index-- {
		trimmed := strings.TrimSpace(arguments[index])
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, "-") {
			continue
		}
		return trimmed
	}
	return emptyStringConstant
}
