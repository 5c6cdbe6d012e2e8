package execshell

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "logger not configured"
	commandRunnerNotConfiguredMessageConstant = "command runner not configured"
	commandFailedErrorTemplateConstant        = "%s exited with code %d%s"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %v"
	standardErrorDetailTemplateConstant       = ": %s"
	logFieldCommandNameConstant               = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
)

// Initialization failure sentinels surfaced by NewShellExecutor.
var (
	ErrLoggerNotConfigured        = errors.New(loggerNotConfiguredMessageConstant)
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// CommandName identifies a supported executable.
type CommandName string

// Supported executable enumerations.
const (
	CommandGit CommandName = "git"
)

// CommandDetails describes a single command invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand combines a CommandName with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outcome of a completed command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands and reports their results.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a command that ran to completion with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the command failure including captured standard error output.
func (failure CommandFailedError) Error() string {
	standardErrorDetail := ""
	if len(failure.Result.StandardError) > 0 {
		standardErrorDetail = fmt.Sprintf(standardErrorDetailTemplateConstant, failure.Result.StandardError)
	}
	return fmt.Sprintf(commandFailedErrorTemplateConstant, failure.Command.Name, failure.Result.ExitCode, standardErrorDetail)
}

// CommandExecutionError reports a command that could not be executed at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, failure.Command.Name, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// ShellExecutor coordinates command execution with structured logging.
type ShellExecutor struct {
	logger               *zap.Logger
	commandRunner        CommandRunner
	messageFormatter     CommandMessageFormatter
	humanReadableLogging bool
}

// NewShellExecutor validates dependencies and constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	executor := &ShellExecutor{
		logger:               logger,
		commandRunner:        commandRunner,
		messageFormatter:     CommandMessageFormatter{},
		humanReadableLogging: humanReadableLogging,
	}

	return executor, nil
}

// ExecuteGit runs git with the provided invocation details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	gitCommand := ShellCommand{Name: CommandGit, Details: details}
	return executor.Execute(executionContext, gitCommand)
}

// Execute runs the supplied command, logging lifecycle events and translating failures into typed errors.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logCommandEvent(executor.messageFormatter.BuildStartedMessage(command), command, nil)

	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	if runError != nil {
		executionFailure := CommandExecutionError{Command: command, Cause: runError}
		executor.logCommandFailure(executor.messageFormatter.BuildExecutionFailureMessage(command, runError), command, nil)
		return ExecutionResult{}, executionFailure
	}

	if executionResult.ExitCode != 0 {
		commandFailure := CommandFailedError{Command: command, Result: executionResult}
		executor.logCommandFailure(executor.messageFormatter.BuildFailureMessage(command, executionResult), command, &executionResult)
		return ExecutionResult{}, commandFailure
	}

	executor.logCommandEvent(executor.messageFormatter.BuildCompletedMessage(command), command, &executionResult)

	return executionResult, nil
}

func (executor *ShellExecutor) logCommandEvent(message string, command ShellCommand, result *ExecutionResult) {
	if executor.humanReadableLogging {
		executor.logger.Info(message)
		return
	}
	executor.logger.Info(message, executor.commandFields(command, result)...)
}

func (executor *ShellExecutor) logCommandFailure(message string, command ShellCommand, result *ExecutionResult) {
	if executor.humanReadableLogging {
		executor.logger.Warn(message)
		return
	}
	executor.logger.Warn(message, executor.commandFields(command, result)...)
}

func (executor *ShellExecutor) commandFields(command ShellCommand, result *ExecutionResult) []zap.Field {
	fields := []zap.Field{
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
	}
	if len(command.Details.WorkingDirectory) > 0 {
		fields = append(fields, zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory))
	}
	if result != nil {
		fields = append(fields, zap.Int(logFieldExitCodeConstant, result.ExitCode))
	}
	return fields
}
