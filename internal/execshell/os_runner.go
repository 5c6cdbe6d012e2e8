package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

const environmentAssignmentSeparatorConstant = "="

// OSCommandRunner spawns git processes through os/exec.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run spawns the command and captures both output streams. A non-zero exit is
// reported through ExecutionResult.ExitCode, not as an error; errors are
// reserved for commands that never ran at all.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := exec.CommandContext(executionContext, string(command.Name), command.Details.Arguments...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		executable.Env = mergedEnvironment(command.Details.EnvironmentVariables)
	}

	var outputBuffer bytes.Buffer
	var errorBuffer bytes.Buffer
	executable.Stdout = &outputBuffer
	executable.Stderr = &errorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: outputBuffer.String(),
				StandardError:  errorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: outputBuffer.String(),
		StandardError:  errorBuffer.String(),
		ExitCode:       0,
	}, nil
}

// mergedEnvironment appends the injected variables after the inherited process
// environment; os/exec keeps the last value for a duplicated key, so bridge
// credentials override ambient variables of the same name.
func mergedEnvironment(injectedVariables map[string]string) []string {
	merged := append([]string{}, os.Environ()...)
	for variableName, variableValue := range injectedVariables {
		merged = append(merged, variableName+environmentAssignmentSeparatorConstant+variableValue)
	}
	return merged
}
