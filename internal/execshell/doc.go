// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging via ShellExecutor, exposes OSCommandRunner for
// default process execution, and defines the abstractions repomigrate uses to
// drive git transfers through the bridge helper in a testable manner.
package execshell
