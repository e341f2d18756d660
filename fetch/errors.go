package fetch

import (
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/go/exec"
)

// mapExecError converts a failed git invocation into a platform error.
//
// An *exec.ExecError with a positive exit code means git ran and refused, and
// maps to rejected with the command and stderr attached. Anything else (git
// missing from PATH, the process killed by context cancellation) maps to
// invocation.
func mapExecError(err error, invocation, rejected errors.ErrorCode, msg string) error {
	var execErr *exec.ExecError
	if !errors.As(err, &execErr) {
		return errors.Wrap(err, invocation, msg)
	}

	ctx := map[string]interface{}{
		"command": strings.Join(execErr.Command, " "),
	}

	if execErr.ExitCode <= 0 {
		return errors.WrapWithContext(err, invocation, msg, ctx)
	}

	ctx["exit_code"] = execErr.ExitCode
	if stderr := strings.TrimSpace(execErr.Stderr); stderr != "" {
		ctx["stderr"] = stderr
	}
	return errors.WrapWithContext(err, rejected, msg, ctx)
}

// stderrOf returns the trimmed stderr of a failed invocation, or the error text.
func stderrOf(err error) string {
	var execErr *exec.ExecError
	if errors.As(err, &execErr) {
		if stderr := strings.TrimSpace(execErr.Stderr); stderr != "" {
			return stderr
		}
	}
	return err.Error()
}
