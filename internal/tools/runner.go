package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrToolUnavailable is returned when a configured binary cannot be found.
var ErrToolUnavailable = errors.New("external tool unavailable")

// RunOptions configures a single tool invocation.
type RunOptions struct {
	// Quiet suppresses debug logging of the command line.
	Quiet bool
	// Dir is the working directory; empty means the current one.
	Dir string
}

// Runner invokes external programs.
type Runner interface {
	// Run executes name with args and returns its standard output.
	Run(ctx context.Context, opts RunOptions, name string, args ...string) ([]byte, error)
}

// CommandError describes a failed tool invocation.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Command, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs tools as subprocesses.
type ExecRunner struct {
	logger *logrus.Logger
}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner(logger *logrus.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes the command and captures stdout and stderr.
func (r *ExecRunner) Run(ctx context.Context, opts RunOptions, name string, args ...string) ([]byte, error) {
	if !opts.Quiet && r.logger != nil {
		r.logger.Debugf("exec: %s %s", name, strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cerr := &CommandError{
			Command:  name,
			Args:     args,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		if errors.Is(err, exec.ErrNotFound) {
			cerr.Err = fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
		return stdout.Bytes(), cerr
	}

	return stdout.Bytes(), nil
}

// Check verifies that all named binaries can be resolved and reports every
// missing one at once.
func Check(names ...string) error {
	var missing []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not found in PATH", ErrToolUnavailable, strings.Join(missing, ", "))
	}
	return nil
}

// Lookup returns the resolved path of a binary, or an empty string.
func Lookup(name string) string {
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
