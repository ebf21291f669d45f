// Package shellcmd wraps exec.Command for script-like usage.
package shellcmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// ToolError reports an external tool that was missing or exited non-zero.
// The captured combined output is kept for the log record.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Run runs the command with the given name and arguments, waits for it to
// finish, and returns a *ToolError if it fails to start or exits non-zero.
// Output is captured and logged on failure.
func Run(name string, arg ...string) error {
	return Cmd(name, arg...).Run()
}

type Command struct {
	name string
	args []string
	env  []string
}

func Cmd(name string, arg ...string) *Command {
	return &Command{
		name: name,
		args: arg,
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func (c *Command) WithEnv(kv ...string) *Command {
	c.env = append(c.env, kv...)
	return c
}

func (c *Command) Run() error {
	var output bytes.Buffer
	cmd := exec.Command(c.name, c.args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	log.Tracef("Running command: %s %v", c.name, c.args)

	err := cmd.Run()
	if err != nil {
		log.Errorf("Process '%s' with args %v failed. Command output:\n%s", c.name, c.args, output.String())
		return &ToolError{Tool: c.name, Output: output.String(), Err: err}
	}

	return nil
}

// Output runs the command and returns its stdout. Stderr is captured
// separately and included in the error on failure.
func (c *Command) Output() (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(c.name, c.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	log.Tracef("Running command: %s %v", c.name, c.args)

	err := cmd.Run()
	if err != nil {
		return "", &ToolError{Tool: c.name, Output: stderr.String(), Err: err}
	}

	return stdout.String(), nil
}
