package rig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// DefaultToolName is looked up on PATH when no executable is configured
const DefaultToolName = "blender"

// ConfigError reports a merge tool that cannot be used as configured
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ToolError reports a failed merge tool run: a nonzero exit or a launch failure
type ToolError struct {
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to execute merge tool: %v", e.Err)
	}
	return fmt.Sprintf("merge tool failed with exit code: %d", e.ExitCode)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// MergeTool runs the external mesh-merge tool
type MergeTool struct {
	Executable string
	Script     string
	WorkDir    string
}

// FindTool returns the absolute path of the default merge tool on PATH
func FindTool() (string, error) {
	path, err := exec.LookPath(DefaultToolName)
	if err != nil {
		return "", &ConfigError{Field: "executable", Reason: fmt.Sprintf("%s not found on PATH", DefaultToolName)}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// Validate checks that the executable and script exist on disk
func (t *MergeTool) Validate() error {
	if t.Executable == "" {
		return &ConfigError{Field: "executable", Reason: "no merge tool executable configured"}
	}
	info, err := os.Stat(t.Executable)
	if err != nil {
		return &ConfigError{Field: "executable", Reason: fmt.Sprintf("not found: %s", t.Executable)}
	}
	if info.IsDir() {
		return &ConfigError{Field: "executable", Reason: fmt.Sprintf("is a directory: %s", t.Executable)}
	}
	if t.Script == "" {
		return &ConfigError{Field: "script", Reason: "no merge script configured"}
	}
	if _, err := os.Stat(t.Script); err != nil {
		return &ConfigError{Field: "script", Reason: fmt.Sprintf("not found: %s", t.Script)}
	}
	return nil
}

// Args builds the headless command line for one merge
func (t *MergeTool) Args(headAsset, bodyAsset, interchange string) []string {
	return []string{
		"--background",
		"--python", t.Script,
		"--",
		headAsset, bodyAsset, interchange,
	}
}

// Run invokes the tool and blocks until it exits. Both output streams are
// drained concurrently and logged line by line.
func (t *MergeTool) Run(headAsset, bodyAsset, interchange string) error {
	if err := t.Validate(); err != nil {
		return err
	}

	paths := []*string{&headAsset, &bodyAsset, &interchange}
	for _, p := range paths {
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}

	cmd := exec.Command(t.Executable, t.Args(headAsset, bodyAsset, interchange)...)
	cmd.Dir = t.WorkDir
	log.Printf("[TOOL] Executing %s %v", t.Executable, cmd.Args[1:])

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ToolError{ExitCode: -1, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ToolError{ExitCode: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &ToolError{ExitCode: -1, Err: err}
	}

	var g errgroup.Group
	g.Go(func() error { return drain(stdout, "[TOOL]") })
	g.Go(func() error { return drain(stderr, "[TOOL] error:") })
	drainErr := g.Wait()

	waitErr := cmd.Wait()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ToolError{ExitCode: exitErr.ExitCode()}
		}
		return &ToolError{ExitCode: -1, Err: waitErr}
	}
	if drainErr != nil {
		log.Printf("[TOOL] Warning: reading tool output: %v", drainErr)
	}

	log.Println("[TOOL] Merge tool finished successfully")
	return nil
}

// TestLaunch starts the executable without arguments and does not wait for it
func (t *MergeTool) TestLaunch() error {
	if t.Executable == "" {
		return &ConfigError{Field: "executable", Reason: "no merge tool executable configured"}
	}
	cmd := exec.Command(t.Executable)
	if err := cmd.Start(); err != nil {
		return &ToolError{ExitCode: -1, Err: err}
	}
	log.Printf("[TOOL] Launched %s (pid %d)", t.Executable, cmd.Process.Pid)
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

func drain(r io.Reader, prefix string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			log.Printf("%s %s", prefix, line)
		}
	}
	if err := scanner.Err(); err != nil {
		// the tool blocks on a full pipe until it is read to EOF
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}
