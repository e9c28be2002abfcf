// Package toolchain turns external build tool invocations into phase
// actions. Exit status maps directly to step failure; the produced error
// carries the tool's exit detail for build reports.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/kilnbuild/kiln/pkgs/phase"
)

// Command returns a phase action that runs bin with fixed args inside the
// working tree.
func Command(bin string, args ...string) phase.Action {
	return func(c *phase.Context) error {
		return Run(c, bin, args)
	}
}

// CommandFunc returns a phase action whose argument list is derived from
// the build context (flags, input paths, output paths).
func CommandFunc(bin string, argv func(c *phase.Context) []string) phase.Action {
	return func(c *phase.Context) error {
		return Run(c, bin, argv(c))
	}
}

// Script returns a phase action running an inline shell script. Handy for
// glue steps that would not warrant a dedicated tool.
func Script(script string) phase.Action {
	return func(c *phase.Context) error {
		return Run(c, "sh", []string{"-c", script})
	}
}

// Run invokes bin args... in the working tree with the context's merged
// environment, streaming output to the context writers. A nonzero exit
// status is returned as a *ToolError.
func Run(c *phase.Context, bin string, args []string) error {
	cctx := c.Ctx
	if cctx == nil {
		cctx = context.Background()
	}
	cmd := exec.CommandContext(cctx, bin, args...)
	cmd.Dir = c.WorkDir
	cmd.Env = Environ(c)

	stdout := c.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := c.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	var tail bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, &tail)

	if err := cmd.Run(); err != nil {
		return &ToolError{
			Bin:    bin,
			Args:   args,
			Detail: lastLine(tail.Bytes()),
			Err:    err,
		}
	}
	return nil
}

// ToolError reports a failed tool invocation.
type ToolError struct {
	Bin    string
	Args   []string
	Detail string // last stderr line, if any
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("toolchain: %s: %v", e.Bin, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the tool's exit code, or -1 if it did not exit normally.
func (e *ToolError) ExitCode() int {
	var xe *exec.ExitError
	if errors.As(e.Err, &xe) {
		return xe.ExitCode()
	}
	return -1
}

func lastLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// -----------------------------------------------------------------------------

// Environ builds the subprocess environment for a phase: the process
// environment with every resolved input injected, so compilers and
// pkg-config find dependency artifacts without recipe-side wiring.
func Environ(c *phase.Context) []string {
	env := envMap(os.Environ())
	names := make([]string, 0, len(c.Inputs))
	for name := range c.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		UseInput(env, c.Inputs[name])
	}
	return flatten(env)
}

// UseInput injects one dependency output directory into env: header, lib,
// pkg-config and bin locations are advertised through the conventional
// variables when the corresponding subdirectory exists.
func UseInput(env map[string]string, dir string) {
	includeDir := filepath.Join(dir, "include")
	libDir := filepath.Join(dir, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")
	binDir := filepath.Join(dir, "bin")

	if dirExists(pkgconfigDir) {
		PrependPath(env, "PKG_CONFIG_PATH", pkgconfigDir)
	}
	if dirExists(dir) {
		PrependPath(env, "CMAKE_PREFIX_PATH", dir)
	}
	if dirExists(includeDir) {
		AppendFlag(env, "CPPFLAGS", "-I"+includeDir)
	}
	if dirExists(libDir) {
		AppendFlag(env, "LDFLAGS", "-L"+libDir)
	}
	if dirExists(binDir) {
		PrependPath(env, "PATH", binDir)
	}
}

// PrependPath prepends value to a list-valued variable using the platform
// path list separator.
func PrependPath(env map[string]string, key, value string) {
	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	if cur := env[key]; cur != "" {
		env[key] = value + sep + cur
	} else {
		env[key] = value
	}
}

// AppendFlag appends a space-separated flag to a variable.
func AppendFlag(env map[string]string, key, flag string) {
	if cur := env[key]; cur != "" {
		env[key] = strings.TrimSpace(cur + " " + flag)
	} else {
		env[key] = flag
	}
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func flatten(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func dirExists(dir string) bool {
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}
