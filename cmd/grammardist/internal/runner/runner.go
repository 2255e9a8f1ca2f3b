// Package runner locates the java executable and runs the parser generator
// as a subprocess.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hairyhenderson/go-which"

	"github.com/albertocavalcante/grammardist/internal/fsutil"
	"github.com/albertocavalcante/grammardist/internal/log"
)

// stderrTailLines is how much generator stderr an ExitError carries.
const stderrTailLines = 20

var (
	// ErrJavaNotFound is returned when no java executable can be located.
	ErrJavaNotFound = errors.New("java executable not found")

	// ErrTimeout is returned when the generator exceeds its timeout.
	ErrTimeout = errors.New("generator timed out")
)

// ExitError is returned when the generator exits with a non-zero status.
type ExitError struct {
	Command  []string
	ExitCode int
	Stderr   string // last lines of stderr
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", strings.Join(e.Command, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ":\n" + e.Stderr
	}
	return msg
}

// Request describes one generator invocation.
type Request struct {
	// Jar is the generator jar.
	Jar string

	// Language is the generator's -Dlanguage value.
	Language string

	// OutDir receives the generated sources.
	OutDir string

	// Sources are absolute grammar file paths.
	Sources []string
}

// Runner handles finding java and executing the generator.
type Runner struct {
	java      string // configured java path; looked up when empty
	maxHeap   string
	timeout   time.Duration
	lookupEnv func(string) (string, bool)
	which     func(string) string
}

// Option configures a Runner.
type Option func(*Runner)

// WithJava sets the java executable, skipping lookup.
func WithJava(path string) Option {
	return func(r *Runner) {
		r.java = path
	}
}

// WithMaxHeap sets the JVM -Xmx value.
func WithMaxHeap(heap string) Option {
	return func(r *Runner) {
		r.maxHeap = heap
	}
}

// WithTimeout bounds each invocation. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLookupEnv sets the environment lookup used for JAVA_HOME.
// Used primarily for testing.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Runner) {
		r.lookupEnv = fn
	}
}

// WithWhich sets the PATH lookup.
// Used primarily for testing.
func WithWhich(fn func(string) string) Option {
	return func(r *Runner) {
		r.which = fn
	}
}

// New creates a new Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{
		maxHeap:   "2g",
		lookupEnv: os.LookupEnv,
		which: func(cmd string) string {
			return which.Which(cmd)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindJava locates the java executable using the following search order:
// 1. The configured path
// 2. $JAVA_HOME/bin/java
// 3. PATH lookup
func (r *Runner) FindJava() (string, error) {
	// 1. Configured
	if r.java != "" {
		if fsutil.FileExists(r.java) {
			return r.java, nil
		}
		if path := r.which(r.java); path != "" {
			return path, nil
		}
		return "", fmt.Errorf("%w: configured java %q does not exist", ErrJavaNotFound, r.java)
	}

	// 2. JAVA_HOME
	if home, ok := r.lookupEnv("JAVA_HOME"); ok && home != "" {
		candidate := filepath.Join(home, "bin", javaBinary())
		if fsutil.FileExists(candidate) {
			return candidate, nil
		}
		log.Debug("JAVA_HOME does not contain java", "java_home", home)
	}

	// 3. PATH
	if path := r.which("java"); path != "" {
		return path, nil
	}

	return "", ErrJavaNotFound
}

func javaBinary() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

// Args returns the generator arguments that follow the java executable.
func (r *Runner) Args(req Request) []string {
	args := make([]string, 0, 9+len(req.Sources))
	if r.maxHeap != "" {
		args = append(args, "-Xmx"+r.maxHeap)
	}
	args = append(args,
		"-jar", req.Jar,
		"-Dlanguage="+req.Language,
		"-visitor",
		"-listener",
		"-o", req.OutDir,
	)
	return append(args, req.Sources...)
}

// Generate runs the generator and waits for it to finish. A non-zero exit is
// reported as *ExitError and an expired timeout as ErrTimeout.
func (r *Runner) Generate(ctx context.Context, req Request) error {
	java, err := r.FindJava()
	if err != nil {
		return err
	}
	return r.Run(ctx, java, r.Args(req)...)
}

// Run executes name with args under the runner's timeout.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	logger := log.FromContext(ctx).With("component", "runner")
	command := append([]string{name}, args...)
	logger.Log(ctx, log.LevelTrace, "running command", "argv", command)

	start := time.Now()
	err := cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		logger.Debug("command output", "stdout", out)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, filepath.Base(name), r.timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{
				Command:  command,
				ExitCode: exitErr.ExitCode(),
				Stderr:   tail(stderr.String(), stderrTailLines),
			}
		}
		return fmt.Errorf("failed to run %s: %w", name, err)
	}

	if warn := strings.TrimSpace(stderr.String()); warn != "" {
		logger.Warn("generator reported warnings", "stderr", tail(warn, stderrTailLines))
	}
	logger.Debug("command finished", "command", filepath.Base(name), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
