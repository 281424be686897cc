package executor

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/harun/recondora/pkg/registry"
	"github.com/harun/recondora/pkg/sandbox"
	"github.com/rs/zerolog"
)

// DefaultLocalTimeout is the per-process deadline of local tools.
const DefaultLocalTimeout = 60 * time.Second

// targetPattern is the whole accepted alphabet for local tool targets: plain
// hostnames and IPv4 addresses, nothing a shell or an option parser could act on.
var targetPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

// ValidLocalTarget reports whether target may be passed to a local binary.
func ValidLocalTarget(target string) bool {
	return targetPattern.MatchString(target) && !strings.HasPrefix(target, "-")
}

// LocalExecutor runs local tools through a sandbox.
type LocalExecutor struct {
	sandbox sandbox.Sandbox
	timeout time.Duration
	logger  zerolog.Logger
}

// LocalOption configures a LocalExecutor.
type LocalOption func(*LocalExecutor)

// WithLocalTimeout sets the per-process timeout.
func WithLocalTimeout(d time.Duration) LocalOption {
	return func(e *LocalExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLocalLogger sets the logger.
func WithLocalLogger(logger zerolog.Logger) LocalOption {
	return func(e *LocalExecutor) { e.logger = logger }
}

// NewLocalExecutor creates a local executor on top of sb. sb must be started.
func NewLocalExecutor(sb sandbox.Sandbox, opts ...LocalOption) *LocalExecutor {
	e := &LocalExecutor{
		sandbox: sb,
		timeout: DefaultLocalTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildArgs substitutes target into every argument of the template.
func BuildArgs(template []string, target string) []string {
	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = strings.ReplaceAll(arg, registry.TargetPlaceholder, target)
	}
	return args
}

// Execute runs a local tool.
func (e *LocalExecutor) Execute(ctx context.Context, target string, spec registry.ToolSpec) Result {
	start := time.Now()
	res := e.execute(ctx, target, spec)
	res.Duration = time.Since(start)
	return res
}

func (e *LocalExecutor) execute(ctx context.Context, target string, spec registry.ToolSpec) Result {
	if spec.Local == nil {
		return Failure(spec, KindUnexpected, TagUnexpected, "tool %s has no local configuration", spec.Key)
	}

	if !ValidLocalTarget(target) {
		return Failure(spec, KindValidation, TagValidation, "Invalid target format. Only IPs and hostnames are allowed for local tools.")
	}

	command := spec.Local.Command
	out, err := e.sandbox.Execute(ctx, sandbox.ExecuteRequest{
		Command: command,
		Args:    BuildArgs(spec.Local.Args, target),
		Timeout: e.timeout,
	})

	switch {
	case errors.Is(err, sandbox.ErrCommandNotFound):
		return Failure(spec, KindExecution, TagExecution, "'%s' is not installed on the server. Install it to use %s.", command, spec.Key)
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return Failure(spec, KindTimeout, TagTimeout, "%s timed out after %s", spec.Key, e.timeout)
	case err != nil:
		e.logger.Warn().Err(err).Str("tool", spec.Key).Msg("Local tool failed to run")
		return Failure(spec, KindExecution, TagExecution, "Failed to run %s: %v", spec.Key, err)
	}

	text := combineOutput(out)

	if out.ExitCode != 0 {
		res := Failure(spec, KindExecution, TagExecution, "%s exited with status %d", spec.Key, out.ExitCode)
		if text != "" {
			res.Text += "\n" + text
		}
		return res
	}

	if text == "" {
		text = NoOutputText
	}
	if out.Truncated {
		text += "\n[output truncated]"
	}

	return Result{Tool: spec.Key, Kind: spec.Kind, Text: text}
}

// combineOutput joins stdout and stderr, decoding invalid UTF-8 best-effort.
func combineOutput(out sandbox.ExecuteResult) string {
	stdout := strings.TrimSpace(strings.ToValidUTF8(string(out.Stdout), "\uFFFD"))
	stderr := strings.TrimSpace(strings.ToValidUTF8(string(out.Stderr), "\uFFFD"))

	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
