package sandbox

import "errors"

var (
	// ErrInvalidRuntime is returned when the sandbox runtime is invalid
	ErrInvalidRuntime = errors.New("invalid sandbox runtime")

	// ErrInvalidCPULimit is returned when the CPU limit is invalid
	ErrInvalidCPULimit = errors.New("invalid CPU limit (must be >= 0)")

	// ErrInvalidMemoryLimit is returned when the memory limit is invalid
	ErrInvalidMemoryLimit = errors.New("invalid memory limit (must be >= 0)")

	// ErrInvalidProcessLimit is returned when the process limit is invalid
	ErrInvalidProcessLimit = errors.New("invalid process limit (must be >= 0)")

	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0)")

	// ErrInvalidOutputLimit is returned when the output cap is invalid
	ErrInvalidOutputLimit = errors.New("invalid output limit (must be >= 0)")

	// ErrDockerImageRequired is returned when the docker runtime has no image
	ErrDockerImageRequired = errors.New("docker image is required for docker runtime")

	// ErrSandboxNotRunning is returned when the sandbox is not running
	ErrSandboxNotRunning = errors.New("sandbox is not running")

	// ErrSandboxAlreadyRunning is returned when the sandbox is already running
	ErrSandboxAlreadyRunning = errors.New("sandbox is already running")

	// ErrEmptyCommand is returned when a request has no command
	ErrEmptyCommand = errors.New("command is required")

	// ErrCommandNotFound is returned when the executable is not installed
	ErrCommandNotFound = errors.New("command not found")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")
)
