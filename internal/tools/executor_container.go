package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// NetworkMode selects the container's network configuration.
type NetworkMode struct {
	Kind string // "none", "bridge", "host", "custom"
	Name string // set when Kind == "custom"
}

func NetworkNone() NetworkMode   { return NetworkMode{Kind: "none"} }
func NetworkBridge() NetworkMode { return NetworkMode{Kind: "bridge"} }
func NetworkHost() NetworkMode   { return NetworkMode{Kind: "host"} }
func NetworkCustom(name string) NetworkMode { return NetworkMode{Kind: "custom", Name: name} }

func (m NetworkMode) flag() string {
	switch m.Kind {
	case "none":
		return "none"
	case "host":
		return "host"
	case "custom":
		return m.Name
	default:
		return "bridge"
	}
}

// SecurityProfile configures the container's privilege surface. CapDropAll
// defaults to true: containers run with every Linux capability dropped
// unless explicitly added back.
type SecurityProfile struct {
	CapDropAll  bool
	CapAdd      []string
	ReadOnlyFS  bool
	NoNewPrivs  bool
}

// DefaultSecurityProfile drops all capabilities and disables privilege
// escalation, matching the original container executor's default posture.
func DefaultSecurityProfile() SecurityProfile {
	return SecurityProfile{CapDropAll: true, NoNewPrivs: true}
}

// ResourceLimits bounds what a container may consume.
type ResourceLimits struct {
	CPUs      string // e.g. "1.5"
	MemoryMB  int
	PidsLimit int
}

// ContainerSpec describes one containerized command execution.
type ContainerSpec struct {
	Image      string
	Command    string
	WorkingDir string  // host path, mapped to /workspace inside the container
	Network    NetworkMode
	Security   SecurityProfile
	Limits     ResourceLimits
	Env        []string
}

// ContainerExecutor composes docker/podman CLI invocations rather than
// linking against either daemon's API, matching the original executor's
// "compose the CLI, don't reimplement the runtime" approach.
type ContainerExecutor struct {
	binary string // "docker" or "podman"
}

// NewContainerExecutor probes for docker, falling back to podman, and
// reports unavailable if neither is on PATH.
func NewContainerExecutor() (*ContainerExecutor, bool) {
	for _, bin := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(bin); err == nil {
			return &ContainerExecutor{binary: bin}, true
		}
	}
	return nil, false
}

func (e *ContainerExecutor) buildArgs(spec ContainerSpec) []string {
	args := []string{"run", "--rm"}

	args = append(args, "--network", spec.Network.flag())

	if spec.Security.CapDropAll {
		args = append(args, "--cap-drop", "ALL")
	}
	for _, c := range spec.Security.CapAdd {
		args = append(args, "--cap-add", c)
	}
	if spec.Security.NoNewPrivs {
		args = append(args, "--security-opt", "no-new-privileges")
	}
	if spec.Security.ReadOnlyFS {
		args = append(args, "--read-only")
	}

	if spec.Limits.CPUs != "" {
		args = append(args, "--cpus", spec.Limits.CPUs)
	}
	if spec.Limits.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", spec.Limits.MemoryMB))
	}
	if spec.Limits.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", spec.Limits.PidsLimit))
	}

	if spec.WorkingDir != "" {
		abs, err := filepath.Abs(spec.WorkingDir)
		if err == nil {
			args = append(args, "-v", abs+":/workspace", "-w", "/workspace")
		}
	}

	for _, kv := range spec.Env {
		args = append(args, "-e", kv)
	}

	args = append(args, spec.Image, "sh", "-c", spec.Command)
	return args
}

// Execute runs spec's command inside a container, returning combined
// stdout+stderr.
func (e *ContainerExecutor) Execute(ctx context.Context, spec ContainerSpec) (*ExecOutcome, error) {
	args := e.buildArgs(spec)
	cmd := exec.CommandContext(ctx, e.binary, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() == context.DeadlineExceeded {
			return &ExecOutcome{TimedOut: true, Reason: "container execution deadline exceeded", Output: out.String()}, nil
		} else {
			return nil, fmt.Errorf("container run: %w", err)
		}
	}

	return &ExecOutcome{Output: out.String(), ExitCode: exitCode}, nil
}

// Name identifies which container runtime binary is in use.
func (e *ContainerExecutor) Name() string { return e.binary }
