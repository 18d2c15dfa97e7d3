package host

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/spec"
)

// Platform returns the current OS in the naming used by prebuild artifacts.
func Platform() string {
	return PlatformFor(runtime.GOOS)
}

// Arch returns the current CPU architecture in the naming used by prebuild
// artifacts.
func Arch() string {
	return ArchFor(runtime.GOARCH)
}

// PlatformFor maps a GOOS value to its artifact platform name.
func PlatformFor(goos string) string {
	switch goos {
	case "windows":
		return "win32"
	case "solaris", "illumos":
		return "sunos"
	default:
		return goos
	}
}

// ArchFor maps a GOARCH value to its artifact arch name.
func ArchFor(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	case "ppc64le":
		return "ppc64"
	case "mipsle":
		return "mipsel"
	default:
		return goarch
	}
}

// ProbeError is returned when the runtime hosting the install cannot be
// queried for its module ABI.
type ProbeError struct {
	Command string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("failed to query runtime ABI with %s: %v", e.Command, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// probeScript prints the module ABI and, when running inside Electron, the
// Electron version.
const probeScript = `console.log(process.versions.modules + " " + (process.versions.electron || ""))`

// Prober queries the JavaScript runtime that runs the package manager.
type Prober struct {
	// Node is the runtime executable. Defaults to $npm_node_execpath, then
	// "node" on PATH.
	Node string
	// Run executes the command and returns its stdout. Tests replace it.
	Run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewProber creates a Prober for the runtime the package manager runs on.
func NewProber() *Prober {
	node := os.Getenv("npm_node_execpath")
	if node == "" {
		node = "node"
	}
	return &Prober{Node: node, Run: runCommand}
}

// Target returns the target implied by the live runtime: its runtime name,
// module ABI, and the host platform and arch.
func (p *Prober) Target(ctx context.Context) (spec.Target, error) {
	out, err := p.Run(ctx, p.Node, "-e", probeScript)
	if err != nil {
		return spec.Target{}, &ProbeError{Command: p.Node, Err: err}
	}

	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return spec.Target{}, &ProbeError{Command: p.Node, Err: fmt.Errorf("empty output")}
	}

	runtimeName := "node"
	if len(fields) > 1 {
		runtimeName = "electron"
	}
	target := spec.Target{
		Runtime:  runtimeName,
		ABI:      fields[0],
		Platform: Platform(),
		Arch:     Arch(),
	}
	log.WithFields(log.Fields{
		"runtime": target.Runtime,
		"abi":     target.ABI,
	}).Debug("probed host runtime")
	return target, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
