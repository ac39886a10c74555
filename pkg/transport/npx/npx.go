// Package npx detects a local Node.js/npm installation and rewrites the
// ServerDefinition sentinel command "npx" into a concrete runner invocation.
package npx

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// ErrNodeNotFound is returned when command "npx" was requested but no local
// Node.js/npm installation could be located.
var ErrNodeNotFound = errors.New("npx: no local Node.js installation found")

// Installation describes the runner detected on this machine.
type Installation struct {
	// NodePath is the resolved path to the node executable, empty if not found.
	NodePath string
	// NpxPath is the resolved path to the npx executable, empty if not found.
	NpxPath string
}

// Available reports whether a usable package runner was found.
func (i Installation) Available() bool {
	return i.NpxPath != ""
}

var (
	detectOnce   sync.Once
	detectResult Installation
	lookPathFn   = exec.LookPath
)

// Detect locates node/npx on PATH once, caching the result for the process
// lifetime.
func Detect() Installation {
	detectOnce.Do(func() {
		detectResult = detectNow()
	})
	return detectResult
}

// resetForTest clears the memoized detection result; used only by tests in
// this package to exercise both branches of Detect.
func resetForTest() {
	detectOnce = sync.Once{}
	detectResult = Installation{}
}

func detectNow() Installation {
	var inst Installation
	if p, err := lookPathFn("node"); err == nil {
		inst.NodePath = p
	}
	if p, err := lookPathFn("npx"); err == nil {
		inst.NpxPath = p
	}
	return inst
}

// InstallInstructions returns a precise, human-actionable message enumerating
// how to obtain a package runner, for use in ErrNodeNotFound.
func InstallInstructions() string {
	return "no local Node.js/npx installation was found; install Node.js from " +
		"https://nodejs.org, or via your platform's package manager " +
		"(e.g. \"brew install node\", \"apt install nodejs npm\"), then retry"
}

// Rewrite applies the "npx" sentinel rewrite: command "npx" is replaced by
// the detected runner's path, and the caller's args are appended unchanged
// after it.
func Rewrite(command string, args []string) (string, []string, error) {
	if command != "npx" {
		return command, args, nil
	}

	inst := Detect()
	if !inst.Available() {
		return "", nil, fmt.Errorf("%w: %s", ErrNodeNotFound, InstallInstructions())
	}

	return inst.NpxPath, args, nil
}
