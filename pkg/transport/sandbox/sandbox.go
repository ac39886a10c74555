// Package sandbox applies a platform confinement wrapper to a child process
// command line before it is spawned. The wrapper is fire-and-forget: if it
// fails, the child exits abnormally and that surfaces to the caller as a
// start failure, never as a distinct sandbox error path.
package sandbox

// Wrapper rewrites (command, args) into a sandboxed invocation of the same
// command, or returns them unchanged where no sandboxing is available on
// this platform.
type Wrapper interface {
	Wrap(profile, command string, args []string) (string, []string)
}

// DefaultProfile names the sandbox-exec profile file applied on macOS.
const DefaultProfile = "mcp-server-everything-for-now"

// ProfilePath returns the on-disk path of a named sandbox profile, relative
// to the process working directory.
func ProfilePath(profile string) string {
	return "./sandbox-exec-profiles/" + profile + ".sb"
}

// Default returns the wrapper appropriate for the running platform: the
// macOS sandbox-exec wrapper, or a no-op elsewhere.
func Default() Wrapper {
	return defaultWrapper()
}
