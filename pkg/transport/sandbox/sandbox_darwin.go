//go:build darwin

package sandbox

type macWrapper struct{}

// Wrap rewrites the command line to exec the real command inside
// sandbox-exec with the given profile applied.
func (macWrapper) Wrap(profile, command string, args []string) (string, []string) {
	wrapped := append([]string{"-f", ProfilePath(profile), command}, args...)
	return "sandbox-exec", wrapped
}

func defaultWrapper() Wrapper {
	return macWrapper{}
}
