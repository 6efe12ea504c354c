package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line description suitable for startup logs and the
// /api/version endpoint.
func String() string {
	return fmt.Sprintf("jitter.report %s (%s, built %s)", Version, GitSHA, BuildTime)
}
