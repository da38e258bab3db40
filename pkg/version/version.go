// Package version exposes build metadata injected at link time.
package version

// These are overridden with -ldflags "-X github.com/rshade/jsoncache/pkg/version.version=...".
//
//nolint:gochecknoglobals // set by the linker
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the version string.
func GetVersion() string {
	return version
}

// GetGitCommit returns the commit the binary was built from, if known.
func GetGitCommit() string {
	return gitCommit
}

// GetBuildDate returns the build date, if known.
func GetBuildDate() string {
	return buildDate
}
