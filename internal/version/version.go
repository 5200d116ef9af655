package version

// Version information set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the current version of braid
func Version() string {
	return version
}

// Commit returns the vcs revision the binary was built from
func Commit() string {
	return commit
}

// Date returns the build timestamp
func Date() string {
	return date
}

// BuildInfo returns detailed build information
func BuildInfo() string {
	return "Version: " + version + "\nCommit: " + commit + "\nBuild Date: " + date
}
