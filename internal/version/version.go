package version

var (
	// Version is the release of the highwatcher binary, set with -ldflags.
	Version = "dev"
	// Commit is the source revision, set with -ldflags.
	Commit = "unknown"
	// BuildDate is the RFC3339 build time, set with -ldflags.
	BuildDate = "unknown"
)
