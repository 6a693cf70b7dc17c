package version

import (
	"fmt"
	"runtime"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`

	// Schema is the newest database migration the binary applies
	Schema string `json:"schema_version,omitempty"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// WithSchema reports the database schema alongside the build
func (i Info) WithSchema(schema string) Info {
	i.Schema = schema
	return i
}

// String returns a human-readable version string
func (i Info) String() string {
	s := fmt.Sprintf("prov %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	if i.Schema != "" {
		s += ", schema " + i.Schema
	}
	return s
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
