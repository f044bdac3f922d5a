// Package version provides build version information for fragment.
package version

import "runtime"

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"
	// Commit is the git commit hash (set by build flags)
	Commit = "unknown"
)

// Info contains version and build information
type Info struct {
	Version   string
	Commit    string
	GoVersion string
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
	}
}

// String returns the version, with the commit when known.
func (i Info) String() string {
	if i.Commit == "" || i.Commit == "unknown" {
		return i.Version
	}
	return i.Version + "+" + i.Commit
}
