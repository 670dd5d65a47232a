package buildinfo

import "fmt"

// BuildInfo identifies the build of an executable artifact. The fields are
// meant to be stamped at link time with -ldflags -X.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

// String returns the build info as a one-line string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
}
