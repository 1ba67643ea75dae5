// Package buildinfo carries the version stamped into the binary at link time:
//
//	go build -ldflags "-X github.com/m3rciful/flowerbot/core/buildinfo.Version=v1.4.0 \
//	  -X github.com/m3rciful/flowerbot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/flowerbot/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Revision returns Commit, falling back to the VCS revision the Go
// toolchain embeds in module builds.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return "local"
}
