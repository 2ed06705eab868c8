// Package version reports the build version.
package version

import "runtime/debug"

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/tonelist/internal/version.Version=X.Y.Z
var Version = "dev"

// String returns Version, falling back to the module version recorded by
// the go tool when ldflags were not used.
func String() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
