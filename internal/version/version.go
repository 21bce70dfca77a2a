// Package version reports the build version of the bot.
package version

import (
	"runtime/debug"
)

// Version is set at build time with -ldflags "-X github.com/hrygo/estatebot/internal/version.Version=...".
var Version = ""

// String returns the version, falling back to the module build info.
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}

// UserAgent returns the User-Agent header sent to external APIs.
func UserAgent() string {
	return "estatebot/" + String()
}
