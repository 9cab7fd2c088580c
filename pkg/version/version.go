// Package version exposes the application version derived from build
// metadata, shared by the MCP `initialize` handshake and the
// optional HTTP health surface so both report the same build identity
// instead of each hand-rolling its own string.
// Go 1.18+ automatically embeds VCS info (git commit, dirty flag, etc.)
// into the binary via runtime/debug.BuildInfo. No -ldflags required.
// Usage:
//
//	version.GitCommit  // "a3f8c2d1" or "dev"
//	version.Full()     // "cogmemd/0.1.0+a3f8c2d1" or "cogmemd/0.1.0+dev"
package version

import "runtime/debug"

// AppName is the application name used in version strings.
const AppName = "cogmemd"

// Semver is the protocol-surface version advertised during the MCP
// `initialize` handshake; bump it
// whenever a tool's argument schema or result shape changes in a
// backward-incompatible way.
const Semver = "0.1.0"

// GitCommit is the short git commit hash (8 chars) from build info.
// Set to "dev" when build info is unavailable (e.g., `go test`, non-git builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "cogmemd/<semver>+<commit>" for health responses; the MCP
// handshake reports Semver alone.
func Full() string {
	return AppName + "/" + Semver + "+" + GitCommit
}
