// Package buildinfo holds version metadata, set with -ldflags -X.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info is served by /debug/build. Missing commit and time fall back to the
// VCS stamp embedded by the Go toolchain.
func Info() map[string]string {
	info := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info["go"] = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info["commit"] == "" {
				info["commit"] = s.Value
			}
		case "vcs.time":
			if info["builtAt"] == "" {
				info["builtAt"] = s.Value
			}
		}
	}
	return info
}

// String is the one-line version printed by the CLI.
func String() string {
	info := Info()
	if c := info["commit"]; c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		return fmt.Sprintf("xcscore %s (%s)", Version, c)
	}
	return "xcscore " + Version
}
