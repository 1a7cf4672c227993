// Package buildinfo exposes the version stamped at link time.
package buildinfo

import "runtime/debug"

// Set via -ldflags "-X hubfleet/internal/buildinfo.Version=... -X hubfleet/internal/buildinfo.Commit=...".
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info reports the build identity for /debug. When the commit was not
// stamped it falls back to the VCS revision embedded by the toolchain.
func Info() map[string]string {
	commit := Commit
	if commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
					break
				}
			}
		}
	}
	return map[string]string{
		"version": Version,
		"commit":  commit,
		"builtAt": BuiltAt,
	}
}
