package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/filegate/filegate/core/infra/logging"
)

// Set via -ldflags at release build time; Commit falls back to the VCS
// revision embedded by the Go toolchain when unset.
var (
	Version = "dev"
	Commit  = ""
	Date    = "unknown"
)

// Info returns a single-line build summary.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", Version, commit(), Date, runtime.Version())
}

// Log writes the build summary for the named service at startup.
func Log(service string) {
	logging.Info(service, "build "+Info())
}

func commit() string {
	if Commit != "" {
		return Commit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
