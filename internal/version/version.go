// Package version reports the build identity of the volt binaries. The
// same value is sent in the Server header, printed by the version commands
// and advertised in mDNS TXT records.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

// Set at link time:
//
//	go build -ldflags="-X github.com/voltlabs/volt/internal/version.Version=v0.3.0 \
//	                   -X github.com/voltlabs/volt/internal/version.Commit=1a2b3c4"
//
// Unset values are derived from the embedded VCS stamp.
var (
	Version = ""
	Commit  = ""
)

const shortCommit = 7

func init() {
	var settings []debug.BuildSetting
	if info, ok := debug.ReadBuildInfo(); ok {
		settings = info.Settings
	}
	Version, Commit = resolve(Version, Commit, settings, time.Now())
}

// resolve fills missing values from the VCS build settings. A version is
// never left empty: without a stamp it becomes dev-<date of now>.
func resolve(version, commit string, settings []debug.BuildSetting, now time.Time) (string, string) {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			vcs[s.Key] = s.Value
		}
	}

	if commit == "" {
		if rev := vcs["vcs.revision"]; rev != "" {
			commit = rev[:min(len(rev), shortCommit)]
			if vcs["vcs.modified"] == "true" {
				commit += "-dirty"
			}
		} else {
			commit = "unknown"
		}
	}

	if version == "" {
		stamp := now
		if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
			stamp = t
		}
		version = "dev-" + stamp.UTC().Format("20060102")
	}
	return version, commit
}

// Full returns the version followed by the commit.
func Full() string {
	return Version + " (commit: " + Commit + ")"
}

// ServerHeader returns the value sent in the Server response header.
func ServerHeader() string {
	return "Volt/" + Version
}
