// Package version reports the build identity of the resultnav binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const defaultModule = "pkt.systems/resultnav"

// buildVersion is set via -ldflags "-X pkt.systems/resultnav/internal/version.buildVersion=...".
var buildVersion = ""

// Info is the build identity gathered from ldflags and debug.BuildInfo.
type Info struct {
	Version   string
	Module    string
	Revision  string
	Time      time.Time
	Modified  bool
	GoVersion string
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

// Module returns the module path from build info when available.
func Module() string {
	return Read().Module
}

// Read collects Info for the running binary.
func Read() Info {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		info = nil
	}
	return fromBuildInfo(info, buildVersion)
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Module: defaultModule, GoVersion: runtime.Version()}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		if info.GoVersion != "" {
			out.GoVersion = info.GoVersion
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				out.Revision = setting.Value
			case "vcs.time":
				if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					out.Time = parsed.UTC()
				}
			case "vcs.modified":
				out.Modified = setting.Value == "true"
			}
		}
	}
	switch {
	case strings.TrimSpace(override) != "":
		out.Version = strings.TrimSpace(override)
	case info != nil && info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = info.Main.Version
	default:
		out.Version = out.pseudo()
	}
	return out
}

func (i Info) pseudo() string {
	if i.Revision == "" || i.Time.IsZero() {
		return "v0.0.0-unknown"
	}
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	ver := "v0.0.0-" + i.Time.Format("20060102150405") + "-" + rev
	if i.Modified {
		ver += "+dirty"
	}
	return ver
}

// Describe renders a one-line summary, e.g.
// "v1.2.0 (pkt.systems/resultnav, go1.25.0, built 3 days ago)".
func (i Info) Describe(now time.Time) string {
	parts := []string{i.Module, i.GoVersion}
	if !i.Time.IsZero() {
		parts = append(parts, "built "+humanize.RelTime(i.Time, now, "ago", "from now"))
	}
	return fmt.Sprintf("%s (%s)", i.Version, strings.Join(parts, ", "))
}
