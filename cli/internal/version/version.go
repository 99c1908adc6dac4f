// Package version reports the liteorm build. Release builds stamp Version
// with -ldflags "-X .../version.Version=v1.2.3"; otherwise the module
// version and VCS settings embedded by the go command are used.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version is set at link time for release builds.
var Version = ""

const devel = "devel"

// Build describes the running binary.
type Build struct {
	Version  string
	Revision string
	Time     string
	Modified bool
	Go       string
}

// Current reads the build description from the binary.
func Current() Build {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fromSettings(Version, nil)
	}
	v := Version
	if v == "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	return fromSettings(v, info.Settings)
}

func fromSettings(v string, settings []debug.BuildSetting) Build {
	b := Build{Version: normalize(v), Go: runtime.Version()}
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.time":
			b.Time = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// normalize strips a leading "v" from semantic versions; anything else is
// reported as a development build.
func normalize(v string) string {
	parsed, err := goversion.NewSemver(v)
	if err != nil {
		return devel
	}
	return parsed.String()
}

// Short is the version printed by --version.
func (b Build) Short() string {
	if b.Version != devel || b.Revision == "" {
		return b.Version
	}
	rev := b.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if b.Modified {
		rev += "-dirty"
	}
	return devel + "+" + rev
}

// String renders every known field, one per line.
func (b Build) String() string {
	var sb strings.Builder
	sb.WriteString("liteorm " + b.Short() + "\n")
	if b.Time != "" {
		sb.WriteString("built:  " + b.Time + "\n")
	}
	sb.WriteString("go:     " + b.Go + " " + runtime.GOOS + "/" + runtime.GOARCH)
	return sb.String()
}
