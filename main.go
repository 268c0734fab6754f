package main

import (
	"runtime/debug"

	"github.com/marcus/offsync/cmd"
)

// Version is injected with -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

// resolveVersion prefers the injected version, then the module version from
// `go install`, then "devel+<rev>[+dirty]" from VCS stamps.
func resolveVersion(injected string) string {
	if injected != "" && injected != "dev" {
		return injected
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return injected
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return injected
	}
	v := "devel+" + rev[:min(len(rev), 12)]
	if dirty {
		v += "+dirty"
	}
	return v
}

func main() {
	cmd.SetVersion(resolveVersion(Version))
	cmd.Execute()
}
