// Package version identifies the running opshop binary. Release builds set the
// package variables at link time:
//
//	go build -ldflags "-X opshop/internal/version.Version=v1.4.0 -X opshop/internal/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Builds without ldflags fall back to the VCS stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

const unknown = "unknown"

var (
	Version   = unknown
	BuildDate = unknown
	GitCommit = unknown
)

// Info describes the build and the process running it. InstanceID tells
// replicas apart in logs, traces and health responses.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	Modified   bool   `json:"modified,omitempty"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once    sync.Once
	current Info
)

// GetInfo returns the process identity, computed once.
func GetInfo() Info {
	once.Do(func() {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = unknown
		}
		current = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   hostname,
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			current.applyBuildSettings(bi.Settings)
		}
	})
	return current
}

// applyBuildSettings fills fields still unknown from the embedded VCS stamp.
func (i *Info) applyBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == unknown && s.Value != "" {
				i.GitCommit = shortRevision(s.Value)
			}
		case "vcs.time":
			if i.BuildDate == unknown && s.Value != "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String formats version info for -version output.
func (i Info) String() string {
	s := fmt.Sprintf("opshop version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
	if i.Modified {
		s += " with local changes"
	}
	return s
}

// UserAgent is sent by the healthcheck probe.
func (i Info) UserAgent() string {
	return "opshop-healthcheck/" + i.Version
}
