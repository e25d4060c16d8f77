// Package version reports the vifd build. Variables are set via ldflags:
//
//	go build -ldflags "-X github.com/spin-stack/vrouter-vif/internal/version.Version=v1.0.0"
package version

import (
	"fmt"
	"runtime"

	"github.com/containerd/log"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("vifd %s (commit: %s, built: %s, %s %s/%s)",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Fields returns the build as structured log fields.
func Fields() log.Fields {
	return log.Fields{
		"version": Version,
		"commit":  GitCommit,
		"built":   BuildDate,
		"go":      runtime.Version(),
	}
}
