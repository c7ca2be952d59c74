// Package version carries build metadata injected via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version  = "unknown"
	Revision = "unknown"
	Built    = "unknown"
)

// String renders the multi-line version report.
func String() string {
	return fmt.Sprintf("Version:  %s\nGit hash: %s\nBuilt:    %s\nGo:       %s\n",
		Version, Revision, Built, runtime.Version())
}
