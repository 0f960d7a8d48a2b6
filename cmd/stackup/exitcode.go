package main

import (
	"fmt"
	"io"

	"github.com/artpar/stackup/internal/core/domain"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess        = 0
	ExitConfigError    = 1
	ExitPortConflict   = 2
	ExitTopologyError  = 3
	ExitStartupFailure = 4
)

// exitCode prints err and maps it to the process exit code.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(w, "Error:", err)
	return codeFor(err)
}

func codeFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindResource:
		return ExitPortConflict
	case domain.KindTopology:
		return ExitTopologyError
	case domain.KindRuntime:
		return ExitStartupFailure
	default:
		return ExitConfigError
	}
}
