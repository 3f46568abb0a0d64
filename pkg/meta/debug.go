package meta

import (
	"os"
)

// DebugEnabled controls whether or not debugging is enabled for
// cached-nix-shell. It is set automatically based on the
// CACHED_NIX_SHELL_DEBUG environment variable.
var DebugEnabled bool

func init() {
	// Check whether or not debugging should be enabled.
	DebugEnabled = os.Getenv("CACHED_NIX_SHELL_DEBUG") == "1"
}
