// Package xdg resolves the single XDG Base Directory path cached-nix-shell
// needs: the cache home under which its four-file cache entries live. This
// is intentionally minimal rather than a general-purpose XDG client,
// since cached-nix-shell only ever reads one of the spec's directories and
// never needs the data/config/state variants.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/xzfc/cached-nix-shell/pkg/filesystem"
)

// appName is the subdirectory created under the cache home.
const appName = "cached-nix-shell"

// CacheHome returns the directory under which cached-nix-shell's cache
// entries should live: $XDG_CACHE_HOME/cached-nix-shell if XDG_CACHE_HOME
// is set to a non-empty absolute path, otherwise $HOME/.cache/cached-nix-shell.
// It does not create the directory; callers that write to it are
// responsible for that (and should tolerate it already existing).
func CacheHome() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" || !filepath.IsAbs(base) {
		base = filepath.Join(filesystem.HomeDirectory, ".cache")
	}
	return filepath.Join(base, appName), nil
}
