// Package fingerprint computes the cache key for a cached-nix-shell
// invocation: a hash over exactly the inputs that can change which
// derivation gets built (the whitelisted environment, the normalised,
// fingerprint-participating argument vector, and the working directory),
// and nothing else. Weak nix-shell options (build parallelism, --quiet,
// and the like) never reach this function, since they change how a
// derivation is realised, not which derivation it is.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/xzfc/cached-nix-shell/internal/environment"
)

// lengthPrefixed appends data to buf preceded by its length and a NUL, so
// that concatenating several length-prefixed fields can never be confused
// with a different split of the same bytes.
func lengthPrefixed(buf *bytes.Buffer, data []byte) {
	fmt.Fprintf(buf, "%d\x00", len(data))
	buf.Write(data)
}

// Compute returns the lowercase hex cache key for an invocation whose
// fingerprint-participating environment is env, whose fingerprint-
// participating argument vector is args (already filtered down to the
// strong/classifying arguments), and whose working directory is pwd.
func Compute(env environment.Map, args []string, pwd []byte) string {
	var buf bytes.Buffer

	lengthPrefixed(&buf, environment.ToBlock(env.Sorted()))

	var argBuf bytes.Buffer
	for _, a := range args {
		lengthPrefixed(&argBuf, []byte(a))
	}
	lengthPrefixed(&buf, argBuf.Bytes())

	lengthPrefixed(&buf, pwd)

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
