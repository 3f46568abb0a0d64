// Package tracer embeds the compiled LD_PRELOAD shared object (built from
// tracer/tracer.c by the top-level Makefile before `go build` runs) and
// materialises it to a cache-local path at runtime, the Go-native analogue
// of original_source/build.rs baking a build-time path into the binary via
// rustc-env. Grounded on the embedding pattern in
// internal/recipe/embedded.go of the tsukumogami-tsuku example.
package tracer

import (
	_ "embed"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed tracer.so
var compiled []byte

// ExtractTo materialises the embedded shared object under dir, named by a
// hash of its own contents so that repeated invocations across binary
// versions reuse the same extracted artifact instead of rewriting it on
// every run, and so that two different builds never collide on the same
// filename.
func ExtractTo(dir string) (string, error) {
	sum := sha256.Sum256(compiled)
	name := "tracer-" + hex.EncodeToString(sum[:])[:32] + ".so"
	path := filepath.Join(dir, name)

	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(compiled)) {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create tracer directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("unable to create tracer temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compiled); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("unable to write tracer object: %w", err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("unable to chmod tracer object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("unable to close tracer object: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("unable to install tracer object: %w", err)
	}
	return path, nil
}
