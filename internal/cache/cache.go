// Package cache implements the on-disk cache store: each cached
// environment is a set of four sibling files under the cache directory,
// named "<hash>.inputs", "<hash>.env", "<hash>.trace", and "<hash>.drv",
// where <hash> is the fingerprint computed by the fingerprint package. An
// entry counts as present only if all four files exist; entry reads and
// writes never take a lock, since the fingerprint already determines the
// file names and two concurrent writers for the same hash would write
// equivalent content. The one exception is the shared --wrap directory
// (EnsureWrapDir), whose one-time creation is guarded with a file lock since
// it isn't keyed by a fingerprint.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xzfc/cached-nix-shell/internal/environment"
	"github.com/xzfc/cached-nix-shell/internal/trace"
	"github.com/xzfc/cached-nix-shell/pkg/filesystem"
	"github.com/xzfc/cached-nix-shell/pkg/filesystem/locking"
	"github.com/xzfc/cached-nix-shell/pkg/logging"
	"github.com/xzfc/cached-nix-shell/pkg/must"
)

// Entry is a cache hit: the materialised environment, the contents of the
// entry's ".inputs" diagnostic file, and the derivation path its ".drv"
// symlink points at.
type Entry struct {
	Env     environment.Map
	Inputs  []byte
	DrvPath string
}

func entryPath(dir, hash, ext string) string {
	return filepath.Join(dir, hash+"."+ext)
}

// Lookup looks for a valid cache entry named hash under dir. It returns
// (nil, nil) on any kind of ordinary miss (missing file, dangling
// derivation symlink, stale trace); it only returns a non-nil error for
// unexpected I/O failures reading a file that is present.
func Lookup(dir, hash string, logger *logging.Logger) (*Entry, error) {
	drvFname := entryPath(dir, hash, "drv")
	drvTarget, err := os.Readlink(drvFname)
	if err != nil {
		return nil, nil
	}
	if _, err := os.Stat(drvTarget); err != nil {
		// The derivation this entry pointed at has been garbage collected;
		// treat the whole entry as absent rather than erroring.
		return nil, nil
	}

	traceBytes, err := os.ReadFile(entryPath(dir, hash, "trace"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	tr := trace.LoadSorted(traceBytes)
	if mismatch := tr.CheckForChanges(); mismatch != nil {
		logger.Warnf("cache entry %s invalidated: %s: expected %q, got %q",
			hash, mismatch.Path, mismatch.Expected, mismatch.Got)
		return nil, nil
	}

	envBytes, err := os.ReadFile(entryPath(dir, hash, "env"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	inputsBytes, err := os.ReadFile(entryPath(dir, hash, "inputs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	return &Entry{
		Env:     environment.FromBlock(envBytes),
		Inputs:  inputsBytes,
		DrvPath: drvTarget,
	}, nil
}

// Store writes a freshly materialised entry to dir under hash. Failures
// are logged as warnings and swallowed: a cache write failure doesn't
// invalidate the environment that was already obtained, it just means this
// invocation won't be faster next time.
func Store(dir, hash string, inputs []byte, env environment.Map, tr *trace.Trace, drvPath string, logger *logging.Logger) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn(fmt.Errorf("unable to create cache directory: %w", err))
		return
	}

	if err := filesystem.WriteFileAtomic(entryPath(dir, hash, "inputs"), inputs, 0644, logger); err != nil {
		logger.Warn(fmt.Errorf("unable to store cache inputs: %w", err))
		return
	}

	envBlock := environment.ToBlock(env)
	if err := filesystem.WriteFileAtomic(entryPath(dir, hash, "env"), envBlock, 0644, logger); err != nil {
		logger.Warn(fmt.Errorf("unable to store cache env: %w", err))
		return
	}

	if err := filesystem.WriteFileAtomic(entryPath(dir, hash, "trace"), tr.Serialize(), 0644, logger); err != nil {
		logger.Warn(fmt.Errorf("unable to store cache trace: %w", err))
		return
	}

	if err := symlinkAtomic(drvPath, entryPath(dir, hash, "drv")); err != nil {
		logger.Warn(fmt.Errorf("unable to store cache derivation link: %w", err))
		return
	}
}

// EnsureWrapDir returns the path to the private "nix-shell" wrapper
// directory used by --wrap mode, creating it (and the symlink back to
// selfExe inside it) on first use. A lock file guards the creation itself
// against a race between two invocations started at once; once the
// directory and symlink exist, subsequent calls just verify and return.
func EnsureWrapDir(dir, selfExe string, logger *logging.Logger) (string, error) {
	wrapDir := filepath.Join(dir, "wrap-bin")
	link := filepath.Join(wrapDir, "nix-shell")

	if target, err := os.Readlink(link); err == nil && target == selfExe {
		return wrapDir, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("unable to create cache directory: %w", err)
	}
	locker, err := locking.NewLocker(filepath.Join(dir, "wrap.lock"), 0644)
	if err != nil {
		return "", fmt.Errorf("unable to open wrap lock: %w", err)
	}
	defer must.Close(locker, logger)
	if err := locker.Lock(true); err != nil {
		return "", fmt.Errorf("unable to acquire wrap lock: %w", err)
	}

	if err := os.MkdirAll(wrapDir, 0755); err != nil {
		return "", fmt.Errorf("unable to create wrap directory: %w", err)
	}
	if target, err := os.Readlink(link); err == nil && target == selfExe {
		return wrapDir, nil
	} else if err == nil {
		os.Remove(link)
	}
	if err := os.Symlink(selfExe, link); err != nil {
		return "", fmt.Errorf("unable to create nix-shell symlink: %w", err)
	}
	return wrapDir, nil
}

// symlinkAtomic creates a symlink at path pointing at target, replacing any
// existing file there, by creating the link under a temporary name in the
// same directory and renaming it into place.
func symlinkAtomic(target, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	if err := os.Remove(tmpName); err != nil {
		return fmt.Errorf("unable to clear temporary placeholder: %w", err)
	}
	if err := os.Symlink(target, tmpName); err != nil {
		return fmt.Errorf("unable to create symlink: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("unable to rename symlink into place: %w", err)
	}
	return nil
}
