// Package must provides helpers for operations whose errors are expected to
// be rare and, when they do occur, not worth propagating — only worth
// logging. It's used for cleanup paths (closing a file after an earlier
// error, removing a stale temporary file) where the original error already
// explains what went wrong and a secondary failure shouldn't mask it.
package must

import (
	"io"
	"os"

	"github.com/xzfc/cached-nix-shell/pkg/logging"
)

// Close closes c, logging (rather than returning) any error.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// OSRemove removes the file at name, logging (rather than returning) any
// error.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warnf("unable to remove '%s': %s", name, err.Error())
	}
}

// Unlock releases locker's lock, logging (rather than returning) any error.
func Unlock(locker interface{ Unlock() error }, logger *logging.Logger) {
	if err := locker.Unlock(); err != nil {
		logger.Warnf("unable to unlock locker: %s", err.Error())
	}
}

// IOCopy copies from src to dst, logging (rather than returning) any error.
func IOCopy(dst io.Writer, src io.Reader, logger *logging.Logger) {
	if _, err := io.Copy(dst, src); err != nil {
		logger.Warnf("unable to copy from source to destination: %s", err.Error())
	}
}
