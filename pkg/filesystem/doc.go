// Package filesystem provides filesystem utility methods either not provided
// by the Go standard library or requiring a more careful implementation:
// atomic file writes, advisory locking, and home directory lookup.
package filesystem
